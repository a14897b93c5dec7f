package capture

import (
	"image"
	"sync"
)

// FrameSource is the live handle to the platform screen-capture facility.
type FrameSource interface {
	// Bounds is the captured area in virtual-screen coordinates.
	Bounds() image.Rectangle

	// Grab returns a fresh RGBA copy of the captured area. The caller owns
	// the returned image.
	Grab() (*image.RGBA, error)

	Close() error
}

// display is one open connection to the windowing system. It is created
// once per FrameSource and reused by every grab.
type display interface {
	// Screens lists the monitors in virtual-screen coordinates, primary
	// first.
	Screens() []image.Rectangle

	// Capture copies r into dst, whose bounds are r translated to the
	// origin. Parts of r outside every screen are left black.
	Capture(r image.Rectangle, dst *image.RGBA) error

	Close() error
}

// dialDisplay is the platform connection, set per OS.
var dialDisplay func() (display, error)

type screenSource struct {
	mu     sync.Mutex
	disp   display
	bounds image.Rectangle
	closed bool
}

// OpenScreen connects to the display once and selects a monitor: 0
// captures the union of all displays, 1..n a single display, and
// anything out of range falls back to the primary display.
func OpenScreen(monitor int) (FrameSource, error) {
	return openScreen(dialDisplay, monitor)
}

func openScreen(dial func() (display, error), monitor int) (FrameSource, error) {
	if dial == nil {
		return nil, ErrNoDisplay
	}
	disp, err := dial()
	if err != nil {
		return nil, err
	}
	screens := disp.Screens()
	if len(screens) == 0 {
		_ = disp.Close()
		return nil, ErrNoDisplay
	}
	return &screenSource{disp: disp, bounds: monitorBounds(monitor, screens)}, nil
}

func monitorBounds(monitor int, screens []image.Rectangle) image.Rectangle {
	switch {
	case monitor == 0:
		all := screens[0]
		for _, s := range screens[1:] {
			all = all.Union(s)
		}
		return all
	case monitor >= 1 && monitor <= len(screens):
		return screens[monitor-1]
	default:
		return screens[0]
	}
}

func (s *screenSource) Bounds() image.Rectangle { return s.bounds }

func (s *screenSource) Grab() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	img := image.NewRGBA(image.Rect(0, 0, s.bounds.Dx(), s.bounds.Dy()))
	if err := s.disp.Capture(s.bounds, img); err != nil {
		return nil, err
	}
	return img, nil
}

func (s *screenSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.disp.Close()
}
