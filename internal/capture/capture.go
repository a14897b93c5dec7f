package capture

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"

	"couchcontrol/internal/config"
)

var (
	// ErrNoDisplay means the platform reports no active display.
	ErrNoDisplay = errors.New("no active display")

	// ErrClosed is returned by every Pipeline method after Close.
	ErrClosed = errors.New("capture pipeline closed")
)

// CaptureError wraps a failure of one capture step (open, grab, encode).
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string { return "capture " + e.Op + ": " + e.Err.Error() }

func (e *CaptureError) Unwrap() error { return e.Err }

// Settings is the mutable capture configuration.
type Settings struct {
	Monitor           int
	Quality           int
	Scale             float64
	PreferFastEncoder bool
}

// Geometry describes the selected monitor and the size frames are sent at.
type Geometry struct {
	Width, Height             int
	ScaledWidth, ScaledHeight int

	// OriginX/OriginY locate the monitor in virtual-screen coordinates.
	OriginX, OriginY int
}

// SourceOpener opens the frame source for a monitor index.
type SourceOpener func(monitor int) (FrameSource, error)

// Pipeline produces scaled JPEG frames from one shared FrameSource.
// Capture, settings changes and geometry reads are serialized by a single
// mutex, so a frame is always encoded with the geometry it was grabbed for.
type Pipeline struct {
	mu      sync.Mutex
	open    SourceOpener
	encoder Encoder
	cfg     Settings
	source  FrameSource
	geom    Geometry
	closed  bool
}

// NewPipeline returns a pipeline that opens its source on first use.
func NewPipeline(cfg Settings, enc Encoder, open SourceOpener) *Pipeline {
	cfg.Quality = config.ClampQuality(cfg.Quality)
	cfg.Scale = config.ClampScale(cfg.Scale)
	return &Pipeline{open: open, encoder: enc, cfg: cfg}
}

// Open forces the lazy source open. The server calls it at startup so a
// missing display is reported before any client connects.
func (p *Pipeline) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.sourceLocked()
	return err
}

func (p *Pipeline) sourceLocked() (FrameSource, error) {
	if p.closed {
		return nil, &CaptureError{Op: "open", Err: ErrClosed}
	}
	if p.source != nil {
		return p.source, nil
	}
	src, err := p.open(p.cfg.Monitor)
	if err != nil {
		return nil, &CaptureError{Op: "open", Err: err}
	}
	p.source = src
	p.geom = geometryFor(src, p.cfg.Scale)
	return src, nil
}

// CaptureFrame grabs the screen, scales it and returns JPEG bytes.
func (p *Pipeline) CaptureFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := p.sourceLocked()
	if err != nil {
		return nil, err
	}
	img, err := src.Grab()
	if err != nil {
		return nil, &CaptureError{Op: "grab", Err: err}
	}

	var buf bytes.Buffer
	if err := p.encoder.Encode(&buf, img, p.geom.ScaledWidth, p.geom.ScaledHeight, p.cfg.Quality); err != nil {
		return nil, &CaptureError{Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// SetQuality clamps q into [1,95], stores it and returns the stored value.
func (p *Pipeline) SetQuality(q int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Quality = config.ClampQuality(q)
	return p.cfg.Quality
}

// SetScale clamps s into [0.1,1.0], stores it, recomputes the scaled
// geometry and returns the stored value.
func (p *Pipeline) SetScale(s float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Scale = config.ClampScale(s)
	if p.source != nil {
		p.geom = geometryFor(p.source, p.cfg.Scale)
	}
	return p.cfg.Scale
}

// SetMonitor switches the captured monitor. The previous source is closed
// before the new one is opened.
func (p *Pipeline) SetMonitor(monitor int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return &CaptureError{Op: "open", Err: ErrClosed}
	}
	if p.source != nil {
		_ = p.source.Close()
		p.source = nil
	}
	p.cfg.Monitor = monitor
	_, err := p.sourceLocked()
	return err
}

// Geometry returns the current dimensions, opening the source if needed.
func (p *Pipeline) Geometry() (Geometry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.sourceLocked(); err != nil {
		return Geometry{}, err
	}
	return p.geom, nil
}

func (p *Pipeline) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

func (p *Pipeline) EncoderName() string { return p.encoder.Name() }

// Close releases the frame source. It is safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.source == nil {
		return nil
	}
	err := p.source.Close()
	p.source = nil
	return err
}

func geometryFor(src FrameSource, scale float64) Geometry {
	b := src.Bounds()
	return Geometry{
		Width:        b.Dx(),
		Height:       b.Dy(),
		ScaledWidth:  scaled(b.Dx(), scale),
		ScaledHeight: scaled(b.Dy(), scale),
		OriginX:      b.Min.X,
		OriginY:      b.Min.Y,
	}
}

func scaled(n int, scale float64) int {
	return max(1, int(math.Floor(float64(n)*scale)))
}
