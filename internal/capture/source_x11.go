//go:build linux

package capture

import (
	"errors"
	"fmt"
	"image"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/shm"
	"github.com/jezek/xgb/xinerama"
	"github.com/jezek/xgb/xproto"
	"golang.org/x/sys/unix"
)

func init() {
	dialDisplay = dialX11
}

// x11Display keeps one X connection and, when the server supports
// MIT-SHM, one shared segment the size of the root window for the
// lifetime of the source.
type x11Display struct {
	conn    *xgb.Conn
	root    xproto.Window
	rootR   image.Rectangle
	screens []image.Rectangle
	seg     *shmSegment
}

type shmSegment struct {
	id   shm.Seg
	data []byte
}

func dialX11() (display, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDisplay, err)
	}
	screen := xproto.Setup(conn).DefaultScreen(conn)
	d := &x11Display{
		conn:  conn,
		root:  screen.Root,
		rootR: image.Rect(0, 0, int(screen.WidthInPixels), int(screen.HeightInPixels)),
	}
	d.screens = d.queryScreens()
	// Without MIT-SHM (remote X, some containers) grabs go through
	// GetImage on the same connection.
	d.seg, _ = attachShm(conn, d.rootR.Dx()*d.rootR.Dy()*4)
	return d, nil
}

// queryScreens returns xinerama monitors in root-window coordinates, which
// is what xdotool and robotgo move the pointer in.
func (d *x11Display) queryScreens() []image.Rectangle {
	if err := xinerama.Init(d.conn); err == nil {
		reply, err := xinerama.QueryScreens(d.conn).Reply()
		if err == nil && len(reply.ScreenInfo) > 0 {
			screens := make([]image.Rectangle, 0, len(reply.ScreenInfo))
			for _, s := range reply.ScreenInfo {
				x, y := int(s.XOrg), int(s.YOrg)
				screens = append(screens, image.Rect(x, y, x+int(s.Width), y+int(s.Height)))
			}
			return screens
		}
	}
	return []image.Rectangle{d.rootR}
}

func attachShm(conn *xgb.Conn, size int) (*shmSegment, error) {
	if size <= 0 {
		return nil, errors.New("empty root window")
	}
	if err := shm.Init(conn); err != nil {
		return nil, err
	}
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|0o600)
	if err != nil {
		return nil, err
	}
	// The segment is freed by the kernel after the last detach.
	defer unix.SysvShmCtl(id, unix.IPC_RMID, nil)

	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, err
	}
	seg, err := shm.NewSegId(conn)
	if err == nil {
		err = shm.AttachChecked(conn, seg, uint32(id), false).Check()
	}
	if err != nil {
		_ = unix.SysvShmDetach(data)
		return nil, err
	}
	return &shmSegment{id: seg, data: data}, nil
}

func (d *x11Display) Screens() []image.Rectangle { return d.screens }

func (d *x11Display) Capture(r image.Rectangle, dst *image.RGBA) error {
	fillOpaqueBlack(dst)
	in := r.Intersect(d.rootR)
	if in.Empty() {
		return nil
	}
	w, h := in.Dx(), in.Dy()
	x, y := int16(in.Min.X), int16(in.Min.Y)

	var data []byte
	if d.seg != nil {
		_, err := shm.GetImage(d.conn, xproto.Drawable(d.root), x, y, uint16(w), uint16(h),
			0xffffffff, xproto.ImageFormatZPixmap, d.seg.id, 0).Reply()
		if err != nil {
			return fmt.Errorf("shm get image: %w", err)
		}
		data = d.seg.data
	} else {
		reply, err := xproto.GetImage(d.conn, xproto.ImageFormatZPixmap, xproto.Drawable(d.root),
			x, y, uint16(w), uint16(h), 0xffffffff).Reply()
		if err != nil {
			return fmt.Errorf("get image: %w", err)
		}
		data = reply.Data
	}
	return copyBGRX(dst, in.Min.Sub(r.Min), data, w, h)
}

func (d *x11Display) Close() error {
	if d.seg != nil {
		shm.Detach(d.conn, d.seg.id)
		_ = unix.SysvShmDetach(d.seg.data)
		d.seg = nil
	}
	d.conn.Close()
	return nil
}

var errShortImage = errors.New("short image data from display")

func fillOpaqueBlack(dst *image.RGBA) {
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = 0, 0, 0, 0xff
	}
}

// copyBGRX copies w*h pixels of 32-bit BGRX data, the ZPixmap layout at
// depth 24, into dst starting at at.
func copyBGRX(dst *image.RGBA, at image.Point, data []byte, w, h int) error {
	if len(data) < w*h*4 {
		return errShortImage
	}
	for y := 0; y < h; y++ {
		row := data[y*w*4 : (y+1)*w*4]
		off := dst.PixOffset(at.X, at.Y+y)
		for x := 0; x < w; x++ {
			dst.Pix[off+0] = row[x*4+2]
			dst.Pix[off+1] = row[x*4+1]
			dst.Pix[off+2] = row[x*4+0]
			dst.Pix[off+3] = 0xff
			off += 4
		}
	}
	return nil
}
