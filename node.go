package uvc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kevmo314/go-uvchost/pkg/controls"
	"github.com/kevmo314/go-uvchost/pkg/formats"
	"github.com/kevmo314/go-uvchost/pkg/transfers"
)

type (
	PixFormat = transfers.PixFormat
	Fraction  = formats.Fraction
	FourCC    = formats.FourCC
)

// FrameSize is one entry of EnumFrameSize.
type FrameSize struct {
	Width, Height uint16
}

// FrameInterval is one entry of EnumFrameInterval. Stepwise entries fill
// Min, Max and Step, discrete ones Discrete.
type FrameInterval struct {
	Stepwise       bool
	Discrete       Fraction
	Min, Max, Step Fraction
}

// Node is the capture API of one streaming interface and the chain it is
// linked to.
type Node struct {
	dev    *Device
	chain  *Chain
	stream *transfers.Stream
	name   string
	notify func(*Node, int, error)

	// mu serializes Open and Close. SetBuf only reads opened, since it is
	// called from Notify while Close waits for the worker.
	mu     sync.Mutex
	opened atomic.Bool
}

func (n *Node) Name() string { return n.name }

func (n *Node) Chain() *Chain { return n.chain }

func (n *Node) Stream() *transfers.Stream { return n.stream }

// Open takes the node for exclusive use. A second Open fails with ErrBusy
// until Close.
func (n *Node) Open() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dev.Disconnected() {
		return ErrNoDevice
	}
	if n.opened.Load() {
		return fmt.Errorf("%s already open: %w", n.name, ErrBusy)
	}
	if !n.dev.refs.get() {
		return ErrNoDevice
	}
	n.opened.Store(true)
	return nil
}

// Close stops any active stream and releases the node.
func (n *Node) Close() error {
	n.mu.Lock()
	if !n.opened.Load() {
		n.mu.Unlock()
		return fmt.Errorf("%s not open: %w", n.name, ErrInvalidArgument)
	}
	err := n.stream.Cancel()
	n.opened.Store(false)
	n.mu.Unlock()
	n.dev.refs.put()
	return err
}

func (n *Node) check() error {
	if n.dev.Disconnected() {
		return ErrNoDevice
	}
	return nil
}

// EnumFormat returns format i in descriptor order.
func (n *Node) EnumFormat(i int) (*formats.Format, error) {
	if i < 0 || i >= len(n.stream.Formats) {
		return nil, fmt.Errorf("format %d: %w", i, ErrNotFound)
	}
	return n.stream.Formats[i], nil
}

// EnumFrameSize returns frame size i of the format with the given FourCC.
// Consecutive frames of the same size are listed once.
func (n *Node) EnumFrameSize(fcc FourCC, i int) (FrameSize, error) {
	f := n.stream.FormatByFourCC(fcc)
	if f == nil {
		return FrameSize{}, fmt.Errorf("format %s: %w", fcc, ErrInvalidArgument)
	}
	var prev *formats.Frame
	index := 0
	for _, frame := range f.Frames {
		if prev != nil && prev.Width == frame.Width && prev.Height == frame.Height {
			continue
		}
		prev = frame
		if index == i {
			return FrameSize{frame.Width, frame.Height}, nil
		}
		index++
	}
	return FrameSize{}, fmt.Errorf("frame size %d of %s: %w", i, fcc, ErrNotFound)
}

// EnumFrameInterval returns interval i of the first width x height frame of
// the format. A stepwise frame has a single entry.
func (n *Node) EnumFrameInterval(fcc FourCC, width, height uint16, i int) (FrameInterval, error) {
	f := n.stream.FormatByFourCC(fcc)
	if f == nil {
		return FrameInterval{}, fmt.Errorf("format %s: %w", fcc, ErrInvalidArgument)
	}
	var frame *formats.Frame
	for _, fr := range f.Frames {
		if fr.Width == width && fr.Height == height {
			frame = fr
			break
		}
	}
	if frame == nil {
		return FrameInterval{}, fmt.Errorf("frame %dx%d of %s: %w", width, height, fcc, ErrInvalidArgument)
	}
	if frame.Stepwise {
		if i != 0 {
			return FrameInterval{}, fmt.Errorf("interval %d: %w", i, ErrNotFound)
		}
		return FrameInterval{
			Stepwise: true,
			Min:      formats.IntervalFraction(frame.Intervals[0]),
			Max:      formats.IntervalFraction(frame.Intervals[1]),
			Step:     formats.IntervalFraction(frame.Intervals[2]),
		}, nil
	}
	if i < 0 || i >= len(frame.Intervals) {
		return FrameInterval{}, fmt.Errorf("interval %d: %w", i, ErrNotFound)
	}
	return FrameInterval{Discrete: formats.IntervalFraction(frame.Intervals[i])}, nil
}

// Format returns the current selection.
func (n *Node) Format() PixFormat {
	format, frame := n.stream.Current()
	return PixFormat{
		FourCC:       format.FourCC,
		Width:        frame.Width,
		Height:       frame.Height,
		BytesPerLine: format.BytesPerLine(frame.Width),
		SizeImage:    n.stream.Probe().MaxVideoFrameSize,
		Colorspace:   format.Colorspace,
	}
}

// FrameInterval returns the negotiated time per frame.
func (n *Node) FrameInterval() Fraction {
	return formats.IntervalFraction(n.stream.Probe().FrameInterval)
}

// TryFormat negotiates the closest format to f without committing it.
func (n *Node) TryFormat(ctx context.Context, f PixFormat) (PixFormat, error) {
	if err := n.check(); err != nil {
		return PixFormat{}, err
	}
	got, err := n.stream.TryFormat(ctx, f, false)
	return got, n.dev.lost(err)
}

// SetFormat negotiates and commits the closest format to f. It fails with
// ErrBusy while streaming.
func (n *Node) SetFormat(ctx context.Context, f PixFormat) (PixFormat, error) {
	if err := n.check(); err != nil {
		return PixFormat{}, err
	}
	got, err := n.stream.TryFormat(ctx, f, true)
	if err != nil {
		return PixFormat{}, n.dev.lost(err)
	}
	n.dev.bus.Publish(FormatEvent{Device: n.dev.name, Node: n.name, Format: got, Interval: n.FrameInterval(), Time: time.Now()})
	return got, nil
}

// SetFrameInterval selects the supported interval closest to f and returns
// the one the device accepted.
func (n *Node) SetFrameInterval(ctx context.Context, f Fraction) (Fraction, error) {
	if err := n.check(); err != nil {
		return Fraction{}, err
	}
	got, err := n.stream.SetFrameInterval(ctx, f.Numerator, f.Denominator)
	if err != nil {
		return Fraction{}, n.dev.lost(err)
	}
	n.dev.bus.Publish(FormatEvent{Device: n.dev.name, Node: n.name, Format: n.Format(), Interval: got, Time: time.Now()})
	return got, nil
}

// Controls lists the control ids of the node's chain.
func (n *Node) Controls() []controls.ID {
	return n.chain.Controls.IDs()
}

func (n *Node) QueryCtrl(ctx context.Context, class controls.Class, id controls.ID) (controls.Query, error) {
	if err := n.check(); err != nil {
		return controls.Query{}, err
	}
	q, err := n.chain.Controls.Query(ctx, class, id)
	return q, n.dev.lost(err)
}

func (n *Node) QueryMenu(ctx context.Context, class controls.Class, id controls.ID, index int) (controls.MenuEntry, error) {
	if err := n.check(); err != nil {
		return controls.MenuEntry{}, err
	}
	e, err := n.chain.Controls.QueryMenu(ctx, class, id, index)
	return e, n.dev.lost(err)
}

// GetCtrl reads control id. Any staged value is discarded.
func (n *Node) GetCtrl(ctx context.Context, class controls.Class, id controls.ID) (int32, error) {
	if err := n.check(); err != nil {
		return 0, err
	}
	cc := n.chain.Controls
	cc.Begin()
	v, err := cc.Get(ctx, class, id)
	if rerr := cc.Commit(ctx, true); err == nil {
		err = rerr
	}
	return v, n.dev.lost(err)
}

// SetCtrl writes control id. A value the device rejects is rolled back.
func (n *Node) SetCtrl(ctx context.Context, class controls.Class, id controls.ID, v int32) error {
	if err := n.check(); err != nil {
		return err
	}
	cc := n.chain.Controls
	cc.Begin()
	if err := cc.Set(ctx, class, id, v); err != nil {
		_ = cc.Commit(ctx, true)
		return n.dev.lost(err)
	}
	return n.dev.lost(cc.Commit(ctx, false))
}

// SetBuf hands dst to the stream as the destination of the next frame and
// starts streaming when idle. dst must hold at least 2 bytes per pixel of
// the current frame. Only the opener may stream.
func (n *Node) SetBuf(ctx context.Context, typ BufType, dst []byte) error {
	if typ != BufTypeVideoCapture {
		return fmt.Errorf("buffer type %d: %w", typ, ErrInvalidArgument)
	}
	if err := n.check(); err != nil {
		return err
	}
	if !n.opened.Load() {
		return fmt.Errorf("%s not open: %w", n.name, ErrInvalidArgument)
	}
	return n.dev.lost(n.stream.SetBuf(ctx, dst))
}

// Cancel stops streaming. No frame is reported once it returns.
func (n *Node) Cancel() error {
	return n.stream.Cancel()
}

func (n *Node) frameDone(size int, err error) {
	n.dev.bus.Publish(FrameEvent{Device: n.dev.name, Node: n.name, Size: size, Err: err, Time: time.Now()})
	if n.notify != nil {
		n.notify(n, size, err)
	}
	if err != nil {
		n.dev.lost(err)
	}
}
