package uvc

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevmo314/go-uvchost/pkg/controls"
	"github.com/kevmo314/go-uvchost/pkg/descriptors"
	"github.com/kevmo314/go-uvchost/pkg/descriptors/descriptorstest"
	"github.com/kevmo314/go-uvchost/pkg/formats"
	"github.com/kevmo314/go-uvchost/pkg/host/hosttest"
	"github.com/kevmo314/go-uvchost/pkg/requests"
	"github.com/kevmo314/go-uvchost/pkg/topology"
	"github.com/kevmo314/go-uvchost/pkg/transfers"
)

const (
	processingUnit = 2
	streamingIface = 1
)

var probeValue = uint16(requests.VideoStreamingSelectorProbe) << 8

// newHost answers the probe range requests of a UVC 1.10 streaming
// interface.
func newHost() *hosttest.Controller {
	h := hosttest.NewController()
	size := descriptors.ProbeSize(0x0110)
	h.Set(uint8(requests.RequestCodeGetMin), probeValue, streamingIface, make([]byte, size))
	h.Set(uint8(requests.RequestCodeGetMax), probeValue, streamingIface, make([]byte, size))
	return h
}

func connect(t *testing.T, raw []byte, opts Options) (*Device, *hosttest.Controller) {
	t.Helper()
	h := newHost()
	opts.Log = zerolog.Nop()
	opts.Descriptors = raw
	if opts.Name == "" {
		opts.Name = t.Name()
	}
	d, err := Connect(context.Background(), h, opts)
	require.NoError(t, err)
	t.Cleanup(d.Disconnect)
	return d, h
}

// brightness answers the brightness control of the processing unit with a
// 0..10 range in steps of 2 and the given current value.
func brightness(h *hosttest.Controller, cur int16) {
	sel := uint16(descriptors.ProcessingUnitBrightnessControl) << 8
	reg := func(code requests.RequestCode, v int16) {
		h.Set(uint8(code), sel, processingUnit<<8, binary.LittleEndian.AppendUint16(nil, uint16(v)))
	}
	reg(requests.RequestCodeGetMin, 0)
	reg(requests.RequestCodeGetMax, 10)
	reg(requests.RequestCodeGetRes, 2)
	reg(requests.RequestCodeGetDef, 4)
	reg(requests.RequestCodeGetCur, cur)
}

func TestConnect(t *testing.T) {
	d, _ := connect(t, descriptorstest.Camera(), Options{})

	assert.Equal(t, descriptors.BinaryCodedDecimal(0x0110), d.UVC())
	require.Len(t, d.Chains(), 1)
	require.Len(t, d.Nodes(), 1)
	assert.Same(t, d.Nodes()[0], d.Node)
	assert.Same(t, d.Chains()[0], d.Chain())
	assert.Contains(t, d.Controls(), controls.IDBrightness)

	f := d.Format()
	assert.Equal(t, formats.FourCCYUYV, f.FourCC)
	assert.Equal(t, uint16(640), f.Width)
	assert.Equal(t, uint16(480), f.Height)
	assert.Equal(t, uint32(1280), f.BytesPerLine)
	assert.Equal(t, Fraction{Numerator: 1, Denominator: 30}, d.FrameInterval())
}

func TestConnectReadsDescriptor(t *testing.T) {
	h := newHost()
	h.Set(0x06, 0x0200, 0, descriptorstest.BulkCamera())
	d, err := Connect(context.Background(), h, Options{Log: zerolog.Nop(), Name: t.Name()})
	require.NoError(t, err)
	defer d.Disconnect()
	assert.True(t, d.Stream().Bulk())
}

func TestConnectMalformed(t *testing.T) {
	raw := descriptorstest.Camera()
	_, err := Connect(context.Background(), newHost(), Options{Log: zerolog.Nop(), Descriptors: raw[:len(raw)-3]})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestConnectUnlinkedStream(t *testing.T) {
	raw := descriptorstest.Config(
		descriptorstest.ControlInterface(0),
		descriptorstest.Header(0x0110, 48000000, 1),
		descriptorstest.InputTerminal(1, 0x0201),
		descriptorstest.OutputTerminal(4, 0x0101, 1),
		descriptorstest.StreamingInterface(1, 0, 0),
		descriptorstest.InputHeader(1, 0x81, 9),
		descriptorstest.MJPEGFormat(1, 1),
		descriptorstest.Frame(0x07, 1, 640, 480, 614400, 333333, 333333),
	)
	_, err := Connect(context.Background(), newHost(), Options{Log: zerolog.Nop(), Descriptors: raw})
	assert.ErrorIs(t, err, topology.ErrNoChain)
}

type countingCloser struct{ n int }

func (c *countingCloser) Close() error {
	c.n++
	return nil
}

func TestFailedConnectReleases(t *testing.T) {
	unlinked := descriptorstest.Config(
		descriptorstest.ControlInterface(0),
		descriptorstest.Header(0x0110, 48000000, 1),
		descriptorstest.InputTerminal(1, 0x0201),
		descriptorstest.OutputTerminal(4, 0x0101, 1),
		descriptorstest.StreamingInterface(1, 0, 0),
		descriptorstest.InputHeader(1, 0x81, 9),
		descriptorstest.MJPEGFormat(1, 1),
		descriptorstest.Frame(0x07, 1, 640, 480, 614400, 333333, 333333),
	)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		raw  []byte
		err  error
	}{
		{"controls init", cancelled, descriptorstest.Camera(), context.Canceled},
		{"no streaming node", context.Background(), unlinked, topology.ErrNoChain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &countingCloser{}
			d, err := connectWith(tt.ctx, newHost(), Options{Log: zerolog.Nop(), Name: t.Name(), Descriptors: tt.raw}, c)
			assert.ErrorIs(t, err, tt.err)
			assert.Nil(t, d)
			assert.Equal(t, 1, c.n)
		})
	}
}

func TestOpenSingleOpener(t *testing.T) {
	d, _ := connect(t, descriptorstest.Camera(), Options{})

	require.NoError(t, d.Open())
	assert.ErrorIs(t, d.Open(), ErrBusy)
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Close(), ErrInvalidArgument)
	require.NoError(t, d.Open())
	require.NoError(t, d.Close())
}

func TestEnumFormat(t *testing.T) {
	d, _ := connect(t, descriptorstest.Camera(), Options{})

	f, err := d.EnumFormat(0)
	require.NoError(t, err)
	assert.Equal(t, formats.FourCCYUYV, f.FourCC)
	f, err = d.EnumFormat(1)
	require.NoError(t, err)
	assert.Equal(t, formats.FourCCMJPEG, f.FourCC)
	_, err = d.EnumFormat(2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnumFrameSizeSkipsDuplicates(t *testing.T) {
	raw := descriptorstest.Config(
		descriptorstest.ControlInterface(0),
		descriptorstest.Header(0x0110, 48000000, 1),
		descriptorstest.InputTerminal(1, 0x0201),
		descriptorstest.OutputTerminal(4, 0x0101, 1),
		descriptorstest.StreamingInterface(1, 0, 0),
		descriptorstest.InputHeader(1, 0x81, 4),
		descriptorstest.UncompressedFormat(1, 3, descriptorstest.GUIDYUY2, 16),
		descriptorstest.Frame(0x05, 1, 640, 480, 0, 333333, 333333),
		descriptorstest.Frame(0x05, 2, 640, 480, 0, 666666, 666666),
		descriptorstest.StepwiseFrame(0x05, 3, 320, 240, 0, 333333, 333333, 1000000, 333333),
		descriptorstest.StreamingInterface(1, 1, 1),
		descriptorstest.Endpoint(0x81, 0x05, 1024),
	)
	d, _ := connect(t, raw, Options{})

	var sizes []FrameSize
	for i := 0; ; i++ {
		s, err := d.EnumFrameSize(formats.FourCCYUYV, i)
		if err != nil {
			assert.ErrorIs(t, err, ErrNotFound)
			break
		}
		sizes = append(sizes, s)
	}
	assert.Equal(t, []FrameSize{{640, 480}, {320, 240}}, sizes)

	iv, err := d.EnumFrameInterval(formats.FourCCYUYV, 320, 240, 0)
	require.NoError(t, err)
	assert.True(t, iv.Stepwise)
	assert.Equal(t, Fraction{Numerator: 1, Denominator: 30}, iv.Min)
	assert.Equal(t, Fraction{Numerator: 1, Denominator: 10}, iv.Max)
	assert.Equal(t, Fraction{Numerator: 1, Denominator: 30}, iv.Step)
	_, err = d.EnumFrameInterval(formats.FourCCYUYV, 320, 240, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = d.EnumFrameSize(formats.FourCCMJPEG, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEnumFrameIntervalDiscrete(t *testing.T) {
	d, _ := connect(t, descriptorstest.Camera(), Options{})

	want := []Fraction{{Numerator: 1, Denominator: 30}, {Numerator: 1, Denominator: 15}, {Numerator: 1, Denominator: 10}}
	for i, w := range want {
		iv, err := d.EnumFrameInterval(formats.FourCCYUYV, 640, 480, i)
		require.NoError(t, err, "interval %d", i)
		assert.False(t, iv.Stepwise)
		assert.Equal(t, w, iv.Discrete, "interval %d", i)
	}
	_, err := d.EnumFrameInterval(formats.FourCCYUYV, 640, 480, len(want))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.EnumFrameInterval(formats.FourCCYUYV, 800, 600, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGetSetCtrl(t *testing.T) {
	d, h := connect(t, descriptorstest.Camera(), Options{})
	brightness(h, 6)
	ctx := context.Background()

	v, err := d.GetCtrl(ctx, ClassUser, controls.IDBrightness)
	require.NoError(t, err)
	assert.Equal(t, int32(6), v)

	require.NoError(t, d.SetCtrl(ctx, ClassUser, controls.IDBrightness, 3))
	v, err = d.GetCtrl(ctx, ClassAny, controls.IDBrightness)
	require.NoError(t, err)
	assert.Equal(t, int32(4), v)

	sel := uint16(descriptors.ProcessingUnitBrightnessControl) << 8
	assert.Equal(t, []byte{4, 0}, h.Register(uint8(requests.RequestCodeSetCur), sel, processingUnit<<8))

	assert.ErrorIs(t, d.SetCtrl(ctx, ClassUser, controls.IDBrightness, 11), ErrRange)
	assert.ErrorIs(t, d.SetCtrl(ctx, ClassCamera, controls.IDBrightness, 2), ErrInvalidArgument)
	v, err = d.GetCtrl(ctx, ClassUser, controls.IDBrightness)
	require.NoError(t, err)
	assert.Equal(t, int32(4), v)

	q, err := d.QueryCtrl(ctx, ClassUser, controls.IDBrightness)
	require.NoError(t, err)
	assert.Equal(t, int32(0), q.Minimum)
	assert.Equal(t, int32(10), q.Maximum)
	assert.Equal(t, int32(2), q.Step)
	assert.Equal(t, int32(4), q.Default)
}

func TestSetCtrlRejectedRollsBack(t *testing.T) {
	d, h := connect(t, descriptorstest.Camera(), Options{})
	brightness(h, 6)
	ctx := context.Background()
	sel := uint16(descriptors.ProcessingUnitBrightnessControl) << 8
	h.Stall(uint8(requests.RequestCodeSetCur), sel, processingUnit<<8)

	var perr *requests.ProtocolError
	assert.ErrorAs(t, d.SetCtrl(ctx, ClassUser, controls.IDBrightness, 8), &perr)

	v, err := d.GetCtrl(ctx, ClassUser, controls.IDBrightness)
	require.NoError(t, err)
	assert.Equal(t, int32(6), v)
}

func TestSetBufValidates(t *testing.T) {
	d, _ := connect(t, descriptorstest.Camera(), Options{})
	ctx := context.Background()
	buf := make([]byte, 2*640*480)

	assert.ErrorIs(t, d.SetBuf(ctx, BufTypeVideoCapture, buf), ErrInvalidArgument, "not open")
	require.NoError(t, d.Open())
	defer d.Close()
	assert.ErrorIs(t, d.SetBuf(ctx, BufType(2), buf), ErrInvalidArgument)
	assert.ErrorIs(t, d.SetBuf(ctx, BufTypeVideoCapture, buf[:len(buf)-1]), ErrInvalidArgument)
	assert.Equal(t, transfers.StateIdle, d.Stream().State())
}

func TestStreamFrames(t *testing.T) {
	sizes := make(chan int, 4)
	d, h := connect(t, descriptorstest.Camera(), Options{
		Notify: func(n *Node, size int, err error) {
			if err == nil {
				sizes <- size
			}
		},
	})
	events := make(chan FrameEvent, 4)
	unsub := Subscribe(d.Bus(), func(e FrameEvent) { events <- e })
	defer unsub()

	ctx := context.Background()
	require.NoError(t, d.Open())
	buf := make([]byte, 2*640*480)
	require.NoError(t, d.SetBuf(ctx, BufTypeVideoCapture, buf))

	pipes := h.OpenPipes()
	require.Len(t, pipes, 1)
	assert.Equal(t, uint8(1), h.AltSetting(streamingIface))
	assert.Equal(t, 512, pipes[0].Endpoint.PacketSize)

	require.NoError(t, pipes[0].Complete(0, []byte{2, 0x82, 'o', 'k'}))
	select {
	case n := <-sizes:
		assert.Equal(t, 2, n)
		assert.Equal(t, []byte("ok"), buf[:n])
	case <-time.After(time.Second):
		t.Fatal("no frame")
	}
	select {
	case e := <-events:
		assert.Equal(t, d.Nodes()[0].Name(), e.Node)
		assert.Equal(t, 2, e.Size)
		assert.NoError(t, e.Err)
	case <-time.After(time.Second):
		t.Fatal("no frame event")
	}

	_, err := d.SetFormat(ctx, PixFormat{FourCC: formats.FourCCMJPEG, Width: 1280, Height: 720})
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, d.Close())
	assert.Empty(t, h.OpenPipes())
	assert.Equal(t, transfers.StateIdle, d.Stream().State())
	assert.Equal(t, uint8(0), h.AltSetting(streamingIface))
}

func TestSetFormatPublishesEvent(t *testing.T) {
	d, _ := connect(t, descriptorstest.Camera(), Options{})
	events := make(chan FormatEvent, 2)
	unsub := Subscribe(d.Bus(), func(e FormatEvent) { events <- e })
	defer unsub()

	got, err := d.SetFormat(context.Background(), PixFormat{FourCC: formats.FourCCMJPEG, Width: 1280, Height: 720})
	require.NoError(t, err)
	assert.Equal(t, formats.FourCCMJPEG, got.FourCC)
	assert.Equal(t, uint32(1843200), got.SizeImage)
	assert.Equal(t, got, d.Format())

	select {
	case e := <-events:
		assert.Equal(t, got, e.Format)
		assert.Equal(t, Fraction{Numerator: 1, Denominator: 30}, e.Interval)
	case <-time.After(time.Second):
		t.Fatal("no format event")
	}

	iv, err := d.SetFrameInterval(context.Background(), Fraction{Numerator: 1, Denominator: 15})
	require.NoError(t, err)
	assert.Equal(t, Fraction{Numerator: 1, Denominator: 15}, iv)
}

func TestDisconnectWaitsForLastClose(t *testing.T) {
	d, _ := connect(t, descriptorstest.Camera(), Options{})
	events := make(chan DisconnectEvent, 1)
	unsub := Subscribe(d.Bus(), func(e DisconnectEvent) { events <- e })
	defer unsub()

	require.NoError(t, d.Open())
	d.Disconnect()

	select {
	case e := <-events:
		assert.Equal(t, d.Name(), e.Device)
	case <-time.After(time.Second):
		t.Fatal("no disconnect event")
	}
	assert.True(t, d.Disconnected())
	select {
	case <-d.Done():
		t.Fatal("torn down while open")
	case <-time.After(10 * time.Millisecond):
	}

	_, err := d.GetCtrl(context.Background(), ClassUser, controls.IDBrightness)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.ErrorIs(t, d.Open(), ErrNoDevice)

	require.NoError(t, d.Close())
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("not torn down after last close")
	}
}

func TestStreamDeviceLossDisconnects(t *testing.T) {
	errs := make(chan error, 1)
	d, h := connect(t, descriptorstest.Camera(), Options{
		Notify: func(n *Node, size int, err error) {
			if err != nil {
				errs <- err
			}
		},
	})
	events := make(chan DisconnectEvent, 1)
	unsub := Subscribe(d.Bus(), func(e DisconnectEvent) { events <- e })
	defer unsub()

	require.NoError(t, d.Open())
	require.NoError(t, d.SetBuf(context.Background(), BufTypeVideoCapture, make([]byte, 2*640*480)))
	pipes := h.OpenPipes()
	require.Len(t, pipes, 1)
	require.NoError(t, pipes[0].Fail(0, fmt.Errorf("usbfs: %w", ErrNoDevice)))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrIO)
		assert.ErrorIs(t, err, ErrNoDevice)
	case <-time.After(time.Second):
		t.Fatal("no stream error")
	}
	require.Eventually(t, d.Disconnected, time.Second, time.Millisecond)
	select {
	case e := <-events:
		assert.Equal(t, d.Name(), e.Device)
	case <-time.After(time.Second):
		t.Fatal("no disconnect event")
	}
	select {
	case <-d.Done():
		t.Fatal("torn down while open")
	case <-time.After(10 * time.Millisecond):
	}

	require.NoError(t, d.Close())
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("not torn down after last close")
	}
}

func TestTeardownClosesBus(t *testing.T) {
	d, _ := connect(t, descriptorstest.Camera(), Options{})
	events := make(chan DisconnectEvent, 1)
	unsub := Subscribe(d.Bus(), func(e DisconnectEvent) { events <- e })
	defer unsub()

	d.Disconnect()
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("not torn down")
	}
	select {
	case e := <-events:
		assert.Equal(t, d.Name(), e.Device)
	case <-time.After(time.Second):
		t.Fatal("disconnect event lost at teardown")
	}
	assert.True(t, d.bus.closed.Load())

	time.Sleep(2 * flush)
	assert.NotPanics(t, func() {
		d.bus.Publish(FrameEvent{Device: d.Name()})
		Subscribe(d.Bus(), func(FrameEvent) {})()
		assert.NoError(t, d.bus.Close())
	})
}

func TestBusErrorDisconnects(t *testing.T) {
	d, h := connect(t, descriptorstest.Camera(), Options{})
	brightness(h, 6)
	h.Err = fmt.Errorf("usbfs: %w", ErrNoDevice)

	_, err := d.GetCtrl(context.Background(), ClassUser, controls.IDBrightness)
	assert.ErrorIs(t, err, ErrNoDevice)
	require.Eventually(t, d.Disconnected, time.Second, time.Millisecond)
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("not torn down")
	}
}
