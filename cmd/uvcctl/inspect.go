//go:build linux

package main

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kevmo314/go-uvchost"
	"github.com/kevmo314/go-uvchost/internal/logging"
	"github.com/kevmo314/go-uvchost/pkg/controls"
	"github.com/kevmo314/go-uvchost/pkg/decode"
	"github.com/kevmo314/go-uvchost/pkg/formats"
)

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Browse formats and controls and preview the stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspector(cmd.Context())
		},
	}
}

// inspector is the state of the TUI. Its fields are only touched from the
// tview event loop, except where noted.
type inspector struct {
	ctx context.Context
	app *tview.Application
	dev *uvc.Device
	log zerolog.Logger

	nodes, formats, frames, ctrls *tview.List
	column                        *tview.Flex
	preview                       *tview.Image

	node *uvc.Node
	// capture is read by the notify callback on the stream worker.
	capture atomic.Pointer[capturer]
	stop    chan struct{}
	done    chan struct{}
	// frameCount is bumped by a bus subscriber.
	frameCount atomic.Int64
}

func runInspector(ctx context.Context) error {
	ui := &inspector{ctx: ctx, app: tview.NewApplication()}

	logText := tview.NewTextView()
	logText.SetMaxLines(200).SetChangedFunc(func() { ui.app.Draw() }).SetBorder(true).SetTitle("Log")
	lc := cfg.Logging()
	lc.Writer, lc.Format = logText, "text"
	logging.Init(lc)
	ui.log = logging.GetLogger("inspect")

	dev, err := connect(ctx, func(n *uvc.Node, size int, err error) {
		if c := ui.capture.Load(); c != nil {
			c.notify(n, size, err)
		}
	})
	if err != nil {
		return err
	}
	defer dev.Disconnect()
	ui.dev = dev

	ui.nodes = tview.NewList()
	ui.nodes.SetBorder(true).SetTitle("Streaming Interfaces")
	chains := tview.NewList().ShowSecondaryText(false)
	chains.SetBorder(true).SetTitle("Chains")
	ui.formats = tview.NewList()
	ui.formats.SetBorder(true).SetTitle("Formats")
	ui.ctrls = tview.NewList()
	ui.ctrls.SetBorder(true).SetTitle("Controls")
	ui.frames = tview.NewList()
	ui.frames.SetBorder(true).SetTitle("Frames")
	ui.preview = tview.NewImage()
	ui.preview.SetColors(256).SetDithering(tview.DitheringNone).SetBorder(true).SetTitle("Preview")

	for _, c := range dev.Chains() {
		for _, e := range c.Entities {
			chains.AddItem(fmt.Sprintf("%d %s (%s)", e.ID, e.Name, e.Kind), "", 0, nil)
		}
	}
	for _, n := range dev.Nodes() {
		cur := n.Format()
		ui.nodes.AddItem(n.Name(), fmt.Sprintf("UVC %s, %s %dx%d", dev.UVC(), cur.FourCC, cur.Width, cur.Height), 0, func() {
			ui.selectNode(n)
		})
	}

	ifaces := tview.NewFlex().SetDirection(tview.FlexRow).AddItem(ui.nodes, 0, 1, true).AddItem(chains, 0, 1, false)
	ui.column = tview.NewFlex().SetDirection(tview.FlexRow).AddItem(ui.formats, 0, 1, false).AddItem(ui.ctrls, 0, 1, false)
	flex := tview.NewFlex().
		AddItem(ifaces, 0, 1, true).
		AddItem(ui.column, 0, 1, false).
		AddItem(ui.frames, 0, 1, false).
		AddItem(ui.preview, 0, 3, false)

	unsubFrames := uvc.Subscribe(dev.Bus(), func(e uvc.FrameEvent) {
		if e.Err == nil {
			ui.frameCount.Add(1)
		}
	})
	defer unsubFrames()
	unsubDisconnect := uvc.Subscribe(dev.Bus(), func(e uvc.DisconnectEvent) {
		ui.log.Warn().Str("device", e.Device).Msg("[inspect] device disconnected")
	})
	defer unsubDisconnect()

	go ui.stats()
	go func() {
		<-ctx.Done()
		ui.app.Stop()
	}()

	err = ui.app.SetRoot(tview.NewFlex().SetDirection(tview.FlexRow).AddItem(flex, 0, 1, true).AddItem(logText, 10, 0, false), true).Run()
	ui.stopCapture()
	return err
}

// stats shows the frame rate in the preview title.
func (ui *inspector) stats() {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ui.ctx.Done():
			return
		case <-tick.C:
			fps := ui.frameCount.Swap(0)
			ui.app.QueueUpdateDraw(func() {
				ui.preview.SetTitle(fmt.Sprintf("Preview (%d fps)", fps))
			})
		}
	}
}

func (ui *inspector) selectNode(n *uvc.Node) {
	ui.node = n
	ui.formats.Clear()
	for i := 0; ; i++ {
		f, err := n.EnumFormat(i)
		if err != nil {
			break
		}
		ui.formats.AddItem(fmt.Sprintf("%s (%d frames)", f.FourCC, len(f.Frames)), f.Name, 0, func() {
			ui.selectFormat(f)
		})
	}
	ui.loadControls()
	ui.app.SetFocus(ui.formats)
}

func (ui *inspector) selectFormat(f *formats.Format) {
	ui.frames.Clear()
	for i := 0; ; i++ {
		size, err := ui.node.EnumFrameSize(f.FourCC, i)
		if err != nil {
			break
		}
		ui.frames.AddItem(fmt.Sprintf("%dx%d", size.Width, size.Height), intervals(ui.node, f.FourCC, size), 0, func() {
			ui.startCapture(uvc.PixFormat{FourCC: f.FourCC, Width: size.Width, Height: size.Height})
		})
	}
	ui.app.SetFocus(ui.frames)
}

func (ui *inspector) loadControls() {
	ui.ctrls.Clear()
	for _, id := range ui.node.Controls() {
		q, err := ui.node.QueryCtrl(ui.ctx, uvc.ClassAny, id)
		if err != nil {
			ui.log.Error().Err(err).Uint32("id", uint32(id)).Msg("[inspect] query control")
			continue
		}
		ui.ctrls.AddItem(q.Name, ui.describe(q), 0, func() {
			ui.editControl(q)
		})
	}
}

func (ui *inspector) describe(q controls.Query) string {
	s := fmt.Sprintf("%s %d..%d", q.Type, q.Minimum, q.Maximum)
	if q.Flags&controls.QueryFlagWriteOnly != 0 {
		return s
	}
	v, err := ui.node.GetCtrl(ui.ctx, uvc.ClassAny, q.ID)
	if err != nil {
		return s + " (error)"
	}
	return fmt.Sprintf("%s = %d", s, v)
}

func (ui *inspector) editControl(q controls.Query) {
	if q.Flags&controls.QueryFlagReadOnly != 0 {
		ui.log.Info().Str("control", q.Name).Msg("[inspect] read only")
		return
	}
	input := tview.NewInputField()
	input.SetLabel(fmt.Sprintf("%s (%d..%d): ", q.Name, q.Minimum, q.Maximum)).
		SetFieldWidth(10).
		SetAcceptanceFunc(tview.InputFieldInteger).
		SetDoneFunc(func(key tcell.Key) {
			if key == tcell.KeyEnter {
				v, err := strconv.ParseInt(input.GetText(), 10, 32)
				if err != nil {
					ui.log.Error().Err(err).Msg("[inspect] parse value")
				} else if err := ui.node.SetCtrl(ui.ctx, uvc.ClassAny, q.ID, int32(v)); err != nil {
					ui.log.Error().Err(err).Str("control", q.Name).Msg("[inspect] set control")
				}
			}
			ui.column.RemoveItem(input)
			ui.loadControls()
			ui.app.SetFocus(ui.ctrls)
		})
	ui.column.AddItem(input, 1, 0, false)
	ui.app.SetFocus(input)
}

func (ui *inspector) startCapture(req uvc.PixFormat) {
	ui.stopCapture()
	n := ui.node
	got, err := n.SetFormat(ui.ctx, req)
	if err != nil {
		ui.log.Error().Err(err).Msg("[inspect] set format")
		return
	}
	dec, err := decode.NewDecoder(got)
	if err != nil {
		ui.log.Warn().Err(err).Msg("[inspect] streaming without preview")
	}
	if err := n.Open(); err != nil {
		ui.log.Error().Err(err).Msg("[inspect] open")
		return
	}
	size := max(int(got.SizeImage), 2*int(got.Width)*int(got.Height))
	c := newCapturer(ui.ctx, size, 3)
	c.node = n
	ui.capture.Store(c)
	if err := c.queue(<-c.free); err != nil {
		ui.log.Error().Err(err).Msg("[inspect] start stream")
		ui.capture.Store(nil)
		_ = n.Close()
		return
	}
	ui.stop, ui.done = make(chan struct{}), make(chan struct{})
	go ui.render(c, dec, ui.stop, ui.done)
	ui.log.Info().Stringer("fourcc", got.FourCC).Uint16("width", got.Width).Uint16("height", got.Height).Msg("[inspect] streaming")
}

// stopCapture ends the preview loop, then the stream.
func (ui *inspector) stopCapture() {
	if ui.stop == nil {
		return
	}
	close(ui.stop)
	<-ui.done
	ui.stop, ui.done = nil, nil
	if c := ui.capture.Swap(nil); c != nil {
		if err := c.node.Close(); err != nil {
			ui.log.Debug().Err(err).Msg("[inspect] close")
		}
	}
}

// render decodes frames into the preview, at most one every 50ms.
func (ui *inspector) render(c *capturer, dec decode.VideoDecoder, stop, done chan struct{}) {
	defer close(done)
	var last time.Time
	for {
		select {
		case <-stop:
			return
		case f := <-c.frames:
			if f.err != nil {
				ui.log.Error().Err(f.err).Msg("[inspect] stream stopped")
				<-stop
				return
			}
			if dec != nil && time.Since(last) >= 50*time.Millisecond {
				last = time.Now()
				img, err := decode.Decode(dec, f.buf[:f.size])
				if err != nil {
					ui.log.Debug().Err(err).Msg("[inspect] decode")
				} else {
					thumb := decode.Preview(img, 320, 240)
					ui.app.QueueUpdateDraw(func() { ui.preview.SetImage(thumb) })
				}
			}
			if err := c.queue(f.buf); err != nil {
				ui.log.Error().Err(err).Msg("[inspect] requeue")
			}
		}
	}
}
