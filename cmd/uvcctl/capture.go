//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kevmo314/go-uvchost"
	"github.com/kevmo314/go-uvchost/internal/logging"
)

// frame is a filled buffer, or the error that ended the stream.
type frame struct {
	buf  []byte
	size int
	err  error
}

// capturer keeps one buffer queued on the node while the previous one is
// written out.
type capturer struct {
	ctx    context.Context
	node   *uvc.Node
	frames chan frame
	free   chan []byte

	mu      sync.Mutex
	pending []byte
}

func newCapturer(ctx context.Context, size, buffers int) *capturer {
	c := &capturer{
		ctx:    ctx,
		frames: make(chan frame, buffers+1),
		free:   make(chan []byte, buffers),
	}
	for i := 0; i < buffers; i++ {
		c.free <- make([]byte, size)
	}
	return c
}

// notify runs on the stream worker.
func (c *capturer) notify(n *uvc.Node, size int, err error) {
	c.mu.Lock()
	filled := c.pending
	c.pending = nil
	if err == nil {
		select {
		case next := <-c.free:
			if serr := n.SetBuf(c.ctx, uvc.BufTypeVideoCapture, next); serr != nil {
				err = serr
				c.free <- next
			} else {
				c.pending = next
			}
		default:
		}
	}
	c.mu.Unlock()
	if filled == nil && err == nil {
		return
	}
	c.frames <- frame{buf: filled, size: size, err: err}
}

// queue hands buf to the node unless a buffer is already pending.
func (c *capturer) queue(buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.free <- buf
		return nil
	}
	if err := c.node.SetBuf(c.ctx, uvc.BufTypeVideoCapture, buf); err != nil {
		c.free <- buf
		return err
	}
	c.pending = buf
	return nil
}

func captureCmd() *cobra.Command {
	var (
		output string
		count  int
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Stream frames from the first node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.GetLogger("capture")

			req, iv, err := requested()
			if err != nil {
				return err
			}

			if cfg.Metrics != "" {
				srv := &http.Server{Addr: cfg.Metrics, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Msg("[capture] metrics server")
					}
				}()
				defer srv.Close()
			}

			var c *capturer
			d, err := connect(ctx, func(n *uvc.Node, size int, err error) { c.notify(n, size, err) })
			if err != nil {
				return err
			}
			defer d.Disconnect()

			got, err := d.SetFormat(ctx, req)
			if err != nil {
				return err
			}
			if got, err := d.SetFrameInterval(ctx, iv); err == nil {
				iv = got
			} else {
				log.Warn().Err(err).Msg("[capture] frame interval not set")
			}
			log.Info().Stringer("fourcc", got.FourCC).Uint16("width", got.Width).Uint16("height", got.Height).
				Str("interval", fraction(iv)).Uint32("size", got.SizeImage).Msg("[capture] format set")

			var out io.Writer = io.Discard
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			if err := d.Open(); err != nil {
				return err
			}
			defer d.Close()

			size := int(got.SizeImage)
			if least := 2 * int(got.Width) * int(got.Height); size < least {
				size = least
			}
			c = newCapturer(ctx, size, 3)
			c.node = d.Node
			if err := c.queue(<-c.free); err != nil {
				return err
			}
			return c.run(ctx, log, out, count)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file receiving the raw frames, concatenated")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "frames to capture, 0 runs until interrupted")
	return cmd
}

func (c *capturer) run(ctx context.Context, log zerolog.Logger, out io.Writer, count int) error {
	var frames, bytes int
	start := time.Now()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for count == 0 || frames < count {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			elapsed := time.Since(start).Seconds()
			log.Info().Int("frames", frames).Float64("fps", float64(frames)/elapsed).
				Float64("mbps", float64(bytes)*8/elapsed/1e6).Msg("[capture] progress")
		case f := <-c.frames:
			if f.err != nil {
				return f.err
			}
			frames++
			bytes += f.size
			if _, err := out.Write(f.buf[:f.size]); err != nil {
				return err
			}
			if err := c.queue(f.buf); err != nil {
				return err
			}
		}
	}
	fmt.Fprintf(os.Stderr, "captured %d frames\n", frames)
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
