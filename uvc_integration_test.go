//go:build integration && linux

package uvc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kevmo314/go-uvchost/pkg/formats"
)

// TestCaptureMJPEG needs a camera at UVC_TEST_DEVICE, a usbfs node such as
// /dev/bus/usb/001/002.
func TestCaptureMJPEG(t *testing.T) {
	path := os.Getenv("UVC_TEST_DEVICE")
	if path == "" {
		t.Skip("UVC_TEST_DEVICE not set")
	}
	frames := make(chan int, 1)
	d, err := ConnectPath(context.Background(), path, Options{
		Log: zerolog.New(zerolog.NewTestWriter(t)),
		Notify: func(n *Node, size int, err error) {
			if err != nil {
				t.Errorf("stream error: %v", err)
				return
			}
			select {
			case frames <- size:
			default:
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Disconnect()

	pix, err := d.SetFormat(context.Background(), PixFormat{FourCC: formats.FourCCMJPEG, Width: 640, Height: 480})
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("negotiated format: %+v", pix)

	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	buf := make([]byte, 2*int(pix.Width)*int(pix.Height))
	if err := d.SetBuf(context.Background(), BufTypeVideoCapture, buf); err != nil {
		t.Fatal(err)
	}

	select {
	case n := <-frames:
		if n < 2 || buf[0] != 0xff || buf[1] != 0xd8 {
			t.Errorf("frame of %d bytes does not start with a JPEG SOI marker", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no frame within 5s")
	}
}
