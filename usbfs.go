//go:build linux

package uvc

import (
	"context"

	"github.com/kevmo314/go-uvchost/pkg/descriptors"
	"github.com/kevmo314/go-uvchost/pkg/host/usbfs"
	"github.com/kevmo314/go-uvchost/pkg/requests"
)

// ConnectPath opens a usbfs device node, claims its video interfaces and
// connects to it. The node is closed when the device is torn down.
func ConnectPath(ctx context.Context, path string, opts Options) (*Device, error) {
	u, err := usbfs.Open(path, opts.Log)
	if err != nil {
		return nil, err
	}
	return connectUSB(ctx, u, opts)
}

// ConnectFD is ConnectPath for an already opened usbfs descriptor, as handed
// out by Android's UsbManager.
func ConnectFD(ctx context.Context, fd uintptr, opts Options) (*Device, error) {
	u, err := usbfs.Wrap(int(fd), opts.Log)
	if err != nil {
		return nil, err
	}
	return connectUSB(ctx, u, opts)
}

// connectUSB claims the video interfaces of u and connects to it. From the
// claim on, u belongs to the device and a failed connect closes it there.
func connectUSB(ctx context.Context, u *usbfs.Device, opts Options) (*Device, error) {
	if err := claim(ctx, u, &opts); err != nil {
		_ = u.Close()
		return nil, err
	}
	return connectWith(ctx, u, opts, u)
}

func claim(ctx context.Context, u *usbfs.Device, opts *Options) error {
	if opts.Descriptors == nil {
		raw, err := requests.ReadConfigDescriptor(ctx, u)
		if err != nil {
			return err
		}
		opts.Descriptors = raw
	}
	cfg, err := descriptors.ParseConfiguration(opts.Descriptors)
	if err != nil {
		return err
	}
	var ifaces []uint8
	seen := make(map[uint8]bool)
	for _, intf := range cfg.Interfaces {
		if (intf.IsVideoControl() || intf.IsVideoStreaming()) && !seen[intf.Number] {
			seen[intf.Number] = true
			ifaces = append(ifaces, intf.Number)
		}
	}
	return u.Claim(ifaces...)
}
