//go:build linux

// Command uvcctl lists, inspects and captures from UVC cameras through
// usbfs, without the kernel uvcvideo driver.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kevmo314/go-uvchost"
	"github.com/kevmo314/go-uvchost/internal/config"
	"github.com/kevmo314/go-uvchost/internal/logging"
	"github.com/kevmo314/go-uvchost/pkg/formats"
)

var cfg = config.Default()

func main() {
	root := &cobra.Command{
		Use:           "uvcctl",
		Short:         "Drive UVC cameras from user space",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Load(&cfg, cmd); err != nil {
				return err
			}
			logging.Init(cfg.Logging())
			return nil
		},
	}
	config.BindFlags(root.PersistentFlags(), &cfg)
	root.AddCommand(listCmd(), infoCmd(), ctrlCmd(), captureCmd(), inspectCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "uvcctl:", err)
		os.Exit(1)
	}
}

// connect opens the configured device. notify may be nil.
func connect(ctx context.Context, notify func(*uvc.Node, int, error)) (*uvc.Device, error) {
	if cfg.Device == "" {
		return nil, errors.New("no device, set --device or " + config.EnvPrefix + "DEVICE")
	}
	return uvc.ConnectPath(ctx, cfg.Device, uvc.Options{
		Log:     logging.GetLogger("uvc"),
		Name:    strings.ReplaceAll(strings.TrimPrefix(cfg.Device, "/dev/bus/usb/"), string(filepath.Separator), "-"),
		Buffers: cfg.Buffers,
		Timeout: cfg.Timeout,
		Notify:  notify,
	})
}

// requested is the format asked for by the configuration.
func requested() (uvc.PixFormat, uvc.Fraction, error) {
	if len(cfg.Format) != 4 {
		return uvc.PixFormat{}, uvc.Fraction{}, fmt.Errorf("format %q is not a FourCC", cfg.Format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > 0xffff || cfg.Height > 0xffff {
		return uvc.PixFormat{}, uvc.Fraction{}, fmt.Errorf("invalid size %dx%d", cfg.Width, cfg.Height)
	}
	iv, err := parseFraction(cfg.Interval)
	if err != nil {
		return uvc.PixFormat{}, uvc.Fraction{}, err
	}
	return uvc.PixFormat{
		FourCC: formats.NewFourCC(cfg.Format),
		Width:  uint16(cfg.Width),
		Height: uint16(cfg.Height),
	}, iv, nil
}

func parseFraction(s string) (uvc.Fraction, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		den = "1"
	}
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return uvc.Fraction{}, fmt.Errorf("interval %q: %w", s, err)
	}
	d, err := strconv.ParseUint(den, 10, 32)
	if err != nil || d == 0 || n == 0 {
		return uvc.Fraction{}, fmt.Errorf("interval %q is not a positive fraction", s)
	}
	return uvc.Fraction{Numerator: uint32(n), Denominator: uint32(d)}, nil
}
