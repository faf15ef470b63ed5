//go:build linux

package main

import (
	"fmt"

	usb "github.com/kevmo314/go-usb"
	"github.com/spf13/cobra"

	"github.com/kevmo314/go-uvchost/internal/logging"
)

const classVideo = 0x0e

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List USB devices with a video interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.GetLogger("list")
			devices, err := usb.DeviceList()
			if err != nil {
				return fmt.Errorf("list devices: %w", err)
			}
			out := cmd.OutOrStdout()
			found := 0
			for _, dev := range devices {
				handle, err := dev.Open()
				if err != nil {
					log.Debug().Err(err).Str("path", dev.Path).Msg("[list] could not open")
					continue
				}
				config, err := handle.GetActiveConfigDescriptor()
				handle.Close()
				if err != nil {
					log.Debug().Err(err).Str("path", dev.Path).Msg("[list] no active configuration")
					continue
				}
				var video []int
				for _, iface := range config.Interfaces {
					for _, alt := range iface.AltSettings {
						if alt.InterfaceClass == classVideo {
							video = append(video, int(alt.InterfaceNumber))
							break
						}
					}
				}
				if len(video) == 0 {
					continue
				}
				found++
				fmt.Fprintf(out, "%s  %04x:%04x  USB %d.%02d", dev.Path,
					dev.Descriptor.VendorID, dev.Descriptor.ProductID,
					dev.Descriptor.USBVersion>>8, dev.Descriptor.USBVersion&0xff)
				if s := dev.SysfsStrings; s != nil && (s.Manufacturer != "" || s.Product != "") {
					fmt.Fprintf(out, "  %s %s", s.Manufacturer, s.Product)
				}
				fmt.Fprintf(out, "  video interfaces %v\n", video)
			}
			if found == 0 {
				fmt.Fprintln(out, "no video devices found")
			}
			return nil
		},
	}
}
