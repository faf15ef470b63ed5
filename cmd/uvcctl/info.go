//go:build linux

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kevmo314/go-uvchost"
	"github.com/kevmo314/go-uvchost/pkg/formats"
)

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the chains and streaming formats of a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer d.Disconnect()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "UVC %s, %d chain(s)\n", d.UVC(), len(d.Chains()))
			for _, c := range d.Chains() {
				fmt.Fprintf(out, "chain %s\n", c)
				for _, e := range c.Entities {
					fmt.Fprintf(out, "  %3d  %-16s %s\n", e.ID, e.Kind, e.Name)
				}
			}
			for _, n := range d.Nodes() {
				printNode(out, n)
			}
			return nil
		},
	}
}

func printNode(out io.Writer, n *uvc.Node) {
	cur := n.Format()
	fmt.Fprintf(out, "\nnode %s: %s %dx%d @ %s\n", n.Name(), cur.FourCC, cur.Width, cur.Height, fraction(n.FrameInterval()))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()
	for i := 0; ; i++ {
		f, err := n.EnumFormat(i)
		if err != nil {
			break
		}
		fmt.Fprintf(w, "  [%d]\t%s\t%s\t%s\n", f.Index, f.FourCC, f.Name, f.Colorspace)
		for j := 0; ; j++ {
			size, err := n.EnumFrameSize(f.FourCC, j)
			if err != nil {
				break
			}
			fmt.Fprintf(w, "\t%dx%d\t%s\t\n", size.Width, size.Height, intervals(n, f.FourCC, size))
		}
	}
}

func intervals(n *uvc.Node, fcc formats.FourCC, size uvc.FrameSize) string {
	var s string
	for i := 0; ; i++ {
		iv, err := n.EnumFrameInterval(fcc, size.Width, size.Height, i)
		if err != nil {
			return s
		}
		if iv.Stepwise {
			return fmt.Sprintf("%s..%s step %s", fraction(iv.Min), fraction(iv.Max), fraction(iv.Step))
		}
		if s != "" {
			s += " "
		}
		s += fraction(iv.Discrete)
	}
}

func fraction(f uvc.Fraction) string {
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}
