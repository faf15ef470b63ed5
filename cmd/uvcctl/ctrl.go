//go:build linux

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kevmo314/go-uvchost"
	"github.com/kevmo314/go-uvchost/pkg/controls"
)

func ctrlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctrl",
		Short: "List, read and write camera controls",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the controls of the first node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := connect(ctx, nil)
			if err != nil {
				return err
			}
			defer d.Disconnect()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tRANGE\tDEFAULT\tVALUE")
			for _, id := range d.Controls() {
				q, err := d.QueryCtrl(ctx, uvc.ClassAny, id)
				if err != nil {
					return err
				}
				value := "-"
				if q.Flags&controls.QueryFlagWriteOnly == 0 {
					if v, err := d.GetCtrl(ctx, uvc.ClassAny, id); err == nil {
						value = strconv.Itoa(int(v))
					} else {
						value = "error"
					}
				}
				fmt.Fprintf(w, "0x%08x\t%s\t%s\t%d..%d/%d\t%d\t%s\n", uint32(id), flagName(q.Name), q.Type, q.Minimum, q.Maximum, q.Step, q.Default, value)
				if q.Type == controls.TypeMenu {
					for i := int(q.Minimum); i <= int(q.Maximum); i++ {
						if e, err := d.QueryMenu(ctx, uvc.ClassAny, id, i); err == nil {
							fmt.Fprintf(w, "\t  %d: %s\t\t\t\t\n", i, e.Name)
						}
					}
				}
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "get <control>",
		Short: "Read a control by id or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := connect(ctx, nil)
			if err != nil {
				return err
			}
			defer d.Disconnect()

			id, err := lookupControl(ctx, d.Node, args[0])
			if err != nil {
				return err
			}
			v, err := d.GetCtrl(ctx, uvc.ClassAny, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}, &cobra.Command{
		Use:   "set <control> <value>",
		Short: "Write a control by id or name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v, err := strconv.ParseInt(args[1], 0, 32)
			if err != nil {
				return fmt.Errorf("value %q: %w", args[1], err)
			}
			d, err := connect(ctx, nil)
			if err != nil {
				return err
			}
			defer d.Disconnect()

			id, err := lookupControl(ctx, d.Node, args[0])
			if err != nil {
				return err
			}
			return d.SetCtrl(ctx, uvc.ClassAny, id, int32(v))
		},
	})
	return cmd
}

// lookupControl accepts a numeric id or a name as printed by ctrl list.
func lookupControl(ctx context.Context, n *uvc.Node, arg string) (controls.ID, error) {
	if v, err := strconv.ParseUint(arg, 0, 32); err == nil {
		return controls.ID(v), nil
	}
	for _, id := range n.Controls() {
		q, err := n.QueryCtrl(ctx, uvc.ClassAny, id)
		if err != nil {
			return 0, err
		}
		if flagName(q.Name) == flagName(arg) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("no control named %q", arg)
}

// flagName turns "White Balance Temperature, Auto" into
// white_balance_temperature_auto.
func flagName(name string) string {
	name = strings.ToLower(strings.ReplaceAll(name, ",", ""))
	return strings.Join(strings.Fields(name), "_")
}
