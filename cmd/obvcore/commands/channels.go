package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"obvcore/internal/channel"
	"obvcore/internal/domain"
)

func channelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List oblivious channels and running protocol instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			owned, _, err := wire.Owned(ctx)
			if err != nil {
				return err
			}
			var remotes []channel.Remote
			if err := wire.DB.View(ctx, func(tx domain.Tx) error {
				remotes, err = wire.Channels.AllRemoteDevicesWithChannel(tx, owned)
				return err
			}); err != nil {
				return err
			}
			instances, err := wire.Engine.Instances(ctx, owned)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "IDENTITY\tDEVICE\tLOCAL\tSTATUS")
			for _, r := range remotes {
				status := domain.ChannelUnconfirmed
				if r.Confirmed {
					status = domain.ChannelConfirmed
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Identity, r.Device, r.LocalDevice, status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(instances) > 0 {
				fmt.Printf("\n%d protocol instance(s) running:\n", len(instances))
				for _, inst := range instances {
					fmt.Printf("  %s %s (%s)\n", inst.Protocol, inst.Instance, inst.StateID)
				}
			}
			return nil
		},
	}
}
