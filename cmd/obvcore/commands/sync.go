package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"obvcore/internal/dispatch"
	"obvcore/internal/domain"
)

func syncCmd() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Post queued envelopes and process those waiting on the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			owned, _, err := wire.Owned(ctx)
			if err != nil {
				return err
			}
			errs := wire.Engine.Resume(ctx)
			n, err := wire.Sync(ctx, owned, batch)
			errs = multierr.Append(errs, err)
			fmt.Printf("Processed %d envelope(s).\n", n)
			return errs
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 64, "envelopes fetched per round")
	return cmd
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <identity> <message>",
		Short: "Send an application message to every confirmed device of a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			contact, err := domain.ParseIdentity(args[0])
			if err != nil {
				return fmt.Errorf("identity: %w", err)
			}
			owned, _, err := wire.Owned(cmd.Context())
			if err != nil {
				return err
			}
			msg := domain.LogicalMessage{Kind: domain.LogicalApplication, Application: []byte(args[1])}
			ids, err := wire.Engine.PostMessage(cmd.Context(), owned, msg,
				dispatch.AllConfirmedChannelsWithContact{Contact: contact}, domain.NewFlowID())
			if err != nil {
				return err
			}
			fmt.Printf("Sent to %d device(s).\n", len(ids))
			return nil
		},
	}
}

func gcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove expired key tombstones and stale parked envelopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := wire.Engine.CollectGarbage(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d entries.\n", n)
			return nil
		},
	}
}
