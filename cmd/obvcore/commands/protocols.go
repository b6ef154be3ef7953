package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"obvcore/internal/domain"
	"obvcore/internal/protocols/channelcreation"
	"obvcore/internal/protocols/contactmgmt"
	"obvcore/internal/protocols/invitation"
)

func parseRemote(identity, device string) (domain.Identity, domain.DeviceID, error) {
	id, err := domain.ParseIdentity(identity)
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("identity: %w", err)
	}
	if device == "" {
		return domain.Identity{}, "", fmt.Errorf("device required")
	}
	return id, domain.DeviceID(device), nil
}

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <identity> <device>",
		Short: "Create an oblivious channel with a remote device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, device, err := parseRemote(args[0], args[1])
			if err != nil {
				return err
			}
			owned, _, err := wire.Owned(cmd.Context())
			if err != nil {
				return err
			}
			instance, err := wire.Engine.StartProtocol(cmd.Context(), channelcreation.ID,
				channelcreation.Initiate{RemoteIdentity: remote, RemoteDevice: device}, owned, domain.NewFlowID())
			if err != nil {
				return err
			}
			fmt.Printf("Channel creation started (instance %s).\n", instance)
			return nil
		},
	}
}

func inviteCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "invite <identity> <device>",
		Short: "Invite an identity to become a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			contact, device, err := parseRemote(args[0], args[1])
			if err != nil {
				return err
			}
			owned, _, err := wire.Owned(cmd.Context())
			if err != nil {
				return err
			}
			instance, err := wire.Engine.StartProtocol(cmd.Context(), invitation.ID,
				invitation.Invite{Contact: contact, Device: device, Note: note}, owned, domain.NewFlowID())
			if err != nil {
				return err
			}
			fmt.Printf("Invitation sent (instance %s).\n", instance)
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "text shown to the invitee")
	return cmd
}

func dialogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dialogs",
		Short: "List dialogs awaiting an answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			owned, _, err := wire.Owned(cmd.Context())
			if err != nil {
				return err
			}
			dialogs, err := wire.Engine.Dialogs(cmd.Context(), owned)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tPROTOCOL\tCREATED")
			for _, d := range dialogs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Kind, d.Protocol, d.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func respondCmd() *cobra.Command {
	var accept, decline bool
	cmd := &cobra.Command{
		Use:   "respond <dialog-id>",
		Short: "Accept or decline an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if accept == decline {
				return fmt.Errorf("exactly one of --accept or --decline is required")
			}
			owned, _, err := wire.Owned(cmd.Context())
			if err != nil {
				return err
			}
			err = wire.Engine.RespondToDialog(cmd.Context(), owned, domain.DialogID(args[0]),
				invitation.Response{Accept: accept}, domain.NewFlowID())
			if err != nil {
				return err
			}
			fmt.Println("Response recorded.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&accept, "accept", false, "accept the invitation")
	cmd.Flags().BoolVar(&decline, "decline", false, "decline the invitation")
	cmd.MarkFlagsMutuallyExclusive("accept", "decline")
	return cmd
}

func deleteContactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-contact <identity>",
		Short: "Delete a contact on every owned device and notify it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contact, err := domain.ParseIdentity(args[0])
			if err != nil {
				return fmt.Errorf("identity: %w", err)
			}
			owned, _, err := wire.Owned(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := wire.Engine.StartProtocol(cmd.Context(), contactmgmt.ID,
				contactmgmt.DeleteContact{Contact: contact}, owned, domain.NewFlowID()); err != nil {
				return err
			}
			fmt.Println("Contact deletion started.")
			return nil
		},
	}
}

func protocolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "protocols",
		Short: "Print the step table of every protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROTOCOL\tSTEP\tFROM\tON\tREQUIRES")
			for _, p := range wire.Protocols.Protocols() {
				for _, s := range p.StepTable() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, s.ID, s.From, s.On, s.Requires)
				}
			}
			return tw.Flush()
		},
	}
}
