package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"obvcore/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity, device and fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, device, err := wire.Owned(cmd.Context())
			if err != nil {
				return err
			}
			if passphrase != "" {
				keys, err := wire.KeyFile.LoadOwnedKeys(passphrase)
				if err != nil {
					return err
				}
				match := keys.Identity == id
				crypto.WipeOwnedKeys(&keys)
				if !match {
					return fmt.Errorf("key file %s belongs to another identity", wire.KeyFile.Path())
				}
			}
			fmt.Printf("Identity: %s\nDevice: %s\nFingerprint: %s\n", id, device, crypto.FingerprintIdentity(id))
			return nil
		},
	}
}
