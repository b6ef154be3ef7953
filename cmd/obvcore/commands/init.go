package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"obvcore/internal/app"
	"obvcore/internal/crypto"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate the owned identity and store its keys securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			ctx := cmd.Context()
			if _, _, err := wire.Owned(ctx); !errors.Is(err, app.ErrNoIdentity) {
				if err == nil {
					return fmt.Errorf("an identity already exists in %s", home)
				}
				return err
			}
			keys, device, err := wire.CreateIdentity(ctx, passphrase)
			if err != nil {
				return err
			}
			defer crypto.WipeOwnedKeys(&keys)
			if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
				if err := wire.Config.Save(configPath); err != nil {
					return err
				}
			}
			fmt.Printf("Identity created.\nIdentity: %s\nDevice: %s\nFingerprint: %s\n",
				keys.Identity, device, crypto.FingerprintIdentity(keys.Identity))
			return nil
		},
	}
}
