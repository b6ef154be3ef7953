package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"obvcore/internal/app"
)

var (
	home       string
	configPath string
	passphrase string
	wire       *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:          "obvcore",
		Short:        "Oblivious channel and protocol engine CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".obvcore")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			if configPath == "" {
				configPath = filepath.Join(home, app.ConfigFilename)
			}
			cfg, err := app.LoadConfig(configPath, home)
			if err != nil {
				return err
			}
			wire, err = app.NewWire(cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			return wire.Close()
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.obvcore)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <home>/obvcore.yaml)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the key file")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		connectCmd(),
		inviteCmd(),
		dialogsCmd(),
		respondCmd(),
		deleteContactCmd(),
		sendCmd(),
		syncCmd(),
		channelsCmd(),
		protocolsCmd(),
		gcCmd(),
	)
	return root.Execute()
}
