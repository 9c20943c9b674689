package main

import (
	"github.com/spf13/cobra"

	"github.com/clipnote/clipnote/config"
	"github.com/clipnote/clipnote/internal/api"
	"github.com/clipnote/clipnote/internal/auth"
	"github.com/clipnote/clipnote/internal/logging"
	"github.com/clipnote/clipnote/internal/store"
)

// app carries the dependencies each command needs, built once the config is
// loaded.
type app struct {
	cfg      *config.Config
	resolver *auth.Resolver
	client   *api.Client
}

func rootCmd() *cobra.Command {
	var cfgPath string
	a := &app{}

	root := &cobra.Command{
		Use:           "clipnote",
		Short:         "Chat with videos from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			logging.Setup(cfg.General.LogLevel)

			creds, err := store.NewFile(cfg.Storage.CredentialPath())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.resolver = auth.NewResolver(auth.NewCredentials(creds), store.NewMemory())
			a.client = api.NewClient(cfg.Backend.BaseURL, a.resolver)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default: ./config.yaml, ~/.clipnote/config.yaml)")

	root.AddCommand(chatCmd(a), statusCmd(a), loginCmd(a), logoutCmd(a), signupCmd(a), serveCmd(a))
	return root
}
