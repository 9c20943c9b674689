package main

import (
	"github.com/spf13/cobra"

	"github.com/clipnote/clipnote/internal/server"
)

func serveCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Server
			if err := cfg.Validate(); err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return server.Run(server.Config{
				Addr:            cfg.Addr,
				JWTSecret:       cfg.JWTSecret,
				RedisAddr:       cfg.RedisAddr,
				RedisPassword:   cfg.RedisPassword,
				RedisDB:         cfg.RedisDB,
				PrepStep:        cfg.PrepStep,
				GuestDailyLimit: cfg.GuestDailyLimit,
				UserDailyLimit:  cfg.UserDailyLimit,
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
