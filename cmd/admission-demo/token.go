package main

import (
	"errors"
	"fmt"

	"github.com/KOMKZ/go-yogan-admission/config"
	"github.com/KOMKZ/go-yogan-admission/jwt"
	"github.com/spf13/cobra"
)

// newTokenCmd signs a token for the per-user endpoint with the configured secret
func newTokenCmd(root *rootOptions) *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for the per-user endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := config.NewLoaderBuilder().
				WithConfigPath(root.configDir).
				WithEnvPrefix(envPrefix).
				Build()
			if err != nil {
				return err
			}

			var cfg jwt.Config
			if err := loader.Unmarshal("jwt", &cfg); err != nil {
				return fmt.Errorf("read jwt config: %w", err)
			}
			if !cfg.Enabled {
				return errors.New("jwt is disabled in the configuration")
			}

			tokens, err := jwt.NewTokenManager(cfg, nil)
			if err != nil {
				return err
			}
			token, err := tokens.GenerateAccessToken(cmd.Context(), subject, jwt.Claims{})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "demo-user", "token subject (user id)")
	return cmd
}
