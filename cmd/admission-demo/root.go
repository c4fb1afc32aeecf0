package main

import (
	"github.com/spf13/cobra"
)

const (
	defaultConfigDir = "configs"
	envPrefix        = "ADMISSION"
)

var version = "dev"

type rootOptions struct {
	configDir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "admission-demo",
		Short:         "Admission control demo server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", defaultConfigDir, "configuration directory")

	cmd.AddCommand(
		newServeCmd(opts),
		newTokenCmd(opts),
		newProbeCmd(),
	)
	return cmd
}
