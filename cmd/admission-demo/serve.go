package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/KOMKZ/go-yogan-admission/application"
	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rate-limited demo endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDemo(application.Options{
				ConfigPath:   root.configDir,
				ConfigPrefix: envPrefix,
				Flags:        cmd.Flags(),
				FlagBindings: map[string]string{
					"port":      "api_server.port",
					"mode":      "api_server.mode",
					"grpc-port": "grpc.server.port",
				},
				Version: version,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return d.app.Run(ctx)
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP port")
	cmd.Flags().String("mode", "release", "gin mode: debug, release or test")
	cmd.Flags().Int("grpc-port", 9090, "gRPC port")
	return cmd
}
