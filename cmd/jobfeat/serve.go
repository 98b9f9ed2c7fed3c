package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dshills/jobfeat/internal/mcp"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().Str("version", version).Msg("jobfeat MCP server starting")

			server, err := mcp.NewServer(a.cfg)
			if err != nil {
				return err
			}

			// Set up graceful shutdown
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				errChan <- server.Serve(ctx)
			}()

			select {
			case sig := <-sigChan:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
				cancel()
			case err := <-errChan:
				if err != nil {
					return err
				}
			}

			log.Info().Msg("server stopped")
			return nil
		},
	}
}
