package main

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/api"
	"github.com/KRuddra/codefourrag/internal/mcp"
	"github.com/KRuddra/codefourrag/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			// stdout is reserved for MCP protocol messages
			a.logger.Info("Starting MCP server",
				zap.String("version", version),
				zap.String("build_mode", storage.BuildMode),
				zap.String("sqlite_driver", storage.DriverName))

			svc, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			server := mcp.NewServer(svc, mcp.Options{
				RequestTimeout: a.cfg.RequestTimeout,
				Logger:         a.logger.Named("mcp"),
			})

			errCh := make(chan error, 1)
			go func() { errCh <- server.Serve(ctx) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				a.logger.Info("Shutting down MCP server")
				return nil
			}
		},
	}
}

func newHTTPCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.APIAddr
			}
			if !a.cfg.LogDevelopment {
				gin.SetMode(gin.ReleaseMode)
			}

			svc, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			server := api.NewServer(svc, api.Options{
				RequestTimeout: a.cfg.RequestTimeout,
				CORSOrigins:    a.cfg.CORSOrigins,
				Logger:         a.logger.Named("api"),
			})
			return server.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default CODEFOUR_API_ADDR)")
	return cmd
}
