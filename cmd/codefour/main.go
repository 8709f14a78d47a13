package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/config"
	"github.com/KRuddra/codefourrag/internal/logging"
	"github.com/KRuddra/codefourrag/internal/service"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// app carries what every subcommand needs once the root command has run
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var logLevel string

	root := &cobra.Command{
		Use:           "codefour",
		Short:         "Legal research assistant over statutes, case law and department policy",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override CODEFOUR_LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(a),
		newHTTPCmd(a),
		newIndexCmd(a),
		newAskCmd(a),
		newEmbedCheckCmd(a),
		newVersionCmd(),
	)
	return root
}

// openService builds the service from configuration and warms the keyword
// index so the first query does not pay for it
func (a *app) openService(ctx context.Context) (*service.Service, error) {
	svc, err := service.Open(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	if err := svc.WarmUp(ctx); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("warm up keyword index: %w", err)
	}
	return svc, nil
}

func (a *app) closeService(svc *service.Service) {
	if err := svc.Close(); err != nil {
		a.logger.Warn("Failed to close service", zap.Error(err))
	}
}
