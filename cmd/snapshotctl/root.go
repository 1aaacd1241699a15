package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	app "github.com/okian/boxboard/internal/app"
	"github.com/okian/boxboard/internal/client"
	"github.com/okian/boxboard/internal/config"
	"github.com/okian/boxboard/pkg/logger"
)

var (
	// formatFlag selects human or json output
	formatFlag string
	// urlFlag sends commands to a running server instead of the local store
	urlFlag string
)

var rootCmd = &cobra.Command{
	Use:   "snapshotctl",
	Short: "Operate the leaderboard snapshot cache",
	Long: `snapshotctl rebuilds, lists and rolls back cached leaderboard snapshots.

Without --url commands open the store named by the BOXBOARD_* configuration
(or the file in BOXBOARD_CONFIG) and run against it directly. With --url they
are sent to a running boxboard server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", string(FormatHuman), "Output format (human, json)")
	rootCmd.PersistentFlags().StringVar(&urlFlag, "url", "", "Base URL of a running boxboard server")
}

// openService loads configuration and starts a local service over the
// configured store. The caller must Stop it.
func openService(ctx context.Context) (*app.Service, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	// stdout carries command output
	if err := logger.Init(
		logger.WithFormat(cfg.LogFormat),
		logger.WithLevel(cfg.LogLevel),
		logger.WithWriter(os.Stderr),
	); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if cfg.StoreDriver == config.DriverMemory {
		logger.Get().Named("snapshotctl").Warn(ctx, "memory store selected; results are discarded on exit")
	}
	svc := app.New(app.WithConfig(cfg), app.WithLogger(logger.Get().Named("service")))
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func remote() (*client.Client, error) {
	return client.New(urlFlag)
}

// emit writes resp to the command's output in the selected format.
func emit(cmd *cobra.Command, resp any) error {
	out, err := FormatResponse(resp, OutputFormat(formatFlag))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
