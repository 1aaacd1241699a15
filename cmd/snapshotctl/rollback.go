package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/boxboard/internal/client"
)

var (
	rollbackSeason  int
	rollbackStatKey string
	rollbackETag    string
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore an earlier snapshot version",
	Long: `Delete every version of a leaderboard stored after the one with --etag,
so that version is served again. Use 'snapshotctl history' to find etags.

Examples:
  snapshotctl rollback --season 2024 --stat-key points --etag 9f2c...`,
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().IntVar(&rollbackSeason, "season", 0, "Season of the leaderboard")
	rollbackCmd.Flags().StringVar(&rollbackStatKey, "stat-key", "", "Stat key of the leaderboard")
	rollbackCmd.Flags().StringVar(&rollbackETag, "etag", "", "ETag of the version to restore")
	_ = rollbackCmd.MarkFlagRequired("season")
	_ = rollbackCmd.MarkFlagRequired("stat-key")
	_ = rollbackCmd.MarkFlagRequired("etag")
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	etag := strings.Trim(strings.TrimSpace(rollbackETag), `"`)
	if etag == "" {
		return errors.New("--etag must not be empty")
	}

	if urlFlag != "" {
		c, err := remote()
		if err != nil {
			return err
		}
		res, err := c.Rollback(ctx, rollbackSeason, rollbackStatKey, etag)
		if err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		return emit(cmd, &res)
	}

	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Stop()
	restored, deleted, err := svc.Rollback(ctx, rollbackSeason, rollbackStatKey, etag)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return emit(cmd, &client.RollbackResult{Deleted: deleted, Restored: versionOf(restored)})
}
