package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/boxboard/internal/client"
)

var (
	historySeason  int
	historyStatKey string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the stored versions of a leaderboard",
	Long: `List the retained snapshots of one (season, stat key), newest first.

The newest version is the one being served and is marked with '*'.

Examples:
  snapshotctl history --season 2024 --stat-key points
  snapshotctl history --season 2024 --stat-key points --format json`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historySeason, "season", 0, "Season of the leaderboard")
	historyCmd.Flags().StringVar(&historyStatKey, "stat-key", "", "Stat key of the leaderboard")
	_ = historyCmd.MarkFlagRequired("season")
	_ = historyCmd.MarkFlagRequired("stat-key")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	resp := &HistoryResponse{SeasonID: historySeason, StatKey: historyStatKey}

	if urlFlag != "" {
		c, err := remote()
		if err != nil {
			return err
		}
		versions, err := c.History(ctx, historySeason, historyStatKey)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		resp.Versions = versions
		return emit(cmd, resp)
	}

	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Stop()
	stored, err := svc.History(ctx, historySeason, historyStatKey)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	resp.Versions = make([]client.Version, 0, len(stored))
	for _, st := range stored {
		resp.Versions = append(resp.Versions, versionOf(st))
	}
	return emit(cmd, resp)
}
