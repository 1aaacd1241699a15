package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/boxboard/internal/client"
	"github.com/okian/boxboard/internal/domain/freshness"
)

var (
	warmSeasons     []int
	warmStatKeys    []string
	warmConcurrency int
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Rebuild several seasons",
	Long: `Warm the cache by rebuilding every stat key of several seasons.

Against a server (--url) seasons are rebuilt concurrently; locally they run
one after another. A failing season does not stop the others.

Examples:
  snapshotctl warm --season 2023 --season 2024
  snapshotctl warm --season 2022,2023,2024 --url http://localhost:9080 --concurrency 2`,
	RunE: runWarm,
}

func init() {
	warmCmd.Flags().IntSliceVar(&warmSeasons, "season", nil, "Seasons to rebuild (repeatable)")
	warmCmd.Flags().StringSliceVar(&warmStatKeys, "stat-key", nil, "Stat keys to rebuild (repeatable)")
	warmCmd.Flags().IntVar(&warmConcurrency, "concurrency", 4, "Seasons rebuilt in parallel against a server")
	_ = warmCmd.MarkFlagRequired("season")
	rootCmd.AddCommand(warmCmd)
}

func runWarm(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	resp := &WarmResponse{
		Seasons: make(map[int]freshness.BatchResult, len(warmSeasons)),
		Errors:  make(map[int]string),
	}

	if urlFlag != "" {
		c, err := client.New(urlFlag, client.WithConcurrency(warmConcurrency))
		if err != nil {
			return err
		}
		ok, failed, err := c.Warm(ctx, warmSeasons, warmStatKeys...)
		if err != nil {
			return fmt.Errorf("warm: %w", err)
		}
		resp.Seasons = ok
		for s, e := range failed {
			resp.Errors[s] = e.Error()
		}
	} else {
		svc, err := openService(ctx)
		if err != nil {
			return err
		}
		defer svc.Stop()
		for _, s := range warmSeasons {
			res, err := svc.Rebuild(ctx, s, warmStatKeys...)
			if err != nil {
				resp.Errors[s] = err.Error()
				continue
			}
			resp.Seasons[s] = res
		}
	}

	if err := emit(cmd, resp); err != nil {
		return err
	}
	failed := len(resp.Errors)
	for _, res := range resp.Seasons {
		if len(res.Failed) > 0 {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d seasons had failures", failed, len(warmSeasons))
	}
	return nil
}
