package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/boxboard/internal/domain/freshness"
)

var (
	rebuildSeason   int
	rebuildStatKeys []string
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Force-rebuild the snapshots of a season",
	Long: `Rebuild snapshots from the compute provider regardless of their age.

Every configured stat key is rebuilt when --stat-key is omitted. With no keys
configured, the keys the compute provider has data for are used.

Examples:
  snapshotctl rebuild --season 2024
  snapshotctl rebuild --season 2024 --stat-key points --stat-key rebounds
  snapshotctl rebuild --season 2024 --url http://localhost:9080`,
	RunE: runRebuild,
}

func init() {
	rebuildCmd.Flags().IntVar(&rebuildSeason, "season", 0, "Season to rebuild")
	rebuildCmd.Flags().StringSliceVar(&rebuildStatKeys, "stat-key", nil, "Stat keys to rebuild (repeatable)")
	_ = rebuildCmd.MarkFlagRequired("season")
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var (
		res freshness.BatchResult
		err error
	)
	if urlFlag != "" {
		c, cerr := remote()
		if cerr != nil {
			return cerr
		}
		res, err = c.Rebuild(ctx, rebuildSeason, rebuildStatKeys...)
	} else {
		svc, serr := openService(ctx)
		if serr != nil {
			return serr
		}
		defer svc.Stop()
		res, err = svc.Rebuild(ctx, rebuildSeason, rebuildStatKeys...)
	}
	if err != nil {
		return fmt.Errorf("rebuild season %d: %w", rebuildSeason, err)
	}

	if err := emit(cmd, &res); err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d of %d stat keys failed", len(res.Failed), len(res.Failed)+len(res.Built))
	}
	return nil
}
