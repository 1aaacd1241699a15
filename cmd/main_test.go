package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/boxboard/internal/adapters/http/api"
	"github.com/okian/boxboard/internal/adapters/http/swagger"
	app "github.com/okian/boxboard/internal/app"
	"github.com/okian/boxboard/internal/client"
	"github.com/okian/boxboard/internal/config"
	"github.com/okian/boxboard/pkg/logger"
)

func init() {
	_ = logger.Init()
}

const reboundsFixture = `{
  "columns": [
    {"key": "player", "label": "Player"},
    {"key": "reb", "label": "REB", "format": "number", "group": "Boards"},
    {"key": "oreb", "label": "OREB", "format": "number", "group": "Boards"}
  ],
  "rows": [
    {"player": "Jones", "reb": 9, "oreb": 2},
    {"player": "Lee", "reb": 11, "oreb": 4}
  ],
  "default_sort": "-reb"
}`

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When the metrics updaters run until their context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(ctx, app.New()) }, convey.ShouldNotPanic)
			convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
		})
	})
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given a served application over a fixture directory", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "2024", "rebounds.json")
		convey.So(os.MkdirAll(filepath.Dir(path), 0o755), convey.ShouldBeNil)
		convey.So(os.WriteFile(path, []byte(reboundsFixture), 0o600), convey.ShouldBeNil)

		cfg := config.New()
		cfg.StoreDriver = config.DriverSQLite
		cfg.SQLitePath = filepath.Join(dir, "boxboard.db")
		cfg.ComputeDir = dir
		cfg.RefreshWorkerCount = 1

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		svc := app.New(app.WithConfig(cfg))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		swagger.Register(ctx, mux)
		api.NewServer(svc, svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		c, err := client.New(srv.URL)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When the season is warmed without configured keys", func() {
			res, err := c.Rebuild(ctx, 2024)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the provider's keys are built and served", func() {
				convey.So(res.Built, convey.ShouldResemble, []string{"rebounds"})

				doc, notModified, err := c.Leaderboard(ctx, 2024, "rebounds", "")
				convey.So(err, convey.ShouldBeNil)
				convey.So(notModified, convey.ShouldBeFalse)
				convey.So(doc.Snapshot.Rows, convey.ShouldHaveLength, 2)
				convey.So(doc.Snapshot.Columns, convey.ShouldNotBeEmpty)

				_, notModified, err = c.Leaderboard(ctx, 2024, "rebounds", doc.ETag)
				convey.So(err, convey.ShouldBeNil)
				convey.So(notModified, convey.ShouldBeTrue)
			})

			convey.Convey("And the HTML view groups the rebound columns", func() {
				resp, err := http.Get(srv.URL + "/leaderboards/2024/rebounds/view")
				convey.So(err, convey.ShouldBeNil)
				defer func() { _ = resp.Body.Close() }()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		})

		convey.Convey("When a season without fixtures is read", func() {
			_, _, err := c.Leaderboard(ctx, 1999, "rebounds", "")

			convey.Convey("Then the build failure is reported", func() {
				apiErr, ok := err.(*client.APIError)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(apiErr.Status, convey.ShouldEqual, http.StatusBadGateway)
				convey.So(apiErr.Code, convey.ShouldEqual, "build_failed")
			})
		})

		convey.Convey("When the API document is requested", func() {
			resp, err := http.Get(srv.URL + "/openapi.yaml")
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When the configured address is empty", func() {
			_ = os.Setenv("BOXBOARD_ADDR", "")
			defer func() { _ = os.Unsetenv("BOXBOARD_ADDR") }()

			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When the sqlite path cannot be created", func() {
			file := filepath.Join(t.TempDir(), "blocker")
			convey.So(os.WriteFile(file, nil, 0o600), convey.ShouldBeNil)

			cfg := config.New()
			cfg.StoreDriver = config.DriverSQLite
			cfg.SQLitePath = filepath.Join(file, "nested", "boxboard.db")

			svc := app.New(app.WithConfig(cfg))
			convey.So(svc.Start(context.Background()), convey.ShouldNotBeNil)
		})
	})
}
