package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/okian/boxboard/internal/adapters/http/api"
	app "github.com/okian/boxboard/internal/app"
	"github.com/okian/boxboard/internal/client"
	"github.com/okian/boxboard/internal/config"
	"github.com/okian/boxboard/internal/domain/freshness"
	"github.com/okian/boxboard/pkg/logger"
)

func init() {
	_ = logger.Init()
}

const reboundsFixture = `{
  "columns": [
    {"key": "player", "label": "Player"},
    {"key": "reb", "label": "REB", "format": "number"}
  ],
  "rows": [
    {"player": "Jones", "reb": %d},
    {"player": "Lee", "reb": 11}
  ],
  "default_sort": "-reb"
}`

func writeRebounds(t *testing.T, dir string, season string, reb int) {
	t.Helper()
	path := filepath.Join(dir, season, "rebounds.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	body := fmt.Sprintf(reboundsFixture, reb)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

// resetFlags returns every flag to its default so commands can run again in
// the same process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(args ...string) (string, error) {
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func useLocalStore(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("BOXBOARD_CONFIG", "")
	t.Setenv("BOXBOARD_STORE_DRIVER", config.DriverSQLite)
	t.Setenv("BOXBOARD_SQLITE_PATH", filepath.Join(dir, "boxboard.db"))
	t.Setenv("BOXBOARD_COMPUTE_DIR", filepath.Join(dir, "compute"))
	t.Setenv("BOXBOARD_LOG_LEVEL", "error")
}

func TestLocalCommands(t *testing.T) {
	Convey("Given a sqlite store and a fixture directory", t, func() {
		dir := t.TempDir()
		useLocalStore(t, dir)
		compute := filepath.Join(dir, "compute")
		writeRebounds(t, compute, "2024", 9)

		Convey("When a season is rebuilt twice with changed data", func() {
			out, err := execute("rebuild", "--season", "2024", "--format", "json")
			So(err, ShouldBeNil)

			var first freshness.BatchResult
			So(json.Unmarshal([]byte(out), &first), ShouldBeNil)
			So(first.Built, ShouldResemble, []string{"rebounds"})

			writeRebounds(t, compute, "2024", 14)
			out, err = execute("rebuild", "--season", "2024", "--stat-key", "rebounds")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Season 2024: 1 built, 0 failed")

			Convey("Then history lists both versions newest first", func() {
				out, err := execute("history", "--season", "2024", "--stat-key", "rebounds", "--format", "json")
				So(err, ShouldBeNil)

				var hist HistoryResponse
				So(json.Unmarshal([]byte(out), &hist), ShouldBeNil)
				So(hist.Versions, ShouldHaveLength, 2)
				So(hist.Versions[0].ETag, ShouldNotEqual, hist.Versions[1].ETag)
				So(hist.Versions[0].Rows, ShouldEqual, 2)

				Convey("And rollback restores the older version", func() {
					out, err := execute("rollback", "--season", "2024", "--stat-key", "rebounds",
						"--etag", `"`+hist.Versions[1].ETag+`"`, "--format", "json")
					So(err, ShouldBeNil)

					var res client.RollbackResult
					So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
					So(res.Deleted, ShouldEqual, 1)
					So(res.Restored.ETag, ShouldEqual, hist.Versions[1].ETag)

					out, err = execute("history", "--season", "2024", "--stat-key", "rebounds")
					So(err, ShouldBeNil)
					So(out, ShouldContainSubstring, hist.Versions[1].ETag+" *")
					So(out, ShouldNotContainSubstring, hist.Versions[0].ETag)
				})
			})
		})

		Convey("When a stat key has no fixture", func() {
			out, err := execute("rebuild", "--season", "2024", "--stat-key", "steals")

			Convey("Then the failure is reported and the command fails", func() {
				So(err, ShouldNotBeNil)
				So(out, ShouldContainSubstring, "failed  steals")
			})
		})

		Convey("When rolling back to an unknown etag", func() {
			_, err := execute("rebuild", "--season", "2024")
			So(err, ShouldBeNil)
			_, err = execute("rollback", "--season", "2024", "--stat-key", "rebounds", "--etag", "nope")
			So(err, ShouldNotBeNil)
		})

		Convey("When history is asked for a key never built", func() {
			out, err := execute("history", "--season", "1999", "--stat-key", "rebounds")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "No snapshots stored")
		})

		Convey("When warming seasons locally", func() {
			writeRebounds(t, compute, "2023", 7)
			out, err := execute("warm", "--season", "2023,2024")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Season 2023: 1 built")
			So(out, ShouldContainSubstring, "Season 2024: 1 built")
		})
	})
}

func TestRemoteCommands(t *testing.T) {
	Convey("Given a running server", t, func() {
		dir := t.TempDir()
		writeRebounds(t, dir, "2024", 9)

		cfg := config.New()
		cfg.ComputeDir = dir
		svc := app.New(app.WithConfig(cfg))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(context.Background(), mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When warm runs against it", func() {
			out, err := execute("warm", "--url", srv.URL, "--season", "2024", "--season", "2025",
				"--stat-key", "rebounds", "--format", "json")

			Convey("Then each season reports its own outcome", func() {
				So(err, ShouldNotBeNil)
				var resp WarmResponse
				So(json.Unmarshal([]byte(out), &resp), ShouldBeNil)
				So(resp.Seasons[2024].Built, ShouldResemble, []string{"rebounds"})
				So(resp.Seasons[2025].Failed, ShouldResemble, []string{"rebounds"})
			})
		})

		Convey("When rebuild, history and rollback go through the API", func() {
			_, err := execute("rebuild", "--url", srv.URL, "--season", "2024")
			So(err, ShouldBeNil)
			writeRebounds(t, dir, "2024", 12)
			_, err = execute("rebuild", "--url", srv.URL, "--season", "2024")
			So(err, ShouldBeNil)

			out, err := execute("history", "--url", srv.URL, "--season", "2024", "--stat-key", "rebounds", "--format", "json")
			So(err, ShouldBeNil)
			var hist HistoryResponse
			So(json.Unmarshal([]byte(out), &hist), ShouldBeNil)
			So(hist.Versions, ShouldHaveLength, 2)

			out, err = execute("rollback", "--url", srv.URL, "--season", "2024", "--stat-key", "rebounds",
				"--etag", hist.Versions[1].ETag)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "removed 1 newer version(s)")
		})

		Convey("When rolling back to an etag the server does not have", func() {
			_, err := execute("rebuild", "--url", srv.URL, "--season", "2024")
			So(err, ShouldBeNil)
			_, err = execute("rollback", "--url", srv.URL, "--season", "2024", "--stat-key", "rebounds", "--etag", "nope")

			Convey("Then the API error is surfaced", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "not_found")
			})
		})
	})
}

func TestCommandErrors(t *testing.T) {
	Convey("Given the command tree", t, func() {
		Convey("A missing required flag fails", func() {
			_, err := execute("history", "--season", "2024")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "stat-key")
		})

		Convey("An invalid server URL fails", func() {
			_, err := execute("rebuild", "--season", "1", "--url", "not a url")
			So(err, ShouldNotBeNil)
		})

		Convey("An unsupported format fails", func() {
			_, err := FormatResponse(map[string]string{"k": "v"}, "xml")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unsupported format")
		})

		Convey("Unknown types fall back to JSON", func() {
			out, err := FormatResponse(map[string]int{"n": 42}, FormatHuman)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"n": 42`)
		})
	})
}
