package compute

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/boxboard/internal/domain/normalize"
	"github.com/okian/boxboard/pkg/logger"
)

func init() {
	_ = logger.Init()
}

const pointsJSON = `{
  "config": {"columns": [
    {"key": "player", "label": "Player"},
    {"key": "pts", "label": "PTS", "format": "number"},
    {"key": "fg_pct", "label": "FG%", "format": "percent", "group": "Shooting"}
  ]},
  "leaderboard": [
    ["Smith", 12, "45.5%"],
    ["Lee", 30, "50%"]
  ],
  "team_totals": {"label": "Team", "player": "Team", "pts": 42, "fg_pct": "48.1%"}
}`

const reboundsYAML = `
columns:
  - key: player
  - key: reb
    format: number
rows:
  - player: Jones
    reb: 9
  - player: Lee
    reb: 11
default_sort: -reb
`

func writeFixture(t *testing.T, dir string, season, name, body string) {
	t.Helper()
	path := filepath.Join(dir, season, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestFileProvider(t *testing.T) {
	Convey("Given a fixture directory", t, func() {
		dir := t.TempDir()
		writeFixture(t, dir, "2024", "points.json", pointsJSON)
		writeFixture(t, dir, "2024", "rebounds.yaml", reboundsYAML)
		writeFixture(t, dir, "2024", "broken.json", `{"rows": 5}`)
		writeFixture(t, dir, "2024", "garbage.json", `{not json`)
		writeFixture(t, dir, "2024", "README.txt", "ignored")
		ctx := context.Background()
		p := NewFileProvider(dir)

		Convey("When a JSON fixture with positional rows is computed", func() {
			res, err := p.Compute(ctx, 2024, "points")

			Convey("Then columns, rows and totals are decoded", func() {
				So(err, ShouldBeNil)
				So(res.Columns, ShouldHaveLength, 3)
				So(res.Columns[2].Group, ShouldEqual, "Shooting")
				So(res.Rows, ShouldHaveLength, 2)
				_, positional := res.Rows[0].(normalize.PositionalRow)
				So(positional, ShouldBeTrue)
				So(res.TotalsLabel, ShouldEqual, "Team")
			})

			Convey("Then it normalizes into a snapshot", func() {
				s, err := normalize.New().Normalize(2024, "points", res)
				So(err, ShouldBeNil)
				So(s.Rows[0].Metrics["fg_pct"].Raw.Float(), ShouldAlmostEqual, 0.455, 1e-9)
				So(s.Rows[1].Metrics["pts"].Raw.Float(), ShouldEqual, 30.0)
				So(s.Totals.Label, ShouldEqual, "Team")
			})
		})

		Convey("When a YAML fixture with keyed rows is computed", func() {
			res, err := p.Compute(ctx, 2024, "rebounds")

			Convey("Then the rows and default sort are decoded", func() {
				So(err, ShouldBeNil)
				So(res.Rows, ShouldHaveLength, 2)
				So(res.DefaultSort, ShouldHaveLength, 1)
				So(res.DefaultSort[0].Column, ShouldEqual, "reb")
				So(string(res.DefaultSort[0].Direction), ShouldEqual, "desc")
			})
		})

		Convey("When the fixture is missing", func() {
			_, err := p.Compute(ctx, 2024, "steals")
			So(errors.Is(err, ErrNoFixture), ShouldBeTrue)
		})

		Convey("When the fixture has the wrong shape", func() {
			_, err := p.Compute(ctx, 2024, "broken")
			So(errors.Is(err, normalize.ErrInvalidComputeResult), ShouldBeTrue)
		})

		Convey("When the fixture is not parseable", func() {
			_, err := p.Compute(ctx, 2024, "garbage")
			So(errors.Is(err, ErrUnreadableInput), ShouldBeTrue)
		})

		Convey("When the stat key tries to escape the directory", func() {
			_, err := p.Compute(ctx, 2024, "../secrets")
			So(errors.Is(err, ErrInvalidStatKey), ShouldBeTrue)
		})

		Convey("When listing stat keys", func() {
			keys, err := p.StatKeys(2024)
			So(err, ShouldBeNil)
			So(keys, ShouldResemble, []string{"broken", "garbage", "points", "rebounds"})

			none, err := p.StatKeys(1999)
			So(err, ShouldBeNil)
			So(none, ShouldBeEmpty)
		})
	})

	Convey("Given a provider with simulated latency", t, func() {
		dir := t.TempDir()
		writeFixture(t, dir, "1", "points.json", pointsJSON)
		p := NewFileProvider(dir, WithLatencyRange(200*time.Millisecond, 300*time.Millisecond), WithSeed(7))

		Convey("When the caller gives up early", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			_, err := p.Compute(ctx, 1, "points")

			Convey("Then the context error is returned", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}

func TestFunc(t *testing.T) {
	Convey("Func adapts a function to a provider", t, func() {
		var gotSeason int
		f := Func(func(_ context.Context, seasonID int, statKey string) (*normalize.ComputeResult, error) {
			gotSeason = seasonID
			return &normalize.ComputeResult{TableID: statKey}, nil
		})
		res, err := f.Compute(context.Background(), 9, "points")
		So(err, ShouldBeNil)
		So(res.TableID, ShouldEqual, "points")
		So(gotSeason, ShouldEqual, 9)
	})
}
