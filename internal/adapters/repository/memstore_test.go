package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/boxboard/internal/domain/snapshot"
	"github.com/okian/boxboard/internal/domain/value"
	"github.com/okian/boxboard/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var baseTime = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func makeSnapshot(season int, stat string, builtAt time.Time, pts float64) *snapshot.Snapshot {
	raw := value.Number(pts)
	return &snapshot.Snapshot{
		SchemaVersion:    snapshot.DefaultSchemaVersion,
		FormatterVersion: snapshot.DefaultFormatterVersion,
		SeasonID:         season,
		StatKey:          stat,
		BuiltAt:          builtAt,
		TableID:          "leaderboard-" + stat,
		Columns:          []snapshot.Column{{Key: "pts", Label: "PTS", Format: value.FormatNumber}},
		Rows: []snapshot.Row{{
			Rank:    "1",
			Metrics: map[string]snapshot.Metric{"pts": {Text: value.Display(raw, value.FormatNumber), Raw: &raw}},
		}},
	}
}

func manifestFor(s *snapshot.Snapshot) snapshot.BuildManifest {
	return snapshot.BuildManifest{
		BuildID:  uuid.New(),
		SeasonID: s.SeasonID,
		StatKey:  s.StatKey,
		Builder:  "test",
		BuiltAt:  s.BuiltAt,
	}
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a fresh memory store with retention 2", t, func() {
		ctx := context.Background()
		store := NewMemoryStore(WithRetention(2))
		Reset(func() { _ = store.Close() })

		Convey("When nothing is stored", func() {
			_, err := store.Latest(ctx, 1, "points")

			Convey("Then Latest reports not found", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a snapshot is saved", func() {
			s := makeSnapshot(1, "points", baseTime, 10)
			saved, err := store.Save(ctx, s, manifestFor(s))
			So(err, ShouldBeNil)

			Convey("Then Latest returns an equal copy with the same etag", func() {
				got, err := store.Latest(ctx, 1, "points")
				So(err, ShouldBeNil)
				So(got.ETag, ShouldEqual, saved.ETag)
				So(got.ID, ShouldEqual, saved.ID)
				So(got.Snapshot, ShouldNotPointTo, s)
				So(got.Snapshot.Rows[0].Metrics["pts"].Raw.Float(), ShouldEqual, 10.0)
				So(got.Manifest.Builder, ShouldEqual, "test")
			})

			Convey("Then mutating the caller's copy does not touch the stored one", func() {
				s.Rows[0].Metrics["pts"] = snapshot.Metric{Text: "99"}
				got, _ := store.Latest(ctx, 1, "points")
				So(got.Snapshot.Rows[0].Metrics["pts"].Text, ShouldEqual, "10")
			})
		})

		Convey("When more snapshots than the retention are saved", func() {
			var etags []string
			for i := 0; i < 4; i++ {
				s := makeSnapshot(1, "points", baseTime.Add(time.Duration(i)*time.Minute), float64(i))
				st, err := store.Save(ctx, s, manifestFor(s))
				So(err, ShouldBeNil)
				etags = append(etags, st.ETag)
			}

			Convey("Then only the newest two remain, newest first", func() {
				list, err := store.List(ctx, 1, "points")
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 2)
				So(list[0].ETag, ShouldEqual, etags[3])
				So(list[1].ETag, ShouldEqual, etags[2])
				So(store.Count(), ShouldEqual, 2)
			})

			Convey("Then DeleteAfter restores an older version", func() {
				n, err := store.DeleteAfter(ctx, 1, "points", etags[2])
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				got, _ := store.Latest(ctx, 1, "points")
				So(got.ETag, ShouldEqual, etags[2])
				So(store.Count(), ShouldEqual, 1)
			})

			Convey("Then DeleteAfter with an unknown etag fails", func() {
				_, err := store.DeleteAfter(ctx, 1, "points", etags[0])
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an older build is saved after a newer one", func() {
			newer := makeSnapshot(1, "points", baseTime.Add(time.Hour), 2)
			older := makeSnapshot(1, "points", baseTime, 1)
			_, _ = store.Save(ctx, newer, manifestFor(newer))
			_, _ = store.Save(ctx, older, manifestFor(older))

			Convey("Then Latest is still ordered by built_at", func() {
				got, _ := store.Latest(ctx, 1, "points")
				So(got.Snapshot.BuiltAt.Equal(newer.BuiltAt), ShouldBeTrue)
			})
		})

		Convey("When several stat keys exist for a season", func() {
			for _, stat := range []string{"points", "rebounds"} {
				s := makeSnapshot(3, stat, baseTime, 1)
				_, _ = store.Save(ctx, s, manifestFor(s))
			}
			other := makeSnapshot(4, "points", baseTime, 1)
			_, _ = store.Save(ctx, other, manifestFor(other))

			Convey("Then LatestForSeason returns one per key for that season only", func() {
				got, err := store.LatestForSeason(ctx, 3)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got["rebounds"].Snapshot.SeasonID, ShouldEqual, 3)
			})
		})

		Convey("When saves race on one key", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					s := makeSnapshot(1, "points", baseTime.Add(time.Duration(i)*time.Second), float64(i))
					_, _ = store.Save(ctx, s, manifestFor(s))
				}(i)
			}
			wg.Wait()

			Convey("Then retention still holds", func() {
				list, _ := store.List(ctx, 1, "points")
				So(list, ShouldHaveLength, 2)
				So(list[0].Snapshot.BuiltAt.Equal(baseTime.Add(19*time.Second)), ShouldBeTrue)
			})
		})

		Convey("When saving an invalid snapshot", func() {
			_, err := store.Save(ctx, &snapshot.Snapshot{}, snapshot.BuildManifest{})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, snapshot.ErrInvalidPayload), ShouldBeTrue)
			})
		})

		Convey("When the store is closed", func() {
			So(store.Close(), ShouldBeNil)
			s := makeSnapshot(1, "points", baseTime, 1)
			_, err := store.Save(ctx, s, manifestFor(s))

			Convey("Then saves fail", func() {
				So(errors.Is(err, ErrClosed), ShouldBeTrue)
			})
		})
	})

	Convey("Given a retention below one", t, func() {
		store := NewMemoryStore(WithRetention(0))
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			s := makeSnapshot(1, "points", baseTime.Add(time.Duration(i)*time.Minute), 1)
			_, _ = store.Save(ctx, s, manifestFor(s))
		}
		list, _ := store.List(ctx, 1, "points")
		So(list, ShouldHaveLength, 1)
	})
}
