package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/boxboard/internal/adapters/compute"
	"github.com/okian/boxboard/internal/adapters/http/api"
	service "github.com/okian/boxboard/internal/app"
	"github.com/okian/boxboard/internal/config"
	"github.com/okian/boxboard/internal/domain/progress"
)

func newServiceMux(t *testing.T) *http.ServeMux {
	cfg := config.New()
	cfg.StatKeys = []string{"points", "down"}
	cfg.TTL = time.Hour
	cfg.RefreshWorkerCount = 2
	cfg.RefreshQueueSize = 8

	svc := service.New(service.WithConfig(cfg), service.WithProvider("points", compute.Func(points)))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)

	server := api.NewServer(svc, svc)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func topLevel(body []byte) map[string]json.RawMessage {
	var doc map[string]json.RawMessage
	_ = json.Unmarshal(body, &doc)
	return doc
}

func TestSnapshotDocuments(t *testing.T) {
	Convey("Given the API over a running service", t, func() {
		mux := newServiceMux(t)

		Convey("When one leaderboard is read", func() {
			w := serve(mux, "GET", "/leaderboards/2024/points")
			doc := topLevel(w.Body.Bytes())

			Convey("Then the body is the snapshot document itself", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(doc, ShouldContainKey, "columns_manifest")
				So(doc, ShouldContainKey, "schema_version")
				So(doc, ShouldContainKey, "rows")
				So(doc, ShouldNotContainKey, "snapshot")
				So(doc, ShouldNotContainKey, "manifest")
			})
		})

		Convey("When the whole season is read", func() {
			w := serve(mux, "GET", "/leaderboards/2024/all")
			var body struct {
				Leaderboards map[string]map[string]json.RawMessage `json:"leaderboards"`
				Missing      []string                              `json:"missing"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)

			Convey("Then every entry is a snapshot document", func() {
				So(body.Leaderboards, ShouldContainKey, "points")
				So(body.Leaderboards["points"], ShouldContainKey, "columns_manifest")
				So(body.Leaderboards["points"], ShouldNotContainKey, "etag")
				So(body.Missing, ShouldResemble, []string{"down"})
			})
		})

		Convey("When a key is refreshed synchronously", func() {
			w := serve(mux, "POST", "/leaderboards/2024/points/refresh")

			Convey("Then the new document is returned with its etag", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("ETag"), ShouldNotBeEmpty)
				So(topLevel(w.Body.Bytes()), ShouldContainKey, "columns_manifest")
			})
		})

		Convey("When the season is rebuilt in the background", func() {
			w := serve(mux, "POST", "/leaderboards/2024/rebuild?async=true")
			So(w.Code, ShouldEqual, http.StatusAccepted)

			Convey("Then progress reaches done with the failing key reported", func() {
				var p progress.Progress
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) {
					pw := serve(mux, "GET", "/leaderboards/2024/rebuild/progress")
					So(json.Unmarshal(pw.Body.Bytes(), &p), ShouldBeNil)
					if p.Done {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(p.Done, ShouldBeTrue)
				So(p.Total, ShouldEqual, 2)
				So(p.Built, ShouldResemble, []string{"points"})
				So(p.Failed, ShouldResemble, []string{"down"})
				So(p.LastError, ShouldContainSubstring, "upstream unavailable")
				So(p.Percent, ShouldEqual, 100)
			})
		})
	})
}
