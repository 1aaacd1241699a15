package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/boxboard/internal/domain/freshness"
	"github.com/okian/boxboard/pkg/logger"
)

func TestMetricsMiddleware(t *testing.T) {
	convey.Convey("Given a handler wrapped by the metrics middleware", t, func() {
		var seen *responseWriter
		h := MetricsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = w.(*responseWriter)
			writeError(r.Context(), w, errors.Join(freshness.ErrBuildFailed, errors.New("provider down")))
		}, "leaderboard")

		convey.Convey("When the handler writes an API error", func() {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/leaderboards/1/points", nil))

			convey.Convey("Then the status and error code are captured", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusBadGateway)
				convey.So(seen, convey.ShouldNotBeNil)
				convey.So(seen.statusCode, convey.ShouldEqual, http.StatusBadGateway)
				convey.So(seen.errorCode, convey.ShouldEqual, codeBuildFailed)
			})
		})
	})

	convey.Convey("errorKind names failures without an API code", t, func() {
		convey.So(errorKind(http.StatusServiceUnavailable), convey.ShouldEqual, codeUnavailable)
		convey.So(errorKind(http.StatusInternalServerError), convey.ShouldEqual, codeInternal)
		convey.So(errorKind(http.StatusNotFound), convey.ShouldEqual, codeNotFound)
		convey.So(errorKind(http.StatusMethodNotAllowed), convey.ShouldEqual, codeBadRequest)
		convey.So(errorKind(statusClientClosedRequest), convey.ShouldEqual, codeCanceled)
	})
}

func TestWriteErrorCanceled(t *testing.T) {
	convey.Convey("Given a request whose caller went away during a build", t, func() {
		var buf bytes.Buffer
		convey.So(logger.Init(logger.WithWriter(&buf)), convey.ShouldBeNil)
		defer func() { _ = logger.Init() }()

		var seen *responseWriter
		h := MetricsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = w.(*responseWriter)
			writeError(r.Context(), w, errors.Join(freshness.ErrBuildFailed, context.Canceled))
		}, "leaderboard")
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/leaderboards/1/points", nil))

		convey.Convey("Then it gets its own code and is not logged as a failure", func() {
			convey.So(rec.Code, convey.ShouldEqual, statusClientClosedRequest)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"code":"canceled"`)
			convey.So(seen.errorCode, convey.ShouldEqual, codeCanceled)
			convey.So(buf.String(), convey.ShouldNotContainSubstring, "request failed")
		})
	})

	convey.Convey("Given a failure that is not a cancellation", t, func() {
		var buf bytes.Buffer
		convey.So(logger.Init(logger.WithWriter(&buf)), convey.ShouldBeNil)
		defer func() { _ = logger.Init() }()

		rec := httptest.NewRecorder()
		writeError(context.Background(), rec, errors.New("disk full"))

		convey.Convey("Then it is logged as a 500", func() {
			convey.So(rec.Code, convey.ShouldEqual, http.StatusInternalServerError)
			convey.So(buf.String(), convey.ShouldContainSubstring, "request failed")
		})
	})
}
