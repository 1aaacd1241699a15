package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given logger initialization", t, func() {
		Convey("When initialized with defaults", func() {
			So(Init(), ShouldBeNil)
			So(Get(), ShouldNotBeNil)
			So(Sync(), ShouldBeNil)
		})

		Convey("When initialized with an unknown format", func() {
			So(Init(WithFormat("xml")), ShouldNotBeNil)
		})

		Convey("When initialized with an unknown level", func() {
			So(Init(WithLevel("loud")), ShouldNotBeNil)
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithFormat(FormatJSON), WithWriter(&buf)), ShouldBeNil)
		ctx := context.Background()

		Convey("When a named logger writes fields", func() {
			Named("store").Named("sqlite").Info(ctx, "saved",
				String("stat_key", "points"),
				Int("season", 7),
				Int64("pruned", 2),
				Bool("hit", true),
				Duration("took", time.Millisecond),
				Error(errors.New("boom")),
			)

			Convey("Then the record carries the nested name and fields", func() {
				var rec map[string]any
				So(jsoniter.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)
				So(rec["msg"], ShouldEqual, "saved")
				So(rec["logger"], ShouldEqual, "store.sqlite")
				So(rec["stat_key"], ShouldEqual, "points")
				So(rec["season"], ShouldEqual, 7.0)
				So(rec["hit"], ShouldEqual, true)
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level is raised", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Info(ctx, "hidden")
			Get().Warn(ctx, "shown")

			Convey("Then only records at or above it are written", func() {
				So(strings.Contains(buf.String(), "hidden"), ShouldBeFalse)
				So(strings.Contains(buf.String(), "shown"), ShouldBeTrue)
			})
			Reset(func() { _ = SetLevelString("info") })
		})
	})
}
