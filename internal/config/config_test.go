package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/boxboard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.Retention, convey.ShouldEqual, 3)
			convey.So(cfg.TTL, convey.ShouldEqual, 6*time.Hour)
			convey.So(cfg.SchemaVersion, convey.ShouldEqual, 1)
			convey.So(cfg.FormatterVersion, convey.ShouldEqual, 1)
			convey.So(cfg.StaleWhileRevalidate, convey.ShouldBeFalse)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When retention is zero", func() {
			cfg.Retention = 0
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "retention")
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.StoreDriver = "postgres"
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "store_driver")
		})

		convey.Convey("When sqlite is selected without a path", func() {
			cfg.StoreDriver = config.DriverSQLite
			cfg.SQLitePath = " "
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the TTL is not positive", func() {
			cfg.TTL = 0
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the latency range is inverted", func() {
			cfg.ComputeLatencyMinMS = 50
			cfg.ComputeLatencyMaxMS = 10
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When several values are wrong", func() {
			cfg.Addr = ""
			cfg.BatchConcurrency = 0
			err := cfg.Validate()
			convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			convey.So(err.Error(), convey.ShouldContainSubstring, "batch_concurrency")
		})
	})
}

func TestConfig_Helpers(t *testing.T) {
	convey.Convey("Given stat keys with stray separators", t, func() {
		cfg := config.New()
		cfg.StatKeys = []string{" points", "rebounds,assists ", "", "points"}

		convey.So(cfg.CleanStatKeys(), convey.ShouldResemble, []string{"points", "rebounds", "assists"})
	})

	convey.Convey("Given a latency range in milliseconds", t, func() {
		cfg := config.New()
		cfg.ComputeLatencyMinMS = 5
		cfg.ComputeLatencyMaxMS = 20

		lo, hi := cfg.ComputeLatency()
		convey.So(lo, convey.ShouldEqual, 5*time.Millisecond)
		convey.So(hi, convey.ShouldEqual, 20*time.Millisecond)
	})
}
