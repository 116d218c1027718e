package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/histsync/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.PageSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.SourceDriver, convey.ShouldEqual, config.DriverSQLite)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("HISTSYNC_PAGE_SIZE", "500")
			_ = os.Setenv("HISTSYNC_WORKER_COUNT", "4")
			_ = os.Setenv("HISTSYNC_SOURCE_DRIVER", "memory")
			_ = os.Setenv("HISTSYNC_VALUE_FILTER", "value > 0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.PageSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.SourceDriver, convey.ShouldEqual, config.DriverMemory)
				convey.So(cfg.ValueFilter, convey.ShouldEqual, "value > 0")
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			path := writeConfigFile(t, `
page_size: 250
point_query: "TANK*,PUMP?"
point_attributes:
  pointsource: R
  compressing: 0
search_max_attempts: 7
`)

			convey.Convey("And the path comes from HISTSYNC_CONFIG", func() {
				_ = os.Setenv("HISTSYNC_CONFIG", path)
				defer clearConfigEnvVars()

				cfg, err := config.Load(ctx, "")

				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.PageSize, convey.ShouldEqual, 250)
				convey.So(cfg.PointQuery, convey.ShouldEqual, "TANK*,PUMP?")
				convey.So(cfg.PointAttributes["pointsource"], convey.ShouldEqual, "R")
				convey.So(cfg.SearchMaxAttempts, convey.ShouldEqual, 7)
				convey.So(cfg.SearchLastValidMaxAttempts, convey.ShouldEqual, 15)
			})

			convey.Convey("And env vars override the file", func() {
				_ = os.Setenv("HISTSYNC_PAGE_SIZE", "99")
				defer clearConfigEnvVars()

				cfg, err := config.Load(ctx, path)

				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.PageSize, convey.ShouldEqual, 99)
				convey.So(cfg.SearchMaxAttempts, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			path := writeConfigFile(t, `invalid: yaml: content: [`)

			cfg, err := config.Load(ctx, path)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			cfg, err := config.Load(ctx, "/non/existent/file.yaml")

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the loaded values are invalid", func() {
			_ = os.Setenv("HISTSYNC_PAGE_SIZE", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "histsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, k := range []string{
		"HISTSYNC_CONFIG",
		"HISTSYNC_PAGE_SIZE",
		"HISTSYNC_WORKER_COUNT",
		"HISTSYNC_SOURCE_DRIVER",
		"HISTSYNC_VALUE_FILTER",
	} {
		_ = os.Unsetenv(k)
	}
}
