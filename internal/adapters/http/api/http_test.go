package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/histsync/internal/adapters/http/api"
	"github.com/okian/histsync/pkg/metrics"
)

type fakeStats struct {
	stats map[string]any
}

func (f *fakeStats) GetStats() map[string]any {
	return f.stats
}

func TestServer(t *testing.T) {
	Convey("Given a side server with a stats provider", t, func() {
		provider := &fakeStats{stats: map[string]any{"run_id": "r1", "phase": "values", "points_done": 3}}
		h := api.NewServer(provider).Handler()

		Convey("GET /stats returns the provider snapshot", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			var body map[string]any
			So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
			So(body["run_id"], ShouldEqual, "r1")
			So(body["phase"], ShouldEqual, "values")
			So(body["points_done"], ShouldEqual, 3.0)
		})

		Convey("POST /stats is rejected", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(rec.Body.String(), ShouldContainSubstring, "method_not_allowed")
		})

		Convey("GET /healthz exposes the migration metrics", func() {
			metrics.RecordValuesCopied(1)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "histsync_migration_values_copied_total")
		})

		Convey("requests are counted by the middleware", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			So(rec.Body.String(), ShouldContainSubstring, `endpoint="stats"`)
		})
	})

	Convey("Given a side server without a run", t, func() {
		h := api.NewServer(nil).Handler()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
		So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
	})
}

func TestListen(t *testing.T) {
	Convey("Given a listener on an ephemeral port", t, func() {
		ctx := context.Background()
		l, err := api.Listen(ctx, "127.0.0.1:0", api.NewServer(&fakeStats{stats: map[string]any{"ok": true}}).Handler(), nil)
		So(err, ShouldBeNil)

		Convey("it serves until shut down", func() {
			resp, err := http.Get("http://" + l.Addr() + "/stats")
			So(err, ShouldBeNil)
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			So(strings.TrimSpace(string(body)), ShouldEqual, `{"ok":true}`)

			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			So(l.Shutdown(sctx), ShouldBeNil)

			_, err = http.Get("http://" + l.Addr() + "/stats")
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given an address already in use", t, func() {
		ctx := context.Background()
		l, err := api.Listen(ctx, "127.0.0.1:0", http.NotFoundHandler(), nil)
		So(err, ShouldBeNil)
		defer func() { _ = l.Shutdown(ctx) }()

		_, err = api.Listen(ctx, l.Addr(), http.NotFoundHandler(), nil)
		So(errors.Is(err, api.ErrServe), ShouldBeTrue)
	})
}
