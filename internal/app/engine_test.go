package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/histsync/internal/adapters/archive"
	"github.com/okian/histsync/internal/adapters/repository"
	"github.com/okian/histsync/internal/app"
	"github.com/okian/histsync/internal/config"
	"github.com/okian/histsync/internal/domain/historian"
	"github.com/okian/histsync/internal/domain/historian/historiantest"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/internal/domain/search"
	"github.com/okian/histsync/internal/report"
	"github.com/okian/histsync/internal/seed"
)

var now = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type notification struct {
	subject     string
	body        string
	attachments []string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, subject, htmlBody string, attachments []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{subject: subject, body: htmlBody, attachments: attachments})
	return n.err
}

// fakeHistorian adds Close to the test store.
type fakeHistorian struct {
	*historiantest.Store
}

func (fakeHistorian) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	cfg := config.New(context.Background())
	cfg.RangeStart = "2024-03-01T00:00:00Z"
	cfg.RangeEnd = "2024-03-02T00:00:00Z"
	cfg.ReportDir = t.TempDir()
	return cfg
}

func hourly(n int) []model.Value {
	base := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)
	out := make([]model.Value, n)
	for k := range n {
		out[k] = model.Value{Timestamp: base.Add(time.Duration(k) * time.Hour), Value: float64(k), UOM: "degC"}
	}
	return out
}

func memoryStore(t *testing.T, points map[string]int) *repository.MemoryStore {
	ctx := context.Background()
	s, err := repository.NewMemoryStore("")
	if err != nil {
		t.Fatal(err)
	}
	for name, n := range points {
		if err := s.CreatePoints(ctx, []string{name}, nil); err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			continue
		}
		if _, err := s.PutValues(ctx, name, hourly(n), model.Replace); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func count(s historian.Store, point string) int {
	r := model.TimeRange{Start: now.AddDate(0, 0, -10), End: now}
	n, err := s.GetValueCount(context.Background(), point, nil, r, nil)
	if err != nil {
		return -1
	}
	return n
}

func TestEngineMigrate(t *testing.T) {
	Convey("Given a source with three points and a destination with one", t, func() {
		ctx := context.Background()
		src := memoryStore(t, map[string]int{"A": 5, "B": 5, "C": 5})
		dst := memoryStore(t, map[string]int{"A": 0})
		cfg := testConfig(t)
		notifier := &recordingNotifier{}

		newEngine := func() *app.Engine {
			e, err := app.New(ctx, cfg,
				app.WithStores(src, dst),
				app.WithClock(clock),
				app.WithNotifier(notifier))
			So(err, ShouldBeNil)
			return e
		}

		Convey("Migrate creates the missing points and copies every value", func() {
			rep, err := newEngine().Migrate(ctx)
			So(err, ShouldBeNil)
			So(rep.Outcome, ShouldEqual, report.OutcomeSuccess)
			So(rep.Command, ShouldEqual, app.CommandMigrate)
			So(rep.SourcePoints, ShouldEqual, 3)
			So(rep.DestinationPoints, ShouldEqual, 3)
			So(rep.PointsCreated, ShouldEqual, 2)
			So(rep.PointsCopied, ShouldEqual, 3)
			So(rep.ValuesCopied, ShouldEqual, 15)
			So(rep.Failures, ShouldBeEmpty)
			So(rep.RangeStart.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)

			for _, p := range []string{"A", "B", "C"} {
				So(count(dst, p), ShouldEqual, 5)
			}

			Convey("And a second run moves nothing", func() {
				again, err := newEngine().Migrate(ctx)
				So(err, ShouldBeNil)
				So(again.PointsCreated, ShouldEqual, 0)
				So(again.PointsSkipped, ShouldEqual, 3)
				So(again.ValuesCopied, ShouldEqual, 0)
				So(again.RunID, ShouldNotEqual, rep.RunID)
			})
		})

		Convey("A worker pool gives the same result", func() {
			cfg.WorkerCount = 4
			rep, err := newEngine().Migrate(ctx)
			So(err, ShouldBeNil)
			So(rep.PointsCopied, ShouldEqual, 3)
			So(rep.ValuesCopied, ShouldEqual, 15)
			So(count(dst, "C"), ShouldEqual, 5)
		})

		Convey("The value filter narrows what is copied", func() {
			cfg.ValueFilter = "value >= 3"
			rep, err := newEngine().Migrate(ctx)
			So(err, ShouldBeNil)
			So(rep.Filter, ShouldEqual, "value >= 3")
			So(rep.ValuesCopied, ShouldEqual, 6)
			So(count(dst, "B"), ShouldEqual, 2)
		})

		Convey("Points reconciles the catalog without copying values", func() {
			rep, err := newEngine().Points(ctx)
			So(err, ShouldBeNil)
			So(rep.Command, ShouldEqual, app.CommandPoints)
			So(rep.PointsCreated, ShouldEqual, 2)
			So(rep.ValuesCopied, ShouldEqual, 0)
			So(rep.RangeStart.IsZero(), ShouldBeTrue)
			So(count(dst, "B"), ShouldEqual, 0)
		})

		Convey("The report is archived and mailed", func() {
			rep, err := newEngine().Migrate(ctx)
			So(err, ShouldBeNil)

			path := filepath.Join(cfg.ReportDir, app.ArchiveName(rep)+archive.Ext)
			packed, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			data, err := archive.Decompress(packed)
			So(err, ShouldBeNil)
			var decoded map[string]any
			So(json.Unmarshal(data, &decoded), ShouldBeNil)
			So(decoded["run_id"], ShouldEqual, rep.RunID)
			So(decoded["outcome"], ShouldEqual, "success")

			So(notifier.sent, ShouldHaveLength, 1)
			So(notifier.sent[0].subject, ShouldEqual, rep.Subject())
			So(notifier.sent[0].attachments, ShouldResemble, []string{path})
			So(notifier.sent[0].body, ShouldContainSubstring, rep.RunID)
		})

		Convey("A failing notifier does not fail the run", func() {
			notifier.err = errors.New("smtp down")
			rep, err := newEngine().Migrate(ctx)
			So(err, ShouldBeNil)
			So(rep.Succeeded(), ShouldBeTrue)
		})

		Convey("A cancelled context ends the run as cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			rep, err := newEngine().Migrate(cctx)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(rep.Outcome, ShouldEqual, report.OutcomeCancelled)
			So(rep.ValuesCopied, ShouldEqual, 0)
			So(notifier.sent, ShouldHaveLength, 1)
		})

		Convey("Stats follow the run", func() {
			e := newEngine()
			stats := e.GetStats()
			So(stats["phase"], ShouldEqual, "idle")
			So(stats["running"], ShouldEqual, false)
			So(stats, ShouldNotContainKey, "runId")

			rep, err := e.Migrate(ctx)
			So(err, ShouldBeNil)
			stats = e.GetStats()
			So(stats["phase"], ShouldEqual, "done")
			So(stats["runId"], ShouldEqual, rep.RunID)
			So(stats["sourcePoints"], ShouldEqual, 3)
			So(stats["pointsCreated"], ShouldEqual, 2)
			So(stats["pairs"], ShouldEqual, 3)
			So(stats["pointsDone"], ShouldEqual, 3)
			So(stats["valuesCopied"], ShouldEqual, 15)
		})
	})
}

func TestEngineFailures(t *testing.T) {
	Convey("Given fake stores", t, func() {
		ctx := context.Background()
		src := historiantest.NewStore("P1", "P2")
		src.AddValues("P1", hourly(5)...)
		src.AddValues("P2", hourly(3)...)
		dst := historiantest.NewStore()
		cfg := testConfig(t)
		cfg.ReportDir = ""

		e, err := app.New(ctx, cfg,
			app.WithStores(fakeHistorian{src}, fakeHistorian{dst}),
			app.WithClock(clock))
		So(err, ShouldBeNil)

		Convey("A partial write is reported and the run continues", func() {
			dst.Reject = map[string]int{model.FoldName("P1"): 2}
			rep, err := e.Migrate(ctx)
			So(err, ShouldBeNil)
			So(rep.Outcome, ShouldEqual, report.OutcomeSuccess)
			So(rep.Failures, ShouldResemble, []report.Failure{{Point: "P1", Attempted: 5, Reported: 2}})
			So(rep.PointsCopied, ShouldEqual, 1)
			So(rep.ValuesCopied, ShouldEqual, 3+3)
			So(dst.Values("P2"), ShouldHaveLength, 3)
		})

		Convey("A lost connection fails the run with a partial report", func() {
			src.Errors = map[string]error{historiantest.OpGetValues: historian.ErrConnection}
			rep, err := e.Migrate(ctx)
			So(errors.Is(err, historian.ErrConnection), ShouldBeTrue)
			So(rep.Outcome, ShouldEqual, report.OutcomeFailed)
			So(rep.PointsCreated, ShouldEqual, 2)
			So(rep.Error, ShouldNotBeEmpty)
		})

		Convey("A catalog failure stops before any value is read", func() {
			dst.Errors = map[string]error{historiantest.OpCreatePoints: historian.ErrConnection}
			_, err := e.Migrate(ctx)
			So(errors.Is(err, historian.ErrConnection), ShouldBeTrue)
			So(src.CallsTo(historiantest.OpGetValues), ShouldBeEmpty)
		})
	})
}

func TestEngineSearch(t *testing.T) {
	Convey("Given a point whose newest reading is bad", t, func() {
		ctx := context.Background()
		src := historiantest.NewStore("T1")
		vals := hourly(5)
		vals = append(vals, model.Value{Timestamp: vals[4].Timestamp.Add(time.Hour), Value: seed.BadInput})
		src.AddValues("T1", vals...)

		e, err := app.New(ctx, testConfig(t),
			app.WithStores(fakeHistorian{src}, fakeHistorian{historiantest.NewStore()}),
			app.WithClock(clock))
		So(err, ShouldBeNil)
		bad := seed.BadInput

		Convey("The last valid reading is found", func() {
			res, err := e.Search(ctx, app.SearchRequest{
				Side: model.SideSource, Point: "T1", DiffersFrom: &bad, StartDays: -1,
			})
			So(err, ShouldBeNil)
			So(res.Found, ShouldBeTrue)
			So(res.Timestamp.Equal(vals[4].Timestamp), ShouldBeTrue)
			So(res.Attempts(), ShouldEqual, 1)
		})

		Convey("The last occurrence of a value is found", func() {
			target := "2"
			res, err := e.Search(ctx, app.SearchRequest{
				Side: model.SideSource, Point: "T1", Equals: &target, StartDays: -1,
			})
			So(err, ShouldBeNil)
			So(res.Found, ShouldBeTrue)
			So(res.Timestamp.Equal(vals[2].Timestamp), ShouldBeTrue)
		})

		Convey("A missing value exhausts the attempts", func() {
			target := "never"
			res, err := e.Search(ctx, app.SearchRequest{
				Side: model.SideSource, Point: "T1", Equals: &target, StartDays: -1, MaxAttempts: 3,
			})
			So(err, ShouldBeNil)
			So(res.Found, ShouldBeFalse)
			So(res.Attempts(), ShouldEqual, 3)
			So(res.TimestampText(), ShouldEqual, search.Indefinite)
		})

		Convey("A request needs exactly one predicate", func() {
			_, err := e.Search(ctx, app.SearchRequest{Side: model.SideSource, Point: "T1"})
			So(errors.Is(err, app.ErrNoPredicate), ShouldBeTrue)
			_, err = e.Search(ctx, app.SearchRequest{Side: model.SideSource, Point: "T1", Equals: &bad, DiffersFrom: &bad})
			So(errors.Is(err, app.ErrNoPredicate), ShouldBeTrue)
		})

		Convey("Future offsets are rejected before any read", func() {
			_, err := e.Search(ctx, app.SearchRequest{Side: model.SideSource, Point: "T1", Equals: &bad, StartDays: 1})
			var perr *search.SearchParameterError
			So(errors.As(err, &perr), ShouldBeTrue)
			So(src.CallsTo(historiantest.OpGetValues), ShouldBeEmpty)
		})

		Convey("A zero-width window is rejected before any read", func() {
			_, err := e.Search(ctx, app.SearchRequest{Side: model.SideSource, Point: "T1", Equals: &bad, StartDays: -2, EndDays: -2})
			var perr *search.SearchParameterError
			So(errors.As(err, &perr), ShouldBeTrue)
			So(src.CallsTo(historiantest.OpGetValues), ShouldBeEmpty)
		})
	})
}

func TestEngineMaintenance(t *testing.T) {
	Convey("Given stores opened from the configuration", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		cfg := testConfig(t)
		cfg.SourceDriver, cfg.SourceDSN = config.DriverMemory, filepath.Join(dir, "source.snap")
		cfg.DestinationDriver, cfg.DestinationDSN = config.DriverMemory, filepath.Join(dir, "destination.snap")

		e, err := app.New(ctx, cfg, app.WithClock(clock))
		So(err, ShouldBeNil)

		Convey("Seeded history migrates and persists", func() {
			st, err := e.Seed(ctx, model.SideSource, seed.Config{Points: 3, Days: 1, Interval: time.Hour, End: now})
			So(err, ShouldBeNil)
			So(st.Points, ShouldEqual, 3)
			So(st.Values, ShouldEqual, 75)

			rep, err := e.Migrate(ctx)
			So(err, ShouldBeNil)
			So(rep.PointsCreated, ShouldEqual, 3)
			So(rep.ValuesCopied, ShouldEqual, 75)
			So(rep.Source, ShouldEqual, "memory:"+cfg.SourceDSN)

			dst, err := repository.NewMemoryStore(cfg.DestinationDSN)
			So(err, ShouldBeNil)
			defer dst.Close()
			_, total, err := dst.FindPoints(ctx, "SIM.TAG*", 0, 10)
			So(err, ShouldBeNil)
			So(total, ShouldEqual, 3)
			So(count(dst, "SIM.TAG0002"), ShouldEqual, 25)
		})

		Convey("Values can be corrected by hand", func() {
			_, err := e.Seed(ctx, model.SideDestination, seed.Config{Points: 1, Days: 1, Interval: time.Hour, End: now})
			So(err, ShouldBeNil)

			ts := now.Add(-30 * time.Minute)
			err = e.PutValue(ctx, model.SideDestination, "SIM.TAG0001", nil, model.Value{Timestamp: ts, Value: 1.5})
			So(err, ShouldBeNil)

			n, err := e.DeleteValues(ctx, model.SideDestination, "SIM.TAG0001", nil,
				model.TimeRange{Start: now.Add(-time.Hour), End: now})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)

			_, err = e.DeleteValues(ctx, model.SideDestination, "SIM.TAG0001", nil,
				model.TimeRange{Start: now, End: now.Add(-time.Hour)})
			So(errors.Is(err, model.ErrInvalidRange), ShouldBeTrue)
		})

		Convey("Attribute streams can be corrected and searched", func() {
			_, err := e.Seed(ctx, model.SideDestination, seed.Config{Points: 1, Days: 1, Interval: time.Hour, End: now})
			So(err, ShouldBeNil)

			mode := seed.ModeAttribute
			manual := seed.ModeManual
			ts := now.Add(-2 * time.Hour)
			err = e.PutValue(ctx, model.SideDestination, "SIM.TAG0001", &mode, model.Value{Timestamp: ts, Value: manual})
			So(err, ShouldBeNil)

			req := app.SearchRequest{
				Side: model.SideDestination, Point: "SIM.TAG0001", Attribute: mode,
				Equals: &manual, StartDays: -1, MaxAttempts: 3,
			}
			res, err := e.Search(ctx, req)
			So(err, ShouldBeNil)
			So(res.Found, ShouldBeTrue)
			So(res.Timestamp.Equal(ts), ShouldBeTrue)

			n, err := e.DeleteValues(ctx, model.SideDestination, "SIM.TAG0001", &mode,
				model.TimeRange{Start: now.Add(-3 * time.Hour), End: now.Add(-time.Hour)})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			res, err = e.Search(ctx, req)
			So(err, ShouldBeNil)
			So(res.Found, ShouldBeFalse)

			req.Attribute = ""
			res, err = e.Search(ctx, req)
			So(err, ShouldBeNil)
			So(res.Found, ShouldBeFalse)
		})

		Convey("Writing to an unknown point fails", func() {
			err := e.PutValue(ctx, model.SideSource, "NOPE", nil, model.Value{Timestamp: now, Value: 1.0})
			So(errors.Is(err, historian.ErrPointNotFound), ShouldBeTrue)
		})
	})
}

func TestEngineConstruction(t *testing.T) {
	Convey("New validates the configuration", t, func() {
		cfg := testConfig(t)
		cfg.PageSize = 0
		_, err := app.New(context.Background(), cfg)
		So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("ParseSide accepts the two sides", t, func() {
		side, err := app.ParseSide("source")
		So(err, ShouldBeNil)
		So(side, ShouldEqual, model.SideSource)

		_, err = app.ParseSide("archive")
		So(errors.Is(err, app.ErrUnknownSide), ShouldBeTrue)
	})

	Convey("The side server runs during a run", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.MetricsAddr = "127.0.0.1:0"
		e, err := app.New(ctx, cfg,
			app.WithStores(memoryStore(t, map[string]int{"A": 1}), memoryStore(t, nil)),
			app.WithClock(clock))
		So(err, ShouldBeNil)
		rep, err := e.Migrate(ctx)
		So(err, ShouldBeNil)
		id, err := uuid.Parse(rep.RunID)
		So(err, ShouldBeNil)
		So(id.Version(), ShouldEqual, uuid.Version(7))
		So(rep.ValuesCopied, ShouldEqual, 1)
	})
}
