package values_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/histsync/internal/domain/historian"
	"github.com/okian/histsync/internal/domain/historian/historiantest"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/internal/domain/values"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func series(n int, uom string) []model.Value {
	out := make([]model.Value, n)
	for i := range out {
		out[i] = model.Value{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: float64(i) * 1.5, UOM: uom}
	}
	return out
}

func corr(names ...string) *model.CorrespondenceMap {
	m := model.NewCorrespondenceMap(len(names))
	for _, n := range names {
		_ = m.Add(n, n)
	}
	return m
}

func TestSyncRange(t *testing.T) {
	ctx := context.Background()
	r := model.TimeRange{Start: base, End: base.Add(time.Hour)}

	Convey("Given P1 with 5 source values and none on the destination", t, func() {
		src := historiantest.NewStore("P1")
		src.AddValues("P1", series(5, "degC")...)
		dst := historiantest.NewStore("P1")
		s, err := values.NewSyncer(src, dst)
		So(err, ShouldBeNil)

		Convey("When syncing the range", func() {
			rep, err := s.SyncRange(ctx, corr("P1"), r, nil)

			Convey("Then the destination holds exactly the source values", func() {
				So(err, ShouldBeNil)
				So(dst.Values("P1"), ShouldResemble, src.Values("P1"))
				tot := rep.Totals()
				So(tot.PointsCopied, ShouldEqual, 1)
				So(tot.ValuesCopied, ShouldEqual, 5)
				So(tot.Failures, ShouldBeEmpty)
			})

			Convey("And syncing again", func() {
				dst.ResetCalls()
				rep2, err := s.SyncRange(ctx, corr("P1"), r, nil)

				Convey("Then nothing more is written", func() {
					So(err, ShouldBeNil)
					So(rep2.Totals().ValuesCopied, ShouldEqual, 0)
					So(rep2.Totals().PointsSkipped, ShouldEqual, 1)
					So(dst.CallsTo(historiantest.OpPutValues), ShouldBeEmpty)
				})
			})
		})
	})

	Convey("Given values on the range bounds and outside", t, func() {
		src := historiantest.NewStore("P1")
		src.AddValues("P1",
			model.Value{Timestamp: r.Start.Add(-time.Second), Value: 1.0},
			model.Value{Timestamp: r.Start, Value: 2.0},
			model.Value{Timestamp: r.End, Value: 3.0},
			model.Value{Timestamp: r.End.Add(time.Second), Value: 4.0},
		)
		dst := historiantest.NewStore("P1")
		s, _ := values.NewSyncer(src, dst)

		_, err := s.SyncRange(ctx, corr("P1"), r, nil)

		Convey("Then both bounds are copied and nothing outside", func() {
			So(err, ShouldBeNil)
			got := dst.Values("P1")
			So(len(got), ShouldEqual, 2)
			So(got[0].Value, ShouldEqual, 2.0)
			So(got[1].Value, ShouldEqual, 3.0)
		})
	})

	Convey("Given a value filter", t, func() {
		src := historiantest.NewStore("P1")
		src.AddValues("P1", series(6, "")...)
		dst := historiantest.NewStore("P1")
		s, _ := values.NewSyncer(src, dst)
		f := "value >= 3"

		rep, err := s.SyncRange(ctx, corr("P1"), r, &f)

		Convey("Then only matching values are copied", func() {
			So(err, ShouldBeNil)
			So(rep.Totals().ValuesCopied, ShouldEqual, 4)
			for _, v := range dst.Values("P1") {
				So(v.Value, ShouldBeGreaterThanOrEqualTo, 3.0)
			}
		})
	})

	Convey("Given the destination rejects 2 of P1's 5 values", t, func() {
		src := historiantest.NewStore("P1", "P2")
		src.AddValues("P1", series(5, "")...)
		src.AddValues("P2", series(3, "")...)
		dst := historiantest.NewStore("P1", "P2")
		dst.Reject["p1"] = 2
		s, _ := values.NewSyncer(src, dst)

		rep, err := s.SyncRange(ctx, corr("P1", "P2"), r, nil)

		Convey("Then P1 is listed as failed and P2 is still copied", func() {
			So(err, ShouldBeNil)
			tot := rep.Totals()
			So(len(tot.Failures), ShouldEqual, 1)
			So(tot.Failures[0].Point, ShouldEqual, "P1")
			So(tot.Failures[0].Attempted, ShouldEqual, 5)
			So(tot.Failures[0].Reported, ShouldEqual, 2)
			So(tot.Failures[0].Error(), ShouldEqual, "write values to P1: 2 of 5 rejected")
			So(tot.PointsCopied, ShouldEqual, 1)
			So(tot.ValuesCopied, ShouldEqual, 3+3)
			So(len(dst.Values("P2")), ShouldEqual, 3)
		})
	})

	Convey("Given a write that fails with a store error", t, func() {
		src := historiantest.NewStore("P1")
		src.AddValues("P1", series(2, "")...)
		dst := historiantest.NewStore("P1")
		boom := errors.New("value out of range")
		dst.Errors[historiantest.OpPutValues] = boom
		s, _ := values.NewSyncer(src, dst)

		rep, err := s.SyncRange(ctx, corr("P1"), r, nil)

		Convey("Then it is recorded as a recoverable failure", func() {
			So(err, ShouldBeNil)
			fails := rep.Totals().Failures
			So(len(fails), ShouldEqual, 1)
			So(errors.Is(fails[0], boom), ShouldBeTrue)
			So(fails[0].Reported, ShouldEqual, 2)
		})
	})

	Convey("Given a write that loses the connection", t, func() {
		src := historiantest.NewStore("P1", "P2")
		src.AddValues("P1", series(2, "")...)
		src.AddValues("P2", series(2, "")...)
		dst := historiantest.NewStore("P1", "P2")
		dst.Errors[historiantest.OpPutValues] = fmt.Errorf("%w: broken pipe", historian.ErrConnection)
		s, _ := values.NewSyncer(src, dst)

		_, err := s.SyncRange(ctx, corr("P1", "P2"), r, nil)

		Convey("Then the run stops at the first point", func() {
			So(errors.Is(err, historian.ErrConnection), ShouldBeTrue)
			So(len(dst.CallsTo(historiantest.OpPutValues)), ShouldEqual, 1)
		})
	})

	Convey("Given an unreadable source", t, func() {
		src := historiantest.NewStore("P1")
		boom := errors.New("read timeout")
		src.Errors[historiantest.OpGetValues] = boom
		s, _ := values.NewSyncer(src, historiantest.NewStore("P1"))

		rep, err := s.SyncRange(ctx, corr("P1"), r, nil)

		Convey("Then the error is fatal with an empty partial report", func() {
			So(errors.Is(err, boom), ShouldBeTrue)
			So(rep, ShouldNotBeNil)
			So(rep.Totals().PointsCopied, ShouldEqual, 0)
		})
	})

	Convey("Given cancellation after the first point", t, func() {
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		src := historiantest.NewStore("P1", "P2")
		src.AddValues("P1", series(1, "")...)
		src.AddValues("P2", series(1, "")...)
		dst := historiantest.NewStore("P1", "P2")
		s, _ := values.NewSyncer(src, dst, values.WithObserver(func(values.Outcome, time.Duration) { cancel() }))

		rep, err := s.SyncRange(cctx, corr("P1", "P2"), r, nil)

		Convey("Then no call is made for the second point", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(rep.Totals().PointsCopied, ShouldEqual, 1)
			for _, c := range src.Calls() {
				So(c.Point, ShouldEqual, "P1")
			}
		})
	})

	Convey("Given an inverted range", t, func() {
		s, _ := values.NewSyncer(historiantest.NewStore(), historiantest.NewStore())
		_, err := s.SyncRange(ctx, corr(), model.TimeRange{Start: r.End, End: r.Start}, nil)

		So(errors.Is(err, model.ErrInvalidRange), ShouldBeTrue)
	})
}

func TestReportConcurrency(t *testing.T) {
	Convey("Given outcomes added from many goroutines", t, func() {
		rep := &values.Report{}
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o := values.Outcome{Written: 2}
				if i%10 == 0 {
					o.Failure = &values.ValueWriteError{Point: fmt.Sprint(i), Attempted: 2, Reported: 2}
					o.Written = 0
				}
				rep.Add(o)
			}()
		}
		wg.Wait()

		Convey("Then every outcome is counted once", func() {
			tot := rep.Totals()
			So(tot.PointsCopied, ShouldEqual, 45)
			So(tot.ValuesCopied, ShouldEqual, 90)
			So(len(tot.Failures), ShouldEqual, 5)
		})
	})
}
