package pager_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/histsync/internal/domain/pager"
	. "github.com/smartystreets/goconvey/convey"
)

// listing serves items[offset:offset+limit] and counts calls.
type listing struct {
	items  []int
	calls  int
	limits []int
	failAt int // call number that fails, 0 = never
}

func (l *listing) fetch(_ context.Context, offset, limit int) ([]int, int, error) {
	l.calls++
	l.limits = append(l.limits, limit)
	if l.failAt == l.calls {
		return nil, 0, errors.New("store down")
	}
	if offset >= len(l.items) {
		return nil, len(l.items), nil
	}
	end := min(offset+limit, len(l.items))
	return l.items[offset:end], len(l.items), nil
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestPagerCounts(t *testing.T) {
	const p = 4
	ctx := context.Background()

	Convey("Given listings of different sizes", t, func() {
		for _, n := range []int{0, 1, p, p + 1, 10*p + 3} {
			l := &listing{items: seq(n)}
			pg, err := pager.New(l.fetch, pager.WithPageSize(p))
			So(err, ShouldBeNil)

			got, prog, err := pg.All(ctx)

			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, n)
			So(prog.Fetched, ShouldEqual, n)
			So(prog.Total, ShouldEqual, n)
			if n > 0 {
				So(got, ShouldResemble, l.items)
			}
			for _, lim := range l.limits {
				So(lim, ShouldBeLessThanOrEqualTo, p)
			}
		}
	})

	Convey("Given an exact multiple of the page size", t, func() {
		l := &listing{items: seq(2 * p)}
		pg, _ := pager.New(l.fetch, pager.WithPageSize(p))
		_, prog, err := pg.All(ctx)

		Convey("Then no trailing empty request is made", func() {
			So(err, ShouldBeNil)
			So(l.calls, ShouldEqual, 2)
			So(prog.Pages, ShouldEqual, 2)
		})
	})
}

func TestPagerBehaviour(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pager with a progress observer", t, func() {
		var seen []pager.Progress
		l := &listing{items: seq(7)}
		pg, err := pager.New(l.fetch, pager.WithPageSize(3),
			pager.WithProgress(func(p pager.Progress) { seen = append(seen, p) }))
		So(err, ShouldBeNil)

		Convey("When iterating twice", func() {
			var first, second []int
			for items, err := range pg.Pages(ctx) {
				So(err, ShouldBeNil)
				first = append(first, items...)
			}
			for items, err := range pg.Pages(ctx) {
				So(err, ShouldBeNil)
				second = append(second, items...)
			}

			Convey("Then each pass starts over", func() {
				So(first, ShouldResemble, l.items)
				So(second, ShouldResemble, l.items)
			})

			Convey("Then progress is cumulative per pass", func() {
				So(seen[:3], ShouldResemble, []pager.Progress{
					{Pages: 1, Fetched: 3, Total: 7},
					{Pages: 2, Fetched: 6, Total: 7},
					{Pages: 3, Fetched: 7, Total: 7},
				})
			})
		})

		Convey("When the consumer stops early", func() {
			for range pg.Pages(ctx) {
				break
			}

			Convey("Then no further pages are requested", func() {
				So(l.calls, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a store whose total shrinks under us", t, func() {
		calls := 0
		fetch := func(_ context.Context, offset, limit int) ([]int, int, error) {
			calls++
			if offset > 0 {
				return nil, 1, nil
			}
			return []int{1, 2}, 100, nil
		}
		pg, _ := pager.New(fetch, pager.WithPageSize(2))
		got, _, err := pg.All(ctx)

		Convey("Then an empty page ends the pass", func() {
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []int{1, 2})
			So(calls, ShouldEqual, 2)
		})
	})

	Convey("Given a failing store", t, func() {
		l := &listing{items: seq(10), failAt: 2}
		pg, _ := pager.New(l.fetch, pager.WithPageSize(4))
		got, prog, err := pg.All(ctx)

		Convey("Then the error ends the pass with partial progress", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "offset 4")
			So(len(got), ShouldEqual, 4)
			So(prog.Fetched, ShouldEqual, 4)
		})
	})

	Convey("Given a cancelled context", t, func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		l := &listing{items: seq(3)}
		pg, _ := pager.New(l.fetch)
		_, _, err := pg.All(cctx)

		Convey("Then nothing is fetched", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(l.calls, ShouldEqual, 0)
		})
	})

	Convey("Given a non-positive page size", t, func() {
		l := &listing{}
		_, err := pager.New(l.fetch, pager.WithPageSize(0))

		Convey("Then construction fails", func() {
			So(errors.Is(err, pager.ErrInvalidPageSize), ShouldBeTrue)
		})
	})
}
