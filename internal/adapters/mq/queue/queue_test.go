package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/histsync/internal/domain/model"
)

func job(seq int) Job {
	name := fmt.Sprintf("P%d", seq)
	return Job{Seq: seq, Pair: model.Pair{Source: name, Destination: name}}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with capacity 2", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))
		ctx := context.Background()

		So(q.Len(), ShouldEqual, 0)

		Convey("jobs come out in order", func() {
			So(q.Enqueue(ctx, job(1)), ShouldBeNil)
			So(q.Enqueue(ctx, job(2)), ShouldBeNil)
			So(q.Len(), ShouldEqual, 2)

			ch := q.Dequeue(ctx)
			So((<-ch).Seq, ShouldEqual, 1)
			So((<-ch).Seq, ShouldEqual, 2)
		})

		Convey("a full queue rejects jobs", func() {
			So(q.Enqueue(ctx, job(1)), ShouldBeNil)
			So(q.Enqueue(ctx, job(2)), ShouldBeNil)
			So(q.Enqueue(ctx, job(3)), ShouldEqual, ErrFull)
			So(q.Len(), ShouldEqual, 2)
		})

		Convey("a cancelled context rejects jobs", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(q.Enqueue(cctx, job(1)), ShouldEqual, context.Canceled)
			So(q.Len(), ShouldEqual, 0)
		})

		Convey("closing drains queued jobs then closes the channel", func() {
			So(q.Enqueue(ctx, job(1)), ShouldBeNil)
			So(q.IsClosed(), ShouldBeFalse)
			So(q.Close(), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)
			So(q.Enqueue(ctx, job(2)), ShouldEqual, ErrClosed)

			ch := q.Dequeue(ctx)
			j, ok := <-ch
			So(ok, ShouldBeTrue)
			So(j.Seq, ShouldEqual, 1)

			select {
			case _, ok = <-ch:
				So(ok, ShouldBeFalse)
			case <-time.After(time.Second):
				So("channel not closed", ShouldBeEmpty)
			}
			So(q.Close(), ShouldBeNil)
		})
	})

	Convey("Given several consumers", t, func() {
		const n = 200
		q := NewInMemoryQueue(WithCapacity(n))
		ctx := context.Background()
		for i := range n {
			So(q.Enqueue(ctx, job(i)), ShouldBeNil)
		}
		So(q.Close(), ShouldBeNil)

		var (
			mu   sync.Mutex
			seen = map[int]int{}
			wg   sync.WaitGroup
		)
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range q.Dequeue(ctx) {
					mu.Lock()
					seen[j.Seq]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("every job is delivered exactly once", func() {
			So(len(seen), ShouldEqual, n)
			for _, c := range seen {
				So(c, ShouldEqual, 1)
			}
			So(q.Len(), ShouldEqual, 0)
		})
	})
}
