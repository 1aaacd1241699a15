package dedupe_test

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/boxboard/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		Convey("When a key is marked for the first time", func() {
			res := d.Mark(ctx, "2024/points")

			Convey("Then the caller owns it", func() {
				So(res, ShouldEqual, dedupe.Marked)
				So(d.Size(), ShouldEqual, 1)
				So(d.Pending(ctx, "2024/points"), ShouldBeTrue)
			})

			Convey("Then marking it again is coalesced", func() {
				So(d.Mark(ctx, "2024/points"), ShouldEqual, dedupe.AlreadyPending)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then clearing it allows a new mark", func() {
				d.Clear(ctx, "2024/points")
				So(d.Pending(ctx, "2024/points"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 0)
				So(d.Mark(ctx, "2024/points"), ShouldEqual, dedupe.Marked)
			})
		})

		Convey("When clearing a key that was never marked", func() {
			d.Clear(ctx, "nope")

			Convey("Then nothing changes", func() {
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When many goroutines mark the same key", func() {
			var marked atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if d.Mark(ctx, "2024/rebounds") == dedupe.Marked {
						marked.Add(1)
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one owns it", func() {
				So(marked.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
		So(d.Mark(ctx, "a"), ShouldEqual, dedupe.Marked)
		So(d.Mark(ctx, "b"), ShouldEqual, dedupe.Marked)

		Convey("Then further keys are refused until one clears", func() {
			So(d.Mark(ctx, "c"), ShouldEqual, dedupe.Full)
			So(d.Mark(ctx, "a"), ShouldEqual, dedupe.AlreadyPending)
			d.Clear(ctx, "a")
			So(d.Mark(ctx, "c"), ShouldEqual, dedupe.Marked)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 500; i++ {
			d.Mark(ctx, strconv.Itoa(i))
		}
		So(d.Size(), ShouldEqual, 500)
	})
}
