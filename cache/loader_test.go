package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/seatgrid/booking"
	"github.com/ddevcap/seatgrid/cache"
)

var _ = Describe("Loader", func() {
	var (
		clock *fakeClock
		calls atomic.Int32
		fail  atomic.Bool
	)

	fetch := func(_ context.Context, key int) (string, error) {
		n := calls.Add(1)
		if fail.Load() {
			return "", errors.New("upstream down")
		}
		return "v" + string(rune('0'+n)), nil
	}

	BeforeEach(func() {
		clock = newFakeClock(time.Date(2026, 10, 17, 14, 5, 0, 0, sgt))
		calls.Store(0)
		fail.Store(false)
	})

	Context("with a strict store", func() {
		var (
			store  *cache.TTLCache[int, string]
			loader *cache.Loader[int, string]
		)

		BeforeEach(func() {
			store = cache.NewTTLCache[int, string](5*time.Minute, cache.WithClock(clock.Now))
			DeferCleanup(store.Close)
			loader = cache.NewLoader[int, string]("test", store, fetch, cache.WithClock(clock.Now))
		})

		It("serves fresh entries without fetching again", func() {
			e, err := loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Value).To(Equal("v1"))
			Expect(e.ExpiresAt).To(Equal(clock.Now().Add(5 * time.Minute)))

			clock.Advance(4 * time.Minute)
			e, err = loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Value).To(Equal("v1"))
			Expect(calls.Load()).To(Equal(int32(1)))
		})

		It("refetches once the entry has expired", func() {
			_, err := loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(5 * time.Minute)
			e, err := loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Value).To(Equal("v2"))
		})

		It("stores nothing when the fetch fails and retries on the next call", func() {
			fail.Store(true)
			_, err := loader.Get(context.Background(), 1)
			Expect(err).To(HaveOccurred())
			_, ok := store.Get(1)
			Expect(ok).To(BeFalse())

			fail.Store(false)
			e, err := loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Value).To(Equal("v2"))
		})

		It("coalesces concurrent misses into one fetch", func() {
			release := make(chan struct{})
			var slow atomic.Int32
			l := cache.NewLoader[int, string]("slow", store, func(context.Context, int) (string, error) {
				slow.Add(1)
				<-release
				return "grid", nil
			}, cache.WithClock(clock.Now))

			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					e, err := l.Get(context.Background(), 9)
					Expect(err).NotTo(HaveOccurred())
					Expect(e.Value).To(Equal("grid"))
				}()
			}
			Eventually(func() int { return l.Pending(9) }).Should(Equal(5))
			close(release)
			wg.Wait()
			Expect(slow.Load()).To(Equal(int32(1)))
		})

		It("drops the entry on Invalidate", func() {
			_, err := loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(loader.Invalidate(1)).To(Succeed())

			e, err := loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Value).To(Equal("v2"))
		})
	})

	Context("with a lazy store", func() {
		var (
			store  *cache.TTLCache[int, string]
			loader *cache.Loader[int, string]
		)

		BeforeEach(func() {
			store = cache.NewTTLCache[int, string](10*time.Minute,
				cache.WithClock(clock.Now), cache.WithPolicy(cache.Lazy))
			DeferCleanup(store.Close)
			loader = cache.NewLoader[int, string]("lazy", store, fetch, cache.WithClock(clock.Now))
		})

		It("serves the stale value immediately and refreshes in the background", func() {
			_, err := loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(time.Hour)
			e, err := loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Value).To(Equal("v1"))

			Eventually(func() string {
				v, _ := store.Get(1)
				return v
			}).Should(Equal("v2"))
		})

		It("keeps serving the stale value when the background refresh fails", func() {
			_, err := loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(time.Hour)
			fail.Store(true)
			e, err := loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Value).To(Equal("v1"))

			Eventually(calls.Load).Should(Equal(int32(2)))
			e, err = loader.Get(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Value).To(Equal("v1"))
		})
	})

	Context("with day buckets", func() {
		It("fails fast for dates outside today and tomorrow without fetching", func() {
			buckets := cache.NewDayBuckets[int, string](5*time.Minute, sgt, cache.WithClock(clock.Now))
			DeferCleanup(buckets.Close)
			l := cache.NewLoader[cache.DayKey[int], string]("days", buckets,
				func(ctx context.Context, k cache.DayKey[int]) (string, error) {
					return fetch(ctx, k.ID)
				}, cache.WithClock(clock.Now))

			_, err := l.Get(context.Background(), cache.DayKey[int]{ID: 1, Date: clock.Now().AddDate(0, 0, 3)})
			Expect(err).To(MatchError(booking.ErrContractViolation))
			Expect(calls.Load()).To(BeZero())

			e, err := l.Get(context.Background(), cache.DayKey[int]{ID: 1, Date: clock.Now()})
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Value).To(Equal("v1"))
		})

		It("hands back a value whose day ended during the fetch without storing it", func() {
			clock = newFakeClock(time.Date(2026, 10, 17, 23, 59, 50, 0, sgt))
			buckets := cache.NewDayBuckets[int, string](5*time.Minute, sgt, cache.WithClock(clock.Now))
			DeferCleanup(buckets.Close)
			l := cache.NewLoader[cache.DayKey[int], string]("days", buckets,
				func(ctx context.Context, k cache.DayKey[int]) (string, error) {
					clock.Advance(20 * time.Second)
					return fetch(ctx, k.ID)
				}, cache.WithClock(clock.Now))

			today := cache.DayKey[int]{ID: 1, Date: time.Date(2026, 10, 17, 0, 0, 0, 0, sgt)}
			e, err := l.Get(context.Background(), today)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Value).To(Equal("v1"))
			Expect(e.FetchedAt).To(Equal(time.Date(2026, 10, 18, 0, 0, 10, 0, sgt)))

			// The day is gone now, so the key is refused like any other past date.
			_, _, err = buckets.Lookup(today)
			Expect(err).To(MatchError(cache.ErrDayPassed))
			Expect(err).To(MatchError(booking.ErrContractViolation))

			// The new day's bucket was not written to.
			_, state, err := buckets.Lookup(cache.DayKey[int]{ID: 1, Date: time.Date(2026, 10, 18, 0, 0, 0, 0, sgt)})
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(Equal(cache.Missing))
		})
	})
})
