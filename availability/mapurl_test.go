package availability_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/seatgrid/availability"
	"github.com/ddevcap/seatgrid/booking"
)

var _ = Describe("AreaMapURLs", func() {
	var (
		searcher *fakeSearcher
		now      time.Time
		agg      *availability.Aggregator
		info     booking.LibraryInfo
		quietMap = &booking.AreaMapURL{"quiet.png", "quiet-hd.png"}
	)

	// mapAt reports quietMap for area 11 only when searched at one of the
	// given instants.
	mapAt := func(instants ...time.Time) func(time.Time, *booking.AreaID) (booking.AvailableAreas, error) {
		return func(start time.Time, area *booking.AreaID) (booking.AvailableAreas, error) {
			for _, t := range instants {
				if start.Equal(t) {
					return booking.AvailableAreas{*area: {MapURL: quietMap}}, nil
				}
			}
			return booking.AvailableAreas{*area: {}}, nil
		}
	}

	BeforeEach(func() {
		searcher = &fakeSearcher{}
		now = at(14, 5)
		info = oneAreaLibrary()
		agg = availability.NewAggregator(searcher, sgt, availability.WithClock(func() time.Time { return now }))
	})

	It("searches the area from now while it is still open", func() {
		searcher.respond = mapAt(now)

		got, err := agg.AreaMapURLs(context.Background(), 7, info)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(booking.AreaMapURLs{11: quietMap}))

		calls := searcher.Calls()
		Expect(calls).To(HaveLen(1))
		Expect(*calls[0].Area).To(Equal(booking.AreaID(11)))
		Expect(calls[0].Duration).To(Equal(availability.MinimumBookingDuration))
	})

	It("searches from opening time before the area opens", func() {
		now = at(7, 30)
		searcher.respond = mapAt(at(9, 0))

		got, err := agg.AreaMapURLs(context.Background(), 7, info)
		Expect(err).NotTo(HaveOccurred())
		Expect(got[11]).To(Equal(quietMap))
	})

	It("falls back to tomorrow's opening in the afternoon", func() {
		now = at(22, 30)
		tomorrowOpening := time.Date(2026, 10, 18, 9, 0, 0, 0, sgt)
		searcher.respond = mapAt(tomorrowOpening)

		got, err := agg.AreaMapURLs(context.Background(), 7, info)
		Expect(err).NotTo(HaveOccurred())
		Expect(got[11]).To(Equal(quietMap))

		calls := searcher.Calls()
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].Start).To(BeTemporally("==", tomorrowOpening))
	})

	It("tries tomorrow when today's search reports no map", func() {
		searcher.respond = mapAt(time.Date(2026, 10, 18, 9, 0, 0, 0, sgt))

		got, err := agg.AreaMapURLs(context.Background(), 7, info)
		Expect(err).NotTo(HaveOccurred())
		Expect(got[11]).To(Equal(quietMap))
		Expect(searcher.Calls()).To(HaveLen(2))
	})

	It("reports no map when the area is closed and it is still morning", func() {
		lib := info[7]
		area := lib.Areas[11]
		area.OpeningTime = booking.TimeOfDay{Hour: 6}
		area.ClosingTime = booking.TimeOfDay{Hour: 8}
		lib.Areas[11] = area
		now = at(10, 0)

		got, err := agg.AreaMapURLs(context.Background(), 7, info)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveKey(booking.AreaID(11)))
		Expect(got[11]).To(BeNil())
		Expect(searcher.Calls()).To(BeEmpty())
	})

	It("propagates upstream failures", func() {
		boom := errors.New("boom")
		searcher.respond = func(time.Time, *booking.AreaID) (booking.AvailableAreas, error) {
			return nil, boom
		}

		_, err := agg.AreaMapURLs(context.Background(), 7, info)
		Expect(err).To(MatchError(boom))
	})

	It("rejects an unknown library", func() {
		_, err := agg.AreaMapURLs(context.Background(), 99, info)
		Expect(err).To(MatchError(booking.ErrNotFound))
	})
})
