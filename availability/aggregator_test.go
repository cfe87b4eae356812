package availability_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/seatgrid/availability"
	"github.com/ddevcap/seatgrid/booking"
	"github.com/ddevcap/seatgrid/timegrid"
)

// seatFreeAt answers with seat of area as free only at the given instants.
func seatFreeAt(area booking.AreaID, seat booking.SeatID, instants ...time.Time) func(time.Time, *booking.AreaID) (booking.AvailableAreas, error) {
	return func(start time.Time, _ *booking.AreaID) (booking.AvailableAreas, error) {
		for _, t := range instants {
			if start.Equal(t) {
				return booking.AvailableAreas{area: {Seats: []booking.SeatID{seat}}}, nil
			}
		}
		return booking.AvailableAreas{}, nil
	}
}

var _ = Describe("Aggregator", func() {
	var (
		searcher *fakeSearcher
		now      time.Time
		agg      *availability.Aggregator
		info     booking.LibraryInfo
	)

	BeforeEach(func() {
		searcher = &fakeSearcher{}
		now = at(14, 5)
		info = oneAreaLibrary()
		agg = availability.NewAggregator(searcher, sgt, availability.WithClock(func() time.Time { return now }))
	})

	Describe("LibraryAvailability", func() {
		It("starts the grid at the next slot and sizes it to closing time", func() {
			searcher.respond = seatFreeAt(11, 1, at(14, 15))

			got, err := agg.LibraryAvailability(context.Background(), 7, now, info)
			Expect(err).NotTo(HaveOccurred())

			area := got[11]
			Expect(area.Start).To(BeTemporally("==", at(14, 15)))
			Expect(area.End).To(BeTemporally("==", at(22, 0)))
			Expect(area.Seats[1]).To(HaveLen(31))
			Expect(area.Seats[1][:3]).To(Equal(booking.SeatAvailability{true, true, false}))
			Expect(area.Seats[1][2:]).NotTo(ContainElement(true))
			Expect(area.Seats[2]).To(HaveLen(31))
			Expect(area.Seats[2]).NotTo(ContainElement(true))
		})

		It("issues one query per timeslot for the minimum booking duration", func() {
			_, err := agg.LibraryAvailability(context.Background(), 7, now, info)
			Expect(err).NotTo(HaveOccurred())

			calls := searcher.Calls()
			Expect(calls).To(HaveLen(31))
			starts := make([]time.Time, 0, len(calls))
			for _, c := range calls {
				Expect(c.Duration).To(Equal(availability.MinimumBookingDuration))
				Expect(c.Area).To(BeNil())
				starts = append(starts, c.Start)
			}
			Expect(starts).To(ConsistOf(timegrid.Timeslots(at(14, 15), at(22, 0))))
		})

		It("marks the reported slot and the one after it", func() {
			searcher.respond = seatFreeAt(11, 1, at(15, 0))

			got, err := agg.LibraryAvailability(context.Background(), 7, now, info)
			Expect(err).NotTo(HaveOccurred())

			grid := got[11].Seats[1]
			Expect(grid[2]).To(BeFalse())
			Expect(grid[3]).To(BeTrue())
			Expect(grid[4]).To(BeTrue())
			Expect(grid[5]).To(BeFalse())
		})

		It("does not bleed past the end of the grid", func() {
			searcher.respond = seatFreeAt(11, 2, at(21, 45))

			got, err := agg.LibraryAvailability(context.Background(), 7, now, info)
			Expect(err).NotTo(HaveOccurred())

			grid := got[11].Seats[2]
			Expect(grid).To(HaveLen(31))
			Expect(grid[30]).To(BeTrue())
			Expect(grid[29]).To(BeFalse())
		})

		It("gives areas that open later a shorter, later grid", func() {
			lib := info[7]
			lib.Areas[12] = booking.AreaDetails{
				Name:        "Late Pods",
				OpeningTime: booking.TimeOfDay{Hour: 16},
				ClosingTime: booking.TimeOfDay{Hour: 22},
				Seats:       map[booking.SeatID]booking.SeatDetails{5: {Name: "P5"}},
			}
			searcher.respond = seatFreeAt(12, 5, at(16, 0))

			got, err := agg.LibraryAvailability(context.Background(), 7, now, info)
			Expect(err).NotTo(HaveOccurred())

			late := got[12]
			Expect(late.Start).To(BeTemporally("==", at(16, 0)))
			Expect(late.Seats[5]).To(HaveLen(24))
			Expect(late.Seats[5][:3]).To(Equal(booking.SeatAvailability{true, true, false}))
			Expect(got[11].Seats[1]).To(HaveLen(31))
		})

		It("keeps every seat grid of an area the same length", func() {
			got, err := agg.LibraryAvailability(context.Background(), 7, now, info)
			Expect(err).NotTo(HaveOccurred())

			for _, area := range got {
				want := timegrid.SlotCount(area.Start, area.End)
				for _, grid := range area.Seats {
					Expect(grid).To(HaveLen(want))
				}
			}
		})

		It("covers the whole opening hours of tomorrow", func() {
			tomorrow := timegrid.AddDays(now, 1, sgt)

			got, err := agg.LibraryAvailability(context.Background(), 7, tomorrow, info)
			Expect(err).NotTo(HaveOccurred())

			Expect(got[11].Start).To(BeTemporally("==", time.Date(2026, 10, 18, 9, 0, 0, 0, sgt)))
			Expect(got[11].Seats[1]).To(HaveLen(52))
			Expect(searcher.Calls()).To(HaveLen(52))
		})

		It("returns empty grids without querying once the library has closed", func() {
			now = at(23, 10)

			got, err := agg.LibraryAvailability(context.Background(), 7, now, info)
			Expect(err).NotTo(HaveOccurred())

			Expect(got[11].Seats[1]).To(BeEmpty())
			Expect(searcher.Calls()).To(BeEmpty())
		})

		DescribeTable("rejects dates other than today and tomorrow",
			func(days int) {
				date := timegrid.AddDays(now, days, sgt)

				_, err := agg.LibraryAvailability(context.Background(), 7, date, info)
				Expect(err).To(MatchError(booking.ErrContractViolation))
				Expect(searcher.Calls()).To(BeEmpty())
			},
			Entry("yesterday", -1),
			Entry("the day after tomorrow", 2),
			Entry("next week", 7),
		)

		It("rejects an unknown library", func() {
			_, err := agg.LibraryAvailability(context.Background(), 99, now, info)
			Expect(err).To(MatchError(booking.ErrNotFound))
			Expect(err).To(MatchError(booking.ErrContractViolation))
		})

		It("fails the whole computation when any timeslot query fails", func() {
			boom := errors.New("boom")
			searcher.respond = func(start time.Time, _ *booking.AreaID) (booking.AvailableAreas, error) {
				if start.Equal(at(18, 30)) {
					return nil, boom
				}
				return booking.AvailableAreas{11: {Seats: []booking.SeatID{1}}}, nil
			}

			got, err := agg.LibraryAvailability(context.Background(), 7, now, info)
			Expect(err).To(MatchError(boom))
			Expect(got).To(BeNil())
		})

		It("reports an unknown area as a catalogue mismatch", func() {
			searcher.respond = seatFreeAt(404, 1, at(14, 15))

			_, err := agg.LibraryAvailability(context.Background(), 7, now, info)
			Expect(err).To(MatchError(availability.ErrCatalogMismatch))
			Expect(err).To(MatchError(booking.ErrUpstreamUnavailable))
		})

		It("reports an unknown seat as a catalogue mismatch", func() {
			searcher.respond = seatFreeAt(11, 404, at(14, 15))

			_, err := agg.LibraryAvailability(context.Background(), 7, now, info)
			Expect(err).To(MatchError(availability.ErrCatalogMismatch))
		})

		It("caps the number of queries in flight", func() {
			searcher.delay = 5 * time.Millisecond
			agg = availability.NewAggregator(searcher, sgt,
				availability.WithClock(func() time.Time { return now }),
				availability.WithConcurrency(3))

			_, err := agg.LibraryAvailability(context.Background(), 7, now, info)
			Expect(err).NotTo(HaveOccurred())
			Expect(searcher.Calls()).To(HaveLen(31))
			Expect(searcher.maxInFlight.Load()).To(BeNumerically("<=", 3))
		})
	})
})
