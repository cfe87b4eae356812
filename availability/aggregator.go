// Package availability builds seat-availability grids and area map lookups
// from per-instant queries against the booking provider.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ddevcap/seatgrid/booking"
	"github.com/ddevcap/seatgrid/timegrid"
)

// MinimumBookingDuration is the shortest booking the provider accepts. Every
// timeslot query asks for this duration, so a seat reported free at T is free
// through the following slot as well.
const MinimumBookingDuration = 30 * time.Minute

// ErrCatalogMismatch is returned when the provider reports an area or seat the
// library catalogue does not know about. The catalogue is out of date; it is
// joined with booking.ErrUpstreamUnavailable.
var ErrCatalogMismatch = errors.New("availability references unknown area or seat")

// Searcher answers "which seats of a library are free for duration from
// start". It is satisfied by *upstream.Client.
type Searcher interface {
	SearchAvailableAreas(ctx context.Context, library booking.LibraryID, start time.Time, duration time.Duration, area *booking.AreaID) (booking.AvailableAreas, error)
}

// Aggregator computes library availability grids. It holds no state between
// calls.
type Aggregator struct {
	searcher    Searcher
	loc         *time.Location
	now         func() time.Time
	concurrency int
}

type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithConcurrency caps the number of timeslot queries in flight during one
// aggregation. n <= 0 means no cap.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.concurrency = n }
}

func NewAggregator(s Searcher, loc *time.Location, opts ...Option) *Aggregator {
	a := &Aggregator{searcher: s, loc: loc, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Now returns the aggregator's current time.
func (a *Aggregator) Now() time.Time { return a.now() }

// Location returns the provider timezone the aggregator works in.
func (a *Aggregator) Location() *time.Location { return a.loc }

// LibraryAvailability computes the grid of every area of library on date,
// which must be today or tomorrow. One query per timeslot of the library
// window is issued concurrently; any failed query fails the whole
// computation and no partial grid is returned.
func (a *Aggregator) LibraryAvailability(ctx context.Context, library booking.LibraryID, date time.Time, info booking.LibraryInfo) (booking.LibraryAvailability, error) {
	now := a.now()
	if off := timegrid.DayOffset(date, now, a.loc); off != 0 && off != 1 {
		return nil, fmt.Errorf("availability: date %s is %d days from today: %w",
			date.In(a.loc).Format(time.DateOnly), off, booking.ErrContractViolation)
	}
	details, err := info.Library(library)
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}

	result := make(booking.LibraryAvailability, len(details.Areas))
	if len(details.Areas) == 0 {
		return result, nil
	}
	window := timegrid.LibraryWindow(details.Areas, date, now, a.loc)
	for id, area := range details.Areas {
		result[id] = emptyGrid(timegrid.AreaWindow(window, area, date, a.loc), area)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for _, slot := range window.Slots() {
		g.Go(func() error {
			areas, err := a.searcher.SearchAvailableAreas(gctx, library, slot, MinimumBookingDuration, nil)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return merge(result, details, slot, areas)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("availability: library %d: %w", library, err)
	}
	return result, nil
}

func emptyGrid(w timegrid.Window, area booking.AreaDetails) booking.DatedAreaAvailability {
	n := w.Len()
	seats := make(map[booking.SeatID]booking.SeatAvailability, len(area.Seats))
	for id := range area.Seats {
		seats[id] = make(booking.SeatAvailability, n)
	}
	return booking.DatedAreaAvailability{Start: w.Start, End: w.End, Seats: seats}
}

// merge folds one timeslot's answer into the grids. It only ever sets flags,
// so the order in which timeslots are merged does not matter.
func merge(result booking.LibraryAvailability, details booking.LibraryDetails, slot time.Time, areas booking.AvailableAreas) error {
	for areaID, found := range areas {
		area, ok := details.Areas[areaID]
		if !ok {
			return fmt.Errorf("%w: %w: area %d", booking.ErrUpstreamUnavailable, ErrCatalogMismatch, areaID)
		}
		grid := result[areaID]
		i := timegrid.SlotIndex(grid.Start, slot)
		for _, seatID := range found.Seats {
			if _, ok := area.Seats[seatID]; !ok {
				return fmt.Errorf("%w: %w: seat %d in area %d", booking.ErrUpstreamUnavailable, ErrCatalogMismatch, seatID, areaID)
			}
			markAvailable(grid.Seats[seatID], i)
		}
	}
	return nil
}

// markAvailable sets slot i and the slot after it, ignoring indexes outside
// the grid.
func markAvailable(grid booking.SeatAvailability, i int) {
	for _, j := range [2]int{i, i + 1} {
		if j >= 0 && j < len(grid) {
			grid[j] = true
		}
	}
}
