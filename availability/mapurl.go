package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ddevcap/seatgrid/booking"
	"github.com/ddevcap/seatgrid/timegrid"
)

// tomorrowLookupHour is the local hour from which an area that is closed for
// the rest of today is looked up on tomorrow's schedule instead.
const tomorrowLookupHour = 12

// AreaMapURLs looks up the map of every area of library. The provider only
// reports a map alongside a bookable search, so each area is searched at an
// instant it is open: later today if it has not closed yet, else at
// tomorrow's opening once past noon. Areas with no such instant, or for
// which the provider reports no map, map to nil.
func (a *Aggregator) AreaMapURLs(ctx context.Context, library booking.LibraryID, info booking.LibraryInfo) (booking.AreaMapURLs, error) {
	details, err := info.Library(library)
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}

	now := a.now()
	result := make(booking.AreaMapURLs, len(details.Areas))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for id, area := range details.Areas {
		g.Go(func() error {
			u, err := a.areaMapURL(gctx, library, id, area, now)
			if err != nil {
				return err
			}
			mu.Lock()
			result[id] = u
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("availability: map urls of library %d: %w", library, err)
	}
	return result, nil
}

func (a *Aggregator) areaMapURL(ctx context.Context, library booking.LibraryID, id booking.AreaID, area booking.AreaDetails, now time.Time) (*booking.AreaMapURL, error) {
	today := timegrid.StartOfDay(now, a.loc)
	var candidates []time.Time
	if closing := area.ClosingTime.On(today, a.loc); closing.After(now) {
		opening := area.OpeningTime.On(today, a.loc)
		if opening.Before(now) {
			opening = now
		}
		candidates = append(candidates, opening)
	}
	if now.In(a.loc).Hour() >= tomorrowLookupHour {
		candidates = append(candidates, area.OpeningTime.On(timegrid.AddDays(today, 1, a.loc), a.loc))
	}

	for _, at := range candidates {
		found, err := a.searcher.SearchAvailableAreas(ctx, library, at, MinimumBookingDuration, &id)
		if err != nil {
			return nil, err
		}
		if u := found[id].MapURL; u != nil {
			return u, nil
		}
	}
	return nil, nil
}
