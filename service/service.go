// Package service exposes the three cached read pipelines the API serves:
// the library catalogue, per-day availability grids and area map URLs. Each
// pipeline coalesces concurrent misses into one upstream fetch.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ddevcap/seatgrid/availability"
	"github.com/ddevcap/seatgrid/booking"
	"github.com/ddevcap/seatgrid/cache"
	"github.com/ddevcap/seatgrid/config"
	"github.com/ddevcap/seatgrid/timegrid"
)

// Upstream is the part of the booking provider client the service needs.
// It is satisfied by *upstream.Client.
type Upstream interface {
	availability.Searcher
	GetAccountInfo(ctx context.Context) (booking.LibraryInfo, error)
}

type (
	infoKey         = struct{}
	availabilityKey = cache.DayKey[booking.LibraryID]
)

// Service owns the caches. Create one per process with New and release it
// with Close.
//
// Staleness policy per pipeline:
//   - library info: strict, a value older than its TTL is never served.
//   - availability: strict, two day buckets rotated at local midnight.
//   - area map URLs: lazy, a stale value is served while a refresh runs.
type Service struct {
	upstream Upstream
	agg      *availability.Aggregator
	loc      *time.Location
	now      func() time.Time

	infoStore         *cache.TTLCache[infoKey, booking.LibraryInfo]
	availabilityStore *cache.DayBuckets[booking.LibraryID, booking.LibraryAvailability]
	mapURLStore       *cache.TTLCache[booking.LibraryID, booking.AreaMapURLs]

	info         *cache.Loader[infoKey, booking.LibraryInfo]
	availability *cache.Loader[availabilityKey, booking.LibraryAvailability]
	mapURLs      *cache.Loader[booking.LibraryID, booking.AreaMapURLs]
}

type Option func(*Service)

// WithClock replaces time.Now for every cache and the aggregator.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(up Upstream, cfg config.Config, loc *time.Location, opts ...Option) *Service {
	s := &Service{upstream: up, loc: loc, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	clock := cache.WithClock(s.now)

	s.agg = availability.NewAggregator(up, loc,
		availability.WithClock(s.now),
		availability.WithConcurrency(cfg.UpstreamConcurrency))

	s.infoStore = cache.NewTTLCache[infoKey, booking.LibraryInfo](cfg.LibraryInfoTTL, clock)
	s.availabilityStore = cache.NewDayBuckets[booking.LibraryID, booking.LibraryAvailability](cfg.LibraryAvailabilityTTL, loc, clock)
	s.mapURLStore = cache.NewTTLCache[booking.LibraryID, booking.AreaMapURLs](cfg.AreaMapURLTTL, clock, cache.WithPolicy(cache.Lazy))

	s.info = cache.NewLoader[infoKey, booking.LibraryInfo]("library_info", s.infoStore, s.fetchInfo, clock)
	s.availability = cache.NewLoader[availabilityKey, booking.LibraryAvailability]("library_availability", s.availabilityStore, s.fetchAvailability, clock)
	s.mapURLs = cache.NewLoader[booking.LibraryID, booking.AreaMapURLs]("area_map_urls", s.mapURLStore, s.fetchMapURLs, clock)
	return s
}

// Close stops the caches' background eviction.
func (s *Service) Close() {
	s.infoStore.Close()
	s.availabilityStore.Close()
	s.mapURLStore.Close()
}

// Location returns the provider timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Today returns local midnight of the current day.
func (s *Service) Today() time.Time { return timegrid.StartOfDay(s.now(), s.loc) }

// LibraryInfo returns the library catalogue.
func (s *Service) LibraryInfo(ctx context.Context) (cache.Entry[booking.LibraryInfo], error) {
	return s.info.Get(ctx, infoKey{})
}

// LibraryAvailability returns the grids of library on date. date must fall on
// today or tomorrow in the provider timezone; any other date and any unknown
// library are contract violations.
func (s *Service) LibraryAvailability(ctx context.Context, library booking.LibraryID, date time.Time) (cache.Entry[booking.LibraryAvailability], error) {
	if err := s.checkLibrary(ctx, library); err != nil {
		return cache.Entry[booking.LibraryAvailability]{}, err
	}
	key := availabilityKey{ID: library, Date: timegrid.StartOfDay(date, s.loc)}
	return s.availability.Get(ctx, key)
}

// AreaMapURLs returns the map of every area of library.
func (s *Service) AreaMapURLs(ctx context.Context, library booking.LibraryID) (cache.Entry[booking.AreaMapURLs], error) {
	if err := s.checkLibrary(ctx, library); err != nil {
		return cache.Entry[booking.AreaMapURLs]{}, err
	}
	return s.mapURLs.Get(ctx, library)
}

// ResetAvailability drops every cached grid.
func (s *Service) ResetAvailability() {
	s.availabilityStore.Reset()
}

func (s *Service) checkLibrary(ctx context.Context, library booking.LibraryID) error {
	info, err := s.LibraryInfo(ctx)
	if err != nil {
		return err
	}
	_, err = info.Value.Library(library)
	return err
}

func (s *Service) fetchInfo(ctx context.Context, _ infoKey) (booking.LibraryInfo, error) {
	return s.upstream.GetAccountInfo(ctx)
}

func (s *Service) fetchAvailability(ctx context.Context, key availabilityKey) (booking.LibraryAvailability, error) {
	info, err := s.LibraryInfo(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.agg.LibraryAvailability(ctx, key.ID, key.Date, info.Value)
	if errors.Is(err, availability.ErrCatalogMismatch) {
		// The catalogue no longer matches what the provider books; drop it so
		// the next request refetches both.
		slog.Warn("library info out of date, invalidating", "library", key.ID, "error", err)
		if ierr := s.info.Invalidate(infoKey{}); ierr != nil {
			return nil, fmt.Errorf("%w (invalidating library info: %v)", err, ierr)
		}
	}
	return result, err
}

func (s *Service) fetchMapURLs(ctx context.Context, library booking.LibraryID) (booking.AreaMapURLs, error) {
	info, err := s.LibraryInfo(ctx)
	if err != nil {
		return nil, err
	}
	return s.agg.AreaMapURLs(ctx, library, info.Value)
}
