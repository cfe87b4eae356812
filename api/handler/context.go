package handler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ddevcap/seatgrid/booking"
	"github.com/ddevcap/seatgrid/cache"
)

// LibraryService is the read side the handlers serve. *service.Service
// satisfies it.
type LibraryService interface {
	LibraryInfo(ctx context.Context) (cache.Entry[booking.LibraryInfo], error)
	LibraryAvailability(ctx context.Context, library booking.LibraryID, date time.Time) (cache.Entry[booking.LibraryAvailability], error)
	AreaMapURLs(ctx context.Context, library booking.LibraryID) (cache.Entry[booking.AreaMapURLs], error)
	Today() time.Time
	Location() *time.Location
}

// libraryIDParam parses the :libraryId path parameter.
func libraryIDParam(c *gin.Context) (booking.LibraryID, error) {
	raw := c.Param("libraryId")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid library id %q: %w", raw, booking.ErrContractViolation)
	}
	return booking.LibraryID(id), nil
}

// dateQuery parses the optional ?date=YYYY-MM-DD query parameter as a day in
// the provider timezone, defaulting to today.
func dateQuery(c *gin.Context, svc LibraryService) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		return svc.Today(), nil
	}
	d, err := time.ParseInLocation(time.DateOnly, raw, svc.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", raw, booking.ErrContractViolation)
	}
	return d, nil
}

// timedResponse wraps a cached value with the instants it was fetched and
// goes stale, so clients can schedule their own refresh.
type timedResponse[V any] struct {
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Data      V         `json:"data"`
}

func timed[V any](e cache.Entry[V]) timedResponse[V] {
	return timedResponse[V]{FetchedAt: e.FetchedAt, ExpiresAt: e.ExpiresAt, Data: e.Value}
}
