// Package booking holds the domain model shared by the upstream client, the
// availability aggregator and the cached read pipelines.
package booking

import (
	"fmt"
	"time"
)

// LibraryID, AreaID and SeatID are assigned by the booking provider and are
// never generated locally.
type (
	LibraryID int
	AreaID    int
	SeatID    int
)

// LibraryInfo is the full catalogue of bookable libraries.
type LibraryInfo map[LibraryID]LibraryDetails

type LibraryDetails struct {
	Name  string                 `json:"name"`
	Areas map[AreaID]AreaDetails `json:"areas"`
}

// AreaDetails is immutable once fetched. Opening and closing times are
// wall-clock times in the provider's timezone.
type AreaDetails struct {
	Name        string                 `json:"name"`
	OpeningTime TimeOfDay              `json:"opening_time"`
	ClosingTime TimeOfDay              `json:"closing_time"`
	Seats       map[SeatID]SeatDetails `json:"seats"`
}

type SeatDetails struct {
	Name string `json:"name"`
}

// Library returns the details of id, or an error wrapping ErrNotFound.
func (li LibraryInfo) Library(id LibraryID) (LibraryDetails, error) {
	d, ok := li[id]
	if !ok {
		return LibraryDetails{}, fmt.Errorf("library %d: %w", id, ErrNotFound)
	}
	return d, nil
}

// SeatAvailability holds one flag per timeslot, index 0 aligned to the
// owning DatedAreaAvailability's Start.
type SeatAvailability []bool

// DatedAreaAvailability is the grid of one area on one date. Every seat grid
// has the same length: the number of timeslots between Start and End.
type DatedAreaAvailability struct {
	Start time.Time                   `json:"start"`
	End   time.Time                   `json:"end"`
	Seats map[SeatID]SeatAvailability `json:"seats"`
}

// LibraryAvailability maps every area of a library to its grid. Areas that
// open later have shorter, later-starting grids.
type LibraryAvailability map[AreaID]DatedAreaAvailability

// AreaMapURL is the raw pair of map image names reported by the provider.
type AreaMapURL [2]string

// AreaMapURLs maps each area of a library to its map, or nil when the
// provider reported none.
type AreaMapURLs map[AreaID]*AreaMapURL

// AvailableArea is one area in the provider's answer to "which seats are free
// for this duration starting at this instant".
type AvailableArea struct {
	Seats  []SeatID
	MapURL *AreaMapURL
}

// AvailableAreas is keyed by area. Areas with nothing free may be absent.
type AvailableAreas map[AreaID]AvailableArea
