package upstream

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ddevcap/seatgrid/booking"
)

var validate = validator.New()

type accountInfoPayload struct {
	Settings *settingsPayload `json:"settings" validate:"required"`
}

type settingsPayload struct {
	Menus *menusPayload `json:"menus" validate:"required"`
}

type menusPayload struct {
	BranchMenus []branchPayload `json:"branchMenus" validate:"dive"`
}

type branchPayload struct {
	ID    *int          `json:"id" validate:"required"`
	Name  string        `json:"name"`
	Areas []areaPayload `json:"areas" validate:"dive"`
}

type areaPayload struct {
	ID          *int          `json:"id" validate:"required"`
	Name        string        `json:"name"`
	OpeningTime string        `json:"openingTime" validate:"required"`
	ClosingTime string        `json:"closingTime" validate:"required"`
	Seats       []seatPayload `json:"seats" validate:"dive"`
}

type seatPayload struct {
	ID   *int   `json:"id" validate:"required"`
	Name string `json:"name"`
}

func (p accountInfoPayload) libraryInfo(loc *time.Location) (booking.LibraryInfo, error) {
	info := make(booking.LibraryInfo)
	for _, b := range p.Settings.Menus.BranchMenus {
		if len(b.Areas) == 0 {
			continue
		}
		areas := make(map[booking.AreaID]booking.AreaDetails, len(b.Areas))
		for _, a := range b.Areas {
			opening, err := parseClock(a.OpeningTime, loc)
			if err != nil {
				return nil, fmt.Errorf("area %d opening time: %w", *a.ID, err)
			}
			closing, err := parseClock(a.ClosingTime, loc)
			if err != nil {
				return nil, fmt.Errorf("area %d closing time: %w", *a.ID, err)
			}
			seats := make(map[booking.SeatID]booking.SeatDetails, len(a.Seats))
			for _, s := range a.Seats {
				seats[booking.SeatID(*s.ID)] = booking.SeatDetails{Name: s.Name}
			}
			areas[booking.AreaID(*a.ID)] = booking.AreaDetails{
				Name:        a.Name,
				OpeningTime: opening,
				ClosingTime: closing,
				Seats:       seats,
			}
		}
		info[booking.LibraryID(*b.ID)] = booking.LibraryDetails{Name: b.Name, Areas: areas}
	}
	return info, nil
}

type searchPayload struct {
	Found bool                   `json:"found"`
	Areas []availableAreaPayload `json:"areas" validate:"dive"`
}

type availableAreaPayload struct {
	AreaID         *int                   `json:"areaId" validate:"required"`
	AvailableSeats []availableSeatPayload `json:"availableSeats" validate:"dive"`
	AreaMapURLs    []string               `json:"areaMapUrls" validate:"omitempty,len=2"`
}

type availableSeatPayload struct {
	ID *int `json:"id" validate:"required"`
}

func (p searchPayload) availableAreas() booking.AvailableAreas {
	out := make(booking.AvailableAreas, len(p.Areas))
	if !p.Found {
		return out
	}
	for _, a := range p.Areas {
		seats := make([]booking.SeatID, 0, len(a.AvailableSeats))
		for _, s := range a.AvailableSeats {
			seats = append(seats, booking.SeatID(*s.ID))
		}
		var mapURL *booking.AreaMapURL
		if len(a.AreaMapURLs) == 2 {
			mapURL = &booking.AreaMapURL{a.AreaMapURLs[0], a.AreaMapURLs[1]}
		}
		out[booking.AreaID(*a.AreaID)] = booking.AvailableArea{Seats: seats, MapURL: mapURL}
	}
	return out
}

// parseClock reduces the provider's opening and closing datetimes to a
// wall-clock time in loc. Only the time of day is meaningful; the date part
// is whatever day the catalogue was generated.
func parseClock(s string, loc *time.Location) (booking.TimeOfDay, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.In(loc)
		return booking.TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", startTimeLayout} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return booking.TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return booking.ParseTimeOfDay(s)
}
