package timegrid

import (
	"time"

	"github.com/ddevcap/seatgrid/booking"
)

// Window is the span a grid covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// Slots returns the timeslots of the window.
func (w Window) Slots() []time.Time { return Timeslots(w.Start, w.End) }

// Len returns the number of timeslots in the window.
func (w Window) Len() int { return SlotCount(w.Start, w.End) }

// LibraryWindow computes the library-wide window on date. It ends at the
// latest closing time of any area and starts at
// clip(earliest opening, NextSlot(now), end): never before now (rounded up
// to the next slot), never before the first area opens, never after the end.
// areas must not be empty.
func LibraryWindow(areas map[booking.AreaID]booking.AreaDetails, date, now time.Time, loc *time.Location) Window {
	var opening, closing time.Time
	first := true
	for _, a := range areas {
		o := a.OpeningTime.On(date, loc)
		c := a.ClosingTime.On(date, loc)
		if first {
			opening, closing = o, c
			first = false
			continue
		}
		opening = minTime(opening, o)
		closing = maxTime(closing, c)
	}
	start := maxTime(opening, minTime(NextSlot(now, loc), closing))
	return Window{Start: start, End: closing}
}

// AreaWindow narrows the library window to one area: it starts no earlier
// than the area opens and ends when the area closes.
func AreaWindow(library Window, area booking.AreaDetails, date time.Time, loc *time.Location) Window {
	return Window{
		Start: maxTime(library.Start, area.OpeningTime.On(date, loc)),
		End:   area.ClosingTime.On(date, loc),
	}
}
