// Package timegrid computes the fixed-width timeslot sequences that
// availability grids are laid out on.
package timegrid

import (
	"time"
)

// SlotWidth is the booking granularity of the provider.
const SlotWidth = 15 * time.Minute

// SlotCount returns ceil((end-start)/SlotWidth), or 0 when end is not after
// start.
func SlotCount(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	n := int(d / SlotWidth)
	if d%SlotWidth != 0 {
		n++
	}
	return n
}

// Timeslots returns the start instant of every slot between start and end.
// The last slot may extend past end.
func Timeslots(start, end time.Time) []time.Time {
	n := SlotCount(start, end)
	slots := make([]time.Time, n)
	for i := range slots {
		slots[i] = start.Add(time.Duration(i) * SlotWidth)
	}
	return slots
}

// SlotIndex returns floor((instant-start)/SlotWidth). Instants before start
// yield negative indices.
func SlotIndex(start, instant time.Time) int {
	d := instant.Sub(start)
	i := int(d / SlotWidth)
	if d%SlotWidth < 0 {
		i--
	}
	return i
}

// NextSlot returns the first slot boundary strictly after t, measured on the
// wall clock in loc. A t that sits exactly on a boundary advances a full slot.
func NextSlot(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	hour := time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), 0, 0, 0, loc)
	perHour := int(time.Hour / SlotWidth)
	slotMinutes := int(SlotWidth / time.Minute)
	next := l.Minute()/slotMinutes + 1
	if next >= perHour {
		return hour.Add(time.Hour)
	}
	return hour.Add(time.Duration(next) * SlotWidth)
}
