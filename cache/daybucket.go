package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ddevcap/seatgrid/booking"
	"github.com/ddevcap/seatgrid/timegrid"
)

// ErrDayPassed is returned, together with booking.ErrContractViolation, when
// a key's date is already in the past. A Loader whose fetch straddled local
// midnight sees it from Put and hands the value back without storing it.
var ErrDayPassed = errors.New("day has passed")

// DayKey addresses a value for one entity on one local calendar day.
type DayKey[K comparable] struct {
	ID   K
	Date time.Time
}

func (k DayKey[K]) String() string {
	return fmt.Sprintf("%v@%s", k.ID, k.Date.Format("2006-01-02"))
}

// DayBuckets is a cache keyed by (entity, date) where the date must be today
// or tomorrow. Entries live in two buckets chosen by the parity of the day
// number, so rolling over at midnight only ever clears a bucket; keys are
// never rewritten.
//
// Rotation happens on access. When the local day has advanced by exactly one
// since the last access, the bucket that held the now-past day is cleared and
// becomes tomorrow's. When it advanced by two or more (or went backwards),
// both buckets are cleared.
type DayBuckets[K comparable, V any] struct {
	loc *time.Location
	now func() time.Time
	ttl time.Duration

	mu       sync.Mutex
	buckets  [2]*TTLCache[K, V]
	lastSeen int
}

// NewDayBuckets creates the two buckets with the given TTL and options.
func NewDayBuckets[K comparable, V any](ttl time.Duration, loc *time.Location, opts ...Option) *DayBuckets[K, V] {
	o := buildOptions(opts)
	d := &DayBuckets[K, V]{
		loc: loc,
		now: o.now,
		ttl: ttl,
	}
	for i := range d.buckets {
		d.buckets[i] = NewTTLCache[K, V](ttl, opts...)
	}
	d.lastSeen = timegrid.DaysSinceEpoch(d.now(), loc)
	return d
}

// TTL returns the time-to-live of both buckets.
func (d *DayBuckets[K, V]) TTL() time.Duration { return d.ttl }

// Get returns the fresh value for key.
func (d *DayBuckets[K, V]) Get(key DayKey[K]) (V, bool, error) {
	var (
		v  V
		ok bool
	)
	err := d.withBucket(key.Date, func(b *TTLCache[K, V]) {
		v, ok = b.Get(key.ID)
	})
	return v, ok, err
}

// Lookup reports the entry for key and its state.
func (d *DayBuckets[K, V]) Lookup(key DayKey[K]) (Entry[V], State, error) {
	var (
		e     Entry[V]
		state State
	)
	err := d.withBucket(key.Date, func(b *TTLCache[K, V]) {
		e, state = b.lookup(key.ID)
	})
	return e, state, err
}

// Put stores value for key.
func (d *DayBuckets[K, V]) Put(key DayKey[K], value V, fetchedAt time.Time) error {
	return d.withBucket(key.Date, func(b *TTLCache[K, V]) {
		_ = b.Put(key.ID, value, fetchedAt)
	})
}

// Invalidate removes the entry for key.
func (d *DayBuckets[K, V]) Invalidate(key DayKey[K]) error {
	return d.withBucket(key.Date, func(b *TTLCache[K, V]) {
		_ = b.Invalidate(key.ID)
	})
}

// Reset clears both buckets and re-anchors rotation on the current day.
func (d *DayBuckets[K, V]) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buckets[0].Clear()
	d.buckets[1].Clear()
	d.lastSeen = timegrid.DaysSinceEpoch(d.now(), d.loc)
}

// Close stops both buckets' eviction loops.
func (d *DayBuckets[K, V]) Close() {
	d.buckets[0].Close()
	d.buckets[1].Close()
}

// withBucket validates date, rotates if the day has changed and runs fn on
// date's bucket. The lock is held for the whole operation so a write can
// never land in a bucket that a concurrent rotation just repurposed.
func (d *DayBuckets[K, V]) withBucket(date time.Time, fn func(b *TTLCache[K, V])) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	today := timegrid.DaysSinceEpoch(d.now(), d.loc)
	day := timegrid.DaysSinceEpoch(date, d.loc)
	switch offset := day - today; {
	case offset < 0:
		return fmt.Errorf("cache: %s is %d days before today: %w: %w",
			date.In(d.loc).Format("2006-01-02"), -offset, ErrDayPassed, booking.ErrContractViolation)
	case offset > 1:
		return fmt.Errorf("cache: %s is %d days from today, want today or tomorrow: %w",
			date.In(d.loc).Format("2006-01-02"), offset, booking.ErrContractViolation)
	}

	d.rotate(today)
	fn(d.buckets[parity(day)])
	return nil
}

func (d *DayBuckets[K, V]) rotate(today int) {
	switch elapsed := today - d.lastSeen; {
	case elapsed == 0:
	case elapsed == 1:
		d.buckets[parity(d.lastSeen)].Clear()
	default:
		d.buckets[0].Clear()
		d.buckets[1].Clear()
	}
	d.lastSeen = today
}

func parity(day int) int {
	return ((day % 2) + 2) % 2
}
