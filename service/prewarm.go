package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ddevcap/seatgrid/booking"
	"github.com/ddevcap/seatgrid/timegrid"
)

// prewarmTimeout bounds one prewarm pass.
const prewarmTimeout = 2 * time.Minute

// Prewarmer fills the caches on a cron schedule so the first viewer of a
// library does not wait for the upstream fan-out. It goes through the same
// pipelines as API callers and never bypasses the coalescer.
type Prewarmer struct {
	svc       *Service
	libraries []booking.LibraryID
	cron      *cron.Cron
	runCtx    context.Context
	cancel    context.CancelFunc
}

// NewPrewarmer validates schedule and returns a stopped prewarmer.
func NewPrewarmer(svc *Service, schedule string, libraries []booking.LibraryID) (*Prewarmer, error) {
	p := &Prewarmer{svc: svc, libraries: libraries, cron: cron.New(), runCtx: context.Background()}
	if _, err := p.cron.AddFunc(schedule, p.tick); err != nil {
		return nil, fmt.Errorf("prewarm: schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start begins running passes on the schedule.
func (p *Prewarmer) Start(ctx context.Context) {
	p.runCtx, p.cancel = context.WithCancel(ctx)
	p.cron.Start()
}

// Stop cancels a running pass and waits for it to return.
func (p *Prewarmer) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.cron.Stop().Done()
}

func (p *Prewarmer) tick() {
	ctx, cancel := context.WithTimeout(p.runCtx, prewarmTimeout)
	defer cancel()
	_ = p.Run(ctx)
}

// Run performs one pass: the catalogue, then today's and tomorrow's grids
// and the area maps of every configured library. Failures are logged and
// returned together; one library failing does not stop the others.
func (p *Prewarmer) Run(ctx context.Context) error {
	start := time.Now()
	if _, err := p.svc.LibraryInfo(ctx); err != nil {
		slog.Warn("prewarm: library info failed", "error", err)
		return err
	}

	today := p.svc.Today()
	dates := []time.Time{today, timegrid.AddDays(today, 1, p.svc.Location())}

	var errs []error
	for _, id := range p.libraries {
		for _, date := range dates {
			if _, err := p.svc.LibraryAvailability(ctx, id, date); err != nil {
				slog.Warn("prewarm: availability failed", "library", id,
					"date", date.Format(time.DateOnly), "error", err)
				errs = append(errs, err)
			}
		}
		if _, err := p.svc.AreaMapURLs(ctx, id); err != nil {
			slog.Warn("prewarm: area map urls failed", "library", id, "error", err)
			errs = append(errs, err)
		}
	}
	slog.Debug("prewarm pass finished", "libraries", len(p.libraries),
		"duration_ms", time.Since(start).Milliseconds())
	return errors.Join(errs...)
}
