package store

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// Reaper periodically deletes retired correlation records whose expiry
// marker has elapsed.
//
// Retirement never deletes a record directly; it only sets the expiry
// marker. The reaper is the single deletion path, which keeps retired
// records available for duplicate-delivery lookups until the retention
// period runs out.
//
// Example:
//
//	r, err := store.NewReaper(st, "@hourly")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r.Start()
//	defer r.Stop()
type Reaper struct {
	store    Store
	cron     *cron.Cron
	schedule string

	// OnReap, if set, is called after every sweep with the number of
	// records deleted and any error. Useful for wiring metrics or logs.
	OnReap func(deleted int, err error)
}

// NewReaper creates a reaper sweeping the store on the given cron schedule.
//
// The schedule accepts standard cron expressions ("0 * * * *") and the
// descriptors "@hourly", "@daily", and "@every 10m". An invalid schedule is
// a configuration error reported at construction.
func NewReaper(s Store, schedule string) (*Reaper, error) {
	r := &Reaper{
		store:    s,
		cron:     cron.New(),
		schedule: schedule,
	}
	if _, err := r.cron.AddFunc(schedule, r.sweep); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins background sweeping. Safe to call once.
func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop halts background sweeping, waiting for a running sweep to finish.
func (r *Reaper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one deletion pass immediately, outside the schedule.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	return r.store.DeleteExpired(ctx, time.Now().UTC().Unix())
}

func (r *Reaper) sweep() {
	deleted, err := r.Sweep(context.Background())
	if r.OnReap != nil {
		r.OnReap(deleted, err)
	}
}
