/*
scheduler.go - Background daily billing scheduler

PURPOSE:
  Wakes up on a ticker and runs the daily billing pass at most once per
  business-local calendar day.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Before each pass, asks the run store whether today already has a
    completed run; if so the tick is a no-op
  - A failed pass is retried on the next tick
  - Every pass is recorded in billing_runs for audit and the admin UI

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewDailyScheduler(billingScheduler, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - billing/schedule.go: One pass (due selection, generate, email)
  - handlers.go: TriggerBillingRun endpoint (manual pass)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/statement-engine/billing"
)

// DailyScheduler triggers billing.Scheduler.RunDaily once per day.
type DailyScheduler struct {
	Billing       *billing.Scheduler
	CheckInterval time.Duration
	Enabled       bool
	Log           zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// pass serializes ticks with RunNow.
	pass sync.Mutex
}

// NewDailyScheduler creates a new scheduler.
func NewDailyScheduler(b *billing.Scheduler, log zerolog.Logger) *DailyScheduler {
	return &DailyScheduler{
		Billing:       b,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (ds *DailyScheduler) Start() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.Enabled {
		ds.Log.Info().Msg("scheduler disabled, not starting")
		return
	}
	if ds.ticker != nil {
		return
	}

	ds.ticker = time.NewTicker(ds.CheckInterval)
	ds.stop = make(chan struct{})
	ds.wg.Add(1)
	go ds.run()

	ds.Log.Info().Dur("check_interval", ds.CheckInterval).Msg("scheduler started")
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (ds *DailyScheduler) Stop() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.ticker != nil {
		ds.ticker.Stop()
		close(ds.stop)
		ds.wg.Wait()
		ds.ticker = nil
		ds.Log.Info().Msg("scheduler stopped")
	}
}

func (ds *DailyScheduler) run() {
	defer ds.wg.Done()

	// Run immediately on start
	ds.checkAndRun(context.Background())

	for {
		select {
		case <-ds.ticker.C:
			ds.checkAndRun(context.Background())
		case <-ds.stop:
			return
		}
	}
}

// checkAndRun runs the pass unless today already has a completed run. It
// reports whether a pass ran.
func (ds *DailyScheduler) checkAndRun(ctx context.Context) bool {
	ds.pass.Lock()
	defer ds.pass.Unlock()

	today := ds.Billing.Engine.Calendar.Today().Format("2006-01-02")
	done, err := ds.Billing.Engine.Store.CompletedRunOn(ctx, today)
	if err != nil {
		ds.Log.Error().Err(err).Str("run_date", today).Msg("failed to check billing run status")
		return false
	}
	if done != nil {
		ds.Log.Debug().Str("run_date", today).Str("run_id", done.ID).Msg("daily billing already completed")
		return false
	}

	if _, err := ds.Billing.RunDaily(ctx); err != nil {
		ds.Log.Error().Err(err).Str("run_date", today).Msg("daily billing run failed, will retry next tick")
	}
	return true
}

// RunNow triggers an immediate check (for testing/admin).
func (ds *DailyScheduler) RunNow(ctx context.Context) bool {
	return ds.checkAndRun(ctx)
}

// NextCheck returns when the next scheduled check will occur.
func (ds *DailyScheduler) NextCheck() time.Time {
	return time.Now().Add(ds.CheckInterval)
}
