/*
schedule.go - Daily billing pass

PURPOSE:
  Decides which clients are due for an automatic statement today, generates
  one for each auto-enabled client and hands it to the email dispatcher when
  auto-email is on. Triggering (cron, ticker) lives elsewhere; RunDaily is
  one pass.

DUE RULE:
  Normal day:        statementCreateDate == today
  Last day of month: statementCreateDate >= today
  The second rule bills clients configured for day 29/30/31 on the last
  real day of a short month.

FAILURE POLICY:
  Every per-client failure (including "unpaid statement exists") is logged
  and the pass moves on. Email failure never rolls back the statement. The
  pass always logs a completion marker.

SEE ALSO:
  - api/scheduler.go: Background ticker that calls RunDaily once per day
*/
package billing

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher delivers a generated statement to a client.
type Dispatcher interface {
	SendStatementEmail(ctx context.Context, clientEmail string, statementID StatementID) error
}

// SchedulerConfig is fixed at construction time.
type SchedulerConfig struct {
	// SystemUserID is recorded as CreatedBy on auto-generated statements.
	SystemUserID string
}

// RunStatus is the outcome of a daily pass.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run records one daily pass.
type Run struct {
	ID          string
	RunDate     string // YYYY-MM-DD, business-local
	Status      RunStatus
	Matched     int
	Generated   int
	Emailed     int
	Skipped     int
	Failed      int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// DueFilter returns the statement-create day to match for today and
// whether later days also match (last day of the month).
func DueFilter(today time.Time) (day int, orLater bool) {
	return today.Day(), IsLastDayOfMonth(today)
}

// IsDue reports whether a client with the given statement-create day is
// selected on today.
func IsDue(statementCreateDate int, today time.Time) bool {
	day, orLater := DueFilter(today)
	if orLater {
		return statementCreateDate >= day
	}
	return statementCreateDate == day
}

// Scheduler runs the daily billing pass.
type Scheduler struct {
	Engine     *Engine
	Dispatcher Dispatcher
	Config     SchedulerConfig
	Log        zerolog.Logger
}

// NewScheduler creates a scheduler. A nil dispatcher disables email.
func NewScheduler(engine *Engine, dispatcher Dispatcher, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Engine:     engine,
		Dispatcher: dispatcher,
		Config:     cfg,
		Log:        log,
	}
}

// RunDaily performs one pass for the current business-local day. The
// returned error is non-nil only when the due clients could not be listed.
func (s *Scheduler) RunDaily(ctx context.Context) (Run, error) {
	today := s.Engine.Calendar.Today()
	run := Run{
		ID:        s.Engine.id(),
		RunDate:   today.Format("2006-01-02"),
		Status:    RunRunning,
		StartedAt: today,
	}
	store := s.Engine.Store
	s.saveRun(ctx, run)

	day, orLater := DueFilter(today)
	clients, err := store.ListClientsByStatementDay(ctx, day, orLater)
	if err != nil {
		s.Log.Error().Err(err).Int("day", day).Msg("failed to list due clients")
		run.Status = RunFailed
		run.Error = err.Error()
		s.finish(ctx, &run)
		return run, internal("list due clients", err)
	}
	run.Matched = len(clients)

	for _, c := range clients {
		if !c.AutoCreateStatementsEnabled {
			run.Skipped++
			continue
		}
		s.processClient(ctx, c, today, &run)
	}

	run.Status = RunCompleted
	s.finish(ctx, &run)
	return run, nil
}

func (s *Scheduler) processClient(ctx context.Context, c Client, today time.Time, run *Run) {
	log := s.Log.With().Str("client_id", string(c.ID)).Logger()

	window := s.Engine.Calendar.CycleWindow(c.CycleDate, today)
	st, err := s.Engine.GenerateStatement(ctx, GenerateRequest{
		ClientID:        c.ID,
		IssuedStartDate: window.Start,
		IssuedEndDate:   window.End,
		CreationMethod:  CreationAuto,
		CreatedBy:       s.Config.SystemUserID,
	})
	if err != nil {
		run.Failed++
		log.Error().Err(err).Str("window", window.String()).Msg("statement generation failed")
		return
	}
	run.Generated++
	log.Info().Str("statement_id", string(st.ID)).Str("total", st.TotalAmount.StringFixed(2)).Msg("statement generated")

	if !c.AutoEmailEnabled() || s.Dispatcher == nil {
		return
	}
	if err := s.Dispatcher.SendStatementEmail(ctx, c.Email, st.ID); err != nil {
		log.Error().Err(err).Str("statement_id", string(st.ID)).Msg("statement email failed")
		return
	}
	run.Emailed++
}

func (s *Scheduler) finish(ctx context.Context, run *Run) {
	done := s.Engine.Calendar.Today()
	run.CompletedAt = &done
	s.saveRun(ctx, *run)
	s.Log.Info().
		Str("run_date", run.RunDate).
		Str("status", string(run.Status)).
		Int("matched", run.Matched).
		Int("generated", run.Generated).
		Int("emailed", run.Emailed).
		Int("skipped", run.Skipped).
		Int("failed", run.Failed).
		Msg("daily billing run finished")
}

func (s *Scheduler) saveRun(ctx context.Context, run Run) {
	if err := s.Engine.Store.SaveRun(ctx, run); err != nil {
		s.Log.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record billing run")
	}
}
