package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/statement-engine/billing"
	"github.com/warp/statement-engine/billing/store"
)

// recordingDispatcher captures every email request.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

type sentEmail struct {
	Email       string
	StatementID billing.StatementID
}

func (d *recordingDispatcher) SendStatementEmail(_ context.Context, email string, id billing.StatementID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentEmail{Email: email, StatementID: id})
	return d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func newScheduler(t *testing.T, now time.Time, d billing.Dispatcher) (*billing.Scheduler, *billing.Engine, *store.Memory) {
	t.Helper()
	e, mem := newEngine(t, now)
	return billing.NewScheduler(e, d, billing.SchedulerConfig{SystemUserID: "system"}, zerolog.Nop()), e, mem
}

func addClient(t *testing.T, e *billing.Engine, id billing.ClientID, statementDay int, autoCreate, autoEmail bool) {
	t.Helper()
	_, err := e.CreateClient(context.Background(), billing.ClientInput{
		ID:                          id,
		Name:                        "Client " + string(id),
		Email:                       string(id) + "@example.com",
		CycleDate:                   statementDay,
		StatementCreateDate:         statementDay,
		AutoCreateStatementsEnabled: autoCreate,
		AutoEmailStatementsEnabled:  autoEmail,
	})
	require.NoError(t, err)
}

func statementCount(t *testing.T, mem *store.Memory, id billing.ClientID) int {
	t.Helper()
	list, err := mem.ListStatements(context.Background(), id)
	require.NoError(t, err)
	return len(list)
}

func TestRunDaily_LastDayOfShortMonth(t *testing.T) {
	// GIVEN: Feb 28 2026 and clients on statement days 27, 28, 29, 31 and 1
	s, e, mem := newScheduler(t, noon(2026, 2, 28), nil)
	for _, c := range []struct {
		id  billing.ClientID
		day int
	}{{"d27", 27}, {"d28", 28}, {"d29", 29}, {"d31", 31}, {"d01", 1}} {
		addClient(t, e, c.id, c.day, true, false)
	}

	// WHEN
	run, err := s.RunDaily(context.Background())
	require.NoError(t, err)

	// THEN: 28, 29 and 31 are billed; 27 and 1 are not
	assert.Equal(t, 3, run.Matched)
	assert.Equal(t, 3, run.Generated)
	assert.Equal(t, 1, statementCount(t, mem, "d28"))
	assert.Equal(t, 1, statementCount(t, mem, "d29"))
	assert.Equal(t, 1, statementCount(t, mem, "d31"))
	assert.Equal(t, 0, statementCount(t, mem, "d27"))
	assert.Equal(t, 0, statementCount(t, mem, "d01"))
}

func TestRunDaily_AutoStatementFields(t *testing.T) {
	s, e, mem := newScheduler(t, noon(2026, 3, 15), nil)
	addClient(t, e, "a", 15, true, false)
	mustInvoice(t, e, "a", noon(2026, 3, 1), "75")

	_, err := s.RunDaily(context.Background())
	require.NoError(t, err)

	list, err := mem.ListStatements(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	st := list[0]
	assert.Equal(t, billing.CreationAuto, st.CreationMethod)
	assert.Equal(t, "system", st.CreatedBy)
	assert.True(t, day(2026, 2, 16).Equal(st.IssuedStartDate))
	assertAmount(t, "75", st.TotalAmount)
}

func TestRunDaily_SkipsClientsWithoutAutoCreate(t *testing.T) {
	// GIVEN: a due client with auto-create and auto-email off
	d := &recordingDispatcher{}
	s, e, mem := newScheduler(t, noon(2026, 3, 10), d)
	addClient(t, e, "b", 10, false, false)

	// WHEN
	run, err := s.RunDaily(context.Background())
	require.NoError(t, err)

	// THEN: nothing generated, nothing sent
	assert.Equal(t, 1, run.Matched)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 0, run.Generated)
	assert.Equal(t, 0, statementCount(t, mem, "b"))
	assert.Equal(t, 0, d.count())
}

func TestRunDaily_EmailsAutoEmailClients(t *testing.T) {
	d := &recordingDispatcher{}
	s, e, mem := newScheduler(t, noon(2026, 3, 10), d)
	addClient(t, e, "mail", 10, true, true)
	addClient(t, e, "quiet", 10, true, false)

	run, err := s.RunDaily(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, run.Generated)
	assert.Equal(t, 1, run.Emailed)
	require.Equal(t, 1, d.count())
	assert.Equal(t, "mail@example.com", d.sent[0].Email)

	list, err := mem.ListStatements(context.Background(), "mail")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, list[0].ID, d.sent[0].StatementID)
}

func TestRunDaily_EmailFailureKeepsStatement(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("smtp down")}
	s, e, mem := newScheduler(t, noon(2026, 3, 10), d)
	addClient(t, e, "mail", 10, true, true)

	run, err := s.RunDaily(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.Generated)
	assert.Equal(t, 0, run.Emailed)
	assert.Equal(t, 0, run.Failed)
	assert.Equal(t, 1, statementCount(t, mem, "mail"))
}

func TestRunDaily_IsolatesClientFailures(t *testing.T) {
	// GIVEN: one due client already has an unpaid statement
	s, e, mem := newScheduler(t, noon(2026, 3, 10), nil)
	addClient(t, e, "blocked", 10, true, false)
	addClient(t, e, "fine", 10, true, false)
	_, err := generate(e, "blocked", day(2026, 1, 11), day(2026, 2, 10))
	require.NoError(t, err)

	// WHEN
	run, err := s.RunDaily(context.Background())
	require.NoError(t, err)

	// THEN: the blocked client fails, the other is billed, the pass completes
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 1, run.Generated)
	assert.Equal(t, billing.RunCompleted, run.Status)
	assert.Equal(t, 1, statementCount(t, mem, "blocked"))
	assert.Equal(t, 1, statementCount(t, mem, "fine"))
}

func TestRunDaily_RecordsRun(t *testing.T) {
	s, e, mem := newScheduler(t, noon(2026, 3, 10), nil)
	addClient(t, e, "a", 10, true, false)

	run, err := s.RunDaily(context.Background())
	require.NoError(t, err)

	got, err := mem.CompletedRunOn(context.Background(), "2026-03-10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, 1, got.Generated)
	require.NotNil(t, got.CompletedAt)

	none, err := mem.CompletedRunOn(context.Background(), "2026-03-11")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRunDaily_ListFailureMarksRunFailed(t *testing.T) {
	s, _, mem := newScheduler(t, noon(2026, 3, 10), nil)
	mem.FailNext("ListClientsByStatementDay", errors.New("no such table"))

	run, err := s.RunDaily(context.Background())

	assert.ErrorIs(t, err, billing.ErrInternal)
	assert.Equal(t, billing.RunFailed, run.Status)
	runs, err := mem.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, billing.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "no such table")
}
