package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, ts *testServer, id string) {
	t.Helper()
	rec := ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestListScenarios(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	rec := ts.do(http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]ScenarioDTO](t, rec)
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"client-a", "client-b", "paid-history"}, ids)
}

func TestScenarioClientA(t *testing.T) {
	// GIVEN: the client-a scenario
	ts := newTestServer(t, RouterConfig{})
	loadScenario(t, ts, "client-a")

	// THEN: one unpaid $150 statement for cycle day 15
	rec := ts.do(http.MethodGet, "/api/clients/client-a/statements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	statements := decode[[]StatementDTO](t, rec)
	require.Len(t, statements, 1)
	assertAmount(t, "150", statements[0].TotalAmount)
	assert.False(t, statements[0].IsPaid)
	assert.Equal(t, "2026-02-16", statements[0].IssuedStartDate)
	assert.Equal(t, "2026-03-15", statements[0].IssuedEndDate)

	rec = ts.do(http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "client-a", decode[ScenarioDTO](t, rec).ID)
}

func TestScenarioClientB_SchedulerSkips(t *testing.T) {
	// GIVEN: client-b (auto-create off) and client-c (auto-create on), both due today
	ts := newTestServer(t, RouterConfig{})
	loadScenario(t, ts, "client-b")

	// WHEN: the daily pass runs
	rec := ts.do(http.MethodPost, "/api/admin/billing-runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[BillingRunDTO](t, rec)

	// THEN: client-b is skipped without a statement or email
	assert.Equal(t, 2, run.Matched)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 1, run.Generated)
	assert.Equal(t, 1, run.Emailed)

	b, err := ts.store.ListStatements(context.Background(), "client-b")
	require.NoError(t, err)
	assert.Empty(t, b)
	c, err := ts.store.ListStatements(context.Background(), "client-c")
	require.NoError(t, err)
	require.Len(t, c, 1)
	require.Len(t, ts.mail.sent, 1)
	assert.Equal(t, c[0].ID, ts.mail.sent[0])
}

func TestScenarioPaidHistory(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	loadScenario(t, ts, "paid-history")

	rec := ts.do(http.MethodGet, "/api/clients/client-h/statements", nil)
	statements := decode[[]StatementDTO](t, rec)
	require.Len(t, statements, 2)

	// Newest first: it carries the older, paid statement as history.
	latest, older := statements[0], statements[1]
	assert.True(t, older.IsPaid)
	assertAmount(t, "150", older.PaidAmount)
	require.Len(t, latest.HistoricalStatementsData, 1)
	assert.Equal(t, older.ID, latest.HistoricalStatementsData[0].StatementID)
	assertAmount(t, "235", latest.TotalAmount)
	// 200 billed, 150 paid, 235 new.
	assertAmount(t, "200", latest.BalanceData.PreviousStatementBalance)
	assertAmount(t, "285", latest.BalanceData.NewStatementBalance)
}

func TestLoadScenario_Unknown(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	rec := ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetDatabase(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	loadScenario(t, ts, "client-a")

	rec := ts.do(http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/clients", nil)
	assert.Empty(t, decode[[]ClientDTO](t, rec))
	rec = ts.do(http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
}
