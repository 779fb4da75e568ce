/*
handlers_test.go - HTTP tests for the billing API

Tests for:
- Client, invoice, statement and payment routes end to end
- Error taxonomy mapping (400 / 404 / 409)
- Print and email routes
- Admin billing runs
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/statement-engine/billing"
	"github.com/warp/statement-engine/billing/store"
)

// =============================================================================
// HARNESS
// =============================================================================

var testZone = time.FixedZone("PT", -8*60*60)

// testNow is a Friday in March, well away from month ends.
var testNow = time.Date(2026, 3, 20, 12, 0, 0, 0, testZone)

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []billing.StatementID
	err  error
}

func (d *fakeDispatcher) SendStatementEmail(_ context.Context, _ string, id billing.StatementID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, id)
	return d.err
}

type testServer struct {
	t       *testing.T
	router  http.Handler
	handler *Handler
	store   *store.Memory
	mail    *fakeDispatcher
	token   string
	apiKey  string
}

func newTestServer(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()
	mem := store.NewMemory()
	cal := billing.Calendar{Location: testZone, Now: func() time.Time { return testNow }}
	engine := billing.NewEngine(mem, cal)
	mail := &fakeDispatcher{}
	sched := billing.NewScheduler(engine, mail, billing.SchedulerConfig{SystemUserID: "system"}, zerolog.Nop())
	h := NewHandler(engine, sched, mail, zerolog.Nop())
	return &testServer{
		t:       t,
		router:  NewRouter(h, cfg),
		handler: h,
		store:   mem,
		mail:    mail,
	}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	if ts.apiKey != "" {
		req.Header.Set(APIKeyHeader, ts.apiKey)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) createClient(id string, cycleDate int) ClientDTO {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/clients", ClientRequest{
		ID:                          id,
		Name:                        "Client " + id,
		Email:                       id + "@example.com",
		CycleDate:                   cycleDate,
		StatementCreateDate:         cycleDate,
		Plan:                        "standard",
		AutoCreateStatementsEnabled: true,
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ClientDTO](ts.t, rec)
}

func (ts *testServer) recordInvoice(clientID, date, amount string) InvoiceDTO {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/clients/"+clientID+"/invoices", CreateInvoiceRequest{
		Date:        date,
		Amount:      decimal.RequireFromString(amount),
		Description: "service",
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[InvoiceDTO](ts.t, rec)
}

func (ts *testServer) generate(clientID, start, end string) *httptest.ResponseRecorder {
	ts.t.Helper()
	return ts.do(http.MethodPost, "/api/statements", GenerateStatementRequest{
		ClientID:        clientID,
		IssuedStartDate: start,
		IssuedEndDate:   end,
	})
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestClientLifecycle(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	created := ts.createClient("acme", 15)
	assert.Equal(t, "acme", created.ID)
	assert.Equal(t, 15, created.CycleDate)

	rec := ts.do(http.MethodGet, "/api/clients/acme/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bal := decode[BalanceDTO](t, rec)
	assert.True(t, bal.NewStatementBalance.IsZero())

	rec = ts.do(http.MethodPut, "/api/clients/acme", ClientRequest{
		Name: "Acme Renamed", CycleDate: 20, StatementCreateDate: 21,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Acme Renamed", decode[ClientDTO](t, rec).Name)

	rec = ts.do(http.MethodGet, "/api/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ClientDTO](t, rec), 1)

	rec = ts.do(http.MethodDelete, "/api/clients/acme", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodGet, "/api/clients/acme", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateClient_ValidationResponse(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	rec := ts.do(http.MethodPost, "/api/clients", ClientRequest{CycleDate: 40})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "validation", resp.Code)
	assert.Equal(t, []string{"cycleDate", "name", "statementCreateDate"}, resp.Fields)
}

func TestCreateClient_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	rec := ts.do(http.MethodPost, "/api/clients", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateClient_Duplicate(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	ts.createClient("acme", 15)

	rec := ts.do(http.MethodPost, "/api/clients", ClientRequest{ID: "acme", Name: "Again", CycleDate: 1, StatementCreateDate: 1})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// INVOICES
// =============================================================================

func TestInvoices_RecordListDelete(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	ts.createClient("acme", 15)

	inv := ts.recordInvoice("acme", "2026-03-01", "100")
	assert.Equal(t, "2026-03-01", inv.Date)
	assert.Equal(t, AnonymousActor, inv.CreatedBy)
	ts.recordInvoice("acme", "2026-03-18", "40")

	rec := ts.do(http.MethodGet, "/api/clients/acme/invoices?from=2026-03-01&to=2026-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]InvoiceDTO](t, rec), 1)

	rec = ts.do(http.MethodGet, "/api/clients/acme/invoices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]InvoiceDTO](t, rec), 2, "default range covers the last year")

	rec = ts.do(http.MethodGet, "/api/clients/acme/invoices?from=03/01/2026", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/invoices/"+inv.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodGet, "/api/clients/acme/balance", nil)
	assertAmount(t, "40", decode[BalanceDTO](t, rec).ServiceDues)
}

func TestRecordInvoice_UnknownClient(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	rec := ts.do(http.MethodPost, "/api/clients/ghost/invoices", CreateInvoiceRequest{
		Date: "2026-03-01", Amount: decimal.NewFromInt(5), Description: "x",
	})

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// STATEMENTS AND PAYMENTS
// =============================================================================

func TestStatementPaymentFlow(t *testing.T) {
	// GIVEN: client with $100 + $50 of invoices in the Feb 16 - Mar 15 window
	ts := newTestServer(t, RouterConfig{})
	ts.createClient("acme", 15)
	ts.recordInvoice("acme", "2026-02-20", "100")
	ts.recordInvoice("acme", "2026-03-01", "50")

	// WHEN: generating the statement
	rec := ts.generate("acme", "2026-02-16", "2026-03-15")

	// THEN: 201 with total 150, unpaid, manual
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	st := decode[StatementDTO](t, rec)
	assertAmount(t, "150", st.TotalAmount)
	assert.False(t, st.IsPaid)
	assert.Equal(t, "manual", st.CreationMethod)
	assert.Equal(t, "2026-02-16", st.IssuedStartDate)
	assert.Equal(t, "2026-03-15", st.IssuedEndDate)
	assert.Len(t, st.InvoiceData, 2)

	// AND: a second generation while unpaid is a conflict
	rec = ts.generate("acme", "2026-03-16", "2026-04-15")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "unpaid statement exists", decode[ErrorResponse](t, rec).Error)

	// AND: a billed invoice cannot be deleted
	rec = ts.do(http.MethodDelete, "/api/invoices/"+st.InvoiceData[0].ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: a $150 credit is applied
	rec = ts.do(http.MethodPost, "/api/payments", ApplyPaymentRequest{
		ClientID: "acme", StatementID: st.ID, Type: "credit",
		Amount: decimal.NewFromInt(150), CheckDate: "2026-03-20", CheckNumber: "1001",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decode[PaymentDTO](t, rec)
	assert.Equal(t, "2026-03-20", payment.CheckDate)

	// THEN: statement paid, ledger credited
	rec = ts.do(http.MethodGet, "/api/statements/"+st.ID, nil)
	paid := decode[StatementDTO](t, rec)
	assert.True(t, paid.IsPaid)
	require.NotNil(t, paid.CheckNumber)
	assert.Equal(t, "1001", *paid.CheckNumber)
	rec = ts.do(http.MethodGet, "/api/clients/acme/balance", nil)
	assertAmount(t, "-150", decode[BalanceDTO](t, rec).PaymentsOrCredits)

	// WHEN: correcting the amount
	amount := decimal.NewFromInt(140)
	rec = ts.do(http.MethodPut, "/api/payments/"+payment.ID, UpdatePaymentRequest{Amount: &amount})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodGet, "/api/clients/acme/balance", nil)
	assertAmount(t, "-140", decode[BalanceDTO](t, rec).PaymentsOrCredits)

	rec = ts.do(http.MethodGet, "/api/statements/"+st.ID+"/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PaymentDTO](t, rec), 1)

	// WHEN: reversing
	rec = ts.do(http.MethodDelete, "/api/payments/"+payment.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: back to unpaid, ledger restored
	rec = ts.do(http.MethodGet, "/api/statements/"+st.ID, nil)
	assert.False(t, decode[StatementDTO](t, rec).IsPaid)
	rec = ts.do(http.MethodGet, "/api/clients/acme/balance", nil)
	assert.True(t, decode[BalanceDTO](t, rec).PaymentsOrCredits.IsZero())

	rec = ts.do(http.MethodGet, "/api/payments/"+payment.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateStatement_BadDates(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	ts.createClient("acme", 15)

	rec := ts.generate("acme", "02/16/2026", "2026-03-15")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.generate("acme", "2026-03-15", "2026-02-16")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Fields, "issuedEndDate")
}

func TestStatement_NotFound(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/statements/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/api/statements/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/api/payments/nope", nil).Code)
}

func TestApplyPayment_Validation(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	rec := ts.do(http.MethodPost, "/api/payments", ApplyPaymentRequest{Type: "refund"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, []string{"amount", "checkDate", "clientId", "statementId", "type"}, resp.Fields)
}

func TestInternalError_LoggedServerSide(t *testing.T) {
	// GIVEN: a store that fails the next invoice write
	ts := newTestServer(t, RouterConfig{})
	ts.createClient("acme", 15)
	var logs bytes.Buffer
	ts.handler.Log = zerolog.New(&logs)
	ts.store.FailNext("SaveInvoice", errors.New("disk full"))

	// WHEN
	rec := ts.do(http.MethodPost, "/api/clients/acme/invoices", CreateInvoiceRequest{
		Date: "2026-03-01", Amount: decimal.NewFromInt(10), Description: "service",
	})

	// THEN: the client gets a 500 and the log has the full error
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry), logs.String())
	assert.Equal(t, "error", entry["level"])
	assert.Contains(t, entry["error"], "disk full")
	assert.Equal(t, "/api/clients/acme/invoices", entry["path"])
}

func TestDeleteStatement_ReversesPayments(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	ts.createClient("acme", 15)
	ts.recordInvoice("acme", "2026-03-01", "80")
	st := decode[StatementDTO](t, ts.generate("acme", "2026-02-16", "2026-03-15"))
	rec := ts.do(http.MethodPost, "/api/payments", ApplyPaymentRequest{
		ClientID: "acme", StatementID: st.ID, Type: "credit",
		Amount: decimal.NewFromInt(80), CheckDate: "2026-03-19",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/statements/"+st.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/clients/acme/payments", nil)
	assert.Empty(t, decode[[]PaymentDTO](t, rec))
	rec = ts.do(http.MethodGet, "/api/clients/acme/balance", nil)
	assert.True(t, decode[BalanceDTO](t, rec).PaymentsOrCredits.IsZero())
}

// =============================================================================
// PRINT / EMAIL
// =============================================================================

func TestPrintAndEmail(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	ts.createClient("acme", 15)
	st := decode[StatementDTO](t, ts.generate("acme", "2026-02-16", "2026-03-15"))

	rec := ts.do(http.MethodGet, "/api/statements/"+st.ID+"/print", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[PrintStatementDTO](t, rec)
	assert.Equal(t, "acme", doc.Client.ID)
	assert.Equal(t, st.ID, doc.Statement.ID)

	rec = ts.do(http.MethodPost, "/api/statements/"+st.ID+"/email", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, ts.mail.sent, 1)
	assert.Equal(t, billing.StatementID(st.ID), ts.mail.sent[0])

	ts.mail.err = errors.New("relay down")
	rec = ts.do(http.MethodPost, "/api/statements/"+st.ID+"/email", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestEmail_NoDispatcher(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	ts.handler.Dispatcher = nil

	rec := ts.do(http.MethodPost, "/api/statements/any/email", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestBillingRuns(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	// testNow is the 20th
	ts.createClient("due", 20)
	ts.createClient("later", 25)

	rec := ts.do(http.MethodPost, "/api/admin/billing-runs", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[BillingRunDTO](t, rec)
	assert.Equal(t, "2026-03-20", run.RunDate)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 1, run.Generated)

	rec = ts.do(http.MethodGet, "/api/admin/billing-runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]BillingRunDTO](t, rec), 1)

	rec = ts.do(http.MethodGet, "/api/admin/billing-runs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, RouterConfig{Auth: AuthConfig{Enabled: true, JWTSecret: "s"}})

	rec := ts.do(http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
