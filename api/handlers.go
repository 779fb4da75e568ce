/*
handlers.go - HTTP API handlers for the billing statement engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response
  and JSON serialization, and delegates every mutation to billing.Engine so
  the same unit-of-work rules apply to API and scheduler callers.

ENDPOINTS:
  Clients:
    GET    /api/clients                     List clients
    POST   /api/clients                     Onboard client (+ zeroed balance)
    GET    /api/clients/{id}                Get client
    PUT    /api/clients/{id}                Update billing configuration
    DELETE /api/clients/{id}                Delete client and everything it owns
    GET    /api/clients/{id}/balance        Current ledger
    GET    /api/clients/{id}/invoices       Invoices (?from=&to= YYYY-MM-DD)
    POST   /api/clients/{id}/invoices       Record invoice
    GET    /api/clients/{id}/statements     Statements, newest first
    GET    /api/clients/{id}/payments       Payments, newest check first

  Invoices:
    DELETE /api/invoices/{id}               Delete unbilled invoice

  Statements:
    POST   /api/statements                  Generate (manual)
    GET    /api/statements/{id}             Get statement
    DELETE /api/statements/{id}             Delete, reversing its payments
    GET    /api/statements/{id}/payments    Payments on the statement
    GET    /api/statements/{id}/print       Print payload (API key allowed)
    POST   /api/statements/{id}/email       Dispatch email (API key allowed)

  Payments:
    POST   /api/payments                    Apply
    GET    /api/payments/{id}               Get
    PUT    /api/payments/{id}               Update
    DELETE /api/payments/{id}               Reverse

  Admin:
    GET    /api/admin/billing-runs          Daily pass history
    POST   /api/admin/billing-runs          Run the daily pass now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors (fields lists the offending fields)
  - 404: Client, balance, invoice, statement or payment not found
  - 409: Unpaid statement exists, invoice already billed, duplicate id
  - 500: Internal errors (details carries the underlying error)

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Actor resolution for CreatedBy fields
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/warp/statement-engine/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears all persisted data. Used by demo scenarios.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine     *billing.Engine
	Store      billing.TxStore
	Scheduler  *billing.Scheduler
	Dispatcher billing.Dispatcher
	Log        zerolog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. A nil dispatcher disables the email route.
func NewHandler(engine *billing.Engine, scheduler *billing.Scheduler, dispatcher billing.Dispatcher, log zerolog.Logger) *Handler {
	return &Handler{
		Engine:     engine,
		Store:      engine.Store,
		Scheduler:  scheduler,
		Dispatcher: dispatcher,
		Log:        log,
	}
}

func (h *Handler) loc() *time.Location {
	return h.Engine.Calendar.Location
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClient returns a single client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id := billing.ClientID(chi.URLParam(r, "id"))

	c, err := h.Store.GetClient(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*c))
}

// CreateClient onboards a client with a zeroed balance.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := h.Engine.CreateClient(r.Context(), req.toInput(""))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(*c))
}

// UpdateClient replaces a client's billing configuration.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := h.Engine.UpdateClient(r.Context(), req.toInput(billing.ClientID(chi.URLParam(r, "id"))))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*c))
}

// DeleteClient removes a client and cascades to everything it owns.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteClient(r.Context(), billing.ClientID(chi.URLParam(r, "id"))); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBalance returns the client's current ledger.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := billing.ClientID(chi.URLParam(r, "id"))

	bal, err := h.Store.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get balance", err)
		return
	}
	if bal == nil {
		writeError(w, http.StatusNotFound, "Balance not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*bal))
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// ListInvoices returns a client's invoices dated in [from, to]. Without
// parameters the range is the last 12 months through today.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	id := billing.ClientID(chi.URLParam(r, "id"))
	cal := h.Engine.Calendar

	today := cal.Today()
	from, ok := h.queryDate(w, r, "from", billing.LookbackStart(today))
	if !ok {
		return
	}
	to, ok := h.queryDate(w, r, "to", today)
	if !ok {
		return
	}
	window := cal.StatementWindow(from, to)

	invoices, err := h.Store.InvoicesInRange(r.Context(), id, window.Start, window.End)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}

	dtos := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toInvoiceDTO(inv, h.loc())
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordInvoice stores an invoice and accrues it into serviceDues.
func (h *Handler) RecordInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := billing.InvoiceInput{
		ClientID:    billing.ClientID(chi.URLParam(r, "id")),
		Amount:      req.Amount,
		Description: req.Description,
		CreatedBy:   ActorFrom(r.Context()),
	}
	if req.Date != "" {
		date, err := h.Engine.Calendar.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		in.Date = h.Engine.Calendar.Noon(date)
	}

	inv, err := h.Engine.RecordInvoice(r.Context(), in)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv, h.loc()))
}

// DeleteInvoice removes an unbilled invoice.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Engine.DeleteInvoice(r.Context(), billing.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv, h.loc()))
}

// =============================================================================
// STATEMENT HANDLERS
// =============================================================================

// ListStatements returns a client's statements, newest first.
func (h *Handler) ListStatements(w http.ResponseWriter, r *http.Request) {
	id := billing.ClientID(chi.URLParam(r, "id"))

	statements, err := h.Store.ListStatements(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list statements", err)
		return
	}

	dtos := make([]StatementDTO, len(statements))
	for i, s := range statements {
		dtos[i] = toStatementDTO(s, h.loc())
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GenerateStatement issues a manual statement for a date window.
// POST /api/statements
func (h *Handler) GenerateStatement(w http.ResponseWriter, r *http.Request) {
	var req GenerateStatementRequest
	if !decodeBody(w, r, &req) {
		return
	}

	gen := billing.GenerateRequest{
		ClientID:       billing.ClientID(req.ClientID),
		CreationMethod: billing.CreationManual,
		CreatedBy:      ActorFrom(r.Context()),
	}
	var err error
	if req.IssuedStartDate != "" {
		if gen.IssuedStartDate, err = h.Engine.Calendar.ParseDate(req.IssuedStartDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid issuedStartDate format (use YYYY-MM-DD)", err)
			return
		}
	}
	if req.IssuedEndDate != "" {
		if gen.IssuedEndDate, err = h.Engine.Calendar.ParseDate(req.IssuedEndDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid issuedEndDate format (use YYYY-MM-DD)", err)
			return
		}
	}

	st, err := h.Engine.GenerateStatement(r.Context(), gen)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStatementDTO(*st, h.loc()))
}

// GetStatement returns a single statement.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	st, ok := h.loadStatement(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(*st, h.loc()))
}

// DeleteStatement removes a statement after reversing its payments.
func (h *Handler) DeleteStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.Engine.DeleteStatement(r.Context(), billing.StatementID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(*st, h.loc()))
}

// PrintStatementDTO is everything a renderer needs for one statement.
type PrintStatementDTO struct {
	Client    ClientDTO    `json:"client"`
	Statement StatementDTO `json:"statement"`
}

// PrintStatement returns the print payload. Rendering happens downstream.
// GET /api/statements/{id}/print
func (h *Handler) PrintStatement(w http.ResponseWriter, r *http.Request) {
	st, ok := h.loadStatement(w, r)
	if !ok {
		return
	}
	c, err := h.Store.GetClient(r.Context(), st.ClientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, PrintStatementDTO{
		Client:    toClientDTO(*c),
		Statement: toStatementDTO(*st, h.loc()),
	})
}

// EmailStatement hands the statement to the email dispatcher.
// POST /api/statements/{id}/email
func (h *Handler) EmailStatement(w http.ResponseWriter, r *http.Request) {
	if h.Dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "Email dispatch is not configured", nil)
		return
	}
	st, ok := h.loadStatement(w, r)
	if !ok {
		return
	}
	c, err := h.Store.GetClient(r.Context(), st.ClientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	}
	if c.Email == "" {
		writeError(w, http.StatusBadRequest, "Client has no email address", nil)
		return
	}

	if err := h.Dispatcher.SendStatementEmail(r.Context(), c.Email, st.ID); err != nil {
		h.Log.Error().Err(err).Str("statement_id", string(st.ID)).Msg("statement email failed")
		writeError(w, http.StatusBadGateway, "Failed to dispatch statement email", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"statementId": string(st.ID),
		"email":       c.Email,
		"status":      "queued",
	})
}

func (h *Handler) loadStatement(w http.ResponseWriter, r *http.Request) (*billing.Statement, bool) {
	st, err := h.Store.GetStatement(r.Context(), billing.StatementID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get statement", err)
		return nil, false
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "Statement not found", nil)
		return nil, false
	}
	return st, true
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListStatementPayments returns the payments recorded on a statement.
func (h *Handler) ListStatementPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Store.ListPaymentsByStatement(r.Context(), billing.StatementID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}
	h.writePayments(w, payments)
}

// ListClientPayments returns every payment for a client.
func (h *Handler) ListClientPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Store.ListPaymentsByClient(r.Context(), billing.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}
	h.writePayments(w, payments)
}

func (h *Handler) writePayments(w http.ResponseWriter, payments []billing.Payment) {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p, h.loc())
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApplyPayment records a credit or debit against a statement.
// POST /api/payments
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req ApplyPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	apply := billing.ApplyPaymentRequest{
		ClientID:    billing.ClientID(req.ClientID),
		StatementID: billing.StatementID(req.StatementID),
		Type:        billing.PaymentType(req.Type),
		Amount:      req.Amount,
		CheckNumber: req.CheckNumber,
		Memo:        req.Memo,
		CreatedBy:   ActorFrom(r.Context()),
	}
	if req.CheckDate != "" {
		date, err := h.Engine.Calendar.ParseDate(req.CheckDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid checkDate format (use YYYY-MM-DD)", err)
			return
		}
		apply.CheckDate = date
	}

	p, err := h.Engine.ApplyPayment(r.Context(), apply)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*p, h.loc()))
}

// GetPayment returns a single payment.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetPayment(r.Context(), billing.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p, h.loc()))
}

// UpdatePayment corrects a payment and its statement.
// PUT /api/payments/{id}
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req UpdatePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	upd := billing.PaymentUpdate{
		Amount:      req.Amount,
		CheckNumber: req.CheckNumber,
		Memo:        req.Memo,
	}
	if req.CheckDate != nil {
		date, err := h.Engine.Calendar.ParseDate(*req.CheckDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid checkDate format (use YYYY-MM-DD)", err)
			return
		}
		upd.CheckDate = &date
	}

	p, err := h.Engine.UpdatePayment(r.Context(), billing.PaymentID(chi.URLParam(r, "id")), upd)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p, h.loc()))
}

// ReversePayment deletes a payment and undoes its effects.
// DELETE /api/payments/{id}
func (h *Handler) ReversePayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.ReversePayment(r.Context(), billing.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p, h.loc()))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ListBillingRuns returns recent daily passes (?limit=, default 50).
func (h *Handler) ListBillingRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list billing runs", err)
		return
	}
	dtos := make([]BillingRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toBillingRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerBillingRun runs the daily pass immediately.
func (h *Handler) TriggerBillingRun(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler is not configured", nil)
		return
	}
	run, err := h.Scheduler.RunDaily(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Billing run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillingRunDTO(run))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) queryDate(w http.ResponseWriter, r *http.Request, name string, def time.Time) (time.Time, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	t, err := h.Engine.Calendar.ParseDate(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name+" format (use YYYY-MM-DD)", err)
		return time.Time{}, false
	}
	return t, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// writeEngineError maps the billing error taxonomy to HTTP status codes.
// Internal errors are logged in full before the 500 is written.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *billing.ValidationError
		nerr *billing.NotFoundError
		cerr *billing.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "validation",
			Fields:  verr.FieldNames(),
			Details: verr.Fields,
		})
	case errors.As(err, &nerr):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: nerr.Error(),
			Code:  "not_found",
		})
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: cerr.Reason,
			Code:  "conflict",
		})
	default:
		h.Log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Internal error",
			Code:    "internal",
			Details: err.Error(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
