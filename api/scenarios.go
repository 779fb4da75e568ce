/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	billing data. Every loader goes through billing.Engine, so the ledger
	always reconciles exactly as it would for real traffic.

AVAILABLE SCENARIOS:

	client-a:     Cycle day 15, two invoices ($100 + $50), one unpaid statement
	client-b:     Auto-create off on today's statement day, next to an
	              auto-enabled client, to show the scheduler skipping B
	paid-history: A paid statement followed by new activity, so the next
	              statement carries history and a carried-forward balance

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Onboard clients (zeroed balances)
 3. Record invoices dated relative to today
 4. Optionally generate statements and apply payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "client-a"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/statement-engine/billing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "client-a",
		Name:        "Client A",
		Description: "Cycle day 15, $100 + $50 invoices, one unpaid $150 statement",
	},
	{
		ID:          "client-b",
		Name:        "Client B (auto-create off)",
		Description: "Scheduler skips a client with auto-create disabled on its statement day",
	},
	{
		ID:          "paid-history",
		Name:        "Paid History",
		Description: "Paid statement, then new invoices: next statement carries history",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var load func(ctx context.Context, actor string) error
	switch req.ScenarioID {
	case "client-a":
		load = h.loadClientAScenario
	case "client-b":
		load = h.loadClientBScenario
	case "paid-history":
		load = h.loadPaidHistoryScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx, ActorFrom(ctx)); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	resetter, ok := h.Store.(Resetter)
	if !ok {
		return errors.New("store does not support reset")
	}
	if err := resetter.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// lastClosedWindow returns the most recent cycle window that has already
// ended on or before today.
func (h *Handler) lastClosedWindow(cycleDate int) billing.Window {
	cal := h.Engine.Calendar
	today := cal.Today()
	w := cal.CycleWindow(cycleDate, today)
	if w.End.After(cal.EndOfDay(today)) {
		w = cal.CycleWindow(cycleDate, today.AddDate(0, -1, 0))
	}
	return w
}

func (h *Handler) recordInvoices(ctx context.Context, clientID billing.ClientID, actor string, start time.Time, items []invoiceSeed) error {
	for _, it := range items {
		_, err := h.Engine.RecordInvoice(ctx, billing.InvoiceInput{
			ClientID:    clientID,
			Date:        h.Engine.Calendar.Noon(start.AddDate(0, 0, it.dayOffset)),
			Amount:      decimal.RequireFromString(it.amount),
			Description: it.description,
			CreatedBy:   actor,
		})
		if err != nil {
			return fmt.Errorf("invoice %q: %w", it.description, err)
		}
	}
	return nil
}

type invoiceSeed struct {
	dayOffset   int
	amount      string
	description string
}

func (h *Handler) loadClientAScenario(ctx context.Context, actor string) error {
	c, err := h.Engine.CreateClient(ctx, billing.ClientInput{
		ID:                          "client-a",
		Name:                        "Acme Landscaping",
		Email:                       "billing@acme.example.com",
		CycleDate:                   15,
		StatementCreateDate:         15,
		Plan:                        "monthly-standard",
		AutoCreateStatementsEnabled: true,
		AutoEmailStatementsEnabled:  true,
	})
	if err != nil {
		return err
	}

	window := h.lastClosedWindow(c.CycleDate)
	if err := h.recordInvoices(ctx, c.ID, actor, window.Start, []invoiceSeed{
		{2, "100.00", "Monthly service"},
		{10, "50.00", "Extra visit"},
	}); err != nil {
		return err
	}

	_, err = h.Engine.GenerateStatement(ctx, billing.GenerateRequest{
		ClientID:        c.ID,
		IssuedStartDate: window.Start,
		IssuedEndDate:   window.End,
		CreationMethod:  billing.CreationManual,
		CreatedBy:       actor,
	})
	return err
}

func (h *Handler) loadClientBScenario(ctx context.Context, actor string) error {
	today := h.Engine.Calendar.Today()
	day := today.Day()

	for _, in := range []billing.ClientInput{
		{
			ID:                          "client-b",
			Name:                        "Bluebird Cafe",
			Email:                       "owner@bluebird.example.com",
			CycleDate:                   day,
			StatementCreateDate:         day,
			Plan:                        "monthly-basic",
			AutoCreateStatementsEnabled: false,
			AutoEmailStatementsEnabled:  true, // ignored: auto-create is off
		},
		{
			ID:                          "client-c",
			Name:                        "Cedar Dental",
			Email:                       "office@cedar.example.com",
			CycleDate:                   day,
			StatementCreateDate:         day,
			Plan:                        "monthly-standard",
			AutoCreateStatementsEnabled: true,
			AutoEmailStatementsEnabled:  true,
		},
	} {
		c, err := h.Engine.CreateClient(ctx, in)
		if err != nil {
			return err
		}
		window := h.Engine.Calendar.CycleWindow(c.CycleDate, today)
		if err := h.recordInvoices(ctx, c.ID, actor, window.Start, []invoiceSeed{
			{1, "80.00", "Monthly service"},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadPaidHistoryScenario(ctx context.Context, actor string) error {
	c, err := h.Engine.CreateClient(ctx, billing.ClientInput{
		ID:                          "client-h",
		Name:                        "Harbor Storage",
		Email:                       "ap@harbor.example.com",
		CycleDate:                   1,
		StatementCreateDate:         2,
		Plan:                        "monthly-premium",
		AutoCreateStatementsEnabled: true,
	})
	if err != nil {
		return err
	}

	cal := h.Engine.Calendar
	current := h.lastClosedWindow(c.CycleDate)
	previous := cal.CycleWindow(c.CycleDate, current.Start.AddDate(0, 0, -1))

	if err := h.recordInvoices(ctx, c.ID, actor, previous.Start, []invoiceSeed{
		{0, "200.00", "Monthly service"},
	}); err != nil {
		return err
	}
	first, err := h.Engine.GenerateStatement(ctx, billing.GenerateRequest{
		ClientID:        c.ID,
		IssuedStartDate: previous.Start,
		IssuedEndDate:   previous.End,
		CreationMethod:  billing.CreationAuto,
		CreatedBy:       actor,
	})
	if err != nil {
		return err
	}

	// Partial payment: 150 of 200 received.
	if _, err := h.Engine.ApplyPayment(ctx, billing.ApplyPaymentRequest{
		ClientID:    c.ID,
		StatementID: first.ID,
		Type:        billing.PaymentCredit,
		Amount:      decimal.RequireFromString("150.00"),
		CheckDate:   current.Start,
		CheckNumber: "1042",
		CreatedBy:   actor,
	}); err != nil {
		return err
	}

	if err := h.recordInvoices(ctx, c.ID, actor, current.Start, []invoiceSeed{
		{0, "200.00", "Monthly service"},
		{5, "35.00", "Late fee"},
	}); err != nil {
		return err
	}
	_, err = h.Engine.GenerateStatement(ctx, billing.GenerateRequest{
		ClientID:        c.ID,
		IssuedStartDate: current.Start,
		IssuedEndDate:   current.End,
		CreationMethod:  billing.CreationAuto,
		CreatedBy:       actor,
	})
	return err
}
