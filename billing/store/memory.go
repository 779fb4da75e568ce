// Package store provides in-memory billing.TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/statement-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a billing.TxStore held in maps. WithTx snapshots the state and
// restores it when fn fails, so rollback behaves like the SQLite store.
type Memory struct {
	mu   sync.Mutex
	data *data

	// failures maps an operation name to the error it returns next.
	failures map[string]error
}

type data struct {
	clients    map[billing.ClientID]billing.Client
	balances   map[billing.ClientID]billing.Balance
	invoices   map[billing.InvoiceID]billing.Invoice
	statements map[billing.StatementID]billing.Statement
	payments   map[billing.PaymentID]billing.Payment
	runs       map[string]billing.Run
}

func newData() *data {
	return &data{
		clients:    make(map[billing.ClientID]billing.Client),
		balances:   make(map[billing.ClientID]billing.Balance),
		invoices:   make(map[billing.InvoiceID]billing.Invoice),
		statements: make(map[billing.StatementID]billing.Statement),
		payments:   make(map[billing.PaymentID]billing.Payment),
		runs:       make(map[string]billing.Run),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.clients {
		c.clients[k] = v
	}
	for k, v := range d.balances {
		c.balances[k] = v
	}
	for k, v := range d.invoices {
		c.invoices[k] = v
	}
	for k, v := range d.statements {
		c.statements[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for k, v := range d.runs {
		c.runs[k] = v
	}
	return c
}

func NewMemory() *Memory {
	return &Memory{data: newData(), failures: make(map[string]error)}
}

// FailNext makes the next call to op (e.g. "CreateStatement") return err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// Reset deletes all data and pending failures.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = newData()
	m.failures = make(map[string]error)
	return nil
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(billing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&view{m: m}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *Memory) locked(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{m: m})
}

// =============================================================================
// LOCKING WRAPPERS
// =============================================================================

func (m *Memory) SaveClient(ctx context.Context, c billing.Client) error {
	return m.locked(func(v *view) error { return v.SaveClient(ctx, c) })
}

func (m *Memory) GetClient(ctx context.Context, id billing.ClientID) (out *billing.Client, err error) {
	err = m.locked(func(v *view) error { out, err = v.GetClient(ctx, id); return err })
	return out, err
}

func (m *Memory) ListClients(ctx context.Context) (out []billing.Client, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListClients(ctx); return err })
	return out, err
}

func (m *Memory) ListClientsByStatementDay(ctx context.Context, day int, orLater bool) (out []billing.Client, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListClientsByStatementDay(ctx, day, orLater); return err })
	return out, err
}

func (m *Memory) DeleteClient(ctx context.Context, id billing.ClientID) error {
	return m.locked(func(v *view) error { return v.DeleteClient(ctx, id) })
}

func (m *Memory) GetBalance(ctx context.Context, id billing.ClientID) (out *billing.Balance, err error) {
	err = m.locked(func(v *view) error { out, err = v.GetBalance(ctx, id); return err })
	return out, err
}

func (m *Memory) SaveBalance(ctx context.Context, b billing.Balance) error {
	return m.locked(func(v *view) error { return v.SaveBalance(ctx, b) })
}

func (m *Memory) SaveInvoice(ctx context.Context, inv billing.Invoice) error {
	return m.locked(func(v *view) error { return v.SaveInvoice(ctx, inv) })
}

func (m *Memory) GetInvoice(ctx context.Context, id billing.InvoiceID) (out *billing.Invoice, err error) {
	err = m.locked(func(v *view) error { out, err = v.GetInvoice(ctx, id); return err })
	return out, err
}

func (m *Memory) DeleteInvoice(ctx context.Context, id billing.InvoiceID) error {
	return m.locked(func(v *view) error { return v.DeleteInvoice(ctx, id) })
}

func (m *Memory) InvoicesInRange(ctx context.Context, id billing.ClientID, from, to time.Time) (out []billing.Invoice, err error) {
	err = m.locked(func(v *view) error { out, err = v.InvoicesInRange(ctx, id, from, to); return err })
	return out, err
}

func (m *Memory) IsInvoiceBilled(ctx context.Context, id billing.InvoiceID) (out bool, err error) {
	err = m.locked(func(v *view) error { out, err = v.IsInvoiceBilled(ctx, id); return err })
	return out, err
}

func (m *Memory) CreateStatement(ctx context.Context, s billing.Statement) error {
	return m.locked(func(v *view) error { return v.CreateStatement(ctx, s) })
}

func (m *Memory) GetStatement(ctx context.Context, id billing.StatementID) (out *billing.Statement, err error) {
	err = m.locked(func(v *view) error { out, err = v.GetStatement(ctx, id); return err })
	return out, err
}

func (m *Memory) ListStatements(ctx context.Context, id billing.ClientID) (out []billing.Statement, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListStatements(ctx, id); return err })
	return out, err
}

func (m *Memory) DeleteStatement(ctx context.Context, id billing.StatementID) error {
	return m.locked(func(v *view) error { return v.DeleteStatement(ctx, id) })
}

func (m *Memory) HasUnpaidStatement(ctx context.Context, id billing.ClientID) (out bool, err error) {
	err = m.locked(func(v *view) error { out, err = v.HasUnpaidStatement(ctx, id); return err })
	return out, err
}

func (m *Memory) StatementsEndingIn(ctx context.Context, id billing.ClientID, from, to time.Time) (out []billing.Statement, err error) {
	err = m.locked(func(v *view) error { out, err = v.StatementsEndingIn(ctx, id, from, to); return err })
	return out, err
}

func (m *Memory) MarkStatement(ctx context.Context, id billing.StatementID, mark billing.PaymentMark) error {
	return m.locked(func(v *view) error { return v.MarkStatement(ctx, id, mark) })
}

func (m *Memory) CreatePayment(ctx context.Context, p billing.Payment) error {
	return m.locked(func(v *view) error { return v.CreatePayment(ctx, p) })
}

func (m *Memory) GetPayment(ctx context.Context, id billing.PaymentID) (out *billing.Payment, err error) {
	err = m.locked(func(v *view) error { out, err = v.GetPayment(ctx, id); return err })
	return out, err
}

func (m *Memory) UpdatePayment(ctx context.Context, p billing.Payment) error {
	return m.locked(func(v *view) error { return v.UpdatePayment(ctx, p) })
}

func (m *Memory) DeletePayment(ctx context.Context, id billing.PaymentID) error {
	return m.locked(func(v *view) error { return v.DeletePayment(ctx, id) })
}

func (m *Memory) ListPaymentsByStatement(ctx context.Context, id billing.StatementID) (out []billing.Payment, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListPaymentsByStatement(ctx, id); return err })
	return out, err
}

func (m *Memory) ListPaymentsByClient(ctx context.Context, id billing.ClientID) (out []billing.Payment, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListPaymentsByClient(ctx, id); return err })
	return out, err
}

func (m *Memory) SaveRun(ctx context.Context, r billing.Run) error {
	return m.locked(func(v *view) error { return v.SaveRun(ctx, r) })
}

func (m *Memory) ListRuns(ctx context.Context, limit int) (out []billing.Run, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListRuns(ctx, limit); return err })
	return out, err
}

func (m *Memory) CompletedRunOn(ctx context.Context, runDate string) (out *billing.Run, err error) {
	err = m.locked(func(v *view) error { out, err = v.CompletedRunOn(ctx, runDate); return err })
	return out, err
}

// =============================================================================
// VIEW - Unlocked operations, shared by direct calls and WithTx
// =============================================================================

type view struct {
	m *Memory
}

func (v *view) fail(op string) error {
	if err, ok := v.m.failures[op]; ok {
		delete(v.m.failures, op)
		return err
	}
	return nil
}

func (v *view) SaveClient(_ context.Context, c billing.Client) error {
	if err := v.fail("SaveClient"); err != nil {
		return err
	}
	v.m.data.clients[c.ID] = c
	return nil
}

func (v *view) GetClient(_ context.Context, id billing.ClientID) (*billing.Client, error) {
	if err := v.fail("GetClient"); err != nil {
		return nil, err
	}
	c, ok := v.m.data.clients[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (v *view) ListClients(_ context.Context) ([]billing.Client, error) {
	var out []billing.Client
	for _, c := range v.m.data.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *view) ListClientsByStatementDay(_ context.Context, day int, orLater bool) ([]billing.Client, error) {
	if err := v.fail("ListClientsByStatementDay"); err != nil {
		return nil, err
	}
	var out []billing.Client
	for _, c := range v.m.data.clients {
		if c.StatementCreateDate == day || (orLater && c.StatementCreateDate > day) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) DeleteClient(_ context.Context, id billing.ClientID) error {
	d := v.m.data
	delete(d.clients, id)
	delete(d.balances, id)
	for k, inv := range d.invoices {
		if inv.ClientID == id {
			delete(d.invoices, k)
		}
	}
	for k, s := range d.statements {
		if s.ClientID == id {
			delete(d.statements, k)
		}
	}
	for k, p := range d.payments {
		if p.ClientID == id {
			delete(d.payments, k)
		}
	}
	return nil
}

func (v *view) GetBalance(_ context.Context, id billing.ClientID) (*billing.Balance, error) {
	if err := v.fail("GetBalance"); err != nil {
		return nil, err
	}
	b, ok := v.m.data.balances[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (v *view) SaveBalance(_ context.Context, b billing.Balance) error {
	if err := v.fail("SaveBalance"); err != nil {
		return err
	}
	v.m.data.balances[b.ClientID] = b
	return nil
}

func (v *view) SaveInvoice(_ context.Context, inv billing.Invoice) error {
	if err := v.fail("SaveInvoice"); err != nil {
		return err
	}
	v.m.data.invoices[inv.ID] = inv
	return nil
}

func (v *view) GetInvoice(_ context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	inv, ok := v.m.data.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (v *view) DeleteInvoice(_ context.Context, id billing.InvoiceID) error {
	delete(v.m.data.invoices, id)
	return nil
}

func (v *view) InvoicesInRange(_ context.Context, id billing.ClientID, from, to time.Time) ([]billing.Invoice, error) {
	var out []billing.Invoice
	for _, inv := range v.m.data.invoices {
		if inv.ClientID == id && !inv.Date.Before(from) && !inv.Date.After(to) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (v *view) IsInvoiceBilled(_ context.Context, id billing.InvoiceID) (bool, error) {
	for _, s := range v.m.data.statements {
		for _, snap := range s.InvoiceData {
			if snap.InvoiceID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (v *view) CreateStatement(_ context.Context, s billing.Statement) error {
	if err := v.fail("CreateStatement"); err != nil {
		return err
	}
	v.m.data.statements[s.ID] = s
	return nil
}

func (v *view) GetStatement(_ context.Context, id billing.StatementID) (*billing.Statement, error) {
	s, ok := v.m.data.statements[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (v *view) ListStatements(_ context.Context, id billing.ClientID) ([]billing.Statement, error) {
	var out []billing.Statement
	for _, s := range v.m.data.statements {
		if s.ClientID == id {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedEndDate.After(out[j].IssuedEndDate) })
	return out, nil
}

func (v *view) DeleteStatement(_ context.Context, id billing.StatementID) error {
	if err := v.fail("DeleteStatement"); err != nil {
		return err
	}
	delete(v.m.data.statements, id)
	return nil
}

func (v *view) HasUnpaidStatement(_ context.Context, id billing.ClientID) (bool, error) {
	for _, s := range v.m.data.statements {
		if s.ClientID == id && !s.IsPaid {
			return true, nil
		}
	}
	return false, nil
}

func (v *view) StatementsEndingIn(_ context.Context, id billing.ClientID, from, to time.Time) ([]billing.Statement, error) {
	var out []billing.Statement
	for _, s := range v.m.data.statements {
		if s.ClientID == id && !s.IssuedEndDate.Before(from) && s.IssuedEndDate.Before(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedEndDate.Before(out[j].IssuedEndDate) })
	return out, nil
}

func (v *view) MarkStatement(_ context.Context, id billing.StatementID, mark billing.PaymentMark) error {
	if err := v.fail("MarkStatement"); err != nil {
		return err
	}
	s, ok := v.m.data.statements[id]
	if !ok {
		return nil
	}
	s.IsPaid = mark.IsPaid
	s.PaidAmount = mark.PaidAmount
	s.CheckNumber = mark.CheckNumber
	s.CheckDate = mark.CheckDate
	v.m.data.statements[id] = s
	return nil
}

func (v *view) CreatePayment(_ context.Context, p billing.Payment) error {
	if err := v.fail("CreatePayment"); err != nil {
		return err
	}
	v.m.data.payments[p.ID] = p
	return nil
}

func (v *view) GetPayment(_ context.Context, id billing.PaymentID) (*billing.Payment, error) {
	p, ok := v.m.data.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (v *view) UpdatePayment(_ context.Context, p billing.Payment) error {
	if err := v.fail("UpdatePayment"); err != nil {
		return err
	}
	v.m.data.payments[p.ID] = p
	return nil
}

func (v *view) DeletePayment(_ context.Context, id billing.PaymentID) error {
	if err := v.fail("DeletePayment"); err != nil {
		return err
	}
	delete(v.m.data.payments, id)
	return nil
}

func (v *view) ListPaymentsByStatement(_ context.Context, id billing.StatementID) ([]billing.Payment, error) {
	var out []billing.Payment
	for _, p := range v.m.data.payments {
		if p.StatementID == id {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v *view) ListPaymentsByClient(_ context.Context, id billing.ClientID) ([]billing.Payment, error) {
	var out []billing.Payment
	for _, p := range v.m.data.payments {
		if p.ClientID == id {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckDate.After(out[j].CheckDate) })
	return out, nil
}

func (v *view) SaveRun(_ context.Context, r billing.Run) error {
	v.m.data.runs[r.ID] = r
	return nil
}

func (v *view) ListRuns(_ context.Context, limit int) ([]billing.Run, error) {
	var out []billing.Run
	for _, r := range v.m.data.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *view) CompletedRunOn(_ context.Context, runDate string) (*billing.Run, error) {
	for _, r := range v.m.data.runs {
		if r.RunDate == runDate && r.Status == billing.RunCompleted {
			return &r, nil
		}
	}
	return nil, nil
}
