package billing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE - Entry point for all billing mutations
// =============================================================================

// Engine runs billing operations against a transactional store. Each
// exported mutation is one unit of work: either every write lands or none
// does.
type Engine struct {
	Store    TxStore
	Calendar Calendar

	// NewID generates record ids. Defaults to random UUIDs.
	NewID func() string
}

// NewEngine creates an engine over store using cal for date normalization.
func NewEngine(store TxStore, cal Calendar) *Engine {
	return &Engine{
		Store:    store,
		Calendar: cal,
		NewID:    uuid.NewString,
	}
}

func (e *Engine) id() string {
	if e.NewID == nil {
		return uuid.NewString()
	}
	return e.NewID()
}

func (e *Engine) now() time.Time {
	return e.Calendar.Today()
}

// =============================================================================
// CLIENTS
// =============================================================================

// ClientInput carries the editable client fields.
type ClientInput struct {
	ID                          ClientID
	Name                        string
	Email                       string
	CycleDate                   int
	StatementCreateDate         int
	Plan                        string
	AutoCreateStatementsEnabled bool
	AutoEmailStatementsEnabled  bool
}

func (in ClientInput) validate() error {
	var v validator
	v.check(strings.TrimSpace(in.Name) != "", "name", "required")
	v.check(in.CycleDate >= 1 && in.CycleDate <= 31, "cycleDate", "must be between 1 and 31")
	v.check(in.StatementCreateDate >= 1 && in.StatementCreateDate <= 31, "statementCreateDate", "must be between 1 and 31")
	v.check(!in.AutoEmailStatementsEnabled || strings.TrimSpace(in.Email) != "", "email", "required when auto-email is enabled")
	return v.err()
}

// CreateClient onboards a client together with its zeroed balance.
func (e *Engine) CreateClient(ctx context.Context, in ClientInput) (*Client, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = ClientID(e.id())
	}

	now := e.now()
	c := Client{
		ID:                          in.ID,
		Name:                        in.Name,
		Email:                       in.Email,
		CycleDate:                   in.CycleDate,
		StatementCreateDate:         in.StatementCreateDate,
		Plan:                        in.Plan,
		AutoCreateStatementsEnabled: in.AutoCreateStatementsEnabled,
		AutoEmailStatementsEnabled:  in.AutoEmailStatementsEnabled,
		CreatedAt:                   now,
		UpdatedAt:                   now,
	}

	err := e.Store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetClient(ctx, c.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ConflictError{Reason: "client already exists: " + string(c.ID)}
		}
		if err := s.SaveClient(ctx, c); err != nil {
			return err
		}
		return s.SaveBalance(ctx, NewBalance(c.ID))
	})
	if err != nil {
		return nil, internal("create client", err)
	}
	return &c, nil
}

// UpdateClient replaces the client's billing configuration.
func (e *Engine) UpdateClient(ctx context.Context, in ClientInput) (*Client, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var out Client
	err := e.Store.WithTx(ctx, func(s Store) error {
		c, err := s.GetClient(ctx, in.ID)
		if err != nil {
			return err
		}
		if c == nil {
			return notFound("client", string(in.ID))
		}
		c.Name = in.Name
		c.Email = in.Email
		c.CycleDate = in.CycleDate
		c.StatementCreateDate = in.StatementCreateDate
		c.Plan = in.Plan
		c.AutoCreateStatementsEnabled = in.AutoCreateStatementsEnabled
		c.AutoEmailStatementsEnabled = in.AutoEmailStatementsEnabled
		c.UpdatedAt = e.now()
		out = *c
		return s.SaveClient(ctx, out)
	})
	if err != nil {
		return nil, internal("update client", err)
	}
	return &out, nil
}

// DeleteClient removes the client and cascades to its balance, invoices,
// statements and payments.
func (e *Engine) DeleteClient(ctx context.Context, id ClientID) error {
	err := e.Store.WithTx(ctx, func(s Store) error {
		c, err := s.GetClient(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return notFound("client", string(id))
		}
		return s.DeleteClient(ctx, id)
	})
	return internal("delete client", err)
}

// =============================================================================
// INVOICES
// =============================================================================

// InvoiceInput carries a new billable line item.
type InvoiceInput struct {
	ClientID    ClientID
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	CreatedBy   string
}

// RecordInvoice stores the invoice and accrues its amount into the client's
// ServiceDues, so the ledger always reconciles with unbilled invoices.
func (e *Engine) RecordInvoice(ctx context.Context, in InvoiceInput) (*Invoice, error) {
	var v validator
	v.check(in.ClientID != "", "clientId", "required")
	v.check(!in.Date.IsZero(), "date", "required")
	v.check(!in.Amount.IsZero(), "amount", "must be non-zero")
	v.check(strings.TrimSpace(in.Description) != "", "description", "required")
	if err := v.err(); err != nil {
		return nil, err
	}

	inv := Invoice{
		ID:          InvoiceID(e.id()),
		ClientID:    in.ClientID,
		Date:        in.Date.In(e.Calendar.loc()),
		Amount:      in.Amount,
		Description: in.Description,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   e.now(),
	}

	err := e.Store.WithTx(ctx, func(s Store) error {
		bal, err := e.loadClientBalance(ctx, s, in.ClientID)
		if err != nil {
			return err
		}
		if err := s.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		return s.SaveBalance(ctx, bal.AddServiceDue(inv.Amount))
	})
	if err != nil {
		return nil, internal("record invoice", err)
	}
	return &inv, nil
}

// DeleteInvoice removes an unbilled invoice and backs its amount out of
// ServiceDues. Invoices already captured on a statement are rejected.
func (e *Engine) DeleteInvoice(ctx context.Context, id InvoiceID) (*Invoice, error) {
	var out Invoice
	err := e.Store.WithTx(ctx, func(s Store) error {
		inv, err := s.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return notFound("invoice", string(id))
		}
		billed, err := s.IsInvoiceBilled(ctx, id)
		if err != nil {
			return err
		}
		if billed {
			return ErrInvoiceBilled
		}
		bal, err := e.loadClientBalance(ctx, s, inv.ClientID)
		if err != nil {
			return err
		}
		if err := s.DeleteInvoice(ctx, id); err != nil {
			return err
		}
		out = *inv
		return s.SaveBalance(ctx, bal.AddServiceDue(inv.Amount.Neg()))
	})
	if err != nil {
		return nil, internal("delete invoice", err)
	}
	return &out, nil
}

// loadClientBalance resolves the client and its balance, failing with
// NotFound for either.
func (e *Engine) loadClientBalance(ctx context.Context, s Store, clientID ClientID) (Balance, error) {
	c, err := s.GetClient(ctx, clientID)
	if err != nil {
		return Balance{}, err
	}
	if c == nil {
		return Balance{}, notFound("client", string(clientID))
	}
	bal, err := s.GetBalance(ctx, clientID)
	if err != nil {
		return Balance{}, err
	}
	if bal == nil {
		return Balance{}, notFound("balance", string(clientID))
	}
	return *bal, nil
}
