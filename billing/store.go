/*
store.go - Persistence interfaces for the billing engine

PURPOSE:
  Defines the boundary between billing logic and the backing store. The
  engine never caches balances: every read goes to the store so balance
  math always sees the latest committed state.

KEY INTERFACES:
  Store:   Reads and writes for clients, balances, invoices, statements,
           payments and billing runs
  TxStore: Store plus WithTx, the unit of work every multi-step mutation
           runs in

NOT-FOUND CONTRACT:
  Get* methods return (nil, nil) when the record does not exist. The
  engine turns that into a typed NotFoundError with context.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (production)
  - billing/store/memory.go: In-memory (tests, fault injection)

SEE ALSO:
  - statement.go, payment.go: Run their writes inside WithTx
*/
package billing

import (
	"context"
	"time"
)

// ClientStore persists clients.
type ClientStore interface {
	SaveClient(ctx context.Context, c Client) error
	GetClient(ctx context.Context, id ClientID) (*Client, error)
	ListClients(ctx context.Context) ([]Client, error)

	// ListClientsByStatementDay returns clients whose StatementCreateDate
	// equals day, or is >= day when orLater is set.
	ListClientsByStatementDay(ctx context.Context, day int, orLater bool) ([]Client, error)

	// DeleteClient removes the client and everything that belongs to it.
	DeleteClient(ctx context.Context, id ClientID) error
}

// BalanceStore persists the per-client ledger.
type BalanceStore interface {
	GetBalance(ctx context.Context, clientID ClientID) (*Balance, error)
	SaveBalance(ctx context.Context, b Balance) error
}

// InvoiceStore persists invoices.
type InvoiceStore interface {
	SaveInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)
	DeleteInvoice(ctx context.Context, id InvoiceID) error

	// InvoicesInRange returns invoices dated in [from, to], ordered by date.
	InvoicesInRange(ctx context.Context, clientID ClientID, from, to time.Time) ([]Invoice, error)

	// IsInvoiceBilled reports whether any statement snapshots the invoice.
	IsInvoiceBilled(ctx context.Context, id InvoiceID) (bool, error)
}

// StatementStore persists statements.
type StatementStore interface {
	CreateStatement(ctx context.Context, s Statement) error
	GetStatement(ctx context.Context, id StatementID) (*Statement, error)
	ListStatements(ctx context.Context, clientID ClientID) ([]Statement, error)
	DeleteStatement(ctx context.Context, id StatementID) error

	// HasUnpaidStatement reports whether the client has a statement with
	// IsPaid = false.
	HasUnpaidStatement(ctx context.Context, clientID ClientID) (bool, error)

	// StatementsEndingIn returns statements whose IssuedEndDate is in
	// [from, to), ordered by IssuedEndDate.
	StatementsEndingIn(ctx context.Context, clientID ClientID, from, to time.Time) ([]Statement, error)

	// MarkStatement overwrites the payment-tracking fields.
	MarkStatement(ctx context.Context, id StatementID, mark PaymentMark) error
}

// PaymentStore persists payments.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, id PaymentID) error
	ListPaymentsByStatement(ctx context.Context, statementID StatementID) ([]Payment, error)
	ListPaymentsByClient(ctx context.Context, clientID ClientID) ([]Payment, error)
}

// RunStore records daily scheduler passes.
type RunStore interface {
	SaveRun(ctx context.Context, r Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// CompletedRunOn returns the completed run for a local date, if any.
	CompletedRunOn(ctx context.Context, runDate string) (*Run, error)
}

// Store is the full persistence surface used by the engine.
type Store interface {
	ClientStore
	BalanceStore
	InvoiceStore
	StatementStore
	PaymentStore
	RunStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
