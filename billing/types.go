/*
Package billing provides the billing statement engine.

PURPOSE:
  This package owns the money math of the back-office: the per-client
  balance ledger, statement generation for a date window, payment
  apply/update/reverse, and the daily decision of which clients are due
  for an automatic statement.

KEY CONCEPTS IN THIS FILE (types.go):
  - Client:    Billing configuration (cycle day, statement day, auto flags)
  - Balance:   Running ledger, one per client
  - Invoice:   Immutable billable line item
  - Statement: Immutable snapshot of one billing period
  - Payment:   Credit or debit recorded against a statement

SNAPSHOTS:
  A Statement embeds InvoiceSnapshot, HistoricalStatement and
  BalanceSnapshot values. These are point-in-time copies and are never
  re-fetched or kept in sync with the live records.

SIGN CONVENTION:
  A credit payment DECREASES PaymentsOrCredits, a debit INCREASES it.
  Reconciliation math depends on this convention.

SEE ALSO:
  - ledger.go:    Balance arithmetic
  - statement.go: Statement generator
  - payment.go:   Payment applier
  - schedule.go:  Daily due-client selection and batch
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type InvoiceID string
type StatementID string
type PaymentID string

// =============================================================================
// ENUMS
// =============================================================================

type CreationMethod string

const (
	CreationManual CreationMethod = "manual"
	CreationAuto   CreationMethod = "auto"
)

func (m CreationMethod) Valid() bool {
	return m == CreationManual || m == CreationAuto
}

type PaymentType string

const (
	PaymentCredit PaymentType = "credit" // money received from the client
	PaymentDebit  PaymentType = "debit"  // amount added to what the client owes
)

func (t PaymentType) Valid() bool {
	return t == PaymentCredit || t == PaymentDebit
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the billing view of a customer.
type Client struct {
	ID                          ClientID
	Name                        string
	Email                       string
	CycleDate                   int // day-of-month the billing period ends
	StatementCreateDate         int // day-of-month the scheduler generates
	Plan                        string
	AutoCreateStatementsEnabled bool
	AutoEmailStatementsEnabled  bool
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// AutoEmailEnabled reports whether the scheduler may email this client.
// Email never fires without a generated statement.
func (c Client) AutoEmailEnabled() bool {
	return c.AutoCreateStatementsEnabled && c.AutoEmailStatementsEnabled
}

// =============================================================================
// BALANCE
// =============================================================================

// Balance is the per-client running ledger.
//
// PaymentsOrCredits and ServiceDues accumulate activity since the last
// statement and are zeroed when a statement is issued. NewStatementBalance
// is only recomputed by the statement generator.
type Balance struct {
	ClientID                 ClientID
	PreviousStatementBalance decimal.Decimal
	PaymentsOrCredits        decimal.Decimal
	ServiceDues              decimal.Decimal
	NewStatementBalance      decimal.Decimal
	PastDueAmount            decimal.Decimal
	UpdatedAt                time.Time
}

// NewBalance returns a zeroed balance for a newly onboarded client.
func NewBalance(clientID ClientID) Balance {
	return Balance{
		ClientID:                 clientID,
		PreviousStatementBalance: decimal.Zero,
		PaymentsOrCredits:        decimal.Zero,
		ServiceDues:              decimal.Zero,
		NewStatementBalance:      decimal.Zero,
		PastDueAmount:            decimal.Zero,
	}
}

// Snapshot copies the balance into a statement-embeddable value.
func (b Balance) Snapshot() BalanceSnapshot {
	return BalanceSnapshot{
		PreviousStatementBalance: b.PreviousStatementBalance,
		PaymentsOrCredits:        b.PaymentsOrCredits,
		ServiceDues:              b.ServiceDues,
		NewStatementBalance:      b.NewStatementBalance,
		PastDueAmount:            b.PastDueAmount,
	}
}

// =============================================================================
// INVOICE
// =============================================================================

type Invoice struct {
	ID          InvoiceID
	ClientID    ClientID
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	CreatedBy   string
	CreatedAt   time.Time
}

// Snapshot copies the invoice into a statement-embeddable value.
func (i Invoice) Snapshot() InvoiceSnapshot {
	return InvoiceSnapshot{
		InvoiceID:   i.ID,
		Date:        i.Date,
		Amount:      i.Amount,
		Description: i.Description,
	}
}

// =============================================================================
// STATEMENT
// =============================================================================

// InvoiceSnapshot is an invoice as it was when a statement was issued.
type InvoiceSnapshot struct {
	InvoiceID   InvoiceID
	Date        time.Time
	Amount      decimal.Decimal
	Description string
}

// HistoricalStatement is the summary of a prior statement embedded in a
// newer one.
type HistoricalStatement struct {
	StatementID         StatementID
	IssuedStartDate     time.Time
	IssuedEndDate       time.Time
	TotalAmount         decimal.Decimal
	NewStatementBalance decimal.Decimal
	IsPaid              bool
	PaidAmount          decimal.Decimal
}

// BalanceSnapshot is the ledger as it was when a statement was issued.
type BalanceSnapshot struct {
	PreviousStatementBalance decimal.Decimal
	PaymentsOrCredits        decimal.Decimal
	ServiceDues              decimal.Decimal
	NewStatementBalance      decimal.Decimal
	PastDueAmount            decimal.Decimal
}

// Equal compares amounts numerically, ignoring decimal exponent.
func (s BalanceSnapshot) Equal(o BalanceSnapshot) bool {
	return s.PreviousStatementBalance.Equal(o.PreviousStatementBalance) &&
		s.PaymentsOrCredits.Equal(o.PaymentsOrCredits) &&
		s.ServiceDues.Equal(o.ServiceDues) &&
		s.NewStatementBalance.Equal(o.NewStatementBalance) &&
		s.PastDueAmount.Equal(o.PastDueAmount)
}

// Statement is the billing document for [IssuedStartDate, IssuedEndDate].
// Everything except the payment-tracking fields is immutable.
type Statement struct {
	ID                       StatementID
	ClientID                 ClientID
	IssuedStartDate          time.Time
	IssuedEndDate            time.Time
	InvoiceData              []InvoiceSnapshot
	HistoricalStatementsData []HistoricalStatement
	BalanceData              BalanceSnapshot
	TotalAmount              decimal.Decimal
	ClientPlan               string
	CreationMethod           CreationMethod
	CreatedBy                string
	CreatedAt                time.Time

	// Payment tracking
	IsPaid      bool
	PaidAmount  decimal.Decimal
	CheckNumber *string
	CheckDate   *time.Time
}

// Summary copies the statement into a HistoricalStatement value.
func (s Statement) Summary() HistoricalStatement {
	return HistoricalStatement{
		StatementID:         s.ID,
		IssuedStartDate:     s.IssuedStartDate,
		IssuedEndDate:       s.IssuedEndDate,
		TotalAmount:         s.TotalAmount,
		NewStatementBalance: s.BalanceData.NewStatementBalance,
		IsPaid:              s.IsPaid,
		PaidAmount:          s.PaidAmount,
	}
}

// PaymentMark is the set of payment-tracking fields on a statement.
type PaymentMark struct {
	IsPaid      bool
	PaidAmount  decimal.Decimal
	CheckNumber *string
	CheckDate   *time.Time
}

// Unpaid is the mark of a statement with no payment applied.
func Unpaid() PaymentMark {
	return PaymentMark{PaidAmount: decimal.Zero}
}

// =============================================================================
// PAYMENT
// =============================================================================

type Payment struct {
	ID          PaymentID
	ClientID    ClientID
	StatementID StatementID
	Type        PaymentType
	Amount      decimal.Decimal
	CheckDate   time.Time
	CheckNumber string
	Memo        *string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
