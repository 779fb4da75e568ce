/*
Package sqlite provides a SQLite-backed implementation of billing.TxStore.

PURPOSE:
  Persists clients, balances, invoices, statements, payments and billing
  runs. In production, the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

KEY TABLES:
  clients:            Billing configuration per client
  balances:           One ledger row per client
  invoices:           Billable line items
  statements:         Issued statements (balance + history snapshots as JSON)
  statement_invoices: Invoice snapshots captured at issue
  payments:           Credits and debits against statements
  billing_runs:       Daily scheduler passes

AMOUNTS AND DATES:
  Decimals are stored as TEXT (exact). Instants are stored as fixed-width
  UTC text so that range predicates compare lexicographically.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole unit of work, so check-then-insert sequences (the unpaid statement
  rule) are serialized.

MIGRATION:
  Versioned goose migrations embedded from migrations/ run on New().

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/warp/statement-engine/billing"
)

//go:embed migrations/*.sql
var migrations embed.FS

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements billing.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path and applies
// pending migrations. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies all pending goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Reset deletes all data. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"payments", "statement_invoices", "statements", "invoices", "balances", "clients", "billing_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (s *Store) read() *queries { return &queries{q: s.db} }

// =============================================================================
// LOCKING WRAPPERS (billing.Store interface)
// =============================================================================

func (s *Store) SaveClient(ctx context.Context, c billing.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveClient(ctx, c)
}

func (s *Store) GetClient(ctx context.Context, id billing.ClientID) (*billing.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetClient(ctx, id)
}

func (s *Store) ListClients(ctx context.Context) ([]billing.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListClients(ctx)
}

func (s *Store) ListClientsByStatementDay(ctx context.Context, day int, orLater bool) ([]billing.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListClientsByStatementDay(ctx, day, orLater)
}

func (s *Store) DeleteClient(ctx context.Context, id billing.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteClient(ctx, id)
}

func (s *Store) GetBalance(ctx context.Context, id billing.ClientID) (*billing.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetBalance(ctx, id)
}

func (s *Store) SaveBalance(ctx context.Context, b billing.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveBalance(ctx, b)
}

func (s *Store) SaveInvoice(ctx context.Context, inv billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveInvoice(ctx, inv)
}

func (s *Store) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetInvoice(ctx, id)
}

func (s *Store) DeleteInvoice(ctx context.Context, id billing.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteInvoice(ctx, id)
}

func (s *Store) InvoicesInRange(ctx context.Context, id billing.ClientID, from, to time.Time) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().InvoicesInRange(ctx, id, from, to)
}

func (s *Store) IsInvoiceBilled(ctx context.Context, id billing.InvoiceID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().IsInvoiceBilled(ctx, id)
}

// CreateStatement runs in its own transaction so the statement and its
// invoice snapshots land together.
func (s *Store) CreateStatement(ctx context.Context, st billing.Statement) error {
	return s.WithTx(ctx, func(tx billing.Store) error {
		return tx.CreateStatement(ctx, st)
	})
}

func (s *Store) GetStatement(ctx context.Context, id billing.StatementID) (*billing.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetStatement(ctx, id)
}

func (s *Store) ListStatements(ctx context.Context, id billing.ClientID) ([]billing.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListStatements(ctx, id)
}

func (s *Store) DeleteStatement(ctx context.Context, id billing.StatementID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteStatement(ctx, id)
}

func (s *Store) HasUnpaidStatement(ctx context.Context, id billing.ClientID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().HasUnpaidStatement(ctx, id)
}

func (s *Store) StatementsEndingIn(ctx context.Context, id billing.ClientID, from, to time.Time) ([]billing.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().StatementsEndingIn(ctx, id, from, to)
}

func (s *Store) MarkStatement(ctx context.Context, id billing.StatementID, mark billing.PaymentMark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().MarkStatement(ctx, id, mark)
}

func (s *Store) CreatePayment(ctx context.Context, p billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CreatePayment(ctx, p)
}

func (s *Store) GetPayment(ctx context.Context, id billing.PaymentID) (*billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetPayment(ctx, id)
}

func (s *Store) UpdatePayment(ctx context.Context, p billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UpdatePayment(ctx, p)
}

func (s *Store) DeletePayment(ctx context.Context, id billing.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeletePayment(ctx, id)
}

func (s *Store) ListPaymentsByStatement(ctx context.Context, id billing.StatementID) ([]billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListPaymentsByStatement(ctx, id)
}

func (s *Store) ListPaymentsByClient(ctx context.Context, id billing.ClientID) ([]billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListPaymentsByClient(ctx, id)
}

func (s *Store) SaveRun(ctx context.Context, r billing.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveRun(ctx, r)
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]billing.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListRuns(ctx, limit)
}

func (s *Store) CompletedRunOn(ctx context.Context, runDate string) (*billing.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().CompletedRunOn(ctx, runDate)
}
