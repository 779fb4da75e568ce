package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/statement-engine/billing"
)

// timeLayout is fixed width so stored UTC instants sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// queries runs billing.Store operations on a *sql.DB or *sql.Tx without
// locking. Store wraps it with the mutex; WithTx hands it out directly.
type queries struct {
	q querier
}

// =============================================================================
// CLIENTS
// =============================================================================

const clientColumns = `id, name, email, cycle_date, statement_create_date, plan,
	auto_create_statements, auto_email_statements, created_at, updated_at`

func (q *queries) SaveClient(ctx context.Context, c billing.Client) error {
	query := `
		INSERT INTO clients (` + clientColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			cycle_date = excluded.cycle_date,
			statement_create_date = excluded.statement_create_date,
			plan = excluded.plan,
			auto_create_statements = excluded.auto_create_statements,
			auto_email_statements = excluded.auto_email_statements,
			updated_at = excluded.updated_at
	`
	_, err := q.q.ExecContext(ctx, query,
		c.ID, c.Name, c.Email, c.CycleDate, c.StatementCreateDate, c.Plan,
		c.AutoCreateStatementsEnabled, c.AutoEmailStatementsEnabled,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

func (q *queries) GetClient(ctx context.Context, id billing.ClientID) (*billing.Client, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+clientColumns+" FROM clients WHERE id = ?", id)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

func (q *queries) ListClients(ctx context.Context) ([]billing.Client, error) {
	return q.queryClients(ctx, "SELECT "+clientColumns+" FROM clients ORDER BY name")
}

func (q *queries) ListClientsByStatementDay(ctx context.Context, day int, orLater bool) ([]billing.Client, error) {
	if orLater {
		return q.queryClients(ctx,
			"SELECT "+clientColumns+" FROM clients WHERE statement_create_date >= ? ORDER BY id", day)
	}
	return q.queryClients(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE statement_create_date = ? ORDER BY id", day)
}

func (q *queries) DeleteClient(ctx context.Context, id billing.ClientID) error {
	// Foreign keys cascade to balances, invoices, statements and payments.
	if _, err := q.q.ExecContext(ctx, "DELETE FROM clients WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

func (q *queries) queryClients(ctx context.Context, query string, args ...any) ([]billing.Client, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []billing.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (billing.Client, error) {
	var (
		c                    billing.Client
		createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.CycleDate, &c.StatementCreateDate, &c.Plan,
		&c.AutoCreateStatementsEnabled, &c.AutoEmailStatementsEnabled, &createdAt, &updatedAt)
	if err != nil {
		return c, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

// =============================================================================
// BALANCES
// =============================================================================

func (q *queries) GetBalance(ctx context.Context, id billing.ClientID) (*billing.Balance, error) {
	var (
		b                                            billing.Balance
		prev, payments, dues, next, pastDue, updated string
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT client_id, previous_statement_balance, payments_or_credits, service_dues,
		       new_statement_balance, past_due_amount, updated_at
		FROM balances WHERE client_id = ?`, id,
	).Scan(&b.ClientID, &prev, &payments, &dues, &next, &pastDue, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	b.PreviousStatementBalance = parseDecimal(prev)
	b.PaymentsOrCredits = parseDecimal(payments)
	b.ServiceDues = parseDecimal(dues)
	b.NewStatementBalance = parseDecimal(next)
	b.PastDueAmount = parseDecimal(pastDue)
	b.UpdatedAt = parseTime(updated)
	return &b, nil
}

func (q *queries) SaveBalance(ctx context.Context, b billing.Balance) error {
	updated := b.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO balances
		(client_id, previous_statement_balance, payments_or_credits, service_dues,
		 new_statement_balance, past_due_amount, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			previous_statement_balance = excluded.previous_statement_balance,
			payments_or_credits = excluded.payments_or_credits,
			service_dues = excluded.service_dues,
			new_statement_balance = excluded.new_statement_balance,
			past_due_amount = excluded.past_due_amount,
			updated_at = excluded.updated_at
	`,
		b.ClientID,
		b.PreviousStatementBalance.String(),
		b.PaymentsOrCredits.String(),
		b.ServiceDues.String(),
		b.NewStatementBalance.String(),
		b.PastDueAmount.String(),
		formatTime(updated),
	)
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = "id, client_id, date, amount, description, created_by, created_at"

func (q *queries) SaveInvoice(ctx context.Context, inv billing.Invoice) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO invoices ("+invoiceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		inv.ID, inv.ClientID, formatTime(inv.Date), inv.Amount.String(), inv.Description,
		inv.CreatedBy, formatTime(inv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}

func (q *queries) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	inv, err := scanInvoice(q.q.QueryRowContext(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &inv, nil
}

func (q *queries) DeleteInvoice(ctx context.Context, id billing.InvoiceID) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM invoices WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return nil
}

func (q *queries) InvoicesInRange(ctx context.Context, id billing.ClientID, from, to time.Time) ([]billing.Invoice, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE client_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, created_at ASC
	`, id, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (q *queries) IsInvoiceBilled(ctx context.Context, id billing.InvoiceID) (bool, error) {
	var count int
	err := q.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM statement_invoices WHERE invoice_id = ?", id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check invoice billing: %w", err)
	}
	return count > 0, nil
}

func scanInvoice(row scanner) (billing.Invoice, error) {
	var (
		inv                     billing.Invoice
		date, amount, createdAt string
	)
	err := row.Scan(&inv.ID, &inv.ClientID, &date, &amount, &inv.Description, &inv.CreatedBy, &createdAt)
	if err != nil {
		return inv, err
	}
	inv.Date = parseTime(date)
	inv.Amount = parseDecimal(amount)
	inv.CreatedAt = parseTime(createdAt)
	return inv, nil
}

// =============================================================================
// STATEMENTS
// =============================================================================

const statementColumns = `id, client_id, issued_start_date, issued_end_date, total_amount,
	client_plan, creation_method, balance_json, history_json, created_by, created_at,
	is_paid, paid_amount, check_number, check_date`

func (q *queries) CreateStatement(ctx context.Context, st billing.Statement) error {
	balanceJSON, err := json.Marshal(toBalanceRecord(st.BalanceData))
	if err != nil {
		return fmt.Errorf("failed to encode balance snapshot: %w", err)
	}
	history := make([]historyRecord, len(st.HistoricalStatementsData))
	for i, h := range st.HistoricalStatementsData {
		history[i] = toHistoryRecord(h)
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode statement history: %w", err)
	}

	_, err = q.q.ExecContext(ctx, `
		INSERT INTO statements (`+statementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		st.ID, st.ClientID,
		formatTime(st.IssuedStartDate), formatTime(st.IssuedEndDate),
		st.TotalAmount.String(), st.ClientPlan, st.CreationMethod,
		string(balanceJSON), string(historyJSON),
		st.CreatedBy, formatTime(st.CreatedAt),
		st.IsPaid, st.PaidAmount.String(),
		nullableString(st.CheckNumber), nullableTime(st.CheckDate),
	)
	if err != nil {
		return fmt.Errorf("failed to create statement: %w", err)
	}

	for i, inv := range st.InvoiceData {
		_, err := q.q.ExecContext(ctx, `
			INSERT INTO statement_invoices (statement_id, position, invoice_id, date, amount, description)
			VALUES (?, ?, ?, ?, ?, ?)
		`, st.ID, i, inv.InvoiceID, formatTime(inv.Date), inv.Amount.String(), inv.Description)
		if err != nil {
			return fmt.Errorf("failed to snapshot invoice %s: %w", inv.InvoiceID, err)
		}
	}
	return nil
}

func (q *queries) GetStatement(ctx context.Context, id billing.StatementID) (*billing.Statement, error) {
	st, err := scanStatement(q.q.QueryRowContext(ctx, "SELECT "+statementColumns+" FROM statements WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", err)
	}
	if err := q.loadInvoiceSnapshots(ctx, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (q *queries) ListStatements(ctx context.Context, id billing.ClientID) ([]billing.Statement, error) {
	return q.queryStatements(ctx, `
		SELECT `+statementColumns+` FROM statements
		WHERE client_id = ?
		ORDER BY issued_end_date DESC
	`, id)
}

func (q *queries) DeleteStatement(ctx context.Context, id billing.StatementID) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM statements WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete statement: %w", err)
	}
	return nil
}

func (q *queries) HasUnpaidStatement(ctx context.Context, id billing.ClientID) (bool, error) {
	var count int
	err := q.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM statements WHERE client_id = ? AND is_paid = FALSE", id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check unpaid statements: %w", err)
	}
	return count > 0, nil
}

func (q *queries) StatementsEndingIn(ctx context.Context, id billing.ClientID, from, to time.Time) ([]billing.Statement, error) {
	return q.queryStatements(ctx, `
		SELECT `+statementColumns+` FROM statements
		WHERE client_id = ? AND issued_end_date >= ? AND issued_end_date < ?
		ORDER BY issued_end_date ASC
	`, id, formatTime(from), formatTime(to))
}

func (q *queries) MarkStatement(ctx context.Context, id billing.StatementID, mark billing.PaymentMark) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE statements
		SET is_paid = ?, paid_amount = ?, check_number = ?, check_date = ?
		WHERE id = ?
	`, mark.IsPaid, mark.PaidAmount.String(), nullableString(mark.CheckNumber), nullableTime(mark.CheckDate), id)
	if err != nil {
		return fmt.Errorf("failed to mark statement: %w", err)
	}
	return nil
}

func (q *queries) queryStatements(ctx context.Context, query string, args ...any) ([]billing.Statement, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}

	var statements []billing.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		statements = append(statements, st)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Snapshots load after the cursor closes; a single connection cannot
	// serve two result sets at once.
	for i := range statements {
		if err := q.loadInvoiceSnapshots(ctx, &statements[i]); err != nil {
			return nil, err
		}
	}
	return statements, nil
}

func (q *queries) loadInvoiceSnapshots(ctx context.Context, st *billing.Statement) error {
	rows, err := q.q.QueryContext(ctx, `
		SELECT invoice_id, date, amount, description
		FROM statement_invoices
		WHERE statement_id = ?
		ORDER BY position ASC
	`, st.ID)
	if err != nil {
		return fmt.Errorf("failed to query invoice snapshots: %w", err)
	}
	defer rows.Close()

	st.InvoiceData = []billing.InvoiceSnapshot{}
	for rows.Next() {
		var (
			snap         billing.InvoiceSnapshot
			date, amount string
		)
		if err := rows.Scan(&snap.InvoiceID, &date, &amount, &snap.Description); err != nil {
			return fmt.Errorf("failed to scan invoice snapshot: %w", err)
		}
		snap.Date = parseTime(date)
		snap.Amount = parseDecimal(amount)
		st.InvoiceData = append(st.InvoiceData, snap)
	}
	return rows.Err()
}

func scanStatement(row scanner) (billing.Statement, error) {
	var (
		st                                 billing.Statement
		start, end, total, createdAt, paid string
		balanceJSON, historyJSON           string
		checkNumber, checkDate             sql.NullString
	)
	err := row.Scan(&st.ID, &st.ClientID, &start, &end, &total,
		&st.ClientPlan, &st.CreationMethod, &balanceJSON, &historyJSON, &st.CreatedBy, &createdAt,
		&st.IsPaid, &paid, &checkNumber, &checkDate)
	if err != nil {
		return st, err
	}

	st.IssuedStartDate = parseTime(start)
	st.IssuedEndDate = parseTime(end)
	st.TotalAmount = parseDecimal(total)
	st.CreatedAt = parseTime(createdAt)
	st.PaidAmount = parseDecimal(paid)
	if checkNumber.Valid {
		n := checkNumber.String
		st.CheckNumber = &n
	}
	if checkDate.Valid {
		t := parseTime(checkDate.String)
		st.CheckDate = &t
	}

	var balance balanceRecord
	if err := json.Unmarshal([]byte(balanceJSON), &balance); err != nil {
		return st, fmt.Errorf("failed to decode balance snapshot: %w", err)
	}
	st.BalanceData = balance.toSnapshot()

	var history []historyRecord
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		return st, fmt.Errorf("failed to decode statement history: %w", err)
	}
	st.HistoricalStatementsData = make([]billing.HistoricalStatement, len(history))
	for i, h := range history {
		st.HistoricalStatementsData[i] = h.toHistorical()
	}
	return st, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, client_id, statement_id, type, amount, check_date, check_number,
	memo, created_by, created_at, updated_at`

func (q *queries) CreatePayment(ctx context.Context, p billing.Payment) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO payments ("+paymentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.ClientID, p.StatementID, p.Type, p.Amount.String(), formatTime(p.CheckDate),
		p.CheckNumber, nullableString(p.Memo), p.CreatedBy, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (q *queries) GetPayment(ctx context.Context, id billing.PaymentID) (*billing.Payment, error) {
	p, err := scanPayment(q.q.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

func (q *queries) UpdatePayment(ctx context.Context, p billing.Payment) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE payments
		SET amount = ?, check_date = ?, check_number = ?, memo = ?, updated_at = ?
		WHERE id = ?
	`, p.Amount.String(), formatTime(p.CheckDate), p.CheckNumber, nullableString(p.Memo), formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}

func (q *queries) DeletePayment(ctx context.Context, id billing.PaymentID) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return nil
}

func (q *queries) ListPaymentsByStatement(ctx context.Context, id billing.StatementID) ([]billing.Payment, error) {
	return q.queryPayments(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE statement_id = ? ORDER BY created_at ASC", id)
}

func (q *queries) ListPaymentsByClient(ctx context.Context, id billing.ClientID) ([]billing.Payment, error) {
	return q.queryPayments(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE client_id = ? ORDER BY check_date DESC", id)
}

func (q *queries) queryPayments(ctx context.Context, query string, args ...any) ([]billing.Payment, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []billing.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(row scanner) (billing.Payment, error) {
	var (
		p                                       billing.Payment
		amount, checkDate, createdAt, updatedAt string
		memo                                    sql.NullString
	)
	err := row.Scan(&p.ID, &p.ClientID, &p.StatementID, &p.Type, &amount, &checkDate,
		&p.CheckNumber, &memo, &p.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	p.Amount = parseDecimal(amount)
	p.CheckDate = parseTime(checkDate)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	if memo.Valid {
		m := memo.String
		p.Memo = &m
	}
	return p, nil
}

// =============================================================================
// BILLING RUNS
// =============================================================================

const runColumns = `id, run_date, status, matched, generated, emailed, skipped, failed,
	error, started_at, completed_at`

func (q *queries) SaveRun(ctx context.Context, r billing.Run) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO billing_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			matched = excluded.matched,
			generated = excluded.generated,
			emailed = excluded.emailed,
			skipped = excluded.skipped,
			failed = excluded.failed,
			error = excluded.error,
			completed_at = excluded.completed_at
	`,
		r.ID, r.RunDate, r.Status, r.Matched, r.Generated, r.Emailed, r.Skipped, r.Failed,
		nullString(r.Error), formatTime(r.StartedAt), nullableTime(r.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save billing run: %w", err)
	}
	return nil
}

func (q *queries) ListRuns(ctx context.Context, limit int) ([]billing.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	return q.queryRuns(ctx, "SELECT "+runColumns+" FROM billing_runs ORDER BY started_at DESC LIMIT ?", limit)
}

func (q *queries) CompletedRunOn(ctx context.Context, runDate string) (*billing.Run, error) {
	runs, err := q.queryRuns(ctx,
		"SELECT "+runColumns+" FROM billing_runs WHERE run_date = ? AND status = ? LIMIT 1",
		runDate, billing.RunCompleted)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

func (q *queries) queryRuns(ctx context.Context, query string, args ...any) ([]billing.Run, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query billing runs: %w", err)
	}
	defer rows.Close()

	var runs []billing.Run
	for rows.Next() {
		var (
			r                   billing.Run
			runErr, completedAt sql.NullString
			startedAt           string
		)
		if err := rows.Scan(&r.ID, &r.RunDate, &r.Status, &r.Matched, &r.Generated, &r.Emailed,
			&r.Skipped, &r.Failed, &runErr, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan billing run: %w", err)
		}
		r.Error = runErr.String
		r.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// SNAPSHOT RECORDS (JSON columns)
// =============================================================================

type balanceRecord struct {
	PreviousStatementBalance decimal.Decimal `json:"previous_statement_balance"`
	PaymentsOrCredits        decimal.Decimal `json:"payments_or_credits"`
	ServiceDues              decimal.Decimal `json:"service_dues"`
	NewStatementBalance      decimal.Decimal `json:"new_statement_balance"`
	PastDueAmount            decimal.Decimal `json:"past_due_amount"`
}

func toBalanceRecord(b billing.BalanceSnapshot) balanceRecord {
	return balanceRecord(b)
}

func (r balanceRecord) toSnapshot() billing.BalanceSnapshot {
	return billing.BalanceSnapshot(r)
}

type historyRecord struct {
	StatementID         string          `json:"statement_id"`
	IssuedStartDate     string          `json:"issued_start_date"`
	IssuedEndDate       string          `json:"issued_end_date"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	NewStatementBalance decimal.Decimal `json:"new_statement_balance"`
	IsPaid              bool            `json:"is_paid"`
	PaidAmount          decimal.Decimal `json:"paid_amount"`
}

func toHistoryRecord(h billing.HistoricalStatement) historyRecord {
	return historyRecord{
		StatementID:         string(h.StatementID),
		IssuedStartDate:     formatTime(h.IssuedStartDate),
		IssuedEndDate:       formatTime(h.IssuedEndDate),
		TotalAmount:         h.TotalAmount,
		NewStatementBalance: h.NewStatementBalance,
		IsPaid:              h.IsPaid,
		PaidAmount:          h.PaidAmount,
	}
}

func (r historyRecord) toHistorical() billing.HistoricalStatement {
	return billing.HistoricalStatement{
		StatementID:         billing.StatementID(r.StatementID),
		IssuedStartDate:     parseTime(r.IssuedStartDate),
		IssuedEndDate:       parseTime(r.IssuedEndDate),
		TotalAmount:         r.TotalAmount,
		NewStatementBalance: r.NewStatementBalance,
		IsPaid:              r.IsPaid,
		PaidAmount:          r.PaidAmount,
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
