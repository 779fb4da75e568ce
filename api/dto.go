/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  Dates are YYYY-MM-DD in the business timezone. Instants are RFC3339.
  Amounts are decimal strings ("150.00") so no precision is lost in JSON.

VALIDATION:
  Handlers only parse. Field validation happens in the billing package so
  the same rules apply to scheduler and API callers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/statement-engine/billing"
)

const dateLayout = "2006-01-02"

// =============================================================================
// CLIENTS
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID                          string `json:"id"`
	Name                        string `json:"name"`
	Email                       string `json:"email"`
	CycleDate                   int    `json:"cycleDate"`
	StatementCreateDate         int    `json:"statementCreateDate"`
	Plan                        string `json:"plan"`
	AutoCreateStatementsEnabled bool   `json:"autoCreateStatementsEnabled"`
	AutoEmailStatementsEnabled  bool   `json:"autoEmailStatementsEnabled"`
	CreatedAt                   string `json:"createdAt,omitempty"`
	UpdatedAt                   string `json:"updatedAt,omitempty"`
}

// ClientRequest is the body for creating or updating a client.
type ClientRequest struct {
	ID                          string `json:"id"`
	Name                        string `json:"name"`
	Email                       string `json:"email"`
	CycleDate                   int    `json:"cycleDate"`
	StatementCreateDate         int    `json:"statementCreateDate"`
	Plan                        string `json:"plan"`
	AutoCreateStatementsEnabled bool   `json:"autoCreateStatementsEnabled"`
	AutoEmailStatementsEnabled  bool   `json:"autoEmailStatementsEnabled"`
}

func (r ClientRequest) toInput(id billing.ClientID) billing.ClientInput {
	if id == "" {
		id = billing.ClientID(r.ID)
	}
	return billing.ClientInput{
		ID:                          id,
		Name:                        r.Name,
		Email:                       r.Email,
		CycleDate:                   r.CycleDate,
		StatementCreateDate:         r.StatementCreateDate,
		Plan:                        r.Plan,
		AutoCreateStatementsEnabled: r.AutoCreateStatementsEnabled,
		AutoEmailStatementsEnabled:  r.AutoEmailStatementsEnabled,
	}
}

func toClientDTO(c billing.Client) ClientDTO {
	return ClientDTO{
		ID:                          string(c.ID),
		Name:                        c.Name,
		Email:                       c.Email,
		CycleDate:                   c.CycleDate,
		StatementCreateDate:         c.StatementCreateDate,
		Plan:                        c.Plan,
		AutoCreateStatementsEnabled: c.AutoCreateStatementsEnabled,
		AutoEmailStatementsEnabled:  c.AutoEmailStatementsEnabled,
		CreatedAt:                   formatInstant(c.CreatedAt),
		UpdatedAt:                   formatInstant(c.UpdatedAt),
	}
}

// =============================================================================
// BALANCE
// =============================================================================

// BalanceDTO is the ledger view of a client or of a statement snapshot.
type BalanceDTO struct {
	ClientID                 string          `json:"clientId,omitempty"`
	PreviousStatementBalance decimal.Decimal `json:"previousStatementBalance"`
	PaymentsOrCredits        decimal.Decimal `json:"paymentsOrCredits"`
	ServiceDues              decimal.Decimal `json:"serviceDues"`
	NewStatementBalance      decimal.Decimal `json:"newStatementBalance"`
	PastDueAmount            decimal.Decimal `json:"pastDueAmount"`
	UpdatedAt                string          `json:"updatedAt,omitempty"`
}

func toBalanceDTO(b billing.Balance) BalanceDTO {
	dto := toBalanceSnapshotDTO(b.Snapshot())
	dto.ClientID = string(b.ClientID)
	dto.UpdatedAt = formatInstant(b.UpdatedAt)
	return dto
}

func toBalanceSnapshotDTO(b billing.BalanceSnapshot) BalanceDTO {
	return BalanceDTO{
		PreviousStatementBalance: b.PreviousStatementBalance,
		PaymentsOrCredits:        b.PaymentsOrCredits,
		ServiceDues:              b.ServiceDues,
		NewStatementBalance:      b.NewStatementBalance,
		PastDueAmount:            b.PastDueAmount,
	}
}

// =============================================================================
// INVOICES
// =============================================================================

// InvoiceDTO represents an invoice or an invoice snapshot.
type InvoiceDTO struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"clientId,omitempty"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
}

// CreateInvoiceRequest records a billable line item.
type CreateInvoiceRequest struct {
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func toInvoiceDTO(inv billing.Invoice, loc *time.Location) InvoiceDTO {
	return InvoiceDTO{
		ID:          string(inv.ID),
		ClientID:    string(inv.ClientID),
		Date:        formatDate(inv.Date, loc),
		Amount:      inv.Amount,
		Description: inv.Description,
		CreatedBy:   inv.CreatedBy,
		CreatedAt:   formatInstant(inv.CreatedAt),
	}
}

// =============================================================================
// STATEMENTS
// =============================================================================

// HistoricalStatementDTO summarizes a prior statement.
type HistoricalStatementDTO struct {
	StatementID         string          `json:"statementId"`
	IssuedStartDate     string          `json:"issuedStartDate"`
	IssuedEndDate       string          `json:"issuedEndDate"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`
	NewStatementBalance decimal.Decimal `json:"newStatementBalance"`
	IsPaid              bool            `json:"isPaid"`
	PaidAmount          decimal.Decimal `json:"paidAmount"`
}

// StatementDTO represents a statement in API responses.
type StatementDTO struct {
	ID                       string                   `json:"id"`
	ClientID                 string                   `json:"clientId"`
	IssuedStartDate          string                   `json:"issuedStartDate"`
	IssuedEndDate            string                   `json:"issuedEndDate"`
	InvoiceData              []InvoiceDTO             `json:"invoiceData"`
	HistoricalStatementsData []HistoricalStatementDTO `json:"historicalStatementsData"`
	BalanceData              BalanceDTO               `json:"balanceData"`
	TotalAmount              decimal.Decimal          `json:"totalAmount"`
	ClientPlan               string                   `json:"clientPlan"`
	CreationMethod           string                   `json:"creationMethod"`
	CreatedBy                string                   `json:"createdBy"`
	CreatedAt                string                   `json:"createdAt"`
	IsPaid                   bool                     `json:"isPaid"`
	PaidAmount               decimal.Decimal          `json:"paidAmount"`
	CheckNumber              *string                  `json:"checkNumber,omitempty"`
	CheckDate                *string                  `json:"checkDate,omitempty"`
}

// GenerateStatementRequest asks for a manual statement.
type GenerateStatementRequest struct {
	ClientID        string `json:"clientId"`
	IssuedStartDate string `json:"issuedStartDate"`
	IssuedEndDate   string `json:"issuedEndDate"`
}

func toStatementDTO(s billing.Statement, loc *time.Location) StatementDTO {
	invoices := make([]InvoiceDTO, len(s.InvoiceData))
	for i, inv := range s.InvoiceData {
		invoices[i] = InvoiceDTO{
			ID:          string(inv.InvoiceID),
			Date:        formatDate(inv.Date, loc),
			Amount:      inv.Amount,
			Description: inv.Description,
		}
	}
	history := make([]HistoricalStatementDTO, len(s.HistoricalStatementsData))
	for i, h := range s.HistoricalStatementsData {
		history[i] = HistoricalStatementDTO{
			StatementID:         string(h.StatementID),
			IssuedStartDate:     formatDate(h.IssuedStartDate, loc),
			IssuedEndDate:       formatDate(h.IssuedEndDate, loc),
			TotalAmount:         h.TotalAmount,
			NewStatementBalance: h.NewStatementBalance,
			IsPaid:              h.IsPaid,
			PaidAmount:          h.PaidAmount,
		}
	}

	dto := StatementDTO{
		ID:                       string(s.ID),
		ClientID:                 string(s.ClientID),
		IssuedStartDate:          formatDate(s.IssuedStartDate, loc),
		IssuedEndDate:            formatDate(s.IssuedEndDate, loc),
		InvoiceData:              invoices,
		HistoricalStatementsData: history,
		BalanceData:              toBalanceSnapshotDTO(s.BalanceData),
		TotalAmount:              s.TotalAmount,
		ClientPlan:               s.ClientPlan,
		CreationMethod:           string(s.CreationMethod),
		CreatedBy:                s.CreatedBy,
		CreatedAt:                formatInstant(s.CreatedAt),
		IsPaid:                   s.IsPaid,
		PaidAmount:               s.PaidAmount,
		CheckNumber:              s.CheckNumber,
	}
	if s.CheckDate != nil {
		d := formatDate(*s.CheckDate, loc)
		dto.CheckDate = &d
	}
	return dto
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a payment in API responses.
type PaymentDTO struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"clientId"`
	StatementID string          `json:"statementId"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	CheckDate   string          `json:"checkDate"`
	CheckNumber string          `json:"checkNumber"`
	Memo        *string         `json:"memo,omitempty"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

// ApplyPaymentRequest records a payment against a statement.
type ApplyPaymentRequest struct {
	ClientID    string          `json:"clientId"`
	StatementID string          `json:"statementId"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	CheckDate   string          `json:"checkDate"`
	CheckNumber string          `json:"checkNumber"`
	Memo        *string         `json:"memo"`
}

// UpdatePaymentRequest corrects a payment. Omitted fields are unchanged.
type UpdatePaymentRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	CheckDate   *string          `json:"checkDate"`
	CheckNumber *string          `json:"checkNumber"`
	Memo        *string          `json:"memo"`
}

func toPaymentDTO(p billing.Payment, loc *time.Location) PaymentDTO {
	return PaymentDTO{
		ID:          string(p.ID),
		ClientID:    string(p.ClientID),
		StatementID: string(p.StatementID),
		Type:        string(p.Type),
		Amount:      p.Amount,
		CheckDate:   formatDate(p.CheckDate, loc),
		CheckNumber: p.CheckNumber,
		Memo:        p.Memo,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   formatInstant(p.CreatedAt),
		UpdatedAt:   formatInstant(p.UpdatedAt),
	}
}

// =============================================================================
// BILLING RUNS
// =============================================================================

// BillingRunDTO represents one daily scheduler pass.
type BillingRunDTO struct {
	ID          string `json:"id"`
	RunDate     string `json:"runDate"`
	Status      string `json:"status"`
	Matched     int    `json:"matched"`
	Generated   int    `json:"generated"`
	Emailed     int    `json:"emailed"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"startedAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}

func toBillingRunDTO(r billing.Run) BillingRunDTO {
	dto := BillingRunDTO{
		ID:        r.ID,
		RunDate:   r.RunDate,
		Status:    string(r.Status),
		Matched:   r.Matched,
		Generated: r.Generated,
		Emailed:   r.Emailed,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		Error:     r.Error,
		StartedAt: formatInstant(r.StartedAt),
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = formatInstant(*r.CompletedAt)
	}
	return dto
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	Details any      `json:"details,omitempty"`
}

// =============================================================================
// FORMATTING
// =============================================================================

func formatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(dateLayout)
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
