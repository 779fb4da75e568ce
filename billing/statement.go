/*
statement.go - Statement generator

ALGORITHM (one unit of work):
  1. Resolve client and balance (NotFound otherwise)
  2. Refuse if an unpaid statement exists (Conflict)
  3. Normalize the window to [start 00:00:00.000, end 23:59:59.999] local
  4. Snapshot invoices dated inside the window; TotalAmount is their sum
  5. Snapshot prior statements whose end date is in [start-12mo, start)
  6. Reconcile the balance and persist it
  7. Insert the statement with isPaid=false, paidAmount=0
  8. Reset the accumulators

The check in step 2 and the insert in step 7 share one transaction, so two
concurrent generations for the same client cannot both pass the check.
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// GenerateRequest selects the client and window to bill.
type GenerateRequest struct {
	ClientID        ClientID
	IssuedStartDate time.Time
	IssuedEndDate   time.Time
	CreationMethod  CreationMethod
	CreatedBy       string
}

func (r GenerateRequest) validate() error {
	var v validator
	v.check(r.ClientID != "", "clientId", "required")
	v.check(!r.IssuedStartDate.IsZero(), "issuedStartDate", "required")
	v.check(!r.IssuedEndDate.IsZero(), "issuedEndDate", "required")
	v.check(r.IssuedStartDate.IsZero() || r.IssuedEndDate.IsZero() || !r.IssuedEndDate.Before(r.IssuedStartDate),
		"issuedEndDate", "must not be before issuedStartDate")
	v.check(r.CreationMethod.Valid(), "creationMethod", "must be manual or auto")
	return v.err()
}

// GenerateStatement issues a statement for the request window.
func (e *Engine) GenerateStatement(ctx context.Context, req GenerateRequest) (*Statement, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	window := e.Calendar.StatementWindow(req.IssuedStartDate, req.IssuedEndDate)

	var out Statement
	err := e.Store.WithTx(ctx, func(s Store) error {
		client, err := s.GetClient(ctx, req.ClientID)
		if err != nil {
			return err
		}
		if client == nil {
			return notFound("client", string(req.ClientID))
		}
		bal, err := s.GetBalance(ctx, req.ClientID)
		if err != nil {
			return err
		}
		if bal == nil {
			return notFound("balance", string(req.ClientID))
		}

		unpaid, err := s.HasUnpaidStatement(ctx, req.ClientID)
		if err != nil {
			return err
		}
		if unpaid {
			return ErrUnpaidStatementExists
		}

		invoices, err := s.InvoicesInRange(ctx, req.ClientID, window.Start, window.End)
		if err != nil {
			return err
		}
		total := decimal.Zero
		snapshots := make([]InvoiceSnapshot, 0, len(invoices))
		for _, inv := range invoices {
			total = total.Add(inv.Amount)
			snapshots = append(snapshots, inv.Snapshot())
		}

		prior, err := s.StatementsEndingIn(ctx, req.ClientID, LookbackStart(window.Start), window.Start)
		if err != nil {
			return err
		}
		history := make([]HistoricalStatement, 0, len(prior))
		for _, p := range prior {
			history = append(history, p.Summary())
		}

		reconciled := bal.Reconcile()
		reconciled.UpdatedAt = e.now()
		if err := s.SaveBalance(ctx, reconciled); err != nil {
			return err
		}

		out = Statement{
			ID:                       StatementID(e.id()),
			ClientID:                 req.ClientID,
			IssuedStartDate:          window.Start,
			IssuedEndDate:            window.End,
			InvoiceData:              snapshots,
			HistoricalStatementsData: history,
			BalanceData:              reconciled.Snapshot(),
			TotalAmount:              total,
			ClientPlan:               client.Plan,
			CreationMethod:           req.CreationMethod,
			CreatedBy:                req.CreatedBy,
			CreatedAt:                e.now(),
			IsPaid:                   false,
			PaidAmount:               decimal.Zero,
		}
		if err := s.CreateStatement(ctx, out); err != nil {
			return err
		}

		return s.SaveBalance(ctx, reconciled.ResetAccumulators())
	})
	if err != nil {
		return nil, internal("generate statement", err)
	}
	return &out, nil
}

// DeleteStatement removes the client's latest statement. Linked payments
// are deleted and reversed, then the balance is restored to its state
// before the statement was issued, so the same window can be billed again.
// Older statements are refused with ErrStatementNotLatest.
func (e *Engine) DeleteStatement(ctx context.Context, id StatementID) (*Statement, error) {
	var out Statement
	err := e.Store.WithTx(ctx, func(s Store) error {
		st, err := s.GetStatement(ctx, id)
		if err != nil {
			return err
		}
		if st == nil {
			return notFound("statement", string(id))
		}

		all, err := s.ListStatements(ctx, st.ClientID)
		if err != nil {
			return err
		}
		latest, prior := splitLatest(all)
		if latest == nil || latest.ID != st.ID {
			return ErrStatementNotLatest
		}

		bal, err := s.GetBalance(ctx, st.ClientID)
		if err != nil {
			return err
		}
		if bal == nil {
			return notFound("balance", string(st.ClientID))
		}

		payments, err := s.ListPaymentsByStatement(ctx, id)
		if err != nil {
			return err
		}
		next := *bal
		for _, p := range payments {
			if err := s.DeletePayment(ctx, p.ID); err != nil {
				return err
			}
			next = next.ReversePayment(p.Type, p.Amount)
		}

		priorPrevious := decimal.Zero
		if prior != nil {
			priorPrevious = prior.BalanceData.PreviousStatementBalance
		}
		next = next.Unreconcile(st.BalanceData, priorPrevious)
		next.UpdatedAt = e.now()
		if err := s.SaveBalance(ctx, next); err != nil {
			return err
		}

		out = *st
		return s.DeleteStatement(ctx, id)
	})
	if err != nil {
		return nil, internal("delete statement", err)
	}
	return &out, nil
}

// splitLatest returns the most recently issued statement and the one
// issued before it. Ties on the end date go to the later CreatedAt.
func splitLatest(statements []Statement) (latest, prior *Statement) {
	for i := range statements {
		st := &statements[i]
		switch {
		case latest == nil || issuedAfter(st, latest):
			latest, prior = st, latest
		case prior == nil || issuedAfter(st, prior):
			prior = st
		}
	}
	return latest, prior
}

func issuedAfter(a, b *Statement) bool {
	if !a.IssuedEndDate.Equal(b.IssuedEndDate) {
		return a.IssuedEndDate.After(b.IssuedEndDate)
	}
	return a.CreatedAt.After(b.CreatedAt)
}
