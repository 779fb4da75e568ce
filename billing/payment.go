/*
payment.go - Payment applier

APPLY:
  credit: PaymentsOrCredits -= amount, statement marked paid
  debit:  PaymentsOrCredits += amount, statement untouched

REVERSE:
  Deletes the payment, applies the inverse ledger adjustment and resets the
  statement to unpaid. Apply then reverse leaves the balance unchanged.

UPDATE:
  A changed amount moves the ledger by the difference, so a later reverse
  still undoes exactly what is on the books.

Check dates are normalized to noon, business-local.
*/
package billing

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ApplyPaymentRequest records a payment against a client's statement.
type ApplyPaymentRequest struct {
	ClientID    ClientID
	StatementID StatementID
	Type        PaymentType
	Amount      decimal.Decimal
	CheckDate   time.Time
	CheckNumber string
	Memo        *string
	CreatedBy   string
}

func (r ApplyPaymentRequest) validate() error {
	var v validator
	v.check(r.ClientID != "", "clientId", "required")
	v.check(r.StatementID != "", "statementId", "required")
	v.check(r.Type.Valid(), "type", "must be credit or debit")
	v.check(r.Amount.IsPositive(), "amount", "must be positive")
	v.check(!r.CheckDate.IsZero(), "checkDate", "required")
	return v.err()
}

// ApplyPayment creates the payment and adjusts the ledger and statement.
func (e *Engine) ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (*Payment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := e.now()
	p := Payment{
		ID:          PaymentID(e.id()),
		ClientID:    req.ClientID,
		StatementID: req.StatementID,
		Type:        req.Type,
		Amount:      req.Amount,
		CheckDate:   e.Calendar.Noon(req.CheckDate),
		CheckNumber: strings.TrimSpace(req.CheckNumber),
		Memo:        req.Memo,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := e.Store.WithTx(ctx, func(s Store) error {
		c, err := s.GetClient(ctx, req.ClientID)
		if err != nil {
			return err
		}
		if c == nil {
			return notFound("client", string(req.ClientID))
		}
		st, err := s.GetStatement(ctx, req.StatementID)
		if err != nil {
			return err
		}
		if st == nil || st.ClientID != req.ClientID {
			return notFound("statement", string(req.StatementID))
		}
		bal, err := s.GetBalance(ctx, req.ClientID)
		if err != nil {
			return err
		}
		if bal == nil {
			return notFound("balance", string(req.ClientID))
		}

		if err := s.CreatePayment(ctx, p); err != nil {
			return err
		}

		next := bal.ApplyPayment(p.Type, p.Amount)
		next.UpdatedAt = now
		if err := s.SaveBalance(ctx, next); err != nil {
			return err
		}

		if p.Type != PaymentCredit {
			return nil
		}
		return s.MarkStatement(ctx, st.ID, paidMark(p))
	})
	if err != nil {
		return nil, internal("apply payment", err)
	}
	return &p, nil
}

// PaymentUpdate holds the correctable payment fields. Nil means unchanged.
type PaymentUpdate struct {
	Amount      *decimal.Decimal
	CheckDate   *time.Time
	CheckNumber *string
	Memo        *string
}

// UpdatePayment corrects a payment and pushes amount, check date and check
// number onto its statement.
func (e *Engine) UpdatePayment(ctx context.Context, id PaymentID, upd PaymentUpdate) (*Payment, error) {
	var v validator
	v.check(upd.Amount == nil || upd.Amount.IsPositive(), "amount", "must be positive")
	v.check(upd.CheckDate == nil || !upd.CheckDate.IsZero(), "checkDate", "must be a valid date")
	if err := v.err(); err != nil {
		return nil, err
	}

	var out Payment
	err := e.Store.WithTx(ctx, func(s Store) error {
		p, err := s.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound("payment", string(id))
		}
		st, err := s.GetStatement(ctx, p.StatementID)
		if err != nil {
			return err
		}
		if st == nil {
			return notFound("statement", string(p.StatementID))
		}

		next := *p
		if upd.Amount != nil {
			next.Amount = *upd.Amount
		}
		if upd.CheckDate != nil {
			next.CheckDate = e.Calendar.Noon(*upd.CheckDate)
		}
		if upd.CheckNumber != nil {
			next.CheckNumber = strings.TrimSpace(*upd.CheckNumber)
		}
		if upd.Memo != nil {
			next.Memo = upd.Memo
		}
		next.UpdatedAt = e.now()

		if !next.Amount.Equal(p.Amount) {
			bal, err := s.GetBalance(ctx, p.ClientID)
			if err != nil {
				return err
			}
			if bal == nil {
				return notFound("balance", string(p.ClientID))
			}
			moved := bal.ReversePayment(p.Type, p.Amount).ApplyPayment(next.Type, next.Amount)
			moved.UpdatedAt = next.UpdatedAt
			if err := s.SaveBalance(ctx, moved); err != nil {
				return err
			}
		}

		if err := s.UpdatePayment(ctx, next); err != nil {
			return err
		}
		out = next

		mark := paidMark(next)
		mark.IsPaid = st.IsPaid
		return s.MarkStatement(ctx, st.ID, mark)
	})
	if err != nil {
		return nil, internal("update payment", err)
	}
	return &out, nil
}

// ReversePayment deletes a payment and undoes everything ApplyPayment did.
func (e *Engine) ReversePayment(ctx context.Context, id PaymentID) (*Payment, error) {
	var out Payment
	err := e.Store.WithTx(ctx, func(s Store) error {
		p, err := s.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		// A payment without a client is malformed; treat it as missing.
		if p == nil || p.ClientID == "" {
			return notFound("payment", string(id))
		}
		if err := s.DeletePayment(ctx, id); err != nil {
			return err
		}

		bal, err := s.GetBalance(ctx, p.ClientID)
		if err != nil {
			return err
		}
		if bal == nil {
			return notFound("balance", string(p.ClientID))
		}
		next := bal.ReversePayment(p.Type, p.Amount)
		next.UpdatedAt = e.now()
		if err := s.SaveBalance(ctx, next); err != nil {
			return err
		}

		st, err := s.GetStatement(ctx, p.StatementID)
		if err != nil {
			return err
		}
		if st == nil {
			return notFound("statement", string(p.StatementID))
		}
		out = *p
		return s.MarkStatement(ctx, st.ID, Unpaid())
	})
	if err != nil {
		return nil, internal("reverse payment", err)
	}
	return &out, nil
}

func paidMark(p Payment) PaymentMark {
	checkDate := p.CheckDate
	mark := PaymentMark{
		IsPaid:     true,
		PaidAmount: p.Amount,
		CheckDate:  &checkDate,
	}
	if p.CheckNumber != "" {
		n := p.CheckNumber
		mark.CheckNumber = &n
	}
	return mark
}
