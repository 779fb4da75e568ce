/*
ledger.go - Balance arithmetic

CRITICAL INVARIANTS:
  1. On statement issue:
       previous := new
       new      := paymentsOrCredits + previous + pastDue + serviceDues
     computed from the accumulators BEFORE they are reset.
  2. After issue, paymentsOrCredits, serviceDues and pastDue are zero.
  3. ApplyPayment followed by ReversePayment leaves the balance unchanged.
  4. Unreconcile on the latest statement's snapshot restores the balance
     as it was before that statement was issued.

All functions here are pure; persistence happens in statement.go and
payment.go.
*/
package billing

import "github.com/shopspring/decimal"

// Reconcile returns the balance recorded at statement issue: the previous
// cycle's new balance moves to PreviousStatementBalance and a fresh
// NewStatementBalance is computed from the pre-reset accumulators.
func (b Balance) Reconcile() Balance {
	out := b
	out.PreviousStatementBalance = b.NewStatementBalance
	out.NewStatementBalance = b.PaymentsOrCredits.
		Add(out.PreviousStatementBalance).
		Add(b.PastDueAmount).
		Add(b.ServiceDues)
	return out
}

// ResetAccumulators zeroes the since-last-statement fields.
func (b Balance) ResetAccumulators() Balance {
	out := b
	out.PaymentsOrCredits = decimal.Zero
	out.ServiceDues = decimal.Zero
	out.PastDueAmount = decimal.Zero
	return out
}

// Unreconcile undoes Reconcile and ResetAccumulators for a deleted
// statement. issued is the statement's BalanceData; priorPrevious is the
// PreviousStatementBalance in force before it was issued. Accumulators
// recorded since then are kept on top of the restored ones.
func (b Balance) Unreconcile(issued BalanceSnapshot, priorPrevious decimal.Decimal) Balance {
	out := b
	out.PreviousStatementBalance = priorPrevious
	out.NewStatementBalance = issued.PreviousStatementBalance
	out.PaymentsOrCredits = b.PaymentsOrCredits.Add(issued.PaymentsOrCredits)
	out.ServiceDues = b.ServiceDues.Add(issued.ServiceDues)
	out.PastDueAmount = b.PastDueAmount.Add(issued.PastDueAmount)
	return out
}

// paymentDelta is the change a payment makes to PaymentsOrCredits.
func paymentDelta(t PaymentType, amount decimal.Decimal) decimal.Decimal {
	if t == PaymentCredit {
		return amount.Neg()
	}
	return amount
}

// ApplyPayment records a payment's effect on PaymentsOrCredits.
func (b Balance) ApplyPayment(t PaymentType, amount decimal.Decimal) Balance {
	out := b
	out.PaymentsOrCredits = b.PaymentsOrCredits.Add(paymentDelta(t, amount))
	return out
}

// ReversePayment undoes ApplyPayment exactly.
func (b Balance) ReversePayment(t PaymentType, amount decimal.Decimal) Balance {
	out := b
	out.PaymentsOrCredits = b.PaymentsOrCredits.Sub(paymentDelta(t, amount))
	return out
}

// AddServiceDue accrues an invoice amount into the current cycle.
func (b Balance) AddServiceDue(amount decimal.Decimal) Balance {
	out := b
	out.ServiceDues = b.ServiceDues.Add(amount)
	return out
}
