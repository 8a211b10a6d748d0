package core

// Totals is the output of one derivation run over the month's inputs.
type Totals struct {
	TotalFixedExpenses   Money
	TotalDPSAmount       Money
	TotalCreditCardBills Money
	TotalFutureSavings   Money
	InitialExpendables   Money
}

// DeriveTotals computes the month's derived aggregates from salary,
// obligations, the current-month bills of active cards, and the active
// future-savings allocations.
//
// Inactive obligations and savings are skipped here; callers pass bills
// already restricted to active cards. The savings total is a display
// figure only and is never subtracted from expendables.
func DeriveTotals(salary Money, obligations []Obligation, bills []Bill, savings []FutureSaving) Totals {
	var fixed, dps, cards, saved int64
	for _, o := range obligations {
		if !o.IsActive {
			continue
		}
		switch o.Kind {
		case ObligationFixed:
			fixed += o.Amount.Cents
		case ObligationDPS:
			dps += o.Amount.Cents
		}
	}
	for _, b := range bills {
		cards += b.TotalPending.Cents
	}
	for _, f := range savings {
		if f.IsActive {
			saved += f.Amount.Cents
		}
	}

	initial := salary.Cents - fixed - dps - cards
	if initial < 0 {
		initial = 0
	}
	return Totals{
		TotalFixedExpenses:   Money{Cents: fixed},
		TotalDPSAmount:       Money{Cents: dps},
		TotalCreditCardBills: Money{Cents: cards},
		TotalFutureSavings:   Money{Cents: saved},
		InitialExpendables:   Money{Cents: initial},
	}
}

// CurrentExpendables re-derives the live balance from its constituents:
// currentExpendables = max(0, initialExpendables - reserved - cashSpent).
// Every mutation updates the constituents and then calls this; no reader
// re-derives the balance independently.
func CurrentExpendables(initial, reserved, cashSpent Money) Money {
	cur := initial.Cents - reserved.Cents - cashSpent.Cents
	if cur < 0 {
		cur = 0
	}
	return Money{Cents: cur}
}
