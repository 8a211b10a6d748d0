package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"expendables/internal/core"
	"expendables/internal/storage"
)

const monthKey = core.MonthKey("2026-08")

func newTestService(t *testing.T) *LedgerService {
	t.Helper()
	repo, err := storage.NewLedgerRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewLedgerService(repo)
}

func cents(c int64) core.Money { return core.Money{Cents: c} }

// seedMonth reproduces the base scenario: salary 50000, one active fixed
// expense of 10000 and one active DPS of 5000.
func seedMonth(t *testing.T, s *LedgerService) core.MonthlyLedger {
	t.Helper()
	ctx := context.Background()
	if _, err := s.CreateObligation(ctx, monthKey, "rent", core.ObligationFixed, cents(10000_00)); err != nil {
		t.Fatalf("create fixed obligation: %v", err)
	}
	if _, err := s.CreateObligation(ctx, monthKey, "dps installment", core.ObligationDPS, cents(5000_00)); err != nil {
		t.Fatalf("create dps obligation: %v", err)
	}
	m, err := s.SetSalary(ctx, monthKey, cents(50000_00))
	if err != nil {
		t.Fatalf("set salary: %v", err)
	}
	return m
}

func TestEnsureMonthIdempotent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("ensure month: %v", err)
	}
	if first.SalaryReceived || first.InitialExpendables.Cents != 0 {
		t.Fatalf("new month should be zeroed, got %+v", first)
	}

	second, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("ensure month again: %v", err)
	}
	if second != first {
		t.Fatalf("ensure month not idempotent: %+v vs %+v", second, first)
	}
}

func TestEnsureMonthRejectsBadKey(t *testing.T) {
	s := newTestService(t)
	if _, err := s.EnsureMonth(context.Background(), "2026-8"); !errors.Is(err, core.ErrInvalidMonthKey) {
		t.Fatalf("got %v, want ErrInvalidMonthKey", err)
	}
}

func TestSetSalaryDerivesTotals(t *testing.T) {
	s := newTestService(t)
	m := seedMonth(t, s)

	if m.InitialExpendables.Cents != 35000_00 {
		t.Errorf("initial = %d, want 3500000", m.InitialExpendables.Cents)
	}
	if m.CurrentExpendables.Cents != 35000_00 {
		t.Errorf("current = %d, want 3500000", m.CurrentExpendables.Cents)
	}
	if m.TotalFixedExpenses.Cents != 10000_00 || m.TotalDPSAmount.Cents != 5000_00 {
		t.Errorf("totals = %d/%d, want 1000000/500000", m.TotalFixedExpenses.Cents, m.TotalDPSAmount.Cents)
	}
	if m.TotalCreditCardBills.Cents != 0 {
		t.Errorf("card bills = %d, want 0", m.TotalCreditCardBills.Cents)
	}
}

func TestSetSalaryRejectsInvalidAmount(t *testing.T) {
	s := newTestService(t)
	for _, bad := range []int64{0, -100} {
		if _, err := s.SetSalary(context.Background(), monthKey, cents(bad)); !errors.Is(err, core.ErrInvalidAmount) {
			t.Errorf("SetSalary(%d) = %v, want ErrInvalidAmount", bad, err)
		}
	}
}

func TestSetSalaryCorrectionPreservesSpend(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	if _, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "groceries", Amount: cents(500_00), Category: core.CategoryGroceries,
		Method: core.PaymentMethod{Kind: core.PayCash},
	}); err != nil {
		t.Fatalf("add expense: %v", err)
	}

	m, err := s.SetSalary(ctx, monthKey, cents(60000_00))
	if err != nil {
		t.Fatalf("correct salary: %v", err)
	}
	if m.InitialExpendables.Cents != 45000_00 {
		t.Errorf("initial = %d, want 4500000", m.InitialExpendables.Cents)
	}
	if m.CurrentExpendables.Cents != 44500_00 {
		t.Errorf("current = %d, want 4450000 (spend preserved)", m.CurrentExpendables.Cents)
	}
	if m.TotalFixedExpenses.Cents != 10000_00 {
		t.Errorf("fixed double-counted or lost: %d", m.TotalFixedExpenses.Cents)
	}
}

func TestCashExpenseReducesBalance(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	if _, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "lunch", Amount: cents(500_00), Category: core.CategoryFood,
		Method: core.PaymentMethod{Kind: core.PayCash},
	}); err != nil {
		t.Fatalf("add expense: %v", err)
	}

	m, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("read month: %v", err)
	}
	if m.CurrentExpendables.Cents != 34500_00 {
		t.Errorf("current = %d, want 3450000", m.CurrentExpendables.Cents)
	}
	if m.CashSpent.Cents != 500_00 || m.ExpenseCount != 1 {
		t.Errorf("stats = %d/%d, want 50000/1", m.CashSpent.Cents, m.ExpenseCount)
	}
}

func TestCardExpenseReservesAndBills(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	card, err := s.CreateCard(ctx, "card x", cents(100000_00), "")
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	if _, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "lunch", Amount: cents(500_00), Category: core.CategoryFood,
		Method: core.PaymentMethod{Kind: core.PayCash},
	}); err != nil {
		t.Fatalf("add cash expense: %v", err)
	}
	if _, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "shoes", Amount: cents(1200_00), Category: core.CategoryShopping,
		Method: core.PaymentMethod{Kind: core.PayCard, CardID: card.ID},
	}); err != nil {
		t.Fatalf("add card expense: %v", err)
	}

	m, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("read month: %v", err)
	}
	if m.CurrentExpendables.Cents != 33300_00 {
		t.Errorf("current = %d, want 3330000", m.CurrentExpendables.Cents)
	}
	if m.ReservedAmount.Cents != 1200_00 {
		t.Errorf("reserved = %d, want 120000", m.ReservedAmount.Cents)
	}

	cards, err := s.ListCards(ctx, monthKey)
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if len(cards) != 1 || cards[0].Bill == nil {
		t.Fatalf("expected one card with a bill, got %+v", cards)
	}
	bill := cards[0].Bill
	if bill.TotalPending.Cents != 1200_00 || bill.ThisMonthTransactions.Cents != 1200_00 {
		t.Errorf("bill = %+v, want 120000 pending from transactions", bill)
	}
	if bill.PreviousBill.Cents != 0 {
		t.Errorf("previous bill = %d, want 0", bill.PreviousBill.Cents)
	}
}

func TestDeleteCashExpenseLeavesReservationIntact(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	card, err := s.CreateCard(ctx, "card x", cents(100000_00), "")
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	cash, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "lunch", Amount: cents(500_00), Category: core.CategoryFood,
		Method: core.PaymentMethod{Kind: core.PayCash},
	})
	if err != nil {
		t.Fatalf("add cash expense: %v", err)
	}
	if _, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "shoes", Amount: cents(1200_00), Category: core.CategoryShopping,
		Method: core.PaymentMethod{Kind: core.PayCard, CardID: card.ID},
	}); err != nil {
		t.Fatalf("add card expense: %v", err)
	}

	if err := s.DeleteExpense(ctx, monthKey, cash.ID); err != nil {
		t.Fatalf("delete cash expense: %v", err)
	}

	m, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("read month: %v", err)
	}
	if m.CurrentExpendables.Cents != 34800_00 {
		t.Errorf("current = %d, want 3480000", m.CurrentExpendables.Cents)
	}
	if m.ReservedAmount.Cents != 1200_00 {
		t.Errorf("reservation disturbed: %d, want 120000", m.ReservedAmount.Cents)
	}
}

func TestAddDeleteRoundTrip(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	card, err := s.CreateCard(ctx, "card x", cents(100000_00), "")
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	before, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("read month: %v", err)
	}

	for _, method := range []core.PaymentMethod{
		{Kind: core.PayCash},
		{Kind: core.PayCard, CardID: card.ID},
	} {
		e, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
			Name: "round trip", Amount: cents(777_77), Category: core.CategoryOthers,
			Method: method,
		})
		if err != nil {
			t.Fatalf("add (%s): %v", method.Kind, err)
		}
		if err := s.DeleteExpense(ctx, monthKey, e.ID); err != nil {
			t.Fatalf("delete (%s): %v", method.Kind, err)
		}

		after, err := s.EnsureMonth(ctx, monthKey)
		if err != nil {
			t.Fatalf("read month: %v", err)
		}
		if after.CurrentExpendables != before.CurrentExpendables ||
			after.ReservedAmount != before.ReservedAmount ||
			after.CashSpent != before.CashSpent ||
			after.ExpenseCount != before.ExpenseCount {
			t.Errorf("%s round trip not symmetric: before %+v after %+v", method.Kind, before, after)
		}

		if method.Kind == core.PayCard {
			cards, err := s.ListCards(ctx, monthKey)
			if err != nil {
				t.Fatalf("list cards: %v", err)
			}
			if cards[0].Bill != nil && cards[0].Bill.TotalPending.Cents != 0 {
				t.Errorf("bill pending = %d after round trip, want 0", cards[0].Bill.TotalPending.Cents)
			}
		}
	}
}

func TestDeleteExpenseNotFound(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	if err := s.DeleteExpense(ctx, monthKey, "no-such-id"); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Fatalf("got %v, want ErrExpenseNotFound", err)
	}

	// An expense from another month must not be deletable through this one.
	e, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "lunch", Amount: cents(100), Category: core.CategoryFood,
		Method: core.PaymentMethod{Kind: core.PayCash},
	})
	if err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if err := s.DeleteExpense(ctx, "2026-09", e.ID); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Fatalf("cross-month delete = %v, want ErrExpenseNotFound", err)
	}
}

func TestAddExpenseValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	cases := []struct {
		name string
		in   AddExpenseInput
		want error
	}{
		{"zero amount", AddExpenseInput{Name: "x", Amount: cents(0), Method: core.PaymentMethod{Kind: core.PayCash}}, core.ErrInvalidAmount},
		{"negative amount", AddExpenseInput{Name: "x", Amount: cents(-5), Method: core.PaymentMethod{Kind: core.PayCash}}, core.ErrInvalidAmount},
		{"card without id", AddExpenseInput{Name: "x", Amount: cents(100), Method: core.PaymentMethod{Kind: core.PayCard}}, core.ErrMissingCardSelection},
		{"unknown card", AddExpenseInput{Name: "x", Amount: cents(100), Method: core.PaymentMethod{Kind: core.PayCard, CardID: "ghost"}}, core.ErrCardNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.AddExpense(ctx, monthKey, tc.in); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}

	// Failed adds must leave the ledger untouched.
	m, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("read month: %v", err)
	}
	if m.CurrentExpendables.Cents != 35000_00 || m.ExpenseCount != 0 {
		t.Errorf("ledger disturbed by rejected adds: %+v", m)
	}
}

func TestAddExpenseRejectsInactiveCard(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	card, err := s.CreateCard(ctx, "old card", cents(1000_00), "")
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	inactive := false
	if _, err := s.UpdateCard(ctx, monthKey, card.ID, UpdateCardInput{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate card: %v", err)
	}

	_, err = s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "x", Amount: cents(100), Category: core.CategoryOthers,
		Method: core.PaymentMethod{Kind: core.PayCard, CardID: card.ID},
	})
	if !errors.Is(err, core.ErrCardNotFound) {
		t.Fatalf("got %v, want ErrCardNotFound", err)
	}
}

func TestAddExpenseIdempotencyKeyReplay(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	in := AddExpenseInput{
		Name: "lunch", Amount: cents(500_00), Category: core.CategoryFood,
		Method:         core.PaymentMethod{Kind: core.PayCash},
		IdempotencyKey: "client-key-1",
	}
	first, err := s.AddExpense(ctx, monthKey, in)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	second, err := s.AddExpense(ctx, monthKey, in)
	if err != nil {
		t.Fatalf("replay add: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("replay created a new expense: %s vs %s", second.ID, first.ID)
	}

	m, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("read month: %v", err)
	}
	if m.CurrentExpendables.Cents != 34500_00 || m.ExpenseCount != 1 {
		t.Errorf("replay double-applied: current=%d count=%d", m.CurrentExpendables.Cents, m.ExpenseCount)
	}
}

func TestCurrentExpendablesNeverNegative(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	if _, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "splurge", Amount: cents(99999_00), Category: core.CategoryOthers,
		Method: core.PaymentMethod{Kind: core.PayCash},
	}); err != nil {
		t.Fatalf("add expense: %v", err)
	}

	m, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("read month: %v", err)
	}
	if m.CurrentExpendables.Cents != 0 {
		t.Errorf("current = %d, want clamp to 0", m.CurrentExpendables.Cents)
	}
}

func TestRecalculatePreservesSpend(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	if _, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "lunch", Amount: cents(500_00), Category: core.CategoryFood,
		Method: core.PaymentMethod{Kind: core.PayCash},
	}); err != nil {
		t.Fatalf("add expense: %v", err)
	}

	obligations, err := s.ListObligations(ctx, monthKey)
	if err != nil {
		t.Fatalf("list obligations: %v", err)
	}
	var fixedID string
	for _, o := range obligations {
		if o.Obligation.Kind == core.ObligationFixed {
			fixedID = o.Obligation.ID
		}
	}
	inactive := false
	if _, err := s.UpdateObligation(ctx, monthKey, fixedID, UpdateObligationInput{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate obligation: %v", err)
	}

	m, err := s.Recalculate(ctx, monthKey)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if m.InitialExpendables.Cents != 45000_00 {
		t.Errorf("initial = %d, want 4500000", m.InitialExpendables.Cents)
	}
	if m.CurrentExpendables.Cents != 44500_00 {
		t.Errorf("current = %d, want 4450000 (spend preserved)", m.CurrentExpendables.Cents)
	}
}

func TestRecalculateIdempotent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	first, err := s.Recalculate(ctx, monthKey)
	if err != nil {
		t.Fatalf("first recalculate: %v", err)
	}
	second, err := s.Recalculate(ctx, monthKey)
	if err != nil {
		t.Fatalf("second recalculate: %v", err)
	}
	first.UpdatedAt = second.UpdatedAt
	if first != second {
		t.Errorf("recalculate not idempotent: %+v vs %+v", first, second)
	}
}

func TestRecalculateBeforeSalaryIsNoOp(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	m, err := s.Recalculate(ctx, monthKey)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if m.SalaryReceived || m.InitialExpendables.Cents != 0 {
		t.Errorf("no-op recalculate changed state: %+v", m)
	}
}

func TestSetCardBill(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	card, err := s.CreateCard(ctx, "card x", cents(100000_00), "")
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	if _, err := s.SetCardBill(ctx, card.ID, monthKey, cents(0), cents(0)); !errors.Is(err, core.ErrNoOpBill) {
		t.Fatalf("zero bill = %v, want ErrNoOpBill", err)
	}
	if _, err := s.SetCardBill(ctx, "ghost", monthKey, cents(100), cents(0)); !errors.Is(err, core.ErrCardNotFound) {
		t.Fatalf("unknown card = %v, want ErrCardNotFound", err)
	}

	bill, err := s.SetCardBill(ctx, card.ID, monthKey, cents(3000_00), cents(2000_00))
	if err != nil {
		t.Fatalf("set bill: %v", err)
	}
	if bill.TotalPending.Cents != 5000_00 || bill.RemainingBalance.Cents != 5000_00 {
		t.Errorf("bill = %+v, want 500000 pending and remaining", bill)
	}
	if bill.IsPaidFull || bill.PaidAmount.Cents != 0 {
		t.Errorf("payment state not reset: %+v", bill)
	}

	// The manual statement must fold into the derived totals atomically.
	m, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("read month: %v", err)
	}
	if m.TotalCreditCardBills.Cents != 5000_00 {
		t.Errorf("card total = %d, want 500000", m.TotalCreditCardBills.Cents)
	}
	if m.InitialExpendables.Cents != 30000_00 {
		t.Errorf("initial = %d, want 3000000", m.InitialExpendables.Cents)
	}
}

func TestPayCardBill(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	card, err := s.CreateCard(ctx, "card x", cents(100000_00), "")
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	if _, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "shoes", Amount: cents(1200_00), Category: core.CategoryShopping,
		Method: core.PaymentMethod{Kind: core.PayCard, CardID: card.ID},
	}); err != nil {
		t.Fatalf("add card expense: %v", err)
	}

	bill, err := s.PayCardBill(ctx, card.ID, monthKey, cents(1200_00))
	if err != nil {
		t.Fatalf("pay bill: %v", err)
	}
	if bill.RemainingBalance.Cents != 0 || !bill.IsPaidFull {
		t.Errorf("bill = %+v, want fully paid", bill)
	}

	// One more cent is an overpayment and must leave the bill unchanged.
	if _, err := s.PayCardBill(ctx, card.ID, monthKey, cents(1)); !errors.Is(err, core.ErrOverpayment) {
		t.Fatalf("overpay = %v, want ErrOverpayment", err)
	}
	cards, err := s.ListCards(ctx, monthKey)
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if got := cards[0].Bill; got.PaidAmount.Cents != 1200_00 || !got.IsPaidFull {
		t.Errorf("bill changed by rejected payment: %+v", got)
	}
}

func TestPayCardBillPartial(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	card, err := s.CreateCard(ctx, "card x", cents(100000_00), "")
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	if _, err := s.SetCardBill(ctx, card.ID, monthKey, cents(1000_00), cents(0)); err != nil {
		t.Fatalf("set bill: %v", err)
	}

	bill, err := s.PayCardBill(ctx, card.ID, monthKey, cents(400_00))
	if err != nil {
		t.Fatalf("partial pay: %v", err)
	}
	if bill.RemainingBalance.Cents != 600_00 || bill.IsPaidFull {
		t.Errorf("bill = %+v, want 60000 remaining, not paid full", bill)
	}
}

func TestToggleObligationPaid(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	obligations, err := s.ListObligations(ctx, monthKey)
	if err != nil {
		t.Fatalf("list obligations: %v", err)
	}
	id := obligations[0].Obligation.ID

	before, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("read month: %v", err)
	}

	ps, err := s.ToggleObligationPaid(ctx, id, monthKey)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !ps.IsPaid || ps.PaidDate == nil {
		t.Errorf("status = %+v, want paid with date", ps)
	}

	ps, err = s.ToggleObligationPaid(ctx, id, monthKey)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if ps.IsPaid || ps.PaidDate != nil {
		t.Errorf("status = %+v, want unpaid without date", ps)
	}

	// The checkmark is a checklist; money must not move.
	after, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("read month: %v", err)
	}
	if after.CurrentExpendables != before.CurrentExpendables {
		t.Errorf("toggle moved money: %d vs %d", after.CurrentExpendables.Cents, before.CurrentExpendables.Cents)
	}

	if _, err := s.ToggleObligationPaid(ctx, "ghost", monthKey); !errors.Is(err, core.ErrObligationNotFound) {
		t.Fatalf("unknown obligation = %v, want ErrObligationNotFound", err)
	}
}

func TestMonthSummary(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	if _, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "lunch", Amount: cents(300_00), Category: core.CategoryFood,
		Method: core.PaymentMethod{Kind: core.PayCash},
	}); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if _, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "dinner", Amount: cents(200_00), Category: core.CategoryFood,
		Method: core.PaymentMethod{Kind: core.PayCash},
	}); err != nil {
		t.Fatalf("add expense: %v", err)
	}

	sum, err := s.GetMonthSummary(ctx, monthKey)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(sum.Categories) != 1 || sum.Categories[0].Amount.Cents != 500_00 || sum.Categories[0].Count != 2 {
		t.Errorf("categories = %+v, want one food row of 50000/2", sum.Categories)
	}
	if sum.SpentPercentage != 1 {
		t.Errorf("spent pct = %d, want 1", sum.SpentPercentage)
	}
	if sum.SpendingWarning {
		t.Error("warning should be off at 1 percent spent")
	}
}

func TestOutboxEventsWrittenWithMutations(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	e, err := s.AddExpense(ctx, monthKey, AddExpenseInput{
		Name: "lunch", Amount: cents(100_00), Category: core.CategoryFood,
		Method: core.PaymentMethod{Kind: core.PayCash},
	})
	if err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if err := s.DeleteExpense(ctx, monthKey, e.ID); err != nil {
		t.Fatalf("delete expense: %v", err)
	}

	events, err := s.repo.Queries().ListUnpublishedEvents(ctx, 100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	seen := map[string]bool{}
	for _, ev := range events {
		seen[ev.Type] = true
	}
	for _, want := range []string{EventObligationChanged, EventSalarySet, EventExpenseCreated, EventExpenseDeleted} {
		if !seen[want] {
			t.Errorf("missing outbox event %q (got %v)", want, seen)
		}
	}
}

func TestFutureSavingTrackedNotSubtracted(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedMonth(t, s)

	f, err := s.CreateFutureSaving(ctx, monthKey, "vacation fund", cents(2000_00))
	if err != nil {
		t.Fatalf("create saving: %v", err)
	}

	m, err := s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("get month: %v", err)
	}
	if m.TotalFutureSavings.Cents != 2000_00 {
		t.Errorf("savings total = %d, want 200000", m.TotalFutureSavings.Cents)
	}
	if m.InitialExpendables.Cents != 35000_00 {
		t.Errorf("initial = %d, savings must not reduce it", m.InitialExpendables.Cents)
	}
	if m.CurrentExpendables.Cents != 35000_00 {
		t.Errorf("current = %d, savings must not reduce it", m.CurrentExpendables.Cents)
	}

	inactive := false
	if _, err := s.UpdateFutureSaving(ctx, monthKey, f.ID, UpdateFutureSavingInput{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate saving: %v", err)
	}
	m, err = s.EnsureMonth(ctx, monthKey)
	if err != nil {
		t.Fatalf("get month: %v", err)
	}
	if m.TotalFutureSavings.Cents != 0 {
		t.Errorf("savings total = %d after deactivation, want 0", m.TotalFutureSavings.Cents)
	}
	if m.InitialExpendables.Cents != 35000_00 {
		t.Errorf("initial = %d, want unchanged", m.InitialExpendables.Cents)
	}
}

func TestUpdateFutureSavingNotFound(t *testing.T) {
	s := newTestService(t)
	active := true
	_, err := s.UpdateFutureSaving(context.Background(), monthKey, "ghost", UpdateFutureSavingInput{IsActive: &active})
	if !errors.Is(err, core.ErrSavingNotFound) {
		t.Fatalf("got %v, want ErrSavingNotFound", err)
	}
}
