package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"expendables/internal/core"
	"expendables/internal/storage"
)

// MonthSummary is the read model for one month's dashboard. Every number
// here comes from the single ledger row; nothing is re-derived.
type MonthSummary struct {
	Ledger          core.MonthlyLedger
	Categories      []storage.CategoryTotal
	SpentPercentage int
	SpendingWarning bool
}

func (s *LedgerService) GetMonthSummary(ctx context.Context, key core.MonthKey) (MonthSummary, error) {
	m, err := s.EnsureMonth(ctx, key)
	if err != nil {
		return MonthSummary{}, err
	}
	categories, err := s.repo.Queries().CategoryTotals(ctx, key)
	if err != nil {
		return MonthSummary{}, fmt.Errorf("category totals for %s: %w", key, err)
	}
	return MonthSummary{
		Ledger:          m,
		Categories:      categories,
		SpentPercentage: m.SpentPercentage(),
		SpendingWarning: m.SpendingWarning(),
	}, nil
}

func (s *LedgerService) ListExpenses(ctx context.Context, key core.MonthKey) ([]core.Expense, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	expenses, err := s.repo.Queries().ListExpenses(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list expenses for %s: %w", key, err)
	}
	return expenses, nil
}

// ObligationWithStatus pairs an obligation with its paid checkmark for
// one month.
type ObligationWithStatus struct {
	Obligation core.Obligation
	Status     core.PaymentStatus
}

func (s *LedgerService) ListObligations(ctx context.Context, key core.MonthKey) ([]ObligationWithStatus, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	q := s.repo.Queries()
	obligations, err := q.ListObligations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}

	out := make([]ObligationWithStatus, 0, len(obligations))
	for _, o := range obligations {
		ps, err := q.GetPaymentStatus(ctx, o.ID, key)
		if errors.Is(err, sql.ErrNoRows) {
			ps = core.PaymentStatus{ObligationID: o.ID, MonthKey: key}
		} else if err != nil {
			return nil, fmt.Errorf("payment status for %s: %w", o.ID, err)
		}
		out = append(out, ObligationWithStatus{Obligation: o, Status: ps})
	}
	return out, nil
}

func (s *LedgerService) ListFutureSavings(ctx context.Context) ([]core.FutureSaving, error) {
	savings, err := s.repo.Queries().ListFutureSavings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list future savings: %w", err)
	}
	return savings, nil
}

// CardWithBill pairs a card with its current-month bill, when one exists.
type CardWithBill struct {
	Card core.CreditCard
	Bill *core.Bill
}

func (s *LedgerService) ListCards(ctx context.Context, key core.MonthKey) ([]CardWithBill, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	q := s.repo.Queries()
	cards, err := q.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	out := make([]CardWithBill, 0, len(cards))
	for _, card := range cards {
		entry := CardWithBill{Card: card}
		bill, err := q.GetBill(ctx, card.ID, key)
		switch {
		case err == nil:
			entry.Bill = &bill
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("bill for card %s: %w", card.ID, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *LedgerService) billOrEmpty(ctx context.Context, q *storage.Queries, cardID string, key core.MonthKey) (core.Bill, error) {
	bill, err := q.GetBill(ctx, cardID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{CardID: cardID, MonthKey: key}, nil
	}
	if err != nil {
		return core.Bill{}, fmt.Errorf("get bill: %w", err)
	}
	return bill, nil
}
