// Package services contains the mutation coordinator of the monthly
// budget ledger. It is the only component allowed to mutate ledger state;
// every operation runs as a single transaction against the backing store
// and appends its outbox event in that same transaction.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"expendables/internal/core"
	"expendables/internal/storage"
)

// Outbox event types, published to AMQP by the worker.
const (
	EventSalarySet         = "salary.set"
	EventExpenseCreated    = "expense.created"
	EventExpenseDeleted    = "expense.deleted"
	EventBillUpdated       = "bill.updated"
	EventBillPayment       = "bill.payment"
	EventObligationChanged = "obligation.changed"
	EventObligationToggled = "obligation.toggled"
	EventCardChanged       = "card.changed"
	EventSavingChanged     = "saving.changed"
	EventMonthRecalculated = "month.recalculated"
)

// LedgerService coordinates all ledger mutations.
type LedgerService struct {
	repo *storage.LedgerRepository
}

func NewLedgerService(repo *storage.LedgerRepository) *LedgerService {
	return &LedgerService{repo: repo}
}

// EnsureMonth creates the month row on first access with all derived
// fields at zero. Idempotent.
func (s *LedgerService) EnsureMonth(ctx context.Context, key core.MonthKey) (core.MonthlyLedger, error) {
	if err := key.Validate(); err != nil {
		return core.MonthlyLedger{}, err
	}
	var out core.MonthlyLedger
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		m, err := s.ensureMonthTx(ctx, q, key)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return core.MonthlyLedger{}, fmt.Errorf("ensure month %s: %w", key, err)
	}
	return out, nil
}

// SetSalary records the salary and derives the month's totals. Calling it
// again corrects the amount and re-derives without double-counting
// obligations; spend-to-date and card reservations are preserved.
func (s *LedgerService) SetSalary(ctx context.Context, key core.MonthKey, amount core.Money) (core.MonthlyLedger, error) {
	if err := key.Validate(); err != nil {
		return core.MonthlyLedger{}, err
	}
	if err := amount.Validate(); err != nil {
		return core.MonthlyLedger{}, err
	}

	var out core.MonthlyLedger
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		m, err := s.ensureMonthTx(ctx, q, key)
		if err != nil {
			return err
		}
		m.SalaryReceived = true
		m.SalaryAmount = amount
		if err := s.deriveTx(ctx, q, &m); err != nil {
			return err
		}
		if err := q.UpdateMonth(ctx, m); err != nil {
			return fmt.Errorf("update month: %w", err)
		}
		if err := s.appendEvent(ctx, q, EventSalarySet, key, map[string]any{
			"salary_cents":              amount.Cents,
			"initial_expendables_cents": m.InitialExpendables.Cents,
		}); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return core.MonthlyLedger{}, fmt.Errorf("set salary for %s: %w", key, err)
	}

	slog.InfoContext(ctx, "Salary set",
		"month", key,
		"salary_cents", out.SalaryAmount.Cents,
		"initial_expendables_cents", out.InitialExpendables.Cents)
	return out, nil
}

// Recalculate re-derives the month's totals from the latest obligation
// and bill state, preserving spend-to-date. No-op while salary is unset.
func (s *LedgerService) Recalculate(ctx context.Context, key core.MonthKey) (core.MonthlyLedger, error) {
	if err := key.Validate(); err != nil {
		return core.MonthlyLedger{}, err
	}
	var out core.MonthlyLedger
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		m, err := s.ensureMonthTx(ctx, q, key)
		if err != nil {
			return err
		}
		if !m.SalaryReceived {
			out = m
			return nil
		}
		if err := s.deriveTx(ctx, q, &m); err != nil {
			return err
		}
		if err := q.UpdateMonth(ctx, m); err != nil {
			return fmt.Errorf("update month: %w", err)
		}
		if err := s.appendEvent(ctx, q, EventMonthRecalculated, key, map[string]any{
			"initial_expendables_cents": m.InitialExpendables.Cents,
			"current_expendables_cents": m.CurrentExpendables.Cents,
		}); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return core.MonthlyLedger{}, fmt.Errorf("recalculate %s: %w", key, err)
	}
	return out, nil
}

// AddExpenseInput carries one expense to record. IdempotencyKey is
// optional; retries with the same key return the original record instead
// of double-applying.
type AddExpenseInput struct {
	Name           string
	Amount         core.Money
	Category       core.Category
	Method         core.PaymentMethod
	IdempotencyKey string
}

// AddExpense appends the expense and applies its ledger effects as one
// atomic unit: cash spend reduces the balance directly, card spend
// reserves the amount and grows the card's current-month bill.
func (s *LedgerService) AddExpense(ctx context.Context, key core.MonthKey, in AddExpenseInput) (core.Expense, error) {
	if in.Category == "" {
		in.Category = core.CategoryOthers
	}
	expense := core.Expense{
		ID:        uuid.NewString(),
		MonthKey:  key,
		Name:      in.Name,
		Amount:    in.Amount,
		Category:  in.Category,
		Method:    in.Method,
		CreatedAt: time.Now().UTC(),
	}
	if err := expense.Validate(); err != nil {
		return core.Expense{}, err
	}

	var out core.Expense
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if in.IdempotencyKey != "" {
			existing, err := q.GetExpenseByIdempotencyKey(ctx, in.IdempotencyKey)
			switch {
			case err == nil:
				out = existing
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("check idempotency key: %w", err)
			}
		}

		m, err := s.ensureMonthTx(ctx, q, key)
		if err != nil {
			return err
		}

		if expense.Method.Kind == core.PayCard {
			card, err := q.GetCard(ctx, expense.Method.CardID)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && !card.IsActive) {
				return core.ErrCardNotFound
			}
			if err != nil {
				return fmt.Errorf("get card: %w", err)
			}

			bill, err := s.billOrEmpty(ctx, q, card.ID, key)
			if err != nil {
				return err
			}
			bill.ThisMonthTransactions.Cents += expense.Amount.Cents
			bill.TotalPending.Cents += expense.Amount.Cents
			bill.RemainingBalance.Cents = bill.TotalPending.Cents - bill.PaidAmount.Cents
			bill.IsPaidFull = bill.RemainingBalance.Cents == 0
			if err := q.UpsertBill(ctx, bill); err != nil {
				return fmt.Errorf("upsert bill: %w", err)
			}
			m.ReservedAmount.Cents += expense.Amount.Cents
		} else {
			m.CashSpent.Cents += expense.Amount.Cents
			m.ExpenseCount++
		}

		m.CurrentExpendables = core.CurrentExpendables(m.InitialExpendables, m.ReservedAmount, m.CashSpent)
		if err := q.UpdateMonth(ctx, m); err != nil {
			return fmt.Errorf("update month: %w", err)
		}
		if err := q.InsertExpense(ctx, expense, in.IdempotencyKey); err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		if err := s.appendEvent(ctx, q, EventExpenseCreated, key, map[string]any{
			"expense_id":   expense.ID,
			"amount_cents": expense.Amount.Cents,
			"method":       expense.Method.Kind,
			"card_id":      expense.Method.CardID,
		}); err != nil {
			return err
		}
		out = expense
		return nil
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense to %s: %w", key, err)
	}

	slog.InfoContext(ctx, "Expense recorded",
		"month", key,
		"expense_id", out.ID,
		"amount_cents", out.Amount.Cents,
		"method", out.Method.Kind)
	return out, nil
}

// DeleteExpense hard-deletes the record and applies the exact mirror of
// the add effects, restoring balances and bill totals bit for bit.
func (s *LedgerService) DeleteExpense(ctx context.Context, key core.MonthKey, expenseID string) error {
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		expense, err := q.GetExpense(ctx, expenseID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && expense.MonthKey != key) {
			return core.ErrExpenseNotFound
		}
		if err != nil {
			return fmt.Errorf("get expense: %w", err)
		}

		m, err := q.GetMonth(ctx, key)
		if err != nil {
			return fmt.Errorf("get month: %w", err)
		}

		if expense.Method.Kind == core.PayCard {
			bill, err := s.billOrEmpty(ctx, q, expense.Method.CardID, key)
			if err != nil {
				return err
			}
			bill.ThisMonthTransactions.Cents -= expense.Amount.Cents
			bill.TotalPending.Cents -= expense.Amount.Cents
			bill.RemainingBalance.Cents = bill.TotalPending.Cents - bill.PaidAmount.Cents
			bill.IsPaidFull = bill.RemainingBalance.Cents == 0
			if err := q.UpsertBill(ctx, bill); err != nil {
				return fmt.Errorf("upsert bill: %w", err)
			}
			m.ReservedAmount.Cents -= expense.Amount.Cents
		} else {
			m.CashSpent.Cents -= expense.Amount.Cents
			m.ExpenseCount--
		}

		m.CurrentExpendables = core.CurrentExpendables(m.InitialExpendables, m.ReservedAmount, m.CashSpent)
		if err := q.UpdateMonth(ctx, m); err != nil {
			return fmt.Errorf("update month: %w", err)
		}
		if err := q.DeleteExpense(ctx, expenseID); err != nil {
			return fmt.Errorf("delete expense: %w", err)
		}
		return s.appendEvent(ctx, q, EventExpenseDeleted, key, map[string]any{
			"expense_id":   expenseID,
			"amount_cents": expense.Amount.Cents,
			"method":       expense.Method.Kind,
		})
	})
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", expenseID, err)
	}

	slog.InfoContext(ctx, "Expense deleted", "month", key, "expense_id", expenseID)
	return nil
}

// SetCardBill records a manual statement entry. It overwrites any figures
// accumulated from card-tagged expenses and resets the payment state, so
// callers should warn before replacing transaction-driven increments.
func (s *LedgerService) SetCardBill(ctx context.Context, cardID string, key core.MonthKey, previousBill, thisMonth core.Money) (core.Bill, error) {
	if err := key.Validate(); err != nil {
		return core.Bill{}, err
	}
	if previousBill.Cents < 0 || thisMonth.Cents < 0 {
		return core.Bill{}, core.ErrInvalidAmount
	}
	if previousBill.Cents == 0 && thisMonth.Cents == 0 {
		return core.Bill{}, core.ErrNoOpBill
	}

	var out core.Bill
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		card, err := q.GetCard(ctx, cardID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !card.IsActive) {
			return core.ErrCardNotFound
		}
		if err != nil {
			return fmt.Errorf("get card: %w", err)
		}

		total := previousBill.Cents + thisMonth.Cents
		bill := core.Bill{
			CardID:                cardID,
			MonthKey:              key,
			PreviousBill:          previousBill,
			ThisMonthTransactions: thisMonth,
			TotalPending:          core.Money{Cents: total},
			PaidAmount:            core.Money{},
			RemainingBalance:      core.Money{Cents: total},
			IsPaidFull:            false,
		}
		if err := q.UpsertBill(ctx, bill); err != nil {
			return fmt.Errorf("upsert bill: %w", err)
		}

		// A manual statement changes the month's card total, so the
		// derived aggregates must be refreshed in the same transaction.
		if err := s.refreshLedgerTx(ctx, q, key); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, q, EventBillUpdated, key, map[string]any{
			"card_id":             cardID,
			"total_pending_cents": total,
		}); err != nil {
			return err
		}
		out = bill
		return nil
	})
	if err != nil {
		return core.Bill{}, fmt.Errorf("set bill for card %s: %w", cardID, err)
	}
	return out, nil
}

// PayCardBill records a payment against the card's current-month bill.
// Payments beyond the remaining balance are rejected and leave the bill
// unchanged. Paying a bill never touches expendables: the pending total
// was already deducted at salary time or reserved at expense time.
func (s *LedgerService) PayCardBill(ctx context.Context, cardID string, key core.MonthKey, amount core.Money) (core.Bill, error) {
	if err := key.Validate(); err != nil {
		return core.Bill{}, err
	}
	if err := amount.Validate(); err != nil {
		return core.Bill{}, err
	}

	var out core.Bill
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		card, err := q.GetCard(ctx, cardID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !card.IsActive) {
			return core.ErrCardNotFound
		}
		if err != nil {
			return fmt.Errorf("get card: %w", err)
		}

		bill, err := q.GetBill(ctx, cardID, key)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrOverpayment
		}
		if err != nil {
			return fmt.Errorf("get bill: %w", err)
		}
		if amount.Cents > bill.RemainingBalance.Cents {
			return core.ErrOverpayment
		}

		bill.PaidAmount.Cents += amount.Cents
		bill.RemainingBalance.Cents = bill.TotalPending.Cents - bill.PaidAmount.Cents
		bill.IsPaidFull = bill.RemainingBalance.Cents == 0
		if err := q.UpsertBill(ctx, bill); err != nil {
			return fmt.Errorf("upsert bill: %w", err)
		}
		if err := s.appendEvent(ctx, q, EventBillPayment, key, map[string]any{
			"card_id":         cardID,
			"paid_cents":      amount.Cents,
			"remaining_cents": bill.RemainingBalance.Cents,
		}); err != nil {
			return err
		}
		out = bill
		return nil
	})
	if err != nil {
		return core.Bill{}, fmt.Errorf("pay bill for card %s: %w", cardID, err)
	}

	slog.InfoContext(ctx, "Bill payment recorded",
		"card_id", cardID,
		"month", key,
		"paid_cents", amount.Cents,
		"paid_full", out.IsPaidFull)
	return out, nil
}

// ToggleObligationPaid flips the per-month paid checkmark. The flag is a
// checklist only and never feeds back into the monetary totals.
func (s *LedgerService) ToggleObligationPaid(ctx context.Context, obligationID string, key core.MonthKey) (core.PaymentStatus, error) {
	if err := key.Validate(); err != nil {
		return core.PaymentStatus{}, err
	}
	var out core.PaymentStatus
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetObligation(ctx, obligationID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrObligationNotFound
			}
			return fmt.Errorf("get obligation: %w", err)
		}

		ps, err := q.GetPaymentStatus(ctx, obligationID, key)
		if errors.Is(err, sql.ErrNoRows) {
			ps = core.PaymentStatus{ObligationID: obligationID, MonthKey: key}
		} else if err != nil {
			return fmt.Errorf("get payment status: %w", err)
		}

		ps.IsPaid = !ps.IsPaid
		if ps.IsPaid {
			t := time.Now().UTC()
			ps.PaidDate = &t
		} else {
			ps.PaidDate = nil
		}
		if err := q.UpsertPaymentStatus(ctx, ps); err != nil {
			return fmt.Errorf("upsert payment status: %w", err)
		}
		if err := s.appendEvent(ctx, q, EventObligationToggled, key, map[string]any{
			"obligation_id": obligationID,
			"is_paid":       ps.IsPaid,
		}); err != nil {
			return err
		}
		out = ps
		return nil
	})
	if err != nil {
		return core.PaymentStatus{}, fmt.Errorf("toggle obligation %s: %w", obligationID, err)
	}
	return out, nil
}

// CreateObligation adds a fixed expense or DPS installment and refreshes
// the given month's derived totals in the same transaction.
func (s *LedgerService) CreateObligation(ctx context.Context, key core.MonthKey, name string, kind core.ObligationKind, amount core.Money) (core.Obligation, error) {
	if err := key.Validate(); err != nil {
		return core.Obligation{}, err
	}
	o := core.Obligation{
		ID:       uuid.NewString(),
		Name:     name,
		Kind:     kind,
		Amount:   amount,
		IsActive: true,
	}
	if err := o.Validate(); err != nil {
		return core.Obligation{}, err
	}

	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if err := q.InsertObligation(ctx, o); err != nil {
			return fmt.Errorf("insert obligation: %w", err)
		}
		if err := s.refreshLedgerTx(ctx, q, key); err != nil {
			return err
		}
		return s.appendEvent(ctx, q, EventObligationChanged, key, map[string]any{
			"obligation_id": o.ID,
			"kind":          o.Kind,
			"amount_cents":  o.Amount.Cents,
		})
	})
	if err != nil {
		return core.Obligation{}, fmt.Errorf("create obligation: %w", err)
	}
	return o, nil
}

// UpdateObligationInput holds the mutable obligation fields; nil fields
// are left unchanged.
type UpdateObligationInput struct {
	Name     *string
	Amount   *core.Money
	IsActive *bool
}

// UpdateObligation edits or soft-deletes an obligation and refreshes the
// given month's derived totals atomically with the edit.
func (s *LedgerService) UpdateObligation(ctx context.Context, key core.MonthKey, id string, in UpdateObligationInput) (core.Obligation, error) {
	if err := key.Validate(); err != nil {
		return core.Obligation{}, err
	}
	var out core.Obligation
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		o, err := q.GetObligation(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrObligationNotFound
		}
		if err != nil {
			return fmt.Errorf("get obligation: %w", err)
		}

		if in.Name != nil {
			o.Name = *in.Name
		}
		if in.Amount != nil {
			o.Amount = *in.Amount
		}
		if in.IsActive != nil {
			o.IsActive = *in.IsActive
		}
		if err := o.Validate(); err != nil {
			return err
		}
		if err := q.UpdateObligation(ctx, o); err != nil {
			return fmt.Errorf("update obligation: %w", err)
		}
		if err := s.refreshLedgerTx(ctx, q, key); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, q, EventObligationChanged, key, map[string]any{
			"obligation_id": o.ID,
			"is_active":     o.IsActive,
			"amount_cents":  o.Amount.Cents,
		}); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return core.Obligation{}, fmt.Errorf("update obligation %s: %w", id, err)
	}
	return out, nil
}

// CreateFutureSaving records a savings-goal allocation. Its amount shows
// up in the month's savings total but never reduces expendables.
func (s *LedgerService) CreateFutureSaving(ctx context.Context, key core.MonthKey, name string, amount core.Money) (core.FutureSaving, error) {
	if err := key.Validate(); err != nil {
		return core.FutureSaving{}, err
	}
	f := core.FutureSaving{
		ID:       uuid.NewString(),
		Name:     name,
		Amount:   amount,
		IsActive: true,
	}
	if err := f.Validate(); err != nil {
		return core.FutureSaving{}, err
	}

	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if err := q.InsertFutureSaving(ctx, f); err != nil {
			return fmt.Errorf("insert future saving: %w", err)
		}
		if err := s.refreshLedgerTx(ctx, q, key); err != nil {
			return err
		}
		return s.appendEvent(ctx, q, EventSavingChanged, key, map[string]any{
			"saving_id":    f.ID,
			"amount_cents": f.Amount.Cents,
		})
	})
	if err != nil {
		return core.FutureSaving{}, fmt.Errorf("create future saving: %w", err)
	}
	return f, nil
}

// UpdateFutureSavingInput holds the mutable saving fields; nil fields
// keep their current value.
type UpdateFutureSavingInput struct {
	Name     *string
	Amount   *core.Money
	IsActive *bool
}

// UpdateFutureSaving edits or soft-deletes a savings allocation and
// refreshes the month's displayed savings total in the same transaction.
func (s *LedgerService) UpdateFutureSaving(ctx context.Context, key core.MonthKey, id string, in UpdateFutureSavingInput) (core.FutureSaving, error) {
	if err := key.Validate(); err != nil {
		return core.FutureSaving{}, err
	}
	var out core.FutureSaving
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		f, err := q.GetFutureSaving(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrSavingNotFound
		}
		if err != nil {
			return fmt.Errorf("get future saving: %w", err)
		}

		if in.Name != nil {
			f.Name = *in.Name
		}
		if in.Amount != nil {
			f.Amount = *in.Amount
		}
		if in.IsActive != nil {
			f.IsActive = *in.IsActive
		}
		if err := f.Validate(); err != nil {
			return err
		}
		if err := q.UpdateFutureSaving(ctx, f); err != nil {
			return fmt.Errorf("update future saving: %w", err)
		}
		if err := s.refreshLedgerTx(ctx, q, key); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, q, EventSavingChanged, key, map[string]any{
			"saving_id":    f.ID,
			"is_active":    f.IsActive,
			"amount_cents": f.Amount.Cents,
		}); err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		return core.FutureSaving{}, fmt.Errorf("update future saving %s: %w", id, err)
	}
	return out, nil
}

// CreateCard registers a credit card. No ledger impact until the card
// accumulates a bill.
func (s *LedgerService) CreateCard(ctx context.Context, name string, limit core.Money, color string) (core.CreditCard, error) {
	if color == "" {
		color = "#4ECDC4"
	}
	card := core.CreditCard{
		ID:          uuid.NewString(),
		Name:        name,
		CreditLimit: limit,
		Color:       color,
		IsActive:    true,
	}
	if err := card.Validate(); err != nil {
		return core.CreditCard{}, err
	}
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		return q.InsertCard(ctx, card)
	})
	if err != nil {
		return core.CreditCard{}, fmt.Errorf("create card: %w", err)
	}
	return card, nil
}

// UpdateCardInput holds the mutable card fields; nil fields keep their
// current value.
type UpdateCardInput struct {
	Name        *string
	CreditLimit *core.Money
	Color       *string
	IsActive    *bool
}

// UpdateCard edits or soft-deletes a card. Deactivation removes the
// card's bill from the month's totals, so the ledger is refreshed in the
// same transaction.
func (s *LedgerService) UpdateCard(ctx context.Context, key core.MonthKey, id string, in UpdateCardInput) (core.CreditCard, error) {
	if err := key.Validate(); err != nil {
		return core.CreditCard{}, err
	}
	var out core.CreditCard
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		card, err := q.GetCard(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrCardNotFound
		}
		if err != nil {
			return fmt.Errorf("get card: %w", err)
		}

		if in.Name != nil {
			card.Name = *in.Name
		}
		if in.CreditLimit != nil {
			card.CreditLimit = *in.CreditLimit
		}
		if in.Color != nil {
			card.Color = *in.Color
		}
		if in.IsActive != nil {
			card.IsActive = *in.IsActive
		}
		if err := card.Validate(); err != nil {
			return err
		}
		if err := q.UpdateCard(ctx, card); err != nil {
			return fmt.Errorf("update card: %w", err)
		}
		if err := s.refreshLedgerTx(ctx, q, key); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, q, EventCardChanged, key, map[string]any{
			"card_id":   card.ID,
			"is_active": card.IsActive,
		}); err != nil {
			return err
		}
		out = card
		return nil
	})
	if err != nil {
		return core.CreditCard{}, fmt.Errorf("update card %s: %w", id, err)
	}
	return out, nil
}

// ---- internal helpers ----

func (s *LedgerService) ensureMonthTx(ctx context.Context, q *storage.Queries, key core.MonthKey) (core.MonthlyLedger, error) {
	if err := q.InsertMonthIfAbsent(ctx, key); err != nil {
		return core.MonthlyLedger{}, fmt.Errorf("insert month: %w", err)
	}
	m, err := q.GetMonth(ctx, key)
	if err != nil {
		return core.MonthlyLedger{}, fmt.Errorf("get month: %w", err)
	}
	return m, nil
}

// deriveTx reads the latest obligations and active-card bills and writes
// the derived totals into m, then re-derives the live balance from the
// canonical invariant. Runs inside the caller's transaction so the
// derivation never uses stale inputs.
func (s *LedgerService) deriveTx(ctx context.Context, q *storage.Queries, m *core.MonthlyLedger) error {
	obligations, err := q.ListObligations(ctx)
	if err != nil {
		return fmt.Errorf("list obligations: %w", err)
	}
	bills, err := q.ListActiveCardBills(ctx, m.Key)
	if err != nil {
		return fmt.Errorf("list card bills: %w", err)
	}
	savings, err := q.ListFutureSavings(ctx)
	if err != nil {
		return fmt.Errorf("list future savings: %w", err)
	}

	t := core.DeriveTotals(m.SalaryAmount, obligations, bills, savings)
	m.TotalFixedExpenses = t.TotalFixedExpenses
	m.TotalDPSAmount = t.TotalDPSAmount
	m.TotalCreditCardBills = t.TotalCreditCardBills
	m.TotalFutureSavings = t.TotalFutureSavings
	m.InitialExpendables = t.InitialExpendables
	m.CurrentExpendables = core.CurrentExpendables(m.InitialExpendables, m.ReservedAmount, m.CashSpent)
	return nil
}

// refreshLedgerTx re-derives the month's aggregates after an obligation
// or bill edit. Does nothing while salary is unset; the derivation will
// run when the salary arrives.
func (s *LedgerService) refreshLedgerTx(ctx context.Context, q *storage.Queries, key core.MonthKey) error {
	m, err := s.ensureMonthTx(ctx, q, key)
	if err != nil {
		return err
	}
	if !m.SalaryReceived {
		return nil
	}
	if err := s.deriveTx(ctx, q, &m); err != nil {
		return err
	}
	if err := q.UpdateMonth(ctx, m); err != nil {
		return fmt.Errorf("update month: %w", err)
	}
	return nil
}

func (s *LedgerService) appendEvent(ctx context.Context, q *storage.Queries, eventType string, key core.MonthKey, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if err := q.InsertEvent(ctx, eventType, key, body); err != nil {
		return fmt.Errorf("insert %s event: %w", eventType, err)
	}
	return nil
}
