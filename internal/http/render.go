package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"expendables/internal/core"
	"expendables/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain sentinels onto the API's status codes:
// malformed or unprocessable input is 422, unknown resources are 404,
// and an exhausted storage retry budget is 503 with a Retry-After.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrExpenseNotFound),
		errors.Is(err, core.ErrObligationNotFound),
		errors.Is(err, core.ErrCardNotFound),
		errors.Is(err, core.ErrSavingNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidMonthKey),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrInvalidPaymentKind),
		errors.Is(err, core.ErrInvalidObligationKind),
		errors.Is(err, core.ErrMissingCardSelection),
		errors.Is(err, core.ErrNoOpBill),
		errors.Is(err, core.ErrOverpayment):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrStorageUnavailable):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		slog.Error("Unhandled request error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

// amountPayload accepts an amount either as integer cents or as a
// decimal string like "1234.56".
type amountPayload struct {
	AmountCents *int64 `json:"amount_cents,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

func (p amountPayload) money() (core.Money, error) {
	if p.AmountCents != nil {
		return core.Money{Cents: *p.AmountCents}, nil
	}
	cents, err := core.ParseDecimalToCents(p.Amount)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

type ledgerResponse struct {
	MonthKey             string `json:"month_key"`
	SalaryReceived       bool   `json:"salary_received"`
	SalaryCents          int64  `json:"salary_cents"`
	FixedExpensesCents   int64  `json:"fixed_expenses_cents"`
	DPSCents             int64  `json:"dps_cents"`
	CreditCardBillsCents int64  `json:"credit_card_bills_cents"`
	FutureSavingsCents   int64  `json:"future_savings_cents"`
	InitialCents         int64  `json:"initial_expendables_cents"`
	ReservedCents        int64  `json:"reserved_cents"`
	CashSpentCents       int64  `json:"cash_spent_cents"`
	CurrentCents         int64  `json:"current_expendables_cents"`
	ExpenseCount         int64  `json:"expense_count"`
	UpdatedAt            string `json:"updated_at"`
}

func toLedgerResponse(m core.MonthlyLedger) ledgerResponse {
	return ledgerResponse{
		MonthKey:             string(m.Key),
		SalaryReceived:       m.SalaryReceived,
		SalaryCents:          m.SalaryAmount.Cents,
		FixedExpensesCents:   m.TotalFixedExpenses.Cents,
		DPSCents:             m.TotalDPSAmount.Cents,
		CreditCardBillsCents: m.TotalCreditCardBills.Cents,
		FutureSavingsCents:   m.TotalFutureSavings.Cents,
		InitialCents:         m.InitialExpendables.Cents,
		ReservedCents:        m.ReservedAmount.Cents,
		CashSpentCents:       m.CashSpent.Cents,
		CurrentCents:         m.CurrentExpendables.Cents,
		ExpenseCount:         m.ExpenseCount,
		UpdatedAt:            m.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type expenseResponse struct {
	ID          string `json:"id"`
	MonthKey    string `json:"month_key"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Method      string `json:"method"`
	CardID      string `json:"card_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		MonthKey:    string(e.MonthKey),
		Name:        e.Name,
		AmountCents: e.Amount.Cents,
		Category:    string(e.Category),
		Method:      string(e.Method.Kind),
		CardID:      e.Method.CardID,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type obligationResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	AmountCents int64   `json:"amount_cents"`
	IsActive    bool    `json:"is_active"`
	IsPaid      bool    `json:"is_paid"`
	PaidDate    *string `json:"paid_date,omitempty"`
}

func toObligationResponse(o core.Obligation, ps core.PaymentStatus) obligationResponse {
	resp := obligationResponse{
		ID:          o.ID,
		Name:        o.Name,
		Kind:        string(o.Kind),
		AmountCents: o.Amount.Cents,
		IsActive:    o.IsActive,
		IsPaid:      ps.IsPaid,
	}
	if ps.PaidDate != nil {
		d := ps.PaidDate.UTC().Format(time.RFC3339)
		resp.PaidDate = &d
	}
	return resp
}

type savingResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	IsActive    bool   `json:"is_active"`
}

func toSavingResponse(f core.FutureSaving) savingResponse {
	return savingResponse{
		ID:          f.ID,
		Name:        f.Name,
		AmountCents: f.Amount.Cents,
		IsActive:    f.IsActive,
	}
}

type billResponse struct {
	CardID                string `json:"card_id"`
	MonthKey              string `json:"month_key"`
	PreviousCents         int64  `json:"previous_bill_cents"`
	ThisMonthCents        int64  `json:"this_month_cents"`
	TotalPendingCents     int64  `json:"total_pending_cents"`
	PaidCents             int64  `json:"paid_cents"`
	RemainingBalanceCents int64  `json:"remaining_balance_cents"`
	IsPaidFull            bool   `json:"is_paid_full"`
}

func toBillResponse(b core.Bill) billResponse {
	return billResponse{
		CardID:                b.CardID,
		MonthKey:              string(b.MonthKey),
		PreviousCents:         b.PreviousBill.Cents,
		ThisMonthCents:        b.ThisMonthTransactions.Cents,
		TotalPendingCents:     b.TotalPending.Cents,
		PaidCents:             b.PaidAmount.Cents,
		RemainingBalanceCents: b.RemainingBalance.Cents,
		IsPaidFull:            b.IsPaidFull,
	}
}

type cardResponse struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	CreditLimitCents int64         `json:"credit_limit_cents"`
	Color            string        `json:"color"`
	IsActive         bool          `json:"is_active"`
	Bill             *billResponse `json:"bill,omitempty"`
}

func toCardResponse(c core.CreditCard, bill *core.Bill) cardResponse {
	resp := cardResponse{
		ID:               c.ID,
		Name:             c.Name,
		CreditLimitCents: c.CreditLimit.Cents,
		Color:            c.Color,
		IsActive:         c.IsActive,
	}
	if bill != nil {
		b := toBillResponse(*bill)
		resp.Bill = &b
	}
	return resp
}

type categoryTotalResponse struct {
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
	Count       int64  `json:"count"`
}

type summaryResponse struct {
	Ledger          ledgerResponse          `json:"ledger"`
	Categories      []categoryTotalResponse `json:"categories"`
	SpentPercentage int                     `json:"spent_percentage"`
	SpendingWarning bool                    `json:"spending_warning"`
}

func toSummaryResponse(sum services.MonthSummary) summaryResponse {
	resp := summaryResponse{
		Ledger:          toLedgerResponse(sum.Ledger),
		Categories:      make([]categoryTotalResponse, 0, len(sum.Categories)),
		SpentPercentage: sum.SpentPercentage,
		SpendingWarning: sum.SpendingWarning,
	}
	for _, ct := range sum.Categories {
		resp.Categories = append(resp.Categories, categoryTotalResponse{
			Category:    string(ct.Category),
			AmountCents: ct.Amount.Cents,
			Count:       ct.Count,
		})
	}
	return resp
}
