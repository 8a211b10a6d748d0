package http

import (
	"net/http"
	"strings"
	"time"

	"expendables/internal/core"
	"expendables/internal/services"
)

func monthKeyFromPath(r *http.Request) core.MonthKey {
	return core.MonthKey(r.PathValue("key"))
}

// monthKeyFromQuery reads the optional ?month= parameter, defaulting to
// the wall-clock month.
func monthKeyFromQuery(r *http.Request) core.MonthKey {
	if v := r.URL.Query().Get("month"); v != "" {
		return core.MonthKey(v)
	}
	return core.MonthKey(time.Now().Format("2006-01"))
}

func (s *Server) handleGetMonth(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.EnsureMonth(r.Context(), monthKeyFromPath(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerResponse(m))
}

func (s *Server) handleSetSalary(w http.ResponseWriter, r *http.Request) {
	var req amountPayload
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := req.money()
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := s.svc.SetSalary(r.Context(), monthKeyFromPath(r), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerResponse(m))
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Recalculate(r.Context(), monthKeyFromPath(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerResponse(m))
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	key := monthKeyFromPath(r)
	if cached, ok := s.summaryCache.Get(string(key)); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}
	sum, err := s.svc.GetMonthSummary(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := toSummaryResponse(sum)
	s.summaryCache.Set(string(key), resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.svc.ListExpenses(r.Context(), monthKeyFromPath(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

type addExpenseRequest struct {
	amountPayload
	Name     string `json:"name"`
	Category string `json:"category"`
	Method   string `json:"method"`
	CardID   string `json:"card_id,omitempty"`
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req addExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := req.money()
	if err != nil {
		writeError(w, err)
		return
	}

	method := core.PaymentMethod{Kind: core.PaymentKind(req.Method), CardID: req.CardID}
	if req.Method == "" {
		method.Kind = core.PayCash
	}

	expense, err := s.svc.AddExpense(r.Context(), monthKeyFromPath(r), services.AddExpenseInput{
		Name:           strings.TrimSpace(req.Name),
		Amount:         amount,
		Category:       core.Category(req.Category),
		Method:         method,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseResponse(expense))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteExpense(r.Context(), monthKeyFromPath(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListObligations(w http.ResponseWriter, r *http.Request) {
	obligations, err := s.svc.ListObligations(r.Context(), monthKeyFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]obligationResponse, 0, len(obligations))
	for _, o := range obligations {
		out = append(out, toObligationResponse(o.Obligation, o.Status))
	}
	writeJSON(w, http.StatusOK, out)
}

type createObligationRequest struct {
	amountPayload
	MonthKey string `json:"month_key"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

func (s *Server) handleCreateObligation(w http.ResponseWriter, r *http.Request) {
	var req createObligationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := req.money()
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := s.svc.CreateObligation(r.Context(), core.MonthKey(req.MonthKey),
		strings.TrimSpace(req.Name), core.ObligationKind(req.Kind), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toObligationResponse(o, core.PaymentStatus{}))
}

type updateObligationRequest struct {
	MonthKey    string  `json:"month_key"`
	Name        *string `json:"name,omitempty"`
	AmountCents *int64  `json:"amount_cents,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

func (s *Server) handleUpdateObligation(w http.ResponseWriter, r *http.Request) {
	var req updateObligationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in := services.UpdateObligationInput{
		Name:     req.Name,
		IsActive: req.IsActive,
	}
	if req.AmountCents != nil {
		in.Amount = &core.Money{Cents: *req.AmountCents}
	}
	key := core.MonthKey(req.MonthKey)
	if req.MonthKey == "" {
		key = core.MonthKey(time.Now().Format("2006-01"))
	}
	o, err := s.svc.UpdateObligation(r.Context(), key, r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toObligationResponse(o, core.PaymentStatus{}))
}

func (s *Server) handleTogglePaid(w http.ResponseWriter, r *http.Request) {
	ps, err := s.svc.ToggleObligationPaid(r.Context(), r.PathValue("id"), monthKeyFromPath(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toObligationResponse(core.Obligation{ID: ps.ObligationID}, ps))
}

func (s *Server) handleListSavings(w http.ResponseWriter, r *http.Request) {
	savings, err := s.svc.ListFutureSavings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]savingResponse, 0, len(savings))
	for _, f := range savings {
		out = append(out, toSavingResponse(f))
	}
	writeJSON(w, http.StatusOK, out)
}

type createSavingRequest struct {
	amountPayload
	MonthKey string `json:"month_key"`
	Name     string `json:"name"`
}

func (s *Server) handleCreateSaving(w http.ResponseWriter, r *http.Request) {
	var req createSavingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := req.money()
	if err != nil {
		writeError(w, err)
		return
	}
	key := core.MonthKey(req.MonthKey)
	if req.MonthKey == "" {
		key = core.MonthKey(time.Now().Format("2006-01"))
	}
	f, err := s.svc.CreateFutureSaving(r.Context(), key, strings.TrimSpace(req.Name), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSavingResponse(f))
}

type updateSavingRequest struct {
	MonthKey    string  `json:"month_key"`
	Name        *string `json:"name,omitempty"`
	AmountCents *int64  `json:"amount_cents,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

func (s *Server) handleUpdateSaving(w http.ResponseWriter, r *http.Request) {
	var req updateSavingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in := services.UpdateFutureSavingInput{
		Name:     req.Name,
		IsActive: req.IsActive,
	}
	if req.AmountCents != nil {
		in.Amount = &core.Money{Cents: *req.AmountCents}
	}
	key := core.MonthKey(req.MonthKey)
	if req.MonthKey == "" {
		key = core.MonthKey(time.Now().Format("2006-01"))
	}
	f, err := s.svc.UpdateFutureSaving(r.Context(), key, r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSavingResponse(f))
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.svc.ListCards(r.Context(), monthKeyFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]cardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, toCardResponse(c.Card, c.Bill))
	}
	writeJSON(w, http.StatusOK, out)
}

type createCardRequest struct {
	Name             string `json:"name"`
	CreditLimitCents int64  `json:"credit_limit_cents"`
	Color            string `json:"color,omitempty"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	card, err := s.svc.CreateCard(r.Context(), strings.TrimSpace(req.Name),
		core.Money{Cents: req.CreditLimitCents}, req.Color)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardResponse(card, nil))
}

type updateCardRequest struct {
	MonthKey         string  `json:"month_key"`
	Name             *string `json:"name,omitempty"`
	CreditLimitCents *int64  `json:"credit_limit_cents,omitempty"`
	Color            *string `json:"color,omitempty"`
	IsActive         *bool   `json:"is_active,omitempty"`
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req updateCardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in := services.UpdateCardInput{
		Name:     req.Name,
		Color:    req.Color,
		IsActive: req.IsActive,
	}
	if req.CreditLimitCents != nil {
		in.CreditLimit = &core.Money{Cents: *req.CreditLimitCents}
	}
	key := core.MonthKey(req.MonthKey)
	if req.MonthKey == "" {
		key = core.MonthKey(time.Now().Format("2006-01"))
	}
	card, err := s.svc.UpdateCard(r.Context(), key, r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(card, nil))
}

type setBillRequest struct {
	PreviousBillCents int64 `json:"previous_bill_cents"`
	ThisMonthCents    int64 `json:"this_month_cents"`
}

func (s *Server) handleSetBill(w http.ResponseWriter, r *http.Request) {
	var req setBillRequest
	if !decodeBody(w, r, &req) {
		return
	}
	bill, err := s.svc.SetCardBill(r.Context(), r.PathValue("id"), monthKeyFromPath(r),
		core.Money{Cents: req.PreviousBillCents}, core.Money{Cents: req.ThisMonthCents})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillResponse(bill))
}

func (s *Server) handlePayBill(w http.ResponseWriter, r *http.Request) {
	var req amountPayload
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := req.money()
	if err != nil {
		writeError(w, err)
		return
	}
	bill, err := s.svc.PayCardBill(r.Context(), r.PathValue("id"), monthKeyFromPath(r), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillResponse(bill))
}
