package storage

import (
	"context"
	"database/sql"
	"time"

	"expendables/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so the same query set
// serves plain reads and transactional mutations.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

func now() int64 { return time.Now().UTC().Unix() }

// ---- months ----

const monthColumns = `month_key, salary_received, salary_amount_cents,
	total_fixed_cents, total_dps_cents, total_card_bills_cents,
	total_future_savings_cents, initial_expendables_cents, reserved_cents,
	cash_spent_cents, current_expendables_cents, expense_count, created_at, updated_at`

func scanMonth(row interface{ Scan(...any) error }) (core.MonthlyLedger, error) {
	var m core.MonthlyLedger
	var received int64
	var createdAt, updatedAt int64
	err := row.Scan(
		&m.Key, &received, &m.SalaryAmount.Cents,
		&m.TotalFixedExpenses.Cents, &m.TotalDPSAmount.Cents, &m.TotalCreditCardBills.Cents,
		&m.TotalFutureSavings.Cents, &m.InitialExpendables.Cents, &m.ReservedAmount.Cents,
		&m.CashSpent.Cents, &m.CurrentExpendables.Cents, &m.ExpenseCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return core.MonthlyLedger{}, err
	}
	m.SalaryReceived = received != 0
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	m.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return m, nil
}

func (q *Queries) GetMonth(ctx context.Context, key core.MonthKey) (core.MonthlyLedger, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+monthColumns+` FROM months WHERE month_key = ?`, key)
	return scanMonth(row)
}

// InsertMonthIfAbsent creates the month row with all derived fields at
// zero. Idempotent: an existing row is left untouched.
func (q *Queries) InsertMonthIfAbsent(ctx context.Context, key core.MonthKey) error {
	ts := now()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO months (month_key, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (month_key) DO NOTHING`, key, ts, ts)
	return err
}

// UpdateMonth writes back every mutable aggregate field of the ledger row.
func (q *Queries) UpdateMonth(ctx context.Context, m core.MonthlyLedger) error {
	received := 0
	if m.SalaryReceived {
		received = 1
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE months SET
			salary_received = ?, salary_amount_cents = ?,
			total_fixed_cents = ?, total_dps_cents = ?, total_card_bills_cents = ?,
			total_future_savings_cents = ?, initial_expendables_cents = ?,
			reserved_cents = ?, cash_spent_cents = ?,
			current_expendables_cents = ?, expense_count = ?, updated_at = ?
		 WHERE month_key = ?`,
		received, m.SalaryAmount.Cents,
		m.TotalFixedExpenses.Cents, m.TotalDPSAmount.Cents, m.TotalCreditCardBills.Cents,
		m.TotalFutureSavings.Cents, m.InitialExpendables.Cents,
		m.ReservedAmount.Cents, m.CashSpent.Cents,
		m.CurrentExpendables.Cents, m.ExpenseCount, now(), m.Key)
	return err
}

// ---- obligations ----

const obligationColumns = `id, name, kind, amount_cents, is_active, created_at, updated_at`

func scanObligation(row interface{ Scan(...any) error }) (core.Obligation, error) {
	var o core.Obligation
	var active, createdAt, updatedAt int64
	err := row.Scan(&o.ID, &o.Name, &o.Kind, &o.Amount.Cents, &active, &createdAt, &updatedAt)
	if err != nil {
		return core.Obligation{}, err
	}
	o.IsActive = active != 0
	o.CreatedAt = time.Unix(createdAt, 0).UTC()
	o.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return o, nil
}

func (q *Queries) InsertObligation(ctx context.Context, o core.Obligation) error {
	active := 0
	if o.IsActive {
		active = 1
	}
	ts := now()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO obligations (id, name, kind, amount_cents, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Name, o.Kind, o.Amount.Cents, active, ts, ts)
	return err
}

func (q *Queries) GetObligation(ctx context.Context, id string) (core.Obligation, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+obligationColumns+` FROM obligations WHERE id = ?`, id)
	return scanObligation(row)
}

func (q *Queries) ListObligations(ctx context.Context) ([]core.Obligation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+obligationColumns+` FROM obligations ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateObligation(ctx context.Context, o core.Obligation) error {
	active := 0
	if o.IsActive {
		active = 1
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE obligations SET name = ?, amount_cents = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		o.Name, o.Amount.Cents, active, now(), o.ID)
	return err
}

func (q *Queries) GetPaymentStatus(ctx context.Context, obligationID string, key core.MonthKey) (core.PaymentStatus, error) {
	var ps core.PaymentStatus
	var paid int64
	var paidDate sql.NullInt64
	err := q.db.QueryRowContext(ctx,
		`SELECT obligation_id, month_key, is_paid, paid_date
		 FROM obligation_payments WHERE obligation_id = ? AND month_key = ?`,
		obligationID, key).Scan(&ps.ObligationID, &ps.MonthKey, &paid, &paidDate)
	if err != nil {
		return core.PaymentStatus{}, err
	}
	ps.IsPaid = paid != 0
	if paidDate.Valid {
		t := time.Unix(paidDate.Int64, 0).UTC()
		ps.PaidDate = &t
	}
	return ps, nil
}

func (q *Queries) UpsertPaymentStatus(ctx context.Context, ps core.PaymentStatus) error {
	paid := 0
	if ps.IsPaid {
		paid = 1
	}
	var paidDate sql.NullInt64
	if ps.PaidDate != nil {
		paidDate = sql.NullInt64{Int64: ps.PaidDate.Unix(), Valid: true}
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO obligation_payments (obligation_id, month_key, is_paid, paid_date)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (obligation_id, month_key)
		 DO UPDATE SET is_paid = excluded.is_paid, paid_date = excluded.paid_date`,
		ps.ObligationID, ps.MonthKey, paid, paidDate)
	return err
}

// ---- future savings ----

const savingColumns = `id, name, amount_cents, is_active, created_at, updated_at`

func scanSaving(row interface{ Scan(...any) error }) (core.FutureSaving, error) {
	var f core.FutureSaving
	var active, createdAt, updatedAt int64
	err := row.Scan(&f.ID, &f.Name, &f.Amount.Cents, &active, &createdAt, &updatedAt)
	if err != nil {
		return core.FutureSaving{}, err
	}
	f.IsActive = active != 0
	f.CreatedAt = time.Unix(createdAt, 0).UTC()
	f.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return f, nil
}

func (q *Queries) InsertFutureSaving(ctx context.Context, f core.FutureSaving) error {
	active := 0
	if f.IsActive {
		active = 1
	}
	ts := now()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO future_savings (id, name, amount_cents, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.Amount.Cents, active, ts, ts)
	return err
}

func (q *Queries) GetFutureSaving(ctx context.Context, id string) (core.FutureSaving, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+savingColumns+` FROM future_savings WHERE id = ?`, id)
	return scanSaving(row)
}

func (q *Queries) ListFutureSavings(ctx context.Context) ([]core.FutureSaving, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+savingColumns+` FROM future_savings ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.FutureSaving
	for rows.Next() {
		f, err := scanSaving(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateFutureSaving(ctx context.Context, f core.FutureSaving) error {
	active := 0
	if f.IsActive {
		active = 1
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE future_savings SET name = ?, amount_cents = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		f.Name, f.Amount.Cents, active, now(), f.ID)
	return err
}

// ---- credit cards ----

const cardColumns = `id, name, credit_limit_cents, color, is_active, created_at`

func scanCard(row interface{ Scan(...any) error }) (core.CreditCard, error) {
	var c core.CreditCard
	var active, createdAt int64
	err := row.Scan(&c.ID, &c.Name, &c.CreditLimit.Cents, &c.Color, &active, &createdAt)
	if err != nil {
		return core.CreditCard{}, err
	}
	c.IsActive = active != 0
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return c, nil
}

func (q *Queries) InsertCard(ctx context.Context, c core.CreditCard) error {
	active := 0
	if c.IsActive {
		active = 1
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO credit_cards (id, name, credit_limit_cents, color, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.CreditLimit.Cents, c.Color, active, now())
	return err
}

func (q *Queries) GetCard(ctx context.Context, id string) (core.CreditCard, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM credit_cards WHERE id = ?`, id)
	return scanCard(row)
}

func (q *Queries) ListCards(ctx context.Context) ([]core.CreditCard, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM credit_cards ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.CreditCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateCard(ctx context.Context, c core.CreditCard) error {
	active := 0
	if c.IsActive {
		active = 1
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE credit_cards SET name = ?, credit_limit_cents = ?, color = ?, is_active = ?
		 WHERE id = ?`,
		c.Name, c.CreditLimit.Cents, c.Color, active, c.ID)
	return err
}

// ---- card bills ----

const billColumns = `card_id, month_key, previous_bill_cents, this_month_tx_cents,
	total_pending_cents, paid_cents, remaining_cents, is_paid_full`

func scanBill(row interface{ Scan(...any) error }) (core.Bill, error) {
	var b core.Bill
	var paidFull int64
	err := row.Scan(
		&b.CardID, &b.MonthKey, &b.PreviousBill.Cents, &b.ThisMonthTransactions.Cents,
		&b.TotalPending.Cents, &b.PaidAmount.Cents, &b.RemainingBalance.Cents, &paidFull)
	if err != nil {
		return core.Bill{}, err
	}
	b.IsPaidFull = paidFull != 0
	return b, nil
}

func (q *Queries) GetBill(ctx context.Context, cardID string, key core.MonthKey) (core.Bill, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+billColumns+` FROM card_bills WHERE card_id = ? AND month_key = ?`,
		cardID, key)
	return scanBill(row)
}

// ListActiveCardBills returns the given month's bills for active cards
// only, which is exactly the input set of the totals derivation.
func (q *Queries) ListActiveCardBills(ctx context.Context, key core.MonthKey) ([]core.Bill, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT b.card_id, b.month_key, b.previous_bill_cents, b.this_month_tx_cents,
			b.total_pending_cents, b.paid_cents, b.remaining_cents, b.is_paid_full
		 FROM card_bills b
		 JOIN credit_cards c ON c.id = b.card_id
		 WHERE b.month_key = ? AND c.is_active = 1
		 ORDER BY b.card_id`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *Queries) UpsertBill(ctx context.Context, b core.Bill) error {
	paidFull := 0
	if b.IsPaidFull {
		paidFull = 1
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO card_bills (card_id, month_key, previous_bill_cents, this_month_tx_cents,
			total_pending_cents, paid_cents, remaining_cents, is_paid_full, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (card_id, month_key) DO UPDATE SET
			previous_bill_cents = excluded.previous_bill_cents,
			this_month_tx_cents = excluded.this_month_tx_cents,
			total_pending_cents = excluded.total_pending_cents,
			paid_cents = excluded.paid_cents,
			remaining_cents = excluded.remaining_cents,
			is_paid_full = excluded.is_paid_full,
			updated_at = excluded.updated_at`,
		b.CardID, b.MonthKey, b.PreviousBill.Cents, b.ThisMonthTransactions.Cents,
		b.TotalPending.Cents, b.PaidAmount.Cents, b.RemainingBalance.Cents, paidFull, now())
	return err
}

// ---- expenses ----

const expenseColumns = `id, month_key, name, amount_cents, category, payment_kind, card_id, created_at`

func scanExpense(row interface{ Scan(...any) error }) (core.Expense, error) {
	var e core.Expense
	var cardID sql.NullString
	var createdAt int64
	err := row.Scan(&e.ID, &e.MonthKey, &e.Name, &e.Amount.Cents, &e.Category,
		&e.Method.Kind, &cardID, &createdAt)
	if err != nil {
		return core.Expense{}, err
	}
	e.Method.CardID = cardID.String
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	return e, nil
}

func (q *Queries) InsertExpense(ctx context.Context, e core.Expense, idempotencyKey string) error {
	var cardID sql.NullString
	if e.Method.CardID != "" {
		cardID = sql.NullString{String: e.Method.CardID, Valid: true}
	}
	var idemKey sql.NullString
	if idempotencyKey != "" {
		idemKey = sql.NullString{String: idempotencyKey, Valid: true}
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO expenses (id, month_key, name, amount_cents, category, payment_kind,
			card_id, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MonthKey, e.Name, e.Amount.Cents, e.Category, e.Method.Kind,
		cardID, idemKey, e.CreatedAt.Unix())
	return err
}

func (q *Queries) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	return scanExpense(row)
}

func (q *Queries) GetExpenseByIdempotencyKey(ctx context.Context, key string) (core.Expense, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE idempotency_key = ?`, key)
	return scanExpense(row)
}

func (q *Queries) DeleteExpense(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	return err
}

func (q *Queries) ListExpenses(ctx context.Context, key core.MonthKey) ([]core.Expense, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE month_key = ?
		 ORDER BY created_at DESC, id`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CategoryTotal is a display aggregate for one category of one month.
type CategoryTotal struct {
	Category core.Category
	Amount   core.Money
	Count    int64
}

func (q *Queries) CategoryTotals(ctx context.Context, key core.MonthKey) ([]CategoryTotal, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT category, SUM(amount_cents), COUNT(*)
		 FROM expenses WHERE month_key = ?
		 GROUP BY category ORDER BY SUM(amount_cents) DESC`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Amount.Cents, &ct.Count); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// ---- ledger events (outbox) ----

// LedgerEvent is one outbox row, written in the same transaction as the
// mutation it describes and published asynchronously by the worker.
type LedgerEvent struct {
	ID        int64
	Type      string
	MonthKey  core.MonthKey
	Payload   []byte
	CreatedAt time.Time
}

func (q *Queries) InsertEvent(ctx context.Context, eventType string, key core.MonthKey, payload []byte) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO ledger_events (event_type, month_key, payload, created_at)
		 VALUES (?, ?, ?, ?)`, eventType, key, string(payload), now())
	return err
}

func (q *Queries) ListUnpublishedEvents(ctx context.Context, limit int) ([]LedgerEvent, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, event_type, month_key, payload, created_at
		 FROM ledger_events WHERE published = 0 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEvent
	for rows.Next() {
		var ev LedgerEvent
		var payload string
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.MonthKey, &payload, &createdAt); err != nil {
			return nil, err
		}
		ev.Payload = []byte(payload)
		ev.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (q *Queries) MarkEventPublished(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE ledger_events SET published = 1 WHERE id = ?`, id)
	return err
}
