package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidMonthKey       = errors.New("invalid month key")
	ErrEmptyName             = errors.New("empty name")
	ErrNameTooLong           = errors.New("name too long (max 200 characters)")
	ErrInvalidCategory       = errors.New("invalid category")
	ErrInvalidPaymentKind    = errors.New("invalid payment kind")
	ErrInvalidObligationKind = errors.New("invalid obligation kind")
	ErrMissingCardSelection  = errors.New("missing card selection")
	ErrCardNotFound          = errors.New("card not found")
	ErrExpenseNotFound       = errors.New("expense not found")
	ErrObligationNotFound    = errors.New("obligation not found")
	ErrSavingNotFound        = errors.New("future saving not found")
	ErrNoOpBill              = errors.New("bill must have a previous balance or transactions")
	ErrOverpayment           = errors.New("payment exceeds remaining balance")

	// ErrStorageUnavailable marks a transient storage failure. Callers may
	// retry the same logical operation with the same idempotency key.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// MonthKey identifies one calendar month as "YYYY-MM".
type MonthKey string

func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.Format("2006-01"))
}

func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	return MonthKeyOf(t), nil
}

func (k MonthKey) String() string { return string(k) }

func (k MonthKey) Validate() error {
	_, err := ParseMonthKey(string(k))
	return err
}

// Category is one of the fixed expense labels.
type Category string

const (
	CategoryFood          Category = "food"
	CategoryTransport     Category = "transport"
	CategoryGroceries     Category = "groceries"
	CategoryShopping      Category = "shopping"
	CategoryHealthcare    Category = "healthcare"
	CategoryEntertainment Category = "entertainment"
	CategoryEducation     Category = "education"
	CategoryMobile        Category = "mobile"
	CategoryHousehold     Category = "household"
	CategoryPersonal      Category = "personal"
	CategoryGifts         Category = "gifts"
	CategoryOthers        Category = "others"
)

var allCategories = []Category{
	CategoryFood, CategoryTransport, CategoryGroceries, CategoryShopping,
	CategoryHealthcare, CategoryEntertainment, CategoryEducation,
	CategoryMobile, CategoryHousehold, CategoryPersonal, CategoryGifts,
	CategoryOthers,
}

func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// PaymentKind distinguishes cash spend from card-reserved spend.
type PaymentKind string

const (
	PayCash PaymentKind = "cash"
	PayCard PaymentKind = "card"
)

// PaymentMethod tags an expense with how it was paid. CardID is required
// iff Kind is PayCard.
type PaymentMethod struct {
	Kind   PaymentKind
	CardID string
}

func (pm PaymentMethod) Validate() error {
	switch pm.Kind {
	case PayCash:
		return nil
	case PayCard:
		if strings.TrimSpace(pm.CardID) == "" {
			return ErrMissingCardSelection
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPaymentKind, pm.Kind)
	}
}

// Expense is one discrete spend record. Immutable once created; the only
// mutation is a hard delete with a compensating ledger reversal.
type Expense struct {
	ID        string
	MonthKey  MonthKey
	Name      string
	Amount    Money
	Category  Category
	Method    PaymentMethod
	CreatedAt time.Time
}

func (e Expense) Validate() error {
	if err := e.MonthKey.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if len(e.Name) > 200 {
		return ErrNameTooLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, e.Category)
	}
	return e.Method.Validate()
}

// ObligationKind separates recurring fixed expenses from recurring
// deposit (DPS) installments. Both are deducted from salary up front.
type ObligationKind string

const (
	ObligationFixed ObligationKind = "fixed"
	ObligationDPS   ObligationKind = "dps"
)

func (k ObligationKind) Valid() bool {
	return k == ObligationFixed || k == ObligationDPS
}

// Obligation is a recurring monthly deduction. Never hard-deleted:
// deactivation removes it from future derivations without losing history.
type Obligation struct {
	ID        string
	Name      string
	Kind      ObligationKind
	Amount    Money
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o Obligation) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return ErrEmptyName
	}
	if !o.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidObligationKind, o.Kind)
	}
	return o.Amount.Validate()
}

// PaymentStatus is the per-month paid checkmark of an obligation. It is a
// checklist only: flipping it never changes the ledger's monetary totals,
// because obligations are pre-deducted at salary time.
type PaymentStatus struct {
	ObligationID string
	MonthKey     MonthKey
	IsPaid       bool
	PaidDate     *time.Time
}

// FutureSaving is a named allocation toward a savings goal. Its active
// total is tracked on the ledger for display only and is never
// subtracted from expendables; the money stays spendable until it
// actually leaves as an expense or obligation.
type FutureSaving struct {
	ID        string
	Name      string
	Amount    Money
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (f FutureSaving) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmptyName
	}
	return f.Amount.Validate()
}

// CreditCard is a card definition. Like obligations, cards are soft
// deleted; a deactivated card's bill drops out of future derivations.
type CreditCard struct {
	ID          string
	Name        string
	CreditLimit Money
	Color       string
	IsActive    bool
	CreatedAt   time.Time
}

func (c CreditCard) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.CreditLimit.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Bill is a card's monthly statement aggregate.
//
// TotalPending = PreviousBill + ThisMonthTransactions and
// RemainingBalance = TotalPending - PaidAmount hold at all times;
// IsPaidFull is true iff RemainingBalance is exactly zero cents.
type Bill struct {
	CardID                string
	MonthKey              MonthKey
	PreviousBill          Money
	ThisMonthTransactions Money
	TotalPending          Money
	PaidAmount            Money
	RemainingBalance      Money
	IsPaidFull            bool
}

// MonthlyLedger is the aggregate state of one calendar month. It is owned
// by the mutation coordinator; everything else reads snapshots.
type MonthlyLedger struct {
	Key            MonthKey
	SalaryReceived bool
	SalaryAmount   Money

	TotalFixedExpenses   Money
	TotalDPSAmount       Money
	TotalCreditCardBills Money
	TotalFutureSavings   Money
	InitialExpendables   Money

	ReservedAmount     Money
	CashSpent          Money
	CurrentExpendables Money

	ExpenseCount int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SpentPercentage reports how much of the initial expendables is gone,
// rounded to whole percent. Zero when no salary has been derived yet.
func (m MonthlyLedger) SpentPercentage() int {
	if m.InitialExpendables.Cents == 0 {
		return 0
	}
	spent := m.InitialExpendables.Cents - m.CurrentExpendables.Cents
	return int((spent*100 + m.InitialExpendables.Cents/2) / m.InitialExpendables.Cents)
}

// SpendingWarning is true once half or more of the month's expendables
// has been consumed.
func (m MonthlyLedger) SpendingWarning() bool {
	if m.InitialExpendables.Cents == 0 {
		return false
	}
	remaining := m.CurrentExpendables.Cents * 100 / m.InitialExpendables.Cents
	return remaining <= 50
}
