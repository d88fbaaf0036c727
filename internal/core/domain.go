package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionKind = "INCOME"
	Expense TransactionKind = "EXPENSE"
)

const (
	Weekly  PeriodKind = "weekly"
	Monthly PeriodKind = "monthly"
)

type (
	TransactionKind string

	PeriodKind string

	// Transaction is a single ledger entry. The report pipeline only reads
	// transactions; they are created and mutated by the CRUD layer.
	Transaction struct {
		ID           string
		UserID       string
		CategoryID   string // empty when uncategorized
		CategoryName string // resolved by the ledger store, empty when uncategorized
		Description  string
		Amount       Money
		Kind         TransactionKind
		Date         time.Time
		CreatedAt    time.Time
	}

	// Category groups expense transactions. Names are unique per user.
	Category struct {
		ID        string
		UserID    string
		Name      string
		Color     string
		CreatedAt time.Time
	}

	// User is a report recipient. A user is eligible for delivery when
	// WhatsApp is non-empty.
	User struct {
		ID        string
		Name      string
		Email     string
		WhatsApp  string
		CreatedAt time.Time
	}
)

var (
	ErrInvalidPeriodKind = errors.New("invalid period kind")
	ErrInvalidKind       = errors.New("invalid transaction kind")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyDescription  = errors.New("empty description")
	ErrEmptyName         = errors.New("empty name")
	ErrZeroDate          = errors.New("date cannot be zero")
)

// ParsePeriodKind validates a caller-supplied period kind string.
func ParsePeriodKind(s string) (PeriodKind, error) {
	switch PeriodKind(s) {
	case Weekly, Monthly:
		return PeriodKind(s), nil
	default:
		return "", ErrInvalidPeriodKind
	}
}

func (k TransactionKind) Valid() bool {
	return k == Income || k == Expense
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

func (c Category) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return nil
}

// Eligible reports whether the user has a delivery destination configured.
func (u User) Eligible() bool {
	return strings.TrimSpace(u.WhatsApp) != ""
}

// Validate checks the identity fields. WhatsApp stays optional; users
// without it are simply not eligible for report delivery.
func (u User) Validate() error {
	if len(strings.TrimSpace(u.Name)) == 0 {
		return ErrEmptyName
	}
	if len(strings.TrimSpace(u.Email)) == 0 {
		return errors.New("empty email")
	}
	return nil
}
