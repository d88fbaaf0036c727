// Package storage is the SQLite persistence layer. It backs the dispatcher's
// ledger, user and audit ports and the CRUD surface of the HTTP API.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ConnecteDigital/connect-financeiro/internal/core"
	"github.com/ConnecteDigital/connect-financeiro/internal/dispatch"
	applog "github.com/ConnecteDigital/connect-financeiro/internal/log"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound          = errors.New("registro não encontrado")
	ErrDuplicateCategory = errors.New("categoria já existe para este usuário")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// FindTransactions implements dispatch.Ledger. Rows come back newest first
// with the category name resolved; transactions without a category keep an
// empty name.
func (r *SQLiteRepository) FindTransactions(ctx context.Context, userID string, start, end time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.user_id, COALESCE(t.category_id, ''), COALESCE(c.name, ''),
		       t.description, t.amount_cents, t.kind, t.occurred_at, t.created_at
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ? AND t.occurred_at >= ? AND t.occurred_at <= ?
		ORDER BY t.occurred_at DESC`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListTransactionsFilter narrows ListTransactions. Zero values mean no filter.
type ListTransactionsFilter struct {
	Kind       core.TransactionKind
	CategoryID string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, filter ListTransactionsFilter) ([]core.Transaction, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT t.id, t.user_id, COALESCE(t.category_id, ''), COALESCE(c.name, ''),
		       t.description, t.amount_cents, t.kind, t.occurred_at, t.created_at
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ?`)
	args := []any{userID}

	if filter.Kind != "" {
		sb.WriteString(" AND t.kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.CategoryID != "" {
		sb.WriteString(" AND t.category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if !filter.From.IsZero() {
		sb.WriteString(" AND t.occurred_at >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		sb.WriteString(" AND t.occurred_at <= ?")
		args = append(args, filter.To)
	}
	sb.WriteString(" ORDER BY t.occurred_at DESC")
	if filter.Limit > 0 {
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	t.ID = uuid.NewString()
	t.CreatedAt = time.Now()

	var categoryID any
	if t.CategoryID != "" {
		categoryID = t.CategoryID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, category_id, description, amount_cents, kind, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, categoryID, t.Description, t.Amount.Cents, string(t.Kind), t.Date, t.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOperation, applog.OpCreate,
		applog.FieldUserID, t.UserID,
		applog.FieldAmountCents, t.Amount.Cents,
		"kind", string(t.Kind))

	return t, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, color, created_at
		FROM categories
		WHERE user_id = ?
		ORDER BY name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	c.ID = uuid.NewString()
	c.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, user_id, name, color, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Color, c.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.Category{}, ErrDuplicateCategory
		}
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	return c, nil
}

// ListEligible implements dispatch.Users: every user with a WhatsApp number.
func (r *SQLiteRepository) ListEligible(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, whatsapp, created_at
		FROM users
		WHERE whatsapp != ''
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query eligible users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.WhatsApp, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, whatsapp, created_at
		FROM users
		WHERE id = ?`,
		id).Scan(&u.ID, &u.Name, &u.Email, &u.WhatsApp, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpsertUser mirrors an authenticated identity into the local store so that
// the ledger and the audit log always have a user row to reference.
func (r *SQLiteRepository) UpsertUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, whatsapp, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, whatsapp = excluded.whatsapp`,
		u.ID, u.Name, u.Email, u.WhatsApp, u.CreatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

// Append implements dispatch.AuditLog.
func (r *SQLiteRepository) Append(ctx context.Context, entry dispatch.ReportSent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO report_sent (id, user_id, kind, period, sent_at, whatsapp_number)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), entry.UserID, string(entry.Kind), entry.Period, entry.SentAt, entry.WhatsApp)
	if err != nil {
		return fmt.Errorf("append report audit entry: %w", err)
	}
	return nil
}

// ListReportsSent returns a user's audit entries, newest first.
func (r *SQLiteRepository) ListReportsSent(ctx context.Context, userID string, limit int) ([]dispatch.ReportSent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, kind, period, sent_at, whatsapp_number
		FROM report_sent
		WHERE user_id = ?
		ORDER BY sent_at DESC
		LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query report audit: %w", err)
	}
	defer rows.Close()

	var entries []dispatch.ReportSent
	for rows.Next() {
		var e dispatch.ReportSent
		var kind string
		if err := rows.Scan(&e.UserID, &kind, &e.Period, &e.SentAt, &e.WhatsApp); err != nil {
			return nil, fmt.Errorf("scan report audit entry: %w", err)
		}
		e.Kind = core.PeriodKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var txs []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var kind string
		if err := rows.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.CategoryName,
			&t.Description, &t.Amount.Cents, &kind, &t.Date, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = core.TransactionKind(kind)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
