package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ConnecteDigital/connect-financeiro/internal/core"
	"github.com/ConnecteDigital/connect-financeiro/internal/report"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorJSON(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// parseDate parses a date string in YYYY-MM-DD format.
func parseDate(dateStr string) (time.Time, error) {
	return time.Parse("2006-01-02", dateStr)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// JSON shapes returned to the dashboard app. Amounts carry both raw cents
// and the pt-BR formatted string so clients don't re-implement formatting.

type moneyJSON struct {
	Cents     int64  `json:"cents"`
	Formatted string `json:"formatted"`
}

func toMoneyJSON(m core.Money) moneyJSON {
	return moneyJSON{Cents: m.Cents, Formatted: m.FormatBRL()}
}

type transactionJSON struct {
	ID           string    `json:"id"`
	CategoryID   string    `json:"categoryId,omitempty"`
	CategoryName string    `json:"categoryName,omitempty"`
	Description  string    `json:"description"`
	Amount       moneyJSON `json:"amount"`
	Kind         string    `json:"kind"`
	Date         time.Time `json:"date"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:           t.ID,
		CategoryID:   t.CategoryID,
		CategoryName: t.CategoryName,
		Description:  t.Description,
		Amount:       toMoneyJSON(t.Amount),
		Kind:         string(t.Kind),
		Date:         t.Date,
	}
}

type categoryBucketJSON struct {
	Category string    `json:"category"`
	Amount   moneyJSON `json:"amount"`
}

type transactionLineJSON struct {
	Description string    `json:"description"`
	Amount      moneyJSON `json:"amount"`
	Date        time.Time `json:"date"`
}

type reportJSON struct {
	Period             string                `json:"period"`
	Kind               string                `json:"kind"`
	Start              time.Time             `json:"start"`
	End                time.Time             `json:"end"`
	TotalIncome        moneyJSON             `json:"totalIncome"`
	TotalExpense       moneyJSON             `json:"totalExpense"`
	Balance            moneyJSON             `json:"balance"`
	TransactionCount   int                   `json:"transactionCount"`
	ExpensesByCategory []categoryBucketJSON  `json:"expensesByCategory"`
	TopIncomes         []transactionLineJSON `json:"topIncomes"`
	TopExpenses        []transactionLineJSON `json:"topExpenses"`
}

func toReportJSON(r report.Report) reportJSON {
	out := reportJSON{
		Period:             r.Period,
		Kind:               string(r.Kind),
		Start:              r.Window.Start,
		End:                r.Window.End,
		TotalIncome:        toMoneyJSON(r.TotalIncome),
		TotalExpense:       toMoneyJSON(r.TotalExpense),
		Balance:            toMoneyJSON(r.Balance),
		TransactionCount:   r.TransactionCount,
		ExpensesByCategory: []categoryBucketJSON{},
		TopIncomes:         []transactionLineJSON{},
		TopExpenses:        []transactionLineJSON{},
	}
	for _, b := range r.ExpensesByCategory {
		out.ExpensesByCategory = append(out.ExpensesByCategory, categoryBucketJSON{
			Category: b.Category,
			Amount:   toMoneyJSON(b.Amount),
		})
	}
	for _, l := range r.TopIncomes {
		out.TopIncomes = append(out.TopIncomes, transactionLineJSON{
			Description: l.Description,
			Amount:      toMoneyJSON(l.Amount),
			Date:        l.Date,
		})
	}
	for _, l := range r.TopExpenses {
		out.TopExpenses = append(out.TopExpenses, transactionLineJSON{
			Description: l.Description,
			Amount:      toMoneyJSON(l.Amount),
			Date:        l.Date,
		})
	}
	return out
}
