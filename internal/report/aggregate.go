package report

import (
	"sort"
	"time"

	"github.com/ConnecteDigital/connect-financeiro/internal/core"
)

// DefaultTopN is the number of top transactions every call site hands to
// Aggregate. The renderer shows fewer (see message.go); this is the upper
// bound carried in the report record.
const DefaultTopN = 5

// CategoryBucket accumulates the expense total for one category name.
type CategoryBucket struct {
	Category string
	Amount   core.Money
}

// TransactionLine is the slice of a transaction a report carries.
type TransactionLine struct {
	Description string
	Amount      core.Money
	Date        time.Time
}

// Summary holds the aggregation output for one window.
type Summary struct {
	TotalIncome        core.Money
	TotalExpense       core.Money
	Balance            core.Money
	TransactionCount   int
	ExpensesByCategory []CategoryBucket
	TopIncomes         []TransactionLine
	TopExpenses        []TransactionLine
}

// Report is the assembled record handed to the renderer and the JSON API.
type Report struct {
	Period string
	Kind   core.PeriodKind
	Window Window
	Summary
}

// Aggregate reduces the transactions falling inside w into totals, the
// per-category expense breakdown, and the top-N income/expense lists.
//
// The result is a pure function of (txs restricted to w): recomputing from
// the same inputs yields an identical Summary. Amount ties in every ordering
// are broken by the window order (timestamp descending), so the output does
// not depend on the input ordering either.
func Aggregate(txs []core.Transaction, w Window, topN int) Summary {
	inWindow := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if w.Contains(t.Date) {
			inWindow = append(inWindow, t)
		}
	}
	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].Date.After(inWindow[j].Date)
	})

	var s Summary
	s.TransactionCount = len(inWindow)

	bucketIdx := make(map[string]int)
	for _, t := range inWindow {
		switch t.Kind {
		case core.Income:
			s.TotalIncome.Cents += t.Amount.Cents
		case core.Expense:
			s.TotalExpense.Cents += t.Amount.Cents
			if t.CategoryName != "" {
				i, ok := bucketIdx[t.CategoryName]
				if !ok {
					i = len(s.ExpensesByCategory)
					bucketIdx[t.CategoryName] = i
					s.ExpensesByCategory = append(s.ExpensesByCategory, CategoryBucket{Category: t.CategoryName})
				}
				s.ExpensesByCategory[i].Amount.Cents += t.Amount.Cents
			}
		}
	}
	s.Balance.Cents = s.TotalIncome.Cents - s.TotalExpense.Cents

	sort.SliceStable(s.ExpensesByCategory, func(i, j int) bool {
		return s.ExpensesByCategory[i].Amount.Cents > s.ExpensesByCategory[j].Amount.Cents
	})

	s.TopIncomes = topByAmount(inWindow, core.Income, topN)
	s.TopExpenses = topByAmount(inWindow, core.Expense, topN)

	return s
}

// Build assembles the report record from a window and its aggregation.
// Pure assembly, no failure modes.
func Build(w Window, s Summary) Report {
	return Report{
		Period:  w.Label,
		Kind:    w.Kind,
		Window:  w,
		Summary: s,
	}
}

// topByAmount selects the first n transactions of the given kind ordered by
// amount descending. The input is already window-ordered (timestamp
// descending) and the sort is stable, so equal amounts keep that order.
func topByAmount(ordered []core.Transaction, kind core.TransactionKind, n int) []TransactionLine {
	lines := make([]TransactionLine, 0, n)
	for _, t := range ordered {
		if t.Kind == kind {
			lines = append(lines, TransactionLine{
				Description: t.Description,
				Amount:      t.Amount,
				Date:        t.Date,
			})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Amount.Cents > lines[j].Amount.Cents
	})
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}
