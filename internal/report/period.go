// Package report implements the report aggregation pipeline: resolving a
// period into a time window, reducing a user's transactions into summary
// statistics, and rendering the WhatsApp message body.
//
// Everything in this package is a pure function of its inputs; "now" only
// ever selects the window, never the aggregation itself.
package report

import (
	"fmt"
	"time"

	"github.com/ConnecteDigital/connect-financeiro/internal/core"
)

// Window is the inclusive time range [Start, End] a report covers, together
// with its human-readable pt-BR label.
type Window struct {
	Kind  core.PeriodKind
	Start time.Time
	End   time.Time
	Label string
}

var monthNamesPT = [12]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// Resolve returns the window containing ref for the given period kind.
// Weeks start on Monday and end on Sunday; months run first through last day.
func Resolve(kind core.PeriodKind, ref time.Time) (Window, error) {
	switch kind {
	case core.Weekly:
		start := startOfWeek(ref)
		end := start.AddDate(0, 0, 7).Add(-time.Nanosecond)
		return Window{
			Kind:  kind,
			Start: start,
			End:   end,
			Label: fmt.Sprintf("Semana de %02d/%02d a %02d/%02d/%d",
				start.Day(), int(start.Month()), end.Day(), int(end.Month()), end.Year()),
		}, nil
	case core.Monthly:
		start := startOfMonth(ref)
		end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
		name := monthNamesPT[start.Month()-1]
		return Window{
			Kind:  kind,
			Start: start,
			End:   end,
			Label: fmt.Sprintf("%s %d", capitalizeFirst(name), start.Year()),
		}, nil
	default:
		return Window{}, core.ErrInvalidPeriodKind
	}
}

// ResolvePrevious returns the last full period before now. Scheduled batch
// runs always report on the period that just closed, never the current one.
func ResolvePrevious(kind core.PeriodKind, now time.Time) (Window, error) {
	switch kind {
	case core.Weekly:
		return Resolve(kind, now.AddDate(0, 0, -7))
	case core.Monthly:
		// Step through the first of the month so short months don't
		// normalize into the wrong one.
		return Resolve(kind, startOfMonth(now).AddDate(0, -1, 0))
	default:
		return Window{}, core.ErrInvalidPeriodKind
	}
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// SundayWeekRange returns the Sunday-start week containing ref.
//
// Every report path uses Monday-start weeks (Resolve); this Sunday-start
// variant survives only for the dashboard's default range and is kept for
// compatibility with the historical behavior.
func SundayWeekRange(ref time.Time) (time.Time, time.Time) {
	offset := int(ref.Weekday())
	start := truncateToDay(ref).AddDate(0, 0, -offset)
	end := start.AddDate(0, 0, 7).Add(-time.Nanosecond)
	return start, end
}

func startOfWeek(t time.Time) time.Time {
	// Monday-start: Monday offset 0 ... Sunday offset 6.
	offset := (int(t.Weekday()) + 6) % 7
	return truncateToDay(t).AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] = r[0] - 'a' + 'A'
	}
	return string(r)
}
