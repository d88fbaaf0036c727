package report

import (
	"errors"
	"testing"
	"time"

	"github.com/ConnecteDigital/connect-financeiro/internal/core"
)

func TestResolveWeekly(t *testing.T) {
	tests := []struct {
		name      string
		ref       time.Time
		wantStart time.Time
		wantLabel string
	}{
		{
			name:      "midweek reference",
			ref:       time.Date(2024, time.March, 27, 15, 30, 0, 0, time.UTC), // Wednesday
			wantStart: time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC),   // Monday
			wantLabel: "Semana de 25/03 a 31/03/2024",
		},
		{
			name:      "monday maps to its own week",
			ref:       time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC),
			wantLabel: "Semana de 25/03 a 31/03/2024",
		},
		{
			name:      "sunday still belongs to the monday-start week",
			ref:       time.Date(2024, time.March, 31, 23, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC),
			wantLabel: "Semana de 25/03 a 31/03/2024",
		},
		{
			name:      "week spanning a month boundary",
			ref:       time.Date(2024, time.April, 1, 10, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
			wantLabel: "Semana de 01/04 a 07/04/2024",
		},
		{
			name:      "week spanning a year boundary",
			ref:       time.Date(2024, time.December, 31, 12, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.December, 30, 0, 0, 0, 0, time.UTC),
			wantLabel: "Semana de 30/12 a 05/01/2025",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Resolve(core.Weekly, tt.ref)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !w.Start.Equal(tt.wantStart) {
				t.Errorf("Start = %v, want %v", w.Start, tt.wantStart)
			}
			wantEnd := tt.wantStart.AddDate(0, 0, 7).Add(-time.Nanosecond)
			if !w.End.Equal(wantEnd) {
				t.Errorf("End = %v, want %v", w.End, wantEnd)
			}
			if w.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", w.Label, tt.wantLabel)
			}
		})
	}
}

func TestResolveMonthly(t *testing.T) {
	tests := []struct {
		name      string
		ref       time.Time
		wantStart time.Time
		wantEnd   time.Time
		wantLabel string
	}{
		{
			name:      "march",
			ref:       time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
			wantLabel: "Março 2024",
		},
		{
			name:      "leap february",
			ref:       time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
			wantLabel: "Fevereiro 2024",
		},
		{
			name:      "december",
			ref:       time.Date(2023, time.December, 31, 23, 59, 0, 0, time.UTC),
			wantStart: time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
			wantLabel: "Dezembro 2023",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Resolve(core.Monthly, tt.ref)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !w.Start.Equal(tt.wantStart) || !w.End.Equal(tt.wantEnd) {
				t.Errorf("window = [%v, %v], want [%v, %v]", w.Start, w.End, tt.wantStart, tt.wantEnd)
			}
			if w.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", w.Label, tt.wantLabel)
			}
		})
	}
}

func TestResolveInvalidKind(t *testing.T) {
	if _, err := Resolve(core.PeriodKind("daily"), time.Now()); !errors.Is(err, core.ErrInvalidPeriodKind) {
		t.Errorf("Resolve(daily) error = %v, want ErrInvalidPeriodKind", err)
	}
	if _, err := ResolvePrevious(core.PeriodKind(""), time.Now()); !errors.Is(err, core.ErrInvalidPeriodKind) {
		t.Errorf("ResolvePrevious() error = %v, want ErrInvalidPeriodKind", err)
	}
}

func TestResolvePrevious(t *testing.T) {
	t.Run("weekly resolves the closed week", func(t *testing.T) {
		// Wednesday April 3rd: the last full week is March 25-31.
		now := time.Date(2024, time.April, 3, 8, 0, 0, 0, time.UTC)
		w, err := ResolvePrevious(core.Weekly, now)
		if err != nil {
			t.Fatalf("ResolvePrevious() error = %v", err)
		}
		if w.Label != "Semana de 25/03 a 31/03/2024" {
			t.Errorf("Label = %q", w.Label)
		}
	})

	t.Run("monthly resolves the closed month", func(t *testing.T) {
		now := time.Date(2024, time.April, 1, 8, 0, 0, 0, time.UTC)
		w, err := ResolvePrevious(core.Monthly, now)
		if err != nil {
			t.Fatalf("ResolvePrevious() error = %v", err)
		}
		if w.Label != "Março 2024" {
			t.Errorf("Label = %q, want Março 2024", w.Label)
		}
	})

	t.Run("march 31 resolves february, not a normalized month", func(t *testing.T) {
		// Naive AddDate(0, -1, 0) from March 31 lands on March 2nd.
		now := time.Date(2024, time.March, 31, 8, 0, 0, 0, time.UTC)
		w, err := ResolvePrevious(core.Monthly, now)
		if err != nil {
			t.Fatalf("ResolvePrevious() error = %v", err)
		}
		if w.Label != "Fevereiro 2024" {
			t.Errorf("Label = %q, want Fevereiro 2024", w.Label)
		}
	})

	t.Run("january resolves december of previous year", func(t *testing.T) {
		now := time.Date(2024, time.January, 15, 8, 0, 0, 0, time.UTC)
		w, err := ResolvePrevious(core.Monthly, now)
		if err != nil {
			t.Fatalf("ResolvePrevious() error = %v", err)
		}
		if w.Label != "Dezembro 2023" {
			t.Errorf("Label = %q, want Dezembro 2023", w.Label)
		}
	})
}

func TestWindowContains(t *testing.T) {
	w, err := Resolve(core.Monthly, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "start bound", at: w.Start, want: true},
		{name: "end bound", at: w.End, want: true},
		{name: "inside", at: time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC), want: true},
		{name: "just before start", at: w.Start.Add(-time.Nanosecond), want: false},
		{name: "just after end", at: w.End.Add(time.Nanosecond), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestSundayWeekRange(t *testing.T) {
	// Wednesday March 27th 2024: Sunday-start week is March 24-30.
	start, end := SundayWeekRange(time.Date(2024, time.March, 27, 10, 0, 0, 0, time.UTC))
	if !start.Equal(time.Date(2024, time.March, 24, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v, want Sunday March 24", start)
	}
	wantEnd := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if !end.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", end, wantEnd)
	}

	// A Sunday reference starts its own week.
	start, _ = SundayWeekRange(time.Date(2024, time.March, 24, 23, 0, 0, 0, time.UTC))
	if !start.Equal(time.Date(2024, time.March, 24, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v, want the same Sunday", start)
	}
}
