// Package dispatch contains the batch controller that turns ledgers into
// delivered reports: one sequential pass over the eligible users, with
// per-user failure isolation and a fixed inter-send delay protecting the
// outbound channel's quota.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ConnecteDigital/connect-financeiro/internal/core"
	applog "github.com/ConnecteDigital/connect-financeiro/internal/log"
	"github.com/ConnecteDigital/connect-financeiro/internal/report"
)

// Ports consumed by the dispatcher. The implementations live in storage
// (ledger, users, audit) and whatsapp/amqp (channel); tests supply fakes.
type (
	// Ledger is the transaction store, scoped by user and date range.
	// Implementations return transactions ordered by timestamp descending
	// with the category name resolved.
	Ledger interface {
		FindTransactions(ctx context.Context, userID string, start, end time.Time) ([]core.Transaction, error)
	}

	// Users lists report recipients.
	Users interface {
		// ListEligible returns every user with a WhatsApp number configured.
		ListEligible(ctx context.Context) ([]core.User, error)
		Get(ctx context.Context, id string) (core.User, error)
	}

	// Channel is the outbound messaging channel.
	Channel interface {
		Send(ctx context.Context, destination, body string) error
	}

	// AuditLog records successful sends. Append failures are swallowed by
	// the dispatcher; implementations need not be reliable.
	AuditLog interface {
		Append(ctx context.Context, entry ReportSent) error
	}
)

// ReportSent is one audit log entry.
type ReportSent struct {
	UserID   string
	Kind     core.PeriodKind
	Period   string
	SentAt   time.Time
	WhatsApp string
}

// DeliveryOutcome is the per-user result of one delivery attempt.
type DeliveryOutcome struct {
	Success     bool
	Error       string
	Destination string
	Timestamp   time.Time
}

// Summary accumulates the result of a batch run.
type Summary struct {
	Sent   int
	Total  int
	Errors []string
}

var (
	// ErrNoDestination rejects an on-demand send for a user without a
	// WhatsApp number. Boundary validation, never enters the loop.
	ErrNoDestination = errors.New("usuário não possui WhatsApp cadastrado")

	// ErrRunInProgress guards against overlapping batch runs of the same
	// period kind, e.g. a retried scheduler trigger.
	ErrRunInProgress = errors.New("batch run already in progress for this period kind")
)

const (
	weeklyDelay  = 1 * time.Second
	monthlyDelay = 2 * time.Second
)

type userState string

const (
	stateProcessing userState = "PROCESSING"
	stateSent       userState = "SENT"
	stateSkipped    userState = "SKIPPED"
	stateFailed     userState = "FAILED"
)

// Dispatcher orchestrates report generation and delivery. All collaborators
// are injected; there is no package-level channel client.
type Dispatcher struct {
	ledger  Ledger
	users   Users
	channel Channel
	audit   AuditLog
	topN    int

	now   func() time.Time
	sleep func(time.Duration)

	mu      sync.Mutex
	running map[core.PeriodKind]bool
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces the wall clock. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithSleep replaces the inter-send sleep. Used in tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(d *Dispatcher) { d.sleep = sleep }
}

// New builds a Dispatcher around its four ports.
func New(ledger Ledger, users Users, channel Channel, audit AuditLog, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ledger:  ledger,
		users:   users,
		channel: channel,
		audit:   audit,
		topN:    report.DefaultTopN,
		now:     time.Now,
		sleep:   time.Sleep,
		running: make(map[core.PeriodKind]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunBatch generates and delivers the last full period's report to every
// eligible user, strictly sequentially. Individual failures are collected
// into the summary; only boundary validation and an overlapping run abort
// the batch.
func (d *Dispatcher) RunBatch(ctx context.Context, kind core.PeriodKind) (Summary, error) {
	window, err := report.ResolvePrevious(kind, d.now())
	if err != nil {
		return Summary{}, err
	}

	if err := d.begin(kind); err != nil {
		return Summary{}, err
	}
	defer d.end(kind)

	slog.InfoContext(ctx, "Batch run started",
		applog.FieldComponent, applog.ComponentDispatch,
		applog.FieldOperation, applog.OpBatchRun,
		applog.FieldPeriodKind, string(kind),
		applog.FieldPeriodLabel, window.Label)

	users, err := d.users.ListEligible(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list eligible users: %w", err)
	}

	summary := Summary{Total: len(users)}
	if len(users) == 0 {
		slog.InfoContext(ctx, "No eligible users, nothing to send",
			applog.FieldComponent, applog.ComponentDispatch,
			applog.FieldPeriodKind, string(kind))
		return summary, nil
	}

	delay := interSendDelay(kind)
	for _, u := range users {
		state, outcome := d.processUser(ctx, u, window)
		switch state {
		case stateSkipped:
			// Zero activity in the window: no report, no delay, no error.
			continue
		case stateSent:
			summary.Sent++
		case stateFailed:
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", u.Name, outcome.Error))
		}
		d.sleep(delay)
	}

	slog.InfoContext(ctx, "Batch run completed",
		applog.FieldComponent, applog.ComponentDispatch,
		applog.FieldOperation, applog.OpBatchRun,
		applog.FieldPeriodKind, string(kind),
		applog.FieldSent, summary.Sent,
		applog.FieldTotal, summary.Total,
		applog.FieldErrors, len(summary.Errors))

	return summary, nil
}

// SendNow generates and delivers one report for a single user. The window
// is resolved around ref (or the current instant) rather than the previous
// period, and a report is sent even when the window is empty. No inter-send
// delay applies.
func (d *Dispatcher) SendNow(ctx context.Context, userID string, kind core.PeriodKind, ref *time.Time) (DeliveryOutcome, error) {
	refAt := d.now()
	if ref != nil {
		refAt = *ref
	}
	window, err := report.Resolve(kind, refAt)
	if err != nil {
		return DeliveryOutcome{}, err
	}

	u, err := d.users.Get(ctx, userID)
	if err != nil {
		return DeliveryOutcome{}, fmt.Errorf("get user: %w", err)
	}
	if !u.Eligible() {
		return DeliveryOutcome{}, ErrNoDestination
	}

	outcome, err := d.deliver(ctx, u, window)
	if err != nil {
		return outcome, err
	}

	slog.InfoContext(ctx, "On-demand report sent",
		applog.FieldComponent, applog.ComponentDispatch,
		applog.FieldOperation, applog.OpSendNow,
		applog.FieldUserID, u.ID,
		applog.FieldPeriodKind, string(kind),
		applog.FieldPeriodLabel, window.Label)

	return outcome, nil
}

// processUser fetches, builds, renders, sends and audits one user's report.
// Every error is absorbed here so one user's failure never reaches
// another's processing.
func (d *Dispatcher) processUser(ctx context.Context, u core.User, window report.Window) (userState, DeliveryOutcome) {
	slog.DebugContext(ctx, "Processing user",
		applog.FieldComponent, applog.ComponentDispatch,
		applog.FieldUserID, u.ID,
		"state", string(stateProcessing))

	txs, err := d.ledger.FindTransactions(ctx, u.ID, window.Start, window.End)
	if err != nil {
		return stateFailed, d.failure(ctx, u, fmt.Errorf("fetch transactions: %w", err))
	}
	if len(txs) == 0 {
		slog.InfoContext(ctx, "User has no transactions in window, skipping",
			applog.FieldComponent, applog.ComponentDispatch,
			applog.FieldUserID, u.ID,
			applog.FieldPeriodLabel, window.Label,
			"state", string(stateSkipped))
		return stateSkipped, DeliveryOutcome{Destination: u.WhatsApp, Timestamp: d.now()}
	}

	outcome, err := d.sendReport(ctx, u, window, txs)
	if err != nil {
		return stateFailed, outcome
	}

	slog.InfoContext(ctx, "Report delivered",
		applog.FieldComponent, applog.ComponentDispatch,
		applog.FieldUserID, u.ID,
		applog.FieldPeriodLabel, window.Label,
		"state", string(stateSent))
	return stateSent, outcome
}

// deliver is the fetch-and-send path shared by SendNow. Unlike processUser
// it propagates errors to the caller.
func (d *Dispatcher) deliver(ctx context.Context, u core.User, window report.Window) (DeliveryOutcome, error) {
	txs, err := d.ledger.FindTransactions(ctx, u.ID, window.Start, window.End)
	if err != nil {
		return d.failure(ctx, u, fmt.Errorf("fetch transactions: %w", err)), err
	}
	return d.sendReport(ctx, u, window, txs)
}

// sendReport builds, renders, sends and audits one report.
func (d *Dispatcher) sendReport(ctx context.Context, u core.User, window report.Window, txs []core.Transaction) (DeliveryOutcome, error) {
	rec := report.Build(window, report.Aggregate(txs, window, d.topN))
	body := report.RenderMessage(rec, u.Name)

	if err := d.channel.Send(ctx, u.WhatsApp, body); err != nil {
		return d.failure(ctx, u, fmt.Errorf("send report: %w", err)), err
	}

	sentAt := d.now()
	// Best effort: a missing audit entry must never fail a delivered report.
	if err := d.audit.Append(ctx, ReportSent{
		UserID:   u.ID,
		Kind:     window.Kind,
		Period:   window.Label,
		SentAt:   sentAt,
		WhatsApp: u.WhatsApp,
	}); err != nil {
		slog.DebugContext(ctx, "Audit log append failed, ignoring",
			applog.FieldComponent, applog.ComponentDispatch,
			applog.FieldOperation, applog.OpAudit,
			applog.FieldUserID, u.ID,
			applog.FieldError, err.Error())
	}

	return DeliveryOutcome{Success: true, Destination: u.WhatsApp, Timestamp: sentAt}, nil
}

func (d *Dispatcher) failure(ctx context.Context, u core.User, err error) DeliveryOutcome {
	fields := applog.NewFields().
		WithComponent(applog.ComponentDispatch).
		WithUser(u.ID, u.Name).
		WithDelivery(u.WhatsApp, false).
		WithError(err)
	slog.WarnContext(ctx, "User processing failed", fields.ToSlice()...)
	return DeliveryOutcome{
		Error:       err.Error(),
		Destination: u.WhatsApp,
		Timestamp:   d.now(),
	}
}

// begin marks a run of the given kind as in progress.
func (d *Dispatcher) begin(kind core.PeriodKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running[kind] {
		return ErrRunInProgress
	}
	d.running[kind] = true
	return nil
}

func (d *Dispatcher) end(kind core.PeriodKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running[kind] = false
}

func interSendDelay(kind core.PeriodKind) time.Duration {
	if kind == core.Monthly {
		return monthlyDelay
	}
	return weeklyDelay
}
