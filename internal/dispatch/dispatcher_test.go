package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ConnecteDigital/connect-financeiro/internal/core"
)

type fakeLedger struct {
	byUser map[string][]core.Transaction
	err    map[string]error
	calls  []string
}

func (f *fakeLedger) FindTransactions(_ context.Context, userID string, _, _ time.Time) ([]core.Transaction, error) {
	f.calls = append(f.calls, userID)
	if err := f.err[userID]; err != nil {
		return nil, err
	}
	return f.byUser[userID], nil
}

type fakeUsers struct {
	eligible []core.User
	listErr  error
}

func (f *fakeUsers) ListEligible(context.Context) ([]core.User, error) {
	return f.eligible, f.listErr
}

func (f *fakeUsers) Get(_ context.Context, id string) (core.User, error) {
	for _, u := range f.eligible {
		if u.ID == id {
			return u, nil
		}
	}
	return core.User{}, errors.New("user not found")
}

type sentMessage struct {
	destination string
	body        string
}

type fakeChannel struct {
	sent    []sentMessage
	failFor map[string]error
}

func (f *fakeChannel) Send(_ context.Context, destination, body string) error {
	if err := f.failFor[destination]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{destination: destination, body: body})
	return nil
}

type fakeAudit struct {
	entries []ReportSent
	err     error
}

func (f *fakeAudit) Append(_ context.Context, entry ReportSent) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func tx(userID, category, desc string, cents int64, kind core.TransactionKind, date time.Time) core.Transaction {
	return core.Transaction{
		ID:           "tx-" + desc,
		UserID:       userID,
		CategoryID:   "cat-" + category,
		CategoryName: category,
		Description:  desc,
		Amount:       core.Money{Cents: cents},
		Kind:         kind,
		Date:         date,
	}
}

// fixedNow falls inside the week after the reporting window so that
// ResolvePrevious lands on a fully closed week/month.
var fixedNow = time.Date(2024, time.April, 3, 12, 0, 0, 0, time.UTC)

func newTestDispatcher(ledger *fakeLedger, users *fakeUsers, channel *fakeChannel, audit *fakeAudit, slept *[]time.Duration) *Dispatcher {
	return New(ledger, users, channel, audit,
		WithClock(func() time.Time { return fixedNow }),
		WithSleep(func(d time.Duration) { *slept = append(*slept, d) }),
	)
}

func TestRunBatchSendsToEligibleUsers(t *testing.T) {
	inWindow := time.Date(2024, time.March, 26, 10, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{byUser: map[string][]core.Transaction{
		"u1": {tx("u1", "Alimentação", "Mercado", 12050, core.Expense, inWindow)},
		"u2": {tx("u2", "Salário", "Pagamento", 500000, core.Income, inWindow)},
	}}
	users := &fakeUsers{eligible: []core.User{
		{ID: "u1", Name: "Ana", WhatsApp: "11999990001"},
		{ID: "u2", Name: "Bruno", WhatsApp: "11999990002"},
	}}
	channel := &fakeChannel{}
	audit := &fakeAudit{}
	var slept []time.Duration
	d := newTestDispatcher(ledger, users, channel, audit, &slept)

	summary, err := d.RunBatch(context.Background(), core.Weekly)
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}
	if summary.Sent != 2 || summary.Total != 2 {
		t.Errorf("summary = %+v, want Sent=2 Total=2", summary)
	}
	if len(summary.Errors) != 0 {
		t.Errorf("summary.Errors = %v, want empty", summary.Errors)
	}
	if len(channel.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(channel.sent))
	}
	if channel.sent[0].destination != "11999990001" {
		t.Errorf("first destination = %q, want u1 first (sequential order)", channel.sent[0].destination)
	}
	if len(audit.entries) != 2 {
		t.Errorf("audit entries = %d, want 2", len(audit.entries))
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	inWindow := time.Date(2024, time.March, 26, 10, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{
		byUser: map[string][]core.Transaction{
			"u1": {tx("u1", "Lazer", "Cinema", 4000, core.Expense, inWindow)},
			"u3": {tx("u3", "Lazer", "Show", 8000, core.Expense, inWindow)},
		},
		err: map[string]error{"u2": errors.New("db timeout")},
	}
	users := &fakeUsers{eligible: []core.User{
		{ID: "u1", Name: "Ana", WhatsApp: "11999990001"},
		{ID: "u2", Name: "Bruno", WhatsApp: "11999990002"},
		{ID: "u3", Name: "Carla", WhatsApp: "11999990003"},
	}}
	channel := &fakeChannel{}
	var slept []time.Duration
	d := newTestDispatcher(ledger, users, channel, &fakeAudit{}, &slept)

	summary, err := d.RunBatch(context.Background(), core.Weekly)
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}
	if summary.Sent != 2 || summary.Total != 3 {
		t.Errorf("summary = %+v, want Sent=2 Total=3", summary)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("summary.Errors = %v, want exactly one entry", summary.Errors)
	}
	if got := summary.Errors[0]; got != "Bruno: fetch transactions: db timeout" {
		t.Errorf("error entry = %q", got)
	}
	// u2's failure must not stop u3 from being processed.
	if len(ledger.calls) != 3 {
		t.Errorf("ledger called for %d users, want 3", len(ledger.calls))
	}
}

func TestRunBatchSkipsUsersWithoutActivity(t *testing.T) {
	inWindow := time.Date(2024, time.March, 27, 9, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{byUser: map[string][]core.Transaction{
		"u2": {tx("u2", "Transporte", "Uber", 2500, core.Expense, inWindow)},
	}}
	users := &fakeUsers{eligible: []core.User{
		{ID: "u1", Name: "Ana", WhatsApp: "11999990001"},
		{ID: "u2", Name: "Bruno", WhatsApp: "11999990002"},
	}}
	channel := &fakeChannel{}
	var slept []time.Duration
	d := newTestDispatcher(ledger, users, channel, &fakeAudit{}, &slept)

	summary, err := d.RunBatch(context.Background(), core.Weekly)
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}
	if summary.Sent != 1 || summary.Total != 2 || len(summary.Errors) != 0 {
		t.Errorf("summary = %+v, want Sent=1 Total=2 no errors", summary)
	}
	if len(channel.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(channel.sent))
	}
	// Skipped users cost no delay; a single processed user sleeps once.
	if len(slept) != 1 {
		t.Errorf("slept %d times, want 1", len(slept))
	}
}

func TestRunBatchDelayPerKind(t *testing.T) {
	inWindow := time.Date(2024, time.February, 15, 9, 0, 0, 0, time.UTC)
	weeklyWindow := time.Date(2024, time.March, 26, 9, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{byUser: map[string][]core.Transaction{
		"u1": {
			tx("u1", "Casa", "Aluguel", 150000, core.Expense, inWindow),
			tx("u1", "Casa", "Condomínio", 50000, core.Expense, weeklyWindow),
		},
		"u2": {
			tx("u2", "Casa", "Aluguel", 120000, core.Expense, inWindow),
			tx("u2", "Casa", "Luz", 18000, core.Expense, weeklyWindow),
		},
	}}
	users := &fakeUsers{eligible: []core.User{
		{ID: "u1", Name: "Ana", WhatsApp: "11999990001"},
		{ID: "u2", Name: "Bruno", WhatsApp: "11999990002"},
	}}

	tests := []struct {
		name string
		kind core.PeriodKind
		want time.Duration
	}{
		{name: "weekly delay", kind: core.Weekly, want: time.Second},
		{name: "monthly delay", kind: core.Monthly, want: 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var slept []time.Duration
			d := newTestDispatcher(ledger, users, &fakeChannel{}, &fakeAudit{}, &slept)
			if _, err := d.RunBatch(context.Background(), tt.kind); err != nil {
				t.Fatalf("RunBatch() error = %v", err)
			}
			if len(slept) != 2 {
				t.Fatalf("slept %d times, want 2", len(slept))
			}
			for _, got := range slept {
				if got != tt.want {
					t.Errorf("slept %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestRunBatchSendFailureRecorded(t *testing.T) {
	inWindow := time.Date(2024, time.March, 26, 10, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{byUser: map[string][]core.Transaction{
		"u1": {tx("u1", "Lazer", "Cinema", 4000, core.Expense, inWindow)},
	}}
	users := &fakeUsers{eligible: []core.User{
		{ID: "u1", Name: "Ana", WhatsApp: "11999990001"},
	}}
	channel := &fakeChannel{failFor: map[string]error{
		"11999990001": errors.New("twilio 21211"),
	}}
	audit := &fakeAudit{}
	var slept []time.Duration
	d := newTestDispatcher(ledger, users, channel, audit, &slept)

	summary, err := d.RunBatch(context.Background(), core.Weekly)
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}
	if summary.Sent != 0 {
		t.Errorf("summary.Sent = %d, want 0", summary.Sent)
	}
	if len(summary.Errors) != 1 || summary.Errors[0] != "Ana: send report: twilio 21211" {
		t.Errorf("summary.Errors = %v", summary.Errors)
	}
	if len(audit.entries) != 0 {
		t.Errorf("audit entries = %d, want 0 for failed sends", len(audit.entries))
	}
	// Failed sends still pay the delay before the next user.
	if len(slept) != 1 {
		t.Errorf("slept %d times, want 1", len(slept))
	}
}

func TestRunBatchAuditFailureSwallowed(t *testing.T) {
	inWindow := time.Date(2024, time.March, 26, 10, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{byUser: map[string][]core.Transaction{
		"u1": {tx("u1", "Lazer", "Cinema", 4000, core.Expense, inWindow)},
	}}
	users := &fakeUsers{eligible: []core.User{
		{ID: "u1", Name: "Ana", WhatsApp: "11999990001"},
	}}
	channel := &fakeChannel{}
	audit := &fakeAudit{err: errors.New("disk full")}
	var slept []time.Duration
	d := newTestDispatcher(ledger, users, channel, audit, &slept)

	summary, err := d.RunBatch(context.Background(), core.Weekly)
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}
	if summary.Sent != 1 || len(summary.Errors) != 0 {
		t.Errorf("summary = %+v, want the send counted despite audit failure", summary)
	}
}

func TestRunBatchOverlapGuard(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	ledger := &fakeLedger{}
	users := &fakeUsers{eligible: []core.User{
		{ID: "u1", Name: "Ana", WhatsApp: "11999990001"},
	}}
	d := New(ledger, users, &fakeChannel{}, &fakeAudit{},
		WithClock(func() time.Time { return fixedNow }),
		WithSleep(func(time.Duration) {}),
	)
	// Hold the first run open inside ListEligible.
	blocking := &blockingUsers{inner: users, started: started, release: release}
	d.users = blocking

	errCh := make(chan error, 1)
	go func() {
		_, err := d.RunBatch(context.Background(), core.Weekly)
		errCh <- err
	}()
	<-started

	if _, err := d.RunBatch(context.Background(), core.Weekly); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("concurrent weekly run error = %v, want ErrRunInProgress", err)
	}
	// A different kind is not blocked.
	if _, err := d.RunBatch(context.Background(), core.Monthly); err != nil {
		t.Errorf("monthly run during weekly run error = %v, want nil", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Errorf("first run error = %v", err)
	}

	// Once released, the kind can run again.
	if _, err := d.RunBatch(context.Background(), core.Weekly); err != nil {
		t.Errorf("second weekly run error = %v", err)
	}
}

type blockingUsers struct {
	inner   *fakeUsers
	started chan struct{}
	release chan struct{}
	once    bool
}

func (b *blockingUsers) ListEligible(ctx context.Context) ([]core.User, error) {
	if !b.once {
		b.once = true
		close(b.started)
		<-b.release
	}
	return nil, nil
}

func (b *blockingUsers) Get(ctx context.Context, id string) (core.User, error) {
	return b.inner.Get(ctx, id)
}

func TestRunBatchInvalidKind(t *testing.T) {
	d := newTestDispatcher(&fakeLedger{}, &fakeUsers{}, &fakeChannel{}, &fakeAudit{}, &[]time.Duration{})
	if _, err := d.RunBatch(context.Background(), core.PeriodKind("daily")); !errors.Is(err, core.ErrInvalidPeriodKind) {
		t.Errorf("RunBatch(daily) error = %v, want ErrInvalidPeriodKind", err)
	}
}

func TestSendNowDeliversEmptyReport(t *testing.T) {
	ledger := &fakeLedger{}
	users := &fakeUsers{eligible: []core.User{
		{ID: "u1", Name: "Ana", WhatsApp: "11999990001"},
	}}
	channel := &fakeChannel{}
	audit := &fakeAudit{}
	var slept []time.Duration
	d := newTestDispatcher(ledger, users, channel, audit, &slept)

	outcome, err := d.SendNow(context.Background(), "u1", core.Weekly, nil)
	if err != nil {
		t.Fatalf("SendNow() error = %v", err)
	}
	if !outcome.Success {
		t.Errorf("outcome.Success = false, want true")
	}
	// On-demand sends deliver even with an empty window.
	if len(channel.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(channel.sent))
	}
	if len(slept) != 0 {
		t.Errorf("slept %d times, want 0 for on-demand sends", len(slept))
	}
	if len(audit.entries) != 1 {
		t.Errorf("audit entries = %d, want 1", len(audit.entries))
	}
}

func TestSendNowNoDestination(t *testing.T) {
	users := &fakeUsers{eligible: []core.User{
		{ID: "u1", Name: "Ana", WhatsApp: ""},
	}}
	d := newTestDispatcher(&fakeLedger{}, users, &fakeChannel{}, &fakeAudit{}, &[]time.Duration{})

	if _, err := d.SendNow(context.Background(), "u1", core.Weekly, nil); !errors.Is(err, ErrNoDestination) {
		t.Errorf("SendNow() error = %v, want ErrNoDestination", err)
	}
}

func TestSendNowWithReference(t *testing.T) {
	ref := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	inMarch := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{byUser: map[string][]core.Transaction{
		"u1": {tx("u1", "Salário", "Pagamento", 300000, core.Income, inMarch)},
	}}
	users := &fakeUsers{eligible: []core.User{
		{ID: "u1", Name: "Ana", WhatsApp: "11999990001"},
	}}
	channel := &fakeChannel{}
	d := newTestDispatcher(ledger, users, channel, &fakeAudit{}, &[]time.Duration{})

	outcome, err := d.SendNow(context.Background(), "u1", core.Monthly, &ref)
	if err != nil {
		t.Fatalf("SendNow() error = %v", err)
	}
	if !outcome.Success {
		t.Errorf("outcome.Success = false, want true")
	}
	if len(channel.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(channel.sent))
	}
}
