package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/example/pitch-scheduler/internal/application/slotcache"
	"github.com/example/pitch-scheduler/internal/domain/booking"
)

var testToday = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC) // Wednesday, next week is 20-26 Jan

const testWeek booking.WeekID = "2025-W04"

type fakeSignups struct {
	n   int
	err error
}

func (f fakeSignups) Count(context.Context, booking.WeekID) (int, error) { return f.n, f.err }

type memLedger struct {
	mu         sync.Mutex
	claims     map[booking.WeekID]bool
	rows       []booking.Booking
	insertErr  error
	resolveErr error
	reserveErr error
}

func newMemLedger() *memLedger { return &memLedger{claims: make(map[booking.WeekID]bool)} }

func (l *memLedger) Exists(_ context.Context, week booking.WeekID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claims[week] {
		return true, nil
	}
	for _, r := range l.rows {
		if r.Week == week && r.Status == booking.StatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) Reserve(_ context.Context, week booking.WeekID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserveErr != nil {
		return false, l.reserveErr
	}
	if l.claims[week] {
		return false, nil
	}
	for _, r := range l.rows {
		if r.Week == week && r.Status == booking.StatusConfirmed {
			return false, nil
		}
	}
	l.claims[week] = true
	return true, nil
}

func (l *memLedger) Release(_ context.Context, week booking.WeekID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, week)
	return nil
}

func (l *memLedger) Insert(_ context.Context, b booking.Booking) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.insertErr != nil {
		return 0, l.insertErr
	}
	b.ID = int64(len(l.rows) + 1)
	l.rows = append(l.rows, b)
	return b.ID, nil
}

func (l *memLedger) Resolve(_ context.Context, id int64, status booking.Status, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resolveErr != nil {
		return l.resolveErr
	}
	r := &l.rows[id-1]
	if r.Status != booking.StatusPending {
		return fmt.Errorf("booking %d already %s", id, r.Status)
	}
	r.Status, r.ConfirmationRef = status, ref
	return nil
}

func (l *memLedger) ListByWeek(_ context.Context, week booking.WeekID) ([]booking.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []booking.Booking
	for _, r := range l.rows {
		if r.Week == week {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *memLedger) claimed(week booking.WeekID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.claims[week]
}

func (l *memLedger) snapshot() []booking.Booking {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]booking.Booking(nil), l.rows...)
}

type fakeSlots struct {
	slots []booking.Slot
	err   error
}

func (f fakeSlots) Get(_ context.Context, c booking.Category) slotcache.Lookup {
	var out []booking.Slot
	for _, s := range f.slots {
		if s.Category == c {
			out = append(out, s)
		}
	}
	return slotcache.Lookup{Category: c, Slots: out, Err: f.err}
}

// fakeExecutor fails call n (counting from 1) with fail[n] and otherwise
// confirms with ref "R<n>".
type fakeExecutor struct {
	mu    sync.Mutex
	calls []booking.Slot
	fail  map[int]error
	hang  chan struct{}
	delay time.Duration
}

func (e *fakeExecutor) Execute(ctx context.Context, s booking.Slot) (booking.Confirmation, error) {
	e.mu.Lock()
	e.calls = append(e.calls, s)
	n := len(e.calls)
	err := e.fail[n]
	e.mu.Unlock()

	if e.hang != nil {
		<-e.hang
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if err != nil {
		return booking.Confirmation{}, err
	}
	return booking.Confirmation{Ref: fmt.Sprintf("R%d", n), Status: "confirmed", Timestamp: testToday}, nil
}

func (e *fakeExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []booking.Notice
	err     error
}

func (r *recordingNotifier) Notify(ctx context.Context, message string) error {
	return r.NotifyNotice(ctx, booking.Notice{Message: message})
}

func (r *recordingNotifier) NotifyNotice(_ context.Context, n booking.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return r.err
}

type harness struct {
	orch     *Orchestrator
	ledger   *memLedger
	executor *fakeExecutor
	notifier *recordingNotifier
}

type setup struct {
	signups  fakeSignups
	slots    fakeSlots
	policy   *booking.ThresholdPolicy
	pairs    PairSelection
	timeout  time.Duration
	executor *fakeExecutor
}

func newHarness(t *testing.T, s setup) harness {
	t.Helper()
	policy := booking.DefaultPolicy()
	if s.policy != nil {
		policy = *s.policy
	}
	h := harness{ledger: newMemLedger(), executor: s.executor, notifier: &recordingNotifier{}}
	if h.executor == nil {
		h.executor = &fakeExecutor{}
	}
	o, err := New(Config{
		Policy:          policy,
		PairSelection:   s.pairs,
		Location:        time.UTC,
		ExecutorTimeout: s.timeout,
	}, Deps{
		Signups:  s.signups,
		Ledger:   h.ledger,
		Slots:    s.slots,
		Executor: h.executor,
		Notifier: h.notifier,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	o.now = func() time.Time { return testToday }
	h.orch = o
	return h
}

func slot(day int, hhmm string, c booking.Category, price int64) booking.Slot {
	tod, err := booking.ParseTimeOfDay(hhmm)
	if err != nil {
		panic(err)
	}
	return booking.Slot{
		Date:      time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC),
		Time:      tod,
		Category:  c,
		Price:     decimal.NewFromInt(price),
		Available: true,
	}
}

var errSite = errors.New("site rejected booking")
