package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

func thirds() []booking.Slot {
	return []booking.Slot{
		slot(21, "18:00", booking.CategoryThird, 80),
		slot(21, "19:00", booking.CategoryThird, 80),
		slot(22, "20:00", booking.CategoryThird, 80),
		slot(21, "19:00", booking.CategoryThird, 80),
		slot(22, "20:00", booking.CategoryThird, 80),
	}
}

func TestEvaluateThresholds(t *testing.T) {
	tests := []struct {
		n         int
		wantKind  Kind
		wantCalls int
		strategy  string
	}{
		{n: 0, wantKind: KindNotEnoughPlayers, strategy: "none"},
		{n: 13, wantKind: KindNotEnoughPlayers, strategy: "none"},
		{n: 14, wantKind: KindBooked, wantCalls: 1, strategy: "single(third)"},
		{n: 17, wantKind: KindBooked, wantCalls: 1, strategy: "single(third)"},
		{n: 18, wantKind: KindBooked, wantCalls: 2, strategy: "dual-third"},
		{n: 30, wantKind: KindBooked, wantCalls: 2, strategy: "dual-third"},
	}
	for _, tt := range tests {
		h := newHarness(t, setup{signups: fakeSignups{n: tt.n}, slots: fakeSlots{slots: thirds()}})
		out := h.orch.Evaluate(context.Background(), testWeek)
		if out.Kind != tt.wantKind {
			t.Errorf("n=%d: kind = %s, want %s (%v)", tt.n, out.Kind, tt.wantKind, out.Err())
		}
		if out.Strategy != tt.strategy {
			t.Errorf("n=%d: strategy = %q, want %q", tt.n, out.Strategy, tt.strategy)
		}
		if got := h.executor.callCount(); got != tt.wantCalls {
			t.Errorf("n=%d: executor calls = %d, want %d", tt.n, got, tt.wantCalls)
		}
	}
}

func TestEvaluateDisabled(t *testing.T) {
	p := booking.DefaultPolicy()
	p.AutoBookEnabled = false
	h := newHarness(t, setup{signups: fakeSignups{n: 30}, slots: fakeSlots{slots: thirds()}, policy: &p})

	out := h.orch.Evaluate(context.Background(), testWeek)
	if out.Kind != KindConfigDisabled || !errors.Is(out.Err(), booking.ErrConfigDisabled) {
		t.Fatalf("got %s / %v", out.Kind, out.Err())
	}
	if h.executor.callCount() != 0 || h.ledger.claimed(testWeek) {
		t.Fatal("disabled evaluation must not claim or execute")
	}
}

func TestEvaluateSingleBooksClosestToPreferredTime(t *testing.T) {
	h := newHarness(t, setup{signups: fakeSignups{n: 18 - 1}, slots: fakeSlots{slots: thirds()}})

	out := h.orch.Evaluate(context.Background(), testWeek)
	if !out.Booked() {
		t.Fatalf("kind = %s: %v", out.Kind, out.Err())
	}
	if got := h.executor.calls[0]; got.Time.Hour != 19 {
		t.Fatalf("booked %s, want the 19:00 slot", got)
	}
	if out.ConfirmationRef != "R1" {
		t.Fatalf("ref = %q", out.ConfirmationRef)
	}
	// 80 / 17 = 4.705...
	if !out.CostPerPlayer.Equal(decimal.RequireFromString("4.71")) {
		t.Fatalf("cost per player = %s", out.CostPerPlayer)
	}
	rows := h.ledger.snapshot()
	if len(rows) != 1 || rows[0].Status != booking.StatusConfirmed || !rows[0].AutoBooked || rows[0].ConfirmationRef != "R1" {
		t.Fatalf("rows = %+v", rows)
	}
	if !h.ledger.claimed(testWeek) {
		t.Fatal("claim must be kept after a booking")
	}
}

func TestEvaluateAlreadyBooked(t *testing.T) {
	h := newHarness(t, setup{signups: fakeSignups{n: 14}, slots: fakeSlots{slots: thirds()}})
	ctx := context.Background()

	if out := h.orch.Evaluate(ctx, testWeek); !out.Booked() {
		t.Fatalf("first evaluation: %s", out.Kind)
	}
	out := h.orch.Evaluate(ctx, testWeek)
	if out.Kind != KindAlreadyBooked {
		t.Fatalf("second evaluation: %s", out.Kind)
	}
	if h.executor.callCount() != 1 {
		t.Fatalf("executor calls = %d, want 1", h.executor.callCount())
	}
}

func TestEvaluateAfterManualBooking(t *testing.T) {
	h := newHarness(t, setup{signups: fakeSignups{n: 14}, slots: fakeSlots{slots: thirds()}})
	ctx := context.Background()

	if _, err := h.orch.ManualBook(ctx, ManualRequest{
		Date: time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC),
		Time: booking.TimeOfDay{Hour: 19},
	}); err != nil {
		t.Fatal(err)
	}
	if h.ledger.claimed(testWeek) {
		t.Fatal("manual booking must not take the claim")
	}

	out := h.orch.Evaluate(ctx, testWeek)
	if out.Kind != KindAlreadyBooked {
		t.Fatalf("kind = %s, want %s", out.Kind, KindAlreadyBooked)
	}
	if h.executor.callCount() != 1 {
		t.Fatalf("executor calls = %d, want 1", h.executor.callCount())
	}
}

func TestConcurrentEvaluationsBookOnce(t *testing.T) {
	h := newHarness(t, setup{
		signups:  fakeSignups{n: 14},
		slots:    fakeSlots{slots: thirds()},
		executor: &fakeExecutor{delay: 10 * time.Millisecond},
	})

	const callers = 16
	var wg sync.WaitGroup
	outcomes := make([]Outcome, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			outcomes[i] = h.orch.Evaluate(context.Background(), testWeek)
		}(i)
	}
	close(start)
	wg.Wait()

	var booked, already int
	for _, o := range outcomes {
		switch o.Kind {
		case KindBooked:
			booked++
		case KindAlreadyBooked:
			already++
		default:
			t.Errorf("unexpected outcome %s: %v", o.Kind, o.Err())
		}
	}
	if booked != 1 || already != callers-1 {
		t.Fatalf("booked = %d, already = %d", booked, already)
	}
	if h.executor.callCount() != 1 {
		t.Fatalf("executor calls = %d, want 1", h.executor.callCount())
	}
}

func TestDualThirdBooksFirstDiscoveredPair(t *testing.T) {
	h := newHarness(t, setup{signups: fakeSignups{n: 18}, slots: fakeSlots{slots: thirds()}})

	out := h.orch.Evaluate(context.Background(), testWeek)
	if !out.Booked() {
		t.Fatalf("kind = %s: %v", out.Kind, out.Err())
	}
	calls := h.executor.calls
	if len(calls) != 2 || calls[0].Key() != calls[1].Key() || calls[0].Key() != "2025-01-21 19:00" {
		t.Fatalf("executor calls = %v", calls)
	}
	if out.ConfirmationRef != "R1,R2" {
		t.Fatalf("ref = %q", out.ConfirmationRef)
	}
	if !out.TotalAmount.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("total = %s", out.TotalAmount)
	}
	// 160 / 18 = 8.888...
	if !out.CostPerPlayer.Equal(decimal.RequireFromString("8.89")) {
		t.Fatalf("cost per player = %s", out.CostPerPlayer)
	}

	rows := h.ledger.snapshot()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	for i, r := range rows {
		if r.Status != booking.StatusConfirmed || r.Week != testWeek {
			t.Errorf("row %d = %+v", i, r)
		}
		// 80 / 18 = 4.444...
		if !r.CostPerPlayer.Equal(decimal.RequireFromString("4.44")) {
			t.Errorf("row %d cost per player = %s", i, r.CostPerPlayer)
		}
	}
	if rows[0].ConfirmationRef != "R1" || rows[1].ConfirmationRef != "R2" {
		t.Fatalf("row refs = %q, %q", rows[0].ConfirmationRef, rows[1].ConfirmationRef)
	}
}

func TestDualThirdPreferredPairSelection(t *testing.T) {
	slots := []booking.Slot{
		slot(21, "17:00", booking.CategoryThird, 80),
		slot(21, "17:00", booking.CategoryThird, 80),
		slot(22, "19:00", booking.CategoryThird, 80),
		slot(22, "19:00", booking.CategoryThird, 80),
	}
	h := newHarness(t, setup{signups: fakeSignups{n: 18}, slots: fakeSlots{slots: slots}, pairs: PairPreferred})

	if out := h.orch.Evaluate(context.Background(), testWeek); !out.Booked() {
		t.Fatalf("kind = %s", out.Kind)
	}
	if got := h.executor.calls[0].Key(); got != "2025-01-22 19:00" {
		t.Fatalf("booked %s, want the 19:00 pair", got)
	}
}

func TestDualThirdPartialFailure(t *testing.T) {
	h := newHarness(t, setup{
		signups:  fakeSignups{n: 18},
		slots:    fakeSlots{slots: thirds()},
		executor: &fakeExecutor{fail: map[int]error{2: errSite}},
	})

	out := h.orch.Evaluate(context.Background(), testWeek)
	if out.Kind != KindPartialDualBookingFailed {
		t.Fatalf("kind = %s", out.Kind)
	}
	if !errors.Is(out.Err(), booking.ErrPartialDualBookingFailed) || !errors.Is(out.Err(), errSite) {
		t.Fatalf("err = %v", out.Err())
	}
	if len(out.Confirmations) != 1 || out.Confirmations[0].Ref != "R1" {
		t.Fatalf("confirmations = %+v", out.Confirmations)
	}
	rows := h.ledger.snapshot()
	if len(rows) != 2 || rows[0].Status != booking.StatusConfirmed || rows[1].Status != booking.StatusFailed {
		t.Fatalf("rows = %+v", rows)
	}
	if !h.ledger.claimed(testWeek) {
		t.Fatal("claim must be kept after a partial booking")
	}
}

func TestDualThirdFirstFailureSkipsSecond(t *testing.T) {
	h := newHarness(t, setup{
		signups:  fakeSignups{n: 18},
		slots:    fakeSlots{slots: thirds()},
		executor: &fakeExecutor{fail: map[int]error{1: errSite}},
	})

	out := h.orch.Evaluate(context.Background(), testWeek)
	if out.Kind != KindExecutionFailed {
		t.Fatalf("kind = %s", out.Kind)
	}
	if h.executor.callCount() != 1 {
		t.Fatalf("executor calls = %d, want 1", h.executor.callCount())
	}
	if h.ledger.claimed(testWeek) {
		t.Fatal("claim must be released when nothing was booked")
	}
}

func TestDualThirdWithoutPair(t *testing.T) {
	slots := []booking.Slot{
		slot(21, "19:00", booking.CategoryThird, 80),
		slot(21, "20:00", booking.CategoryThird, 80),
	}
	h := newHarness(t, setup{signups: fakeSignups{n: 20}, slots: fakeSlots{slots: slots}})

	out := h.orch.Evaluate(context.Background(), testWeek)
	if out.Kind != KindInsufficientPairedSlots {
		t.Fatalf("kind = %s", out.Kind)
	}
	if h.executor.callCount() != 0 || h.ledger.claimed(testWeek) {
		t.Fatal("no execution and no claim expected")
	}
}

func TestEvaluateEmptyLookups(t *testing.T) {
	tests := []struct {
		name  string
		slots fakeSlots
		want  Kind
	}{
		{"nothing listed", fakeSlots{}, KindNoSlotsAvailable},
		{"provider down", fakeSlots{err: errors.New("timeout")}, KindProviderUnavailable},
		{"all taken", fakeSlots{slots: []booking.Slot{{Category: booking.CategoryThird, Available: false}}}, KindNoSuitableSlot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, setup{signups: fakeSignups{n: 14}, slots: tt.slots})
			out := h.orch.Evaluate(context.Background(), testWeek)
			if out.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", out.Kind, tt.want)
			}
			if h.ledger.claimed(testWeek) {
				t.Fatal("claim must be released")
			}
			if len(h.notifier.notices) != 1 || h.notifier.notices[0].Kind != string(tt.want) {
				t.Fatalf("notices = %+v", h.notifier.notices)
			}
		})
	}
}

func TestExecutorHangIsBounded(t *testing.T) {
	ex := &fakeExecutor{hang: make(chan struct{})}
	defer close(ex.hang)
	h := newHarness(t, setup{
		signups:  fakeSignups{n: 14},
		slots:    fakeSlots{slots: thirds()},
		timeout:  20 * time.Millisecond,
		executor: ex,
	})

	done := make(chan Outcome, 1)
	go func() { done <- h.orch.Evaluate(context.Background(), testWeek) }()

	select {
	case out := <-done:
		if out.Kind != KindExecutionFailed || !out.Unresolved || !errors.Is(out.Err(), context.DeadlineExceeded) {
			t.Fatalf("kind = %s, unresolved = %v, err = %v", out.Kind, out.Unresolved, out.Err())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Evaluate blocked on a hanging executor")
	}
	rows := h.ledger.snapshot()
	if len(rows) != 1 || rows[0].Status != booking.StatusPending {
		t.Fatalf("rows = %+v", rows)
	}
	if !h.ledger.claimed(testWeek) {
		t.Fatal("claim released while the executor may still book")
	}
	if again := h.orch.Evaluate(context.Background(), testWeek); again.Kind != KindAlreadyBooked {
		t.Fatalf("re-evaluation = %s", again.Kind)
	}
	if h.executor.callCount() != 1 {
		t.Fatalf("executor calls = %d, want 1", h.executor.callCount())
	}
}

func TestExecutorRefusalReleasesClaim(t *testing.T) {
	h := newHarness(t, setup{
		signups:  fakeSignups{n: 14},
		slots:    fakeSlots{slots: thirds()},
		executor: &fakeExecutor{fail: map[int]error{1: errSite}},
	})
	out := h.orch.Evaluate(context.Background(), testWeek)
	if out.Kind != KindExecutionFailed || out.Unresolved {
		t.Fatalf("kind = %s, unresolved = %v", out.Kind, out.Unresolved)
	}
	if rows := h.ledger.snapshot(); len(rows) != 1 || rows[0].Status != booking.StatusFailed {
		t.Fatalf("rows = %+v", rows)
	}
	if h.ledger.claimed(testWeek) {
		t.Fatal("claim must be released after a refusal")
	}
}

func TestPersistenceFailures(t *testing.T) {
	t.Run("insert before execution", func(t *testing.T) {
		h := newHarness(t, setup{signups: fakeSignups{n: 14}, slots: fakeSlots{slots: thirds()}})
		h.ledger.insertErr = errors.New("db down")

		out := h.orch.Evaluate(context.Background(), testWeek)
		if out.Kind != KindPersistenceError || !errors.Is(out.Err(), booking.ErrPersistence) {
			t.Fatalf("kind = %s", out.Kind)
		}
		if h.executor.callCount() != 0 {
			t.Fatal("executor must not run without a pending row")
		}
		if h.ledger.claimed(testWeek) {
			t.Fatal("claim must be released")
		}
	})

	t.Run("resolve after reservation", func(t *testing.T) {
		h := newHarness(t, setup{signups: fakeSignups{n: 14}, slots: fakeSlots{slots: thirds()}})
		h.ledger.resolveErr = errors.New("db down")

		out := h.orch.Evaluate(context.Background(), testWeek)
		if out.Kind != KindPersistenceError {
			t.Fatalf("kind = %s", out.Kind)
		}
		if len(out.Confirmations) != 1 || out.Confirmations[0].Ref != "R1" {
			t.Fatalf("outcome must carry the confirmation, got %+v", out.Confirmations)
		}
		if !h.ledger.claimed(testWeek) {
			t.Fatal("claim must be kept after a real reservation")
		}
	})

	t.Run("signup count", func(t *testing.T) {
		h := newHarness(t, setup{signups: fakeSignups{err: errors.New("db down")}})
		if out := h.orch.Evaluate(context.Background(), testWeek); out.Kind != KindPersistenceError {
			t.Fatalf("kind = %s", out.Kind)
		}
	})

	t.Run("claim", func(t *testing.T) {
		h := newHarness(t, setup{signups: fakeSignups{n: 14}, slots: fakeSlots{slots: thirds()}})
		h.ledger.reserveErr = errors.New("db down")
		if out := h.orch.Evaluate(context.Background(), testWeek); out.Kind != KindPersistenceError {
			t.Fatalf("kind = %s", out.Kind)
		}
		if h.executor.callCount() != 0 {
			t.Fatal("executor must not run without a claim")
		}
	})
}

// cancellingLedger cancels the caller's context as soon as the orchestrator
// tries to resolve a row, and fails if the resolve context is cancelled too.
type cancellingLedger struct {
	*memLedger
	cancel context.CancelFunc
}

func (l cancellingLedger) Resolve(ctx context.Context, id int64, status booking.Status, ref string) error {
	l.cancel()
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.memLedger.Resolve(ctx, id, status, ref)
}

func TestCancelledCallerStillRecordsReservation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, setup{signups: fakeSignups{n: 14}, slots: fakeSlots{slots: thirds()}})
	h.orch.ledger = cancellingLedger{memLedger: h.ledger, cancel: cancel}

	out := h.orch.Evaluate(ctx, testWeek)
	if !out.Booked() {
		t.Fatalf("kind = %s: %v", out.Kind, out.Err())
	}
	if rows := h.ledger.snapshot(); rows[0].Status != booking.StatusConfirmed {
		t.Fatalf("row status = %s", rows[0].Status)
	}
}

func TestNotifierFailureDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(t, setup{signups: fakeSignups{n: 14}, slots: fakeSlots{slots: thirds()}})
	h.notifier.err = errors.New("nats down")

	out := h.orch.Evaluate(context.Background(), testWeek)
	if !out.Booked() {
		t.Fatalf("kind = %s", out.Kind)
	}
	if len(h.notifier.notices) != 1 {
		t.Fatalf("notices = %d", len(h.notifier.notices))
	}
	n := h.notifier.notices[0]
	if n.Week != testWeek || n.Kind != string(KindBooked) || n.Message != out.Message {
		t.Fatalf("notice = %+v", n)
	}
}

func TestNoNoticeBeforeBookingAttempt(t *testing.T) {
	h := newHarness(t, setup{signups: fakeSignups{n: 3}})
	h.orch.Evaluate(context.Background(), testWeek)
	if len(h.notifier.notices) != 0 {
		t.Fatalf("notices = %+v", h.notifier.notices)
	}
}

func TestNewRejectsInvalidPolicy(t *testing.T) {
	p := booking.DefaultPolicy()
	p.FullThreshold = 10
	_, err := New(Config{Policy: p}, Deps{
		Signups: fakeSignups{}, Ledger: newMemLedger(), Slots: fakeSlots{}, Executor: &fakeExecutor{},
	}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected policy error")
	}
}

func TestOutcomeErr(t *testing.T) {
	cause := errors.New("boom")
	o := Outcome{Kind: KindExecutionFailed, Cause: cause}
	if !errors.Is(o.Err(), booking.ErrExecutionFailed) || !errors.Is(o.Err(), cause) {
		t.Fatalf("err = %v", o.Err())
	}
	if (Outcome{Kind: KindBooked}).Err() != nil {
		t.Fatal("booked outcome must have no error")
	}
	if (Outcome{Kind: KindAlreadyBooked}).Err() != booking.ErrAlreadyBooked {
		t.Fatal("kind without cause should return the bare sentinel")
	}
}

func TestParsePairSelection(t *testing.T) {
	for in, want := range map[string]PairSelection{"": PairFirst, "first": PairFirst, "Preferred": PairPreferred} {
		got, err := ParsePairSelection(in)
		if err != nil || got != want {
			t.Errorf("ParsePairSelection(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePairSelection("random"); err == nil {
		t.Error("expected error")
	}
}
