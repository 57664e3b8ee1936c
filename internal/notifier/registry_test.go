package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/syncer"
)

type mockNotifier struct {
	name       string
	calls      int
	shouldFail bool
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Notify(ctx context.Context, r *syncer.Report) error {
	m.calls++
	if m.shouldFail {
		return errors.New("send failed")
	}
	return nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&mockNotifier{name: "webhook"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(&mockNotifier{name: "webhook"}); err == nil {
		t.Error("expected error for duplicate registration")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 notifier, got %d", r.Len())
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockNotifier{name: "telegram"})

	if _, err := r.Get("telegram"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := r.Get("email"); err == nil {
		t.Error("expected error for unknown notifier")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockNotifier{name: "webhook"})
	r.Register(&mockNotifier{name: "telegram"})

	names := r.Names()
	if len(names) != 2 || names[0] != "telegram" || names[1] != "webhook" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestRegistry_NotifyAll(t *testing.T) {
	r := NewRegistry()
	ok := &mockNotifier{name: "ok"}
	bad := &mockNotifier{name: "bad", shouldFail: true}
	r.Register(ok)
	r.Register(bad)

	errs := r.NotifyAll(context.Background(), &syncer.Report{RunID: "run-1"})

	if ok.calls != 1 || bad.calls != 1 {
		t.Errorf("expected each notifier called once, got %d/%d", ok.calls, bad.calls)
	}
	if len(errs) != 1 || errs["bad"] == nil {
		t.Errorf("expected only bad to fail, got %v", errs)
	}
}

func TestSummary(t *testing.T) {
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	report := &syncer.Report{
		RunID:         "run-1",
		Start:         start,
		End:           start.AddDate(0, 0, 2),
		Planned:       3,
		Fetched:       1,
		AlreadyCached: 1,
		Failed:        1,
		Failures: []syncer.Failure{{
			DataType: core.DataTypeFX,
			Date:     start,
			Cadence:  core.CadenceMonthly,
			Attempts: 3,
			Reason:   "all providers failed",
		}},
	}

	got := Summary(report)

	for _, want := range []string{
		"Pricing sync run-1: 2025-10-01 to 2025-10-03",
		"planned 3, fetched 1, cached 1, failed 1",
		"- fx 2025-10-01 (monthly): all providers failed",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestSummary_TruncatesFailures(t *testing.T) {
	report := &syncer.Report{RunID: "run-2", Forced: true, Cancelled: true}
	for i := range 15 {
		report.Failures = append(report.Failures, syncer.Failure{
			DataType: core.DataTypeCrypto,
			Date:     time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Reason:   syncer.ReasonCancelled,
		})
	}

	got := Summary(report)

	if !strings.HasPrefix(got, "Pricing resync run-2") {
		t.Errorf("expected resync header, got %q", got)
	}
	if !strings.Contains(got, "(cancelled)") {
		t.Error("expected cancelled marker")
	}
	if !strings.Contains(got, "... and 5 more") {
		t.Errorf("expected truncation line, got:\n%s", got)
	}
}
