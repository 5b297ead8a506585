package debounce

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	fired chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan struct{}, 10)}
}

func (r *recorder) record(v string) {
	r.mu.Lock()
	r.calls = append(r.calls, v)
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestDebouncer_BurstFiresOnceWithLastValue(t *testing.T) {
	rec := newRecorder()
	d := New(DefaultQuietPeriod, rec.record)
	defer d.Stop()

	d.Trigger("1")
	time.Sleep(150 * time.Millisecond)
	d.Trigger("10")
	time.Sleep(150 * time.Millisecond)
	d.Trigger("100")

	// Still inside the quiet period of the last edit.
	time.Sleep(500 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("expected no call before quiet period elapsed, got %v", got)
	}

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced call never fired")
	}

	// Make sure nothing else trails in.
	time.Sleep(200 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly one call, got %d: %v", len(got), got)
	}
	if got[0] != "100" {
		t.Errorf("expected last value 100, got %s", got[0])
	}
}

func TestDebouncer_SeparateBurstsFireSeparately(t *testing.T) {
	rec := newRecorder()
	d := New(30*time.Millisecond, rec.record)
	defer d.Stop()

	d.Trigger("a")
	<-rec.fired
	d.Trigger("b")
	<-rec.fired

	got := rec.snapshot()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("expected [a b], got %v", got)
	}
}

func TestDebouncer_CancelDropsPending(t *testing.T) {
	rec := newRecorder()
	d := New(30*time.Millisecond, rec.record)
	defer d.Stop()

	d.Trigger("x")
	if !d.Pending() {
		t.Fatal("expected pending call")
	}
	d.Cancel()

	time.Sleep(100 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("expected cancelled call to be dropped, got %v", got)
	}
}

func TestDebouncer_StopIgnoresTriggers(t *testing.T) {
	rec := newRecorder()
	d := New(10*time.Millisecond, rec.record)
	d.Stop()

	d.Trigger("late")
	time.Sleep(50 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("expected no calls after Stop, got %v", got)
	}
}
