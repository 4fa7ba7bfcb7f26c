package breaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func succeeding() error { return nil }

func TestOpensAfterThresholdFailures(t *testing.T) {
	clk := newFakeClock()
	b := New(3, time.Minute, WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		if err := b.Execute(failing); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: err = %v, want original failure", i+1, err)
		}
	}

	st := b.Status()
	if !st.Open || st.Failures != 3 {
		t.Fatalf("status after threshold = %+v, want open with 3 failures", st)
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Fatal("action must not run while circuit is open")
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	clk := newFakeClock()
	b := New(3, time.Minute, WithClock(clk.Now))

	_ = b.Execute(failing)
	_ = b.Execute(failing)
	if err := b.Execute(succeeding); err != nil {
		t.Fatalf("success err = %v", err)
	}

	if st := b.Status(); st.Failures != 0 || st.Open {
		t.Fatalf("status after success = %+v, want closed with 0 failures", st)
	}
}

func TestClosesAfterCoolDown(t *testing.T) {
	clk := newFakeClock()
	b := New(2, time.Minute, WithClock(clk.Now))

	_ = b.Execute(failing)
	_ = b.Execute(failing)
	if !b.Status().Open {
		t.Fatal("circuit should be open")
	}

	clk.Advance(time.Minute)

	// Status reports closed once the window elapsed, but must not reset.
	if st := b.Status(); st.Open {
		t.Fatalf("status after cool-down = %+v, want not open", st)
	}
	if st := b.Status(); st.Failures != 2 {
		t.Fatalf("Status must not mutate counters, failures = %d", st.Failures)
	}

	// The next Execute resets eagerly and invokes the action.
	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("err = %v", err)
	}
	if !called {
		t.Fatal("action should run after cool-down")
	}
	if st := b.Status(); st.Failures != 0 {
		t.Fatalf("failures = %d after post-cool-down success", st.Failures)
	}
}

func TestSingleFailureReopensAfterCoolDown(t *testing.T) {
	clk := newFakeClock()
	b := New(2, time.Minute, WithClock(clk.Now))

	_ = b.Execute(failing)
	_ = b.Execute(failing)
	clk.Advance(time.Minute)

	// One failed probe: counter restarts from zero, so a single failure
	// leaves the circuit closed until the threshold is hit again.
	if err := b.Execute(failing); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if st := b.Status(); st.Open {
		t.Fatalf("status = %+v, one failure below threshold must not open", st)
	}
	if err := b.Execute(failing); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if st := b.Status(); !st.Open {
		t.Fatalf("status = %+v, threshold reached again, want open", st)
	}
}

func TestConcurrentFailuresAreNotLost(t *testing.T) {
	clk := newFakeClock()
	b := New(1000, time.Minute, WithClock(clk.Now))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(failing)
		}()
	}
	wg.Wait()

	if st := b.Status(); st.Failures != 100 {
		t.Fatalf("failures = %d, want 100", st.Failures)
	}
}
