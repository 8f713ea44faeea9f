package timer

import (
	"sync"
	"testing"
	"time"
)

func TestIntervalTicksWhileActive(t *testing.T) {
	var mu sync.Mutex
	ticks := 0
	iv := NewInterval(&mu, 10*time.Millisecond, func() { ticks++ })

	mu.Lock()
	iv.Resume()
	iv.Resume()
	mu.Unlock()

	time.Sleep(55 * time.Millisecond)

	mu.Lock()
	iv.Pause()
	got := ticks
	mu.Unlock()

	if got < 2 {
		t.Fatalf("expected several ticks, got=%d", got)
	}

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if ticks != got {
		t.Fatalf("ticked after pause: before=%d after=%d", got, ticks)
	}
	if iv.Active() {
		t.Fatalf("interval should be paused")
	}
}

func TestIntervalPauseFromCallback(t *testing.T) {
	var mu sync.Mutex
	ticks := 0
	var iv *Interval
	iv = NewInterval(&mu, 5*time.Millisecond, func() {
		ticks++
		iv.Pause()
	})
	mu.Lock()
	iv.Resume()
	mu.Unlock()

	time.Sleep(40 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if ticks != 1 {
		t.Fatalf("ticks got=%d", ticks)
	}
}

func TestDeadlineFiresOnce(t *testing.T) {
	var mu sync.Mutex
	fired := make(chan struct{}, 2)
	d := NewDeadline(&mu)

	mu.Lock()
	d.Arm(10*time.Millisecond, func() { fired <- struct{}{} })
	if !d.Armed() {
		t.Fatalf("expected armed")
	}
	mu.Unlock()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("deadline did not fire")
	}
	mu.Lock()
	if d.Armed() {
		t.Fatalf("deadline should be disarmed after firing")
	}
	mu.Unlock()
	select {
	case <-fired:
		t.Fatalf("deadline fired twice")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestDeadlineCancel(t *testing.T) {
	var mu sync.Mutex
	fired := false
	d := NewDeadline(&mu)

	mu.Lock()
	d.Arm(10*time.Millisecond, func() { fired = true })
	d.Cancel()
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Fatalf("cancelled deadline fired")
	}
}

func TestDeadlineRearmReplaces(t *testing.T) {
	var mu sync.Mutex
	var got []string
	d := NewDeadline(&mu)

	mu.Lock()
	d.Arm(10*time.Millisecond, func() { got = append(got, "first") })
	d.Arm(20*time.Millisecond, func() { got = append(got, "second") })
	mu.Unlock()

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "second" {
		t.Fatalf("got=%v", got)
	}
}
