package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

var epoch = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func waitForSleepers(t *testing.T, f *Fake, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.Sleepers() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d sleepers, have %d", n, f.Sleepers())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFake_AdvanceWakesDueSleepers(t *testing.T) {
	f := NewFake(epoch)
	done := make(chan error, 1)
	go func() { done <- f.Sleep(context.Background(), 10*time.Second) }()

	waitForSleepers(t, f, 1)
	f.Advance(9 * time.Second)
	select {
	case <-done:
		t.Fatal("sleeper woke before its deadline")
	case <-time.After(20 * time.Millisecond):
	}

	f.Advance(time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Sleep: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sleeper did not wake")
	}
	if got := f.Now(); !got.Equal(epoch.Add(10 * time.Second)) {
		t.Errorf("Now = %v", got)
	}
}

func TestFake_AdvanceToNext(t *testing.T) {
	f := NewFake(epoch)
	if f.AdvanceToNext() {
		t.Fatal("AdvanceToNext with no sleepers should report false")
	}

	done := make(chan struct{})
	go func() {
		_ = f.Sleep(context.Background(), 30*time.Minute)
		close(done)
	}()
	waitForSleepers(t, f, 1)

	if !f.AdvanceToNext() {
		t.Fatal("expected a pending sleeper")
	}
	<-done
	if got := f.Now(); !got.Equal(epoch.Add(30 * time.Minute)) {
		t.Errorf("Now = %v", got)
	}
}

func TestFake_SleepCancelled(t *testing.T) {
	f := NewFake(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Sleep(ctx, time.Hour) }()

	waitForSleepers(t, f, 1)
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.Sleepers() != 0 {
		t.Errorf("cancelled sleeper should be removed, have %d", f.Sleepers())
	}
}

func TestReal_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewReal().Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestUntilNextMinute(t *testing.T) {
	now := time.Date(2025, 1, 6, 10, 0, 42, 500, time.UTC)
	want := 17*time.Second + (time.Second - 500)
	if got := UntilNextMinute(now); got != want {
		t.Errorf("UntilNextMinute = %v, want %v", got, want)
	}
	aligned := time.Date(2025, 1, 6, 10, 1, 0, 0, time.UTC)
	if got := UntilNextMinute(aligned); got != time.Minute {
		t.Errorf("aligned UntilNextMinute = %v, want 1m", got)
	}
}
