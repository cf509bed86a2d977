package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConnTrackerWaitsForRelease(t *testing.T) {
	tracker := NewConnTracker()

	tracker.Lock()
	tracker.AcquireLocked()
	tracker.AcquireLocked()
	tracker.Unlock()

	blocked := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		tracker.Lock()
		defer tracker.Unlock()
		done <- tracker.WaitIdleLocked(context.Background(), 0, func() { blocked <- struct{}{} })
	}()

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("Expected onBlocked to be called")
	}

	tracker.Release()
	select {
	case <-done:
		t.Fatal("WaitIdleLocked should still wait for the second connection")
	case <-time.After(50 * time.Millisecond):
	}

	if open := tracker.Release(); open != 0 {
		t.Errorf("Expected 0 open connections, got %d", open)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIdleLocked did not return after all connections were released")
	}
}

func TestConnTrackerContextCancel(t *testing.T) {
	tracker := NewConnTracker()
	tracker.Lock()
	tracker.AcquireLocked()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := tracker.WaitIdleLocked(ctx, 0, func() { calls++ })
	tracker.Unlock()

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected onBlocked to be called once, got %d", calls)
	}
}

func TestConnTrackerNoWaitWhenAllowed(t *testing.T) {
	tracker := NewConnTracker()
	tracker.Lock()
	defer tracker.Unlock()
	tracker.AcquireLocked()

	err := tracker.WaitIdleLocked(context.Background(), 1, func() {
		t.Error("onBlocked must not be called")
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestSizeHistogramEstimates(t *testing.T) {
	h := NewSizeHistogram()
	if h.EstimateTotal(10, 8) != 0 {
		t.Error("Empty histogram should estimate 0")
	}

	for i := 0; i < 100; i++ {
		h.AddSample(100)
	}
	if h.Count() != 100 {
		t.Errorf("Expected 100 samples, got %d", h.Count())
	}
	if h.AverageSize() != 100 {
		t.Errorf("Expected average 100, got %d", h.AverageSize())
	}
	// 100 bytes fall into the (64, 256] bucket
	if median := h.MedianEstimate(); median != 160 {
		t.Errorf("Expected median estimate 160, got %d", median)
	}
	if total := h.EstimateTotal(100, 0); total != (160*60+100*40)/100*100 {
		t.Errorf("Unexpected total estimate %d", total)
	}
}
