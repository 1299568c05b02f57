package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"plancheck-backend/internal/analyses"
)

type fakeSweeper struct {
	sweeps  int
	runs    int
	err     error
	lastArg string
}

func (f *fakeSweeper) Sweep(ctx context.Context, userID string) (analyses.SweepResult, error) {
	f.sweeps++
	f.lastArg = userID
	return analyses.SweepResult{TotalFound: 2, Cleaned: 2}, f.err
}

func (f *fakeSweeper) Run(ctx context.Context, interval time.Duration) {
	f.runs++
	<-ctx.Done()
}

func TestRunOnceSweepsAllUsers(t *testing.T) {
	s := &fakeSweeper{}
	if err := run(context.Background(), s, time.Minute, true); err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.sweeps != 1 || s.runs != 0 {
		t.Fatalf("expected one sweep and no loop, got sweeps=%d runs=%d", s.sweeps, s.runs)
	}
	if s.lastArg != "" {
		t.Fatalf("expected unscoped sweep, got %q", s.lastArg)
	}
}

func TestRunOncePropagatesError(t *testing.T) {
	s := &fakeSweeper{err: errors.New("db down")}
	if err := run(context.Background(), s, time.Minute, true); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunLoopStopsWithContext(t *testing.T) {
	s := &fakeSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, s, time.Second, false) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
	if s.runs != 1 {
		t.Fatalf("expected loop to start once, got %d", s.runs)
	}
}
