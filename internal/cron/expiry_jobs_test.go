package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeReservations struct {
	at      time.Time
	expired int64
	err     error
}

func (f *fakeReservations) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	f.at = now
	return f.expired, f.err
}

type fakeSessions struct {
	expired int
	err     error
	calls   int
}

func (f *fakeSessions) ExpireStale(context.Context, time.Time) (int, error) {
	f.calls++
	return f.expired, f.err
}

func TestReservationExpiryJob(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inventory := &fakeReservations{expired: 3}
	job, err := NewReservationExpiryJob(testLogger(), inventory)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job.(*reservationExpiryJob).now = func() time.Time { return now }

	if job.Name() != "reservation-expiry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !inventory.at.Equal(now) {
		t.Fatalf("expected sweep at %s, got %s", now, inventory.at)
	}

	inventory.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSessionExpiryJobPropagatesPartialFailure(t *testing.T) {
	sessions := &fakeSessions{expired: 2, err: errors.New("expire session x: conflict")}
	job, err := NewSessionExpiryJob(testLogger(), sessions)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != "checkout-session-expiry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected partial failure to surface")
	}
	sessions.err = nil
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sessions.calls != 2 {
		t.Fatalf("expected 2 sweeps, got %d", sessions.calls)
	}
}

func TestExpiryJobsRequireDependencies(t *testing.T) {
	if _, err := NewReservationExpiryJob(testLogger(), nil); err == nil {
		t.Fatal("expected error without inventory")
	}
	if _, err := NewSessionExpiryJob(nil, &fakeSessions{}); err == nil {
		t.Fatal("expected error without logger")
	}
}
