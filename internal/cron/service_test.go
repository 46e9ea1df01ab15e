package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
)

type fakeLocks struct {
	held map[string]bool
	ttls map[string]time.Duration
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: map[string]bool{}, ttls: map[string]time.Duration{}}
}

func (f *fakeLocks) TryLock(_ context.Context, job string, ttl time.Duration) (func(context.Context) error, bool, error) {
	f.ttls[job] = ttl
	if f.held[job] {
		return nil, false, nil
	}
	f.held[job] = true
	return func(context.Context) error {
		delete(f.held, job)
		return nil
	}, true, nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T, registry *Registry, locks *fakeLocks, clk *clock) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Locks:    locks,
		Now:      clk.Now,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestServiceRunsAllDueJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	registry := NewRegistry()
	registry.Register(success, time.Hour)
	registry.Register(failure, time.Hour)
	clk := &clock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	service := newTestService(t, registry, newFakeLocks(), clk)

	err := service.runDue(context.Background())
	if err == nil || !strings.Contains(err.Error(), "fail: boom") {
		t.Fatalf("expected combined job error, got %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", success.runs, failure.runs)
	}
}

func TestServiceHonoursPerJobCadence(t *testing.T) {
	hourly := &testJob{name: "hourly"}
	daily := &testJob{name: "daily"}
	registry := NewRegistry()
	registry.Register(hourly, time.Hour)
	registry.Register(daily, 24*time.Hour)
	locks := newFakeLocks()
	clk := &clock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	service := newTestService(t, registry, locks, clk)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := service.runDue(ctx); err != nil {
			t.Fatalf("runDue: %v", err)
		}
		clk.now = clk.now.Add(30 * time.Minute)
	}
	if hourly.runs != 3 {
		t.Fatalf("expected hourly job to run 3 times in 3h, got %d", hourly.runs)
	}
	if daily.runs != 1 {
		t.Fatalf("expected daily job to run once, got %d", daily.runs)
	}
	if locks.ttls["daily"] != 24*time.Hour {
		t.Fatalf("expected lock ttl to follow cadence, got %s", locks.ttls["daily"])
	}
}

func TestServiceSkipsJobLockedElsewhere(t *testing.T) {
	job := &testJob{name: "renewals"}
	other := &testJob{name: "expiry"}
	registry := NewRegistry()
	registry.Register(job, time.Hour)
	registry.Register(other, time.Hour)
	locks := newFakeLocks()
	locks.held["renewals"] = true
	clk := &clock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	service := newTestService(t, registry, locks, clk)

	if err := service.runDue(context.Background()); err != nil {
		t.Fatalf("runDue: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("locked job must not run, ran %d", job.runs)
	}
	if other.runs != 1 {
		t.Fatalf("independent job should still run, ran %d", other.runs)
	}
	if !locks.held["renewals"] || locks.held["expiry"] {
		t.Fatalf("unexpected lock state %v", locks.held)
	}
}

func TestNewServiceRequiresLocks(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})})
	if err == nil {
		t.Fatal("expected error without locker")
	}
}
