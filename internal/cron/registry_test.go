package cron

import (
	"context"
	"errors"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func mustRegistry(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return registry
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry := mustRegistry(t, jobA)
	if err := registry.Register(jobB); err != nil {
		t.Fatalf("register b: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateAndInvalidJobs(t *testing.T) {
	registry := mustRegistry(t, &stubJob{name: "change-event-retention"})
	if err := registry.Register(&stubJob{name: "change-event-retention"}); !errors.Is(err, errDuplicateJob) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if err := registry.Register(&stubJob{}); err == nil {
		t.Fatalf("expected error for unnamed job")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected error for nil job")
	}
	if _, err := NewRegistry(&stubJob{name: "x"}, &stubJob{name: "x"}); err == nil {
		t.Fatalf("constructor should reject duplicates")
	}
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("rejected jobs were stored, got %d", got)
	}
}
