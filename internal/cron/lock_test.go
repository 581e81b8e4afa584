package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryStore struct {
	values  map[string]string
	failDel bool
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	if m.failDel {
		return false, errors.New("connection reset")
	}
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusiveAndOwnerScoped(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "lock:cron-worker:test", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "lock:cron-worker:test", time.Minute)

	ctx := context.Background()
	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatalf("second worker must not acquire a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, ok := store.values["lock:cron-worker:test"]; !ok {
		t.Fatalf("non-owner release removed the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatalf("lock should be free after owner release")
	}
}

func TestRedisLockExpiredOwnerDoesNotFreeSuccessor(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	stale, _ := NewRedisLock(store, "k", time.Minute)
	ctx := context.Background()
	if ok, _ := stale.Acquire(ctx); !ok {
		t.Fatalf("acquire failed")
	}

	// TTL lapses and another worker takes over.
	delete(store.values, "k")
	successor, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := successor.Acquire(ctx); !ok {
		t.Fatalf("successor acquire failed")
	}

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, ok := store.values["k"]; !ok {
		t.Fatalf("stale owner freed the successor's lock")
	}
}

func TestRedisLockRejectsReentrantAcquire(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "k", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("acquire failed")
	}
	if _, err := lock.Acquire(ctx); err == nil {
		t.Fatalf("expected error acquiring a lock already held")
	}
}

func TestRedisLockReleaseErrorClearsToken(t *testing.T) {
	store := &memoryStore{values: map[string]string{}, failDel: true}
	lock, _ := NewRedisLock(store, "k", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("acquire failed")
	}
	if err := lock.Release(ctx); err == nil {
		t.Fatalf("expected release error")
	}
	// the key is left to expire; the worker can try again next cycle
	store.failDel = false
	delete(store.values, "k")
	if ok, err := lock.Acquire(ctx); err != nil || !ok {
		t.Fatalf("reacquire after failed release: ok=%v err=%v", ok, err)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewRedisLock(&memoryStore{}, "", 0); !errors.Is(err, errLockKeyRequired) {
		t.Fatalf("expected errLockKeyRequired, got %v", err)
	}
}
