package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/afonso-rickman/newdelivery/internal/changefeed"
	"github.com/afonso-rickman/newdelivery/pkg/config"
	"github.com/afonso-rickman/newdelivery/pkg/db"
	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
	"github.com/afonso-rickman/newdelivery/pkg/outbox"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OrderChangeEvent{newEvent(1), newEvent(2)}}
	pub := &fakePublisher{errs: []error{errors.New("transient"), nil}}
	service := newTestService(t, repo, pub, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != 1 {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != 2 {
		t.Fatalf("published row recorded wrong ID")
	}
	if repo.retryAfter[0] != 100*time.Millisecond {
		t.Fatalf("unexpected retry delay: %s", repo.retryAfter[0])
	}
	if len(pub.sent) != 2 || pub.sent[1].OrderID != repo.events[1].OrderID {
		t.Fatalf("unexpected envelopes: %+v", pub.sent)
	}
}

func TestServiceMarksTerminalAtMaxAttempts(t *testing.T) {
	event := newEvent(7)
	event.AttemptCount = 1
	repo := &fakeRepo{events: []models.OrderChangeEvent{event}}
	pub := &fakePublisher{errs: []error{errors.New("broker down")}}
	service := newTestService(t, repo, pub, &config.RelayConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("expected no retry scheduling, got %v", repo.failed)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != 7 {
		t.Fatalf("expected terminal row 7, got %v", repo.terminal)
	}
	if repo.terminalAttempts[0] != 2 {
		t.Fatalf("unexpected terminal attempts: %d", repo.terminalAttempts[0])
	}
}

func TestServiceParksMalformedEventWithoutPublishing(t *testing.T) {
	event := newEvent(3)
	event.Kind = "renamed"
	repo := &fakeRepo{events: []models.OrderChangeEvent{event}}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.sent) != 0 {
		t.Fatalf("malformed event should not be published")
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected terminal row, got %v", repo.terminal)
	}
	if !errors.Is(repo.terminalErrs[0], errMalformedEvent) {
		t.Fatalf("unexpected terminal error: %v", repo.terminalErrs[0])
	}
}

func TestServiceProcessBatchReportsIdle(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, nil)
	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if processed {
		t.Fatalf("empty batch should not report processed")
	}
}

func TestServiceRunFailsWhenBrokerUnreachable(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, nil)
	service.broker = fakePinger{err: errors.New("refused")}

	if err := service.Run(context.Background()); err == nil {
		t.Fatalf("expected readiness error")
	}
}

func TestServiceRelaysPersistedEventsThroughMemoryBroker(t *testing.T) {
	conn := setupRelayDB(t)
	repo := outbox.NewRepository(conn)
	now := time.Now().UTC()
	want := &models.OrderChangeEvent{
		OrderID:        uuid.New(),
		TenantID:       uuid.New(),
		Kind:           enums.ChangeKindAdded,
		DeliveryStatus: enums.DeliveryStatusPending,
		OrderCreatedAt: now,
		OccurredAt:     now,
	}
	if err := repo.Insert(conn, want); err != nil {
		t.Fatalf("insert event: %v", err)
	}

	source := changefeed.NewMemorySource(4)
	cfg := &config.Config{Relay: config.RelayConfig{Driver: config.FeedDriverMemory, BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 3}}
	pub, err := changefeed.NewPublisher(cfg, changefeed.Deps{Memory: source})
	if err != nil {
		t.Fatalf("build publisher: %v", err)
	}
	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     testLogger(),
		DB:         db.Wrap(conn),
		Repository: repo,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	processed, err := service.processBatch(context.Background())
	if err != nil || !processed {
		t.Fatalf("process batch: processed=%v err=%v", processed, err)
	}

	sink := &captureSink{payloads: make(chan []byte, 1)}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go func() { _ = source.Run(ctx, sink) }()

	select {
	case payload := <-sink.payloads:
		var env changefeed.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.OrderID != want.OrderID || env.Kind != "added" {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	case <-ctx.Done():
		t.Fatalf("envelope never reached the broker")
	}

	var stored models.OrderChangeEvent
	if err := conn.First(&stored, want.ID).Error; err != nil {
		t.Fatalf("reload event: %v", err)
	}
	if stored.Status != enums.ChangeEventStatusPublished || stored.PublishedAt == nil {
		t.Fatalf("event not marked published: %+v", stored)
	}

	processed, err = service.processBatch(context.Background())
	if err != nil || processed {
		t.Fatalf("published event should not be fetched again: processed=%v err=%v", processed, err)
	}
}

func TestRetryDelayDoublesUpToCap(t *testing.T) {
	base := 500 * time.Millisecond
	cases := map[int]time.Duration{
		1:  500 * time.Millisecond,
		2:  time.Second,
		3:  2 * time.Second,
		6:  maxBackoff,
		20: maxBackoff,
	}
	for attempt, want := range cases {
		if got := retryDelay(base, attempt); got != want {
			t.Fatalf("attempt %d: want %s got %s", attempt, want, got)
		}
	}
}

func TestWithJitterStaysInWindow(t *testing.T) {
	for i := 0; i < 50; i++ {
		got := withJitter(time.Second)
		if got < time.Second || got >= time.Second+jitterWindow {
			t.Fatalf("jitter out of range: %s", got)
		}
	}
	if withJitter(0) != 0 {
		t.Fatalf("zero duration should stay zero")
	}
}

const relayDDL = `
CREATE TABLE order_change_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  order_id TEXT NOT NULL,
  tenant_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  delivery_status TEXT NOT NULL,
  order_created_at DATETIME NOT NULL,
  occurred_at DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  next_attempt_at DATETIME,
  published_at DATETIME
);`

func setupRelayDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := conn.Exec(relayDDL).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, repo eventRepository, pub publisher, relayOverride *config.RelayConfig) *Service {
	relayCfg := config.RelayConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if relayOverride != nil {
		relayCfg = *relayOverride
	}
	service, err := NewService(ServiceParams{
		Config:     &config.Config{Relay: relayCfg},
		Logger:     testLogger(),
		DB:         &fakeDB{},
		Repository: repo,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "feed-relay-test",
		Output:      io.Discard,
	})
}

func newEvent(id int64) models.OrderChangeEvent {
	now := time.Now().UTC()
	return models.OrderChangeEvent{
		ID:             id,
		OrderID:        uuid.New(),
		TenantID:       uuid.New(),
		Kind:           enums.ChangeKindModified,
		DeliveryStatus: enums.DeliveryStatusPreparing,
		OrderCreatedAt: now.Add(-time.Hour),
		OccurredAt:     now,
		Status:         enums.ChangeEventStatusPending,
	}
}

type fakeRepo struct {
	events           []models.OrderChangeEvent
	published        []int64
	failed           []int64
	retryAfter       []time.Duration
	terminal         []int64
	terminalAttempts []int
	terminalErrs     []error
}

func (f *fakeRepo) FetchDueForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OrderChangeEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id int64) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id int64, err error, retryAfter time.Duration) error {
	f.failed = append(f.failed, id)
	f.retryAfter = append(f.retryAfter, retryAfter)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id int64, err error, attempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalAttempts = append(f.terminalAttempts, attempts)
	f.terminalErrs = append(f.terminalErrs, err)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePublisher struct {
	errs []error
	sent []changefeed.Envelope
}

func (f *fakePublisher) Name() string { return "fake" }

func (f *fakePublisher) Publish(_ context.Context, env changefeed.Envelope) error {
	f.sent = append(f.sent, env)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type captureSink struct {
	payloads chan []byte
}

func (c *captureSink) Deliver(payload []byte) { c.payloads <- payload }

func (c *captureSink) Resync() {}
