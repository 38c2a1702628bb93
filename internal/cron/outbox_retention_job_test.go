package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/dbtest"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox"
)

func TestOutboxRetentionJobTrimsDeliveredAndParkedRows(t *testing.T) {
	conn := dbtest.Open(t, "cron_outbox")
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	keep := []models.OutboxEvent{
		outboxRow(recent, &recent, 0),
		outboxRow(old, nil, 2),
	}
	drop := []models.OutboxEvent{
		outboxRow(old, &old, 0),
		outboxRow(old, nil, outboxMinAttempts),
	}
	for _, row := range append(append([]models.OutboxEvent{}, keep...), drop...) {
		if err := conn.Create(&row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         db.Wrap(conn),
		Repository: outbox.NewRepository(conn),
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var remaining []models.OutboxEvent
	if err := conn.Find(&remaining).Error; err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != len(keep) {
		t.Fatalf("expected %d rows kept, got %d", len(keep), len(remaining))
	}
	ids := map[uuid.UUID]bool{}
	for _, row := range remaining {
		ids[row.ID] = true
	}
	for _, row := range keep {
		if !ids[row.ID] {
			t.Fatalf("row %s should have been kept", row.ID)
		}
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         passthroughRunner{},
		Repository: failingRetentionRepo{},
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func outboxRow(created time.Time, published *time.Time, attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCheckoutCompleted,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		CreatedAt:     created,
		PublishedAt:   published,
		AttemptCount:  attempts,
	}
}

type failingRetentionRepo struct{}

func (failingRetentionRepo) DeletePublishedBefore(context.Context, *gorm.DB, time.Time, int) (int64, error) {
	return 0, errors.New("boom")
}

type passthroughRunner struct{}

func (passthroughRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
