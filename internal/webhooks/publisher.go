package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldsched/internal/model"
)

// Event types published by the scheduler.
const (
	EventScheduleBuilt     = "schedule.built"
	EventScheduleCommitted = "schedule.committed"
)

// Outbox is the part of the store the publisher writes to.
type Outbox interface {
	SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
}

type Publisher struct {
	Store Outbox
	Log   *zap.Logger
}

func NewPublisher(s Outbox, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{Store: s, Log: log}
}

// Emit enqueues one delivery per subscription to eventType and returns how
// many were queued.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) (int, error) {
	subs, err := p.Store.SubscriptionsForEvent(ctx, eventType)
	if err != nil {
		return 0, fmt.Errorf("load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}
	body, err := json.Marshal(map[string]any{
		"id":   "evt_" + uuid.NewString(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	})
	if err != nil {
		return 0, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			p.Log.Warn("enqueue webhook", zap.String("subscription_id", s.ID), zap.String("event_type", eventType), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}
