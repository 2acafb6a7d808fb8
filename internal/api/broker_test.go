package api

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"fieldsched/internal/model"
)

func exerciseBroker(t *testing.T, b EventBroker) {
	t.Helper()
	key := progressKey(7)
	ch := b.Subscribe(key)
	evt := model.ProgressEvent{Type: "day.built", TechnicianID: 7, Date: "2025-11-17", Jobs: 3}
	b.Publish(key, evt)
	b.Publish(progressKey(8), model.ProgressEvent{Type: "day.built", TechnicianID: 8})

	select {
	case got := <-ch:
		if got.Type != evt.Type || got.TechnicianID != 7 || got.Jobs != 3 {
			t.Fatalf("got %+v, want %+v", got, evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(key, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	exerciseBroker(t, b)
	b.Unsubscribe(progressKey(7), make(chan model.ProgressEvent)) // unknown channel is a no-op
}

func TestRedisBroker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	b, err := NewRedisBroker(url, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Close()
	exerciseBroker(t, b)
}
