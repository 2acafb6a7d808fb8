package api

import (
	"strconv"
	"sync"

	"fieldsched/internal/model"
)

// EventBroker fans build progress out to SSE and WebSocket watchers.
type EventBroker interface {
	Subscribe(key string) chan model.ProgressEvent
	Unsubscribe(key string, ch chan model.ProgressEvent)
	Publish(key string, evt model.ProgressEvent)
}

// progressKey is the broker topic of one technician.
func progressKey(technicianID int64) string {
	return "schedule:" + strconv.FormatInt(technicianID, 10)
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.ProgressEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.ProgressEvent]struct{}{}}
}

func (b *Broker) Subscribe(key string) chan model.ProgressEvent {
	ch := make(chan model.ProgressEvent, 8)
	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = map[chan model.ProgressEvent]struct{}{}
	}
	b.subs[key][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(key string, ch chan model.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[key]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, key)
	}
	close(ch)
}

// Publish never blocks; slow watchers drop events.
func (b *Broker) Publish(key string, evt model.ProgressEvent) {
	b.mu.Lock()
	m := b.subs[key]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
