package memory

import (
	"context"
	"sync"

	"math-race-service/internal/domain"
)

// EventLog records published race events; used when no broker is configured and in tests.
type EventLog struct {
	mu     sync.Mutex
	events []domain.RaceEvent
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Publish(_ context.Context, event domain.RaceEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (l *EventLog) Events() []domain.RaceEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.RaceEvent(nil), l.events...)
}
