package mocks

import (
	"context"
	"sync"
)

// MockPublisher records published events for assertions in tests.
type MockPublisher struct {
	mu         sync.Mutex
	Published  []PublishCall
	PublishErr error
}

type PublishCall struct {
	SessionID string
	EventType string
	Data      any
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, sessionID, eventType string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, PublishCall{SessionID: sessionID, EventType: eventType, Data: data})
	return m.PublishErr
}

func (m *MockPublisher) Close() error {
	return nil
}

// EventTypes returns the types of all published events, in order.
func (m *MockPublisher) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.Published))
	for i, p := range m.Published {
		types[i] = p.EventType
	}
	return types
}
