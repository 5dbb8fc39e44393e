package analytics

import "context"

var _ AnalyticsService = (*MockAnalytics)(nil)

// MockAnalytics records events in memory for testing.
type MockAnalytics struct {
	Decisions []DecisionEvent
	Feedback  []string
}

// NewMockAnalytics creates a new mock analytics instance.
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

func (m *MockAnalytics) RecordDecision(_ context.Context, d DecisionEvent) error {
	m.Decisions = append(m.Decisions, d)
	return nil
}

func (m *MockAnalytics) RecordFeedback(_ context.Context, eventType, groupID string) error {
	m.Feedback = append(m.Feedback, eventType+":"+groupID)
	return nil
}
