package events

import (
	"context"
	"time"

	"keyring/pkg/kafka"
	"keyring/pkg/logger"
	"keyring/pkg/model"
)

// Event types emitted on the session lifecycle topic.
const (
	EventSessionCheckedOut = "session.checked_out"
	EventSessionReturned   = "session.returned"
	EventSessionExpired    = "session.expired"

	schemaVersion = "1"
	source        = "keyring"
)

// SessionEvent is the payload for all session lifecycle events.
// Credentials never appear here.
type SessionEvent struct {
	SessionID       string     `json:"session_id,omitempty"`
	ToolID          string     `json:"tool_id"`
	Holder          string     `json:"holder"`
	Status          string     `json:"status"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	ExpectedEndTime *time.Time `json:"expected_end_time,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ReturnedCount   int64      `json:"returned_count,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at"`
}

// Publisher emits session lifecycle events. Publishing is best effort:
// the checkout has already committed when an event goes out, so
// failures are logged and swallowed.
type Publisher interface {
	SessionCheckedOut(ctx context.Context, session *model.Session)
	SessionReturned(ctx context.Context, toolID, holder string, count int64, completedAt time.Time)
	SessionExpired(ctx context.Context, session *model.Session, completedAt time.Time)
}

type kafkaPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, log *logger.Logger) Publisher {
	return &kafkaPublisher{
		producer: producer,
		log:      log,
	}
}

func (p *kafkaPublisher) SessionCheckedOut(ctx context.Context, session *model.Session) {
	p.publish(ctx, EventSessionCheckedOut, session.ToolID, SessionEvent{
		SessionID:       session.ID,
		ToolID:          session.ToolID,
		Holder:          session.Holder,
		Status:          session.Status,
		StartTime:       &session.StartTime,
		ExpectedEndTime: &session.ExpectedEndTime,
		OccurredAt:      session.StartTime,
	})
}

func (p *kafkaPublisher) SessionReturned(ctx context.Context, toolID, holder string, count int64, completedAt time.Time) {
	p.publish(ctx, EventSessionReturned, toolID, SessionEvent{
		ToolID:        toolID,
		Holder:        holder,
		Status:        model.SessionStatusCompleted,
		CompletedAt:   &completedAt,
		ReturnedCount: count,
		OccurredAt:    completedAt,
	})
}

func (p *kafkaPublisher) SessionExpired(ctx context.Context, session *model.Session, completedAt time.Time) {
	p.publish(ctx, EventSessionExpired, session.ToolID, SessionEvent{
		SessionID:       session.ID,
		ToolID:          session.ToolID,
		Holder:          session.Holder,
		Status:          model.SessionStatusCompleted,
		ExpectedEndTime: &session.ExpectedEndTime,
		CompletedAt:     &completedAt,
		OccurredAt:      completedAt,
	})
}

func (p *kafkaPublisher) publish(ctx context.Context, eventType, toolID string, event SessionEvent) {
	msg := kafka.NewMessage().
		WithKey(toolID).
		WithValue(event).
		WithEventType(eventType).
		WithSchemaVersion(schemaVersion).
		WithSource(source).
		Build()

	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Error("Failed to publish session event",
			"event_type", eventType,
			"tool_id", toolID,
			"error", err,
		)
		return
	}

	p.log.Debug("Session event published",
		"event_type", eventType,
		"tool_id", toolID,
		"event_id", msg.GetEventID(),
	)
}

type noopPublisher struct{}

// NewNoopPublisher returns a publisher for deployments without Kafka
// brokers configured.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) SessionCheckedOut(context.Context, *model.Session)                 {}
func (noopPublisher) SessionReturned(context.Context, string, string, int64, time.Time) {}
func (noopPublisher) SessionExpired(context.Context, *model.Session, time.Time)         {}
