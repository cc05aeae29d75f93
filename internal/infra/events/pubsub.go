package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

const (
	EventCompleted = "scan.completed"
	publishTimeout = 5 * time.Second
)

// Completed is the message body announcing a persisted record. Consumers
// fetch the full record by run id.
type Completed struct {
	RunID         string                `json:"run_id"`
	Target        string                `json:"target"`
	CreatedAt     time.Time             `json:"created_at"`
	Engines       []domain.Engine       `json:"engines"`
	FailedEngines []domain.Engine       `json:"failed_engines"`
	Counts        domain.SeverityCounts `json:"counts"`
}

// PubSubPublisher implements EventPublisher using a Pub/Sub topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher constructs a publisher for the given topic. If the
// topic is nil, publishes are treated as no-ops.
func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{topic: topic}
}

func (p *PubSubPublisher) PublishCompleted(ctx context.Context, r *domain.Record) error {
	if p.topic == nil {
		return nil
	}
	data, err := json.Marshal(Completed{
		RunID:         r.RunID,
		Target:        string(r.Target),
		CreatedAt:     r.CreatedAt,
		Engines:       r.SortedEngines(),
		FailedEngines: r.Failures(),
		Counts:        r.Counts(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err = p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event":  EventCompleted,
			"run_id": r.RunID,
			"host":   r.Target.Host(),
		},
	}).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: %w", EventCompleted, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}

// NoopPublisher is used when no topic is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishCompleted(context.Context, *domain.Record) error { return nil }
