package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Publisher defines the output port for publishing gateway events.
type Publisher interface {
	PublishInvalidation(ctx context.Context, body interface{}) error
	PublishNotify(ctx context.Context, body interface{}) error
}

// MessageSender defines the interface for sending raw messages to a messaging system.
type MessageSender interface {
	SendMessage(ctx context.Context, destination string, body []byte) error
}

type Producer struct {
	sender               MessageSender
	invalidationQueueURL string
	notifyQueueURL       string
}

func NewProducer(sender MessageSender, invalidationQueueURL, notifyQueueURL string) *Producer {
	return &Producer{
		sender:               sender,
		invalidationQueueURL: invalidationQueueURL,
		notifyQueueURL:       notifyQueueURL,
	}
}

func (p *Producer) PublishInvalidation(ctx context.Context, body interface{}) error {
	return p.publish(ctx, p.invalidationQueueURL, body)
}

func (p *Producer) PublishNotify(ctx context.Context, body interface{}) error {
	return p.publish(ctx, p.notifyQueueURL, body)
}

func (p *Producer) publish(ctx context.Context, destination string, body interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	// Enrich the current span with employee_id if available
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		var payload struct {
			EmployeeID string `json:"employeeId"`
		}
		if err := json.Unmarshal(b, &payload); err == nil && payload.EmployeeID != "" {
			span.SetAttributes(attribute.String("app.employeeId", payload.EmployeeID))
		}
	}

	if err := p.sender.SendMessage(ctx, destination, b); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
