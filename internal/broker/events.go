package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing checkout events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// Events of one session share a key so they stay ordered on one partition.
func sessionKey(sessionID string) string {
	return fmt.Sprintf("checkout-%s", sessionID)
}

// PublishCheckoutSubmitted publishes CheckoutSubmitted event
func (ep *EventPublisher) PublishCheckoutSubmitted(ctx context.Context, event *models.CheckoutSubmittedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishCheckoutFailed publishes CheckoutFailed event
func (ep *EventPublisher) PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onCheckoutSubmitted func(context.Context, *models.CheckoutSubmittedEvent) error
	onCheckoutFailed    func(context.Context, *models.CheckoutFailedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnCheckoutSubmitted registers a handler for CheckoutSubmitted events
func (eh *EventHandler) OnCheckoutSubmitted(handler func(context.Context, *models.CheckoutSubmittedEvent) error) {
	eh.onCheckoutSubmitted = handler
}

// OnCheckoutFailed registers a handler for CheckoutFailed events
func (eh *EventHandler) OnCheckoutFailed(handler func(context.Context, *models.CheckoutFailedEvent) error) {
	eh.onCheckoutFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	logger := util.GetLogger()

	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeCheckoutSubmitted:
		if eh.onCheckoutSubmitted != nil {
			var event models.CheckoutSubmittedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CheckoutSubmitted event: %w", err)
			}
			return eh.onCheckoutSubmitted(ctx, &event)
		}

	case models.EventTypeCheckoutFailed:
		if eh.onCheckoutFailed != nil {
			var event models.CheckoutFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CheckoutFailed event: %w", err)
			}
			return eh.onCheckoutFailed(ctx, &event)
		}

	default:
		logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
