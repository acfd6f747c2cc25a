package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"repairbot/internal/models"
	"repairbot/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishOrderPaid publishes OrderPaid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishPaymentLinkFailed publishes PaymentLinkFailed event
func (ep *EventPublisher) PublishPaymentLinkFailed(ctx context.Context, event *models.PaymentLinkFailedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishTicketOpened publishes TicketOpened event
func (ep *EventPublisher) PublishTicketOpened(ctx context.Context, event *models.TicketOpenedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("ticket-%d", event.TicketID), event)
}

// PublishAgentRequested publishes AgentRequested event
func (ep *EventPublisher) PublishAgentRequested(ctx context.Context, event *models.AgentRequestedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("customer-%s", event.WAID), event)
}

// EventHandler routes consumed events to registered callbacks.
type EventHandler struct {
	logger *zap.Logger

	onOrderCreated      func(context.Context, *models.OrderCreatedEvent) error
	onOrderPaid         func(context.Context, *models.OrderPaidEvent) error
	onPaymentLinkFailed func(context.Context, *models.PaymentLinkFailedEvent) error
	onTicketOpened      func(context.Context, *models.TicketOpenedEvent) error
	onAgentRequested    func(context.Context, *models.AgentRequestedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderCreated registers a handler for OrderCreated events
func (eh *EventHandler) OnOrderCreated(h func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = h
}

// OnOrderPaid registers a handler for OrderPaid events
func (eh *EventHandler) OnOrderPaid(h func(context.Context, *models.OrderPaidEvent) error) {
	eh.onOrderPaid = h
}

// OnPaymentLinkFailed registers a handler for PaymentLinkFailed events
func (eh *EventHandler) OnPaymentLinkFailed(h func(context.Context, *models.PaymentLinkFailedEvent) error) {
	eh.onPaymentLinkFailed = h
}

// OnTicketOpened registers a handler for TicketOpened events
func (eh *EventHandler) OnTicketOpened(h func(context.Context, *models.TicketOpenedEvent) error) {
	eh.onTicketOpened = h
}

// OnAgentRequested registers a handler for AgentRequested events
func (eh *EventHandler) OnAgentRequested(h func(context.Context, *models.AgentRequestedEvent) error) {
	eh.onAgentRequested = h
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", base.EventType),
		zap.String("id", base.EventID))

	switch base.EventType {
	case models.EventTypeOrderCreated:
		if eh.onOrderCreated != nil {
			var event models.OrderCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCreated event: %w", err)
			}
			return eh.onOrderCreated(ctx, &event)
		}

	case models.EventTypeOrderPaid:
		if eh.onOrderPaid != nil {
			var event models.OrderPaidEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderPaid event: %w", err)
			}
			return eh.onOrderPaid(ctx, &event)
		}

	case models.EventTypePaymentLinkFailed:
		if eh.onPaymentLinkFailed != nil {
			var event models.PaymentLinkFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentLinkFailed event: %w", err)
			}
			return eh.onPaymentLinkFailed(ctx, &event)
		}

	case models.EventTypeTicketOpened:
		if eh.onTicketOpened != nil {
			var event models.TicketOpenedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal TicketOpened event: %w", err)
			}
			return eh.onTicketOpened(ctx, &event)
		}

	case models.EventTypeAgentRequested:
		if eh.onAgentRequested != nil {
			var event models.AgentRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal AgentRequested event: %w", err)
			}
			return eh.onAgentRequested(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", base.EventType))
	}

	return nil
}
