package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"github.com/appetiteclub/kitchenops/pkg/event"
	"github.com/google/uuid"
)

// systemActor is recorded on tickets created from the order stream.
var systemActor = kitchen.Actor{ID: "order-service", Role: "System"}

// TicketCreator is the kitchen operation the subscriber drives.
type TicketCreator interface {
	CreateTicketForOrder(ctx context.Context, p kitchen.OrderPlacement, actor kitchen.Actor) (*kitchen.Ticket, bool, error)
}

// OrderPlacedSubscriber turns placed orders into kitchen tickets.
type OrderPlacedSubscriber struct {
	subscriber events.Subscriber
	creator    TicketCreator
	logger     apt.Logger
}

func NewOrderPlacedSubscriber(subscriber events.Subscriber, creator TicketCreator, logger apt.Logger) *OrderPlacedSubscriber {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &OrderPlacedSubscriber{
		subscriber: subscriber,
		creator:    creator,
		logger:     logger,
	}
}

func (s *OrderPlacedSubscriber) Start(ctx context.Context) error {
	s.logger.Info("Starting OrderPlacedSubscriber", "topic", event.OrdersPlacedTopic)

	if err := s.subscriber.Subscribe(ctx, event.OrdersPlacedTopic, s.handleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", event.OrdersPlacedTopic, err)
	}

	s.logger.Info("OrderPlacedSubscriber started successfully")
	return nil
}

// handleEvent drops malformed messages and returns storage failures so the
// transport can log or redeliver them.
func (s *OrderPlacedSubscriber) handleEvent(ctx context.Context, msg []byte) error {
	var evt event.OrderPlacedEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		s.logger.Errorf("Failed to unmarshal order event: %v", err)
		return nil
	}

	if evt.EventType != "" && evt.EventType != event.EventOrderPlaced {
		s.logger.Infof("Ignoring order event type: %s", evt.EventType)
		return nil
	}

	p, err := placementFrom(evt)
	if err != nil {
		s.logger.Errorf("Invalid order event: %v", err)
		return nil
	}

	t, created, err := s.creator.CreateTicketForOrder(ctx, p, systemActor)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			s.logger.Errorf("Rejected order %s: %v", evt.OrderID, err)
			return nil
		}
		s.logger.Errorf("Failed to create ticket for order %s: %v", evt.OrderID, err)
		return err
	}

	if created {
		s.logger.Infof("Created ticket %s for order %s", t.ID, evt.OrderID)
	}
	return nil
}

func placementFrom(evt event.OrderPlacedEvent) (kitchen.OrderPlacement, error) {
	orderID, err := uuid.Parse(evt.OrderID)
	if err != nil {
		return kitchen.OrderPlacement{}, fmt.Errorf("invalid order_id %q: %w", evt.OrderID, err)
	}

	lines := make([]kitchen.OrderLine, 0, len(evt.Items))
	for _, it := range evt.Items {
		lines = append(lines, kitchen.OrderLine{
			Name:     it.Name,
			Quantity: it.Quantity,
			Notes:    it.Notes,
		})
	}

	return kitchen.OrderPlacement{
		OrderID:         orderID,
		LocationID:      evt.LocationID,
		SourceType:      evt.SourceType,
		FulfillmentType: evt.FulfillmentType,
		OrderStatus:     evt.OrderStatus,
		CustomerName:    evt.CustomerName,
		TableRef:        evt.TableRef,
		Lines:           lines,
	}, nil
}
