package kitchen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
)

// Order statuses pushed to the order service.
const (
	OrderStatusInProgress = "In Progress"
	OrderStatusReady      = "Ready"
	OrderStatusCancelled  = "Cancelled"
)

// OrderGateway is the narrow view of the order collaborator the kitchen needs.
type OrderGateway interface {
	CurrentStatus(ctx context.Context, orderID OrderID) (string, error)
	UpdateStatus(ctx context.Context, orderID OrderID, status string) error
}

// OrderStatusFor maps a ticket status to the order status it implies.
// SERVED implies nothing: the order service owns closing the order.
func OrderStatusFor(status kitchenstatus.Ticket) (string, bool) {
	switch status {
	case kitchenstatus.TicketCancelled:
		return OrderStatusCancelled, true
	case kitchenstatus.TicketReady, kitchenstatus.TicketExpoConfirmed:
		return OrderStatusReady, true
	case kitchenstatus.TicketNew, kitchenstatus.TicketPreparing:
		return OrderStatusInProgress, true
	default:
		return "", false
	}
}

// OrderSyncBridge pushes ticket-derived status to the order when it differs.
type OrderSyncBridge struct {
	gateway OrderGateway
	logger  apt.Logger
}

func NewOrderSyncBridge(gateway OrderGateway, logger apt.Logger) *OrderSyncBridge {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &OrderSyncBridge{gateway: gateway, logger: logger}
}

// Sync reports whether a status was pushed.
func (b *OrderSyncBridge) Sync(ctx context.Context, t *Ticket) (bool, error) {
	if b == nil || b.gateway == nil || t == nil {
		return false, nil
	}

	desired, ok := OrderStatusFor(t.Status)
	if !ok {
		return false, nil
	}

	current, err := b.gateway.CurrentStatus(ctx, t.OrderID)
	if err != nil {
		return false, fmt.Errorf("cannot read order status: %w", err)
	}
	if current == desired {
		return false, nil
	}

	if err := b.gateway.UpdateStatus(ctx, t.OrderID, desired); err != nil {
		return false, fmt.Errorf("cannot update order status: %w", err)
	}

	b.logger.Info("order status synced", "order_id", t.OrderID.String(), "from", current, "to", desired)
	return true, nil
}

// HTTPOrderGateway talks to the order service REST API.
type HTTPOrderGateway struct {
	client *apt.ServiceClient
}

func NewHTTPOrderGateway(client *apt.ServiceClient) *HTTPOrderGateway {
	return &HTTPOrderGateway{client: client}
}

type orderStatusView struct {
	Status string `json:"status"`
}

func (g *HTTPOrderGateway) CurrentStatus(ctx context.Context, orderID OrderID) (string, error) {
	resp, err := g.client.Get(ctx, "orders", orderID.String())
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("nil success response")
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return "", err
	}

	var view orderStatusView
	if err := json.Unmarshal(raw, &view); err != nil {
		return "", err
	}
	return view.Status, nil
}

func (g *HTTPOrderGateway) UpdateStatus(ctx context.Context, orderID OrderID, status string) error {
	path := fmt.Sprintf("/orders/%s", orderID.String())
	_, err := g.client.Request(ctx, http.MethodPut, path, map[string]string{"status": status})
	return err
}
