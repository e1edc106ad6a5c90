package recordstore

import (
	"context"
	"fmt"

	"larder/entity"
)

func (c *Client) CreateOrder(ctx context.Context, order *entity.Order) error {
	payload := map[string]interface{}{
		"plan":    order.Plan,
		"note":    order.Note,
		"contact": order.Contact,
		"status":  order.Status,
		"ACL":     ownerACL(order.UserID),
	}
	if order.UserID != "" {
		payload["user"] = userPointer(order.UserID)
	}
	res, err := c.create(ctx, classOrder, payload)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	order.ID = res.ObjectID
	order.CreatedAt = res.CreatedAt
	return nil
}

func (c *Client) MarkOrderPaid(ctx context.Context, id, paymentID string) error {
	payload := map[string]interface{}{
		"status":    entity.OrderStatusPaid,
		"paymentId": paymentID,
	}
	if _, err := c.update(ctx, classOrder, id, payload, nil); err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	return nil
}
