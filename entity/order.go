package entity

import (
	"fmt"
	"net/http"
	"time"

	"larder/lib/validate"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
)

type OrderRequest struct {
	Plan    string `json:"plan" validate:"required"`
	Note    string `json:"note,omitempty"`
	Contact string `json:"contact,omitempty"`
}

func (o *OrderRequest) Bind(_ *http.Request) error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingFields, err)
	}
	return nil
}

// Order is an upgrade request; readable by its owner and admins only.
type Order struct {
	ID        string      `json:"objectId" bson:"_id"`
	Plan      string      `json:"plan" bson:"plan"`
	Note      string      `json:"note,omitempty" bson:"note,omitempty"`
	Contact   string      `json:"contact,omitempty" bson:"contact,omitempty"`
	Status    OrderStatus `json:"status" bson:"status"`
	UserID    string      `json:"user,omitempty" bson:"user_id,omitempty"`
	PaymentID string      `json:"paymentId,omitempty" bson:"payment_id,omitempty"`
	CreatedAt time.Time   `json:"createdAt" bson:"created_at"`
}

type OrderReceipt struct {
	ID          string `json:"id"`
	PaymentLink string `json:"paymentLink,omitempty"`
}

// PaymentConfirmation is a completed checkout reported by the payment provider.
type PaymentConfirmation struct {
	OrderID   string
	PaymentID string
}
