package repositories

import (
	"errors"

	"princo/internal/models"
)

// ErrDuplicatePayment is returned by Create when the payment ID is already
// recorded. The unique index on payment_id is the real guard: two concurrent
// requests can both pass a FindByPaymentID check, but only one insert wins.
var ErrDuplicatePayment = errors.New("an order already exists for this payment")

// OrderRepository defines the interface for order ledger access.
type OrderRepository interface {
	GetAll() ([]models.Order, error)
	GetByOrderID(orderID string) (*models.Order, error)
	GetByID(id string) (*models.Order, error)
	// FindByPaymentID returns (nil, nil) when no order exists for the payment.
	FindByPaymentID(paymentID string) (*models.Order, error)
	// Create inserts a new order; ErrDuplicatePayment on a payment_id collision.
	Create(order *models.Order) error
	UpdateStatus(id string, status string) error
	// Orders are never deleted: the ledger is append-only apart from status.
}
