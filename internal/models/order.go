package models

import "time"

// Order statuses. Manually entered orders move through the fulfilment states;
// gateway-verified orders are created directly as StatusCompleted.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
	StatusCompleted  = "completed"
)

// OrderItem is a single line item within an order, priced at order time.
type OrderItem struct {
	ID        uint    `json:"-" gorm:"primaryKey;autoIncrement"`
	OrderRef  string  `json:"-" gorm:"index;type:varchar(36)"`
	ProductID string  `json:"id" gorm:"type:varchar(64)"`
	Name      string  `json:"name" gorm:"type:varchar(200)"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty" gorm:"type:varchar(500)"`
}

// Order is the ledger entry for a purchase. PaymentID carries a unique index:
// it is the idempotency key that guarantees at most one order per real-world
// payment, enforced at the storage layer so concurrent identical requests
// cannot both insert.
type Order struct {
	ID             string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID        string      `json:"orderId" gorm:"uniqueIndex;type:varchar(64)"`
	PaymentID      string      `json:"paymentId" gorm:"uniqueIndex;type:varchar(64)"`
	GatewayOrderID string      `json:"gatewayOrderId,omitempty" gorm:"type:varchar(64)"`
	Items          []OrderItem `json:"items" gorm:"foreignKey:OrderRef;references:ID"`
	Total          float64     `json:"amount"`
	Status         string      `json:"status"`

	CustomerName    string `json:"customerName" gorm:"type:varchar(100)"`
	CustomerEmail   string `json:"customerEmail" gorm:"type:varchar(100)"`
	CustomerPhone   string `json:"customerPhone" gorm:"type:varchar(15)"`
	CustomerAddress string `json:"customerAddress,omitempty" gorm:"type:varchar(500)"`
	CustomerCity    string `json:"customerCity,omitempty" gorm:"type:varchar(100)"`
	CustomerPincode string `json:"customerPincode,omitempty" gorm:"type:varchar(10)"`

	PaymentDate time.Time `json:"paymentDate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
