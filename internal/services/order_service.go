package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"princo/internal/models"
	"princo/internal/repositories"
	"princo/pkg/rabbitmq"

	"github.com/google/uuid"
)

// Direct-entry errors.
var (
	ErrMissingFields   = errors.New("missing required fields")
	ErrPlaceholderData = errors.New("placeholder data not allowed, only real payment data will be saved")
)

// placeholderIdentifiers are reserved sentinel values that must never reach
// the ledger. Exact match, case-insensitive.
var placeholderIdentifiers = map[string]bool{
	"dummy_order":   true,
	"test_order":    true,
	"dummy_payment": true,
	"test_payment":  true,
}

var validStatuses = map[string]bool{
	models.StatusPending:    true,
	models.StatusProcessing: true,
	models.StatusShipped:    true,
	models.StatusDelivered:  true,
	models.StatusCancelled:  true,
	models.StatusCompleted:  true,
}

// DirectOrderRequest is a pre-completed payment record submitted directly,
// without gateway signature proof.
type DirectOrderRequest struct {
	OrderID   string      `json:"orderId"`
	PaymentID string      `json:"paymentId"`
	Total     float64     `json:"total"`
	Items     []ItemInput `json:"items"`

	CustomerName    string `json:"customerName"`
	CustomerEmail   string `json:"customerEmail"`
	CustomerPhone   string `json:"customerPhone"`
	CustomerAddress string `json:"customerAddress"`
	CustomerCity    string `json:"customerCity"`
	CustomerPincode string `json:"customerPincode"`
}

// OrderService handles the order ledger outside the gateway-verified flow.
type OrderService struct {
	orderRepo repositories.OrderRepository
	events    OrderEventPublisher
}

// NewOrderService creates a new OrderService. events may be nil.
func NewOrderService(orderRepo repositories.OrderRepository, events OrderEventPublisher) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		events:    events,
	}
}

// GetAllOrders retrieves all orders, newest first.
func (s *OrderService) GetAllOrders() ([]models.Order, error) {
	return s.orderRepo.GetAll()
}

// GetOrderByOrderID retrieves a single order by its public order reference.
func (s *OrderService) GetOrderByOrderID(orderID string) (*models.Order, error) {
	return s.orderRepo.GetByOrderID(orderID)
}

// GetOrderByPaymentID retrieves the order recorded for a payment, if any.
func (s *OrderService) GetOrderByPaymentID(paymentID string) (*models.Order, error) {
	order, err := s.orderRepo.FindByPaymentID(paymentID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("no order found for payment ID %s", paymentID)
	}
	return order, nil
}

// CreateOrder records a client-asserted payment directly, without
// cryptographic proof. This is a deliberate trust boundary, not an oversight:
// it exists for manual and offline-payment bookkeeping and must never be
// merged with the gateway-verified flow. The placeholder blocklist keeps
// synthetic test records out of the ledger.
func (s *OrderService) CreateOrder(req DirectOrderRequest) (*models.Order, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Total <= 0 ||
		len(req.Items) == 0 || strings.TrimSpace(req.CustomerName) == "" {
		return nil, ErrMissingFields
	}

	if placeholderIdentifiers[strings.ToLower(req.OrderID)] ||
		placeholderIdentifiers[strings.ToLower(req.PaymentID)] {
		log.Printf("Placeholder data rejected: orderId=%s paymentId=%s", req.OrderID, req.PaymentID)
		return nil, ErrPlaceholderData
	}

	customer := sanitizeCustomer(CustomerInfo{
		Name:    req.CustomerName,
		Email:   req.CustomerEmail,
		Phone:   req.CustomerPhone,
		Address: req.CustomerAddress,
		City:    req.CustomerCity,
		Pincode: req.CustomerPincode,
	})

	order := &models.Order{
		ID:              uuid.New().String(),
		OrderID:         req.OrderID,
		PaymentID:       req.PaymentID,
		Items:           sanitizeItems(req.Items),
		Total:           req.Total,
		Status:          models.StatusProcessing,
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		CustomerPhone:   customer.Phone,
		CustomerAddress: customer.Address,
		CustomerCity:    customer.City,
		CustomerPincode: customer.Pincode,
		PaymentDate:     time.Now(),
	}

	if err := s.orderRepo.Create(order); err != nil {
		if errors.Is(err, repositories.ErrDuplicatePayment) {
			existing, findErr := s.orderRepo.FindByPaymentID(req.PaymentID)
			if findErr == nil && existing != nil {
				return nil, &DuplicatePaymentError{OrderID: existing.OrderID}
			}
			return nil, repositories.ErrDuplicatePayment
		}
		return nil, fmt.Errorf("failed to create order in repository: %w", err)
	}

	log.Printf("Order recorded directly: %s for payment %s", order.OrderID, order.PaymentID)
	if s.events != nil {
		event := rabbitmq.OrderEvent{
			Type:      "order.created",
			OrderID:   order.OrderID,
			PaymentID: order.PaymentID,
			Total:     order.Total,
			Status:    order.Status,
		}
		if err := s.events.PublishOrderEvent(event); err != nil {
			log.Printf("Warning: failed to publish order created event for order %s: %v", order.OrderID, err)
		}
	}

	return order, nil
}

// UpdateOrderStatus updates the status of an existing order.
func (s *OrderService) UpdateOrderStatus(id string, status string) error {
	if !validStatuses[status] {
		return fmt.Errorf("invalid order status: %s", status)
	}

	if err := s.orderRepo.UpdateStatus(id, status); err != nil {
		return fmt.Errorf("failed to update order status for order %s: %w", id, err)
	}
	return nil
}
