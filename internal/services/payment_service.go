package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"strings"
	"time"

	"princo/internal/models"
	"princo/internal/repositories"
	"princo/pkg/gateway"
	"princo/pkg/rabbitmq"

	"github.com/google/uuid"
)

// Client-input errors (400). These messages are safe to return to callers.
var (
	ErrMissingVerificationData = errors.New("missing payment verification data")
	ErrInvalidFormat           = errors.New("invalid format")
	ErrMissingOrderData        = errors.New("missing customer info, items, or amount")
	ErrInvalidAmount           = errors.New("invalid amount")
)

// Security and upstream errors. A signature mismatch deliberately carries a
// generic message: nothing about where the digests diverged leaks out.
var (
	ErrSignatureMismatch  = errors.New("payment verification failed")
	ErrPaymentNotCaptured = errors.New("payment not captured")
	ErrAmountMismatch     = errors.New("amount mismatch with gateway records")
)

// DuplicatePaymentError is the recognized terminal outcome for an idempotent
// replay: the payment already has an order. Not a failure; no write happened.
type DuplicatePaymentError struct {
	OrderID string
}

func (e *DuplicatePaymentError) Error() string {
	return "payment already processed"
}

// Gateway identifier formats are fixed by the processor.
var (
	gatewayOrderIDPattern = regexp.MustCompile(`^order_[A-Za-z0-9]{14}$`)
	paymentIDPattern      = regexp.MustCompile(`^pay_[A-Za-z0-9]{14}$`)
	signaturePattern      = regexp.MustCompile(`^[a-f0-9]{64}$`)
	emailPattern          = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	mobilePattern         = regexp.MustCompile(`^[6-9]\d{9}$`)
	nonDigitPattern       = regexp.MustCompile(`[^\d]`)
)

// PaymentGateway is the external payment processor collaborator. Amounts
// crossing this boundary are in minor currency units.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (*gateway.Intent, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
}

// OrderEventPublisher publishes order events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(event rabbitmq.OrderEvent) error
}

// CustomerInfo is the customer block of a payment request.
type CustomerInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Pincode string `json:"pincode"`
}

// ItemInput is a line item as submitted by the client.
type ItemInput struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Image    string  `json:"image"`
}

// VerifyPaymentRequest is the body of POST /api/payment/verify.
type VerifyPaymentRequest struct {
	GatewayOrderID string       `json:"gatewayOrderId"`
	PaymentID      string       `json:"paymentId"`
	Signature      string       `json:"signature"`
	CustomerInfo   CustomerInfo `json:"customerInfo"`
	Items          []ItemInput  `json:"items"`
	Amount         float64      `json:"amount"`
}

// CreateIntentRequest is the body of POST /api/payment/create-order.
type CreateIntentRequest struct {
	Amount       float64      `json:"amount"`
	Currency     string       `json:"currency"`
	CustomerInfo CustomerInfo `json:"customerInfo"`
	Items        []ItemInput  `json:"items"`
}

// maxIntentAmount caps a single payment intent, in major units.
const maxIntentAmount = 500000

// PaymentService handles payment intent creation and payment verification.
type PaymentService struct {
	orderRepo repositories.OrderRepository
	gw        PaymentGateway
	keySecret string
	events    OrderEventPublisher
}

// NewPaymentService creates a new PaymentService. The gateway client and key
// secret come from configuration validated at startup; events may be nil, in
// which case order events are simply not published.
func NewPaymentService(orderRepo repositories.OrderRepository, gw PaymentGateway, keySecret string, events OrderEventPublisher) *PaymentService {
	return &PaymentService{
		orderRepo: orderRepo,
		gw:        gw,
		keySecret: keySecret,
		events:    events,
	}
}

// VerifyPayment runs the payment verification flow. Each gate short-circuits
// with a specific error; the only durable write is the order insert on the
// success path, and a duplicate payment produces zero writes.
func (s *PaymentService) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*models.Order, error) {
	// 1. Presence of the gateway identifiers.
	if req.GatewayOrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, ErrMissingVerificationData
	}

	// 2. Fixed-format checks, before any storage or crypto work.
	if !gatewayOrderIDPattern.MatchString(req.GatewayOrderID) {
		return nil, fmt.Errorf("gateway order ID: %w", ErrInvalidFormat)
	}
	if !paymentIDPattern.MatchString(req.PaymentID) {
		return nil, fmt.Errorf("payment ID: %w", ErrInvalidFormat)
	}
	if !signaturePattern.MatchString(req.Signature) {
		return nil, fmt.Errorf("signature: %w", ErrInvalidFormat)
	}

	// 3. Presence of the order data.
	if req.CustomerInfo.Name == "" || req.CustomerInfo.Email == "" || req.CustomerInfo.Phone == "" ||
		len(req.Items) == 0 || req.Amount == 0 {
		return nil, ErrMissingOrderData
	}

	// 4. Numeric validity.
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	// 5. Idempotency: a replayed payment returns the existing order reference.
	existing, err := s.orderRepo.FindByPaymentID(req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing order: %w", err)
	}
	if existing != nil {
		return nil, &DuplicatePaymentError{OrderID: existing.OrderID}
	}

	// 6. Signature verification. Mismatches are security events, not bad input.
	if !gateway.VerifySignature(s.keySecret, req.GatewayOrderID, req.PaymentID, req.Signature) {
		log.Printf("SECURITY: payment signature verification failed for payment %s", req.PaymentID)
		return nil, ErrSignatureMismatch
	}

	// 7. Remote confirmation, best effort. The signature already proves the
	// client-presented identifiers are authentic, so a transport failure is
	// swallowed; a content failure from the gateway is a hard rejection.
	if payment, fetchErr := s.gw.FetchPayment(ctx, req.PaymentID); fetchErr != nil {
		log.Printf("Warning: could not confirm payment %s with gateway, proceeding on signature: %v", req.PaymentID, fetchErr)
	} else {
		if payment.Status != gateway.StatusCaptured {
			return nil, fmt.Errorf("%w (status: %s)", ErrPaymentNotCaptured, payment.Status)
		}
		if !minorUnitsMatch(req.Amount, payment.Amount) {
			return nil, ErrAmountMismatch
		}
	}

	// 8. Order reference: time component plus the payment ID tail. Collisions
	// are caught by the unique index on order_id, not assumed impossible.
	orderID := generateOrderID(req.PaymentID)

	// 9. Sanitize and persist.
	customer := sanitizeCustomer(req.CustomerInfo)
	now := time.Now()
	order := &models.Order{
		ID:              uuid.New().String(),
		OrderID:         orderID,
		PaymentID:       req.PaymentID,
		GatewayOrderID:  req.GatewayOrderID,
		Items:           sanitizeItems(req.Items),
		Total:           req.Amount,
		Status:          models.StatusCompleted,
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		CustomerPhone:   customer.Phone,
		CustomerAddress: customer.Address,
		CustomerCity:    customer.City,
		CustomerPincode: customer.Pincode,
		PaymentDate:     now,
	}

	if err := s.orderRepo.Create(order); err != nil {
		if errors.Is(err, repositories.ErrDuplicatePayment) {
			// Lost a race against a concurrent identical request: the storage
			// layer rejected the second insert. Same outcome as step 5.
			winner, findErr := s.orderRepo.FindByPaymentID(req.PaymentID)
			if findErr != nil || winner == nil {
				return nil, fmt.Errorf("failed to load order after duplicate payment conflict: %v", findErr)
			}
			return nil, &DuplicatePaymentError{OrderID: winner.OrderID}
		}
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	log.Printf("Order created: %s for payment %s by %s", order.OrderID, order.PaymentID, order.CustomerEmail)
	s.publishOrderEvent("order.completed", order)

	return order, nil
}

// CreateIntent validates the checkout payload and creates a payment intent at
// the gateway. The returned intent carries the amount in minor units.
func (s *PaymentService) CreateIntent(ctx context.Context, req CreateIntentRequest) (*gateway.Intent, error) {
	if req.CustomerInfo == (CustomerInfo{}) || len(req.Items) == 0 || req.Amount == 0 {
		return nil, ErrMissingOrderData
	}
	if req.Amount <= 0 || req.Amount > maxIntentAmount {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidAmount, maxIntentAmount)
	}

	currency := req.Currency
	if currency == "" {
		currency = "INR"
	}
	if currency != "INR" && currency != "USD" {
		return nil, fmt.Errorf("currency: %w (only INR and USD are supported)", ErrInvalidFormat)
	}

	if strings.TrimSpace(req.CustomerInfo.Name) == "" ||
		strings.TrimSpace(req.CustomerInfo.Email) == "" ||
		strings.TrimSpace(req.CustomerInfo.Phone) == "" {
		return nil, fmt.Errorf("customer name, email and phone: %w", ErrMissingOrderData)
	}
	if !emailPattern.MatchString(req.CustomerInfo.Email) {
		return nil, fmt.Errorf("email: %w", ErrInvalidFormat)
	}
	if !mobilePattern.MatchString(digitsOnly(req.CustomerInfo.Phone)) {
		return nil, fmt.Errorf("phone number: %w", ErrInvalidFormat)
	}

	var total float64
	for _, item := range req.Items {
		if item.ID == "" || item.Name == "" || item.Price <= 0 || item.Quantity <= 0 {
			return nil, fmt.Errorf("each item needs an id, name, positive price and positive quantity: %w", ErrMissingOrderData)
		}
		total += item.Price * float64(item.Quantity)
	}
	if !amountsMatch(total, req.Amount) {
		return nil, fmt.Errorf("%w: item total does not match provided amount", ErrInvalidAmount)
	}

	receipt := truncate(fmt.Sprintf("receipt_%d", time.Now().UnixMilli()), 40)
	intent, err := s.gw.CreateIntent(ctx, toMinorUnits(req.Amount), currency, receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	log.Printf("Payment intent created: %s for amount %.2f %s by %s", intent.ID, req.Amount, currency, req.CustomerInfo.Email)
	return intent, nil
}

// GetPaymentStatus fetches the gateway's record of a payment.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	payment, err := s.gw.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment status: %w", err)
	}
	return payment, nil
}

func (s *PaymentService) publishOrderEvent(eventType string, order *models.Order) {
	if s.events == nil {
		return
	}
	event := rabbitmq.OrderEvent{
		Type:      eventType,
		OrderID:   order.OrderID,
		PaymentID: order.PaymentID,
		Total:     order.Total,
		Status:    order.Status,
	}
	if err := s.events.PublishOrderEvent(event); err != nil {
		log.Printf("Warning: failed to publish %s event for order %s: %v", eventType, order.OrderID, err)
	}
}

// generateOrderID builds the public order reference from a millisecond
// timestamp and the payment ID tail.
func generateOrderID(paymentID string) string {
	tail := paymentID
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return fmt.Sprintf("ORD%d%s", time.Now().UnixMilli(), strings.ToUpper(tail))
}

// sanitizeCustomer caps field lengths and strips non-digits from phone and
// pincode. Absent names fall back to a placeholder so the ledger row is
// always displayable.
func sanitizeCustomer(c CustomerInfo) CustomerInfo {
	name := truncate(strings.TrimSpace(c.Name), 100)
	if name == "" {
		name = "Anonymous User"
	}
	return CustomerInfo{
		Name:    name,
		Email:   truncate(strings.TrimSpace(c.Email), 100),
		Phone:   truncate(digitsOnly(c.Phone), 15),
		Address: truncate(strings.TrimSpace(c.Address), 500),
		City:    truncate(strings.TrimSpace(c.City), 100),
		Pincode: truncate(digitsOnly(c.Pincode), 10),
	}
}

func sanitizeItems(items []ItemInput) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.OrderItem{
			ProductID: item.ID,
			Name:      truncate(item.Name, 200),
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     truncate(item.Image, 500),
		})
	}
	return out
}

// amountsMatch compares two major-unit amounts with a one-minor-unit
// tolerance. Comparing in rounded minor units keeps 100.01 vs 100.00 inside
// the tolerance despite binary float representation.
func amountsMatch(a, b float64) bool {
	return math.Abs(math.Round(a*100)-math.Round(b*100)) <= 1
}

// minorUnitsMatch compares a major-unit amount against a gateway amount in
// minor units, with the same one-minor-unit tolerance.
func minorUnitsMatch(major float64, minor int64) bool {
	return math.Abs(math.Round(major*100)-float64(minor)) <= 1
}

func toMinorUnits(major float64) int64 {
	return int64(math.Round(major * 100))
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func digitsOnly(s string) string {
	return nonDigitPattern.ReplaceAllString(s, "")
}
