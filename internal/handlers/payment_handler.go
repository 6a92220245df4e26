package handlers

import (
	"errors"
	"log"

	"princo/internal/services"

	"github.com/gofiber/fiber/v2"
)

// PaymentHandler handles HTTP requests for the payment flows.
type PaymentHandler struct {
	service    *services.PaymentService
	gatewayKey string // public key id, returned to checkout pages
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *services.PaymentService, gatewayKey string) *PaymentHandler {
	return &PaymentHandler{
		service:    service,
		gatewayKey: gatewayKey,
	}
}

// RegisterRoutes registers the payment routes with the Fiber app.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router) {
	paymentRoutes := router.Group("/payment")
	paymentRoutes.Post("/create-order", h.HandleCreateIntent)
	paymentRoutes.Post("/verify", h.HandleVerifyPayment)
	paymentRoutes.Get("/status/:paymentId", h.HandleGetPaymentStatus)
}

// HandleCreateIntent creates a payment intent at the gateway for checkout.
func (h *PaymentHandler) HandleCreateIntent(c *fiber.Ctx) error {
	var req services.CreateIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	intent, err := h.service.CreateIntent(c.Context(), req)
	if err != nil {
		if isClientInputError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		log.Printf("Error creating payment intent: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create payment order",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"order": fiber.Map{
			"id":       intent.ID,
			"amount":   intent.Amount,
			"currency": intent.Currency,
			"receipt":  intent.Receipt,
		},
		"key": h.gatewayKey,
	})
}

// HandleVerifyPayment runs the payment verification flow and records the order.
func (h *PaymentHandler) HandleVerifyPayment(c *fiber.Ctx) error {
	var req services.VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	order, err := h.service.VerifyPayment(c.Context(), req)
	if err != nil {
		var dup *services.DuplicatePaymentError
		if errors.As(err, &dup) {
			// Idempotent replay: the effect already happened. Point the caller
			// at the existing order; nothing was written.
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Payment already processed",
				"orderId": dup.OrderID,
			})
		}
		if errors.Is(err, services.ErrSignatureMismatch) || isClientInputError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		log.Printf("Error verifying payment: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Payment verification failed",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Payment verified and order created successfully",
		"order": fiber.Map{
			"id":        order.ID,
			"orderId":   order.OrderID,
			"paymentId": order.PaymentID,
			"amount":    order.Total,
			"status":    order.Status,
		},
	})
}

// HandleGetPaymentStatus fetches the gateway's record of a payment.
func (h *PaymentHandler) HandleGetPaymentStatus(c *fiber.Ctx) error {
	paymentID := c.Params("paymentId")

	payment, err := h.service.GetPaymentStatus(c.Context(), paymentID)
	if err != nil {
		log.Printf("Error fetching payment status for %s: %v", paymentID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch payment status",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"payment": fiber.Map{
			"id":         payment.ID,
			"status":     payment.Status,
			"amount":     payment.Amount,
			"currency":   payment.Currency,
			"method":     payment.Method,
			"created_at": payment.CreatedAt,
		},
	})
}

// isClientInputError reports whether the error comes from bad client input
// or a gateway content rejection, both of which map to a 400.
func isClientInputError(err error) bool {
	return errors.Is(err, services.ErrMissingVerificationData) ||
		errors.Is(err, services.ErrInvalidFormat) ||
		errors.Is(err, services.ErrMissingOrderData) ||
		errors.Is(err, services.ErrInvalidAmount) ||
		errors.Is(err, services.ErrPaymentNotCaptured) ||
		errors.Is(err, services.ErrAmountMismatch)
}
