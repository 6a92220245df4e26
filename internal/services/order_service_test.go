package services_test

import (
	"testing"

	"princo/internal/models"
	"princo/internal/repositories"
	"princo/internal/services"

	"github.com/stretchr/testify/assert"
)

func validDirectOrderRequest() services.DirectOrderRequest {
	return services.DirectOrderRequest{
		OrderID:       "ORD1700000000000XYZ1",
		PaymentID:     "pay_DDDDDDDDDDDDDD",
		Total:         250.00,
		Items:         []services.ItemInput{{ID: "prod-2", Name: "Flyers", Price: 125.00, Quantity: 2}},
		CustomerName:  "Raj Customer",
		CustomerEmail: "raj@example.com",
		CustomerPhone: "9812345678",
	}
}

func TestOrderService_CreateOrder(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	events := &recordingPublisher{}
	service := services.NewOrderService(repo, events)

	order, err := service.CreateOrder(validDirectOrderRequest())
	assert.NoError(t, err)
	assert.NotNil(t, order)
	// Client-asserted records start as processing, never completed.
	assert.Equal(t, models.StatusProcessing, order.Status)
	assert.Equal(t, "ORD1700000000000XYZ1", order.OrderID)
	assert.NotEmpty(t, order.ID)

	stored, err := repo.FindByPaymentID("pay_DDDDDDDDDDDDDD")
	assert.NoError(t, err)
	assert.NotNil(t, stored)

	assert.Len(t, events.events, 1)
	assert.Equal(t, "order.created", events.events[0].Type)
}

func TestOrderService_CreateOrder_MissingFields(t *testing.T) {
	service := services.NewOrderService(repositories.NewMockOrderRepository(), nil)

	cases := []struct {
		name   string
		mutate func(*services.DirectOrderRequest)
	}{
		{"no order ID", func(r *services.DirectOrderRequest) { r.OrderID = "" }},
		{"no payment ID", func(r *services.DirectOrderRequest) { r.PaymentID = "" }},
		{"zero total", func(r *services.DirectOrderRequest) { r.Total = 0 }},
		{"negative total", func(r *services.DirectOrderRequest) { r.Total = -5 }},
		{"no items", func(r *services.DirectOrderRequest) { r.Items = nil }},
		{"blank customer name", func(r *services.DirectOrderRequest) { r.CustomerName = "   " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validDirectOrderRequest()
			tc.mutate(&req)
			_, err := service.CreateOrder(req)
			assert.ErrorIs(t, err, services.ErrMissingFields)
		})
	}
}

func TestOrderService_CreateOrder_PlaceholderData(t *testing.T) {
	service := services.NewOrderService(repositories.NewMockOrderRepository(), nil)

	cases := []struct {
		name   string
		mutate func(*services.DirectOrderRequest)
	}{
		{"dummy order ID", func(r *services.DirectOrderRequest) { r.OrderID = "dummy_order" }},
		{"test order ID mixed case", func(r *services.DirectOrderRequest) { r.OrderID = "Test_Order" }},
		{"dummy payment ID", func(r *services.DirectOrderRequest) { r.PaymentID = "DUMMY_PAYMENT" }},
		{"test payment ID", func(r *services.DirectOrderRequest) { r.PaymentID = "test_payment" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validDirectOrderRequest()
			tc.mutate(&req)
			_, err := service.CreateOrder(req)
			assert.ErrorIs(t, err, services.ErrPlaceholderData)
		})
	}

	// The blocklist is exact match only: identifiers merely containing a
	// reserved word pass through.
	req := validDirectOrderRequest()
	req.OrderID = "dummy_order_2024"
	_, err := service.CreateOrder(req)
	assert.NoError(t, err)
}

func TestOrderService_CreateOrder_DuplicatePayment(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	service := services.NewOrderService(repo, nil)

	first, err := service.CreateOrder(validDirectOrderRequest())
	assert.NoError(t, err)

	req := validDirectOrderRequest()
	req.OrderID = "ORD1700000000001XYZ2"
	_, err = service.CreateOrder(req)

	var dup *services.DuplicatePaymentError
	assert.ErrorAs(t, err, &dup)
	assert.Equal(t, first.OrderID, dup.OrderID)
}

func TestOrderService_GetOrderByPaymentID(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	service := services.NewOrderService(repo, nil)

	created, err := service.CreateOrder(validDirectOrderRequest())
	assert.NoError(t, err)

	found, err := service.GetOrderByPaymentID("pay_DDDDDDDDDDDDDD")
	assert.NoError(t, err)
	assert.Equal(t, created.OrderID, found.OrderID)

	_, err = service.GetOrderByPaymentID("pay_EEEEEEEEEEEEEE")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no order found")
}

func TestOrderService_UpdateOrderStatus(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	service := services.NewOrderService(repo, nil)

	created, err := service.CreateOrder(validDirectOrderRequest())
	assert.NoError(t, err)

	err = service.UpdateOrderStatus(created.ID, models.StatusShipped)
	assert.NoError(t, err)

	updated, err := service.GetOrderByOrderID(created.OrderID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusShipped, updated.Status)

	err = service.UpdateOrderStatus(created.ID, "teleported")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid order status")

	err = service.UpdateOrderStatus("missing-id", models.StatusShipped)
	assert.Error(t, err)
}
