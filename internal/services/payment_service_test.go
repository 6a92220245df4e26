package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"princo/internal/models"
	"princo/internal/repositories"
	"princo/internal/services"
	"princo/pkg/gateway"
	"princo/pkg/rabbitmq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testKeySecret = "test_key_secret"

// MockOrderRepo is a testify mock of repositories.OrderRepository for
// call-level assertions. Flow tests that need real uniqueness semantics use
// repositories.NewMockOrderRepository instead.
type MockOrderRepo struct {
	mock.Mock
}

func (m *MockOrderRepo) GetAll() ([]models.Order, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrderRepo) GetByOrderID(orderID string) (*models.Order, error) {
	args := m.Called(orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepo) GetByID(id string) (*models.Order, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepo) FindByPaymentID(paymentID string) (*models.Order, error) {
	args := m.Called(paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepo) Create(order *models.Order) error {
	args := m.Called(order)
	return args.Error(0)
}

func (m *MockOrderRepo) UpdateStatus(id string, status string) error {
	args := m.Called(id, status)
	return args.Error(0)
}

// fakeGateway implements services.PaymentGateway with overridable behavior.
type fakeGateway struct {
	createIntent func(ctx context.Context, amountMinor int64, currency, receipt string) (*gateway.Intent, error)
	fetchPayment func(ctx context.Context, paymentID string) (*gateway.Payment, error)
}

func (f *fakeGateway) CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (*gateway.Intent, error) {
	if f.createIntent == nil {
		return &gateway.Intent{ID: "order_AAAAAAAAAAAAAA", Amount: amountMinor, Currency: currency, Receipt: receipt}, nil
	}
	return f.createIntent(ctx, amountMinor, currency, receipt)
}

func (f *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	if f.fetchPayment == nil {
		return nil, errors.New("gateway unreachable")
	}
	return f.fetchPayment(ctx, paymentID)
}

// recordingPublisher captures published order events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []rabbitmq.OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(event rabbitmq.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func capturedPayment(id string, amountMinor int64) func(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	return func(ctx context.Context, paymentID string) (*gateway.Payment, error) {
		return &gateway.Payment{ID: id, Status: gateway.StatusCaptured, Amount: amountMinor, Currency: "INR"}, nil
	}
}

func validVerifyRequest() services.VerifyPaymentRequest {
	gatewayOrderID := "order_AAAAAAAAAAAAAA"
	paymentID := "pay_BBBBBBBBBBBBBB"
	return services.VerifyPaymentRequest{
		GatewayOrderID: gatewayOrderID,
		PaymentID:      paymentID,
		Signature:      gateway.Signature(testKeySecret, gatewayOrderID, paymentID),
		CustomerInfo: services.CustomerInfo{
			Name:    "Jane Customer",
			Email:   "jane@example.com",
			Phone:   "+91 98765-43210",
			Address: "42 Print Street",
			City:    "Mumbai",
			Pincode: "400 001",
		},
		Items: []services.ItemInput{
			{ID: "prod-1", Name: "Business Cards", Price: 50.00, Quantity: 2},
		},
		Amount: 100.00,
	}
}

func TestPaymentService_VerifyPayment_Success(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	gw := &fakeGateway{fetchPayment: capturedPayment("pay_BBBBBBBBBBBBBB", 10000)}
	events := &recordingPublisher{}
	service := services.NewPaymentService(repo, gw, testKeySecret, events)

	order, err := service.VerifyPayment(context.Background(), validVerifyRequest())
	assert.NoError(t, err)
	assert.NotNil(t, order)

	assert.Equal(t, models.StatusCompleted, order.Status)
	assert.True(t, strings.HasPrefix(order.OrderID, "ORD"))
	assert.True(t, strings.HasSuffix(order.OrderID, "BBBB"), "order reference should end with the payment ID tail")
	assert.Equal(t, "pay_BBBBBBBBBBBBBB", order.PaymentID)
	assert.Equal(t, "order_AAAAAAAAAAAAAA", order.GatewayOrderID)
	assert.Equal(t, 100.00, order.Total)

	// Sanitization: phone and pincode reduced to digits.
	assert.Equal(t, "919876543210", order.CustomerPhone)
	assert.Equal(t, "400001", order.CustomerPincode)
	assert.Equal(t, "Jane Customer", order.CustomerName)
	assert.Len(t, order.Items, 1)
	assert.Equal(t, "Business Cards", order.Items[0].Name)

	// The order was persisted and is retrievable by its payment ID.
	stored, err := repo.FindByPaymentID("pay_BBBBBBBBBBBBBB")
	assert.NoError(t, err)
	assert.NotNil(t, stored)
	assert.Equal(t, order.OrderID, stored.OrderID)

	// A completion event was published.
	assert.Len(t, events.events, 1)
	assert.Equal(t, "order.completed", events.events[0].Type)
	assert.Equal(t, order.OrderID, events.events[0].OrderID)
}

func TestPaymentService_VerifyPayment_MissingVerificationData(t *testing.T) {
	mockRepo := new(MockOrderRepo)
	service := services.NewPaymentService(mockRepo, &fakeGateway{}, testKeySecret, nil)

	cases := []struct {
		name   string
		mutate func(*services.VerifyPaymentRequest)
	}{
		{"no gateway order ID", func(r *services.VerifyPaymentRequest) { r.GatewayOrderID = "" }},
		{"no payment ID", func(r *services.VerifyPaymentRequest) { r.PaymentID = "" }},
		{"no signature", func(r *services.VerifyPaymentRequest) { r.Signature = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validVerifyRequest()
			tc.mutate(&req)
			_, err := service.VerifyPayment(context.Background(), req)
			assert.ErrorIs(t, err, services.ErrMissingVerificationData)
		})
	}
	// No validation failure should reach the repository.
	mockRepo.AssertNotCalled(t, "FindByPaymentID", mock.Anything)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestPaymentService_VerifyPayment_InvalidFormats(t *testing.T) {
	mockRepo := new(MockOrderRepo)
	service := services.NewPaymentService(mockRepo, &fakeGateway{}, testKeySecret, nil)

	cases := []struct {
		name   string
		mutate func(*services.VerifyPaymentRequest)
	}{
		{"short gateway order ID", func(r *services.VerifyPaymentRequest) { r.GatewayOrderID = "order_SHORT" }},
		{"wrong gateway order prefix", func(r *services.VerifyPaymentRequest) { r.GatewayOrderID = "ordr_AAAAAAAAAAAAAA" }},
		{"short payment ID", func(r *services.VerifyPaymentRequest) { r.PaymentID = "pay_SHORT" }},
		{"payment ID with symbols", func(r *services.VerifyPaymentRequest) { r.PaymentID = "pay_BBBBBBBBBBBB!!" }},
		{"signature too short", func(r *services.VerifyPaymentRequest) { r.Signature = "abc123" }},
		{"signature uppercase hex", func(r *services.VerifyPaymentRequest) {
			r.Signature = strings.ToUpper(r.Signature)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validVerifyRequest()
			tc.mutate(&req)
			_, err := service.VerifyPayment(context.Background(), req)
			assert.ErrorIs(t, err, services.ErrInvalidFormat)
		})
	}
	// Malformed identifiers short-circuit before any storage access.
	mockRepo.AssertNotCalled(t, "FindByPaymentID", mock.Anything)
}

func TestPaymentService_VerifyPayment_MissingOrderData(t *testing.T) {
	service := services.NewPaymentService(new(MockOrderRepo), &fakeGateway{}, testKeySecret, nil)

	cases := []struct {
		name   string
		mutate func(*services.VerifyPaymentRequest)
	}{
		{"no customer name", func(r *services.VerifyPaymentRequest) { r.CustomerInfo.Name = "" }},
		{"no customer email", func(r *services.VerifyPaymentRequest) { r.CustomerInfo.Email = "" }},
		{"no customer phone", func(r *services.VerifyPaymentRequest) { r.CustomerInfo.Phone = "" }},
		{"no items", func(r *services.VerifyPaymentRequest) { r.Items = nil }},
		{"zero amount", func(r *services.VerifyPaymentRequest) { r.Amount = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validVerifyRequest()
			tc.mutate(&req)
			_, err := service.VerifyPayment(context.Background(), req)
			assert.ErrorIs(t, err, services.ErrMissingOrderData)
		})
	}
}

func TestPaymentService_VerifyPayment_NegativeAmount(t *testing.T) {
	service := services.NewPaymentService(new(MockOrderRepo), &fakeGateway{}, testKeySecret, nil)

	req := validVerifyRequest()
	req.Amount = -50.00
	_, err := service.VerifyPayment(context.Background(), req)
	assert.ErrorIs(t, err, services.ErrInvalidAmount)
}

func TestPaymentService_VerifyPayment_DuplicatePayment(t *testing.T) {
	mockRepo := new(MockOrderRepo)
	service := services.NewPaymentService(mockRepo, &fakeGateway{}, testKeySecret, nil)

	req := validVerifyRequest()
	existing := &models.Order{OrderID: "ORD1700000000000BBBB", PaymentID: req.PaymentID}
	mockRepo.On("FindByPaymentID", req.PaymentID).Return(existing, nil).Once()

	_, err := service.VerifyPayment(context.Background(), req)

	var dup *services.DuplicatePaymentError
	assert.ErrorAs(t, err, &dup)
	assert.Equal(t, "ORD1700000000000BBBB", dup.OrderID)
	// A replay must produce zero writes.
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestPaymentService_VerifyPayment_SignatureMismatch(t *testing.T) {
	mockRepo := new(MockOrderRepo)
	service := services.NewPaymentService(mockRepo, &fakeGateway{}, testKeySecret, nil)

	req := validVerifyRequest()
	// A well-formed signature computed with the wrong secret.
	req.Signature = gateway.Signature("wrong_secret", req.GatewayOrderID, req.PaymentID)
	mockRepo.On("FindByPaymentID", req.PaymentID).Return(nil, nil).Once()

	_, err := service.VerifyPayment(context.Background(), req)
	assert.ErrorIs(t, err, services.ErrSignatureMismatch)
	assert.Equal(t, "payment verification failed", err.Error(), "mismatch detail must not leak to the caller")
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestPaymentService_VerifyPayment_GatewayUnreachable(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	// fetchPayment nil means every fetch fails with a transport error.
	service := services.NewPaymentService(repo, &fakeGateway{}, testKeySecret, nil)

	order, err := service.VerifyPayment(context.Background(), validVerifyRequest())
	assert.NoError(t, err, "a transport failure confirming the payment must not block a signed request")
	assert.NotNil(t, order)
	assert.Equal(t, models.StatusCompleted, order.Status)
}

func TestPaymentService_VerifyPayment_NotCaptured(t *testing.T) {
	mockRepo := new(MockOrderRepo)
	gw := &fakeGateway{fetchPayment: func(ctx context.Context, paymentID string) (*gateway.Payment, error) {
		return &gateway.Payment{ID: paymentID, Status: "failed", Amount: 10000}, nil
	}}
	service := services.NewPaymentService(mockRepo, gw, testKeySecret, nil)

	req := validVerifyRequest()
	mockRepo.On("FindByPaymentID", req.PaymentID).Return(nil, nil).Once()

	_, err := service.VerifyPayment(context.Background(), req)
	assert.ErrorIs(t, err, services.ErrPaymentNotCaptured)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestPaymentService_VerifyPayment_AmountTolerance(t *testing.T) {
	cases := []struct {
		name         string
		gatewayMinor int64
		wantMismatch bool
	}{
		{"exact match", 10000, false},
		{"one paisa under", 9999, false},
		{"one paisa over", 10001, false},
		{"two paise under", 9998, true},
		{"well off", 12000, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := repositories.NewMockOrderRepository()
			gw := &fakeGateway{fetchPayment: capturedPayment("pay_BBBBBBBBBBBBBB", tc.gatewayMinor)}
			service := services.NewPaymentService(repo, gw, testKeySecret, nil)

			_, err := service.VerifyPayment(context.Background(), validVerifyRequest())
			if tc.wantMismatch {
				assert.ErrorIs(t, err, services.ErrAmountMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPaymentService_VerifyPayment_StorageRace(t *testing.T) {
	mockRepo := new(MockOrderRepo)
	service := services.NewPaymentService(mockRepo, &fakeGateway{}, testKeySecret, nil)

	req := validVerifyRequest()
	winner := &models.Order{OrderID: "ORD1700000000001BBBB", PaymentID: req.PaymentID}

	// The pre-insert check sees nothing, the insert hits the unique index, and
	// the re-read finds the order the concurrent request created.
	mockRepo.On("FindByPaymentID", req.PaymentID).Return(nil, nil).Once()
	mockRepo.On("Create", mock.AnythingOfType("*models.Order")).Return(repositories.ErrDuplicatePayment).Once()
	mockRepo.On("FindByPaymentID", req.PaymentID).Return(winner, nil).Once()

	_, err := service.VerifyPayment(context.Background(), req)

	var dup *services.DuplicatePaymentError
	assert.ErrorAs(t, err, &dup)
	assert.Equal(t, winner.OrderID, dup.OrderID)
	mockRepo.AssertExpectations(t)
}

func TestPaymentService_VerifyPayment_ConcurrentReplays(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	service := services.NewPaymentService(repo, &fakeGateway{}, testKeySecret, nil)
	req := validVerifyRequest()

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.VerifyPayment(context.Background(), req)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, duplicates := 0, 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var dup *services.DuplicatePaymentError
		if assert.ErrorAs(t, err, &dup) {
			duplicates++
		}
	}
	assert.Equal(t, 1, successes, "exactly one of the concurrent requests may create the order")
	assert.Equal(t, workers-1, duplicates)

	orders, err := repo.GetAll()
	assert.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestPaymentService_CreateIntent(t *testing.T) {
	validReq := func() services.CreateIntentRequest {
		return services.CreateIntentRequest{
			Amount: 100.00,
			CustomerInfo: services.CustomerInfo{
				Name:  "Jane Customer",
				Email: "jane@example.com",
				Phone: "9876543210",
			},
			Items: []services.ItemInput{
				{ID: "prod-1", Name: "Business Cards", Price: 50.00, Quantity: 2},
			},
		}
	}

	t.Run("success converts to minor units and defaults to INR", func(t *testing.T) {
		var gotMinor int64
		var gotCurrency, gotReceipt string
		gw := &fakeGateway{createIntent: func(ctx context.Context, amountMinor int64, currency, receipt string) (*gateway.Intent, error) {
			gotMinor, gotCurrency, gotReceipt = amountMinor, currency, receipt
			return &gateway.Intent{ID: "order_CCCCCCCCCCCCCC", Amount: amountMinor, Currency: currency, Receipt: receipt}, nil
		}}
		service := services.NewPaymentService(repositories.NewMockOrderRepository(), gw, testKeySecret, nil)

		intent, err := service.CreateIntent(context.Background(), validReq())
		assert.NoError(t, err)
		assert.Equal(t, "order_CCCCCCCCCCCCCC", intent.ID)
		assert.Equal(t, int64(10000), gotMinor)
		assert.Equal(t, "INR", gotCurrency)
		assert.True(t, strings.HasPrefix(gotReceipt, "receipt_"))
		assert.LessOrEqual(t, len(gotReceipt), 40)
	})

	t.Run("validation failures never reach the gateway", func(t *testing.T) {
		cases := []struct {
			name    string
			mutate  func(*services.CreateIntentRequest)
			wantErr error
		}{
			{"no items", func(r *services.CreateIntentRequest) { r.Items = nil }, services.ErrMissingOrderData},
			{"zero amount", func(r *services.CreateIntentRequest) { r.Amount = 0 }, services.ErrMissingOrderData},
			{"negative amount", func(r *services.CreateIntentRequest) { r.Amount = -10 }, services.ErrInvalidAmount},
			{"amount above cap", func(r *services.CreateIntentRequest) { r.Amount = 500001 }, services.ErrInvalidAmount},
			{"unsupported currency", func(r *services.CreateIntentRequest) { r.Currency = "EUR" }, services.ErrInvalidFormat},
			{"bad email", func(r *services.CreateIntentRequest) { r.CustomerInfo.Email = "not-an-email" }, services.ErrInvalidFormat},
			{"bad mobile prefix", func(r *services.CreateIntentRequest) { r.CustomerInfo.Phone = "1234567890" }, services.ErrInvalidFormat},
			{"item without price", func(r *services.CreateIntentRequest) { r.Items[0].Price = 0 }, services.ErrMissingOrderData},
			{"item total mismatch", func(r *services.CreateIntentRequest) { r.Amount = 150.00 }, services.ErrInvalidAmount},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				gw := &fakeGateway{createIntent: func(ctx context.Context, amountMinor int64, currency, receipt string) (*gateway.Intent, error) {
					t.Fatal("gateway must not be called for an invalid request")
					return nil, nil
				}}
				service := services.NewPaymentService(repositories.NewMockOrderRepository(), gw, testKeySecret, nil)

				req := validReq()
				tc.mutate(&req)
				_, err := service.CreateIntent(context.Background(), req)
				assert.ErrorIs(t, err, tc.wantErr)
			})
		}
	})

	t.Run("item total within one minor unit is accepted", func(t *testing.T) {
		service := services.NewPaymentService(repositories.NewMockOrderRepository(), &fakeGateway{}, testKeySecret, nil)
		req := validReq()
		req.Amount = 100.01
		_, err := service.CreateIntent(context.Background(), req)
		assert.NoError(t, err)
	})

	t.Run("gateway error is wrapped", func(t *testing.T) {
		gw := &fakeGateway{createIntent: func(ctx context.Context, amountMinor int64, currency, receipt string) (*gateway.Intent, error) {
			return nil, errors.New("gateway: 500")
		}}
		service := services.NewPaymentService(repositories.NewMockOrderRepository(), gw, testKeySecret, nil)

		_, err := service.CreateIntent(context.Background(), validReq())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create payment intent")
	})
}

func TestPaymentService_VerifyPayment_SanitizationCaps(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	service := services.NewPaymentService(repo, &fakeGateway{}, testKeySecret, nil)

	req := validVerifyRequest()
	req.CustomerInfo.Name = "   "
	req.CustomerInfo.Address = strings.Repeat("a", 600)
	req.CustomerInfo.Phone = strings.Repeat("9", 30)
	req.Items[0].Name = strings.Repeat("x", 250)

	order, err := service.VerifyPayment(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, "Anonymous User", order.CustomerName)
	assert.Len(t, order.CustomerAddress, 500)
	assert.Len(t, order.CustomerPhone, 15)
	assert.Len(t, order.Items[0].Name, 200)
}

func TestPaymentService_GetPaymentStatus(t *testing.T) {
	gw := &fakeGateway{fetchPayment: capturedPayment("pay_BBBBBBBBBBBBBB", 10000)}
	service := services.NewPaymentService(repositories.NewMockOrderRepository(), gw, testKeySecret, nil)

	payment, err := service.GetPaymentStatus(context.Background(), "pay_BBBBBBBBBBBBBB")
	assert.NoError(t, err)
	assert.Equal(t, gateway.StatusCaptured, payment.Status)

	failing := &fakeGateway{}
	service = services.NewPaymentService(repositories.NewMockOrderRepository(), failing, testKeySecret, nil)
	_, err = service.GetPaymentStatus(context.Background(), "pay_BBBBBBBBBBBBBB")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch payment status")
}
