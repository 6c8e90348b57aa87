package application

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rkurbanov/lounge-ops/internal/order/domain"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) SaveWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, traceparent string) error {
	args := m.Called(ctx, o, eventType, payload, traceparent)
	return args.Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (domain.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Order), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context, f ListFilters) ([]domain.Order, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *MockRepo) UpdateStatus(ctx context.Context, id string, expected, to domain.OrderStatus, eventType string, payload []byte, traceparent string) error {
	args := m.Called(ctx, id, expected, to, eventType, payload, traceparent)
	return args.Error(0)
}

func (m *MockRepo) Delete(ctx context.Context, id string, eventType string, payload []byte, traceparent string) error {
	args := m.Called(ctx, id, eventType, payload, traceparent)
	return args.Error(0)
}

func (m *MockRepo) VerifyLoyalty(ctx context.Context, id string, eventType string, payload []byte, traceparent string) error {
	args := m.Called(ctx, id, eventType, payload, traceparent)
	return args.Error(0)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetItems(ctx context.Context, ids []string) (map[string]CatalogItem, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]CatalogItem), args.Error(1)
}

func newService(repo *MockRepo, catalog *MockCatalog) *Service {
	return NewService(slog.Default(), repo, catalog)
}

func TestCheckoutPricesAgainstCatalog(t *testing.T) {
	repo := new(MockRepo)
	catalog := new(MockCatalog)
	svc := newService(repo, catalog)
	ctx := context.Background()

	catalog.On("GetItems", ctx, []string{"m1", "m2"}).Return(map[string]CatalogItem{
		"m1": {ID: "m1", Name: "Mint Tea", PriceCents: 450},
		"m2": {ID: "m2", Name: "Double Apple", PriceCents: 1800},
	}, nil)
	repo.On("SaveWithOutbox", ctx, mock.AnythingOfType("domain.Order"), "OrderCreated", mock.Anything, "").Return(nil)

	o, err := svc.Checkout(ctx, CheckoutRequest{
		TableNumber: 5,
		Items: []CheckoutItem{
			{MenuItemID: "m1", Quantity: 2},
			{MenuItemID: "m2", Quantity: 1},
		},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2700), o.TotalCents)
	assert.Equal(t, domain.StatusPending, o.Status)
	repo.AssertExpectations(t)
	catalog.AssertExpectations(t)
}

func TestCheckoutRejectsUnknownItem(t *testing.T) {
	repo := new(MockRepo)
	catalog := new(MockCatalog)
	svc := newService(repo, catalog)
	ctx := context.Background()

	catalog.On("GetItems", ctx, []string{"nope"}).Return(map[string]CatalogItem{}, nil)

	_, err := svc.Checkout(ctx, CheckoutRequest{
		TableNumber: 1,
		Items:       []CheckoutItem{{MenuItemID: "nope", Quantity: 1}},
	}, "")
	assert.ErrorIs(t, err, ErrUnknownMenuItem)
	repo.AssertNotCalled(t, "SaveWithOutbox", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutGeneratesLoyaltyCode(t *testing.T) {
	repo := new(MockRepo)
	catalog := new(MockCatalog)
	svc := newService(repo, catalog)
	ctx := context.Background()

	catalog.On("GetItems", ctx, []string{"m1"}).Return(map[string]CatalogItem{
		"m1": {ID: "m1", Name: "Grape Mint", PriceCents: 1600},
	}, nil)
	repo.On("SaveWithOutbox", ctx, mock.Anything, "OrderCreated", mock.Anything, "").Return(nil)

	o, err := svc.Checkout(ctx, CheckoutRequest{
		TableNumber:        2,
		Items:              []CheckoutItem{{MenuItemID: "m1", Quantity: 1}},
		Phone:              "+355670000",
		LoyaltyAmountCents: 400,
		LoyaltyFreeItems:   1,
	}, "")
	require.NoError(t, err)
	require.NotNil(t, o.Loyalty)
	assert.Len(t, o.Loyalty.Code, 4)
	assert.False(t, o.Loyalty.IsVerified)
	assert.Equal(t, int64(1200), o.TotalCents)
}

func TestTransitionHappyPath(t *testing.T) {
	repo := new(MockRepo)
	svc := newService(repo, new(MockCatalog))
	ctx := context.Background()

	repo.On("Get", ctx, "o1").Return(domain.Order{ID: "o1", Status: domain.StatusPending}, nil)
	repo.On("UpdateStatus", ctx, "o1", domain.StatusPending, domain.StatusConfirmed,
		"OrderStatusChanged", mock.Anything, "").Return(nil)

	require.NoError(t, svc.Transition(ctx, "o1", domain.StatusConfirmed, ""))
	repo.AssertExpectations(t)
}

func TestTransitionRejectsInvalidMove(t *testing.T) {
	repo := new(MockRepo)
	svc := newService(repo, new(MockCatalog))
	ctx := context.Background()

	repo.On("Get", ctx, "o1").Return(domain.Order{ID: "o1", Status: domain.StatusDelivered}, nil)

	err := svc.Transition(ctx, "o1", domain.StatusCancelled, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTransitionRejectsConcurrentOperation(t *testing.T) {
	repo := new(MockRepo)
	svc := newService(repo, new(MockCatalog))
	ctx := context.Background()

	inFlight := make(chan struct{})
	proceed := make(chan struct{})
	repo.On("Get", ctx, "o1").Run(func(mock.Arguments) {
		close(inFlight)
		<-proceed
	}).Return(domain.Order{ID: "o1", Status: domain.StatusPending}, nil)
	repo.On("UpdateStatus", ctx, "o1", domain.StatusPending, domain.StatusConfirmed,
		"OrderStatusChanged", mock.Anything, "").Return(nil)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		firstErr = svc.Transition(ctx, "o1", domain.StatusConfirmed, "")
	}()

	<-inFlight
	// second attempt while the first is mid-flight is rejected, not queued
	err := svc.Transition(ctx, "o1", domain.StatusConfirmed, "")
	assert.ErrorIs(t, err, ErrBusy)

	close(proceed)
	wg.Wait()
	assert.NoError(t, firstErr)

	// the flag is released afterwards
	repo.On("Get", ctx, "o2").Return(domain.Order{ID: "o2", Status: domain.StatusReady}, nil)
	repo.On("UpdateStatus", ctx, "o2", domain.StatusReady, domain.StatusDelivered,
		"OrderStatusChanged", mock.Anything, "").Return(nil)
	assert.NoError(t, svc.Transition(ctx, "o2", domain.StatusDelivered, ""))
}

func TestDeleteOnlyPending(t *testing.T) {
	repo := new(MockRepo)
	svc := newService(repo, new(MockCatalog))
	ctx := context.Background()

	repo.On("Get", ctx, "o1").Return(domain.Order{ID: "o1", Status: domain.StatusPreparing}, nil)

	err := svc.Delete(ctx, "o1", "")
	assert.ErrorIs(t, err, domain.ErrNotDeletable)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurgeOnlyCancelled(t *testing.T) {
	repo := new(MockRepo)
	svc := newService(repo, new(MockCatalog))
	ctx := context.Background()

	repo.On("Get", ctx, "o1").Return(domain.Order{ID: "o1", Status: domain.StatusCancelled}, nil)
	repo.On("Delete", ctx, "o1", "OrderDeleted", mock.Anything, "").Return(nil)
	require.NoError(t, svc.PurgeCancelled(ctx, "o1", ""))

	repo.On("Get", ctx, "o2").Return(domain.Order{ID: "o2", Status: domain.StatusDelivered}, nil)
	assert.ErrorIs(t, svc.PurgeCancelled(ctx, "o2", ""), domain.ErrNotPurgeable)
}

func TestVerifyLoyaltyOneWay(t *testing.T) {
	repo := new(MockRepo)
	svc := newService(repo, new(MockCatalog))
	ctx := context.Background()

	repo.On("Get", ctx, "o1").Return(domain.Order{
		ID: "o1", Status: domain.StatusConfirmed,
		Loyalty: &domain.LoyaltyDiscount{AmountCents: 500, Code: "X2F9"},
	}, nil)
	repo.On("VerifyLoyalty", ctx, "o1", "LoyaltyVerified", mock.Anything, "").Return(nil)
	require.NoError(t, svc.VerifyLoyalty(ctx, "o1", ""))

	repo.On("Get", ctx, "o2").Return(domain.Order{
		ID: "o2", Status: domain.StatusConfirmed,
		Loyalty: &domain.LoyaltyDiscount{AmountCents: 500, IsVerified: true},
	}, nil)
	assert.ErrorIs(t, svc.VerifyLoyalty(ctx, "o2", ""), domain.ErrAlreadyVerified)

	repo.On("Get", ctx, "o3").Return(domain.Order{ID: "o3", Status: domain.StatusConfirmed}, nil)
	assert.ErrorIs(t, svc.VerifyLoyalty(ctx, "o3", ""), domain.ErrNoLoyaltyDiscount)
}

func TestStatsRecomputedFromList(t *testing.T) {
	repo := new(MockRepo)
	svc := newService(repo, new(MockCatalog))
	ctx := context.Background()

	repo.On("List", ctx, ListFilters{}).Return([]domain.Order{
		{ID: "a", Status: domain.StatusPending, TotalCents: 1000},
		{ID: "b", Status: domain.StatusDelivered, TotalCents: 2000,
			Payment: &domain.Payment{Status: domain.PaymentPaid, AmountCents: 2000}},
	}, nil)

	stats, err := svc.Stats(ctx, ListFilters{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, int64(2000), stats.PaidCents)
	assert.Equal(t, int64(1000), stats.UnpaidCents)
}
