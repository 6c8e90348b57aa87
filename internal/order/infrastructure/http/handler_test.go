package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkurbanov/lounge-ops/internal/order/application"
	"github.com/rkurbanov/lounge-ops/internal/order/domain"
)

// fakeRepo is an in-memory OrderRepository used to exercise the handler's
// status mapping end to end.
type fakeRepo struct {
	orders map[string]domain.Order
}

func newFakeRepo(orders ...domain.Order) *fakeRepo {
	r := &fakeRepo{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (f *fakeRepo) SaveWithOutbox(_ context.Context, o domain.Order, _ string, _ []byte, _ string) error {
	f.orders[o.ID] = o
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, application.ErrNotFound
	}
	return o, nil
}

func (f *fakeRepo) List(context.Context, application.ListFilters) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id string, expected, to domain.OrderStatus, _ string, _ []byte, _ string) error {
	o, ok := f.orders[id]
	if !ok {
		return application.ErrNotFound
	}
	if o.Status != expected {
		return application.ErrStatusConflict
	}
	o.Status = to
	f.orders[id] = o
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id string, _ string, _ []byte, _ string) error {
	delete(f.orders, id)
	return nil
}

func (f *fakeRepo) VerifyLoyalty(_ context.Context, id string, _ string, _ []byte, _ string) error {
	o := f.orders[id]
	o.Loyalty.IsVerified = true
	f.orders[id] = o
	return nil
}

type fakeCatalog map[string]application.CatalogItem

func (c fakeCatalog) GetItems(context.Context, []string) (map[string]application.CatalogItem, error) {
	return c, nil
}

func newServer(repo *fakeRepo, catalog fakeCatalog) *httptest.Server {
	svc := application.NewService(slog.Default(), repo, catalog)
	return httptest.NewServer(NewHandler(slog.Default(), svc).Routes())
}

func TestCheckoutEndpoint(t *testing.T) {
	repo := newFakeRepo()
	srv := newServer(repo, fakeCatalog{
		"m1": {ID: "m1", Name: "Mint Tea", PriceCents: 450},
	})
	defer srv.Close()

	body := `{"table_number":3,"items":[{"menu_item_id":"m1","quantity":2}]}`
	resp, err := http.Post(srv.URL+"/orders", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, repo.orders, 1)
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	srv := newServer(newFakeRepo(), fakeCatalog{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/orders", "application/json", strings.NewReader(`{"table_number":3,"items":[]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	repo := newFakeRepo(domain.Order{ID: "o1", Status: domain.StatusDelivered})
	srv := newServer(repo, fakeCatalog{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/orders/o1/status", "application/json", strings.NewReader(`{"status":"cancelled"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, domain.StatusDelivered, repo.orders["o1"].Status, "rejected transition must not mutate state")
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	srv := newServer(newFakeRepo(), fakeCatalog{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/orders/missing/status", "application/json", strings.NewReader(`{"status":"confirmed"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteNonPendingRejected(t *testing.T) {
	repo := newFakeRepo(domain.Order{ID: "o1", Status: domain.StatusPreparing})
	srv := newServer(repo, fakeCatalog{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/orders/o1", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, repo.orders, "o1")
}

func TestDeletePending(t *testing.T) {
	repo := newFakeRepo(domain.Order{ID: "o1", Status: domain.StatusPending})
	srv := newServer(repo, fakeCatalog{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/orders/o1", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotContains(t, repo.orders, "o1")
}

func TestPurgeCancelled(t *testing.T) {
	repo := newFakeRepo(
		domain.Order{ID: "gone", Status: domain.StatusCancelled},
		domain.Order{ID: "done", Status: domain.StatusDelivered},
	)
	srv := newServer(repo, fakeCatalog{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/orders/gone/purge", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/orders/done/purge", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, repo.orders, "done")
}

func TestVerifyLoyaltyEndpoint(t *testing.T) {
	repo := newFakeRepo(domain.Order{
		ID: "o1", Status: domain.StatusConfirmed,
		Loyalty: &domain.LoyaltyDiscount{AmountCents: 500, Code: "B7QX"},
	})
	srv := newServer(repo, fakeCatalog{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/orders/o1/verify-loyalty", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, repo.orders["o1"].Loyalty.IsVerified)

	// verification is one-way: a second confirm is rejected
	resp, err = http.Post(srv.URL+"/orders/o1/verify-loyalty", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.True(t, repo.orders["o1"].Loyalty.IsVerified)
}

func TestDashboardEndpoint(t *testing.T) {
	repo := newFakeRepo(domain.Order{ID: "o1", Status: domain.StatusPending, TotalCents: 1000})
	srv := newServer(repo, fakeCatalog{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/orders/dashboard")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
