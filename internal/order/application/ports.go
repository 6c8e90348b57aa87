package application

import (
	"context"
	"errors"
	"time"

	"github.com/rkurbanov/lounge-ops/internal/order/domain"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict: the expected-current-status precondition on a
	// conditional update did not hold, someone else changed the order first.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

type ListFilters struct {
	Status      domain.OrderStatus
	TableNumber int
	Search      string
	From        time.Time
	To          time.Time
}

type OrderRepository interface {
	SaveWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, traceparent string) error
	Get(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context, f ListFilters) ([]domain.Order, error)
	// UpdateStatus applies a conditional transition: the row is touched only
	// while its status still equals expected, otherwise ErrStatusConflict.
	UpdateStatus(ctx context.Context, id string, expected, to domain.OrderStatus, eventType string, payload []byte, traceparent string) error
	Delete(ctx context.Context, id string, eventType string, payload []byte, traceparent string) error
	VerifyLoyalty(ctx context.Context, id string, eventType string, payload []byte, traceparent string) error
}

type CatalogItem struct {
	ID         string
	Name       string
	PriceCents int64
}

type Catalog interface {
	GetItems(ctx context.Context, ids []string) (map[string]CatalogItem, error)
}
