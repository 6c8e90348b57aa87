package application

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rkurbanov/lounge-ops/internal/order/domain"
)

var (
	// ErrBusy: another staff-driven write is already in flight. Admin writes
	// are deliberately serialized through one flag to swallow rapid
	// double-submissions; the second attempt is rejected, never queued.
	ErrBusy = errors.New("another operation is in progress")

	ErrUnknownMenuItem = errors.New("unknown menu item")
	ErrEmptyOrder      = errors.New("order has no items")
	ErrBadDiscount     = errors.New("loyalty discount exceeds order total")
)

type Service struct {
	log     *slog.Logger
	repo    OrderRepository
	catalog Catalog
	busy    atomic.Bool
}

func NewService(log *slog.Logger, repo OrderRepository, catalog Catalog) *Service {
	return &Service{log: log, repo: repo, catalog: catalog}
}

// acquire takes the single-writer flag for one admin operation.
func (s *Service) acquire() (release func(), err error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { s.busy.Store(false) }, nil
}

type CheckoutItem struct {
	MenuItemID   string
	Quantity     int
	Instructions string
}

type CheckoutRequest struct {
	TableNumber  int
	Items        []CheckoutItem
	CustomerName string
	Phone        string
	Instructions string
	// optional loyalty redemption computed by the loyalty program
	LoyaltyAmountCents int64
	LoyaltyFreeItems   int
}

// Checkout prices the cart against the catalog and persists a new pending
// order. Customer-facing, so it is not gated by the admin busy flag.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest, traceparent string) (domain.Order, error) {
	if len(req.Items) == 0 {
		return domain.Order{}, ErrEmptyOrder
	}

	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.MenuItemID)
	}
	catalog, err := s.catalog.GetItems(ctx, ids)
	if err != nil {
		return domain.Order{}, err
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		ci, ok := catalog[it.MenuItemID]
		if !ok {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrUnknownMenuItem, it.MenuItemID)
		}
		if it.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("invalid quantity for %s", ci.Name)
		}
		items = append(items, domain.OrderItem{
			MenuItemID:   ci.ID,
			Name:         ci.Name,
			Quantity:     it.Quantity,
			PriceCents:   ci.PriceCents,
			Instructions: it.Instructions,
		})
	}

	o := domain.NewOrder(uuid.NewString(), req.TableNumber, items)
	o.CustomerName = req.CustomerName
	o.Phone = req.Phone
	o.Instructions = req.Instructions

	if req.LoyaltyAmountCents > 0 || req.LoyaltyFreeItems > 0 {
		if req.LoyaltyAmountCents > o.TotalCents {
			return domain.Order{}, ErrBadDiscount
		}
		o.ApplyLoyalty(domain.LoyaltyDiscount{
			AmountCents: req.LoyaltyAmountCents,
			FreeItems:   req.LoyaltyFreeItems,
			Phone:       req.Phone,
			Code:        verificationCode(),
		})
	}

	payload, err := json.Marshal(domain.OrderCreated{
		OrderID:     o.ID,
		TableNumber: o.TableNumber,
		TotalCents:  o.TotalCents,
		Items:       o.Items,
	})
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.repo.SaveWithOutbox(ctx, o, "OrderCreated", payload, traceparent); err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order created", "order_id", o.ID, "table", o.TableNumber, "total_cents", o.TotalCents)
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilters) ([]domain.Order, error) {
	return s.repo.List(ctx, f)
}

// Stats recomputes the derived statistics from the filtered order window.
func (s *Service) Stats(ctx context.Context, f ListFilters) (domain.OrderStats, error) {
	orders, err := s.repo.List(ctx, f)
	if err != nil {
		return domain.OrderStats{}, err
	}
	return domain.ComputeStats(orders), nil
}

// Transition moves an order one step through its lifecycle. The precondition
// check runs locally first, then again in the store as a conditional update,
// so two staff members racing on the same order cannot both win.
func (s *Service) Transition(ctx context.Context, id string, to domain.OrderStatus, traceparent string) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := domain.CheckTransition(o.Status, to); err != nil {
		return err
	}

	payload, err := json.Marshal(domain.OrderStatusChanged{
		OrderID:     o.ID,
		TableNumber: o.TableNumber,
		From:        o.Status,
		To:          to,
	})
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, o.Status, to, "OrderStatusChanged", payload, traceparent); err != nil {
		return err
	}
	s.log.Info("order transitioned", "order_id", id, "from", o.Status, "to", to)
	return nil
}

// Delete removes an order that is still pending.
func (s *Service) Delete(ctx context.Context, id string, traceparent string) error {
	return s.remove(ctx, id, false, traceparent)
}

// PurgeCancelled removes a cancelled order from the completed view.
func (s *Service) PurgeCancelled(ctx context.Context, id string, traceparent string) error {
	return s.remove(ctx, id, true, traceparent)
}

func (s *Service) remove(ctx context.Context, id string, purge bool, traceparent string) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if purge {
		if o.Status != domain.StatusCancelled {
			return domain.ErrNotPurgeable
		}
	} else if !o.Deletable() {
		return domain.ErrNotDeletable
	}

	payload, err := json.Marshal(domain.OrderDeleted{OrderID: o.ID, TableNumber: o.TableNumber})
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, "OrderDeleted", payload, traceparent); err != nil {
		return err
	}
	s.log.Info("order deleted", "order_id", id, "purge", purge)
	return nil
}

// VerifyLoyalty confirms the discount code once. The flag never reverts.
func (s *Service) VerifyLoyalty(ctx context.Context, id string, traceparent string) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if o.Loyalty == nil {
		return domain.ErrNoLoyaltyDiscount
	}
	if o.Loyalty.IsVerified {
		return domain.ErrAlreadyVerified
	}

	payload, err := json.Marshal(domain.LoyaltyVerified{OrderID: o.ID, Phone: o.Loyalty.Phone})
	if err != nil {
		return err
	}
	if err := s.repo.VerifyLoyalty(ctx, id, "LoyaltyVerified", payload, traceparent); err != nil {
		return err
	}
	s.log.Info("loyalty verified", "order_id", id)
	return nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func verificationCode() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
