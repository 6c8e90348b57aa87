package domain

import (
	"errors"
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotDeletable      = errors.New("only pending orders can be deleted")
	ErrNotPurgeable      = errors.New("only cancelled orders can be purged")
	ErrAlreadyVerified   = errors.New("loyalty discount already verified")
	ErrNoLoyaltyDiscount = errors.New("order has no loyalty discount")
)

type Order struct {
	ID           string
	TableNumber  int
	Items        []OrderItem
	TotalCents   int64
	Status       OrderStatus
	CustomerName string
	Phone        string
	Instructions string
	Loyalty      *LoyaltyDiscount
	Payment      *Payment
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrderItem struct {
	MenuItemID   string
	Name         string
	Quantity     int
	PriceCents   int64
	Instructions string
}

// LoyaltyDiscount is embedded in the order it was redeemed on. IsVerified is
// one-way: once a staff member confirms the code it never reverts.
type LoyaltyDiscount struct {
	AmountCents int64
	FreeItems   int
	Phone       string
	IsVerified  bool
	Code        string
}

type Payment struct {
	Status      PaymentStatus
	AmountCents int64
}

func NewOrder(id string, tableNumber int, items []OrderItem) Order {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.PriceCents
	}
	now := time.Now().UTC()
	return Order{
		ID:          id,
		TableNumber: tableNumber,
		Items:       items,
		TotalCents:  total,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ApplyLoyalty attaches a discount and folds its amount into the total.
func (o *Order) ApplyLoyalty(d LoyaltyDiscount) {
	o.Loyalty = &d
	o.TotalCents -= d.AmountCents
	if o.TotalCents < 0 {
		o.TotalCents = 0
	}
}

// BillCents is the amount owed for the order: the explicit payment amount
// when a payment record exists, the order total otherwise.
func (o Order) BillCents() int64 {
	if o.Payment != nil && o.Payment.AmountCents > 0 {
		return o.Payment.AmountCents
	}
	return o.TotalCents
}

// Settled reports whether the order's bill is fully paid.
func (o Order) Settled() bool {
	return o.Payment != nil && o.Payment.Status == PaymentPaid
}

// Active reports whether the order is still moving through the kitchen,
// i.e. neither delivered nor cancelled.
func (o Order) Active() bool {
	return o.Status != StatusDelivered && o.Status != StatusCancelled
}

// Terminal reports whether no further status transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// next maps each status to its single forward successor.
var next = map[OrderStatus]OrderStatus{
	StatusPending:   StatusConfirmed,
	StatusConfirmed: StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusDelivered,
}

// CanTransition reports whether from → to is an allowed lifecycle move.
// Forward moves advance one step at a time; cancellation is reachable from
// every non-terminal state.
func CanTransition(from, to OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return next[from] == to
}

// CheckTransition is CanTransition with the error attached.
func CheckTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}

// Deletable: hard deletes are permitted only while the order is still
// pending. Cancelled orders go through the separate purge path.
func (o Order) Deletable() bool {
	return o.Status == StatusPending
}
