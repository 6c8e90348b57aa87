package domain

import (
	"errors"
	"sort"
	"time"

	order "github.com/rkurbanov/lounge-ops/internal/order/domain"
)

// ErrReservationNotSeatable: only a booked reservation can move to seated.
var ErrReservationNotSeatable = errors.New("reservation is not in a seatable state")

type TableLocation string

const (
	LocationIndoor  TableLocation = "indoor"
	LocationOutdoor TableLocation = "outdoor"
	LocationVIP     TableLocation = "vip"
)

type Table struct {
	ID       string
	Number   int
	Capacity int
	Location TableLocation
}

type ReservationStatus string

const (
	ReservationBooked    ReservationStatus = "booked"
	ReservationSeated    ReservationStatus = "seated"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationDone      ReservationStatus = "done"
)

type Reservation struct {
	ID          string
	TableNumber int
	Date        time.Time
	Status      ReservationStatus
}

// Seatable reports whether the reservation can be flipped to seated.
func (r Reservation) Seatable() bool {
	return r.Status == ReservationBooked
}

type TableStatusType string

const (
	TableAvailable   TableStatusType = "available"
	TableSeated      TableStatusType = "seated"
	TableActiveOrder TableStatusType = "active_order"
	TableOpenBill    TableStatusType = "open_bill"
)

type TableStatus struct {
	TableNumber      int
	Type             TableStatusType
	OutstandingCents int64
}

type GridStats struct {
	TotalTables       int
	Available         int
	Occupied          int
	OpenBills         int
	TotalRevenueCents int64
}

// SeatedWindow is how long a table is still considered occupied after its
// last order was delivered and paid. Snapshot loaders must fetch at least
// this far back or the recency check has nothing to look at.
const SeatedWindow = 2 * time.Hour

// billed reports whether an order has an outstanding bill. A payment record
// in unpaid/partial means the bill was presented and is not settled; a
// delivered order without a settled payment owes its total. Orders with no
// payment record that are still moving through the kitchen have no bill yet.
func billed(o order.Order) bool {
	if o.Status == order.StatusCancelled {
		return false
	}
	if o.Payment != nil && o.Payment.Status != order.PaymentPaid {
		return true
	}
	return o.Status == order.StatusDelivered && !o.Settled()
}

// Classify derives one table's status from every order and reservation
// attached to it. First match wins: open_bill, then active_order, then
// seated, then available. All orders for the table are considered, not only
// the most recent one.
func Classify(now time.Time, t Table, orders []order.Order, reservations []Reservation) TableStatus {
	st := TableStatus{TableNumber: t.Number, Type: TableAvailable}

	var outstanding int64
	active := false
	recentPaid := false
	for _, o := range orders {
		if o.TableNumber != t.Number {
			continue
		}
		if billed(o) {
			outstanding += o.BillCents()
		}
		if o.Active() {
			active = true
		}
		if o.Status == order.StatusDelivered && o.Settled() && now.Sub(o.UpdatedAt) <= SeatedWindow {
			recentPaid = true
		}
	}
	if outstanding > 0 {
		st.Type = TableOpenBill
		st.OutstandingCents = outstanding
		return st
	}
	if active {
		st.Type = TableActiveOrder
		return st
	}
	if recentPaid || seatedToday(now, t.Number, reservations) {
		st.Type = TableSeated
	}
	return st
}

func seatedToday(now time.Time, tableNumber int, reservations []Reservation) bool {
	y, m, d := now.Date()
	for _, r := range reservations {
		if r.TableNumber != tableNumber || r.Status != ReservationSeated {
			continue
		}
		ry, rm, rd := r.Date.In(now.Location()).Date()
		if ry == y && rm == m && rd == d {
			return true
		}
	}
	return false
}

// DeriveGrid runs Classify over every table and folds the results into the
// aggregate grid stats. Recomputed from scratch on every snapshot; there is
// no per-table state machine carried between runs.
func DeriveGrid(now time.Time, tables []Table, orders []order.Order, reservations []Reservation) ([]TableStatus, GridStats) {
	statuses := make([]TableStatus, 0, len(tables))
	stats := GridStats{TotalTables: len(tables)}

	for _, t := range tables {
		st := Classify(now, t, orders, reservations)
		statuses = append(statuses, st)

		switch st.Type {
		case TableAvailable:
			stats.Available++
		case TableOpenBill:
			stats.OpenBills++
			stats.Occupied++
		default:
			stats.Occupied++
		}
	}

	// realized revenue: settled orders inside the active window
	for _, o := range orders {
		if o.Status == order.StatusDelivered && o.Settled() {
			stats.TotalRevenueCents += o.BillCents()
		}
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].TableNumber < statuses[j].TableNumber })
	return statuses, stats
}
