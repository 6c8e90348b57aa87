package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	order "github.com/rkurbanov/lounge-ops/internal/order/domain"
)

var now = time.Date(2026, 3, 14, 21, 30, 0, 0, time.UTC)

func table(n int) Table {
	return Table{ID: "t", Number: n, Capacity: 4, Location: LocationIndoor}
}

func TestClassifyAvailable(t *testing.T) {
	st := Classify(now, table(1), nil, nil)
	assert.Equal(t, TableAvailable, st.Type)
	assert.Equal(t, int64(0), st.OutstandingCents)
}

func TestClassifyActiveOrderWithoutPayment(t *testing.T) {
	// deliberate policy: a bare pending order means the guests are still
	// ordering, so no bill exists until a payment record is cut or the
	// order is delivered unsettled (see billed)
	orders := []order.Order{
		{ID: "a", TableNumber: 5, Status: order.StatusPending, TotalCents: 1200},
	}
	st := Classify(now, table(5), orders, nil)
	assert.Equal(t, TableActiveOrder, st.Type, "pending order with no payment record is not an open bill")
}

func TestClassifyOpenBillOnUnpaidPayment(t *testing.T) {
	orders := []order.Order{
		{
			ID: "a", TableNumber: 5, Status: order.StatusDelivered, TotalCents: 4200,
			Payment: &order.Payment{Status: order.PaymentUnpaid, AmountCents: 4200},
		},
		{ID: "b", TableNumber: 5, Status: order.StatusReady, TotalCents: 900},
	}
	st := Classify(now, table(5), orders, nil)
	assert.Equal(t, TableOpenBill, st.Type, "open bill outranks the active order")
	assert.Equal(t, int64(4200), st.OutstandingCents)
}

func TestClassifyOpenBillConsidersAllOrders(t *testing.T) {
	// one settled order and one order carrying an unpaid bill: the unpaid
	// one decides the table status no matter which is newer
	orders := []order.Order{
		{
			ID: "paid", TableNumber: 3, Status: order.StatusDelivered, TotalCents: 2000,
			Payment:   &order.Payment{Status: order.PaymentPaid, AmountCents: 2000},
			UpdatedAt: now.Add(-10 * time.Minute),
		},
		{
			ID: "open", TableNumber: 3, Status: order.StatusPending, TotalCents: 1500,
			Payment:   &order.Payment{Status: order.PaymentUnpaid, AmountCents: 1500},
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}
	st := Classify(now, table(3), orders, nil)
	assert.Equal(t, TableOpenBill, st.Type)
	assert.Equal(t, int64(1500), st.OutstandingCents)
}

func TestClassifyDeliveredUnsettledOwesTotal(t *testing.T) {
	orders := []order.Order{
		{ID: "a", TableNumber: 7, Status: order.StatusDelivered, TotalCents: 3100},
	}
	st := Classify(now, table(7), orders, nil)
	assert.Equal(t, TableOpenBill, st.Type, "delivered without settled payment owes the total")
	assert.Equal(t, int64(3100), st.OutstandingCents)
}

func TestClassifySeatedByRecentPaidOrder(t *testing.T) {
	orders := []order.Order{
		{
			ID: "a", TableNumber: 2, Status: order.StatusDelivered, TotalCents: 2500,
			Payment:   &order.Payment{Status: order.PaymentPaid, AmountCents: 2500},
			UpdatedAt: now.Add(-45 * time.Minute),
		},
	}
	st := Classify(now, table(2), orders, nil)
	assert.Equal(t, TableSeated, st.Type)

	// outside the two hour window the table frees up
	orders[0].UpdatedAt = now.Add(-3 * time.Hour)
	st = Classify(now, table(2), orders, nil)
	assert.Equal(t, TableAvailable, st.Type)
}

func TestClassifySeatedByReservation(t *testing.T) {
	reservations := []Reservation{
		{ID: "r1", TableNumber: 4, Date: now.Add(-time.Hour), Status: ReservationSeated},
		{ID: "r2", TableNumber: 6, Date: now, Status: ReservationBooked},
		{ID: "r3", TableNumber: 8, Date: now.Add(-26 * time.Hour), Status: ReservationSeated},
	}
	assert.Equal(t, TableSeated, Classify(now, table(4), nil, reservations).Type)
	assert.Equal(t, TableAvailable, Classify(now, table(6), nil, reservations).Type, "booked is not seated")
	assert.Equal(t, TableAvailable, Classify(now, table(8), nil, reservations).Type, "yesterday's seat does not count")
}

func TestClassifyIgnoresCancelled(t *testing.T) {
	orders := []order.Order{
		{ID: "a", TableNumber: 9, Status: order.StatusCancelled, TotalCents: 5000,
			Payment: &order.Payment{Status: order.PaymentUnpaid, AmountCents: 5000}},
	}
	st := Classify(now, table(9), orders, nil)
	assert.Equal(t, TableAvailable, st.Type)
}

func TestClassifyPure(t *testing.T) {
	orders := []order.Order{
		{ID: "a", TableNumber: 1, Status: order.StatusPreparing, TotalCents: 800},
	}
	first := Classify(now, table(1), orders, nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(now, table(1), orders, nil))
	}
}

func TestDeriveGridStats(t *testing.T) {
	tables := []Table{table(1), table(2), table(3), table(4)}
	orders := []order.Order{
		{ID: "a", TableNumber: 1, Status: order.StatusConfirmed, TotalCents: 1000},
		{
			ID: "b", TableNumber: 2, Status: order.StatusDelivered, TotalCents: 2000,
			Payment: &order.Payment{Status: order.PaymentUnpaid, AmountCents: 2000},
		},
		{
			ID: "c", TableNumber: 3, Status: order.StatusDelivered, TotalCents: 3000,
			Payment:   &order.Payment{Status: order.PaymentPaid, AmountCents: 3000},
			UpdatedAt: now.Add(-20 * time.Minute),
		},
	}
	statuses, stats := DeriveGrid(now, tables, orders, nil)
	require.Len(t, statuses, 4)
	assert.Equal(t, TableActiveOrder, statuses[0].Type)
	assert.Equal(t, TableOpenBill, statuses[1].Type)
	assert.Equal(t, TableSeated, statuses[2].Type)
	assert.Equal(t, TableAvailable, statuses[3].Type)

	assert.Equal(t, 4, stats.TotalTables)
	assert.Equal(t, 1, stats.Available)
	assert.Equal(t, 3, stats.Occupied)
	assert.Equal(t, 1, stats.OpenBills)
	assert.Equal(t, int64(3000), stats.TotalRevenueCents)
	assert.Equal(t, stats.TotalTables, stats.Available+stats.Occupied)
}

func TestDeriveGridEmptyFloor(t *testing.T) {
	statuses, stats := DeriveGrid(now, nil, nil, nil)
	assert.Empty(t, statuses)
	assert.Equal(t, GridStats{}, stats)
}

func TestDeriveGridSortsByTableNumber(t *testing.T) {
	tables := []Table{table(12), table(3), table(7)}
	statuses, _ := DeriveGrid(now, tables, nil, nil)
	require.Len(t, statuses, 3)
	assert.Equal(t, 3, statuses[0].TableNumber)
	assert.Equal(t, 7, statuses[1].TableNumber)
	assert.Equal(t, 12, statuses[2].TableNumber)
}
