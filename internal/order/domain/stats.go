package domain

// OrderStats is a derived view over a set of orders. It is never persisted:
// every caller recomputes it from the order window it is looking at.
type OrderStats struct {
	Total         int
	ByStatus      map[OrderStatus]int
	PaidCents     int64
	UnpaidCents   int64
	AvgOrderCents int64
}

// ComputeStats folds an order set into per-status counts, the paid/unpaid
// revenue split and the average order value. Cancelled orders count in the
// status buckets but contribute nothing to revenue.
func ComputeStats(orders []Order) OrderStats {
	stats := OrderStats{ByStatus: make(map[OrderStatus]int)}
	var totalCents int64
	for _, o := range orders {
		stats.Total++
		stats.ByStatus[o.Status]++
		if o.Status == StatusCancelled {
			continue
		}
		totalCents += o.TotalCents
		if o.Settled() {
			stats.PaidCents += o.BillCents()
		} else {
			stats.UnpaidCents += o.BillCents()
		}
	}
	if n := stats.Total - stats.ByStatus[StatusCancelled]; n > 0 {
		stats.AvgOrderCents = totalCents / int64(n)
	}
	return stats
}
