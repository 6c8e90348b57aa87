package domain

type OrderCreated struct {
	OrderID     string
	TableNumber int
	TotalCents  int64
	Items       []OrderItem
}

type OrderStatusChanged struct {
	OrderID     string
	TableNumber int
	From        OrderStatus
	To          OrderStatus
}

type OrderDeleted struct {
	OrderID     string
	TableNumber int
}

type LoyaltyVerified struct {
	OrderID string
	Phone   string
}
