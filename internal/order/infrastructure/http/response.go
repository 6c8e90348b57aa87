package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rkurbanov/lounge-ops/internal/order/domain"
)

type orderItemDTO struct {
	MenuItemID   string `json:"menu_item_id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	PriceCents   int64  `json:"price_cents"`
	Instructions string `json:"instructions,omitempty"`
}

type loyaltyDTO struct {
	AmountCents int64  `json:"amount_cents"`
	FreeItems   int    `json:"free_items"`
	Phone       string `json:"phone"`
	IsVerified  bool   `json:"is_verified"`
	Code        string `json:"code"`
}

type paymentDTO struct {
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
}

type orderDTO struct {
	ID           string         `json:"id"`
	TableNumber  int            `json:"table_number"`
	Items        []orderItemDTO `json:"items"`
	TotalCents   int64          `json:"total_cents"`
	Status       string         `json:"status"`
	CustomerName string         `json:"customer_name,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
	Loyalty      *loyaltyDTO    `json:"loyalty,omitempty"`
	Payment      *paymentDTO    `json:"payment,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func orderResponse(o domain.Order) orderDTO {
	dto := orderDTO{
		ID:           o.ID,
		TableNumber:  o.TableNumber,
		TotalCents:   o.TotalCents,
		Status:       string(o.Status),
		CustomerName: o.CustomerName,
		Phone:        o.Phone,
		Instructions: o.Instructions,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	dto.Items = make([]orderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		dto.Items = append(dto.Items, orderItemDTO{
			MenuItemID:   it.MenuItemID,
			Name:         it.Name,
			Quantity:     it.Quantity,
			PriceCents:   it.PriceCents,
			Instructions: it.Instructions,
		})
	}
	if o.Loyalty != nil {
		dto.Loyalty = &loyaltyDTO{
			AmountCents: o.Loyalty.AmountCents,
			FreeItems:   o.Loyalty.FreeItems,
			Phone:       o.Loyalty.Phone,
			IsVerified:  o.Loyalty.IsVerified,
			Code:        o.Loyalty.Code,
		}
	}
	if o.Payment != nil {
		dto.Payment = &paymentDTO{
			Status:      string(o.Payment.Status),
			AmountCents: o.Payment.AmountCents,
		}
	}
	return dto
}

type statsDTO struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	PaidCents     int64          `json:"paid_cents"`
	UnpaidCents   int64          `json:"unpaid_cents"`
	AvgOrderCents int64          `json:"avg_order_cents"`
}

func statsResponse(s domain.OrderStats) statsDTO {
	byStatus := make(map[string]int, len(s.ByStatus))
	for k, v := range s.ByStatus {
		byStatus[string(k)] = v
	}
	return statsDTO{
		Total:         s.Total,
		ByStatus:      byStatus,
		PaidCents:     s.PaidCents,
		UnpaidCents:   s.UnpaidCents,
		AvgOrderCents: s.AvgOrderCents,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
