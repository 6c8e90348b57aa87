package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkurbanov/lounge-ops/internal/order/application"
	"github.com/rkurbanov/lounge-ops/internal/order/domain"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.checkout)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/stats", h.orderStats)
	r.Get("/orders/dashboard", h.dashboard)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/verify-loyalty", h.verifyLoyalty)
	r.Delete("/orders/{id}", h.deleteOrder)
	r.Delete("/orders/{id}/purge", h.purgeOrder)
	return r
}

type checkoutItemReq struct {
	MenuItemID   string `json:"menu_item_id"`
	Quantity     int    `json:"quantity"`
	Instructions string `json:"instructions,omitempty"`
}

type checkoutReq struct {
	TableNumber        int               `json:"table_number"`
	Items              []checkoutItemReq `json:"items"`
	CustomerName       string            `json:"customer_name,omitempty"`
	Phone              string            `json:"phone,omitempty"`
	Instructions       string            `json:"instructions,omitempty"`
	LoyaltyAmountCents int64             `json:"loyalty_amount_cents,omitempty"`
	LoyaltyFreeItems   int               `json:"loyalty_free_items,omitempty"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Checkout")
	defer span.End()

	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	items := make([]application.CheckoutItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, application.CheckoutItem{
			MenuItemID:   it.MenuItemID,
			Quantity:     it.Quantity,
			Instructions: it.Instructions,
		})
	}

	o, err := h.service.Checkout(ctx, application.CheckoutRequest{
		TableNumber:        req.TableNumber,
		Items:              items,
		CustomerName:       req.CustomerName,
		Phone:              req.Phone,
		Instructions:       req.Instructions,
		LoyaltyAmountCents: req.LoyaltyAmountCents,
		LoyaltyFreeItems:   req.LoyaltyFreeItems,
	}, r.Header.Get("traceparent"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, orderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	orders, err := h.service.List(ctx, filtersFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse(o))
	}
	writeJSON(w, map[string]any{"orders": out})
}

func (h *Handler) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "OrderStats")
	defer span.End()

	stats, err := h.service.Stats(ctx, filtersFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, statsResponse(stats))
}

// dashboard loads the order list and the stats in parallel. Each fetch
// succeeds or fails on its own: one failing does not discard the other's
// data, the caller gets what could be loaded plus the error for the rest.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Dashboard")
	defer span.End()

	f := filtersFromQuery(r)

	var (
		wg                  sync.WaitGroup
		orders              []domain.Order
		stats               domain.OrderStats
		ordersErr, statsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		orders, ordersErr = h.service.List(ctx, f)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = h.service.Stats(ctx, f)
	}()
	wg.Wait()

	resp := map[string]any{}
	if ordersErr != nil {
		h.log.Error("dashboard orders fetch failed", "err", ordersErr)
		resp["orders_error"] = "orders could not be loaded"
	} else {
		out := make([]orderDTO, 0, len(orders))
		for _, o := range orders {
			out = append(out, orderResponse(o))
		}
		resp["orders"] = out
	}
	if statsErr != nil {
		h.log.Error("dashboard stats fetch failed", "err", statsErr)
		resp["stats_error"] = "stats could not be loaded"
	} else {
		resp["stats"] = statsResponse(stats)
	}

	if ordersErr != nil && statsErr != nil {
		writeJSONStatus(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	o, err := h.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, orderResponse(o))
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderStatus")
	defer span.End()

	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	id := chi.URLParam(r, "id")
	err := h.service.Transition(ctx, id, domain.OrderStatus(req.Status), r.Header.Get("traceparent"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]string{"order_id": id, "status": req.Status})
}

func (h *Handler) verifyLoyalty(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "VerifyLoyalty")
	defer span.End()

	id := chi.URLParam(r, "id")
	if err := h.service.VerifyLoyalty(ctx, id, r.Header.Get("traceparent")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"order_id": id, "is_verified": true})
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteOrder")
	defer span.End()

	if err := h.service.Delete(ctx, chi.URLParam(r, "id"), r.Header.Get("traceparent")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) purgeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PurgeCancelledOrder")
	defer span.End()

	if err := h.service.PurgeCancelled(ctx, chi.URLParam(r, "id"), r.Header.Get("traceparent")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func filtersFromQuery(r *http.Request) application.ListFilters {
	q := r.URL.Query()
	f := application.ListFilters{
		Status: domain.OrderStatus(q.Get("status")),
		Search: q.Get("q"),
	}
	if t := q.Get("table"); t != "" {
		if n, err := strconv.Atoi(t); err == nil {
			f.TableNumber = n
		}
	}
	if from := q.Get("from"); from != "" {
		if ts, err := time.Parse(time.RFC3339, from); err == nil {
			f.From = ts
		}
	}
	if to := q.Get("to"); to != "" {
		if ts, err := time.Parse(time.RFC3339, to); err == nil {
			f.To = ts
		}
	}
	return f
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, application.ErrBusy), errors.Is(err, application.ErrStatusConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotDeletable),
		errors.Is(err, domain.ErrNotPurgeable),
		errors.Is(err, domain.ErrAlreadyVerified),
		errors.Is(err, domain.ErrNoLoyaltyDiscount),
		errors.Is(err, application.ErrEmptyOrder),
		errors.Is(err, application.ErrUnknownMenuItem),
		errors.Is(err, application.ErrBadDiscount):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
