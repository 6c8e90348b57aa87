package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkurbanov/lounge-ops/internal/floor/application"
	floor "github.com/rkurbanov/lounge-ops/internal/floor/domain"
)

type Reader interface {
	Tables(ctx context.Context) ([]floor.Table, error)
	Reservations(ctx context.Context, day time.Time) ([]floor.Reservation, error)
}

type Handler struct {
	log     *slog.Logger
	monitor *application.Monitor
	reader  Reader
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, monitor *application.Monitor, reader Reader) *Handler {
	return &Handler{log: log, monitor: monitor, reader: reader, tracer: otel.Tracer("floor-http")}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/floor/grid", h.grid)
	r.Get("/floor/board", h.board)
	r.Get("/floor/stream", h.stream)
	r.Get("/floor/tables", h.tables)
	r.Get("/floor/reservations", h.reservations)
	return r
}

type tableStatusDTO struct {
	TableNumber      int    `json:"table_number"`
	Status           string `json:"status"`
	OutstandingCents int64  `json:"outstanding_cents,omitempty"`
}

type gridStatsDTO struct {
	TotalTables       int   `json:"total_tables"`
	Available         int   `json:"available"`
	Occupied          int   `json:"occupied"`
	OpenBills         int   `json:"open_bills"`
	TotalRevenueCents int64 `json:"total_revenue_cents"`
}

type boardItemDTO struct {
	OrderID      string `json:"order_id"`
	TableNumber  int    `json:"table_number"`
	OrderStatus  string `json:"order_status"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	Instructions string `json:"instructions,omitempty"`
}

type gridDTO struct {
	Tables    []tableStatusDTO `json:"tables"`
	Stats     gridStatsDTO     `json:"stats"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func gridResponse(v application.View) gridDTO {
	out := gridDTO{
		Stats: gridStatsDTO{
			TotalTables:       v.Stats.TotalTables,
			Available:         v.Stats.Available,
			Occupied:          v.Stats.Occupied,
			OpenBills:         v.Stats.OpenBills,
			TotalRevenueCents: v.Stats.TotalRevenueCents,
		},
		UpdatedAt: v.UpdatedAt,
	}
	out.Tables = make([]tableStatusDTO, 0, len(v.Statuses))
	for _, st := range v.Statuses {
		out.Tables = append(out.Tables, tableStatusDTO{
			TableNumber:      st.TableNumber,
			Status:           string(st.Type),
			OutstandingCents: st.OutstandingCents,
		})
	}
	return out
}

func boardItems(items []application.BoardItem) []boardItemDTO {
	out := make([]boardItemDTO, 0, len(items))
	for _, it := range items {
		out = append(out, boardItemDTO{
			OrderID:      it.OrderID,
			TableNumber:  it.TableNumber,
			OrderStatus:  string(it.OrderStatus),
			Name:         it.Name,
			Quantity:     it.Quantity,
			Instructions: it.Instructions,
		})
	}
	return out
}

func (h *Handler) grid(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "FloorGrid")
	defer span.End()
	writeJSON(w, gridResponse(h.monitor.Current()))
}

func (h *Handler) board(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "FloorBoard")
	defer span.End()

	view := h.monitor.Current()
	writeJSON(w, map[string]any{
		"drinks":     boardItems(view.Board.Drinks),
		"shisha":     boardItems(view.Board.Shisha),
		"other":      boardItems(view.Board.Other),
		"updated_at": view.UpdatedAt,
	})
}

// stream pushes grid updates over SSE. The subscription is torn down when
// the client goes away; a broadcast racing the teardown is dropped by the
// monitor, never delivered to a closed connection.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, cancel := h.monitor.Subscribe()
	defer cancel()

	send := func(v application.View) {
		payload, err := json.Marshal(gridResponse(v))
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: grid\ndata: %s\n\n", payload)
		flusher.Flush()
	}

	send(h.monitor.Current())
	for {
		select {
		case <-r.Context().Done():
			return
		case view := <-updates:
			send(view)
		}
	}
}

func (h *Handler) tables(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListTables")
	defer span.End()

	tables, err := h.reader.Tables(ctx)
	if err != nil {
		h.log.Error("tables fetch failed", "err", err)
		http.Error(w, `{"error":"tables unavailable"}`, http.StatusInternalServerError)
		return
	}

	type tableDTO struct {
		ID       string `json:"id"`
		Number   int    `json:"number"`
		Capacity int    `json:"capacity"`
		Location string `json:"location"`
	}
	out := make([]tableDTO, 0, len(tables))
	for _, t := range tables {
		out = append(out, tableDTO{ID: t.ID, Number: t.Number, Capacity: t.Capacity, Location: string(t.Location)})
	}
	writeJSON(w, map[string]any{"tables": out})
}

func (h *Handler) reservations(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListReservations")
	defer span.End()

	day := time.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		if parsed, err := time.Parse("2006-01-02", d); err == nil {
			day = parsed
		}
	}

	reservations, err := h.reader.Reservations(ctx, day)
	if err != nil {
		h.log.Error("reservations fetch failed", "err", err)
		http.Error(w, `{"error":"reservations unavailable"}`, http.StatusInternalServerError)
		return
	}

	out := make([]reservationDTO, 0, len(reservations))
	for _, res := range reservations {
		out = append(out, reservationResponse(res))
	}
	writeJSON(w, map[string]any{"reservations": out})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
