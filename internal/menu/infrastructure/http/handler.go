package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkurbanov/lounge-ops/internal/menu/domain"
)

type Lister interface {
	List(ctx context.Context) ([]domain.MenuItem, error)
}

type Handler struct {
	log    *slog.Logger
	repo   Lister
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, repo Lister) *Handler {
	return &Handler{log: log, repo: repo, tracer: otel.Tracer("menu-http")}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/menu", h.listMenu)
	return r
}

type menuItemDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
}

func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListMenu")
	defer span.End()

	items, err := h.repo.List(ctx)
	if err != nil {
		h.log.Error("menu list failed", "err", err)
		http.Error(w, `{"error":"menu unavailable"}`, http.StatusInternalServerError)
		return
	}

	buckets := domain.SplitBuckets(items)
	resp := map[string][]menuItemDTO{}
	for bucket, list := range buckets {
		out := make([]menuItemDTO, 0, len(list))
		for _, m := range list {
			out = append(out, menuItemDTO{ID: m.ID, Name: m.Name, Category: m.Category, PriceCents: m.PriceCents})
		}
		resp[string(bucket)] = out
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
