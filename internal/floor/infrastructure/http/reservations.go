package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkurbanov/lounge-ops/internal/floor/application"
	floor "github.com/rkurbanov/lounge-ops/internal/floor/domain"
)

// ReservationHandler is the reservation book's write surface. It lives on the
// orders service, the single writer; the floor monitor picks the changes up
// through the feed.
type ReservationHandler struct {
	log     *slog.Logger
	service *application.ReservationService
	tracer  trace.Tracer
}

func NewReservationHandler(log *slog.Logger, service *application.ReservationService) *ReservationHandler {
	return &ReservationHandler{log: log, service: service, tracer: otel.Tracer("reservation-http")}
}

func (h *ReservationHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/reservations", h.create)
	r.Post("/reservations/{id}/seat", h.seat)
	return r
}

type reservationDTO struct {
	ID          string    `json:"id"`
	TableNumber int       `json:"table_number"`
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
}

func reservationResponse(res floor.Reservation) reservationDTO {
	return reservationDTO{ID: res.ID, TableNumber: res.TableNumber, Date: res.Date, Status: string(res.Status)}
}

func (h *ReservationHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateReservation")
	defer span.End()

	var req struct {
		TableNumber int       `json:"table_number"`
		Date        time.Time `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeReservationError(w, http.StatusBadRequest, "invalid body")
		return
	}

	res, err := h.service.Create(ctx, req.TableNumber, req.Date, r.Header.Get("traceparent"))
	if err != nil {
		writeReservationServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, reservationResponse(res))
}

func (h *ReservationHandler) seat(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SeatReservation")
	defer span.End()

	res, err := h.service.Seat(ctx, chi.URLParam(r, "id"), r.Header.Get("traceparent"))
	if err != nil {
		writeReservationServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, reservationResponse(res))
}

func writeReservationServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrReservationNotFound):
		writeReservationError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, floor.ErrReservationNotSeatable):
		writeReservationError(w, http.StatusConflict, err.Error())
	case errors.Is(err, application.ErrBadReservation):
		writeReservationError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeReservationError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeReservationError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, map[string]string{"error": msg})
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
