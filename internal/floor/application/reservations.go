package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	floor "github.com/rkurbanov/lounge-ops/internal/floor/domain"
)

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrBadReservation      = errors.New("reservation needs a table number and a date")
)

// ReservationStore is the write side of the reservation book. Every mutation
// appends an outbox row in the same transaction so the floor monitor hears
// about it through the change feed.
type ReservationStore interface {
	CreateReservation(ctx context.Context, res floor.Reservation, eventType string, payload []byte, traceparent string) error
	GetReservation(ctx context.Context, id string) (floor.Reservation, error)
	SeatReservation(ctx context.Context, id string, eventType string, payload []byte, traceparent string) error
}

type ReservationService struct {
	log   *slog.Logger
	store ReservationStore
}

func NewReservationService(log *slog.Logger, store ReservationStore) *ReservationService {
	return &ReservationService{log: log, store: store}
}

// Create books a table for the given date. The reservation starts as booked;
// it only influences the floor grid once a host seats it.
func (s *ReservationService) Create(ctx context.Context, tableNumber int, date time.Time, traceparent string) (floor.Reservation, error) {
	if tableNumber <= 0 || date.IsZero() {
		return floor.Reservation{}, ErrBadReservation
	}

	res := floor.Reservation{
		ID:          uuid.NewString(),
		TableNumber: tableNumber,
		Date:        date,
		Status:      floor.ReservationBooked,
	}
	payload, err := json.Marshal(floor.ReservationCreated{
		ReservationID: res.ID,
		TableNumber:   res.TableNumber,
		Date:          res.Date,
	})
	if err != nil {
		return floor.Reservation{}, err
	}
	if err := s.store.CreateReservation(ctx, res, "ReservationCreated", payload, traceparent); err != nil {
		return floor.Reservation{}, err
	}
	s.log.Info("reservation booked", "reservation_id", res.ID, "table", res.TableNumber)
	return res, nil
}

// Seat marks a booked reservation as seated, which makes its table count as
// occupied in the derived grid. The check runs locally first and again in the
// store as a conditional update, so two hosts racing on the same reservation
// cannot both win.
func (s *ReservationService) Seat(ctx context.Context, id string, traceparent string) (floor.Reservation, error) {
	res, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return floor.Reservation{}, err
	}
	if !res.Seatable() {
		return floor.Reservation{}, floor.ErrReservationNotSeatable
	}

	payload, err := json.Marshal(floor.ReservationStatusChanged{
		ReservationID: res.ID,
		TableNumber:   res.TableNumber,
		From:          res.Status,
		To:            floor.ReservationSeated,
	})
	if err != nil {
		return floor.Reservation{}, err
	}
	if err := s.store.SeatReservation(ctx, id, "ReservationStatusChanged", payload, traceparent); err != nil {
		return floor.Reservation{}, err
	}
	res.Status = floor.ReservationSeated
	s.log.Info("reservation seated", "reservation_id", res.ID, "table", res.TableNumber)
	return res, nil
}
