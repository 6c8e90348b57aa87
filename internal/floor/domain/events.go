package domain

import "time"

type ReservationCreated struct {
	ReservationID string
	TableNumber   int
	Date          time.Time
}

type ReservationStatusChanged struct {
	ReservationID string
	TableNumber   int
	From          ReservationStatus
	To            ReservationStatus
}
