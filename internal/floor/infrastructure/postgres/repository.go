package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rkurbanov/lounge-ops/internal/floor/application"
	floor "github.com/rkurbanov/lounge-ops/internal/floor/domain"
	menu "github.com/rkurbanov/lounge-ops/internal/menu/domain"
	order "github.com/rkurbanov/lounge-ops/internal/order/domain"
)

// Repository serves both sides of the floor context: the monitor reads
// tables, reservations and the order window the derivation runs over, and
// the orders service writes the reservation book through it.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Tables(ctx context.Context) ([]floor.Table, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, number, capacity, location FROM tables ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []floor.Table
	for rows.Next() {
		var t floor.Table
		if err := rows.Scan(&t.ID, &t.Number, &t.Capacity, &t.Location); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// SeatedReservations returns reservations seated on the given day.
func (r *Repository) SeatedReservations(ctx context.Context, day time.Time) ([]floor.Reservation, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	rows, err := r.pool.Query(ctx,
		`SELECT id, table_number, date, status FROM reservations
		 WHERE status=$1 AND date >= $2 AND date < $3`,
		floor.ReservationSeated, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []floor.Reservation
	for rows.Next() {
		var res floor.Reservation
		if err := rows.Scan(&res.ID, &res.TableNumber, &res.Date, &res.Status); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

func (r *Repository) Reservations(ctx context.Context, day time.Time) ([]floor.Reservation, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	rows, err := r.pool.Query(ctx,
		`SELECT id, table_number, date, status FROM reservations WHERE date >= $1 AND date < $2 ORDER BY date`,
		start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []floor.Reservation
	for rows.Next() {
		var res floor.Reservation
		if err := rows.Scan(&res.ID, &res.TableNumber, &res.Date, &res.Status); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// OrdersSince returns the order window the grid derivation folds over,
// line items included.
func (r *Repository) OrdersSince(ctx context.Context, since time.Time) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, table_number, total_cents, status, payment_status, payment_amount_cents, created_at, updated_at
		 FROM orders WHERE created_at >= $1 OR updated_at >= $1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		var o order.Order
		var paymentStatus *string
		var paymentAmount *int64
		if err := rows.Scan(&o.ID, &o.TableNumber, &o.TotalCents, &o.Status,
			&paymentStatus, &paymentAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		if paymentStatus != nil {
			o.Payment = &order.Payment{Status: order.PaymentStatus(*paymentStatus)}
			if paymentAmount != nil {
				o.Payment.AmountCents = *paymentAmount
			}
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// OpenOrders returns orders still in the kitchen, with their items, for the
// operations board.
func (r *Repository) OpenOrders(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, table_number, total_cents, status, instructions, created_at, updated_at
		 FROM orders WHERE status = ANY($1) ORDER BY created_at`,
		[]string{string(order.StatusPending), string(order.StatusConfirmed), string(order.StatusPreparing)})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.TableNumber, &o.TotalCents, &o.Status,
			&o.Instructions, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		itemRows, err := r.pool.Query(ctx,
			`SELECT menu_item_id, name, quantity, price_cents, instructions FROM order_items WHERE order_id=$1`,
			orders[i].ID)
		if err != nil {
			return nil, err
		}
		for itemRows.Next() {
			var item order.OrderItem
			if err := itemRows.Scan(&item.MenuItemID, &item.Name, &item.Quantity, &item.PriceCents, &item.Instructions); err != nil {
				itemRows.Close()
				return nil, err
			}
			orders[i].Items = append(orders[i].Items, item)
		}
		if err := itemRows.Err(); err != nil {
			itemRows.Close()
			return nil, err
		}
		itemRows.Close()
	}
	return orders, nil
}

func appendOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload []byte, traceparent string) error {
	_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,'pending')`,
		"reservation", aggregateID, eventType, payload, traceparent)
	return err
}

// CreateReservation books the row and appends the change-feed event in one
// transaction.
func (r *Repository) CreateReservation(ctx context.Context, res floor.Reservation, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO reservations (id, table_number, date, status) VALUES ($1,$2,$3,$4)`,
		res.ID, res.TableNumber, res.Date, res.Status)
	if err != nil {
		return err
	}
	if err := appendOutbox(ctx, tx, res.ID, eventType, payload, traceparent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetReservation(ctx context.Context, id string) (floor.Reservation, error) {
	var res floor.Reservation
	err := r.pool.QueryRow(ctx, `SELECT id, table_number, date, status FROM reservations WHERE id=$1`, id).
		Scan(&res.ID, &res.TableNumber, &res.Date, &res.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return floor.Reservation{}, application.ErrReservationNotFound
	}
	if err != nil {
		return floor.Reservation{}, err
	}
	return res, nil
}

// SeatReservation flips the row to seated only while it is still booked. A
// lost race surfaces as ErrReservationNotSeatable, never a silent overwrite.
func (r *Repository) SeatReservation(ctx context.Context, id string, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx, `UPDATE reservations SET status=$2 WHERE id=$1 AND status=$3`,
		id, floor.ReservationSeated, floor.ReservationBooked)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var found bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id=$1)`, id).Scan(&found); err != nil {
			return err
		}
		if !found {
			return application.ErrReservationNotFound
		}
		return floor.ErrReservationNotSeatable
	}

	if err := appendOutbox(ctx, tx, id, eventType, payload, traceparent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Menu loads the catalog used to bucket board items.
func (r *Repository) Menu(ctx context.Context) ([]menu.MenuItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, category, price_cents FROM menu_items`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []menu.MenuItem
	for rows.Next() {
		var m menu.MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.PriceCents); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
