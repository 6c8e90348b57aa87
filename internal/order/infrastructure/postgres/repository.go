package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rkurbanov/lounge-ops/internal/order/application"
	"github.com/rkurbanov/lounge-ops/internal/order/domain"
	"github.com/rkurbanov/lounge-ops/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func appendOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload []byte, traceparent string) error {
	_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,'pending')`,
		"order", aggregateID, eventType, payload, traceparent)
	return err
}

func (r *Repository) SaveWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var loyaltyAmount, paymentAmount *int64
	var loyaltyFreeItems *int
	var loyaltyPhone, loyaltyCode, paymentStatus *string
	var loyaltyVerified *bool
	if o.Loyalty != nil {
		loyaltyAmount = &o.Loyalty.AmountCents
		loyaltyFreeItems = &o.Loyalty.FreeItems
		loyaltyPhone = &o.Loyalty.Phone
		loyaltyVerified = &o.Loyalty.IsVerified
		loyaltyCode = &o.Loyalty.Code
	}
	if o.Payment != nil {
		status := string(o.Payment.Status)
		paymentStatus = &status
		paymentAmount = &o.Payment.AmountCents
	}

	_, err = tx.Exec(ctx, `INSERT INTO orders
			(id, table_number, total_cents, status, customer_name, phone, instructions,
			 loyalty_amount_cents, loyalty_free_items, loyalty_phone, loyalty_verified, loyalty_code,
			 payment_status, payment_amount_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		o.ID, o.TableNumber, o.TotalCents, o.Status, o.CustomerName, o.Phone, o.Instructions,
		loyaltyAmount, loyaltyFreeItems, loyaltyPhone, loyaltyVerified, loyaltyCode,
		paymentStatus, paymentAmount, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, menu_item_id, name, quantity, price_cents, instructions)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, item.MenuItemID, item.Name, item.Quantity, item.PriceCents, item.Instructions)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	if err := appendOutbox(ctx, tx, o.ID, eventType, payload, traceparent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const orderColumns = `id, table_number, total_cents, status, customer_name, phone, instructions,
	loyalty_amount_cents, loyalty_free_items, loyalty_phone, loyalty_verified, loyalty_code,
	payment_status, payment_amount_cents, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var loyaltyAmount, paymentAmount *int64
	var loyaltyFreeItems *int
	var loyaltyPhone, loyaltyCode, paymentStatus *string
	var loyaltyVerified *bool

	err := row.Scan(&o.ID, &o.TableNumber, &o.TotalCents, &o.Status, &o.CustomerName, &o.Phone, &o.Instructions,
		&loyaltyAmount, &loyaltyFreeItems, &loyaltyPhone, &loyaltyVerified, &loyaltyCode,
		&paymentStatus, &paymentAmount, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}

	if loyaltyAmount != nil {
		o.Loyalty = &domain.LoyaltyDiscount{AmountCents: *loyaltyAmount}
		if loyaltyFreeItems != nil {
			o.Loyalty.FreeItems = *loyaltyFreeItems
		}
		if loyaltyPhone != nil {
			o.Loyalty.Phone = *loyaltyPhone
		}
		if loyaltyVerified != nil {
			o.Loyalty.IsVerified = *loyaltyVerified
		}
		if loyaltyCode != nil {
			o.Loyalty.Code = *loyaltyCode
		}
	}
	if paymentStatus != nil {
		o.Payment = &domain.Payment{Status: domain.PaymentStatus(*paymentStatus)}
		if paymentAmount != nil {
			o.Payment.AmountCents = *paymentAmount
		}
	}
	return o, nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, application.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	if err := r.loadItems(ctx, &o); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *Repository) loadItems(ctx context.Context, o *domain.Order) error {
	rows, err := r.pool.Query(ctx,
		`SELECT menu_item_id, name, quantity, price_cents, instructions FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.MenuItemID, &item.Name, &item.Quantity, &item.PriceCents, &item.Instructions); err != nil {
			return err
		}
		o.Items = append(o.Items, item)
	}
	return rows.Err()
}

func (r *Repository) List(ctx context.Context, f application.ListFilters) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if f.Status != "" {
		query += ` AND status = ` + arg(f.Status)
	}
	if f.TableNumber > 0 {
		query += ` AND table_number = ` + arg(f.TableNumber)
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		query += ` AND (customer_name ILIKE ` + p + ` OR phone ILIKE ` + p + ` OR id ILIKE ` + p + `)`
	}
	if !f.From.IsZero() {
		query += ` AND created_at >= ` + arg(f.From)
	}
	if !f.To.IsZero() {
		query += ` AND created_at < ` + arg(f.To)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if err := r.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// OpenStatuses is the window the floor monitor watches.
var OpenStatuses = []domain.OrderStatus{
	domain.StatusPending, domain.StatusConfirmed, domain.StatusPreparing,
}

// UpdateStatus transitions the row only while its status still equals
// expected. A lost race surfaces as ErrStatusConflict, never a silent
// overwrite.
func (r *Repository) UpdateStatus(ctx context.Context, id string, expected, to domain.OrderStatus, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1 AND status=$4`,
		id, to, time.Now().UTC(), expected)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		if exists, err := r.exists(ctx, tx, id); err != nil {
			return err
		} else if !exists {
			return application.ErrNotFound
		}
		return application.ErrStatusConflict
	}

	if err := appendOutbox(ctx, tx, id, eventType, payload, traceparent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) exists(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	var found bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&found)
	return found, err
}

func (r *Repository) Delete(ctx context.Context, id string, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, id); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return application.ErrNotFound
	}

	if err := appendOutbox(ctx, tx, id, eventType, payload, traceparent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// VerifyLoyalty flips the one-way verification flag. The WHERE clause keeps
// it idempotent against double confirmation.
func (r *Repository) VerifyLoyalty(ctx context.Context, id string, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx, `UPDATE orders SET loyalty_verified=true, updated_at=$2
		WHERE id=$1 AND loyalty_verified=false`, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		if exists, err := r.exists(ctx, tx, id); err != nil {
			return err
		} else if !exists {
			return application.ErrNotFound
		}
		return domain.ErrAlreadyVerified
	}

	if err := appendOutbox(ctx, tx, id, eventType, payload, traceparent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// OutboxStore serves the relay.
type OutboxStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, payload, traceparent, created_at
		FROM outbox
		WHERE status = 'pending' OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var event outbox.Event
		if err := rows.Scan(&event.ID, &event.AggregateType, &event.AggregateID, &event.Type,
			&event.Payload, &event.Traceparent, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	_, err = tx.Exec(ctx, `UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval WHERE id = ANY($3)`,
		relayID, lease.String(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent' WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("no outbox rows updated")
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status='failed', last_error=$2, retry_count=retry_count+1 WHERE id=$1`, id, errMsg)
	return err
}
