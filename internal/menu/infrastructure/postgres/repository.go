package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	orderapp "github.com/rkurbanov/lounge-ops/internal/order/application"
	"github.com/rkurbanov/lounge-ops/internal/menu/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) List(ctx context.Context) ([]domain.MenuItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, category, price_cents FROM menu_items ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.MenuItem
	for rows.Next() {
		var m domain.MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.PriceCents); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// GetItems implements the order checkout catalog port.
func (r *Repository) GetItems(ctx context.Context, ids []string) (map[string]orderapp.CatalogItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, price_cents FROM menu_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]orderapp.CatalogItem, len(ids))
	for rows.Next() {
		var ci orderapp.CatalogItem
		if err := rows.Scan(&ci.ID, &ci.Name, &ci.PriceCents); err != nil {
			return nil, err
		}
		out[ci.ID] = ci
	}
	return out, rows.Err()
}
