package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	floor "github.com/rkurbanov/lounge-ops/internal/floor/domain"
	menu "github.com/rkurbanov/lounge-ops/internal/menu/domain"
	order "github.com/rkurbanov/lounge-ops/internal/order/domain"
	"github.com/rkurbanov/lounge-ops/pkg/feed"
)

// Snapshot is one settled read of everything the derivation needs.
type Snapshot struct {
	Tables       []floor.Table
	Orders       []order.Order
	OpenOrders   []order.Order
	Reservations []floor.Reservation
	Menu         []menu.MenuItem
}

type Repository interface {
	Tables(ctx context.Context) ([]floor.Table, error)
	SeatedReservations(ctx context.Context, day time.Time) ([]floor.Reservation, error)
	OrdersSince(ctx context.Context, since time.Time) ([]order.Order, error)
	OpenOrders(ctx context.Context) ([]order.Order, error)
	Menu(ctx context.Context) ([]menu.MenuItem, error)
}

// BoardItem is one line on the operations board, routed to the bar or the
// shisha station by its menu bucket.
type BoardItem struct {
	OrderID      string
	TableNumber  int
	OrderStatus  order.OrderStatus
	Name         string
	Quantity     int
	Instructions string
}

type Board struct {
	Drinks []BoardItem
	Shisha []BoardItem
	Other  []BoardItem
}

// View is the derived floor state served to the admin surfaces.
type View struct {
	Statuses  []floor.TableStatus
	Stats     floor.GridStats
	Board     Board
	UpdatedAt time.Time
}

// Monitor is the realtime reconciliation layer: change notifications come in
// from the feed consumer, settle through the debounced refresher, and the
// resulting derived view is held here and broadcast to subscribers. All
// mutable state is owned by the monitor, readers get copies.
type Monitor struct {
	log       *slog.Logger
	repo      Repository
	refresher *feed.Refresher[Snapshot]
	now       func() time.Time

	mu   sync.RWMutex
	view View
	subs map[chan View]struct{}
}

const defaultQuiesce = 300 * time.Millisecond

func NewMonitor(log *slog.Logger, repo Repository) *Monitor {
	m := &Monitor{
		log:  log,
		repo: repo,
		now:  time.Now,
		subs: make(map[chan View]struct{}),
	}
	m.refresher = feed.New(log, defaultQuiesce, m.fetch, fingerprint, m.apply)
	return m
}

// Notify signals that order records changed upstream.
func (m *Monitor) Notify() {
	m.refresher.Notify()
}

// Run drives the reconciliation loop until ctx is cancelled. An initial
// refresh is scheduled so the monitor serves a view before the first change
// arrives.
func (m *Monitor) Run(ctx context.Context) error {
	m.refresher.Notify()
	return m.refresher.Run(ctx)
}

func (m *Monitor) fetch(ctx context.Context) (Snapshot, error) {
	now := m.now()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	// shortly after midnight the trailing seated window reaches into
	// yesterday; fetch far enough back that the recency check still sees it
	if w := now.Add(-floor.SeatedWindow); w.Before(since) {
		since = w
	}

	var snap Snapshot
	var err error
	if snap.Tables, err = m.repo.Tables(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("tables: %w", err)
	}
	if snap.Orders, err = m.repo.OrdersSince(ctx, since); err != nil {
		return Snapshot{}, fmt.Errorf("orders: %w", err)
	}
	if snap.OpenOrders, err = m.repo.OpenOrders(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("open orders: %w", err)
	}
	if snap.Reservations, err = m.repo.SeatedReservations(ctx, now); err != nil {
		return Snapshot{}, fmt.Errorf("reservations: %w", err)
	}
	if snap.Menu, err = m.repo.Menu(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("menu: %w", err)
	}
	return snap, nil
}

// fingerprint keys the snapshot on the fields whose change should trigger a
// recomputation: record identity, status and update timestamp.
func fingerprint(s Snapshot) uint64 {
	keys := make([]string, 0, len(s.Orders)+len(s.Tables)+len(s.Reservations))
	for _, o := range s.Orders {
		keys = append(keys, fmt.Sprintf("o|%s|%s|%d", o.ID, o.Status, o.UpdatedAt.UnixNano()))
	}
	for _, t := range s.Tables {
		keys = append(keys, fmt.Sprintf("t|%s|%d", t.ID, t.Number))
	}
	for _, r := range s.Reservations {
		keys = append(keys, fmt.Sprintf("r|%s|%s", r.ID, r.Status))
	}
	return feed.Fingerprint(keys)
}

func (m *Monitor) apply(snap Snapshot) {
	view := BuildView(m.now(), snap)

	m.mu.Lock()
	m.view = view
	subs := make([]chan View, 0, len(m.subs))
	for ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		// a slow subscriber loses the older unread view, never the newest:
		// the one-slot buffer always converges to the latest settled state
		select {
		case <-ch:
		default:
		}
		ch <- view
	}
	m.log.Debug("floor view updated",
		"tables", view.Stats.TotalTables,
		"occupied", view.Stats.Occupied,
		"open_bills", view.Stats.OpenBills)
}

// BuildView derives the grid and the operations board from a settled
// snapshot. Pure: identical snapshots give identical views.
func BuildView(now time.Time, snap Snapshot) View {
	statuses, stats := floor.DeriveGrid(now, snap.Tables, snap.Orders, snap.Reservations)

	bucketByItem := make(map[string]menu.Bucket, len(snap.Menu))
	for _, mi := range snap.Menu {
		bucketByItem[mi.ID] = mi.Bucket()
	}

	var board Board
	for _, o := range snap.OpenOrders {
		for _, item := range o.Items {
			bi := BoardItem{
				OrderID:      o.ID,
				TableNumber:  o.TableNumber,
				OrderStatus:  o.Status,
				Name:         item.Name,
				Quantity:     item.Quantity,
				Instructions: item.Instructions,
			}
			switch bucketByItem[item.MenuItemID] {
			case menu.BucketDrinks:
				board.Drinks = append(board.Drinks, bi)
			case menu.BucketShisha:
				board.Shisha = append(board.Shisha, bi)
			default:
				board.Other = append(board.Other, bi)
			}
		}
	}

	return View{Statuses: statuses, Stats: stats, Board: board, UpdatedAt: now}
}

// Current returns the latest derived view.
func (m *Monitor) Current() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

// Subscribe registers a live-update channel. The returned cancel must be
// called on teardown; afterwards the channel receives nothing and pending
// broadcasts are dropped.
func (m *Monitor) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
	}
	return ch, cancel
}
