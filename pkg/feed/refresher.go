package feed

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"
)

// Refresher turns a noisy change feed into a stream of settled snapshots.
// Callers signal "something changed" with Notify; the run loop waits for the
// feed to go quiet, fetches the current snapshot, fingerprints it and hands
// it to the handler only when the fingerprint differs from the last one
// processed. Redundant feed deliveries therefore cost one fetch, never a
// recomputation downstream.
type Refresher[T any] struct {
	log         *slog.Logger
	quiesce     time.Duration
	fetch       func(ctx context.Context) (T, error)
	fingerprint func(T) uint64
	handle      func(T)

	notify chan struct{}
	lastFP uint64
	seen   bool
}

func New[T any](
	log *slog.Logger,
	quiesce time.Duration,
	fetch func(ctx context.Context) (T, error),
	fingerprint func(T) uint64,
	handle func(T),
) *Refresher[T] {
	return &Refresher[T]{
		log:         log,
		quiesce:     quiesce,
		fetch:       fetch,
		fingerprint: fingerprint,
		handle:      handle,
		notify:      make(chan struct{}, 1),
	}
}

// Notify signals that the underlying data may have changed. Never blocks;
// signals arriving while one is already pending are coalesced.
func (r *Refresher[T]) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Run processes notifications until ctx is cancelled. Bursts of
// notifications inside one quiescence window trigger a single refresh of the
// settled state. Cancelling ctx drops any pending refresh; a late Notify
// after cancellation is a no-op.
func (r *Refresher[T]) Run(ctx context.Context) error {
	timer := time.NewTimer(r.quiesce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	armed := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.notify:
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(r.quiesce)
			armed = true
		case <-timer.C:
			armed = false
			r.refresh(ctx)
		}
	}
}

func (r *Refresher[T]) refresh(ctx context.Context) {
	snap, err := r.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Error("snapshot fetch failed", "err", err)
		return
	}
	fp := r.fingerprint(snap)
	if r.seen && fp == r.lastFP {
		r.log.Debug("snapshot unchanged, skipping", "fingerprint", fp)
		return
	}
	r.lastFP = fp
	r.seen = true
	r.handle(snap)
}

// Fingerprint hashes record keys (typically "id|status|updated_at" per
// record) into a cheap snapshot identity.
func Fingerprint(keys []string) uint64 {
	h := fnv.New64a()
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
