package presence

import (
	"context"
	"log"
	"time"

	"presence-tracker-backend/config"
	"presence-tracker-backend/internal/store"
)

// Sweeper periodically checks out members whose session reached the
// auto-checkout limit. Forgotten checkouts earn no time.
type Sweeper struct {
	store    store.Store
	after    time.Duration
	interval time.Duration
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper creates a sweeper but does not start it.
func NewSweeper(cfg *config.PresenceConfig, s store.Store) *Sweeper {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		store:    s,
		after:    cfg.AutoCheckout,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every interval until ctx is
// cancelled or Stop is called.
func (sw *Sweeper) Start(ctx context.Context) {
	if sw.after <= 0 {
		log.Printf("auto-checkout sweeper disabled")
		close(sw.done)
		return
	}

	ctx, sw.cancel = context.WithCancel(ctx)
	go sw.loop(ctx)

	log.Printf("auto-checkout sweeper started (after=%s, interval=%s)", sw.after, sw.interval)
}

// Stop signals the sweeper to exit and waits for it to finish.
func (sw *Sweeper) Stop() {
	if sw.cancel == nil {
		return
	}
	sw.cancel()
	<-sw.done
}

func (sw *Sweeper) loop(ctx context.Context) {
	defer close(sw.done)

	sw.sweep(ctx)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.sweep(ctx)
		}
	}
}

func (sw *Sweeper) sweep(ctx context.Context) {
	if _, err := sw.SweepOnce(ctx); err != nil {
		log.Printf("auto-checkout sweep error: %v", err)
	}
}

// SweepOnce forces out every stale session and returns the applied transitions.
// Running it again without new check-ins changes nothing.
func (sw *Sweeper) SweepOnce(ctx context.Context) ([]store.Transition, error) {
	if sw.after <= 0 {
		return nil, nil
	}
	transitions, err := sw.store.AutoCheckout(ctx, sw.now().UTC(), sw.after)
	if err != nil {
		return nil, err
	}
	for _, tr := range transitions {
		log.Printf("auto-checked out %s after %s", tr.MemberID, tr.Elapsed.Round(time.Minute))
	}
	if len(transitions) > 0 {
		log.Printf("Auto-checked out %d stale members", len(transitions))
	}
	return transitions, nil
}
