package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/selfpatch/sovdtui/internal/sovd"
	"github.com/selfpatch/sovdtui/internal/state"
)

const (
	defaultPollInterval = 5 * time.Second
	maxBackoff          = 30 * time.Second
)

// Poller refreshes the fault list of one watched entity at a fixed cadence.
// It pauses while the UI reports the fault panel invisible and fires an
// immediate refresh when visibility returns. Consecutive failures stretch
// the interval exponentially up to maxBackoff. Overlapping ticks are made
// inert by the store's per-entity fault generation guard.
type Poller struct {
	store    *state.Store
	logger   *slog.Logger
	interval time.Duration
	kick     chan struct{}

	mu       sync.Mutex
	visible  bool
	target   *pollTarget
	failures int
}

type pollTarget struct {
	entityType sovd.EntityType
	id         string
}

// NewPoller builds a Poller. It does not start polling until Start.
func NewPoller(store *state.Store, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{
		store:    store,
		logger:   logger,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Start launches the polling goroutine. It returns immediately and stops
// when ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		timer := time.NewTimer(p.interval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.kick:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			case <-timer.C:
			}
			p.pollOnce(ctx)
			timer.Reset(calculateBackoff(p.failureCount(), p.interval))
		}
	}()
}

// SetVisible tells the poller whether the fault panel is on screen.
// Becoming visible triggers an immediate refresh.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	was := p.visible
	p.visible = visible
	p.mu.Unlock()
	if visible && !was {
		p.nudge()
	}
}

// Watch sets the entity whose faults are polled and refreshes right away.
func (p *Poller) Watch(entityType sovd.EntityType, id string) {
	p.mu.Lock()
	p.target = &pollTarget{entityType: entityType, id: id}
	p.failures = 0
	p.mu.Unlock()
	p.nudge()
}

// Unwatch stops polling until the next Watch.
func (p *Poller) Unwatch() {
	p.mu.Lock()
	p.target = nil
	p.mu.Unlock()
}

func (p *Poller) nudge() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	p.mu.Lock()
	visible := p.visible
	target := p.target
	p.mu.Unlock()
	if !visible || target == nil {
		return
	}
	if p.store.Faults(ctx, target.entityType, target.id) {
		p.mu.Lock()
		p.failures = 0
		p.mu.Unlock()
		return
	}
	p.mu.Lock()
	p.failures++
	failures := p.failures
	p.mu.Unlock()
	p.logger.Warn("fault poll failed", "entity", target.id, "consecutive", failures)
}

func (p *Poller) failureCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// calculateBackoff doubles the base interval per consecutive failure,
// capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	backoff := base
	for i := 0; i < failures; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}
