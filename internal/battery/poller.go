// Package battery polls a device's battery level on a background goroutine.
package battery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the time between two battery queries.
const DefaultInterval = time.Second

// ErrAlreadyRunning is returned by Start while a poll loop is active.
var ErrAlreadyRunning = errors.New("battery poller already running")

// Querier reads a device's battery level in percent.
type Querier interface {
	Battery(ctx context.Context, serial string) (int, error)
}

// Poller periodically queries one device's battery level. A Poller is
// restartable: after Stop, or after the device is lost, Start may be called
// again.
type Poller struct {
	querier  Querier
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
	cancel context.CancelFunc
}

// NewPoller creates a Poller. A non-positive interval selects DefaultInterval.
func NewPoller(q Querier, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		querier:  q,
		interval: interval,
		logger:   logger.Named("battery"),
	}
}

// Start begins polling serial. onSample receives every level read;
// onLost is called once, from the poll goroutine, when a query fails, after
// which the poller is idle again.
func (p *Poller) Start(serial string, onSample func(level int), onLost func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.doneCh != nil {
		select {
		case <-p.doneCh:
			// The previous run ended on its own.
			p.clearLocked()
		default:
			return ErrAlreadyRunning
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.cancel = cancel

	p.logger.Info("starting battery poller", zap.String("device", serial), zap.Duration("interval", p.interval))
	go p.run(ctx, serial, p.stopCh, p.doneCh, onSample, onLost)
	return nil
}

// Stop ends the poll loop and waits for it to exit. No callback fires after
// Stop returns. Calling Stop on an idle poller does nothing.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopCh == nil {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.cancel()
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh

	p.mu.Lock()
	if p.doneCh == doneCh {
		p.clearLocked()
	}
	p.mu.Unlock()

	p.logger.Info("battery poller stopped")
}

// Running reports whether a poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doneCh == nil {
		return false
	}
	select {
	case <-p.doneCh:
		return false
	default:
		return true
	}
}

func (p *Poller) clearLocked() {
	p.cancel()
	p.stopCh = nil
	p.doneCh = nil
	p.cancel = nil
}

func (p *Poller) run(ctx context.Context, serial string, stopCh <-chan struct{}, doneCh chan<- struct{},
	onSample func(int), onLost func()) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		level, err := p.querier.Battery(ctx, serial)
		select {
		case <-stopCh:
			return
		default:
		}
		if err != nil {
			p.logger.Warn("battery query failed, device lost", zap.String("device", serial), zap.Error(err))
			if onLost != nil {
				onLost()
			}
			return
		}
		if onSample != nil {
			onSample(max(0, min(100, level)))
		}

		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}
	}
}
