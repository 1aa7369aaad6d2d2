package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"agromarket/internal/logger"
)

// Monitor tracks whether the network is reachable and fans changes out to
// subscribers. Slow subscribers miss intermediate states but always see the
// latest one.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[chan bool]struct{}
}

func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online, subs: make(map[chan bool]struct{})}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel of reachability changes. cancel stops
// delivery and closes the channel.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, ch)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Set records the current state and notifies subscribers if it changed.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online
	for ch := range m.subs {
		select {
		case ch <- online:
		default:
			// replace the stale pending value with the latest one
			select {
			case <-ch:
			default:
			}
			ch <- online
		}
	}
}

// DefaultProbeInterval replaces a non-positive Probe interval.
const DefaultProbeInterval = 15 * time.Second

// Probe checks url every interval and updates the monitor until ctx ends.
// Any response, including an HTTP error status, counts as reachable.
func (m *Monitor) Probe(ctx context.Context, url string, interval time.Duration) {
	if interval <= 0 {
		logger.Log.Warn("Invalid probe interval, using default",
			zap.Duration("interval", interval),
			zap.Duration("default", DefaultProbeInterval),
		)
		interval = DefaultProbeInterval
	}
	client := resty.New()
	client.SetTimeout(5 * time.Second)

	check := func() {
		_, err := client.R().SetContext(ctx).Head(url)
		online := err == nil
		if online != m.Online() {
			logger.Log.Info("Connectivity changed",
				zap.String("probe_url", url),
				zap.Bool("online", online),
				zap.Error(err),
			)
		}
		if ctx.Err() == nil {
			m.Set(online)
		}
	}

	check()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			check()
		}
	}
}
