package market

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Start restores persisted state, begins a background reconciliation and,
// when signal is non-nil, follows its reachability changes: going offline
// sets IsOffline, coming back online clears it and reconciles. Reconcile
// errors are discarded here; they are already logged and leave state unchanged.
func (s *Store) Start(ctx context.Context, signal Signal) {
	s.Restore(ctx)

	if signal != nil {
		updates, cancel := signal.Subscribe()
		s.offline.Store(!signal.Online())
		go s.watch(ctx, updates, cancel)
	}

	go s.Reconcile(ctx)
}

func (s *Store) watch(ctx context.Context, updates <-chan bool, cancel func()) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-updates:
			if !ok {
				return
			}
			wasOffline := s.offline.Swap(!online)
			s.log.Info("Network reachability changed", zap.Bool("online", online))
			if online && wasOffline {
				go s.Reconcile(ctx)
			}
		}
	}
}

// RunSync reconciles every interval until ctx ends. Ticks are skipped while
// offline or while the previous periodic run is still in flight. Reconcile
// errors are discarded, as in Start.
func (s *Store) RunSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if s.IsOffline() {
				continue
			}
			if !s.syncing.CompareAndSwap(false, true) {
				continue
			}
			func() {
				defer s.syncing.Store(false)
				_ = s.Reconcile(ctx)
			}()
		}
	}
}
