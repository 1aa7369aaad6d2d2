package market

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"agromarket/internal/logger"
	"agromarket/internal/models"
)

// Local ids are drawn from [localIDMin, localIDMin+localIDSpan).
const (
	localIDMin      = 1001
	localIDSpan     = 8999
	localIDAttempts = 16
)

// Signal is the host's network reachability state.
type Signal interface {
	Online() bool
	// Subscribe delivers every reachability change until cancel is called.
	Subscribe() (updates <-chan bool, cancel func())
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides the time source used for updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRand overrides the generator for local ids and trends.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) { s.rng = r }
}

// WithOnChange registers fn to receive the listing snapshot after every
// successful reconciliation or local write. fn runs outside the store lock.
func WithOnChange(fn func([]models.Listing)) Option {
	return func(s *Store) { s.onChange = fn }
}

// Store is the offline-tolerant listing cache and price-alert store.
//
// Every mutation replaces the whole collection in memory and in storage.
// Storage and fetch failures are logged and never surface as panics; the
// last good state stays authoritative.
type Store struct {
	storage  Storage
	source   Source
	log      *zap.Logger
	now      func() time.Time
	rng      *rand.Rand
	onChange func([]models.Listing)

	mu       sync.Mutex
	listings []models.Listing
	alerts   []models.PriceAlert
	applied  uint64

	offline atomic.Bool
	syncSeq atomic.Uint64
	syncing atomic.Bool
}

func NewStore(storage Storage, source Source, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		source:  source,
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Log
	}
	return s
}

// Listings returns a copy of the current listing collection, newest local
// additions first.
func (s *Store) Listings() []models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.listings)
}

// PriceAlerts returns a copy of the current alert collection.
func (s *Store) PriceAlerts() []models.PriceAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.alerts)
}

func (s *Store) IsOffline() bool {
	return s.offline.Load()
}

// Restore replaces in-memory state with the persisted collections. Missing,
// unreadable or corrupt values restore as empty.
func (s *Store) Restore(ctx context.Context) {
	listings, _ := s.loadListings(ctx)
	alerts := s.loadAlerts(ctx)

	s.mu.Lock()
	s.listings = listings
	s.alerts = alerts
	s.mu.Unlock()

	s.log.Info("Market cache restored",
		zap.Int("listings", len(listings)),
		zap.Int("price_alerts", len(alerts)),
	)
}

// Reconcile fetches the remote listing set and merges it with the
// local-only listings of the persisted cache, remote first. On failure the
// current state is left untouched and the error is returned for reporting
// only. A result that completes after a later-started reconciliation has
// already been applied is discarded.
func (s *Store) Reconcile(ctx context.Context) error {
	seq := s.syncSeq.Add(1)

	fresh, err := s.source.Fetch(ctx)
	if err != nil {
		reconcileTotal.WithLabelValues("failed").Inc()
		s.log.Warn("Listing reconciliation failed, keeping cached listings",
			zap.Uint64("sync_seq", seq),
			zap.Error(err),
		)
		return fmt.Errorf("fetch listings: %w", err)
	}

	stamp := s.now().UnixMilli()
	remote := make([]models.Listing, len(fresh))
	for i, l := range fresh {
		l.UpdatedAt = stamp
		l.Origin = models.OriginRemote
		remote[i] = l
	}

	s.mu.Lock()
	if seq < s.applied {
		s.mu.Unlock()
		reconcileTotal.WithLabelValues("superseded").Inc()
		s.log.Info("Discarding superseded reconciliation result",
			zap.Uint64("sync_seq", seq),
		)
		return nil
	}

	cached, ok := s.loadListings(ctx)
	if !ok {
		cached = s.listings
	}
	merged := mergeReconciled(remote, cached)
	s.persistListings(ctx, merged)
	s.listings = merged
	s.applied = seq
	snapshot := slices.Clone(merged)
	s.mu.Unlock()

	reconcileTotal.WithLabelValues("ok").Inc()
	s.log.Info("Listings reconciled",
		zap.Uint64("sync_seq", seq),
		zap.Int("remote", len(remote)),
		zap.Int("local_only", len(merged)-len(remote)),
	)
	s.notify(snapshot)
	return nil
}

// AddListing creates a local listing, places it at the head of the
// collection and persists the collection. Input is not validated.
func (s *Store) AddListing(ctx context.Context, in models.NewListing) models.Listing {
	s.mu.Lock()
	l := models.Listing{
		ID:        s.drawLocalID(),
		Farmer:    in.Farmer,
		Crop:      in.Crop,
		Qty:       in.Qty,
		Price:     in.Price,
		FairMin:   in.Price - 4,
		FairMax:   in.Price + 6,
		Location:  in.Location,
		Trend:     s.rng.IntN(20) - 5,
		UpdatedAt: s.now().UnixMilli(),
		Origin:    models.OriginLocal,
	}

	updated := make([]models.Listing, 0, len(s.listings)+1)
	updated = append(updated, l)
	updated = append(updated, s.listings...)
	s.persistListings(ctx, updated)
	s.listings = updated
	snapshot := slices.Clone(updated)
	s.mu.Unlock()

	listingsAddedTotal.Inc()
	s.log.Info("Local listing added",
		zap.Int("listing_id", l.ID),
		zap.String("crop", l.Crop),
	)
	s.notify(snapshot)
	return l
}

// SavePriceAlert inserts alert or replaces the alert with the same id.
func (s *Store) SavePriceAlert(ctx context.Context, alert models.PriceAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := make([]models.PriceAlert, 0, len(s.alerts)+1)
	for _, a := range s.alerts {
		if a.ID != alert.ID {
			updated = append(updated, a)
		}
	}
	updated = append(updated, alert)
	s.persistAlerts(ctx, updated)
	s.alerts = updated
}

// RemovePriceAlert drops the alert with the given id; a missing id is a no-op.
func (s *Store) RemovePriceAlert(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := make([]models.PriceAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if a.ID != id {
			updated = append(updated, a)
		}
	}
	s.persistAlerts(ctx, updated)
	s.alerts = updated
}

// drawLocalID picks a random id in the local range, redrawing on collision
// with a listing already held. Caller holds s.mu.
func (s *Store) drawLocalID() int {
	taken := make(map[int]struct{}, len(s.listings))
	for _, l := range s.listings {
		taken[l.ID] = struct{}{}
	}

	id := localIDMin + s.rng.IntN(localIDSpan)
	for i := 1; i < localIDAttempts; i++ {
		if _, dup := taken[id]; !dup {
			return id
		}
		id = localIDMin + s.rng.IntN(localIDSpan)
	}
	s.log.Warn("Local listing id collides after max attempts", zap.Int("listing_id", id))
	return id
}

// loadListings reads the persisted listings. ok is false only when storage
// could not be read; a missing or corrupt value reads as empty.
func (s *Store) loadListings(ctx context.Context) (listings []models.Listing, ok bool) {
	raw, found, err := s.storage.Get(ctx, ListingsKey)
	if err != nil {
		s.log.Warn("Failed to read cached listings", zap.String("key", ListingsKey), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, true
	}
	listings, err = decodeListings(raw)
	if err != nil {
		s.log.Warn("Ignoring corrupt cached listings", zap.String("key", ListingsKey), zap.Error(err))
		return nil, true
	}
	return listings, true
}

func (s *Store) loadAlerts(ctx context.Context) []models.PriceAlert {
	alerts, err := LoadPriceAlerts(ctx, s.storage)
	if err != nil {
		s.log.Warn("Ignoring unreadable price alerts", zap.String("key", AlertsKey), zap.Error(err))
		return nil
	}
	return alerts
}

func (s *Store) persistListings(ctx context.Context, listings []models.Listing) {
	raw, err := encodeListings(listings)
	if err == nil {
		err = s.storage.Set(ctx, ListingsKey, raw)
	}
	if err != nil {
		persistErrorsTotal.WithLabelValues(ListingsKey).Inc()
		s.log.Error("Failed to persist listings", zap.Int("count", len(listings)), zap.Error(err))
	}
}

func (s *Store) persistAlerts(ctx context.Context, alerts []models.PriceAlert) {
	raw, err := encodeAlerts(alerts)
	if err == nil {
		err = s.storage.Set(ctx, AlertsKey, raw)
	}
	if err != nil {
		persistErrorsTotal.WithLabelValues(AlertsKey).Inc()
		s.log.Error("Failed to persist price alerts", zap.Int("count", len(alerts)), zap.Error(err))
	}
}

func (s *Store) notify(snapshot []models.Listing) {
	if s.onChange != nil {
		s.onChange(snapshot)
	}
}
