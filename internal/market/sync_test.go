package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromarket/internal/models"
)

type fakeSignal struct {
	online  bool
	updates chan bool
}

func newFakeSignal(online bool) *fakeSignal {
	return &fakeSignal{online: online, updates: make(chan bool, 4)}
}

func (f *fakeSignal) Online() bool { return f.online }

func (f *fakeSignal) Subscribe() (<-chan bool, func()) {
	return f.updates, func() {}
}

func countingSource(calls *atomic.Int32) Source {
	return SourceFunc(func(ctx context.Context) ([]models.Listing, error) {
		calls.Add(1)
		return remoteSet(1, 2), nil
	})
}

func TestStartRestoresAndReconciles(t *testing.T) {
	storage := newMemStorage()
	seedListings(t, storage, []models.Listing{{ID: 4242, Crop: "Okra"}})
	var calls atomic.Int32

	s := newTestStore(storage, countingSource(&calls))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx, newFakeSignal(true))

	require.Eventually(t, func() bool { return len(s.Listings()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, s.IsOffline())
}

// flipOnSubscribe goes offline while the subscription is being set up, so
// the change is never delivered on the channel.
type flipOnSubscribe struct {
	fakeSignal
}

func (f *flipOnSubscribe) Subscribe() (<-chan bool, func()) {
	f.online = false
	return f.fakeSignal.Subscribe()
}

func TestStartReadsStateAfterSubscribing(t *testing.T) {
	var calls atomic.Int32
	s := newTestStore(newMemStorage(), countingSource(&calls))
	signal := &flipOnSubscribe{fakeSignal: *newFakeSignal(true)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, signal)

	assert.True(t, s.IsOffline())
}

func TestWatchReconcilesWhenBackOnline(t *testing.T) {
	var calls atomic.Int32
	s := newTestStore(newMemStorage(), countingSource(&calls))
	signal := newFakeSignal(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, signal)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.IsOffline())

	signal.updates <- true
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, s.IsOffline())

	// online -> online does not trigger another fetch
	signal.updates <- true
	signal.updates <- false
	require.Eventually(t, s.IsOffline, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunSyncSkipsWhileOffline(t *testing.T) {
	var calls atomic.Int32
	s := newTestStore(newMemStorage(), countingSource(&calls))
	s.offline.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.RunSync(ctx, 10*time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	s.offline.Store(false)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel2()
	s.RunSync(ctx2, 10*time.Millisecond)
	assert.Greater(t, calls.Load(), int32(0))
}

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"farmer":"Ravi Kumar","crop":"Tomato","qty":"500 kg","price":28,"fairMin":24,"fairMax":32,"location":"Coimbatore","trend":12}]`))
	}))
	defer srv.Close()

	listings, err := NewHTTPSource(srv.URL, time.Second).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Tomato", listings[0].Crop)
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, time.Second).Fetch(context.Background())
	assert.ErrorContains(t, err, "503")
}

func TestStaticSourceHonoursContext(t *testing.T) {
	src := &StaticSource{Listings: SeedListings(), Delay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeedListingsAreRemoteRange(t *testing.T) {
	for _, l := range SeedListings() {
		assert.False(t, l.IsLocal(), "seed listing %d", l.ID)
	}
}

func TestRunSyncSurvivesFailingSource(t *testing.T) {
	storage := newMemStorage()
	cached := []models.Listing{{ID: 1, Crop: "Tomato", Origin: models.OriginRemote}, {ID: 2048, Crop: "Okra", Origin: models.OriginLocal}}
	seedListings(t, storage, cached)
	s := newTestStore(storage, failingSource())
	s.Restore(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.RunSync(ctx, 10*time.Millisecond)

	assert.Equal(t, cached, s.Listings())
	assert.Equal(t, cached, persistedListings(t, storage))
}
