package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagmirror/internal/config"
	"tagmirror/internal/domain"
)

// fakeRefreshService records the windows and IDs it was asked about.
type fakeRefreshService struct {
	mu        sync.Mutex
	windows   [][2]time.Time
	staleIDs  []string
	fetched   [][]string
	persisted [][]*domain.Status
}

func (f *fakeRefreshService) ListStaleStatuses(_ context.Context, since, freshSince time.Time, _ int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, [2]time.Time{since, freshSince})
	ids := f.staleIDs
	f.staleIDs = nil
	return ids, nil
}

func (f *fakeRefreshService) FetchStatuses(_ context.Context, ids []string) ([]*domain.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, ids)
	statuses := make([]*domain.Status, len(ids))
	for i, id := range ids {
		statuses[i] = &domain.Status{ID: id}
	}
	return statuses, nil
}

func (f *fakeRefreshService) PersistStatuses(_ context.Context, statuses []*domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, statuses)
	return nil
}

func TestRefresherWalksTiersAscending(t *testing.T) {
	svc := &fakeRefreshService{}
	// Deliberately out of order; the refresher must sort by max-age.
	tiers := []config.RefreshTier{
		{MaxAge: 7 * 24 * time.Hour, Frequency: 6 * time.Hour},
		{MaxAge: 24 * time.Hour, Frequency: time.Hour},
	}
	r := NewStatusRefresher(tiers, 100, svc, testLogger())

	require.NoError(t, r.refresh(context.Background()))

	require.Len(t, svc.windows, 2)
	// First window is the youngest tier: since ≈ now-24h, freshSince ≈ now-1h.
	first, second := svc.windows[0], svc.windows[1]
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), first[0], time.Minute)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), first[1], time.Minute)
	assert.WithinDuration(t, time.Now().Add(-7*24*time.Hour), second[0], time.Minute)
}

func TestRefresherChunksAndPersists(t *testing.T) {
	svc := &fakeRefreshService{staleIDs: []string{"1", "2", "3"}}
	tiers := []config.RefreshTier{{MaxAge: 24 * time.Hour, Frequency: time.Hour}}
	r := NewStatusRefresher(tiers, 100, svc, testLogger())

	require.NoError(t, r.refresh(context.Background()))

	require.Len(t, svc.fetched, 1)
	assert.Equal(t, []string{"1", "2", "3"}, svc.fetched[0])
	require.Len(t, svc.persisted, 1)
	assert.Len(t, svc.persisted[0], 3)
}

func TestRefresherNoTiersIsNoOp(t *testing.T) {
	r := NewStatusRefresher(nil, 100, &fakeRefreshService{}, testLogger())

	done := make(chan struct{})
	go func() {
		// With no tiers Run must return immediately without sleeping.
		r.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return with no tiers configured")
	}
}

func TestRefresherSkipsPersistForEmptyTier(t *testing.T) {
	svc := &fakeRefreshService{}
	tiers := []config.RefreshTier{{MaxAge: 24 * time.Hour, Frequency: time.Hour}}
	r := NewStatusRefresher(tiers, 100, svc, testLogger())

	require.NoError(t, r.refresh(context.Background()))
	assert.Empty(t, svc.fetched)
	assert.Empty(t, svc.persisted)
}
