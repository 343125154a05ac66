package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/storage"
)

// Store keeps snapshots in memory. It backs analyzer tests and the
// collectors' dry-run mode.
type Store struct {
	mu        sync.RWMutex
	positions []model.PositionSnapshot
	pools     []model.PoolSnapshot
	markets   []model.MarketSnapshot
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) InsertPoolCycle(ctx context.Context, pool model.PoolSnapshot, positions []model.PositionSnapshot) error {
	if err := storage.ValidateCycle(pool, positions); err != nil {
		return err
	}

	s.mu.Lock()
	s.pools = append(s.pools, pool)
	s.positions = append(s.positions, positions...)
	s.mu.Unlock()
	return nil
}

func (s *Store) InsertMarketSnapshots(ctx context.Context, snapshots []model.MarketSnapshot) error {
	s.mu.Lock()
	s.markets = append(s.markets, snapshots...)
	s.mu.Unlock()
	return nil
}

func (s *Store) LatestSnapshotTime(ctx context.Context, pool string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	found := false
	for _, p := range s.positions {
		if !samePool(p.PoolAddress, pool) {
			continue
		}
		if !found || p.Timestamp.After(latest) {
			latest = p.Timestamp
			found = true
		}
	}
	return latest, found, nil
}

func (s *Store) PositionSnapshotsAt(ctx context.Context, pool string, at time.Time) ([]model.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PositionSnapshot
	for _, p := range s.positions {
		if samePool(p.PoolAddress, pool) && p.Timestamp.Equal(at) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) PositionSnapshotsSince(ctx context.Context, pool string, since time.Time) ([]model.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PositionSnapshot
	for _, p := range s.positions {
		if samePool(p.PoolAddress, pool) && !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) LatestPoolSnapshot(ctx context.Context, pool string) (model.PoolSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest model.PoolSnapshot
	found := false
	for _, p := range s.pools {
		if !samePool(p.PoolAddress, pool) {
			continue
		}
		if !found || p.Timestamp.After(latest.Timestamp) {
			latest = p
			found = true
		}
	}
	return latest, found, nil
}

// MarketSnapshots returns all inserted market snapshots, for tests.
func (s *Store) MarketSnapshots() []model.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MarketSnapshot, len(s.markets))
	copy(out, s.markets)
	return out
}

func samePool(a, b string) bool {
	return strings.EqualFold(a, b)
}
