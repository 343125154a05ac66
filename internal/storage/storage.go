package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
)

// SnapshotWriter is the append-only sink for one collection cycle's
// output. Snapshots are immutable once written; the next cycle
// supersedes them with new rows.
type SnapshotWriter interface {
	// InsertPoolCycle writes a pool snapshot together with its child
	// position snapshots. Implementations validate the cycle first
	// (see ValidateCycle).
	InsertPoolCycle(ctx context.Context, pool model.PoolSnapshot, positions []model.PositionSnapshot) error
	InsertMarketSnapshots(ctx context.Context, snapshots []model.MarketSnapshot) error
}

// SnapshotReader serves the analyzer's queries. Readers may run
// concurrently with collection writes; data is append-only and
// eventually consistent.
type SnapshotReader interface {
	// LatestSnapshotTime returns the most recent position snapshot
	// timestamp for a pool, false when the pool has no snapshots.
	LatestSnapshotTime(ctx context.Context, pool string) (time.Time, bool, error)
	// PositionSnapshotsAt returns all position snapshots for a pool
	// taken at exactly the given time.
	PositionSnapshotsAt(ctx context.Context, pool string, at time.Time) ([]model.PositionSnapshot, error)
	// PositionSnapshotsSince returns all position snapshots for a pool
	// with timestamps at or after since.
	PositionSnapshotsSince(ctx context.Context, pool string, since time.Time) ([]model.PositionSnapshot, error)
	// LatestPoolSnapshot returns the most recent pool snapshot, false
	// when none exists.
	LatestPoolSnapshot(ctx context.Context, pool string) (model.PoolSnapshot, bool, error)
}

// ValidateCycle enforces the pool/position snapshot invariants shared
// by every writer: all rows carry the cycle's timestamp and the pool's
// active count equals the number of in-range child positions.
func ValidateCycle(pool model.PoolSnapshot, positions []model.PositionSnapshot) error {
	active := 0
	for _, p := range positions {
		if p.PoolAddress != pool.PoolAddress {
			return fmt.Errorf("position %d belongs to pool %s, cycle is for %s",
				p.TokenID, p.PoolAddress, pool.PoolAddress)
		}
		if !p.Timestamp.Equal(pool.Timestamp) {
			return fmt.Errorf("position %d timestamp %s differs from cycle timestamp %s",
				p.TokenID, p.Timestamp, pool.Timestamp)
		}
		if p.IsInRange {
			active++
		}
	}
	if pool.ActivePositions != active {
		return fmt.Errorf("pool snapshot active_positions=%d but %d child positions are in range",
			pool.ActivePositions, active)
	}
	if pool.TotalPositions != len(positions) {
		return fmt.Errorf("pool snapshot total_positions=%d but cycle has %d child positions",
			pool.TotalPositions, len(positions))
	}
	return nil
}
