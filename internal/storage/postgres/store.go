package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/storage"
)

// Store provides Postgres persistence for snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertPoolCycle writes one pool snapshot and its child position
// snapshots in a single transaction so a cycle is never half-visible.
func (s *Store) InsertPoolCycle(ctx context.Context, pool model.PoolSnapshot, positions []model.PositionSnapshot) error {
	if err := storage.ValidateCycle(pool, positions); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO pool_snapshots (
			pool_address, token0_symbol, token1_symbol, current_tick, liquidity,
			tvl_usd, total_positions, active_positions, snapshot_ts, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`,
		pool.PoolAddress,
		pool.Token0Symbol,
		pool.Token1Symbol,
		pool.CurrentTick,
		pool.Liquidity,
		pool.TVLUSD,
		pool.TotalPositions,
		pool.ActivePositions,
		pool.Timestamp,
	)
	if err != nil {
		return err
	}

	if len(positions) > 0 {
		batch := &pgx.Batch{}
		for _, p := range positions {
			batch.Queue(`
				INSERT INTO position_snapshots (
					token_id, pool_address, tick_lower, tick_upper, liquidity, is_in_range,
					range_width_ticks, range_width_percent, range_category,
					fee_apr, incentive_apr, total_apr, amount_usd, fees_24h_usd,
					snapshot_ts, created_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now())
			`,
				int64(p.TokenID),
				p.PoolAddress,
				p.TickLower,
				p.TickUpper,
				p.Liquidity,
				p.IsInRange,
				p.RangeWidthTicks,
				p.RangeWidthPercent,
				string(p.RangeCategory),
				p.FeeAPR,
				p.IncentiveAPR,
				p.TotalAPR,
				p.AmountUSD,
				p.Fees24hUSD,
				p.Timestamp,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range positions {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return err
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// InsertMarketSnapshots writes market APY readings.
func (s *Store) InsertMarketSnapshots(ctx context.Context, snapshots []model.MarketSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range snapshots {
		batch.Queue(`
			INSERT INTO market_snapshots (
				asset, market_address, supply_apy, reward_apy, total_apy, snapshot_ts, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,now())
		`,
			m.Asset,
			m.MarketAddress,
			m.SupplyAPY,
			m.RewardAPY,
			m.TotalAPY,
			m.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LatestSnapshotTime returns the most recent position snapshot time for
// a pool.
func (s *Store) LatestSnapshotTime(ctx context.Context, pool string) (time.Time, bool, error) {
	var ts time.Time
	row := s.pool.QueryRow(ctx, `
		SELECT snapshot_ts FROM position_snapshots
		WHERE lower(pool_address) = lower($1)
		ORDER BY snapshot_ts DESC
		LIMIT 1
	`, pool)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts, true, nil
}

const positionColumns = `
	token_id, pool_address, tick_lower, tick_upper, liquidity, is_in_range,
	range_width_ticks, range_width_percent, range_category,
	fee_apr, incentive_apr, total_apr, amount_usd, fees_24h_usd, snapshot_ts
`

// PositionSnapshotsAt returns the position snapshots of a single cycle.
func (s *Store) PositionSnapshotsAt(ctx context.Context, pool string, at time.Time) ([]model.PositionSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+positionColumns+`
		FROM position_snapshots
		WHERE lower(pool_address) = lower($1) AND snapshot_ts = $2
	`, pool, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// PositionSnapshotsSince returns all position snapshots for a pool at or
// after since, oldest first.
func (s *Store) PositionSnapshotsSince(ctx context.Context, pool string, since time.Time) ([]model.PositionSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+positionColumns+`
		FROM position_snapshots
		WHERE lower(pool_address) = lower($1) AND snapshot_ts >= $2
		ORDER BY snapshot_ts ASC
	`, pool, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func scanPositions(rows pgx.Rows) ([]model.PositionSnapshot, error) {
	var out []model.PositionSnapshot
	for rows.Next() {
		var (
			p       model.PositionSnapshot
			tokenID int64
			cat     string
		)
		err := rows.Scan(
			&tokenID,
			&p.PoolAddress,
			&p.TickLower,
			&p.TickUpper,
			&p.Liquidity,
			&p.IsInRange,
			&p.RangeWidthTicks,
			&p.RangeWidthPercent,
			&cat,
			&p.FeeAPR,
			&p.IncentiveAPR,
			&p.TotalAPR,
			&p.AmountUSD,
			&p.Fees24hUSD,
			&p.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		p.TokenID = uint64(tokenID)
		p.RangeCategory = model.RangeCategory(cat)
		out = append(out, p)
	}
	return out, rows.Err()
}

// LatestPoolSnapshot returns the most recent pool snapshot for a pool.
func (s *Store) LatestPoolSnapshot(ctx context.Context, pool string) (model.PoolSnapshot, bool, error) {
	var p model.PoolSnapshot
	row := s.pool.QueryRow(ctx, `
		SELECT pool_address, token0_symbol, token1_symbol, current_tick, liquidity,
		       tvl_usd, total_positions, active_positions, snapshot_ts
		FROM pool_snapshots
		WHERE lower(pool_address) = lower($1)
		ORDER BY snapshot_ts DESC
		LIMIT 1
	`, pool)
	err := row.Scan(
		&p.PoolAddress,
		&p.Token0Symbol,
		&p.Token1Symbol,
		&p.CurrentTick,
		&p.Liquidity,
		&p.TVLUSD,
		&p.TotalPositions,
		&p.ActivePositions,
		&p.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, err
	}
	return p, true, nil
}

// LoadState returns the last processed block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM collector_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return block, true, nil
}

// SaveState upserts the last processed block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO collector_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, block)
	return err
}
