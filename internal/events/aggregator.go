package events

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/chain"
)

// LogSource filters chain logs over an inclusive block range.
// chain.Client satisfies it; tests substitute a stub.
type LogSource interface {
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
}

// DecodeFunc extracts this log's contribution to the running total.
// Scaling conventions (cToken exchange rates, token decimals) are
// protocol specific, so decoding stays with the caller.
type DecodeFunc func(log types.Log) (decimal.Decimal, error)

// Config controls chunking and retry behavior for one aggregator.
type Config struct {
	// ChunkSize is the provider-imposed eth_getLogs span cap.
	ChunkSize uint64
	// MaxRetries is the number of retries per chunk after the first
	// attempt.
	MaxRetries int
	// RetryBackoff is the initial backoff; it doubles per attempt up
	// to BackoffCap.
	RetryBackoff time.Duration
	BackoffCap   time.Duration
	// ExtraTopics constrain topics1..n of the filter, in addition to
	// the topic0 computed from the event signature.
	ExtraTopics [][]common.Hash
}

const (
	defaultChunkSize    = 30
	defaultMaxRetries   = 5
	defaultRetryBackoff = 500 * time.Millisecond
	defaultBackoffCap   = 30 * time.Second
)

// Aggregator sums event values out of chain logs over a block range,
// one bounded chunk at a time, sequentially. Chunk queries are not
// parallelized: the backoff discipline assumes serialized retries
// against the provider's rate limit.
type Aggregator struct {
	cfg    Config
	source LogSource
	logger *zap.Logger
}

// NewAggregator builds an Aggregator, filling config defaults.
func NewAggregator(cfg Config, source LogSource, logger *zap.Logger) *Aggregator {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{cfg: cfg, source: source, logger: logger}
}

// TopicForSignature returns topic0 for an event signature such as
// "AccrueInterest(uint256,uint256,uint256,uint256)".
func TopicForSignature(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

// Aggregate sums decode(log) over every log the contract emitted for
// the event signature in [startBlock, endBlock]. The result is
// all-or-nothing: if any chunk exhausts its retries the whole call
// fails with *EventQueryError and the partial sum is discarded.
func (a *Aggregator) Aggregate(
	ctx context.Context,
	contract common.Address,
	eventSignature string,
	startBlock, endBlock uint64,
	decode DecodeFunc,
) (decimal.Decimal, error) {
	if a.source == nil {
		return decimal.Zero, fmt.Errorf("log source is nil")
	}
	if decode == nil {
		return decimal.Zero, fmt.Errorf("decode func is nil")
	}

	chunks, err := SplitRange(startBlock, endBlock, a.cfg.ChunkSize)
	if err != nil {
		return decimal.Zero, err
	}

	topic0 := TopicForSignature(eventSignature)
	topics := append([][]common.Hash{{topic0}}, a.cfg.ExtraTopics...)

	total := decimal.Zero
	var matched int
	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		default:
		}

		logs, err := a.queryChunk(ctx, contract, topics, chunk)
		if err != nil {
			a.logger.Warn("chunk failed permanently, discarding partial total",
				zap.Uint64("from", chunk.From),
				zap.Uint64("to", chunk.To),
				zap.Int("matched_so_far", matched),
				zap.Error(err),
			)
			return decimal.Zero, err
		}

		for _, entry := range logs {
			value, err := decode(entry)
			if err != nil {
				return decimal.Zero, fmt.Errorf("decode log %s/%d: %w", entry.TxHash.Hex(), entry.Index, err)
			}
			total = total.Add(value)
			matched++
		}
	}

	a.logger.Debug("aggregation complete",
		zap.String("contract", contract.Hex()),
		zap.String("event", eventSignature),
		zap.Uint64("from", startBlock),
		zap.Uint64("to", endBlock),
		zap.Int("matched", matched),
	)

	return total, nil
}

// queryChunk fetches one chunk, backing off and retrying the same
// chunk on failure. Rate-limit responses never skip a chunk.
func (a *Aggregator) queryChunk(
	ctx context.Context,
	contract common.Address,
	topics [][]common.Hash,
	chunk BlockRange,
) ([]types.Log, error) {
	delay := a.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		logs, err := a.source.FilterLogs(ctx, chunk.From, chunk.To, []common.Address{contract}, topics)
		if err == nil {
			return logs, nil
		}
		lastErr = err

		if chain.IsRateLimited(err) {
			lastErr = &RateLimitedError{RetryAfter: delay, Err: err}
			a.logger.Debug("rate limited, backing off",
				zap.Uint64("from", chunk.From),
				zap.Uint64("to", chunk.To),
				zap.Duration("backoff", delay),
			)
		} else {
			a.logger.Warn("chunk query failed",
				zap.Uint64("from", chunk.From),
				zap.Uint64("to", chunk.To),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}

		if attempt == a.cfg.MaxRetries {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > a.cfg.BackoffCap {
			delay = a.cfg.BackoffCap
		}
	}

	return nil, &EventQueryError{
		FromBlock: chunk.From,
		ToBlock:   chunk.To,
		Attempts:  a.cfg.MaxRetries + 1,
		Err:       lastErr,
	}
}

// WordAt decodes the fixed-width big-endian word at the given index of
// a log's data segment. ABI layouts pack non-indexed values as 32-byte
// words.
func WordAt(data []byte, index int) (*big.Int, error) {
	start := index * 32
	end := start + 32
	if start < 0 || len(data) < end {
		return nil, fmt.Errorf("log data too short: need word %d, have %d bytes", index, len(data))
	}
	return new(big.Int).SetBytes(data[start:end]), nil
}
