package events

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 105, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(5, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero chunk size")
	}
}

type stubSource struct {
	queries []BlockRange
	// respond maps the chunk's from-block to a canned response.
	logs map[uint64][]types.Log
	errs map[uint64]error
	// failuresLeft counts transient failures per from-block before
	// the source starts succeeding.
	failuresLeft map[uint64]int
}

func (s *stubSource) FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error) {
	s.queries = append(s.queries, BlockRange{From: from, To: to})
	if s.failuresLeft[from] > 0 {
		s.failuresLeft[from]--
		return nil, errors.New("429 Too Many Requests")
	}
	if err := s.errs[from]; err != nil {
		return nil, err
	}
	return s.logs[from], nil
}

func logWithValue(value int64) types.Log {
	data := make([]byte, 32)
	v := decimal.NewFromInt(value).BigInt().Bytes()
	copy(data[32-len(v):], v)
	return types.Log{Data: data}
}

func decodeFirstWord(log types.Log) (decimal.Decimal, error) {
	word, err := WordAt(log.Data, 0)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(word, 0), nil
}

func newTestAggregator(source LogSource) *Aggregator {
	return NewAggregator(Config{
		ChunkSize:    30,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		BackoffCap:   2 * time.Millisecond,
	}, source, nil)
}

func TestAggregateChunkCount(t *testing.T) {
	// 75 blocks is 2.5 chunks of 30: exactly 3 queries.
	source := &stubSource{
		logs: map[uint64][]types.Log{
			100: {logWithValue(10)},
			130: {logWithValue(20), logWithValue(5)},
			160: {logWithValue(7)},
		},
	}
	agg := newTestAggregator(source)

	total, err := agg.Aggregate(context.Background(), common.Address{}, "Mint(address,uint256,uint256)", 100, 174, decodeFirstWord)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	want := []BlockRange{
		{From: 100, To: 129},
		{From: 130, To: 159},
		{From: 160, To: 174},
	}
	if !reflect.DeepEqual(source.queries, want) {
		t.Fatalf("queries mismatch: %+v != %+v", source.queries, want)
	}
	if !total.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("total mismatch: %s", total)
	}
}

func TestAggregateMiddleChunkFailsAllOrNothing(t *testing.T) {
	source := &stubSource{
		logs: map[uint64][]types.Log{
			100: {logWithValue(10)},
			160: {logWithValue(7)},
		},
		errs: map[uint64]error{130: errors.New("boom")},
	}
	agg := newTestAggregator(source)

	total, err := agg.Aggregate(context.Background(), common.Address{}, "Mint(address,uint256,uint256)", 100, 174, decodeFirstWord)
	var queryErr *EventQueryError
	if !errors.As(err, &queryErr) {
		t.Fatalf("expected EventQueryError, got %v", err)
	}
	if queryErr.FromBlock != 130 || queryErr.ToBlock != 159 {
		t.Fatalf("failed chunk mismatch: %+v", queryErr)
	}
	if !total.IsZero() {
		t.Fatalf("partial total leaked: %s", total)
	}
	// 1 attempt + 2 retries on the failing chunk.
	if queryErr.Attempts != 3 {
		t.Fatalf("attempts mismatch: %d", queryErr.Attempts)
	}
}

func TestAggregateRetriesSameChunkOnRateLimit(t *testing.T) {
	source := &stubSource{
		logs:         map[uint64][]types.Log{100: {logWithValue(3)}},
		failuresLeft: map[uint64]int{100: 2},
	}
	agg := newTestAggregator(source)

	total, err := agg.Aggregate(context.Background(), common.Address{}, "Transfer(address,address,uint256)", 100, 129, decodeFirstWord)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !total.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("total mismatch: %s", total)
	}

	// Same chunk queried three times, never skipped.
	want := []BlockRange{{From: 100, To: 129}, {From: 100, To: 129}, {From: 100, To: 129}}
	if !reflect.DeepEqual(source.queries, want) {
		t.Fatalf("queries mismatch: %+v", source.queries)
	}
}

func TestAggregateRateLimitExhaustionWrapsRateLimitedError(t *testing.T) {
	source := &stubSource{
		failuresLeft: map[uint64]int{100: 10},
	}
	agg := newTestAggregator(source)

	_, err := agg.Aggregate(context.Background(), common.Address{}, "Transfer(address,address,uint256)", 100, 129, decodeFirstWord)
	var queryErr *EventQueryError
	if !errors.As(err, &queryErr) {
		t.Fatalf("expected EventQueryError, got %v", err)
	}
	var rateErr *RateLimitedError
	if !errors.As(queryErr.Err, &rateErr) {
		t.Fatalf("expected wrapped RateLimitedError, got %v", queryErr.Err)
	}
}

func TestAggregateCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &stubSource{}
	agg := newTestAggregator(source)

	_, err := agg.Aggregate(ctx, common.Address{}, "Mint(address,uint256,uint256)", 100, 200, decodeFirstWord)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAggregateDecodeErrorIsFatal(t *testing.T) {
	source := &stubSource{
		logs: map[uint64][]types.Log{100: {{Data: []byte{0x01}}}},
	}
	agg := newTestAggregator(source)

	_, err := agg.Aggregate(context.Background(), common.Address{}, "Mint(address,uint256,uint256)", 100, 129, decodeFirstWord)
	if err == nil {
		t.Fatalf("expected decode error to fail the aggregation")
	}
}

func TestWordAt(t *testing.T) {
	data := make([]byte, 64)
	data[31] = 0x05
	data[63] = 0x09

	first, err := WordAt(data, 0)
	if err != nil || first.Int64() != 5 {
		t.Fatalf("word 0: %v %v", first, err)
	}
	second, err := WordAt(data, 1)
	if err != nil || second.Int64() != 9 {
		t.Fatalf("word 1: %v %v", second, err)
	}
	if _, err := WordAt(data, 2); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestTopicForSignatureStable(t *testing.T) {
	// keccak("Transfer(address,address,uint256)") is the well-known
	// ERC20 transfer topic.
	got := TopicForSignature("Transfer(address,address,uint256)")
	want := common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	if got != want {
		t.Fatalf("topic mismatch: %s", got.Hex())
	}
}
