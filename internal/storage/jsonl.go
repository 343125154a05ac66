package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
)

// JsonlWriter appends snapshot records to a JSONL file. It serves as a
// dry-run sink when no database is configured.
type JsonlWriter struct {
	path string
	mu   sync.Mutex
}

func NewJsonlWriter(path string) *JsonlWriter {
	return &JsonlWriter{path: path}
}

type jsonlLine struct {
	Kind     string                  `json:"kind"`
	Pool     *model.PoolSnapshot     `json:"pool,omitempty"`
	Position *model.PositionSnapshot `json:"position,omitempty"`
	Market   *model.MarketSnapshot   `json:"market,omitempty"`
}

func (w *JsonlWriter) InsertPoolCycle(ctx context.Context, pool model.PoolSnapshot, positions []model.PositionSnapshot) error {
	if err := ValidateCycle(pool, positions); err != nil {
		return err
	}

	lines := make([]jsonlLine, 0, len(positions)+1)
	lines = append(lines, jsonlLine{Kind: "pool_snapshot", Pool: &pool})
	for i := range positions {
		lines = append(lines, jsonlLine{Kind: "position_snapshot", Position: &positions[i]})
	}
	return w.appendLines(lines)
}

func (w *JsonlWriter) InsertMarketSnapshots(ctx context.Context, snapshots []model.MarketSnapshot) error {
	lines := make([]jsonlLine, 0, len(snapshots))
	for i := range snapshots {
		lines = append(lines, jsonlLine{Kind: "market_snapshot", Market: &snapshots[i]})
	}
	return w.appendLines(lines)
}

func (w *JsonlWriter) appendLines(lines []jsonlLine) error {
	if len(lines) == 0 {
		return nil
	}

	dir := filepath.Dir(w.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, line := range lines {
		encoded, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		if _, err := writer.Write(encoded); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
