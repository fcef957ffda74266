// Package audit writes an append-only parquet trail of pipeline runs,
// one row per episode, for offline analysis of ingestion quality and
// capability cost.
package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Record is one pipeline run outcome.
type Record struct {
	EpisodeUUID      string `parquet:"episode_uuid"`
	GroupID          string `parquet:"group_id"`
	Stage            string `parquet:"stage"`
	Succeeded        bool   `parquet:"succeeded"`
	Error            string `parquet:"error,optional"`
	EntityCount      int32  `parquet:"entity_count"`
	EdgeCount        int32  `parquet:"edge_count"`
	InvalidatedCount int32  `parquet:"invalidated_count"`
	CreatedNodes     int32  `parquet:"created_nodes"`
	MergedNodes      int32  `parquet:"merged_nodes"`
	WarningCount     int32  `parquet:"warning_count"`
	DurationMS       int64  `parquet:"duration_ms"`
	TimestampMS      int64  `parquet:"timestamp_ms,timestamp(millisecond)"`
}

// Writer appends records to one parquet file per process run. Writes
// are serialized; a failed write is logged and dropped so auditing can
// never fail ingestion.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	writer *parquet.GenericWriter[Record]
	logger *slog.Logger
}

// NewWriter creates the audit file under dir, named by start time.
func NewWriter(dir string, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	name := fmt.Sprintf("episodes-%s.parquet", time.Now().UTC().Format("20060102-150405"))
	file, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("create audit file: %w", err)
	}
	return &Writer{
		file:   file,
		writer: parquet.NewGenericWriter[Record](file),
		logger: logger,
	}, nil
}

// Append records one pipeline run.
func (w *Writer) Append(record Record) {
	if record.TimestampMS == 0 {
		record.TimestampMS = time.Now().UnixMilli()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writer == nil {
		return
	}
	if _, err := w.writer.Write([]Record{record}); err != nil {
		w.logger.Warn("audit write failed", "episode", record.EpisodeUUID, "error", err)
	}
}

// Close flushes and closes the audit file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writer == nil {
		return nil
	}
	err := w.writer.Close()
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	w.writer = nil
	return err
}
