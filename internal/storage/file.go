package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/types"
)

// FileSink appends failure records to a JSONL log and writes each run
// report to its own timestamped file.
type FileSink struct {
	dir      string
	failures *os.File
	mu       sync.Mutex
	logger   *slog.Logger
}

// NewFileSink creates a file sink rooted at dir.
func NewFileSink(dir string, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "failures.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}

	return &FileSink{
		dir:      dir,
		failures: f,
		logger:   logger.With("component", "file_sink"),
	}, nil
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) WriteFailure(_ context.Context, rec *types.FailureRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal failure record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.failures.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append failure record: %w", err)
	}
	return nil
}

func (s *FileSink) WriteReport(_ context.Context, report *types.RunReport) error {
	name := fmt.Sprintf("report-%s-%s.json", report.Mode, report.StartedAt.Format("20060102-150405"))
	path := filepath.Join(s.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}

	s.logger.Info("run report written", "path", path, "duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures.Close()
}
