// Package storage holds the sink backends for failure records and run
// reports. Snapshots live in the relational store; sinks carry the
// operational residue of a run.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

// Sink receives failure records and run reports.
type Sink interface {
	WriteFailure(ctx context.Context, rec *types.FailureRecord) error
	WriteReport(ctx context.Context, report *types.RunReport) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the sink backend identifier.
	Name() string
}

// NewSink creates the sink backend selected by configuration.
func NewSink(cfg *config.StorageConfig, logger *slog.Logger) (Sink, error) {
	switch cfg.Type {
	case "file", "":
		return NewFileSink(cfg.OutputPath, logger)
	case "mongo":
		return NewMongoSink(cfg.MongoURI, cfg.Database, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
