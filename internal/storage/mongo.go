package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shelfwatch/shelfwatch/internal/types"
)

// MongoSink writes failure records and run reports to MongoDB collections.
type MongoSink struct {
	client   *mongo.Client
	failures *mongo.Collection
	reports  *mongo.Collection
	logger   *slog.Logger
}

// NewMongoSink creates a MongoDB sink.
func NewMongoSink(uri, database string, logger *slog.Logger) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(database)
	return &MongoSink{
		client:   client,
		failures: db.Collection("failures"),
		reports:  db.Collection("run_reports"),
		logger:   logger.With("component", "mongo_sink"),
	}, nil
}

func (s *MongoSink) Name() string { return "mongo" }

func (s *MongoSink) WriteFailure(ctx context.Context, rec *types.FailureRecord) error {
	if _, err := s.failures.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("mongodb insert failure record: %w", err)
	}
	return nil
}

func (s *MongoSink) WriteReport(ctx context.Context, report *types.RunReport) error {
	if _, err := s.reports.InsertOne(ctx, report); err != nil {
		return fmt.Errorf("mongodb insert run report: %w", err)
	}
	s.logger.Debug("run report stored", "mode", report.Mode)
	return nil
}

func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
