package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestBrandCacheHoldsOnlyRememberedResolutions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	brands, err := NewBrands(nil, 8, logger)
	if err != nil {
		t.Fatalf("new brands: %v", err)
	}

	// Nothing has been remembered, so nothing may be served from cache.
	if _, ok := brands.cache.Get("innisfree"); ok {
		t.Fatal("cache populated before any resolution was committed")
	}

	brands.Remember(map[string]int64{"innisfree": 7, "laneige": 12})

	// A remembered name resolves without touching the database: the nil
	// querier would panic if GetOrCreate went past the cache.
	id, err := brands.GetOrCreate(context.Background(), nil, "innisfree")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if id != 7 {
		t.Fatalf("id = %d, want 7", id)
	}

	if _, ok := brands.cache.Get("etude"); ok {
		t.Fatal("unremembered name found in cache")
	}
}
