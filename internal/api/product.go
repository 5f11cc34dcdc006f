package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

// ProductClient exports collected product batches to the catalog API.
// Export is best effort and additional to the snapshot store: a rejected
// batch is logged, not retried.
type ProductClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewProductClient creates a catalog API client.
func NewProductClient(cfg *config.APIConfig, logger *slog.Logger) *ProductClient {
	return &ProductClient{
		baseURL: cfg.ProductURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With("component", "product_client"),
	}
}

// SetTransport replaces the underlying round tripper.
func (c *ProductClient) SetTransport(rt http.RoundTripper) {
	c.client.Transport = rt
}

// Enabled reports whether a catalog endpoint is configured.
func (c *ProductClient) Enabled() bool { return c.baseURL != "" }

// SaveBatch posts a batch of product records.
func (c *ProductClient) SaveBatch(ctx context.Context, records []*types.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"products": records})
	if err != nil {
		return fmt.Errorf("marshal product batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/products/batch", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("batch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("batch returned HTTP %d: %s", resp.StatusCode, body)
	}

	c.logger.Debug("batch exported", "count", len(records))
	return nil
}
