// Package api holds clients for the internal services the harvester talks
// to: the ingredient-analysis service and the product catalog API.
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
)

// IngredientClient calls the ingredient-analysis service.
type IngredientClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewIngredientClient creates an ingredient-analysis client.
func NewIngredientClient(cfg *config.APIConfig, logger *slog.Logger) *IngredientClient {
	return &IngredientClient{
		baseURL: cfg.IngredientURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With("component", "ingredient_client"),
	}
}

// SetTransport replaces the underlying round tripper.
func (c *IngredientClient) SetTransport(rt http.RoundTripper) {
	c.client.Transport = rt
}

// Enabled reports whether a service endpoint is configured.
func (c *IngredientClient) Enabled() bool { return c.baseURL != "" }

// Health checks the service before a run so enrichment failures surface
// early instead of one product at a time.
func (c *IngredientClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ingredient service health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingredient service health: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Analyze submits a raw ingredient list and returns the analysis document
// as received.
func (c *IngredientClient) Analyze(ctx context.Context, ingredients string) (json.RawMessage, error) {
	payload, _ := json.Marshal(map[string]string{"ingredients": ingredients})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analyze returned HTTP %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read analyze response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("analyze returned invalid JSON")
	}
	return json.RawMessage(body), nil
}
