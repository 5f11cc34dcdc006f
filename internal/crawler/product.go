package crawler

import (
	"context"
	"fmt"

	"github.com/shelfwatch/shelfwatch/internal/extract"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

// Placeholder substituted when a detail page omits a recoverable field.
const unknownField = "unknown"

// CollectOne fetches and parses a single product detail page. Returns
// types.ErrProductDeleted (wrapped) when the storefront serves its removed-
// product notice, and ValidationError when the page lacks a price.
func (c *Crawler) CollectOne(ctx context.Context, productNo, categoryID string, ranks types.RankPair) (*types.ProductRecord, error) {
	pageURL := c.detailURL(productNo)
	body, err := c.fetch.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", productNo, err)
	}

	rec, err := extract.Detail(body, productNo)
	if err != nil {
		return nil, err
	}

	rec.Site = c.cfg.Site.Name
	rec.CategoryID = categoryID
	rec.URL = pageURL
	rec.PopularityRank = ranks.Popularity
	rec.SalesRank = ranks.Sales

	if err := c.validate(rec); err != nil {
		if c.metrics != nil {
			c.metrics.ProductsDropped.Inc()
		}
		return nil, err
	}

	if c.cfg.Crawler.EnrichIngredients && c.enrich != nil && c.enrich.Enabled() {
		c.enrichRecord(ctx, body, rec)
	}

	return rec, nil
}

// validate enforces the required fields. Brand and name degrade to a
// placeholder; a record without any price carries no signal and is dropped.
func (c *Crawler) validate(rec *types.ProductRecord) error {
	if rec.Brand == "" {
		c.logger.Debug("brand missing, substituting placeholder", "product", rec.ProductNo)
		rec.Brand = unknownField
	}
	if rec.Name == "" {
		c.logger.Debug("name missing, substituting placeholder", "product", rec.ProductNo)
		rec.Name = unknownField
	}
	if rec.Price.Empty() {
		return &types.ValidationError{ProductNo: rec.ProductNo, Missing: []string{"price"}}
	}
	return nil
}

// enrichRecord attaches the ingredient analysis. Enrichment failures are
// recorded on the snapshot, never fatal to collection.
func (c *Crawler) enrichRecord(ctx context.Context, body []byte, rec *types.ProductRecord) {
	ingredients, err := extract.Ingredients(body)
	if err != nil {
		rec.AnalysisError = err.Error()
		return
	}
	if ingredients == "" {
		return
	}

	analysis, err := c.enrich.Analyze(ctx, ingredients)
	if err != nil {
		c.logger.Warn("ingredient analysis failed", "product", rec.ProductNo, "error", err)
		rec.AnalysisError = err.Error()
		return
	}
	rec.Analysis = analysis
}
