package types

import (
	"encoding/json"
	"time"
)

// SortKey selects one of the two independent listing orders the storefront
// exposes for a category.
type SortKey string

const (
	// SortPopularity is the storefront default order; position defines the
	// popularity rank.
	SortPopularity SortKey = ""

	// SortSales orders the listing by sales volume.
	SortSales SortKey = "03"
)

func (s SortKey) String() string {
	if s == SortSales {
		return "sales"
	}
	return "popularity"
}

// Price holds the original and current prices in integer currency units.
// Nil means the page did not carry the value.
type Price struct {
	Original *int `json:"original"`
	Current  *int `json:"current"`
}

// Empty reports whether neither price component is present.
func (p Price) Empty() bool { return p.Original == nil && p.Current == nil }

// Rating holds the percentage score (0-100) and the raw text score (0-5).
type Rating struct {
	Percent *float64 `json:"percent"`
	Text    *float64 `json:"text"`
}

// ProductRecord is one harvested product state, destined for a weekly
// snapshot row.
type ProductRecord struct {
	Site        string    `json:"site"`
	CollectedAt time.Time `json:"collected_at"`
	ProductNo   string    `json:"product_no"`
	ItemNo      string    `json:"item_no"`
	CategoryID  string    `json:"category_id"`
	URL         string    `json:"url"`

	// BrandID is set when a prior week's brand resolution is reused; when
	// nil the store resolves Brand by name.
	BrandID *int64 `json:"brand_id,omitempty"`
	Brand   string `json:"brand"`

	Name        string  `json:"name"`
	ImageURL    string  `json:"image_url,omitempty"`
	Price       Price   `json:"price"`
	Rating      Rating  `json:"rating"`
	ReviewCount *int    `json:"review_count,omitempty"`

	PopularityRank *int `json:"popularity_rank,omitempty"`
	SalesRank      *int `json:"sales_rank,omitempty"`

	// Analysis carries the composition-analysis payload when enrichment
	// succeeded; AnalysisError carries the marker when it did not. Both may
	// be empty when the product exposes no ingredient list.
	Analysis      json.RawMessage `json:"analysis,omitempty"`
	AnalysisError string          `json:"analysis_error,omitempty"`
}

// Category is the normalized category value constructed at the data-access
// boundary. Downstream code never sees any other representation.
type Category struct {
	ID   string
	Name string
}

// WeekRef identifies one ISO-8601 week.
type WeekRef struct {
	Year int
	Week int
}

// RankPair carries a product's position under both listing orders. Nil means
// the product was not found under that order.
type RankPair struct {
	Popularity *int
	Sales      *int
}

// CategoryResult summarizes one category collection run.
type CategoryResult struct {
	CategoryID string
	Success    bool
	TotalFound int
	Collected  int
	Saved      int
	Dropped    int
	Deleted    int
	Err        error
}
