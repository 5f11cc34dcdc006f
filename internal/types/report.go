package types

import "time"

// FailureRecord is written to the failure sink when a product could not be
// collected or persisted.
type FailureRecord struct {
	Site       string    `json:"site" bson:"site"`
	ProductNo  string    `json:"product_no" bson:"product_no"`
	CategoryID string    `json:"category_id" bson:"category_id"`
	Stage      string    `json:"stage" bson:"stage"`
	Reason     string    `json:"reason" bson:"reason"`
	OccurredAt time.Time `json:"occurred_at" bson:"occurred_at"`
}

// RunReport summarizes one full collection or reconciliation run for the
// report sink.
type RunReport struct {
	Site       string           `json:"site" bson:"site"`
	Mode       string           `json:"mode" bson:"mode"`
	StartedAt  time.Time        `json:"started_at" bson:"started_at"`
	FinishedAt time.Time        `json:"finished_at" bson:"finished_at"`
	Week       WeekRef          `json:"week" bson:"week"`
	Categories []CategorySummary `json:"categories" bson:"categories"`
}

// CategorySummary is the per-category slice of a RunReport.
type CategorySummary struct {
	CategoryID string `json:"category_id" bson:"category_id"`
	TotalFound int    `json:"total_found" bson:"total_found"`
	Collected  int    `json:"collected" bson:"collected"`
	Saved      int    `json:"saved" bson:"saved"`
	Dropped    int    `json:"dropped" bson:"dropped"`
	Deleted    int    `json:"deleted" bson:"deleted"`
	Failed     int    `json:"failed" bson:"failed"`
}
