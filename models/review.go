package models

import "time"

// ReviewRecord is one entry of a review collection. ID is the deduplication key.
type ReviewRecord struct {
	ID             string   `json:"id" bson:"_id"`
	CollectionName string   `json:"collection_name" bson:"collection_name"`
	Platform       string   `json:"platform" bson:"platform"`
	ProductName    string   `json:"product_name" bson:"product_name"`
	Comment        *string  `json:"comment,omitempty" bson:"comment,omitempty"`
	Rating         *float64 `json:"rating,omitempty" bson:"rating,omitempty"`
	Timestamp      string   `json:"timestamp" bson:"timestamp"`
	ProductURL     string   `json:"product_url" bson:"product_url"`
	ProductPrice   *float64 `json:"product_price,omitempty" bson:"product_price,omitempty"`

	// Summary fields written by the orchestrator
	TotalReviews int      `json:"total_reviews,omitempty" bson:"total_reviews,omitempty"`
	Price        *float64 `json:"price,omitempty" bson:"price,omitempty"`
	SearchTerm   string   `json:"search_term,omitempty" bson:"search_term,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty" bson:"created_at,omitempty"`
	LastUpdated  string   `json:"last_updated,omitempty" bson:"last_updated,omitempty"`
}

// TimestampLayout is the UTC millisecond ISO-8601 form used for stored timestamps
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParsedTimestamp returns the record time, or the zero time when it cannot be parsed
func (r ReviewRecord) ParsedTimestamp() time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, r.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// CollectionInfo summarizes one stored collection
type CollectionInfo struct {
	Name                      string    `json:"name"`
	RecordCount               int       `json:"document_count"`
	Platform                  string    `json:"platform"`
	RepresentativeProductName string    `json:"product_name"`
	LastModified              time.Time `json:"last_updated"`
}

// StorageStats aggregates counts across the store
type StorageStats struct {
	TotalCollections int            `json:"total_collections"`
	TotalReviews     int            `json:"total_reviews"`
	TotalAnalyses    int            `json:"total_analyses"`
	PlatformStats    map[string]int `json:"platform_stats"`
}
