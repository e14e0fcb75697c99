package store

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"review-insights-platform/models"
)

// DefaultReadAllLimit is used when ReadAll is called without a limit.
const DefaultReadAllLimit = 50

var (
	collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	analysisIDPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// AppendResult reports how many records were written and how many were
// ignored because their id already existed.
type AppendResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// CollectionStore persists review records grouped by collection name.
// Records are deduplicated by id: the first write of an id wins.
type CollectionStore interface {
	Append(ctx context.Context, name string, records []models.ReviewRecord) (AppendResult, error)
	// Read returns up to limit records of a collection in insertion order;
	// limit <= 0 reads everything and a missing collection is empty.
	Read(ctx context.Context, name string, limit int) ([]models.ReviewRecord, error)
	ReadAll(ctx context.Context, platform string, limit int) ([]models.ReviewRecord, error)
	ListCollections(ctx context.Context) ([]models.CollectionInfo, error)
	Delete(ctx context.Context, name string) (bool, error)
	Stats(ctx context.Context) (*models.StorageStats, error)
}

// AnalysisStore keeps the history of LLM analyses.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, record models.AnalysisRecord) (models.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, limit int) ([]models.AnalysisRecord, error)
	// GetAnalysis reports false when no analysis has the id.
	GetAnalysis(ctx context.Context, id string) (models.AnalysisRecord, bool, error)
	DeleteAnalysis(ctx context.Context, id string) (bool, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	CollectionStore
	AnalysisStore
}

// ValidateCollectionName rejects names that are unsafe as file or collection names.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return &models.ValidationError{
			Field:   "collection",
			Message: "collection name must contain only letters, digits and underscores",
		}
	}
	return nil
}

func validateAnalysisID(id string) error {
	if !analysisIDPattern.MatchString(id) {
		return &models.ValidationError{Field: "id", Message: "invalid analysis id"}
	}
	return nil
}

// dedupe drops records without an id or whose id is in seen, and marks the
// survivors as seen. The first occurrence of an id wins.
func dedupe(records []models.ReviewRecord, seen map[string]struct{}) (fresh []models.ReviewRecord, skipped int) {
	for _, r := range records {
		if r.ID == "" {
			skipped++
			continue
		}
		if _, ok := seen[r.ID]; ok {
			skipped++
			continue
		}
		seen[r.ID] = struct{}{}
		fresh = append(fresh, r)
	}
	return fresh, skipped
}

func matchesPlatform(r models.ReviewRecord, platform string) bool {
	return platform == "" || strings.EqualFold(r.Platform, platform)
}

// sortNewestFirst orders records by timestamp descending. Unparseable
// timestamps sort last; ties keep their relative order.
func sortNewestFirst(records []models.ReviewRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ParsedTimestamp().After(records[j].ParsedTimestamp())
	})
}

func applyLimit(records []models.ReviewRecord, limit int) []models.ReviewRecord {
	if limit <= 0 {
		limit = DefaultReadAllLimit
	}
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

// head keeps the first limit records; limit <= 0 keeps all of them.
func head(records []models.ReviewRecord, limit int) []models.ReviewRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

func sortAnalysesNewestFirst(records []models.AnalysisRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
}

func sortCollections(infos []models.CollectionInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].LastModified.After(infos[j].LastModified)
	})
}

func accumulateStats(stats *models.StorageStats, records []models.ReviewRecord) {
	stats.TotalCollections++
	stats.TotalReviews += len(records)
	for _, r := range records {
		platform := strings.ToLower(r.Platform)
		if platform == "" {
			platform = "unknown"
		}
		stats.PlatformStats[platform]++
	}
}
