package store

import (
	"context"
	"fmt"

	"review-insights-platform/internal/logger"
)

// CopyResult summarizes a Copy run.
type CopyResult struct {
	Collections     int `json:"collections"`
	RecordsAdded    int `json:"records_added"`
	RecordsSkipped  int `json:"records_skipped"`
	AnalysesAdded   int `json:"analyses_added"`
	AnalysesSkipped int `json:"analyses_skipped"`
}

// Copy moves every collection and analysis from src into dst. Records and
// analyses already present in dst are skipped, so a Copy can be re-run after
// a partial failure.
func Copy(ctx context.Context, src, dst Store) (*CopyResult, error) {
	res := &CopyResult{}

	infos, err := src.ListCollections(ctx)
	if err != nil {
		return res, fmt.Errorf("list source collections: %w", err)
	}
	for _, info := range infos {
		records, err := src.Read(ctx, info.Name, 0)
		if err != nil {
			return res, fmt.Errorf("read %s: %w", info.Name, err)
		}
		appended, err := dst.Append(ctx, info.Name, records)
		if err != nil {
			return res, fmt.Errorf("write %s: %w", info.Name, err)
		}
		res.Collections++
		res.RecordsAdded += appended.Added
		res.RecordsSkipped += appended.Skipped
		logger.Info("Copied collection", "collection", info.Name, "added", appended.Added, "skipped", appended.Skipped)
	}

	existing, err := dst.ListAnalyses(ctx, 0)
	if err != nil {
		return res, fmt.Errorf("list target analyses: %w", err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		seen[a.ID] = struct{}{}
	}

	analyses, err := src.ListAnalyses(ctx, 0)
	if err != nil {
		return res, fmt.Errorf("list source analyses: %w", err)
	}
	for _, a := range analyses {
		if _, ok := seen[a.ID]; ok {
			res.AnalysesSkipped++
			continue
		}
		if _, err := dst.SaveAnalysis(ctx, a); err != nil {
			return res, fmt.Errorf("write analysis %s: %w", a.ID, err)
		}
		res.AnalysesAdded++
	}

	return res, nil
}
