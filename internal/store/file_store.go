package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"review-insights-platform/internal/logger"
	"review-insights-platform/models"
)

const defaultCacheSize = 128

// FileStore keeps each collection as a JSON array in <dir>/reviews/<name>.json
// and each analysis in <dir>/analysis/<id>.json. Writers to one collection are
// serialized; files are replaced by rename so readers never see partial data.
// It assumes a single process owns the directory.
type FileStore struct {
	reviewsDir  string
	analysisDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	cache *lru.Cache[string, cachedCollection]
	now   func() time.Time
}

type cachedCollection struct {
	modTime time.Time
	size    int64
	records []models.ReviewRecord
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory layout under dir if needed.
func NewFileStore(dir string, cacheSize int) (*FileStore, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, cachedCollection](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create collection cache: %w", err)
	}

	s := &FileStore{
		reviewsDir:  filepath.Join(dir, "reviews"),
		analysisDir: filepath.Join(dir, "analysis"),
		locks:       make(map[string]*sync.Mutex),
		cache:       cache,
		now:         time.Now,
	}
	for _, d := range []string{s.reviewsDir, s.analysisDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", d, err)
		}
	}
	return s, nil
}

func (s *FileStore) lock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

func (s *FileStore) collectionPath(name string) string {
	return filepath.Join(s.reviewsDir, name+".json")
}

// Append merges records into the collection, skipping ids already present.
func (s *FileStore) Append(ctx context.Context, name string, records []models.ReviewRecord) (AppendResult, error) {
	if err := ValidateCollectionName(name); err != nil {
		return AppendResult{}, err
	}

	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return AppendResult{}, err
	}

	existing, _, err := s.load(name)
	if err != nil {
		return AppendResult{}, err
	}

	seen := make(map[string]struct{}, len(existing)+len(records))
	for _, r := range existing {
		seen[r.ID] = struct{}{}
	}
	fresh, skipped := dedupe(records, seen)
	if len(fresh) == 0 {
		return AppendResult{Skipped: skipped}, nil
	}

	merged := make([]models.ReviewRecord, 0, len(existing)+len(fresh))
	merged = append(merged, existing...)
	merged = append(merged, fresh...)

	if err := writeJSONAtomic(s.collectionPath(name), merged); err != nil {
		return AppendResult{}, err
	}
	s.cache.Remove(name)

	return AppendResult{Added: len(fresh), Skipped: skipped}, nil
}

// Read returns up to limit records in insertion order.
func (s *FileStore) Read(ctx context.Context, name string, limit int) ([]models.ReviewRecord, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	records, _, err := s.load(name)
	if err != nil {
		return nil, err
	}
	if records == nil {
		return []models.ReviewRecord{}, nil
	}
	return head(records, limit), nil
}

// load returns a copy of the collection and its file info; a missing file
// yields nil records and nil info.
func (s *FileStore) load(name string) ([]models.ReviewRecord, fs.FileInfo, error) {
	path := s.collectionPath(name)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.cache.Remove(name)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("stat collection %s: %w", name, err)
	}

	if cached, ok := s.cache.Get(name); ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return append([]models.ReviewRecord(nil), cached.records...), info, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read collection %s: %w", name, err)
	}
	var records []models.ReviewRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil, fmt.Errorf("collection %s is corrupt: %w", name, err)
	}

	s.cache.Add(name, cachedCollection{modTime: info.ModTime(), size: info.Size(), records: records})
	return append([]models.ReviewRecord(nil), records...), info, nil
}

func (s *FileStore) collectionNames() ([]string, error) {
	entries, err := os.ReadDir(s.reviewsDir)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if ValidateCollectionName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// ReadAll merges every collection, newest first. Corrupt collections are
// skipped with a warning.
func (s *FileStore) ReadAll(ctx context.Context, platform string, limit int) ([]models.ReviewRecord, error) {
	names, err := s.collectionNames()
	if err != nil {
		return nil, err
	}

	all := []models.ReviewRecord{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, _, err := s.load(name)
		if err != nil {
			logger.Warn("Skipping unreadable collection", "collection", name, "error", err)
			continue
		}
		for _, r := range records {
			if matchesPlatform(r, platform) {
				all = append(all, r)
			}
		}
	}

	sortNewestFirst(all)
	return applyLimit(all, limit), nil
}

// ListCollections summarizes each collection, most recently modified first.
func (s *FileStore) ListCollections(ctx context.Context) ([]models.CollectionInfo, error) {
	names, err := s.collectionNames()
	if err != nil {
		return nil, err
	}

	infos := make([]models.CollectionInfo, 0, len(names))
	for _, name := range names {
		records, info, err := s.load(name)
		if err != nil {
			logger.Warn("Skipping unreadable collection", "collection", name, "error", err)
			continue
		}
		if info == nil {
			continue
		}
		infos = append(infos, describeCollection(name, records, info.ModTime()))
	}
	sortCollections(infos)
	return infos, nil
}

// Delete removes a collection. It reports false when none existed.
func (s *FileStore) Delete(ctx context.Context, name string) (bool, error) {
	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}

	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	err := os.Remove(s.collectionPath(name))
	s.cache.Remove(name)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete collection %s: %w", name, err)
	}
	return true, nil
}

// Stats counts collections, records and analyses.
func (s *FileStore) Stats(ctx context.Context) (*models.StorageStats, error) {
	names, err := s.collectionNames()
	if err != nil {
		return nil, err
	}
	stats := &models.StorageStats{PlatformStats: map[string]int{}}
	for _, name := range names {
		records, _, err := s.load(name)
		if err != nil {
			logger.Warn("Skipping unreadable collection", "collection", name, "error", err)
			continue
		}
		accumulateStats(stats, records)
	}

	entries, err := os.ReadDir(s.analysisDir)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			stats.TotalAnalyses++
		}
	}
	return stats, nil
}

// SaveAnalysis stores an analysis, assigning an id and timestamp if missing.
func (s *FileStore) SaveAnalysis(ctx context.Context, record models.AnalysisRecord) (models.AnalysisRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if err := validateAnalysisID(record.ID); err != nil {
		return models.AnalysisRecord{}, err
	}
	if record.Timestamp == "" {
		record.Timestamp = models.FormatTimestamp(s.now())
	}
	if record.AnalysisType == "" {
		record.AnalysisType = models.AnalysisTypeGeneral
	}

	if err := writeJSONAtomic(filepath.Join(s.analysisDir, record.ID+".json"), record); err != nil {
		return models.AnalysisRecord{}, err
	}
	return record, nil
}

// ListAnalyses returns analyses newest first; limit <= 0 returns all.
func (s *FileStore) ListAnalyses(ctx context.Context, limit int) ([]models.AnalysisRecord, error) {
	entries, err := os.ReadDir(s.analysisDir)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}

	records := make([]models.AnalysisRecord, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.analysisDir, e.Name()))
		if err != nil {
			logger.Warn("Skipping unreadable analysis", "file", e.Name(), "error", err)
			continue
		}
		var record models.AnalysisRecord
		if err := json.Unmarshal(data, &record); err != nil {
			logger.Warn("Skipping corrupt analysis", "file", e.Name(), "error", err)
			continue
		}
		records = append(records, record)
	}

	sortAnalysesNewestFirst(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// GetAnalysis loads one analysis by id.
func (s *FileStore) GetAnalysis(ctx context.Context, id string) (models.AnalysisRecord, bool, error) {
	if err := validateAnalysisID(id); err != nil {
		return models.AnalysisRecord{}, false, err
	}
	data, err := os.ReadFile(filepath.Join(s.analysisDir, id+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return models.AnalysisRecord{}, false, nil
	}
	if err != nil {
		return models.AnalysisRecord{}, false, fmt.Errorf("read analysis %s: %w", id, err)
	}
	var record models.AnalysisRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return models.AnalysisRecord{}, false, fmt.Errorf("analysis %s is corrupt: %w", id, err)
	}
	return record, true, nil
}

// DeleteAnalysis removes one analysis. It reports false when none existed.
func (s *FileStore) DeleteAnalysis(ctx context.Context, id string) (bool, error) {
	if err := validateAnalysisID(id); err != nil {
		return false, err
	}
	err := os.Remove(filepath.Join(s.analysisDir, id+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete analysis %s: %w", id, err)
	}
	return true, nil
}

// writeJSONAtomic writes v to a temp file in the target directory and
// renames it over path.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// describeCollection takes platform and product name from the first record.
func describeCollection(name string, records []models.ReviewRecord, modified time.Time) models.CollectionInfo {
	info := models.CollectionInfo{
		Name:         name,
		RecordCount:  len(records),
		LastModified: modified,
	}
	if len(records) > 0 {
		info.Platform = records[0].Platform
		info.RepresentativeProductName = records[0].ProductName
	}
	return info
}
