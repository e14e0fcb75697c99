package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"review-insights-platform/internal/config"
	"review-insights-platform/internal/logger"
	"review-insights-platform/internal/telemetry"
	"review-insights-platform/models"
)

const duplicateKeyCode = 11000

// MongoStore keeps each review collection as its own MongoDB collection in the
// reviews database, keyed by record id, and the analysis history in a single
// collection of the application database.
type MongoStore struct {
	reviews *mongo.Database
	history *mongo.Collection

	mu      sync.RWMutex
	indexed map[string]bool

	now func() time.Time
}

// reviewDocument adds insertion bookkeeping to a stored record.
type reviewDocument struct {
	models.ReviewRecord `bson:",inline"`
	InsertedAt          time.Time `bson:"inserted_at"`
	Seq                 int       `bson:"seq"`
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore uses reviewsDB for review collections and historyDB for
// analysis history.
func NewMongoStore(client *mongo.Client, reviewsDB, historyDB string) *MongoStore {
	return &MongoStore{
		reviews: client.Database(reviewsDB),
		history: client.Database(historyDB).Collection(config.AnalysisHistoryCollection),
		indexed: make(map[string]bool),
		now:     time.Now,
	}
}

// collection returns the handle for name, creating its indexes the first time
// it is written.
func (s *MongoStore) collection(ctx context.Context, name string) (*mongo.Collection, error) {
	col := s.reviews.Collection(name)

	s.mu.RLock()
	done := s.indexed[name]
	s.mu.RUnlock()
	if done {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if s.indexed[name] {
		return col, nil
	}

	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "inserted_at", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "platform", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create indexes for %s: %w", name, err)
	}
	s.indexed[name] = true
	return col, nil
}

// Append inserts records unordered; documents whose _id already exists are
// rejected by the server and counted as skipped.
func (s *MongoStore) Append(ctx context.Context, name string, records []models.ReviewRecord) (AppendResult, error) {
	if err := ValidateCollectionName(name); err != nil {
		return AppendResult{}, err
	}
	fresh, skipped := dedupe(records, map[string]struct{}{})
	if len(fresh) == 0 {
		return AppendResult{Skipped: skipped}, nil
	}

	col, err := s.collection(ctx, name)
	if err != nil {
		return AppendResult{}, err
	}

	insertedAt := s.now().UTC()
	docs := make([]interface{}, len(fresh))
	for i, r := range fresh {
		docs[i] = reviewDocument{ReviewRecord: r, InsertedAt: insertedAt, Seq: i}
	}

	start := time.Now()
	_, err = col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	telemetry.RecordDBOperation(ctx, "insert_many", name, time.Since(start))

	duplicates, err := countDuplicates(err)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append to %s: %w", name, err)
	}
	return AppendResult{Added: len(fresh) - duplicates, Skipped: skipped + duplicates}, nil
}

// countDuplicates returns how many write errors are duplicate keys, or the
// error itself if anything else failed.
func countDuplicates(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var bulk mongo.BulkWriteException
	if !errors.As(err, &bulk) || bulk.WriteConcernError != nil {
		return 0, err
	}
	for _, we := range bulk.WriteErrors {
		if we.Code != duplicateKeyCode {
			return 0, err
		}
	}
	return len(bulk.WriteErrors), nil
}

// Read returns up to limit records in insertion order.
func (s *MongoStore) Read(ctx context.Context, name string, limit int) ([]models.ReviewRecord, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "inserted_at", Value: 1}, {Key: "seq", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, name, bson.M{}, opts)
}

func (s *MongoStore) find(ctx context.Context, name string, filter interface{}, opts *options.FindOptions) ([]models.ReviewRecord, error) {
	start := time.Now()
	defer func() { telemetry.RecordDBOperation(ctx, "find", name, time.Since(start)) }()

	cursor, err := s.reviews.Collection(name).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	defer cursor.Close(ctx)

	var docs []reviewDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	records := make([]models.ReviewRecord, len(docs))
	for i, d := range docs {
		records[i] = d.ReviewRecord
	}
	return records, nil
}

func (s *MongoStore) collectionNames(ctx context.Context) ([]string, error) {
	names, err := s.reviews.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	valid := names[:0]
	for _, n := range names {
		if ValidateCollectionName(n) == nil {
			valid = append(valid, n)
		}
	}
	return valid, nil
}

// ReadAll merges every collection, newest first.
func (s *MongoStore) ReadAll(ctx context.Context, platform string, limit int) ([]models.ReviewRecord, error) {
	names, err := s.collectionNames(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultReadAllLimit
	}

	filter := bson.M{}
	if platform != "" {
		filter["platform"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(platform) + "$", Options: "i"}
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(limit))

	all := []models.ReviewRecord{}
	for _, name := range names {
		records, err := s.find(ctx, name, filter, opts)
		if err != nil {
			logger.Warn("Skipping unreadable collection", "collection", name, "error", err)
			continue
		}
		all = append(all, records...)
	}
	sortNewestFirst(all)
	return applyLimit(all, limit), nil
}

// ListCollections summarizes each collection, most recently written first.
func (s *MongoStore) ListCollections(ctx context.Context) ([]models.CollectionInfo, error) {
	names, err := s.collectionNames(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]models.CollectionInfo, 0, len(names))
	for _, name := range names {
		col := s.reviews.Collection(name)
		count, err := col.CountDocuments(ctx, bson.M{})
		if err != nil {
			logger.Warn("Skipping collection", "collection", name, "error", err)
			continue
		}

		info := models.CollectionInfo{Name: name, RecordCount: int(count)}

		var first reviewDocument
		err = col.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "inserted_at", Value: 1}, {Key: "seq", Value: 1}})).Decode(&first)
		if err == nil {
			info.Platform = first.Platform
			info.RepresentativeProductName = first.ProductName
		}
		var last reviewDocument
		err = col.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "inserted_at", Value: -1}})).Decode(&last)
		if err == nil {
			info.LastModified = last.InsertedAt
		}
		infos = append(infos, info)
	}
	sortCollections(infos)
	return infos, nil
}

// Delete drops a collection. It reports false when none existed.
func (s *MongoStore) Delete(ctx context.Context, name string) (bool, error) {
	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	names, err := s.reviews.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, fmt.Errorf("look up %s: %w", name, err)
	}
	if len(names) == 0 {
		return false, nil
	}

	start := time.Now()
	err = s.reviews.Collection(name).Drop(ctx)
	telemetry.RecordDBOperation(ctx, "drop", name, time.Since(start))
	if err != nil {
		return false, fmt.Errorf("drop %s: %w", name, err)
	}

	s.mu.Lock()
	delete(s.indexed, name)
	s.mu.Unlock()
	return true, nil
}

// Stats counts collections, records per platform and analyses.
func (s *MongoStore) Stats(ctx context.Context) (*models.StorageStats, error) {
	names, err := s.collectionNames(ctx)
	if err != nil {
		return nil, err
	}
	stats := &models.StorageStats{PlatformStats: map[string]int{}}
	for _, name := range names {
		records, err := s.find(ctx, name, bson.M{}, options.Find().SetProjection(bson.M{"platform": 1}))
		if err != nil {
			logger.Warn("Skipping collection", "collection", name, "error", err)
			continue
		}
		accumulateStats(stats, records)
	}

	analyses, err := s.history.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("count analyses: %w", err)
	}
	stats.TotalAnalyses = int(analyses)
	return stats, nil
}

// SaveAnalysis stores an analysis, assigning an id and timestamp if missing.
func (s *MongoStore) SaveAnalysis(ctx context.Context, record models.AnalysisRecord) (models.AnalysisRecord, error) {
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

	start := time.Now()
	_, err := s.history.InsertOne(ctx, record)
	telemetry.RecordDBOperation(ctx, "insert_one", s.history.Name(), time.Since(start))
	if err != nil {
		return models.AnalysisRecord{}, fmt.Errorf("save analysis: %w", err)
	}
	return record, nil
}

// ListAnalyses returns analyses newest first; limit <= 0 returns all.
func (s *MongoStore) ListAnalyses(ctx context.Context, limit int) ([]models.AnalysisRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.history.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.AnalysisRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode analyses: %w", err)
	}
	return records, nil
}

// GetAnalysis loads one analysis by id.
func (s *MongoStore) GetAnalysis(ctx context.Context, id string) (models.AnalysisRecord, bool, error) {
	if err := validateAnalysisID(id); err != nil {
		return models.AnalysisRecord{}, false, err
	}
	var record models.AnalysisRecord
	err := s.history.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.AnalysisRecord{}, false, nil
	}
	if err != nil {
		return models.AnalysisRecord{}, false, fmt.Errorf("get analysis %s: %w", id, err)
	}
	return record, true, nil
}

// DeleteAnalysis removes one analysis. It reports false when none existed.
func (s *MongoStore) DeleteAnalysis(ctx context.Context, id string) (bool, error) {
	if err := validateAnalysisID(id); err != nil {
		return false, err
	}
	res, err := s.history.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete analysis %s: %w", id, err)
	}
	return res.DeletedCount > 0, nil
}
