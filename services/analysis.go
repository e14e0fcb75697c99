package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"review-insights-platform/internal/ai"
	"review-insights-platform/internal/logger"
	"review-insights-platform/internal/store"
	"review-insights-platform/internal/telemetry"
	"review-insights-platform/models"
)

const (
	// AnalysisReadLimit caps how many records of a collection are analyzed
	AnalysisReadLimit = 1000
	// PromptCommentLimit caps how many comments are quoted in the prompt
	PromptCommentLimit = 200
	// AnalysisVersion is stamped on every stored analysis
	AnalysisVersion = "4.0"

	minCommentLength = 10
)

// ErrEmptyCollection is returned when the collection has no records
var ErrEmptyCollection = errors.New("no reviews found in this collection")

// AnalysisService sends review comments to the LLM, benchmarks sellers and
// products, and keeps a history of the results.
type AnalysisService struct {
	store      store.Store
	summarizer ai.Summarizer
	now        func() time.Time
}

// NewAnalysisService creates a new analysis service. summarizer may be nil
// when no LLM key is configured; every LLM-backed method then returns
// ai.ErrNotConfigured.
func NewAnalysisService(st store.Store, summarizer ai.Summarizer) *AnalysisService {
	return &AnalysisService{store: st, summarizer: summarizer, now: time.Now}
}

// AnalyzeCollection builds the insight prompt for one collection, summarizes
// it and records the result. A failed history save is logged, not returned.
func (as *AnalysisService) AnalyzeCollection(ctx context.Context, name string) (*models.AnalysisRecord, error) {
	if err := store.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if as.summarizer == nil {
		return nil, ai.ErrNotConfigured
	}

	ctx, span := telemetry.Tracer().Start(ctx, "analysis.collection")
	defer span.End()
	span.SetAttributes(attribute.String("analysis.collection", name))

	records, err := as.store.Read(ctx, name, AnalysisReadLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyCollection
	}

	info := collectPlatformInfo(records)
	comments := usableComments(records)
	span.SetAttributes(
		attribute.Int("analysis.reviews", len(records)),
		attribute.Int("analysis.comments", len(comments)),
	)

	result, err := as.summarizer.Summarize(ctx, buildInsightPrompt(name, info, comments))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	rec := as.newRecord(models.AnalysisTypeGeneral, name)
	rec.PlatformInfo = info
	rec.ReviewCount = len(records)
	rec.AnalyzedComments = len(comments)
	rec.Result = result
	rec = as.saveHistory(ctx, rec)

	logger.Info("Collection analyzed",
		"collection", name,
		"reviews", rec.ReviewCount,
		"comments", rec.AnalyzedComments,
		"analysis_id", rec.ID)
	return &rec, nil
}

// AnalyzeFiltered analyzes a caller-supplied set of reviews, usually the
// result of a filtered browse. Only filters with a value other than "" or
// "all" are kept on the record.
func (as *AnalysisService) AnalyzeFiltered(ctx context.Context, reviews []models.ReviewRecord, filters map[string]string) (*models.AnalysisRecord, error) {
	if len(reviews) == 0 {
		return nil, &models.ValidationError{Field: "reviews", Message: "no reviews to analyze"}
	}
	comments := usableComments(reviews)
	if len(comments) == 0 {
		return nil, &models.ValidationError{Field: "reviews", Message: "none of the reviews has an analyzable comment"}
	}
	if as.summarizer == nil {
		return nil, ai.ErrNotConfigured
	}

	ctx, span := telemetry.Tracer().Start(ctx, "analysis.filtered")
	defer span.End()

	active := activeFilters(filters)
	info := collectPlatformInfo(reviews)
	span.SetAttributes(
		attribute.Int("analysis.reviews", len(reviews)),
		attribute.Int("analysis.comments", len(comments)),
		attribute.Int("analysis.filters", len(active)),
	)

	result, err := as.summarizer.Summarize(ctx, buildFilteredPrompt(info, comments, len(reviews), describeFilters(active)))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("filtered analysis failed: %w", err)
	}

	rec := as.newRecord(models.AnalysisTypeFiltered, filterTitle(active))
	rec.PlatformInfo = info
	rec.ReviewCount = len(reviews)
	rec.AnalyzedComments = len(comments)
	rec.Result = result
	if len(active) > 0 {
		rec.FilterInfo = make(map[string]string, len(active))
		for _, f := range active {
			rec.FilterInfo[f.key] = f.value
		}
	}
	rec = as.saveHistory(ctx, rec)

	logger.Info("Filtered reviews analyzed",
		"title", rec.CollectionName,
		"reviews", rec.ReviewCount,
		"comments", rec.AnalyzedComments,
		"analysis_id", rec.ID)
	return &rec, nil
}

// SaveHistory stores an analysis produced elsewhere. The id, timestamp and
// version are always assigned here.
func (as *AnalysisService) SaveHistory(ctx context.Context, rec models.AnalysisRecord) (*models.AnalysisRecord, error) {
	if strings.TrimSpace(rec.CollectionName) == "" {
		return nil, &models.ValidationError{Field: "collectionName", Message: "collectionName is required"}
	}
	if strings.TrimSpace(rec.Result) == "" {
		return nil, &models.ValidationError{Field: "result", Message: "result is required"}
	}
	if rec.AnalysisType == "" {
		rec.AnalysisType = models.AnalysisTypeGeneral
	}
	if rec.PlatformInfo.Platforms == nil {
		rec.PlatformInfo.Platforms = []string{}
	}
	if rec.PlatformInfo.Products == nil {
		rec.PlatformInfo.Products = []string{}
	}

	fresh := as.newRecord(rec.AnalysisType, rec.CollectionName)
	rec.ID, rec.Timestamp, rec.AnalysisVersion = fresh.ID, fresh.Timestamp, fresh.AnalysisVersion

	saved, err := as.store.SaveAnalysis(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}
	return &saved, nil
}

// newRecord stamps a history entry of the given kind
func (as *AnalysisService) newRecord(kind, title string) models.AnalysisRecord {
	now := as.now()
	return models.AnalysisRecord{
		ID:              fmt.Sprintf("analysis_%d_%s", now.UnixMilli(), uuid.NewString()[:8]),
		CollectionName:  title,
		Timestamp:       models.FormatTimestamp(now),
		AnalysisType:    kind,
		AnalysisVersion: AnalysisVersion,
	}
}

// saveHistory records rec; a failed save is logged and the unsaved record returned
func (as *AnalysisService) saveHistory(ctx context.Context, rec models.AnalysisRecord) models.AnalysisRecord {
	saved, err := as.store.SaveAnalysis(ctx, rec)
	if err != nil {
		logger.Error("Failed to save analysis history",
			"type", rec.AnalysisType,
			"collection", rec.CollectionName,
			"error", err)
		return rec
	}
	return saved
}

// ListHistory returns the newest analyses first
func (as *AnalysisService) ListHistory(ctx context.Context, limit int) ([]models.AnalysisRecord, error) {
	return as.store.ListAnalyses(ctx, limit)
}

// DeleteHistory removes one analysis; false means it did not exist
func (as *AnalysisService) DeleteHistory(ctx context.Context, id string) (bool, error) {
	return as.store.DeleteAnalysis(ctx, id)
}

func collectPlatformInfo(records []models.ReviewRecord) models.PlatformInfo {
	info := models.PlatformInfo{Platforms: []string{}, Products: []string{}}
	seenPlatform := map[string]bool{}
	seenProduct := map[string]bool{}
	for _, r := range records {
		if r.Platform != "" && !seenPlatform[r.Platform] {
			seenPlatform[r.Platform] = true
			info.Platforms = append(info.Platforms, r.Platform)
		}
		if r.ProductName != "" && !seenProduct[r.ProductName] {
			seenProduct[r.ProductName] = true
			info.Products = append(info.Products, r.ProductName)
		}
	}
	return info
}

func usableComments(records []models.ReviewRecord) []string {
	var comments []string
	for _, r := range records {
		if r.Comment == nil {
			continue
		}
		if len([]rune(strings.TrimSpace(*r.Comment))) > minCommentLength {
			comments = append(comments, *r.Comment)
		}
	}
	return comments
}

// describeShop returns the platform and product lines shared by the prompts
func describeShop(info models.PlatformInfo) (shop, productLine string) {
	shop = strings.Join(info.Platforms, ", ")
	if shop == "" {
		shop = "E-ticaret Platform"
	}
	products := info.Products
	if len(products) > 3 {
		products = products[:3]
	}
	productLine = strings.Join(products, ", ")
	if productLine == "" {
		productLine = "Çeşitli Ürünler"
	}
	return shop, productLine
}

// quoteComments joins comments for a prompt, quoting at most PromptCommentLimit
func quoteComments(comments []string) string {
	if len(comments) > PromptCommentLimit {
		return fmt.Sprintf("%s\n\n[Ve %d yorum daha analiz edildi...]",
			strings.Join(comments[:PromptCommentLimit], "\n---\n"), len(comments)-PromptCommentLimit)
	}
	return strings.Join(comments, "\n---\n")
}

// buildInsightPrompt renders the Turkish insight prompt for a stored collection
func buildInsightPrompt(collection string, info models.PlatformInfo, comments []string) string {
	shop, productLine := describeShop(info)
	body := quoteComments(comments)

	return fmt.Sprintf(`
Aşağıdaki "%s" mağazasına ait müşteri yorumlarını analiz et ve şu başlıklarda içgörü üret:

Koleksiyon: %s
Ürünler: %s
Toplam Analiz Edilen Yorum: %d

Yorumlar:
%s

Lütfen şu formatta analiz yap:

1. 🔴 Negatif Temalar:
2. 🟢 Pozitif Temalar:
3. 🧩 Temel Nedenler:
4. 💡 Aksiyon Önerileri:
5. 🧠 İçgörü Başlığı (kısa ve vurucu):

Her başlık altında en az 2-3 madde olsun ve Türkçe yanıtla.
`, shop, collection, productLine, len(comments), body)
}

// filterOrder lists the browse filters in the order they are shown
var filterOrder = []string{
	"platform", "productName", "minPrice", "maxPrice",
	"minRating", "maxRating", "startDate", "endDate", "searchText",
}

type filter struct {
	key   string
	value string
}

// activeFilters drops unset filters and orders the rest: known keys first,
// then any others alphabetically.
func activeFilters(filters map[string]string) []filter {
	var active []filter
	seen := make(map[string]bool, len(filterOrder))
	for _, key := range filterOrder {
		seen[key] = true
		if v := strings.TrimSpace(filters[key]); v != "" && v != "all" {
			active = append(active, filter{key, v})
		}
	}
	var extra []string
	for key := range filters {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		if v := strings.TrimSpace(filters[key]); v != "" && v != "all" {
			active = append(active, filter{key, v})
		}
	}
	return active
}

func describeFilters(active []filter) string {
	if len(active) == 0 {
		return "Filtre uygulanmamış"
	}
	parts := make([]string, len(active))
	for i, f := range active {
		parts[i] = f.key + ": " + f.value
	}
	return strings.Join(parts, ", ")
}

// filterTitle names a filtered analysis after its first two filters
func filterTitle(active []filter) string {
	if len(active) == 0 {
		return "Filtrelenmiş Analiz"
	}
	if len(active) > 2 {
		active = active[:2]
	}
	parts := make([]string, len(active))
	for i, f := range active {
		v := []rune(f.value)
		switch {
		case f.key == "platform":
			v[0] = unicode.ToUpper(v[0])
		case f.key == "productName" && len(v) > 30:
			v = append(v[:30], []rune("...")...)
		}
		parts[i] = string(v)
	}
	return strings.Join(parts, " - ")
}

func buildFilteredPrompt(info models.PlatformInfo, comments []string, total int, filters string) string {
	shop, productLine := describeShop(info)
	return fmt.Sprintf(`
Aşağıdaki "%[1]s" platformlarından "%[2]s" ürünlerine ait müşteri yorumlarını analiz et:

📊 **ANALİZ BİLGİLERİ:**
- Platform(lar): %[1]s
- Ürün(ler): %[2]s
- Analiz Edilen Yorum: %[3]d
- Toplam Filtrelenmiş Yorum: %[4]d
- Uygulanan Filtreler: %[5]s

🔍 **YORUMLAR:**
%[6]s

Lütfen şu formatta detaylı bir Türkçe analiz yap:

## 📊 Genel Durum
*Bu analiz %[3]d yorumun incelenmesi sonucu hazırlanmıştır.*

## 🔴 Negatif Temalar
## 🟢 Pozitif Temalar
## 🧩 Temel Nedenler
## 💡 Aksiyon Önerileri
## 🧠 İçgörü Başlığı
## 📈 Filtre Özel Değerlendirme
*Uygulanan filtreler (%[5]s) özelinde özel değerlendirme*

Her başlık altında en az 2-3 madde olsun ve Türkçe yanıtla. Filtrelenmiş verilere özel odaklan.
`, shop, productLine, len(comments), total, filters, quoteComments(comments))
}
