package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"review-insights-platform/internal/ai"
	"review-insights-platform/internal/logger"
	"review-insights-platform/internal/store"
	"review-insights-platform/internal/telemetry"
	"review-insights-platform/models"
)

const (
	// BenchmarkReadLimit caps how many records a seller benchmark reads
	BenchmarkReadLimit = 500
	// minSellerComments drops sellers seen in fewer reviews
	minSellerComments = 2

	unknownSeller   = "Bilinmeyen Satıcı"
	unknownPlatform = "Bilinmeyen Platform"
)

var (
	// ErrNoSellers is returned when no seller has enough reviews to compare
	ErrNoSellers = errors.New("no seller information found in this collection")
	// ErrAnalysisNotFound is returned when a compared analysis does not exist
	ErrAnalysisNotFound = errors.New("analysis not found")
)

var (
	trendyolSellerPattern    = regexp.MustCompile(`(?i)(.+?)\s+satıcısından\s+alındı`)
	hepsiburadaSellerPattern = regexp.MustCompile(`(?i)Satıcı:\s*(.+?)[\n\r]`)
)

// BenchmarkSellers groups a collection's reviews by seller and asks the LLM to
// compare the best rated seller with the cheapest one.
func (as *AnalysisService) BenchmarkSellers(ctx context.Context, name string) (*models.AnalysisRecord, error) {
	if err := store.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if as.summarizer == nil {
		return nil, ai.ErrNotConfigured
	}

	ctx, span := telemetry.Tracer().Start(ctx, "analysis.seller_benchmark")
	defer span.End()
	span.SetAttributes(attribute.String("analysis.collection", name))

	records, err := as.store.Read(ctx, name, BenchmarkReadLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyCollection
	}

	sellers := aggregateSellers(records)
	if len(sellers) == 0 {
		return nil, ErrNoSellers
	}
	bench := pickSellers(sellers)
	span.SetAttributes(attribute.Int("analysis.sellers", len(sellers)))

	result, err := as.summarizer.Summarize(ctx, buildSellerPrompt(name, bench, len(records)))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("seller benchmark failed: %w", err)
	}

	rec := as.newRecord(models.AnalysisTypeSellerBenchmark, name)
	rec.PlatformInfo = models.PlatformInfo{
		Platforms: collectPlatformInfo(records).Platforms,
		Products:  []string{displayName(name)},
	}
	rec.ReviewCount = len(records)
	rec.AnalyzedComments = len(records)
	rec.Result = result
	rec.Benchmark = &bench
	rec = as.saveHistory(ctx, rec)

	logger.Info("Sellers benchmarked",
		"collection", name,
		"sellers", len(sellers),
		"highest_rating", bench.HighestRating.Name,
		"cheapest", bench.Cheapest.Name,
		"analysis_id", rec.ID)
	return &rec, nil
}

// CompareProducts asks the LLM which of two previously analyzed products is
// better, based on their stored analyses.
func (as *AnalysisService) CompareProducts(ctx context.Context, firstID, secondID string) (*models.AnalysisRecord, error) {
	if firstID == "" || secondID == "" {
		return nil, &models.ValidationError{Field: "analysisIds", Message: "two analysis ids are required"}
	}
	if firstID == secondID {
		return nil, &models.ValidationError{Field: "analysisIds", Message: "two different analyses are required"}
	}
	if as.summarizer == nil {
		return nil, ai.ErrNotConfigured
	}

	ctx, span := telemetry.Tracer().Start(ctx, "analysis.product_benchmark")
	defer span.End()

	first, err := as.loadProduct(ctx, firstID)
	if err != nil {
		return nil, err
	}
	second, err := as.loadProduct(ctx, secondID)
	if err != nil {
		return nil, err
	}

	result, err := as.summarizer.Summarize(ctx, buildProductPrompt(first, second))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("product benchmark failed: %w", err)
	}

	rec := as.newRecord(models.AnalysisTypeProductBenchmark,
		fmt.Sprintf("Ürün Benchmark: %s vs %s", first.name, second.name))
	rec.PlatformInfo = models.PlatformInfo{
		Platforms: []string{first.platform, second.platform},
		Products:  []string{first.name, second.name},
	}
	rec.ReviewCount = first.comments + second.comments
	rec.AnalyzedComments = first.comments + second.comments
	rec.Result = result
	rec.ComparedIDs = []string{firstID, secondID}
	rec = as.saveHistory(ctx, rec)

	logger.Info("Products compared", "first", first.name, "second", second.name, "analysis_id", rec.ID)
	return &rec, nil
}

type productSummary struct {
	name     string
	platform string
	comments int
	analysis string
}

func (as *AnalysisService) loadProduct(ctx context.Context, id string) (productSummary, error) {
	rec, found, err := as.store.GetAnalysis(ctx, id)
	if err != nil {
		return productSummary{}, err
	}
	if !found {
		return productSummary{}, fmt.Errorf("%w: %s", ErrAnalysisNotFound, id)
	}

	p := productSummary{
		name:     rec.CollectionName,
		platform: unknownPlatform,
		comments: rec.AnalyzedComments,
		analysis: rec.Result,
	}
	if len(rec.PlatformInfo.Products) > 0 && rec.PlatformInfo.Products[0] != "" {
		p.name = rec.PlatformInfo.Products[0]
	}
	if len(rec.PlatformInfo.Platforms) > 0 && rec.PlatformInfo.Platforms[0] != "" {
		p.platform = rec.PlatformInfo.Platforms[0]
	}
	return p, nil
}

// sellerName reads the seller from the review text where the platform
// embeds it, falling back to the platform itself.
func sellerName(r models.ReviewRecord) string {
	var text string
	if r.Comment != nil {
		text = *r.Comment
	}
	switch strings.ToLower(r.Platform) {
	case string(models.PlatformTrendyol):
		if m := trendyolSellerPattern.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
		return "Trendyol"
	case string(models.PlatformHepsiburada):
		if m := hepsiburadaSellerPattern.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
		return "Hepsiburada"
	}
	return unknownSeller
}

func reviewPrice(r models.ReviewRecord) float64 {
	switch {
	case r.ProductPrice != nil && *r.ProductPrice > 0:
		return *r.ProductPrice
	case r.Price != nil && *r.Price > 0:
		return *r.Price
	}
	return 0
}

// aggregateSellers returns sellers with at least minSellerComments reviews,
// best average rating first.
func aggregateSellers(records []models.ReviewRecord) []models.SellerStats {
	type totals struct {
		stats       models.SellerStats
		ratingSum   float64
		ratingCount int
		priceSum    float64
		priceCount  int
	}

	var order []string
	bySeller := map[string]*totals{}
	for _, r := range records {
		name := sellerName(r)
		t, ok := bySeller[name]
		if !ok {
			t = &totals{stats: models.SellerStats{Name: name, Platform: r.Platform}}
			bySeller[name] = t
			order = append(order, name)
		}
		t.stats.TotalComments++
		if r.Rating != nil && *r.Rating > 0 {
			t.ratingSum += *r.Rating
			t.ratingCount++
		}
		if price := reviewPrice(r); price > 0 {
			t.priceSum += price
			t.priceCount++
		}
	}

	sellers := make([]models.SellerStats, 0, len(order))
	for _, name := range order {
		t := bySeller[name]
		if t.stats.TotalComments < minSellerComments {
			continue
		}
		if t.ratingCount > 0 {
			t.stats.AverageRating = t.ratingSum / float64(t.ratingCount)
		}
		if t.priceCount > 0 {
			t.stats.AveragePrice = t.priceSum / float64(t.priceCount)
		}
		sellers = append(sellers, t.stats)
	}
	sort.SliceStable(sellers, func(i, j int) bool {
		return sellers[i].AverageRating > sellers[j].AverageRating
	})
	return sellers
}

// pickSellers expects sellers sorted by rating. The cheapest seller is the
// first with the lowest known price, or the best rated when none has a price.
func pickSellers(sellers []models.SellerStats) models.SellerBenchmark {
	bench := models.SellerBenchmark{
		HighestRating: sellers[0],
		Cheapest:      sellers[0],
		Sellers:       sellers,
	}
	for _, s := range sellers {
		if s.AveragePrice <= 0 {
			continue
		}
		if bench.Cheapest.AveragePrice <= 0 || s.AveragePrice < bench.Cheapest.AveragePrice {
			bench.Cheapest = s
		}
	}
	return bench
}

// displayName turns trendyol_reviews_kablosuz_mouse into "trendyol - kablosuz mouse"
func displayName(collection string) string {
	return strings.ReplaceAll(strings.Replace(collection, "_reviews_", " - ", 1), "_", " ")
}

func buildSellerPrompt(collection string, bench models.SellerBenchmark, total int) string {
	var others strings.Builder
	for i, s := range bench.Sellers {
		if i == 5 {
			break
		}
		fmt.Fprintf(&others, "%d. %s - Rating: %.1f/5.0 - Fiyat: %.2f TL\n", i+1, s.Name, s.AverageRating, s.AveragePrice)
	}
	hi, lo := bench.HighestRating, bench.Cheapest

	return fmt.Sprintf(`
%s koleksiyonundaki satıcı benchmark analizi yapılacak:

**🏆 EN YÜKSEK RATİNG ALAN SATICI:**
Satıcı: %s
Platform: %s
Rating: %.1f/5.0
Fiyat: %.2f TL
Yorum Sayısı: %d

**💰 EN UCUZ FİYAT SUNAN SATICI:**
Satıcı: %s
Platform: %s
Rating: %.1f/5.0
Fiyat: %.2f TL
Yorum Sayısı: %d

**📊 DİĞER SATICILAR:**
%s
Lütfen şu formatta PROFESYONEL ve ŞIK bir TÜRKÇE analiz yap:

# 🎯 SATICI KARŞILAŞTIRMA ANALİZİ

*Bu analiz %d farklı satıcının %d yorum verisine dayanmaktadır.*

## 🏆 En Yüksek Rating Performansı
## 💰 En Uygun Fiyat Performansı
## 🤔 KARŞILAŞTIRMA
**Fiyat Farkı:** %.2f TL
**Rating Farkı:** %.1f puan
**Müşteri Tipi Uygunluğu:** [hangi müşteri tipine hangisi uygun]

## 💡 ÖNERİLER
**Bütçe Odaklı Müşteri:** [tek cümle net öneri]
**Kalite Odaklı Müşteri:** [tek cümle net öneri]
**Optimal Seçim:** [en dengeli seçenek önerisi]

SADECE anlamlı bilgileri ver. Kısa, öz ve profesyonel ol.
`, collection,
		hi.Name, hi.Platform, hi.AverageRating, hi.AveragePrice, hi.TotalComments,
		lo.Name, lo.Platform, lo.AverageRating, lo.AveragePrice, lo.TotalComments,
		others.String(),
		len(bench.Sellers), total,
		hi.AveragePrice-lo.AveragePrice, hi.AverageRating-lo.AverageRating)
}

func buildProductPrompt(first, second productSummary) string {
	return fmt.Sprintf(`
İki farklı ürünün AI analiz sonuçlarını karşılaştırarak hangi ürünün daha iyi olduğunu belirle:

ÜRÜN 1:
İsim: %[1]s
Platform: %[2]s
Analiz Edilen Yorum: %[3]d
AI Analiz Sonucu:
%[4]s

ÜRÜN 2:
İsim: %[5]s
Platform: %[6]s
Analiz Edilen Yorum: %[7]d
AI Analiz Sonucu:
%[8]s

Lütfen şu formatta karşılaştırma yap:

🏆 KAZANAN ÜRÜN: [Ürün adı]

📊 KARŞILAŞTIRMA ANALİZİ:

1. 🔥 Güçlü Yönler Karşılaştırması:
   • %[1]s: [güçlü yönleri]
   • %[5]s: [güçlü yönleri]

2. ⚠️ Zayıf Yönler Karşılaştırması:
   • %[1]s: [zayıf yönleri]
   • %[5]s: [zayıf yönleri]

3. 💭 Müşteri Memnuniyeti
4. 💡 Hangi Ürün Daha İyi ve Neden
5. 🎯 Öneriler
6. 🤔 Son Karar

Objektif ve detaylı bir karşılaştırma yap. Türkçe yanıt ver.
`, first.name, first.platform, first.comments, first.analysis,
		second.name, second.platform, second.comments, second.analysis)
}
