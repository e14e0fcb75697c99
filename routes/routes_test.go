package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"review-insights-platform/internal/queue"
	"review-insights-platform/internal/scraper"
	"review-insights-platform/internal/store"
	"review-insights-platform/middleware"
	"review-insights-platform/models"
	"review-insights-platform/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubScraper struct {
	req  models.ScrapeRequest
	resp *models.ScrapeResponse
	err  error
}

func (s *stubScraper) Scrape(_ context.Context, req models.ScrapeRequest) (*models.ScrapeResponse, error) {
	s.req = req
	return s.resp, s.err
}

type stubQueue struct {
	enqueued []models.ScrapeRequest
	status   *queue.TaskStatus
}

func (q *stubQueue) EnqueueScrape(_ context.Context, req models.ScrapeRequest, _ string) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	q.enqueued = append(q.enqueued, req)
	return "task-1", nil
}

func (q *stubQueue) TaskStatus(id string) (*queue.TaskStatus, error) {
	if q.status == nil || q.status.ID != id {
		return nil, queue.ErrTaskNotFound
	}
	return q.status, nil
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(context.Context, string) (string, error) {
	return "🧠 İçgörü: kargo hızlı", nil
}

type testServer struct {
	router  *gin.Engine
	store   *store.FileStore
	scraper *stubScraper
	queue   *stubQueue
}

func newTestServer(t *testing.T, withQueue bool) *testServer {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir(), 4)
	require.NoError(t, err)

	ts := &testServer{store: fs, scraper: &stubScraper{resp: &models.ScrapeResponse{Success: true}}}
	var tasks TaskQueue
	if withQueue {
		ts.queue = &stubQueue{}
		tasks = ts.queue
	}

	noLimit := func(c *gin.Context) { c.Next() }
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	api := router.Group("/api")
	SetupScrapeRoutes(api, ts.scraper, tasks, noLimit)
	SetupReviewRoutes(api, fs, services.NewExportService(fs))
	SetupAnalysisRoutes(api, services.NewAnalysisService(fs, stubSummarizer{}), noLimit)
	SetupHealthRoutes(router, fs, scraper.NewMetrics().Registry)
	ts.router = router
	return ts
}

func (ts *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func (ts *testServer) seed(t *testing.T, name string, records ...models.ReviewRecord) {
	t.Helper()
	_, err := ts.store.Append(context.Background(), name, records)
	require.NoError(t, err)
}

func TestScrapeEndpoint(t *testing.T) {
	ts := newTestServer(t, false)
	ts.scraper.resp = &models.ScrapeResponse{Success: true, TotalReviews: 120, SavedCollections: []string{"trendyol_reviews_iphone"}}

	w := ts.do(http.MethodPost, "/api/scrape", gin.H{"platform": "Trendyol", "searchType": "product_search", "searchTerm": "iphone"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(120), body["total_reviews"])

	assert.Equal(t, models.PlatformTrendyol, ts.scraper.req.Platform)
	require.NotNil(t, ts.scraper.req.Search)
	assert.Equal(t, "iphone", ts.scraper.req.Search.Term)

	w = ts.do(http.MethodPost, "/api/scrape", gin.H{"platform": "amazon", "url": "https://www.amazon.com.tr/s?k=mouse", "searchTerm": " mouse "})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, ts.scraper.req.Direct)
	assert.Equal(t, "mouse", ts.scraper.req.Direct.FallbackTerm)
}

func TestScrapeEndpointStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		resp   *models.ScrapeResponse
		err    error
		status int
	}{
		{"timeout", &models.ScrapeResponse{Error: "scraping timeout", Timeout: true}, &scraper.TimeoutError{Executable: "x", Timeout: "5m0s"}, http.StatusGatewayTimeout},
		{"parse", &models.ScrapeResponse{Error: "no valid JSON found", RawOutput: "hello"}, &scraper.ParseFailure{Reason: scraper.ErrNoJSON}, http.StatusInternalServerError},
		{"scraper", &models.ScrapeResponse{Error: "captcha"}, &scraper.ScraperError{Message: "captcha"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, false)
			ts.scraper.resp, ts.scraper.err = tc.resp, tc.err

			w := ts.do(http.MethodPost, "/api/scrape", gin.H{"platform": "n11", "url": "https://www.n11.com/urun/x"})
			assert.Equal(t, tc.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.resp.Error, body["error"])
		})
	}
}

func TestScrapeEndpointRejectsInvalidInput(t *testing.T) {
	ts := newTestServer(t, false)

	for _, body := range []gin.H{
		{"platform": "ebay", "url": "https://ebay.com/x"},
		{"platform": "trendyol"},
		{"url": "https://www.trendyol.com/x"},
	} {
		w := ts.do(http.MethodPost, "/api/scrape", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%v", body)
		assert.Equal(t, false, decode(t, w)["success"])
	}

	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader("{"))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAsyncScrape(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(http.MethodPost, "/api/scrape/async", gin.H{"platform": "n11", "url": "https://www.n11.com/urun/x"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ts = newTestServer(t, true)
	w = ts.do(http.MethodPost, "/api/scrape/async", gin.H{"platform": "n11", "url": "https://www.n11.com/urun/x"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "task-1", decode(t, w)["task_id"])
	require.Len(t, ts.queue.enqueued, 1)

	ts.queue.status = &queue.TaskStatus{ID: "task-1", State: "completed", Result: &models.ScrapeResponse{Success: true}}
	w = ts.do(http.MethodGet, "/api/scrape/tasks/task-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	task := decode(t, w)["task"].(map[string]interface{})
	assert.Equal(t, "completed", task["state"])

	w = ts.do(http.MethodGet, "/api/scrape/tasks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewsEndpoints(t *testing.T) {
	ts := newTestServer(t, false)
	ts.seed(t, "trendyol_reviews_iphone",
		models.ReviewRecord{ID: "a", Platform: "trendyol", ProductName: "iPhone 16", Timestamp: "2024-05-01T10:00:00.000Z"},
		models.ReviewRecord{ID: "b", Platform: "trendyol", ProductName: "iPhone 16 Pro", Timestamp: "2024-05-02T10:00:00.000Z"},
	)
	ts.seed(t, "n11_reviews_kilif",
		models.ReviewRecord{ID: "c", Platform: "n11", ProductName: "Kılıf", Timestamp: "2024-05-03T10:00:00.000Z"},
	)

	w := ts.do(http.MethodGet, "/api/reviews?collectionName=trendyol_reviews_iphone&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["total"])

	w = ts.do(http.MethodGet, "/api/reviews", nil)
	reviews := decode(t, w)["reviews"].([]interface{})
	require.Len(t, reviews, 3)
	assert.Equal(t, "c", reviews[0].(map[string]interface{})["id"])

	w = ts.do(http.MethodGet, "/api/reviews?platform=TRENDYOL&productName=pro", nil)
	reviews = decode(t, w)["reviews"].([]interface{})
	require.Len(t, reviews, 1)
	assert.Equal(t, "b", reviews[0].(map[string]interface{})["id"])

	w = ts.do(http.MethodGet, "/api/reviews?collectionName=../etc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// limit=0 falls back to the default on both read paths
	for _, path := range []string{"/api/reviews?limit=0", "/api/reviews?collectionName=trendyol_reviews_iphone&limit=0"} {
		w = ts.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(store.DefaultReadAllLimit), decode(t, w)["limit"], path)
	}

	w = ts.do(http.MethodGet, "/api/reviews?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/api/collections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["total"])

	w = ts.do(http.MethodGet, "/api/storage/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["stats"].(map[string]interface{})
	assert.Equal(t, float64(3), stats["total_reviews"])

	w = ts.do(http.MethodDelete, "/api/reviews?collectionName=n11_reviews_kilif", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodDelete, "/api/reviews?collectionName=n11_reviews_kilif", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(http.MethodDelete, "/api/reviews", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportAndImportEndpoints(t *testing.T) {
	ts := newTestServer(t, false)
	text := "Ekran çok parlak ve net"
	ts.seed(t, "trendyol_reviews_tv", models.ReviewRecord{ID: "a", Platform: "trendyol", ProductName: "TV", Comment: &text})

	w := ts.do(http.MethodGet, "/api/collections/trendyol_reviews_tv/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "trendyol_reviews_tv.xlsx")
	assert.Equal(t, "1", w.Header().Get("X-Record-Count"))

	wb, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()

	w = ts.do(http.MethodGet, "/api/collections/missing/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "tv.xlsx")
	require.NoError(t, err)
	require.NoError(t, wb.Write(part))
	require.NoError(t, mw.WriteField("platform", "trendyol"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/collections/trendyol_reviews_tv_copy/import", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	records, err := ts.store.Read(context.Background(), "trendyol_reviews_tv_copy", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, text, *records[0].Comment)
}

func TestAnalysisEndpoints(t *testing.T) {
	ts := newTestServer(t, false)
	text := "Kargo çok hızlı geldi, teşekkürler"
	ts.seed(t, "n11_reviews_kulaklik", models.ReviewRecord{ID: "a", Platform: "n11", ProductName: "Kulaklık", Comment: &text})

	w := ts.do(http.MethodPost, "/api/analyze", gin.H{"collectionName": "n11_reviews_kulaklik"})
	require.Equal(t, http.StatusOK, w.Code)
	analysis := decode(t, w)["analysis"].(map[string]interface{})
	assert.Equal(t, "🧠 İçgörü: kargo hızlı", analysis["result"])
	assert.Equal(t, float64(1), analysis["analyzedComments"])
	id := analysis["id"].(string)

	w = ts.do(http.MethodPost, "/api/analyze", gin.H{"collectionName": "empty_one"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPost, "/api/analyze", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/api/analysis-history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = ts.do(http.MethodDelete, "/api/analysis-history?id="+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodDelete, "/api/analysis-history?id="+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBenchmarkAndFilteredEndpoints(t *testing.T) {
	ts := newTestServer(t, false)
	c1, c2 := "Satıcı: Ucuzcu\nidare eder", "Satıcı: Ucuzcu\nfena değil"
	ts.seed(t, "hepsiburada_reviews_tost",
		models.ReviewRecord{ID: "a", Platform: "hepsiburada", Comment: &c1},
		models.ReviewRecord{ID: "b", Platform: "hepsiburada", Comment: &c2},
	)

	w := ts.do(http.MethodPost, "/api/analyze-filtered", gin.H{
		"reviews":    []gin.H{{"id": "x", "platform": "n11", "product_name": "Tost Makinesi", "comment": "Peynir akmıyor, çok memnunum"}},
		"filterInfo": gin.H{"platform": "n11", "minPrice": 250, "maxRating": "all"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	filtered := decode(t, w)["analysis"].(map[string]interface{})
	assert.Equal(t, models.AnalysisTypeFiltered, filtered["analysisType"])
	assert.Equal(t, "N11 - 250", filtered["collectionName"])
	assert.Equal(t, map[string]interface{}{"platform": "n11", "minPrice": "250"}, filtered["filterInfo"])

	w = ts.do(http.MethodPost, "/api/analyze-filtered", gin.H{"reviews": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/benchmark", gin.H{"collectionName": "hepsiburada_reviews_tost"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Ucuzcu", body["cheapestSeller"].(map[string]interface{})["name"])
	assert.Equal(t, float64(1), body["sellersAnalyzed"])
	benchmarkID := body["analysis"].(map[string]interface{})["id"].(string)

	w = ts.do(http.MethodPost, "/api/benchmark", gin.H{"collectionName": "missing_one"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPost, "/api/analysis-history", gin.H{"collectionName": "Manuel", "result": "özet", "analysisType": "general_analysis"})
	require.Equal(t, http.StatusCreated, w.Code)
	savedID := decode(t, w)["analysisId"].(string)

	w = ts.do(http.MethodPost, "/api/analysis-history", gin.H{"collectionName": "Manuel"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/product-benchmark", gin.H{"product1Id": benchmarkID, "product2Id": savedID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, "🧠 İçgörü: kargo hızlı", body["comparison"])
	assert.Equal(t, models.AnalysisTypeProductBenchmark, body["analysis"].(map[string]interface{})["analysisType"])

	w = ts.do(http.MethodPost, "/api/product-benchmark", gin.H{"product1Id": benchmarkID, "product2Id": "analysis_missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/api/analysis-history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	types := map[string]bool{}
	for _, h := range decode(t, w)["history"].([]interface{}) {
		types[h.(map[string]interface{})["analysisType"].(string)] = true
	}
	assert.Equal(t, map[string]bool{
		models.AnalysisTypeFiltered:         true,
		models.AnalysisTypeSellerBenchmark:  true,
		models.AnalysisTypeGeneral:          true,
		models.AnalysisTypeProductBenchmark: true,
	}, types)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scraper_records_persisted_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(&models.ValidationError{Message: "x"}))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(&scraper.TimeoutError{}))
	assert.Equal(t, http.StatusNotFound, statusFor(services.ErrEmptyCollection))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
