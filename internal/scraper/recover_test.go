package scraper

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverDirect(t *testing.T) {
	rec, err := Recover("  {\"success\":true,\"results\":[]}\n", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, rec.Strategy)
	assert.JSONEq(t, `{"success":true,"results":[]}`, string(rec.Document))
}

func TestRecoverStripsLogNoise(t *testing.T) {
	stdout := "Chrome starting...\nPage 1 done\n{\"a\":1}\nClosing browser"
	rec, err := Recover(stdout, "")
	require.NoError(t, err)
	assert.Equal(t, StrategyBalanced, rec.Strategy)
	assert.JSONEq(t, `{"a":1}`, string(rec.Document))
}

func TestRecoverReturnsFirstBalancedObject(t *testing.T) {
	rec, err := Recover(`noise {"a":1} more {"b":2}`, "")
	require.NoError(t, err)
	assert.Equal(t, StrategyBalanced, rec.Strategy)
	assert.JSONEq(t, `{"a":1}`, string(rec.Document))
}

func TestRecoverIgnoresBracesInStrings(t *testing.T) {
	rec, err := Recover(`log: {"msg":"a } b {","nested":{"n":1}} end`, "")
	require.NoError(t, err)
	assert.Equal(t, StrategyBalanced, rec.Strategy)
	assert.JSONEq(t, `{"msg":"a } b {","nested":{"n":1}}`, string(rec.Document))
}

func TestRecoverFallsBackToPattern(t *testing.T) {
	rec, err := Recover(`{broken {"a":1}`, "")
	require.NoError(t, err)
	assert.Equal(t, StrategyPattern, rec.Strategy)
	assert.JSONEq(t, `{"a":1}`, string(rec.Document))
}

func TestRecoverPatternPrefersLastValidCandidate(t *testing.T) {
	rec, err := Recover(`{ unclosed {"a":1} {"b":2}`, "")
	require.NoError(t, err)
	assert.Equal(t, StrategyPattern, rec.Strategy)
	assert.JSONEq(t, `{"b":2}`, string(rec.Document))

	rec, err = Recover(`{ unclosed {"a":1} {not json}`, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(rec.Document))
}

func TestRecoverNoJSON(t *testing.T) {
	_, err := Recover("hello world", "warning: something")
	require.Error(t, err)
	assert.Equal(t, "no valid JSON found", err.Error())
	assert.True(t, errors.Is(err, ErrNoJSON))

	var failure *ParseFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "hello world", failure.RawOutput)
	assert.Equal(t, "warning: something", failure.Stderr)
}

func TestRecoverRejectsNonObjects(t *testing.T) {
	for _, stdout := range []string{"", "   \n", "[1,2,3]", "42", `"text"`} {
		_, err := Recover(stdout, "")
		var failure *ParseFailure
		assert.True(t, errors.As(err, &failure), "stdout %q", stdout)
	}
}

func TestRecoverTruncatesDiagnostics(t *testing.T) {
	stdout := strings.Repeat("ş", 1000)
	stderr := strings.Repeat("x", 2000)

	_, err := Recover(stdout, stderr)
	var failure *ParseFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, DiagnosticLimit, utf8.RuneCountInString(failure.RawOutput))
	assert.True(t, utf8.ValidString(failure.RawOutput))
	assert.Len(t, failure.Stderr, DiagnosticLimit)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "çğ", Truncate("çğı", 2))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestDecodeScrapeResult(t *testing.T) {
	doc := []byte(`{
		"success": true,
		"platform": "Trendyol",
		"search_term": "kulaklık",
		"products_processed": 2,
		"results": [
			{"success": true, "collection_name": "trendyol_reviews_kulaklik", "product_name": "Kulaklık X", "total_reviews": 40, "price": "1.299,90 TL"},
			{"success": false, "error": "page not found"}
		]
	}`)

	result, err := DecodeScrapeResult(doc)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ProductsProcessed)
	assert.Equal(t, 40, result.TotalReviews)
	require.Len(t, result.Results, 2)

	first := result.Results[0]
	assert.Equal(t, "Trendyol", first.Platform)
	require.NotNil(t, first.Price)
	assert.InDelta(t, 1299.90, *first.Price, 0.001)
	assert.False(t, result.Results[1].Success)
	assert.Equal(t, "page not found", result.Results[1].Error)
}

func TestDecodeScrapeResultNormalizesSingleProduct(t *testing.T) {
	doc := []byte(`{"success":true,"product_name":"Telefon Kılıfı","total_reviews":12,"platform":"N11","collection_name":"n11_reviews_telefon_kilifi","price":149.5}`)

	result, err := DecodeScrapeResult(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProductsProcessed)
	assert.Equal(t, 12, result.TotalReviews)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "n11_reviews_telefon_kilifi", result.Results[0].CollectionName)
	require.NotNil(t, result.Results[0].Price)
	assert.Equal(t, 149.5, *result.Results[0].Price)
}

func TestDecodeScrapeResultRejectsBadShapes(t *testing.T) {
	cases := map[string]string{
		"missing success":      `{"a":1}`,
		"unnamed product":      `{"success":true,"results":[{"success":true,"total_reviews":3}]}`,
		"negative reviews":     `{"success":true,"results":[{"success":true,"product_name":"x","total_reviews":-1}]}`,
		"product success type": `{"success":true,"results":[{"total_reviews":3,"product_name":"x"}]}`,
		"results type":         `{"success":true,"results":"none"}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeScrapeResult([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestDecodeScraperFailureEnvelope(t *testing.T) {
	result, err := DecodeScrapeResult([]byte(`{"success":false,"error":"captcha"}`))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "captcha", result.Error)
	assert.Empty(t, result.Results)
}

func TestParseWrapsShapeErrors(t *testing.T) {
	_, strategy, err := Parse(RawOutput{Stdout: "log\n{\"a\":1}", Stderr: "trace"})
	require.Error(t, err)
	assert.Equal(t, StrategyBalanced, strategy)

	var failure *ParseFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "trace", failure.Stderr)
	assert.Contains(t, err.Error(), "no valid JSON found")
	assert.Contains(t, err.Error(), "success flag")
}

func TestDecodeScrapeResultAcceptsCamelCase(t *testing.T) {
	doc := []byte(`{"success":true,"results":[{"success":true,"collectionName":"trendyol_reviews_iphone","productName":"iPhone 16","platform":"trendyol","totalReviews":120}]}`)

	result, err := DecodeScrapeResult(doc)
	require.NoError(t, err)
	assert.Equal(t, 120, result.TotalReviews)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "trendyol_reviews_iphone", result.Results[0].CollectionName)
	assert.Equal(t, "iPhone 16", result.Results[0].ProductName)
	assert.Equal(t, 120, result.Results[0].TotalReviews)
}
