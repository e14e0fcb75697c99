package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"review-insights-platform/models"
)

// Strategy names the recovery step that produced a payload.
type Strategy string

const (
	StrategyDirect   Strategy = "direct"
	StrategyBalanced Strategy = "balanced"
	StrategyPattern  Strategy = "pattern"
)

// DiagnosticLimit caps the raw output echoed back in a ParseFailure.
const DiagnosticLimit = 500

// objectPattern matches objects nested at most one level deep. It is not
// nesting-aware beyond that; it is a last resort after balanced extraction.
var objectPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

var errEmptyOutput = errors.New("scraper produced no output")

// Recovered is a JSON object extracted from scraper output.
type Recovered struct {
	Document json.RawMessage
	Strategy Strategy
}

// Recover extracts the JSON object a scraper meant to print from its stdout,
// which may be wrapped in log lines. Strategies run strict to lenient and the
// first one that decodes wins.
func Recover(stdout, stderr string) (*Recovered, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, newParseFailure(errEmptyOutput, stdout, stderr)
	}

	if isJSONObject(trimmed) {
		return &Recovered{Document: json.RawMessage(trimmed), Strategy: StrategyDirect}, nil
	}

	if span, ok := firstBalancedObject(trimmed); ok && isJSONObject(span) {
		return &Recovered{Document: json.RawMessage(span), Strategy: StrategyBalanced}, nil
	}

	// Later candidates win: the summary object is printed last.
	candidates := objectPattern.FindAllString(trimmed, -1)
	for i := len(candidates) - 1; i >= 0; i-- {
		if isJSONObject(candidates[i]) {
			return &Recovered{Document: json.RawMessage(candidates[i]), Strategy: StrategyPattern}, nil
		}
	}

	return nil, newParseFailure(ErrNoJSON, stdout, stderr)
}

// Parse recovers and decodes a scraper run's stdout into a ScrapeResult.
// Every failure is returned as a *ParseFailure.
func Parse(out RawOutput) (*models.ScrapeResult, Strategy, error) {
	recovered, err := Recover(out.Stdout, out.Stderr)
	if err != nil {
		return nil, "", err
	}
	result, err := DecodeScrapeResult(recovered.Document)
	if err != nil {
		return nil, recovered.Strategy, newParseFailure(err, out.Stdout, out.Stderr)
	}
	return result, recovered.Strategy, nil
}

func newParseFailure(reason error, stdout, stderr string) *ParseFailure {
	return &ParseFailure{
		Reason:    reason,
		RawOutput: Truncate(stdout, DiagnosticLimit),
		Stderr:    Truncate(stderr, DiagnosticLimit),
	}
}

// Truncate returns at most limit characters of s without splitting a rune.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func isJSONObject(s string) bool {
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}

// firstBalancedObject returns the first top-level {...} span. Braces inside
// string literals are ignored once the scan is inside an object.
func firstBalancedObject(text string) (string, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// wireProduct mirrors what the scrapers print. Keys arrive in snake_case or
// camelCase; numbers arrive as numbers or as locale-formatted strings.
type wireProduct struct {
	Success        *bool
	CollectionName string
	ProductName    string
	Platform       string
	TotalReviews   flexNumber
	Price          flexNumber
	ProductURL     string
	Error          string
}

func (p *wireProduct) UnmarshalJSON(data []byte) error {
	var raw struct {
		Success           *bool      `json:"success"`
		CollectionName    string     `json:"collection_name"`
		CollectionNameAlt string     `json:"collectionName"`
		ProductName       string     `json:"product_name"`
		ProductNameAlt    string     `json:"productName"`
		Platform          string     `json:"platform"`
		TotalReviews      flexNumber `json:"total_reviews"`
		TotalReviewsAlt   flexNumber `json:"totalReviews"`
		Price             flexNumber `json:"price"`
		ProductPrice      flexNumber `json:"product_price"`
		ProductURL        string     `json:"product_url"`
		ProductURLAlt     string     `json:"productUrl"`
		Error             string     `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = wireProduct{
		Success:        raw.Success,
		CollectionName: firstNonEmpty(raw.CollectionName, raw.CollectionNameAlt),
		ProductName:    firstNonEmpty(raw.ProductName, raw.ProductNameAlt),
		Platform:       raw.Platform,
		TotalReviews:   raw.TotalReviews.or(raw.TotalReviewsAlt),
		Price:          raw.Price.or(raw.ProductPrice),
		ProductURL:     firstNonEmpty(raw.ProductURL, raw.ProductURLAlt),
		Error:          raw.Error,
	}
	return nil
}

type wireResult struct {
	Success              *bool          `json:"success"`
	Platform             string         `json:"platform"`
	SearchTerm           string         `json:"search_term"`
	SearchTermAlt        string         `json:"searchTerm"`
	TotalReviews         flexNumber     `json:"total_reviews"`
	TotalReviewsAlt      flexNumber     `json:"totalReviews"`
	ProductsProcessed    flexNumber     `json:"products_processed"`
	ProductsProcessedAlt flexNumber     `json:"productsProcessed"`
	Results              *[]wireProduct `json:"results"`
	Error                string         `json:"error"`
}

// DecodeScrapeResult validates a recovered document against the ScrapeResult
// shape. Single-product scrapers print a flat product object; it is
// normalized into a one-element result list.
func DecodeScrapeResult(doc json.RawMessage) (*models.ScrapeResult, error) {
	var wire wireResult
	if err := json.Unmarshal(doc, &wire); err != nil {
		return nil, fmt.Errorf("payload is not a scrape result: %w", err)
	}
	if wire.Success == nil {
		return nil, errors.New("payload is missing the success flag")
	}

	result := &models.ScrapeResult{
		Success:           *wire.Success,
		Platform:          wire.Platform,
		SearchTerm:        firstNonEmpty(wire.SearchTerm, wire.SearchTermAlt),
		TotalReviews:      wire.TotalReviews.or(wire.TotalReviewsAlt).Int(),
		ProductsProcessed: wire.ProductsProcessed.or(wire.ProductsProcessedAlt).Int(),
		Error:             wire.Error,
	}

	var products []wireProduct
	if wire.Results != nil {
		products = *wire.Results
	} else {
		var flat wireProduct
		if err := json.Unmarshal(doc, &flat); err != nil {
			return nil, fmt.Errorf("payload is not a scrape result: %w", err)
		}
		if flat.CollectionName != "" || flat.ProductName != "" {
			products = []wireProduct{flat}
			if result.ProductsProcessed == 0 {
				result.ProductsProcessed = 1
			}
		}
	}

	result.Results = make([]models.ProductResult, 0, len(products))
	for i, p := range products {
		product, err := p.toProduct(result.Platform)
		if err != nil {
			return nil, fmt.Errorf("results[%d]: %w", i, err)
		}
		result.Results = append(result.Results, product)
	}

	if result.TotalReviews == 0 {
		for _, p := range result.Results {
			if p.Success {
				result.TotalReviews += p.TotalReviews
			}
		}
	}
	return result, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p wireProduct) toProduct(defaultPlatform string) (models.ProductResult, error) {
	if p.Success == nil {
		return models.ProductResult{}, errors.New("product is missing the success flag")
	}
	total := p.TotalReviews.Int()
	if total < 0 {
		return models.ProductResult{}, errors.New("total_reviews cannot be negative")
	}
	if *p.Success && p.CollectionName == "" && p.ProductName == "" {
		return models.ProductResult{}, errors.New("successful product needs a collection_name or product_name")
	}

	platform := p.Platform
	if platform == "" {
		platform = defaultPlatform
	}
	return models.ProductResult{
		Success:        *p.Success,
		CollectionName: p.CollectionName,
		ProductName:    p.ProductName,
		Platform:       platform,
		TotalReviews:   total,
		Price:          p.Price.Ptr(),
		ProductURL:     p.ProductURL,
		Error:          p.Error,
	}, nil
}

// flexNumber accepts 12, 12.5, "12", "1.299,90 TL" and null.
type flexNumber struct {
	value float64
	set   bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if v, ok := parseLocaleNumber(s); ok {
			n.value, n.set = v, true
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.value, n.set = v, true
	return nil
}

func (n flexNumber) or(other flexNumber) flexNumber {
	if n.set {
		return n
	}
	return other
}

func (n flexNumber) Int() int {
	return int(n.value)
}

func (n flexNumber) Ptr() *float64 {
	if !n.set {
		return nil
	}
	v := n.value
	return &v
}

func parseLocaleNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "TL"))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		// 1.299,90 -> 1299.90
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
