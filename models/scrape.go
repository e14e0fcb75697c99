package models

import (
	"fmt"
	"strings"
)

// Platform identifies a supported e-commerce site
type Platform string

const (
	PlatformTrendyol    Platform = "trendyol"
	PlatformHepsiburada Platform = "hepsiburada"
	PlatformN11         Platform = "n11"
	PlatformAliExpress  Platform = "aliexpress"
	PlatformAmazon      Platform = "amazon"
)

// SupportedPlatforms lists platforms in display order
var SupportedPlatforms = []Platform{
	PlatformTrendyol,
	PlatformHepsiburada,
	PlatformN11,
	PlatformAliExpress,
	PlatformAmazon,
}

// SearchTypeProduct selects the search-term variant of a scrape request
const SearchTypeProduct = "product_search"

// ParsePlatform resolves a platform name case-insensitively
func ParsePlatform(value string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(value)))
	for _, supported := range SupportedPlatforms {
		if p == supported {
			return p, nil
		}
	}
	return "", &ValidationError{Field: "platform", Message: UnsupportedPlatformMessage()}
}

// UnsupportedPlatformMessage enumerates the supported platforms
func UnsupportedPlatformMessage() string {
	names := make([]string, 0, len(SupportedPlatforms))
	for _, p := range SupportedPlatforms {
		names = append(names, string(p))
	}
	return "unsupported platform, supported platforms: " + strings.Join(names, ", ")
}

// ValidationError reports a malformed or unsupported request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DirectURLRequest scrapes one product page
type DirectURLRequest struct {
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages,omitempty"`
	// FallbackTerm is searched instead of the URL when the platform cannot
	// scrape the URL as a single product page.
	FallbackTerm string `json:"fallback_term,omitempty"`
}

// SearchTermRequest searches a platform and scrapes the top products
type SearchTermRequest struct {
	Term            string `json:"term"`
	MaxProducts     int    `json:"max_products,omitempty"`
	DepthPerProduct int    `json:"depth_per_product,omitempty"`
}

// ScrapeRequest is a tagged union: exactly one of Direct or Search is set
type ScrapeRequest struct {
	Platform Platform           `json:"platform"`
	Direct   *DirectURLRequest  `json:"direct,omitempty"`
	Search   *SearchTermRequest `json:"search,omitempty"`
}

// Validate checks the platform and that exactly one variant carries its required fields
func (r ScrapeRequest) Validate() error {
	if _, err := ParsePlatform(string(r.Platform)); err != nil {
		return err
	}
	switch {
	case r.Direct != nil && r.Search != nil:
		return &ValidationError{Message: "request must be either a direct URL or a search term, not both"}
	case r.Direct != nil:
		if strings.TrimSpace(r.Direct.URL) == "" {
			return &ValidationError{Field: "url", Message: "url is required"}
		}
		if r.Direct.MaxPages < 0 {
			return &ValidationError{Field: "maxPages", Message: "maxPages cannot be negative"}
		}
	case r.Search != nil:
		if strings.TrimSpace(r.Search.Term) == "" {
			return &ValidationError{Field: "searchTerm", Message: "search term is required"}
		}
		if r.Search.MaxProducts < 0 || r.Search.DepthPerProduct < 0 {
			return &ValidationError{Field: "searchTerm", Message: "maxProducts and depthPerProduct cannot be negative"}
		}
	default:
		return &ValidationError{Message: "url or search term is required"}
	}
	return nil
}

// SearchTerm returns the search term for search requests
func (r ScrapeRequest) SearchTerm() string {
	if r.Search != nil {
		return r.Search.Term
	}
	return ""
}

// ScrapeInput is the request body accepted by the scrape endpoints
type ScrapeInput struct {
	URL             string `json:"url"`
	Platform        string `json:"platform"`
	MaxPages        int    `json:"maxPages"`
	SearchTerm      string `json:"searchTerm"`
	SearchType      string `json:"searchType"`
	MaxProducts     int    `json:"maxProducts"`
	DepthPerProduct int    `json:"depthPerProduct"`
}

// ToRequest converts the loose HTTP body into a validated ScrapeRequest
func (in ScrapeInput) ToRequest() (ScrapeRequest, error) {
	if strings.TrimSpace(in.Platform) == "" {
		return ScrapeRequest{}, &ValidationError{Field: "platform", Message: "platform is required"}
	}
	platform, err := ParsePlatform(in.Platform)
	if err != nil {
		return ScrapeRequest{}, err
	}

	req := ScrapeRequest{Platform: platform}
	if in.SearchType == SearchTypeProduct {
		req.Search = &SearchTermRequest{
			Term:            strings.TrimSpace(in.SearchTerm),
			MaxProducts:     in.MaxProducts,
			DepthPerProduct: in.DepthPerProduct,
		}
	} else {
		req.Direct = &DirectURLRequest{
			URL:          strings.TrimSpace(in.URL),
			MaxPages:     in.MaxPages,
			FallbackTerm: strings.TrimSpace(in.SearchTerm),
		}
	}

	if err := req.Validate(); err != nil {
		return ScrapeRequest{}, err
	}
	return req, nil
}

// ProductResult is one scraped product's summary as reported by a scraper run
type ProductResult struct {
	Success        bool     `json:"success"`
	CollectionName string   `json:"collection_name"`
	ProductName    string   `json:"product_name"`
	Platform       string   `json:"platform"`
	TotalReviews   int      `json:"total_reviews"`
	Price          *float64 `json:"price,omitempty"`
	ProductURL     string   `json:"product_url,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// ScrapeResult is the payload a scraper executable prints on stdout
type ScrapeResult struct {
	Success           bool            `json:"success"`
	Platform          string          `json:"platform"`
	SearchTerm        string          `json:"search_term,omitempty"`
	TotalReviews      int             `json:"total_reviews"`
	ProductsProcessed int             `json:"products_processed"`
	Results           []ProductResult `json:"results"`
	Error             string          `json:"error,omitempty"`
}

// ScrapeResponse is returned to callers of the orchestrator
type ScrapeResponse struct {
	Success            bool            `json:"success"`
	Platform           string          `json:"platform,omitempty"`
	SearchTerm         string          `json:"search_term,omitempty"`
	TotalReviews       int             `json:"total_reviews"`
	ProductsProcessed  int             `json:"products_processed"`
	Results            []ProductResult `json:"results,omitempty"`
	SavedCollections   []string        `json:"saved_collections,omitempty"`
	PersistenceWarning string          `json:"persistence_warning,omitempty"`
	Error              string          `json:"error,omitempty"`
	Timeout            bool            `json:"timeout,omitempty"`
	RawOutput          string          `json:"raw_output,omitempty"`
	Stderr             string          `json:"stderr,omitempty"`
}
