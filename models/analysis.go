package models

// PlatformInfo lists the distinct platforms and products of an analyzed collection
type PlatformInfo struct {
	Platforms []string `json:"platforms" bson:"platforms"`
	Products  []string `json:"products" bson:"products"`
}

// SellerStats aggregates the reviews attributed to one seller
type SellerStats struct {
	Name          string  `json:"name" bson:"name"`
	Platform      string  `json:"platform" bson:"platform"`
	TotalComments int     `json:"totalComments" bson:"total_comments"`
	AverageRating float64 `json:"averageRating" bson:"average_rating"`
	AveragePrice  float64 `json:"averagePrice" bson:"average_price"`
}

// SellerBenchmark is the outcome of comparing the sellers of one collection
type SellerBenchmark struct {
	HighestRating SellerStats   `json:"highestRatingSeller" bson:"highest_rating_seller"`
	Cheapest      SellerStats   `json:"cheapestSeller" bson:"cheapest_seller"`
	Sellers       []SellerStats `json:"sellers" bson:"sellers"`
}

// AnalysisRecord is one LLM analysis event kept in the history namespace
type AnalysisRecord struct {
	ID               string            `json:"id" bson:"_id"`
	CollectionName   string            `json:"collectionName" bson:"collection_name"`
	PlatformInfo     PlatformInfo      `json:"platformInfo" bson:"platform_info"`
	ReviewCount      int               `json:"reviewCount" bson:"review_count"`
	AnalyzedComments int               `json:"analyzedComments" bson:"analyzed_comments"`
	Result           string            `json:"result" bson:"result"`
	Timestamp        string            `json:"timestamp" bson:"timestamp"`
	AnalysisType     string            `json:"analysisType" bson:"analysis_type"`
	AnalysisVersion  string            `json:"analysisVersion,omitempty" bson:"analysis_version,omitempty"`
	FilterInfo       map[string]string `json:"filterInfo,omitempty" bson:"filter_info,omitempty"`
	Benchmark        *SellerBenchmark  `json:"benchmark,omitempty" bson:"benchmark,omitempty"`
	// ComparedIDs holds the two analyses a product benchmark was built from
	ComparedIDs []string `json:"comparedIds,omitempty" bson:"compared_ids,omitempty"`
}

// Analysis kinds recorded in the history
const (
	AnalysisTypeGeneral          = "general_analysis"
	AnalysisTypeFiltered         = "filtered_analysis"
	AnalysisTypeSellerBenchmark  = "seller_benchmark"
	AnalysisTypeProductBenchmark = "product_benchmark"
)
