package models

import "time"

// FactorScores holds the per-dimension similarity scores for one candidate.
// Every score is a percentage in [0,100]; higher means more similar.
type FactorScores struct {
	Distance     float64 `json:"distance"`
	Size         float64 `json:"size"`
	Price        float64 `json:"price"`
	Bedrooms     float64 `json:"bedrooms"`
	Bathrooms    float64 `json:"bathrooms"`
	Condition    float64 `json:"condition"`
	FeatureBonus float64 `json:"feature_bonus"`
}

// ScoredCandidate is a transient ranking artifact scoped to one analysis run.
type ScoredCandidate struct {
	Property   PropertyRecord `json:"property"`
	DistanceKm float64        `json:"distance_km"`
	Factors    FactorScores   `json:"factors"`
	Overall    float64        `json:"overall"`
}

// PriceBucket is one bar of the equal-width price histogram.
type PriceBucket struct {
	Low     float64 `json:"low"`
	High    float64 `json:"high"`
	Count   int     `json:"count"`
	Subject bool    `json:"subject"`
}

type MarketStats struct {
	SampleSize     int     `json:"sample_size"`
	MeanPrice      float64 `json:"mean_price"`
	MedianPrice    float64 `json:"median_price"`
	MinPrice       float64 `json:"min_price"`
	MaxPrice       float64 `json:"max_price"`
	MeanPerSqm     float64 `json:"mean_per_sqm"`
	MedianPerSqm   float64 `json:"median_per_sqm"`
	StdDev         float64 `json:"std_dev"`
	CoefficientVar float64 `json:"coefficient_var"`
}

type MarketContext struct {
	Stats             *MarketStats  `json:"stats"`
	Position          string        `json:"position"`
	Insights          []string      `json:"insights"`
	PriceDistribution []PriceBucket `json:"price_distribution"`
	Volatility        string        `json:"volatility"`
}

// CandidateQuality scores one comparable along the four trust dimensions,
// each normalized to [0,1].
type CandidateQuality struct {
	PropertyID   int64   `json:"property_id"`
	Recency      float64 `json:"recency"`
	Proximity    float64 `json:"proximity"`
	Similarity   float64 `json:"similarity"`
	Completeness float64 `json:"completeness"`
	Overall      float64 `json:"overall"`
}

type QualityDistribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Fair      int `json:"fair"`
	Poor      int `json:"poor"`
}

type QualityAssessment struct {
	Score        float64             `json:"score"`
	Recency      float64             `json:"recency"`
	Proximity    float64             `json:"proximity"`
	Similarity   float64             `json:"similarity"`
	Completeness float64             `json:"completeness"`
	Distribution QualityDistribution `json:"distribution"`
	Candidates   []CandidateQuality  `json:"candidates,omitempty"`
}

// AreaMaturity tracks cumulative historical counters per normalized area
// name. Counters only grow, except for the explicit periodic reset.
type AreaMaturity struct {
	Area            string    `gorm:"primaryKey;column:area" json:"area"`
	ComparablesSeen int64     `gorm:"column:comparables_seen" json:"comparables_seen"`
	AnalysesRun     int64     `gorm:"column:analyses_run" json:"analyses_run"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (AreaMaturity) TableName() string { return "area_maturity" }

type Approach string

const (
	ApproachSystem Approach = "system"
	ApproachAI     Approach = "ai"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

type SectionDecision struct {
	Section    string     `json:"section"`
	Approach   Approach   `json:"approach"`
	Reason     string     `json:"reason"`
	Confidence Confidence `json:"confidence"`
}

// AnalysisResult is the full output of one analysis run. Comparables is the
// bounded display subset; AllComparables backs statistics and quality.
type AnalysisResult struct {
	RunID            string                     `json:"run_id"`
	SessionID        string                     `json:"session_id"`
	Comparables      []ScoredCandidate          `json:"comparables"`
	AllComparables   []ScoredCandidate          `json:"all_comparables"`
	Summary          string                     `json:"summary"`
	Criteria         *SearchCriteria            `json:"criteria"`
	MarketContext    *MarketContext             `json:"market_context"`
	Quality          *QualityAssessment         `json:"quality_assessment"`
	SectionDecisions map[string]SectionDecision `json:"section_decisions"`
	GeneratedAt      time.Time                  `json:"generated_at"`
}
