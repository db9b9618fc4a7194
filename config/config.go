package config

import (
	"fmt"
	"math"

	"github.com/caarlos0/env/v6"
)

// Config carries every tunable of the analysis pipeline. The scoring and
// quality constants are empirically tuned; they are exposed here so deployments
// can override them without code changes.
type Config struct {
	Server struct {
		Port   string `env:"SERVER_PORT" envDefault:"5260"`
		DBPath string `env:"DB_PATH" envDefault:"database/compara.db"`

		// Optional YAML file overriding the built-in section decision rules
		SectionRulesPath string `env:"SECTION_RULES_PATH" envDefault:""`

		// Optional JSON file extending the built-in area exclusion map
		ExclusionsPath string `env:"AREA_EXCLUSIONS_PATH" envDefault:""`
	}

	Search struct {
		// Fixed retrieval radius around the subject
		RadiusKm float64 `env:"SEARCH_RADIUS_KM" envDefault:"10"`

		// Number of comparables returned for display
		DisplayCount int `env:"DISPLAY_COUNT" envDefault:"12"`

		// Sale price above which the widened asymmetric band applies
		LuxuryThreshold float64 `env:"LUXURY_THRESHOLD" envDefault:"1500000"`

		// Price band half-widths per listing type
		SaleBandRatio      float64 `env:"SALE_BAND_RATIO" envDefault:"0.50"`
		LongTermBandRatio  float64 `env:"LONG_TERM_BAND_RATIO" envDefault:"0.40"`
		ShortTermBandRatio float64 `env:"SHORT_TERM_BAND_RATIO" envDefault:"0.60"`

		// Asymmetric band for luxury sales
		LuxuryBandFloor   float64 `env:"LUXURY_BAND_FLOOR" envDefault:"0.20"`
		LuxuryBandCeiling float64 `env:"LUXURY_BAND_CEILING" envDefault:"1.80"`

		// Price magnitude cutoffs for guessing the listing type when neither
		// flags nor type-specific prices identify it
		SalePriceFloor     float64 `env:"SALE_PRICE_FLOOR" envDefault:"40000"`
		LongTermPriceFloor float64 `env:"LONG_TERM_PRICE_FLOOR" envDefault:"1200"`
	}

	Scoring struct {
		WeightDistance  float64 `env:"WEIGHT_DISTANCE" envDefault:"0.40"`
		WeightSize      float64 `env:"WEIGHT_SIZE" envDefault:"0.20"`
		WeightCondition float64 `env:"WEIGHT_CONDITION" envDefault:"0.20"`
		WeightPrice     float64 `env:"WEIGHT_PRICE" envDefault:"0.10"`
		WeightBedrooms  float64 `env:"WEIGHT_BEDROOMS" envDefault:"0.07"`
		WeightBathrooms float64 `env:"WEIGHT_BATHROOMS" envDefault:"0.03"`

		// Linear decay ceiling for the distance factor
		MaxDistanceKm float64 `env:"MAX_DISTANCE_KM" envDefault:"10"`

		// Radius inside which a fixer-upper reveals pre-renovation baseline
		// value and is treated as a strong comparable
		FixerUpperRadiusKm float64 `env:"FIXER_UPPER_RADIUS_KM" envDefault:"2"`

		// Largest price-difference allowance granted for a full condition gap
		ConditionPriceAllowance float64 `env:"CONDITION_PRICE_ALLOWANCE" envDefault:"0.30"`

		// Ceiling on the Jaccard feature-overlap bonus, in percentage points
		MaxFeatureBonus float64 `env:"MAX_FEATURE_BONUS" envDefault:"5"`
	}

	Quality struct {
		WeightRecency      float64 `env:"QUALITY_WEIGHT_RECENCY" envDefault:"0.25"`
		WeightProximity    float64 `env:"QUALITY_WEIGHT_PROXIMITY" envDefault:"0.30"`
		WeightSimilarity   float64 `env:"QUALITY_WEIGHT_SIMILARITY" envDefault:"0.35"`
		WeightCompleteness float64 `env:"QUALITY_WEIGHT_COMPLETENESS" envDefault:"0.10"`

		// Listings updated within this window score full recency
		FreshDays int `env:"QUALITY_FRESH_DAYS" envDefault:"30"`

		// Exponential decay constant applied past the fresh window, in days
		RecencyDecayDays float64 `env:"QUALITY_RECENCY_DECAY_DAYS" envDefault:"90"`

		// Minimum weight any candidate contributes to cross-candidate averages
		WeightFloor float64 `env:"QUALITY_WEIGHT_FLOOR" envDefault:"0.1"`

		// Ceiling on the area-maturity bonus added to the aggregate score
		MaxMaturityBonus float64 `env:"QUALITY_MAX_MATURITY_BONUS" envDefault:"0.20"`
	}

	Cache struct {
		IntermediateTTLMinutes int `env:"CACHE_INTERMEDIATE_TTL_MIN" envDefault:"30"`
		ResultTTLHours         int `env:"CACHE_RESULT_TTL_HOURS" envDefault:"24"`
		DecisionTTLMinutes     int `env:"CACHE_DECISION_TTL_MIN" envDefault:"60"`
	}

	Maturity struct {
		// Cron expression for the periodic counter reset; empty disables it
		ResetSchedule string `env:"MATURITY_RESET_SCHEDULE" envDefault:"0 4 1 */3 *"`

		// Cron expression for sweeping expired cache entries
		SweepSchedule string `env:"CACHE_SWEEP_SCHEDULE" envDefault:"*/15 * * * *"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects weight sets that do not sum to 1.0. Both the similarity
// and the quality weights are checked at startup so a bad override fails
// fast instead of skewing every score.
func (c *Config) Validate() error {
	scoring := c.Scoring.WeightDistance + c.Scoring.WeightSize + c.Scoring.WeightCondition +
		c.Scoring.WeightPrice + c.Scoring.WeightBedrooms + c.Scoring.WeightBathrooms
	if math.Abs(scoring-1.0) > 1e-9 {
		return fmt.Errorf("similarity weights must sum to 1.0, got %.4f", scoring)
	}

	quality := c.Quality.WeightRecency + c.Quality.WeightProximity +
		c.Quality.WeightSimilarity + c.Quality.WeightCompleteness
	if math.Abs(quality-1.0) > 1e-9 {
		return fmt.Errorf("quality weights must sum to 1.0, got %.4f", quality)
	}

	if c.Search.DisplayCount <= 0 {
		return fmt.Errorf("display count must be positive, got %d", c.Search.DisplayCount)
	}
	if c.Search.LuxuryBandCeiling <= c.Search.LuxuryBandFloor {
		return fmt.Errorf("luxury band ceiling must exceed its floor")
	}
	return nil
}
