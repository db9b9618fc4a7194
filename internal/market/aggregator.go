package market

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"compara/server/config"
	"compara/server/internal/models"
)

const histogramBuckets = 8

// Volatility classes by coefficient of variation.
const (
	VolatilityLow      = "low"
	VolatilityModerate = "moderate"
	VolatilityHigh     = "high"
)

// Aggregator computes market statistics and the quality assessment over the
// full scored candidate set. Both computations degrade to nil on an empty or
// malformed set; callers must check before use.
type Aggregator struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func NewAggregator(cfg *config.Config, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{cfg: cfg, logger: logger}
}

// MarketContext builds the full market picture for the subject. The quality
// assessment must already be computed because every cross-candidate average
// is weighted by candidate quality.
func (a *Aggregator) MarketContext(c *models.SearchCriteria, scored []models.ScoredCandidate, quality *models.QualityAssessment) *models.MarketContext {
	stats := a.Stats(c, scored, quality)
	if stats == nil {
		return &models.MarketContext{
			Position: "unknown",
			Insights: []string{"No comparable market data available for this area."},
		}
	}

	position := a.position(c.Price, stats.MedianPrice)
	volatility := classifyVolatility(stats.CoefficientVar)

	return &models.MarketContext{
		Stats:             stats,
		Position:          position,
		Insights:          a.insights(c, stats, position, volatility),
		PriceDistribution: a.Distribution(c.Price, scored, c.ListingType),
		Volatility:        volatility,
	}
}

// Stats computes the aggregate price statistics. Candidate contributions to
// every average are weighted by that candidate's own quality (floored) so
// higher-quality comparables dominate.
func (a *Aggregator) Stats(c *models.SearchCriteria, scored []models.ScoredCandidate, quality *models.QualityAssessment) *models.MarketStats {
	prices := make([]float64, 0, len(scored))
	weights := make([]float64, 0, len(scored))
	perSqm := make([]float64, 0, len(scored))
	perSqmWeights := make([]float64, 0, len(scored))

	for i, sc := range scored {
		price := sc.Property.PriceFor(c.ListingType)
		if price <= 0 {
			continue
		}
		w := a.candidateWeight(quality, i, sc.Property.ID)
		prices = append(prices, price)
		weights = append(weights, w)
		if sc.Property.BuildArea > 0 {
			perSqm = append(perSqm, price/sc.Property.BuildArea)
			perSqmWeights = append(perSqmWeights, w)
		}
	}

	if len(prices) == 0 {
		a.logger.Debug("No priced candidates, skipping market statistics")
		return nil
	}

	mean := weightedMean(prices, weights)
	std := stdDev(prices, mean)
	cov := 0.0
	if mean > 0 {
		cov = std / mean
	}

	stats := &models.MarketStats{
		SampleSize:     len(prices),
		MeanPrice:      mean,
		MedianPrice:    median(prices),
		MinPrice:       minOf(prices),
		MaxPrice:       maxOf(prices),
		StdDev:         std,
		CoefficientVar: cov,
	}
	if len(perSqm) > 0 {
		stats.MeanPerSqm = weightedMean(perSqm, perSqmWeights)
		stats.MedianPerSqm = median(perSqm)
	}
	return stats
}

// Distribution builds the 8-bucket equal-width price histogram and flags the
// bucket holding the subject's price.
func (a *Aggregator) Distribution(subjectPrice float64, scored []models.ScoredCandidate, t models.ListingType) []models.PriceBucket {
	var prices []float64
	for _, sc := range scored {
		if p := sc.Property.PriceFor(t); p > 0 {
			prices = append(prices, p)
		}
	}
	if len(prices) == 0 {
		return nil
	}

	lo, hi := minOf(prices), maxOf(prices)
	if hi == lo {
		hi = lo + 1
	}
	width := (hi - lo) / histogramBuckets

	buckets := make([]models.PriceBucket, histogramBuckets)
	for i := range buckets {
		buckets[i].Low = lo + float64(i)*width
		buckets[i].High = lo + float64(i+1)*width
	}
	for _, p := range prices {
		buckets[bucketIndex(p, lo, width)].Count++
	}
	if subjectPrice > 0 {
		buckets[bucketIndex(subjectPrice, lo, width)].Subject = true
	}
	return buckets
}

func bucketIndex(price, lo, width float64) int {
	i := int((price - lo) / width)
	if i < 0 {
		i = 0
	}
	if i >= histogramBuckets {
		i = histogramBuckets - 1
	}
	return i
}

// candidateWeight looks up the candidate's overall quality, floored so no
// comparable is silenced entirely.
func (a *Aggregator) candidateWeight(quality *models.QualityAssessment, idx int, propertyID int64) float64 {
	floor := a.cfg.Quality.WeightFloor
	if quality == nil {
		return 1
	}
	if idx < len(quality.Candidates) && quality.Candidates[idx].PropertyID == propertyID {
		return math.Max(quality.Candidates[idx].Overall, floor)
	}
	for _, cq := range quality.Candidates {
		if cq.PropertyID == propertyID {
			return math.Max(cq.Overall, floor)
		}
	}
	return floor
}

func (a *Aggregator) position(subjectPrice, medianPrice float64) string {
	if subjectPrice <= 0 || medianPrice <= 0 {
		return "unknown"
	}
	diff := (subjectPrice - medianPrice) / medianPrice * 100
	switch {
	case diff > 5:
		return fmt.Sprintf("%.0f%% above the area median", diff)
	case diff < -5:
		return fmt.Sprintf("%.0f%% below the area median", -diff)
	default:
		return "in line with the area median"
	}
}

func (a *Aggregator) insights(c *models.SearchCriteria, stats *models.MarketStats, position, volatility string) []string {
	insights := []string{
		fmt.Sprintf("Market position: the subject is priced %s across %d comparable listings.",
			position, stats.SampleSize),
	}

	switch volatility {
	case VolatilityLow:
		insights = append(insights, "Prices in this comparable set are tightly clustered, indicating a stable micro-market.")
	case VolatilityModerate:
		insights = append(insights, "Comparable prices show moderate spread; pricing should weight the closest matches.")
	default:
		insights = append(insights, "Comparable prices are highly dispersed; the median is more reliable than the mean here.")
	}

	if stats.MedianPerSqm > 0 && c.BuildArea > 0 && c.Price > 0 {
		subjectPerSqm := c.Price / c.BuildArea
		insights = append(insights, fmt.Sprintf("Subject is at %.0f/m² against an area median of %.0f/m².",
			subjectPerSqm, stats.MedianPerSqm))
	}
	return insights
}

func classifyVolatility(cov float64) string {
	switch {
	case cov < 0.15:
		return VolatilityLow
	case cov < 0.30:
		return VolatilityModerate
	default:
		return VolatilityHigh
	}
}

func weightedMean(values, weights []float64) float64 {
	var sum, wsum float64
	for i, v := range values {
		sum += v * weights[i]
		wsum += weights[i]
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
