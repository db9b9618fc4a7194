package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compara/server/config"
	"compara/server/internal/models"
)

func testAggregator(t *testing.T) *Aggregator {
	t.Helper()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	return NewAggregator(cfg, nil)
}

func floatPtr(v float64) *float64 { return &v }

func scoredSet(prices []float64) []models.ScoredCandidate {
	scored := make([]models.ScoredCandidate, len(prices))
	for i, p := range prices {
		scored[i] = models.ScoredCandidate{
			Property: models.PropertyRecord{
				ID: int64(i + 1), SalePrice: p, BuildArea: 200,
				Bedrooms: 4, Bathrooms: 3, Condition: 4,
				Latitude: floatPtr(36.51), Longitude: floatPtr(-4.88),
				City: "Marbella", PhotoCount: 5,
				UpdatedAt: time.Now().AddDate(0, 0, -10),
			},
			DistanceKm: 2,
			Overall:    80,
		}
	}
	return scored
}

func saleCriteria(price float64) *models.SearchCriteria {
	return &models.SearchCriteria{
		ListingType: models.ListingSale, PriceField: "sale_price",
		PropertyType: "villa", City: "Marbella",
		BuildArea: 250, Price: price,
	}
}

func TestStats_EmptySetReturnsNil(t *testing.T) {
	a := testAggregator(t)
	assert.Nil(t, a.Stats(saleCriteria(900000), nil, nil))
	assert.Nil(t, a.Stats(saleCriteria(900000), scoredSet(nil), nil))
}

func TestStats_MedianAndBounds(t *testing.T) {
	a := testAggregator(t)
	prices := []float64{700000, 750000, 800000, 850000, 900000, 950000, 1000000, 1100000}
	stats := a.Stats(saleCriteria(900000), scoredSet(prices), nil)

	require.NotNil(t, stats)
	assert.Equal(t, 8, stats.SampleSize)
	assert.InDelta(t, 875000, stats.MedianPrice, 0.01)
	assert.Equal(t, 700000.0, stats.MinPrice)
	assert.Equal(t, 1100000.0, stats.MaxPrice)
	assert.Greater(t, stats.MeanPerSqm, 0.0)
}

func TestStats_QualityWeightedMean(t *testing.T) {
	a := testAggregator(t)
	scored := scoredSet([]float64{500000, 1000000})

	quality := &models.QualityAssessment{
		Candidates: []models.CandidateQuality{
			{PropertyID: 1, Overall: 0.05}, // floored to 0.1
			{PropertyID: 2, Overall: 0.9},
		},
	}
	stats := a.Stats(saleCriteria(900000), scored, quality)
	require.NotNil(t, stats)
	assert.Greater(t, stats.MeanPrice, 750000.0,
		"the high-quality comparable must dominate the mean")
}

func TestDistribution(t *testing.T) {
	a := testAggregator(t)
	prices := []float64{700000, 750000, 800000, 850000, 900000, 950000, 1000000, 1100000}
	buckets := a.Distribution(900000, scoredSet(prices), models.ListingSale)

	require.Len(t, buckets, 8)

	total := 0
	subjectFlagged := 0
	for _, b := range buckets {
		total += b.Count
		if b.Subject {
			subjectFlagged++
		}
		assert.Greater(t, b.High, b.Low)
	}
	assert.Equal(t, len(prices), total)
	assert.Equal(t, 1, subjectFlagged)
}

func TestClassifyVolatility(t *testing.T) {
	assert.Equal(t, VolatilityLow, classifyVolatility(0.10))
	assert.Equal(t, VolatilityModerate, classifyVolatility(0.20))
	assert.Equal(t, VolatilityHigh, classifyVolatility(0.35))
}

func TestMarketContext_Insights(t *testing.T) {
	a := testAggregator(t)
	prices := []float64{700000, 800000, 850000, 900000, 1000000, 1100000}
	scored := scoredSet(prices)
	quality := a.AssessQuality(scored, nil, time.Now())

	ctx := a.MarketContext(saleCriteria(900000), scored, quality)
	require.NotNil(t, ctx)
	require.NotNil(t, ctx.Stats)
	assert.NotEmpty(t, ctx.Position)
	assert.NotEmpty(t, ctx.Volatility)
	require.NotEmpty(t, ctx.Insights)
	assert.Contains(t, ctx.Insights[0], "Market position")
}

func TestMarketContext_EmptySetDegrades(t *testing.T) {
	a := testAggregator(t)
	ctx := a.MarketContext(saleCriteria(900000), nil, nil)
	require.NotNil(t, ctx)
	assert.Nil(t, ctx.Stats)
	assert.NotEmpty(t, ctx.Insights)
}
