package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"compara/server/config"
	"compara/server/internal/criteria"
	"compara/server/internal/decision"
	"compara/server/internal/models"
)

// MockRetriever is a mock implementation of the Retriever interface
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Query(c *models.SearchCriteria) ([]models.Candidate, error) {
	args := m.Called(c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Candidate), args.Error(1)
}

func floatPtr(v float64) *float64 { return &v }

func testAnalyzer(t *testing.T, retriever Retriever) *Analyzer {
	t.Helper()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	engine := decision.NewEngine(nil, nil, time.Hour, nil)
	a, err := NewAnalyzer(cfg, retriever, nil, engine, nil)
	require.NoError(t, err)
	return a
}

func villaSubject() *models.PropertyRecord {
	return &models.PropertyRecord{
		ID: 1, Reference: "SUBJ-1", ForSale: true, SalePrice: 900000,
		PropertyType: "villa",
		Latitude:     floatPtr(36.5100), Longitude: floatPtr(-4.8800),
		Urbanization: "La Quinta", Suburb: "Benahavis", City: "Marbella",
		BuildArea: 250, Bedrooms: 4, Bathrooms: 3, Condition: 4,
		Features: []string{"pool", "garage"},
	}
}

// villaPool builds n candidates inside the search radius with prices spread
// across the given band.
func villaPool(n int, minPrice, maxPrice float64) []models.Candidate {
	candidates := make([]models.Candidate, n)
	step := (maxPrice - minPrice) / float64(n-1)
	for i := range candidates {
		candidates[i] = models.Candidate{
			Property: models.PropertyRecord{
				ID: int64(i + 100), ForSale: true,
				SalePrice:    minPrice + float64(i)*step,
				PropertyType: "villa",
				Latitude:     floatPtr(36.5100 + float64(i)*0.001),
				Longitude:    floatPtr(-4.8800),
				Urbanization: "La Quinta", City: "Marbella",
				BuildArea: 200 + float64(i)*10, Bedrooms: 4, Bathrooms: 3,
				Condition: 4, PhotoCount: 8,
				UpdatedAt: time.Now().AddDate(0, 0, -i),
			},
			DistanceKm: float64(i) * 0.5,
		}
	}
	return candidates
}

func TestAnalyze_EndToEnd(t *testing.T) {
	retriever := &MockRetriever{}
	retriever.On("Query", mock.Anything).Return(villaPool(15, 700000, 1100000), nil)

	a := testAnalyzer(t, retriever)
	result, err := a.Analyze(context.Background(), "sess-e2e", villaSubject(), nil)

	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Len(t, result.Comparables, 12)
	assert.Len(t, result.AllComparables, 15)
	assert.GreaterOrEqual(t, len(result.AllComparables), len(result.Comparables))

	require.NotNil(t, result.MarketContext)
	require.NotNil(t, result.MarketContext.Stats)
	median := result.MarketContext.Stats.MedianPrice
	assert.GreaterOrEqual(t, median, 700000.0)
	assert.LessOrEqual(t, median, 1100000.0)

	foundPosition := false
	for _, insight := range result.MarketContext.Insights {
		assert.NotEmpty(t, insight)
		foundPosition = foundPosition || containsFold(insight, "market position")
	}
	assert.True(t, foundPosition, "expected an insight referencing market position")

	require.NotNil(t, result.Quality)
	assert.NotEmpty(t, result.Summary)
	assert.NotEmpty(t, result.SectionDecisions)
	assert.NotEmpty(t, result.RunID)

	// Display subset is sorted descending by overall score.
	for i := 1; i < len(result.Comparables); i++ {
		assert.GreaterOrEqual(t, result.Comparables[i-1].Overall, result.Comparables[i].Overall)
	}
}

func TestAnalyze_ConcurrentSameSessionRunsOnce(t *testing.T) {
	retriever := &MockRetriever{}
	retriever.On("Query", mock.Anything).
		Run(func(args mock.Arguments) { time.Sleep(50 * time.Millisecond) }).
		Return(villaPool(15, 700000, 1100000), nil)

	a := testAnalyzer(t, retriever)
	subject := villaSubject()

	var wg sync.WaitGroup
	results := make([]*models.AnalysisResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := a.Analyze(context.Background(), "sess-conc", subject, nil)
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	retriever.AssertNumberOfCalls(t, "Query", 1)
	require.NotNil(t, results[0])
	assert.Same(t, results[0], results[1], "waiters must share the in-flight result")
}

func TestAnalyze_ResultCacheSkipsRetriever(t *testing.T) {
	retriever := &MockRetriever{}
	retriever.On("Query", mock.Anything).Return(villaPool(15, 700000, 1100000), nil)

	a := testAnalyzer(t, retriever)
	subject := villaSubject()

	first, err := a.Analyze(context.Background(), "sess-cache", subject, nil)
	require.NoError(t, err)

	second, err := a.Analyze(context.Background(), "sess-cache", subject, nil)
	require.NoError(t, err)

	retriever.AssertNumberOfCalls(t, "Query", 1)
	assert.Same(t, first, second)
}

func TestAnalyze_AbandonedOwnerStillServesWaiters(t *testing.T) {
	retriever := &MockRetriever{}
	retriever.On("Query", mock.Anything).
		Run(func(args mock.Arguments) { time.Sleep(80 * time.Millisecond) }).
		Return(villaPool(15, 700000, 1100000), nil)

	a := testAnalyzer(t, retriever)
	subject := villaSubject()

	ownerCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := a.Analyze(ownerCtx, "sess-abandon", subject, nil)
		assert.ErrorIs(t, err, context.Canceled)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	result, err := a.Analyze(context.Background(), "sess-abandon", subject, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Comparables, 12)

	wg.Wait()
	retriever.AssertNumberOfCalls(t, "Query", 1)
}

func TestAnalyze_RetrievalFailureDegrades(t *testing.T) {
	retriever := &MockRetriever{}
	retriever.On("Query", mock.Anything).Return(nil, errors.New("index offline"))

	a := testAnalyzer(t, retriever)
	result, err := a.Analyze(context.Background(), "sess-fail", villaSubject(), nil)

	require.NoError(t, err, "retrieval failures must degrade, not raise")
	require.NotNil(t, result)
	assert.Empty(t, result.Comparables)
	assert.NotEmpty(t, result.Summary)
	assert.NotEmpty(t, result.SectionDecisions)
	for _, d := range result.SectionDecisions {
		assert.Equal(t, models.ApproachAI, d.Approach)
	}
}

func TestAnalyze_RetrievalFailureNotCached(t *testing.T) {
	retriever := &MockRetriever{}
	retriever.On("Query", mock.Anything).Return(nil, errors.New("index offline")).Once()
	retriever.On("Query", mock.Anything).Return(villaPool(15, 700000, 1100000), nil)

	a := testAnalyzer(t, retriever)
	subject := villaSubject()

	degraded, err := a.Analyze(context.Background(), "sess-retry", subject, nil)
	require.NoError(t, err)
	assert.Empty(t, degraded.Comparables)

	recovered, err := a.Analyze(context.Background(), "sess-retry", subject, nil)
	require.NoError(t, err)
	assert.Len(t, recovered.Comparables, 12)
	retriever.AssertNumberOfCalls(t, "Query", 2)
}

func TestAnalyze_InvalidSubject(t *testing.T) {
	retriever := &MockRetriever{}
	a := testAnalyzer(t, retriever)

	_, err := a.Analyze(context.Background(), "sess-invalid", &models.PropertyRecord{}, nil)
	var validationErr *criteria.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	retriever.AssertNotCalled(t, "Query")
}

func TestAnalyze_ExcludedAreaFiltered(t *testing.T) {
	pool := villaPool(5, 700000, 1100000)
	pool[0].Property.Urbanization = "La Quinta Hills"
	pool[0].DistanceKm = -1
	pool[0].Property.Latitude = nil
	pool[0].Property.Longitude = nil

	retriever := &MockRetriever{}
	retriever.On("Query", mock.Anything).Return(pool, nil)

	a := testAnalyzer(t, retriever)
	result, err := a.Analyze(context.Background(), "sess-excl", villaSubject(), nil)

	require.NoError(t, err)
	for _, sc := range result.AllComparables {
		assert.NotEqual(t, "La Quinta Hills", sc.Property.Urbanization)
	}
	assert.Len(t, result.AllComparables, 4)
}

func TestSelectDisplay(t *testing.T) {
	scored := make([]models.ScoredCandidate, 5)
	for i := range scored {
		scored[i] = models.ScoredCandidate{
			Property: models.PropertyRecord{ID: int64(i)},
			Overall:  float64(i * 20),
		}
	}

	display, all := selectDisplay(scored, 3)
	assert.Len(t, display, 3)
	assert.Len(t, all, 5)
	assert.Equal(t, int64(4), display[0].Property.ID)

	display, all = selectDisplay(scored[:2], 3)
	assert.Len(t, display, 2)
	assert.Len(t, all, 2)
}

func TestSubjectKey(t *testing.T) {
	a := villaSubject()
	b := villaSubject()
	assert.Equal(t, SubjectKey("s1", a), SubjectKey("s1", b))
	assert.NotEqual(t, SubjectKey("s1", a), SubjectKey("s2", a))

	b.SalePrice = 950000
	assert.NotEqual(t, SubjectKey("s1", a), SubjectKey("s1", b))
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
