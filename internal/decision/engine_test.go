package decision

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"compara/server/config"
	"compara/server/internal/models"
)

// MockMaturity is a mock implementation of the MaturityReader interface
type MockMaturity struct {
	mock.Mock
}

func (m *MockMaturity) Get(area string) (*models.AreaMaturity, error) {
	args := m.Called(area)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AreaMaturity), args.Error(1)
}

func thresholdRules() map[string]config.SectionRule {
	return map[string]config.SectionRule{
		"price_assessment":  {MinComparables: 20, MinAnalyses: 5, MinQuality: 0.7},
		"executive_summary": {AlwaysAI: true},
	}
}

func TestDecide_AllThresholdsMet(t *testing.T) {
	maturity := &MockMaturity{}
	maturity.On("Get", "la quinta").Return(&models.AreaMaturity{Area: "la quinta", AnalysesRun: 6}, nil)

	e := NewEngine(thresholdRules(), maturity, time.Hour, nil)
	decisions := e.Decide("La Quinta", 25, &models.QualityAssessment{Score: 0.75})

	d := decisions["price_assessment"]
	assert.Equal(t, models.ApproachSystem, d.Approach)
	assert.Equal(t, models.ConfidenceHigh, d.Confidence)
}

func TestDecide_ComparableShortfall(t *testing.T) {
	maturity := &MockMaturity{}
	maturity.On("Get", "la quinta").Return(&models.AreaMaturity{Area: "la quinta", AnalysesRun: 6}, nil)

	e := NewEngine(thresholdRules(), maturity, time.Hour, nil)
	decisions := e.Decide("La Quinta", 5, &models.QualityAssessment{Score: 0.75})

	d := decisions["price_assessment"]
	assert.Equal(t, models.ApproachAI, d.Approach)
	assert.Contains(t, d.Reason, "comparable count 5 below required 20")
	assert.Equal(t, models.ConfidenceLow, d.Confidence)
}

func TestDecide_ReasonEnumeratesEveryFailure(t *testing.T) {
	maturity := &MockMaturity{}
	maturity.On("Get", "la quinta").Return(&models.AreaMaturity{Area: "la quinta", AnalysesRun: 1}, nil)

	e := NewEngine(thresholdRules(), maturity, time.Hour, nil)
	decisions := e.Decide("La Quinta", 5, &models.QualityAssessment{Score: 0.4})

	d := decisions["price_assessment"]
	assert.Contains(t, d.Reason, "comparable count")
	assert.Contains(t, d.Reason, "historical analysis count")
	assert.Contains(t, d.Reason, "quality score")
}

func TestDecide_AlwaysAISection(t *testing.T) {
	maturity := &MockMaturity{}
	maturity.On("Get", mock.Anything).Return(&models.AreaMaturity{AnalysesRun: 100}, nil)

	e := NewEngine(thresholdRules(), maturity, time.Hour, nil)
	decisions := e.Decide("La Quinta", 50, &models.QualityAssessment{Score: 0.95})

	d := decisions["executive_summary"]
	assert.Equal(t, models.ApproachAI, d.Approach)
	assert.Equal(t, "narrative-only section", d.Reason)
	assert.Equal(t, models.ConfidenceHigh, d.Confidence)
}

func TestDecide_FallbackOnMaturityError(t *testing.T) {
	maturity := &MockMaturity{}
	maturity.On("Get", mock.Anything).Return(nil, errors.New("db closed"))

	e := NewEngine(thresholdRules(), maturity, time.Hour, nil)
	decisions := e.Decide("La Quinta", 25, &models.QualityAssessment{Score: 0.9})

	require.Len(t, decisions, len(thresholdRules()))
	for _, d := range decisions {
		assert.Equal(t, models.ApproachAI, d.Approach)
		assert.Equal(t, "system error during decision evaluation", d.Reason)
		assert.Equal(t, models.ConfidenceLow, d.Confidence)
	}
}

func TestDecide_CachesPerArea(t *testing.T) {
	maturity := &MockMaturity{}
	maturity.On("Get", "la quinta").Return(&models.AreaMaturity{AnalysesRun: 6}, nil).Once()

	e := NewEngine(thresholdRules(), maturity, time.Hour, nil)
	first := e.Decide("La Quinta", 25, &models.QualityAssessment{Score: 0.75})
	second := e.Decide("la quinta", 25, &models.QualityAssessment{Score: 0.75})

	assert.Equal(t, first["price_assessment"], second["price_assessment"])
	maturity.AssertNumberOfCalls(t, "Get", 1)
}

func TestInvalidate_DropsCache(t *testing.T) {
	maturity := &MockMaturity{}
	maturity.On("Get", "la quinta").Return(&models.AreaMaturity{AnalysesRun: 6}, nil)

	e := NewEngine(thresholdRules(), maturity, time.Hour, nil)
	e.Decide("La Quinta", 25, &models.QualityAssessment{Score: 0.75})
	e.Invalidate("La Quinta")
	e.Decide("La Quinta", 25, &models.QualityAssessment{Score: 0.75})

	maturity.AssertNumberOfCalls(t, "Get", 2)
}

func TestDecide_NilQuality(t *testing.T) {
	maturity := &MockMaturity{}
	maturity.On("Get", mock.Anything).Return(&models.AreaMaturity{AnalysesRun: 6}, nil)

	e := NewEngine(thresholdRules(), maturity, time.Hour, nil)
	decisions := e.Decide("La Quinta", 25, nil)

	d := decisions["price_assessment"]
	assert.Equal(t, models.ApproachAI, d.Approach)
	assert.Contains(t, d.Reason, "quality score 0.00")
}
