package market

import (
	"math"
	"time"

	"compara/server/internal/models"
)

// Proximity step thresholds in kilometres and their scores.
var proximitySteps = []struct {
	maxKm float64
	score float64
}{
	{1, 1.0},
	{3, 0.8},
	{5, 0.6},
	{10, 0.4},
}

const proximityBeyond = 0.2
const proximityNoCoords = 0.5

// AssessQuality scores how trustworthy the comparable set is along recency,
// proximity, similarity and completeness, per candidate and in aggregate.
// Cross-candidate averages are weighted by each candidate's own quality so
// strong comparables dominate. Returns nil for an empty set.
func (a *Aggregator) AssessQuality(scored []models.ScoredCandidate, maturity *models.AreaMaturity, now time.Time) *models.QualityAssessment {
	if len(scored) == 0 {
		return nil
	}

	q := a.cfg.Quality
	candidates := make([]models.CandidateQuality, len(scored))
	for i, sc := range scored {
		cq := models.CandidateQuality{
			PropertyID:   sc.Property.ID,
			Recency:      a.recencyScore(sc.Property.UpdatedAt, now),
			Proximity:    proximityScore(sc),
			Similarity:   sc.Overall / 100,
			Completeness: completenessScore(&sc.Property),
		}
		cq.Overall = q.WeightRecency*cq.Recency +
			q.WeightProximity*cq.Proximity +
			q.WeightSimilarity*cq.Similarity +
			q.WeightCompleteness*cq.Completeness
		candidates[i] = cq
	}

	assessment := &models.QualityAssessment{Candidates: candidates}
	var wsum float64
	for _, cq := range candidates {
		w := math.Max(cq.Overall, q.WeightFloor)
		wsum += w
		assessment.Recency += cq.Recency * w
		assessment.Proximity += cq.Proximity * w
		assessment.Similarity += cq.Similarity * w
		assessment.Completeness += cq.Completeness * w
		assessment.Score += cq.Overall * w

		switch {
		case cq.Overall >= 0.8:
			assessment.Distribution.Excellent++
		case cq.Overall >= 0.6:
			assessment.Distribution.Good++
		case cq.Overall >= 0.4:
			assessment.Distribution.Fair++
		default:
			assessment.Distribution.Poor++
		}
	}

	assessment.Recency /= wsum
	assessment.Proximity /= wsum
	assessment.Similarity /= wsum
	assessment.Completeness /= wsum
	assessment.Score /= wsum

	assessment.Score = math.Min(1, assessment.Score+a.maturityBonus(maturity))
	return assessment
}

// recencyScore gives full credit inside the fresh window and decays
// exponentially past it.
func (a *Aggregator) recencyScore(updatedAt time.Time, now time.Time) float64 {
	if updatedAt.IsZero() {
		return 0
	}
	days := now.Sub(updatedAt).Hours() / 24
	fresh := float64(a.cfg.Quality.FreshDays)
	if days <= fresh {
		return 1
	}
	return math.Exp(-(days - fresh) / a.cfg.Quality.RecencyDecayDays)
}

func proximityScore(sc models.ScoredCandidate) float64 {
	if !sc.Property.HasCoordinates() {
		return proximityNoCoords
	}
	for _, step := range proximitySteps {
		if sc.DistanceKm <= step.maxKm {
			return step.score
		}
	}
	return proximityBeyond
}

// completenessScore is the fraction of populated key fields plus a small
// bonus when the listing carries media.
func completenessScore(p *models.PropertyRecord) float64 {
	fields := []bool{
		p.SalePrice > 0 || p.MonthlyPrice > 0 || p.WeeklyPrice > 0,
		p.BuildArea > 0,
		p.Bedrooms > 0,
		p.Bathrooms > 0,
		p.Condition > 0,
		p.HasCoordinates(),
		p.AreaName() != "",
		p.YearBuilt != nil,
	}

	populated := 0
	for _, ok := range fields {
		if ok {
			populated++
		}
	}

	score := float64(populated) / float64(len(fields))
	if p.PhotoCount > 0 {
		score += 0.1
	}
	return math.Min(1, score)
}

// maturityBonus rewards areas with deep comparable and analysis history.
// Full credit at 1000 comparables seen and 100 analyses run.
func (a *Aggregator) maturityBonus(maturity *models.AreaMaturity) float64 {
	if maturity == nil {
		return 0
	}
	half := a.cfg.Quality.MaxMaturityBonus / 2
	comparablePart := math.Min(half, float64(maturity.ComparablesSeen)/1000*half)
	analysisPart := math.Min(half, float64(maturity.AnalysesRun)/100*half)
	return comparablePart + analysisPart
}
