package scoring

import (
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/sirupsen/logrus"

	"compara/server/config"
	"compara/server/internal/criteria"
	"compara/server/internal/models"
)

// Proxy distances substituted when neither side has coordinates, keyed by the
// deepest shared level of the area hierarchy.
const (
	proxySameUrbanizationKm = 1.0
	proxySameSuburbKm       = 5.0
	proxySameCityKm         = 15.0
	proxyNoMatchKm          = 50.0
)

// Condition ratings run 1 (fixer-upper) to 5 (immaculate).
const (
	conditionFixerUpper = 1
	maxConditionGap     = 4.0
)

// neutralPenalty is applied when a factor cannot be computed on either side.
const neutralPenalty = 0.5

// Weights is the immutable factor weighting of the similarity score.
type Weights struct {
	Distance  float64
	Size      float64
	Condition float64
	Price     float64
	Bedrooms  float64
	Bathrooms float64
}

// Sum returns the weight total, which must be 1.0 for a valid scorer.
func (w Weights) Sum() float64 {
	return w.Distance + w.Size + w.Condition + w.Price + w.Bedrooms + w.Bathrooms
}

// Scorer computes the six-factor weighted similarity between a subject and
// each candidate. It is a pure function over independent inputs and safe to
// run across candidates concurrently.
type Scorer struct {
	cfg     *config.Config
	weights Weights
	logger  *logrus.Logger
}

func NewScorer(cfg *config.Config, logger *logrus.Logger) (*Scorer, error) {
	if logger == nil {
		logger = logrus.New()
	}
	w := Weights{
		Distance:  cfg.Scoring.WeightDistance,
		Size:      cfg.Scoring.WeightSize,
		Condition: cfg.Scoring.WeightCondition,
		Price:     cfg.Scoring.WeightPrice,
		Bedrooms:  cfg.Scoring.WeightBedrooms,
		Bathrooms: cfg.Scoring.WeightBathrooms,
	}
	if math.Abs(w.Sum()-1.0) > 1e-9 {
		return nil, fmt.Errorf("similarity weights must sum to 1.0, got %.4f", w.Sum())
	}
	return &Scorer{cfg: cfg, weights: w, logger: logger}, nil
}

// Score computes the scored candidate for one retrieved record. The criteria
// carry the hint-augmented location and the authoritative price; structural
// attributes come from the subject record itself.
func (s *Scorer) Score(c *models.SearchCriteria, subject *models.PropertyRecord, cand models.Candidate) models.ScoredCandidate {
	p := cand.Property
	distKm := s.resolveDistance(c, cand)

	distancePenalty := clamp01(distKm / s.cfg.Scoring.MaxDistanceKm)
	sizePenalty := relativePenalty(c.BuildArea, p.BuildArea)
	conditionPenalty := s.conditionPenalty(subject, &p, distKm)
	pricePenalty := s.pricePenalty(c, subject, &p)
	bedroomPenalty := countPenalty(c.Bedrooms, p.Bedrooms)
	bathroomPenalty := countPenalty(subject.Bathrooms, p.Bathrooms)

	weighted := s.weights.Distance*distancePenalty +
		s.weights.Size*sizePenalty +
		s.weights.Condition*conditionPenalty +
		s.weights.Price*pricePenalty +
		s.weights.Bedrooms*bedroomPenalty +
		s.weights.Bathrooms*bathroomPenalty

	bonus := s.featureBonus(subject, &p)
	overall := clamp(100-weighted*100+bonus, 0, 100)

	return models.ScoredCandidate{
		Property:   p,
		DistanceKm: distKm,
		Factors: models.FactorScores{
			Distance:     (1 - distancePenalty) * 100,
			Size:         (1 - sizePenalty) * 100,
			Price:        (1 - pricePenalty) * 100,
			Bedrooms:     (1 - bedroomPenalty) * 100,
			Bathrooms:    (1 - bathroomPenalty) * 100,
			Condition:    (1 - conditionPenalty) * 100,
			FeatureBonus: bonus,
		},
		Overall: overall,
	}
}

// ScoreAll fans scoring out across candidates and joins before returning.
// Result order matches the input order.
func (s *Scorer) ScoreAll(c *models.SearchCriteria, subject *models.PropertyRecord, candidates []models.Candidate) []models.ScoredCandidate {
	scored := make([]models.ScoredCandidate, len(candidates))
	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, cand models.Candidate) {
			defer wg.Done()
			scored[i] = s.Score(c, subject, cand)
		}(i, cand)
	}
	wg.Wait()
	return scored
}

// resolveDistance prefers the retriever-supplied distance, falls back to the
// great-circle distance between known coordinate pairs, and finally to the
// area-hierarchy proxy.
func (s *Scorer) resolveDistance(c *models.SearchCriteria, cand models.Candidate) float64 {
	if cand.DistanceKm >= 0 {
		return cand.DistanceKm
	}

	p := cand.Property
	if c.HasCoordinates() && p.HasCoordinates() {
		subject := orb.Point{*c.Longitude, *c.Latitude}
		candidate := orb.Point{*p.Longitude, *p.Latitude}
		return geo.Distance(subject, candidate) / 1000
	}

	switch {
	case sameArea(c.Urbanization, p.Urbanization):
		return proxySameUrbanizationKm
	case sameArea(c.Suburb, p.Suburb):
		return proxySameSuburbKm
	case sameArea(c.City, p.City):
		return proxySameCityKm
	default:
		return proxyNoMatchKm
	}
}

// conditionPenalty applies the fixer-upper rule: a fixer-upper close to the
// subject reveals pre-renovation baseline value and counts as a strong
// comparable regardless of the rating gap.
func (s *Scorer) conditionPenalty(subject, p *models.PropertyRecord, distKm float64) float64 {
	if subject.Condition == 0 || p.Condition == 0 {
		return neutralPenalty
	}
	if p.Condition == conditionFixerUpper && distKm <= s.cfg.Scoring.FixerUpperRadiusKm {
		return 0.05
	}
	gap := math.Abs(float64(subject.Condition - p.Condition))
	return clamp01(gap / maxConditionGap)
}

// pricePenalty relaxes the expected price difference in proportion to the
// condition gap before scoring, up to the configured allowance.
func (s *Scorer) pricePenalty(c *models.SearchCriteria, subject, p *models.PropertyRecord) float64 {
	candidatePrice := p.PriceFor(c.ListingType)
	if c.Price <= 0 || candidatePrice <= 0 {
		return neutralPenalty
	}

	relDiff := math.Abs(candidatePrice-c.Price) / c.Price

	if subject.Condition > 0 && p.Condition > 0 {
		gap := math.Abs(float64(subject.Condition-p.Condition)) / maxConditionGap
		relDiff = math.Max(0, relDiff-s.cfg.Scoring.ConditionPriceAllowance*gap)
	}

	return clamp01(relDiff)
}

// featureBonus scales the Jaccard overlap of the feature tag sets to at most
// the configured bonus in percentage points.
func (s *Scorer) featureBonus(subject, p *models.PropertyRecord) float64 {
	if len(subject.Features) == 0 || len(p.Features) == 0 {
		return 0
	}

	subjectSet := make(map[string]bool, len(subject.Features))
	for _, f := range subject.Features {
		subjectSet[normalizeFeature(f)] = true
	}

	intersection := 0
	candidateSet := make(map[string]bool, len(p.Features))
	for _, f := range p.Features {
		key := normalizeFeature(f)
		if candidateSet[key] {
			continue
		}
		candidateSet[key] = true
		if subjectSet[key] {
			intersection++
		}
	}

	union := len(subjectSet) + len(candidateSet) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union) * s.cfg.Scoring.MaxFeatureBonus
}

func relativePenalty(subject, candidate float64) float64 {
	if subject <= 0 || candidate <= 0 {
		return neutralPenalty
	}
	return clamp01(math.Abs(candidate-subject) / subject)
}

// countPenalty scores bedroom/bathroom counts by absolute difference capped
// at two.
func countPenalty(subject, candidate int) float64 {
	if subject <= 0 || candidate <= 0 {
		return neutralPenalty
	}
	diff := math.Abs(float64(subject - candidate))
	return math.Min(diff, 2) / 2
}

func sameArea(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return criteria.NormalizeArea(a) == criteria.NormalizeArea(b)
}

func normalizeFeature(f string) string {
	return criteria.NormalizeArea(f)
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
