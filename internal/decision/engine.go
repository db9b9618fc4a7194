package decision

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"compara/server/config"
	"compara/server/internal/criteria"
	"compara/server/internal/models"
)

// MaturityReader is the persistence touchpoint the engine reads historical
// area counters from.
type MaturityReader interface {
	Get(area string) (*models.AreaMaturity, error)
}

type cachedDecisions struct {
	decisions map[string]models.SectionDecision
	expiresAt time.Time
}

// Engine routes each report section to the automated ("system") path or the
// narrative (AI) path, from area maturity and comparable-set quality.
// Decisions are cached per area and invalidated whenever the area's counters
// change. The engine never fails: any internal error yields the all-AI
// fallback set so report generation is never blocked.
type Engine struct {
	rules    map[string]config.SectionRule
	maturity MaturityReader
	ttl      time.Duration
	logger   *logrus.Logger

	mu    sync.RWMutex
	cache map[string]cachedDecisions
}

func NewEngine(rules map[string]config.SectionRule, maturity MaturityReader, ttl time.Duration, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	if rules == nil {
		rules = config.DefaultSectionRules()
	}
	return &Engine{
		rules:    rules,
		maturity: maturity,
		ttl:      ttl,
		logger:   logger,
		cache:    make(map[string]cachedDecisions),
	}
}

// Decide evaluates every configured section for the given area.
// nComparables is the size of the current run's full comparable set.
func (e *Engine) Decide(area string, nComparables int, quality *models.QualityAssessment) map[string]models.SectionDecision {
	key := criteria.NormalizeArea(area)

	e.mu.RLock()
	cached, ok := e.cache[key]
	e.mu.RUnlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.decisions
	}

	decisions, cacheable := e.evaluate(key, nComparables, quality)
	if cacheable {
		e.mu.Lock()
		e.cache[key] = cachedDecisions{decisions: decisions, expiresAt: time.Now().Add(e.ttl)}
		e.mu.Unlock()
	}
	return decisions
}

// Invalidate drops the cached decisions for an area. Called whenever the
// area's maturity counters are updated.
func (e *Engine) Invalidate(area string) {
	key := criteria.NormalizeArea(area)
	e.mu.Lock()
	delete(e.cache, key)
	e.mu.Unlock()
}

func (e *Engine) evaluate(area string, nComparables int, quality *models.QualityAssessment) (decisions map[string]models.SectionDecision, cacheable bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Decision evaluation panicked for area %q: %v", area, r)
			decisions, cacheable = e.fallback(), false
		}
	}()

	var analysesRun int64
	if e.maturity != nil {
		m, err := e.maturity.Get(area)
		if err != nil {
			e.logger.WithError(err).Warnf("Failed to read area maturity for %q", area)
			return e.fallback(), false
		}
		if m != nil {
			analysesRun = m.AnalysesRun
		}
	}

	qualityScore := 0.0
	if quality != nil {
		qualityScore = quality.Score
	}

	decisions = make(map[string]models.SectionDecision, len(e.rules))
	for name, rule := range e.rules {
		decisions[name] = e.decideSection(name, rule, nComparables, analysesRun, qualityScore)
	}
	return decisions, true
}

func (e *Engine) decideSection(name string, rule config.SectionRule, nComparables int, analysesRun int64, qualityScore float64) models.SectionDecision {
	if rule.AlwaysAI {
		return models.SectionDecision{
			Section:    name,
			Approach:   models.ApproachAI,
			Reason:     "narrative-only section",
			Confidence: confidence(models.ApproachAI, qualityScore, nComparables),
		}
	}

	var failures []string
	if int64(nComparables) < rule.MinComparables {
		failures = append(failures, fmt.Sprintf("comparable count %d below required %d", nComparables, rule.MinComparables))
	}
	if analysesRun < rule.MinAnalyses {
		failures = append(failures, fmt.Sprintf("historical analysis count %d below required %d", analysesRun, rule.MinAnalyses))
	}
	if qualityScore < rule.MinQuality {
		failures = append(failures, fmt.Sprintf("quality score %.2f below required %.2f", qualityScore, rule.MinQuality))
	}

	if len(failures) > 0 {
		return models.SectionDecision{
			Section:    name,
			Approach:   models.ApproachAI,
			Reason:     strings.Join(failures, "; "),
			Confidence: confidence(models.ApproachAI, qualityScore, nComparables),
		}
	}

	return models.SectionDecision{
		Section:  name,
		Approach: models.ApproachSystem,
		Reason: fmt.Sprintf("thresholds met: %d comparables, %d analyses, quality %.2f",
			nComparables, analysesRun, qualityScore),
		Confidence: confidence(models.ApproachSystem, qualityScore, nComparables),
	}
}

// confidence is high on strong quality or when every system threshold held;
// otherwise it scales with the comparable count.
func confidence(approach models.Approach, qualityScore float64, nComparables int) models.Confidence {
	if qualityScore > 0.8 || approach == models.ApproachSystem {
		return models.ConfidenceHigh
	}
	if nComparables >= 10 {
		return models.ConfidenceMedium
	}
	return models.ConfidenceLow
}

// fallback is the all-AI decision set returned on any internal failure.
func (e *Engine) fallback() map[string]models.SectionDecision {
	decisions := make(map[string]models.SectionDecision, len(e.rules))
	for name := range e.rules {
		decisions[name] = models.SectionDecision{
			Section:    name,
			Approach:   models.ApproachAI,
			Reason:     "system error during decision evaluation",
			Confidence: models.ConfidenceLow,
		}
	}
	return decisions
}
