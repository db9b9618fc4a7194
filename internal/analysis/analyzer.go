package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"compara/server/config"
	"compara/server/internal/criteria"
	"compara/server/internal/decision"
	"compara/server/internal/market"
	"compara/server/internal/models"
	"compara/server/internal/scoring"
)

// Retriever is the candidate-source contract. The concrete geospatial index
// behind it is not this package's concern; it may return fewer candidates
// than the display target.
type Retriever interface {
	Query(c *models.SearchCriteria) ([]models.Candidate, error)
}

// Analyzer runs the comparable-discovery pipeline: criteria normalization,
// retrieval, exclusion filtering, similarity scoring, market and quality
// aggregation, and section routing, wrapped by the session coordinator.
type Analyzer struct {
	cfg        *config.Config
	normalizer *criteria.Normalizer
	exclusions *criteria.ExclusionFilter
	scorer     *scoring.Scorer
	aggregator *market.Aggregator
	engine     *decision.Engine
	maturity   decision.MaturityReader
	retriever  Retriever
	sessions   *Coordinator
	relax      RelaxFunc
	logger     *logrus.Logger
}

func NewAnalyzer(cfg *config.Config, retriever Retriever, maturity decision.MaturityReader, engine *decision.Engine, logger *logrus.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = logrus.New()
	}

	scorer, err := scoring.NewScorer(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Analyzer{
		cfg:        cfg,
		normalizer: criteria.NewNormalizer(cfg, logger),
		exclusions: criteria.NewExclusionFilter(logger),
		scorer:     scorer,
		aggregator: market.NewAggregator(cfg, logger),
		engine:     engine,
		maturity:   maturity,
		retriever:  retriever,
		sessions: NewCoordinator(
			time.Duration(cfg.Cache.IntermediateTTLMinutes)*time.Minute,
			time.Duration(cfg.Cache.ResultTTLHours)*time.Hour,
			logger,
		),
		relax:  NoRelaxation,
		logger: logger,
	}, nil
}

// SetRelaxation swaps in a progressive-relaxation hook.
func (a *Analyzer) SetRelaxation(fn RelaxFunc) {
	if fn != nil {
		a.relax = fn
	}
}

// SetExclusions swaps in a preloaded exclusion filter.
func (a *Analyzer) SetExclusions(f *criteria.ExclusionFilter) {
	if f != nil {
		a.exclusions = f
	}
}

// Sessions exposes the coordinator for the cache sweep job.
func (a *Analyzer) Sessions() *Coordinator { return a.sessions }

// Analyze runs one analysis for the subject under the given session.
// Validation failures are returned as errors; retrieval and aggregation
// failures degrade into a result whose summary explains what happened.
func (a *Analyzer) Analyze(ctx context.Context, sessionID string, subject *models.PropertyRecord, hint *criteria.LocationHint) (*models.AnalysisResult, error) {
	c, err := a.normalizer.Normalize(subject, hint)
	if err != nil {
		return nil, err
	}

	key := SubjectKey(sessionID, subject)
	result, err := a.sessions.Do(ctx, sessionID, key, func() (*models.AnalysisResult, error) {
		return a.run(sessionID, subject, c)
	})

	// A retrieval failure still yields a usable degraded result; it is kept
	// out of the caches so a later request can retry the source.
	var retrievalErr *RetrievalError
	if err != nil && errors.As(err, &retrievalErr) {
		return result, nil
	}
	return result, err
}

func (a *Analyzer) run(sessionID string, subject *models.PropertyRecord, c *models.SearchCriteria) (*models.AnalysisResult, error) {
	result := &models.AnalysisResult{
		RunID:       uuid.NewString(),
		SessionID:   sessionID,
		Criteria:    c,
		GeneratedAt: time.Now().UTC(),
	}

	area := c.AreaName()

	candidates, err := a.retriever.Query(c)
	if err != nil {
		retrievalErr := &RetrievalError{Err: err}
		a.logger.WithError(retrievalErr).Error("Candidate retrieval failed, degrading to empty result")
		result.Summary = fmt.Sprintf("Comparable search for %s could not be completed; no market data is available for this report.", describeSubject(c))
		result.SectionDecisions = a.engine.Decide(area, 0, nil)
		return result, retrievalErr
	}

	candidates = a.exclusions.Apply(area, candidates)
	scored := a.scorer.ScoreAll(c, subject, candidates)

	if len(scored) < a.cfg.Search.DisplayCount {
		scored = a.relax(c, scored)
	}

	display, all := selectDisplay(scored, a.cfg.Search.DisplayCount)
	result.Comparables = display
	result.AllComparables = all

	var maturity *models.AreaMaturity
	if a.maturity != nil {
		maturity, err = a.maturity.Get(area)
		if err != nil {
			a.logger.WithError(err).Warnf("Failed to read maturity for %q, proceeding without bonus", area)
			maturity = nil
		}
	}

	result.Quality = a.aggregator.AssessQuality(all, maturity, time.Now())
	result.MarketContext = a.aggregator.MarketContext(c, all, result.Quality)
	result.SectionDecisions = a.engine.Decide(area, len(all), result.Quality)
	result.Summary = a.summary(c, result)

	a.logger.WithFields(logrus.Fields{
		"session":     sessionID,
		"run":         result.RunID,
		"area":        area,
		"comparables": len(all),
	}).Info("Analysis completed")

	return result, nil
}

// summary is always populated, including on degraded paths, so the
// surrounding report is never silently empty.
func (a *Analyzer) summary(c *models.SearchCriteria, result *models.AnalysisResult) string {
	n := len(result.AllComparables)
	if n == 0 {
		return fmt.Sprintf("No comparable %s listings were found near %s within the current criteria.",
			c.PropertyType, describeSubject(c))
	}

	s := fmt.Sprintf("Found %d comparable %s listings for %s", n, c.PropertyType, describeSubject(c))
	if result.MarketContext != nil && result.MarketContext.Stats != nil {
		s += fmt.Sprintf("; median price %.0f, subject %s", result.MarketContext.Stats.MedianPrice, result.MarketContext.Position)
	}
	if result.Quality != nil {
		s += fmt.Sprintf(". Comparable set quality %.2f", result.Quality.Score)
	}
	return s + "."
}

func describeSubject(c *models.SearchCriteria) string {
	if area := c.AreaName(); area != "" {
		return area
	}
	if c.HasCoordinates() {
		return fmt.Sprintf("%.4f,%.4f", *c.Latitude, *c.Longitude)
	}
	return "the subject location"
}
