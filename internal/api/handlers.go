package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"compara/server/internal/analysis"
	"compara/server/internal/criteria"
	"compara/server/internal/models"
	"compara/server/internal/store"
)

type Handler struct {
	analyzer *analysis.Analyzer
	maturity *store.MaturityStore
	logger   *logrus.Logger
}

type AnalyzeRequest struct {
	SessionID string                 `json:"session_id" binding:"required"`
	Subject   models.PropertyRecord  `json:"subject" binding:"required"`
	Hint      *criteria.LocationHint `json:"location_hint"`
}

type RecordMaturityRequest struct {
	Comparables int `json:"comparables"`
}

func NewHandler(analyzer *analysis.Analyzer, maturity *store.MaturityStore, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Handler{analyzer: analyzer, maturity: maturity, logger: logger}
}

// Analyze runs the comparable analysis for a subject under a session.
// Degraded analyses (retrieval failures, empty pools) still return 200 with
// an explanatory summary; only invalid criteria are rejected.
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to parse analyze request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.analyzer.Analyze(c.Request.Context(), req.SessionID, &req.Subject, req.Hint)
	if err != nil {
		var validationErr *criteria.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Error()})
			return
		}
		h.logger.WithError(err).Error("Analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetMaturity returns the historical counters for an area.
func (h *Handler) GetMaturity(c *gin.Context) {
	area := c.Param("area")
	m, err := h.maturity.Get(area)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read area maturity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read area maturity"})
		return
	}
	if m == nil {
		c.JSON(http.StatusOK, models.AreaMaturity{Area: criteria.NormalizeArea(area)})
		return
	}
	c.JSON(http.StatusOK, m)
}

// RecordMaturity is the post-analysis updater touchpoint: it bumps the
// area's counters and, through the store hook, invalidates cached decisions.
func (h *Handler) RecordMaturity(c *gin.Context) {
	area := c.Param("area")

	var req RecordMaturityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Comparables < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comparables must be non-negative, got " + strconv.Itoa(req.Comparables)})
		return
	}

	if err := h.maturity.Record(area, req.Comparables); err != nil {
		h.logger.WithError(err).Error("Failed to record area maturity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record area maturity"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
