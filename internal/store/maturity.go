package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"compara/server/internal/criteria"
	"compara/server/internal/models"
)

// MaturityStore persists the cumulative per-area counters the decision
// engine gates on. Counters are monotonically non-decreasing except for the
// explicit periodic reset.
type MaturityStore struct {
	db       *gorm.DB
	logger   *logrus.Logger
	onUpdate []func(area string)
}

func NewMaturityStore(dbPath string, logger *logrus.Logger) (*MaturityStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open maturity store: %w", err)
	}
	if err := db.AutoMigrate(&models.AreaMaturity{}); err != nil {
		return nil, fmt.Errorf("failed to migrate area_maturity: %w", err)
	}

	return &MaturityStore{db: db, logger: logger}, nil
}

// OnUpdate registers a hook invoked after an area's counters change. The
// decision engine registers its cache invalidation here.
func (s *MaturityStore) OnUpdate(fn func(area string)) {
	s.onUpdate = append(s.onUpdate, fn)
}

// Get returns the counters for a normalized area name, nil when the area has
// no history yet.
func (s *MaturityStore) Get(area string) (*models.AreaMaturity, error) {
	key := criteria.NormalizeArea(area)
	if key == "" {
		return nil, nil
	}

	var m models.AreaMaturity
	err := s.db.Where("area = ?", key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read area maturity: %w", err)
	}
	return &m, nil
}

// Record adds one analysis run and the comparables it saw to the area's
// counters, creating the row on first sight.
func (s *MaturityStore) Record(area string, comparables int) error {
	key := criteria.NormalizeArea(area)
	if key == "" {
		return nil
	}

	now := time.Now().UTC()
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "area"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"comparables_seen": gorm.Expr("comparables_seen + ?", comparables),
			"analyses_run":     gorm.Expr("analyses_run + 1"),
			"updated_at":       now,
		}),
	}).Create(&models.AreaMaturity{
		Area:            key,
		ComparablesSeen: int64(comparables),
		AnalysesRun:     1,
		UpdatedAt:       now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to record area maturity: %w", err)
	}

	for _, fn := range s.onUpdate {
		fn(key)
	}

	s.logger.WithFields(logrus.Fields{
		"area":        key,
		"comparables": comparables,
	}).Debug("Recorded area maturity")
	return nil
}

// ResetAll zeroes every counter. Only the scheduled periodic reset calls
// this; nothing else may decrease the counters.
func (s *MaturityStore) ResetAll() error {
	var areas []string
	if err := s.db.Model(&models.AreaMaturity{}).Pluck("area", &areas).Error; err != nil {
		return fmt.Errorf("failed to list areas for reset: %w", err)
	}

	err := s.db.Model(&models.AreaMaturity{}).Where("1 = 1").Updates(map[string]interface{}{
		"comparables_seen": 0,
		"analyses_run":     0,
		"updated_at":       time.Now().UTC(),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to reset area maturity: %w", err)
	}

	for _, area := range areas {
		for _, fn := range s.onUpdate {
			fn(area)
		}
	}

	s.logger.Infof("Reset maturity counters for %d areas", len(areas))
	return nil
}
