package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"compara/server/config"
)

// MaturityResetter performs the explicit periodic counter reset, the only
// path allowed to decrease area maturity.
type MaturityResetter interface {
	ResetAll() error
}

// CacheSweeper evicts expired session cache entries.
type CacheSweeper interface {
	Sweep()
}

// Scheduler owns the periodic maintenance jobs: the maturity counter reset
// and the cache sweep.
type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	maturity MaturityResetter
	sweeper  CacheSweeper
	logger   *logrus.Logger
}

func NewScheduler(cfg *config.Config, maturity MaturityResetter, sweeper CacheSweeper, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		cron:     cron.New(),
		cfg:      cfg,
		maturity: maturity,
		sweeper:  sweeper,
		logger:   logger,
	}
}

// Start registers the configured jobs and begins the cron loop.
func (s *Scheduler) Start() error {
	if schedule := s.cfg.Maturity.ResetSchedule; schedule != "" && s.maturity != nil {
		_, err := s.cron.AddFunc(schedule, func() {
			s.logger.Info("Running scheduled maturity reset")
			if err := s.maturity.ResetAll(); err != nil {
				s.logger.WithError(err).Error("Scheduled maturity reset failed")
			}
		})
		if err != nil {
			return err
		}
	}

	if schedule := s.cfg.Maturity.SweepSchedule; schedule != "" && s.sweeper != nil {
		_, err := s.cron.AddFunc(schedule, func() {
			s.sweeper.Sweep()
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// Stop halts the cron loop; running jobs finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}
