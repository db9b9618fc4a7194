package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"compara/server/config"
	"compara/server/internal/analysis"
	"compara/server/internal/api"
	"compara/server/internal/criteria"
	"compara/server/internal/decision"
	"compara/server/internal/scheduler"
	"compara/server/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Server.DBPath), 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}
	logger.Infof("Using database at: %s", cfg.Server.DBPath)

	candidates, err := store.NewCandidateStore(cfg.Server.DBPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize candidate store")
	}
	defer candidates.Close()

	maturity, err := store.NewMaturityStore(cfg.Server.DBPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize maturity store")
	}

	rules, err := config.LoadSectionRules(cfg.Server.SectionRulesPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load section rules")
	}

	engine := decision.NewEngine(rules, maturity,
		time.Duration(cfg.Cache.DecisionTTLMinutes)*time.Minute, logger)
	maturity.OnUpdate(engine.Invalidate)

	analyzer, err := analysis.NewAnalyzer(cfg, candidates, maturity, engine, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize analyzer")
	}

	if cfg.Server.ExclusionsPath != "" {
		exclusions := criteria.NewExclusionFilter(logger)
		if err := exclusions.LoadFile(cfg.Server.ExclusionsPath); err != nil {
			logger.WithError(err).Fatal("Failed to load area exclusions")
		}
		analyzer.SetExclusions(exclusions)
	}

	sched := scheduler.NewScheduler(cfg, maturity, analyzer.Sessions(), logger)
	if err := sched.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}
	defer sched.Stop()

	router := gin.Default()
	api.SetupRoutes(router, api.NewHandler(analyzer, maturity, logger))

	logger.Infof("Starting server on port %s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}
