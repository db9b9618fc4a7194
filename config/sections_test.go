package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsValid(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Search.DisplayCount)
	assert.Equal(t, 10.0, cfg.Search.RadiusKm)
	assert.InDelta(t, 1.0, cfg.Scoring.WeightDistance+cfg.Scoring.WeightSize+
		cfg.Scoring.WeightCondition+cfg.Scoring.WeightPrice+
		cfg.Scoring.WeightBedrooms+cfg.Scoring.WeightBathrooms, 1e-9)
}

func TestValidate_RejectsBadWeights(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.Scoring.WeightDistance = 0.9
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must sum to 1.0")
}

func TestDefaultSectionRules(t *testing.T) {
	rules := DefaultSectionRules()

	assert.True(t, rules["executive_summary"].AlwaysAI)
	price := rules["price_assessment"]
	assert.Equal(t, int64(20), price.MinComparables)
	assert.Equal(t, int64(5), price.MinAnalyses)
	assert.Equal(t, 0.7, price.MinQuality)
}

func TestLoadSectionRules(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		rules, err := LoadSectionRules("")
		require.NoError(t, err)
		assert.Equal(t, DefaultSectionRules(), rules)
	})

	t.Run("file overrides and extends defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sections.yaml")
		content := []byte(`sections:
  price_assessment:
    min_comparables: 30
    min_analyses: 10
    min_quality: 0.8
  legal_notes:
    always_ai: true
`)
		require.NoError(t, os.WriteFile(path, content, 0644))

		rules, err := LoadSectionRules(path)
		require.NoError(t, err)
		assert.Equal(t, int64(30), rules["price_assessment"].MinComparables)
		assert.True(t, rules["legal_notes"].AlwaysAI)
		assert.True(t, rules["executive_summary"].AlwaysAI)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := LoadSectionRules("/nonexistent/sections.yaml")
		assert.Error(t, err)
	})
}
