package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SectionRule configures the system-vs-AI routing for one report section.
// AlwaysAI marks narrative-only sections; otherwise the three thresholds must
// all be met for the section to be generated by the system.
type SectionRule struct {
	AlwaysAI       bool    `yaml:"always_ai"`
	MinComparables int64   `yaml:"min_comparables"`
	MinAnalyses    int64   `yaml:"min_analyses"`
	MinQuality     float64 `yaml:"min_quality"`
}

type sectionRulesFile struct {
	Sections map[string]SectionRule `yaml:"sections"`
}

// DefaultSectionRules returns the built-in routing table. Data-driven
// sections carry thresholds; the purely narrative ones are always AI.
func DefaultSectionRules() map[string]SectionRule {
	return map[string]SectionRule{
		"market_position":     {MinComparables: 10, MinAnalyses: 3, MinQuality: 0.6},
		"comparable_analysis": {MinComparables: 8, MinAnalyses: 2, MinQuality: 0.5},
		"price_assessment":    {MinComparables: 20, MinAnalyses: 5, MinQuality: 0.7},
		"rental_outlook":      {MinComparables: 15, MinAnalyses: 4, MinQuality: 0.65},
		"executive_summary":   {AlwaysAI: true},
		"location_overview":   {AlwaysAI: true},
		"investment_advice":   {AlwaysAI: true},
	}
}

// LoadSectionRules merges a YAML rules file over the defaults. An empty path
// returns the defaults unchanged.
func LoadSectionRules(path string) (map[string]SectionRule, error) {
	rules := DefaultSectionRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read section rules file: %w", err)
	}

	var file sectionRulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse section rules file: %w", err)
	}

	for name, rule := range file.Sections {
		rules[name] = rule
	}
	return rules, nil
}
