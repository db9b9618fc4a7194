package criteria

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"compara/server/internal/models"
)

// defaultExclusions maps a normalized area name to area names that share
// vocabulary with it but are geographically distinct. Feed data regularly
// tags listings from the similarly-named area, which poisons the comparable
// pool with the wrong micro-market.
var defaultExclusions = map[string][]string{
	"el rosario":    {"el rosario alto"},
	"la quinta":     {"la quinta hills"},
	"el paraiso":    {"el paraiso alto", "paraiso barronal"},
	"los monteros":  {"los monteros alto"},
	"guadalmina":    {"guadalmina alta", "guadalmina baja"},
	"nueva atalaya": {"atalaya"},
}

// ExclusionFilter drops candidates whose area name collides with, but is
// semantically distinct from, the search area. The map is symmetric: each
// pair blocks in both directions, and an exact self-match is never excluded.
type ExclusionFilter struct {
	mu       sync.RWMutex
	excluded map[string]map[string]bool
	logger   *logrus.Logger
}

func NewExclusionFilter(logger *logrus.Logger) *ExclusionFilter {
	if logger == nil {
		logger = logrus.New()
	}
	f := &ExclusionFilter{
		excluded: make(map[string]map[string]bool),
		logger:   logger,
	}
	for area, names := range defaultExclusions {
		for _, name := range names {
			f.add(area, name)
		}
	}
	return f
}

// LoadFile merges additional exclusion pairs from a JSON file shaped as
// {"area": ["excluded area", ...]}.
func (f *ExclusionFilter) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read exclusions file: %w", err)
	}

	var entries map[string][]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse exclusions file: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for area, names := range entries {
		for _, name := range names {
			f.addLocked(area, name)
		}
	}

	f.logger.Infof("Loaded %d area exclusion entries from %s", len(entries), path)
	return nil
}

func (f *ExclusionFilter) add(area, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addLocked(area, name)
}

func (f *ExclusionFilter) addLocked(area, name string) {
	a := NormalizeArea(area)
	b := NormalizeArea(name)
	if a == "" || b == "" || a == b {
		return
	}
	if f.excluded[a] == nil {
		f.excluded[a] = make(map[string]bool)
	}
	if f.excluded[b] == nil {
		f.excluded[b] = make(map[string]bool)
	}
	f.excluded[a][b] = true
	f.excluded[b][a] = true
}

// Excluded reports whether candidateArea must not match searchArea.
func (f *ExclusionFilter) Excluded(searchArea, candidateArea string) bool {
	a := NormalizeArea(searchArea)
	b := NormalizeArea(candidateArea)
	if a == "" || b == "" || a == b {
		return false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.excluded[a][b]
}

// Apply filters the candidate list for the given search area. Applied before
// scoring so excluded areas never reach the scorer or the aggregates.
func (f *ExclusionFilter) Apply(searchArea string, candidates []models.Candidate) []models.Candidate {
	if searchArea == "" || len(candidates) == 0 {
		return candidates
	}

	kept := make([]models.Candidate, 0, len(candidates))
	dropped := 0
	for _, c := range candidates {
		if f.Excluded(searchArea, c.Property.AreaName()) {
			dropped++
			continue
		}
		kept = append(kept, c)
	}

	if dropped > 0 {
		f.logger.WithFields(logrus.Fields{
			"search_area": searchArea,
			"dropped":     dropped,
		}).Debug("Dropped candidates from excluded areas")
	}
	return kept
}

// NormalizeArea lowercases, trims and collapses whitespace, and strips
// accents common in Spanish area names so map keys compare reliably.
func NormalizeArea(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), " ")

	replacer := strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	)
	return replacer.Replace(name)
}
