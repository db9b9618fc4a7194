package analysis

import (
	"sort"

	"compara/server/internal/models"
)

// RelaxFunc is the progressive-relaxation extension point: when fewer than
// the display count of candidates exist, the hook may widen the criteria and
// resupply the set. The default implementation returns the set unchanged.
type RelaxFunc func(c *models.SearchCriteria, scored []models.ScoredCandidate) []models.ScoredCandidate

// NoRelaxation is the default no-op relaxation hook.
func NoRelaxation(_ *models.SearchCriteria, scored []models.ScoredCandidate) []models.ScoredCandidate {
	return scored
}

// selectDisplay sorts the full set descending by overall score and returns
// the bounded display subset alongside the full set. Statistics and quality
// always run over the full set; only rendering is capped.
func selectDisplay(scored []models.ScoredCandidate, displayCount int) (display, all []models.ScoredCandidate) {
	all = append([]models.ScoredCandidate(nil), scored...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Overall > all[j].Overall
	})

	if len(all) <= displayCount {
		display = all
	} else {
		display = all[:displayCount]
	}
	return display, all
}
