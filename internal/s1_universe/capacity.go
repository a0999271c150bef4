package s1_universe

import (
	"math"
	"sort"
)

// candidate is an instrument that passed every hard filter
type candidate struct {
	id      string
	sector  string
	score   float64
	reasons Reasons
}

// sortCandidates orders by score descending, instrument id ascending
func sortCandidates(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].score != cs[j].score {
			return cs[i].score > cs[j].score
		}
		return cs[i].id < cs[j].id
	})
}

// applyCaps splits sorted candidates into kept and capped. The sector cap is
// applied first, then the global size cap; both keep the capped score.
func applyCaps(sorted []candidate, sectorMax, maxSize int) (kept, capped []candidate) {
	afterSector := sorted
	if sectorMax > 0 {
		afterSector = make([]candidate, 0, len(sorted))
		counts := make(map[string]int)
		for _, c := range sorted {
			if counts[c.sector] >= sectorMax {
				c.reasons = c.reasons.clone()
				c.reasons[ReasonSectorCap] = true
				capped = append(capped, c)
				continue
			}
			counts[c.sector]++
			afterSector = append(afterSector, c)
		}
	}

	if maxSize <= 0 || len(afterSector) <= maxSize {
		return afterSector, capped
	}

	for _, c := range afterSector[maxSize:] {
		c.reasons = c.reasons.clone()
		c.reasons[ReasonMaxUniverseSize] = true
		capped = append(capped, c)
	}
	return afterSector[:maxSize], capped
}

// coreCut is the number of CORE names among n kept, at least one
func coreCut(n int, fraction float64) int {
	if n == 0 {
		return 0
	}
	cut := int(math.Floor(float64(n) * fraction))
	if cut < 1 {
		cut = 1
	}
	return cut
}
