package portfolio

import "math"

// BaseWeights turns scores into non-negative weights summing to one.
// Negative scores count as zero; if nothing is positive every name gets 1/n.
func BaseWeights(scores []float64) []float64 {
	n := len(scores)
	if n == 0 {
		return nil
	}

	out := make([]float64, n)
	total := 0.0
	for i, s := range scores {
		if s > 0 && !math.IsInf(s, 0) {
			out[i] = s
			total += s
		}
	}
	if total <= 0 {
		for i := range out {
			out[i] = 1.0 / float64(n)
		}
		return out
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// CapWeights applies a per-name cap by water-filling: names whose share of
// the remaining mass breaches wMax are pinned to wMax and the rest is
// redistributed pro rata. The second return reports whether any cap bound.
// A cap <= 0 or >= 1 leaves the input normalized but otherwise untouched.
// When n*wMax < 1 the cap is infeasible and the renormalized result exceeds it.
func CapWeights(base []float64, wMax float64) ([]float64, bool) {
	n := len(base)
	if n == 0 {
		return nil, false
	}

	total := 0.0
	for _, w := range base {
		total += w
	}
	weights := make([]float64, n)
	if total <= 0 {
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}
	} else {
		for i, w := range base {
			weights[i] = w / total
		}
	}

	if wMax <= 0 || wMax >= 1 {
		return weights, false
	}

	capped := make([]bool, n)
	final := make([]float64, n)
	remainingMass := 1.0
	remainingBase := 1.0
	remaining := n
	binding := false

	// each pass pins at least one name or terminates
	for pass := 0; pass <= n && remaining > 0 && remainingMass > 0; pass++ {
		updated := false
		for i := 0; i < n; i++ {
			if capped[i] {
				continue
			}
			if remainingBase <= 0 {
				break
			}
			w := remainingMass * weights[i] / remainingBase
			if w > wMax {
				final[i] = wMax
				capped[i] = true
				remaining--
				remainingMass -= wMax
				remainingBase -= weights[i]
				binding = true
				updated = true
			}
		}
		if !updated {
			break
		}
	}

	if remaining > 0 && remainingBase > 0 && remainingMass > 0 {
		for i := 0; i < n; i++ {
			if !capped[i] {
				final[i] = remainingMass * weights[i] / remainingBase
			}
		}
	}

	sum := 0.0
	for _, w := range final {
		sum += w
	}
	if sum <= 0 {
		return weights, binding
	}
	for i := range final {
		final[i] /= sum
	}
	return final, binding
}

// capFeasible reports whether n names can respect wMax while summing to one
func capFeasible(n int, wMax float64) bool {
	if wMax <= 0 || wMax >= 1 {
		return true
	}
	return float64(n)*wMax >= 1-1e-12
}
