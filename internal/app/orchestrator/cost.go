package orchestrator

import (
	"math"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/phase"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/project"
)

const (
	defaultCloudRateUSDPerCoreHour = 0.04
	defaultRecommendedWorkers      = 4
	defaultRecommendedCores        = 16
	pfgwDigitThreshold             = 10_000
	pfgwSpeedupFactor              = 50.0
)

// SecsPerCandidate is the empirical per-form power-law timing model:
// base_secs * (digits/1000)^exponent, calibrated against GIMPS and
// darkreach benchmarks (original_source/src/project/cost.rs). PFGW/GWNUM
// give roughly 50x speedup, applied only above the 10K digit threshold
// where the accelerated kernels actually engage.
func SecsPerCandidate(form string, digits int64, hasPFGW bool) float64 {
	d := float64(digits) / 1000.0
	var base float64
	switch form {
	case "factorial", "primorial":
		base = 0.5 * math.Pow(d, 2.5)
	case "kbn", "twin", "sophie_germain":
		base = 0.1 * math.Pow(d, 2.0)
	case "cullen_woodall", "carol_kynea":
		base = 0.2 * math.Pow(d, 2.2)
	case "wagstaff":
		base = 0.8 * math.Pow(d, 2.5)
	case "palindromic", "near_repdigit":
		base = 0.3 * math.Pow(d, 2.0)
	case "repunit":
		base = 0.4 * math.Pow(d, 2.3)
	case "gen_fermat":
		base = 0.3 * math.Pow(d, 2.2)
	default:
		base = 0.5 * math.Pow(d, 2.5)
	}

	if hasPFGW && digits >= pfgwDigitThreshold {
		return base / pfgwSpeedupFactor
	}
	return base
}

// EstimateDigitsForForm gives a rough decimal digit count for form at
// parameter value n, using the same closed-form approximations as the
// reference cost model (Stirling for factorial, prime number theorem for
// primorial, log-base-2 scaling for the exponential forms).
func EstimateDigitsForForm(form string, n int64) int64 {
	nf := float64(n)
	switch form {
	case "factorial":
		if n < 3 {
			return 1
		}
		return int64(nf * math.Log10(nf/math.E))
	case "primorial":
		return int64(nf / math.Ln10)
	case "kbn", "twin", "sophie_germain", "cullen_woodall", "wagstaff", "gen_fermat":
		return int64(nf * math.Log10(2))
	case "carol_kynea":
		return int64(2.0 * nf * math.Log10(2))
	case "palindromic", "near_repdigit", "repunit":
		return n
	default:
		return n
	}
}

// ExtractRangeFromParams pulls a (start, end) range out of a phase's opaque
// search_params bag, checking the key aliases the original strategy
// generator used across forms (start/end, min_n/max_n, min_exp/max_exp,
// min_digits/max_digits, min_base/max_base). Missing keys default to 0;
// an end alone defaults to start.
func ExtractRangeFromParams(params map[string]any) (start, end int64) {
	start = firstIntParam(params, "start", "min_n", "min_exp", "min_digits", "min_base")
	end = firstIntParam(params, "end", "max_n", "max_exp", "max_digits", "max_base")
	if end == 0 && start != 0 {
		if _, hasEndKey := anyOf(params, "end", "max_n", "max_exp", "max_digits", "max_base"); !hasEndKey {
			end = start
		}
	}
	return start, end
}

func firstIntParam(params map[string]any, keys ...string) int64 {
	v, _ := anyOf(params, keys...)
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func anyOf(params map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// EstimateProjectCost projects core-hours, wall-clock duration and USD cost
// for p, summing phase ranges when phases are configured and otherwise
// falling back to the project's own target range (original_source/src/
// project/cost.rs estimate_project_cost/estimate_candidates).
func EstimateProjectCost(p project.Project, phases []phase.Phase) project.CostEstimate {
	cloudRate := defaultCloudRateUSDPerCoreHour
	workers := defaultRecommendedWorkers
	coresPerWorker := defaultRecommendedCores
	hasPFGW := false

	if p.Budget != nil {
		if p.Budget.CloudRateUSDPerCoreHour > 0 {
			cloudRate = p.Budget.CloudRateUSDPerCoreHour
		}
		if p.Budget.RecommendedWorkers != nil {
			workers = *p.Budget.RecommendedWorkers
		}
	}
	if p.Infrastructure != nil {
		if p.Infrastructure.RecommendedCores != nil {
			coresPerWorker = *p.Infrastructure.RecommendedCores
		}
		for _, tool := range p.Infrastructure.PreferredTools {
			if tool == "pfgw" || tool == "gwnum" {
				hasPFGW = true
			}
		}
	}

	candidates, avgDigits := estimateCandidates(p, phases)

	spc := SecsPerCandidate(p.Form, avgDigits, hasPFGW)
	totalTestSecs := float64(candidates) * spc
	totalCoreHours := totalTestSecs / 3600.0
	totalCores := workers * coresPerWorker
	durationHours := 0.0
	if totalCores > 0 {
		durationHours = totalCoreHours / float64(totalCores)
	}

	return project.CostEstimate{
		EstimatedCandidates:    candidates,
		EstimatedTestTimeSecs:  totalTestSecs,
		TotalCoreHours:         totalCoreHours,
		TotalCostUSD:           totalCoreHours * cloudRate,
		EstimatedDurationHours: durationHours,
		WorkersRecommended:     workers,
	}
}

func estimateCandidates(p project.Project, phases []phase.Phase) (candidates, avgDigits int64) {
	if len(phases) > 0 {
		var total, totalDigits, count int64
		for _, ph := range phases {
			start, end := ExtractRangeFromParams(ph.SearchParams)
			if end > start {
				total += end - start
				mid := (start + end) / 2
				totalDigits += EstimateDigitsForForm(p.Form, mid)
				count++
			}
		}
		if count > 0 {
			avgDigits = totalDigits / count
		} else {
			avgDigits = 1000
		}
		if total < 1 {
			total = 1
		}
		if avgDigits < 1 {
			avgDigits = 1
		}
		return total, avgDigits
	}

	if p.Target.RangeEnd > p.Target.RangeStart {
		mid := (p.Target.RangeStart + p.Target.RangeEnd) / 2
		digits := EstimateDigitsForForm(p.Form, mid)
		if digits < 1 {
			digits = 1
		}
		return p.Target.RangeEnd - p.Target.RangeStart, digits
	}

	return 10_000, 1000
}
