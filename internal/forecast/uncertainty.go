package forecast

import (
	"math"
	"sort"
)

const madToSigmaFactor = 1.4826

// RobustSigma estimates standard deviation via median absolute
// deviation, scaled for a normal distribution. Returns 0 for fewer than
// two residuals.
func RobustSigma(residuals []float64) float64 {
	if len(residuals) < 2 {
		return 0
	}
	med := median(residuals)
	deviations := make([]float64, len(residuals))
	for i, r := range residuals {
		deviations[i] = math.Abs(r - med)
	}
	return madToSigmaFactor * median(deviations)
}

// WinsorizedSigma estimates standard deviation after clamping the
// trimProportion extreme tails on each side to their boundary values.
// Returns 0 for fewer than three residuals.
func WinsorizedSigma(residuals []float64, trimProportion float64) float64 {
	n := len(residuals)
	if n < 3 {
		return 0
	}

	sorted := append([]float64{}, residuals...)
	sort.Float64s(sorted)

	trimCount := int(float64(n) * trimProportion)
	if trimCount < 1 {
		trimCount = 1
	}
	lower := sorted[trimCount-1]
	upper := sorted[n-trimCount]

	winsorized := make([]float64, n)
	for i, r := range residuals {
		switch {
		case r < lower:
			winsorized[i] = lower
		case r > upper:
			winsorized[i] = upper
		default:
			winsorized[i] = r
		}
	}

	return stdev(winsorized)
}

// SigmaOverHorizon scales a daily sigma to a P-day protection period
// assuming independent daily errors: sigma_P = sigma_daily * sqrt(P).
func SigmaOverHorizon(protectionPeriodDays int, sigmaDaily float64) float64 {
	if protectionPeriodDays <= 0 || sigmaDaily <= 0 {
		return 0
	}
	return sigmaDaily * math.Sqrt(float64(protectionPeriodDays))
}

// ForecastFunc produces a horizon-length forecast from a training
// window of observations.
type ForecastFunc func(train []Observation, horizon int) []float64

const defaultWindowWeeks = 8

// RollingResiduals computes one-step-ahead forecast residuals
// (actual - predicted) over history using a rolling training window of
// windowWeeks*7 days. Censored days are skipped when producing
// residuals (but remain in the training window).
func RollingResiduals(history []Observation, forecastFn ForecastFunc, windowWeeks int) (residuals []float64, nCensoredExcluded int) {
	if len(history) == 0 {
		return nil, 0
	}
	sorted := sortObservations(history)

	windowDays := windowWeeks * 7
	minRequired := windowDays + 7
	if len(sorted) < minRequired {
		return nil, 0
	}

	for i := windowDays; i < len(sorted); i++ {
		if sorted[i].Censored {
			nCensoredExcluded++
			continue
		}
		train := sorted[i-windowDays : i]
		forecasted := forecastFn(train, 1)
		if len(forecasted) == 0 {
			continue
		}
		residuals = append(residuals, sorted[i].QtySold-forecasted[0])
	}
	return residuals, nCensoredExcluded
}

// UncertaintyMethod selects the robust estimator used by
// EstimateDemandUncertainty.
type UncertaintyMethod string

const (
	UncertaintyMAD        UncertaintyMethod = "mad"
	UncertaintyWinsorized UncertaintyMethod = "winsorized"
)

// EstimateDemandUncertainty derives a daily sigma from rolling one-step
// residuals, using method to convert residuals to a robust estimate.
func EstimateDemandUncertainty(history []Observation, forecastFn ForecastFunc, windowWeeks int, method UncertaintyMethod) (sigmaDaily float64, nResiduals, nCensoredExcluded int) {
	residuals, excluded := RollingResiduals(history, forecastFn, windowWeeks)
	if len(residuals) == 0 {
		return 0, 0, excluded
	}

	var sigma float64
	switch method {
	case UncertaintyWinsorized:
		sigma = WinsorizedSigma(residuals, 0.05)
	default:
		sigma = RobustSigma(residuals)
	}
	return sigma, len(residuals), excluded
}

var csl1ZScores = []struct {
	csl float64
	z   float64
}{
	{0.50, 0.000},
	{0.90, 1.282},
	{0.95, 1.645},
	{0.98, 2.054},
	{0.99, 2.326},
	{0.995, 2.576},
	{0.999, 3.090},
}

// ZScoreForCSL looks up the z-score for a target service level, falling
// back to the nearest tabulated CSL when targetCSL isn't an exact key.
func ZScoreForCSL(targetCSL float64) float64 {
	best := csl1ZScores[0]
	bestDiff := math.Abs(targetCSL - best.csl)
	for _, entry := range csl1ZScores[1:] {
		diff := math.Abs(targetCSL - entry.csl)
		if diff < bestDiff {
			best = entry
			bestDiff = diff
		}
	}
	return best.z
}

// SafetyStockForCSL returns z(targetCSL) * sigmaHorizon, or 0 if
// sigmaHorizon is non-positive.
func SafetyStockForCSL(sigmaHorizon, targetCSL float64) float64 {
	if sigmaHorizon <= 0 {
		return 0
	}
	return ZScoreForCSL(targetCSL) * sigmaHorizon
}

func median(values []float64) float64 {
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stdev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	var sumSq float64
	for _, v := range values {
		sumSq += (v - mean) * (v - mean)
	}
	variance := sumSq / float64(n-1)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}
