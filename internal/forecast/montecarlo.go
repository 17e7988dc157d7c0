package forecast

import (
	"math"
	"math/rand/v2"
	"sort"
	"time"
)

// MonteCarloParams configures a deterministic Monte Carlo demand
// simulation.
type MonteCarloParams struct {
	Distribution      string // empirical | normal | lognormal | residuals
	NSimulations      int
	RandomSeed        uint64
	OutputStat        string // mean | percentile
	OutputPercentile  int    // used when OutputStat == "percentile", in [1,99]
	HorizonMode       string // auto | custom
	HorizonDays       int
	ExpectedWasteRate float64 // in [0,1]
}

// MonteCarloResult is the simulated demand distribution over a horizon.
type MonteCarloResult struct {
	PerDayForecast []float64          // length = horizon, after waste-rate adjustment
	Totals         []float64          // per-simulation horizon totals, unadjusted
	MuP            float64            // mean horizon total, after waste-rate adjustment
	Quantiles      map[string]float64 // p50, p80, p90, p95 of horizon totals
}

// RunMonteCarlo simulates demand over horizonDays starting the day
// after baseline.LastDate, using residuals (in-sample actual-minus-
// predicted from history under baseline) to drive the chosen noise
// distribution. Identical history, params, and seed always produce a
// bit-identical result.
func RunMonteCarlo(history []Observation, baseline SimpleModel, params MonteCarloParams, horizonDays int) MonteCarloResult {
	residuals := inSampleResiduals(history, baseline)
	rng := rand.New(rand.NewPCG(params.RandomSeed, params.RandomSeed^0x9E3779B97F4A7C15))

	nSims := params.NSimulations
	if nSims <= 0 {
		nSims = 1
	}

	perDaySamples := make([][]float64, horizonDays)
	for i := range perDaySamples {
		perDaySamples[i] = make([]float64, nSims)
	}
	totals := make([]float64, nSims)

	start := baseline.LastDate.AddDate(0, 0, 1)
	for sim := 0; sim < nSims; sim++ {
		var total float64
		for day := 0; day < horizonDays; day++ {
			d := start.AddDate(0, 0, day)
			baselineDay := baseline.Level * dowFactorOrOne(baseline, d)
			val := sampleDay(params.Distribution, rng, residuals, baselineDay)
			if val < 0 {
				val = 0
			}
			perDaySamples[day][sim] = val
			total += val
		}
		totals[sim] = total
	}

	wasteFactor := 1.0 - params.ExpectedWasteRate
	if wasteFactor < 0 {
		wasteFactor = 0
	}

	perDayForecast := make([]float64, horizonDays)
	for day := 0; day < horizonDays; day++ {
		var agg float64
		if params.OutputStat == "percentile" {
			agg = percentileOf(perDaySamples[day], params.OutputPercentile)
		} else {
			agg = meanOf(perDaySamples[day])
		}
		perDayForecast[day] = agg * wasteFactor
	}

	muP := meanOf(totals) * wasteFactor

	quantiles := map[string]float64{
		"p50": percentileOf(totals, 50) * wasteFactor,
		"p80": percentileOf(totals, 80) * wasteFactor,
		"p90": percentileOf(totals, 90) * wasteFactor,
		"p95": percentileOf(totals, 95) * wasteFactor,
	}

	return MonteCarloResult{
		PerDayForecast: perDayForecast,
		Totals:         totals,
		MuP:            muP,
		Quantiles:      quantiles,
	}
}

func dowFactorOrOne(m SimpleModel, d time.Time) float64 {
	f := m.DOWFactors[int(d.Weekday())]
	if f == 0 {
		return 1.0
	}
	return f
}

func inSampleResiduals(history []Observation, baseline SimpleModel) []float64 {
	var residuals []float64
	for _, o := range history {
		if o.Censored {
			continue
		}
		wd := int(o.Date.Weekday())
		predicted := baseline.Level * baseline.DOWFactors[wd]
		residuals = append(residuals, o.QtySold-predicted)
	}
	return residuals
}

func sampleDay(distribution string, rng *rand.Rand, residuals []float64, baselineDay float64) float64 {
	switch distribution {
	case "empirical", "residuals":
		if len(residuals) == 0 {
			return baselineDay
		}
		idx := rng.IntN(len(residuals))
		return baselineDay + residuals[idx]
	case "lognormal":
		sigma := RobustSigma(residuals)
		if sigma <= 0 {
			return baselineDay
		}
		relSigma := sigma / math.Max(baselineDay, 1.0)
		multiplier := math.Exp(rng.NormFloat64()*relSigma - 0.5*relSigma*relSigma)
		return baselineDay * multiplier
	case "normal":
		fallthrough
	default:
		sigma := RobustSigma(residuals)
		if sigma <= 0 {
			return baselineDay
		}
		return baselineDay + rng.NormFloat64()*sigma
	}
}

func percentileOf(values []float64, percentile int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)

	if percentile <= 0 {
		return sorted[0]
	}
	if percentile >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := float64(percentile) / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
