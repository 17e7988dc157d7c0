// Package forecast implements the demand forecasting layer (C5): the
// EMA+day-of-week model, Monte Carlo simulation, Croston/SBA/TSB
// intermittent methods, and robust uncertainty estimation.
package forecast

import (
	"sort"
	"time"
)

// Observation is one day of sales history.
type Observation struct {
	Date     time.Time
	QtySold  float64
	Censored bool
}

// SimpleModel is the fitted state of the EMA+DOW model.
type SimpleModel struct {
	Level      float64
	DOWFactors [7]float64 // indexed by time.Weekday
	LastDate   time.Time
	NSamples   int
	NCensored  int
	AlphaEff   float64
	Method     string
}

const minSamplesForDOW = 14

// FitSimpleModel fits the EMA+day-of-week model to history. Censored
// observations (identified via Observation.Censored, overridden by
// censoredFlags when non-nil and matching length) are excluded from
// training. alphaBoostForCensored raises the effective smoothing
// constant when censored days were present in the raw history, so the
// model adapts faster after a stockout resolves.
func FitSimpleModel(history []Observation, alphaBase float64, censoredFlags []bool, alphaBoostForCensored float64) SimpleModel {
	sorted := sortObservations(history)
	if censoredFlags != nil && len(censoredFlags) == len(sorted) {
		for i := range sorted {
			sorted[i].Censored = censoredFlags[i]
		}
	}

	var clean []Observation
	nCensored := 0
	for _, o := range sorted {
		if o.Censored {
			nCensored++
			continue
		}
		clean = append(clean, o)
	}

	if len(clean) == 0 {
		return SimpleModel{
			Level:     0.1,
			NSamples:  0,
			NCensored: nCensored,
			AlphaEff:  alphaBase,
			Method:    "simple",
		}
	}

	alphaEff := alphaBase
	if nCensored > 0 {
		alphaEff = min(0.99, alphaBase+alphaBoostForCensored)
	}

	level := clean[0].QtySold
	for _, o := range clean[1:] {
		level = alphaEff*o.QtySold + (1-alphaEff)*level
	}
	if level <= 0 {
		level = 0.1
	}

	var dow [7]float64
	switch {
	case len(clean) >= minSamplesForDOW:
		dow = dowFactorsFull(clean, level)
	case len(clean) >= 7:
		dow = dowFactorsPartial(clean, level)
	default:
		for i := range dow {
			dow[i] = 1.0
		}
	}

	return SimpleModel{
		Level:      level,
		DOWFactors: dow,
		LastDate:   clean[len(clean)-1].Date,
		NSamples:   len(clean),
		NCensored:  nCensored,
		AlphaEff:   alphaEff,
		Method:     "simple",
	}
}

func sortObservations(history []Observation) []Observation {
	out := make([]Observation, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// dowFactorsFull computes normalized per-weekday ratios when there are
// at least minSamplesForDOW observations: mean ratio per weekday,
// rescaled so the mean across all seven factors is 1.0, floored at 0.1.
func dowFactorsFull(obs []Observation, level float64) [7]float64 {
	var sums [7]float64
	var counts [7]int
	for _, o := range obs {
		wd := int(o.Date.Weekday())
		sums[wd] += o.QtySold / level
		counts[wd]++
	}

	var factors [7]float64
	for i := range factors {
		if counts[i] > 0 {
			factors[i] = sums[i] / float64(counts[i])
		} else {
			factors[i] = 1.0
		}
	}

	var mean float64
	for _, f := range factors {
		mean += f
	}
	mean /= 7
	if mean > 0 {
		for i := range factors {
			factors[i] /= mean
		}
	}
	for i := range factors {
		if factors[i] < 0.1 {
			factors[i] = 0.1
		}
	}
	return factors
}

// dowFactorsPartial computes per-weekday ratios without renormalizing,
// for the 7-13 sample regime; weekdays with fewer than two observations
// default to 1.0.
func dowFactorsPartial(obs []Observation, level float64) [7]float64 {
	var sums [7]float64
	var counts [7]int
	for _, o := range obs {
		wd := int(o.Date.Weekday())
		sums[wd] += o.QtySold / level
		counts[wd]++
	}

	var factors [7]float64
	for i := range factors {
		if counts[i] >= 2 {
			factors[i] = sums[i] / float64(counts[i])
			if factors[i] < 0.1 {
				factors[i] = 0.1
			}
		} else {
			factors[i] = 1.0
		}
	}
	return factors
}

// Predict returns a non-negative forecast for each of the horizon days
// starting the day after model.LastDate (or startDate if provided).
func Predict(model SimpleModel, horizon int, startDate *time.Time) []float64 {
	start := model.LastDate.AddDate(0, 0, 1)
	if startDate != nil {
		start = *startDate
	}

	out := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		day := start.AddDate(0, 0, i)
		factor := model.DOWFactors[int(day.Weekday())]
		if factor == 0 {
			factor = 1.0
		}
		out[i] = max(0, model.Level*factor)
	}
	return out
}
