// Package demand implements the demand distribution builder (C6), the
// sole entry point policy code uses to turn a sales history into a
// protection-period demand distribution.
package demand

import (
	"fmt"
	"time"

	"replenisher/internal/forecast"
	"replenisher/internal/logger"
)

// MCParams mirrors forecast.MonteCarloParams but is named for the
// demand-builder's own call contract (the SKU's declared MC settings).
type MCParams = forecast.MonteCarloParams

// Distribution is the immutable result of BuildDemandDistribution.
type Distribution struct {
	MuP                  float64
	SigmaP               float64
	ProtectionPeriodDays int
	ForecastMethod       string
	NSamples             int
	NCensored            int
	Quantiles            map[string]float64 // p50/p80/p90/p95, MC paths only

	// Intermittent-only.
	IsIntermittentMethod bool
	SelectedSubMethod    string
	IsIntermittent       bool
	ADI                  float64
	CV2                  float64
	Bt                   float64
	HasBt                bool
}

const (
	backtestPeriods  = 14
	intermittentAlpha = 0.1
	adiThreshold     = 1.32
	cv2Threshold     = 0.49
)

// BuildDemandDistribution is the sole entry point for policy code.
// method selects simple | monte_carlo | croston | sba | tsb |
// intermittent_auto; any other value falls back to simple. history is
// daily sales observations up to asofDate. censoredFlags, when non-nil
// and matching len(history), overrides each observation's Censored
// flag. windowWeeks sizes the rolling-residual training window used for
// sigma estimation.
func BuildDemandDistribution(
	method string,
	history []forecast.Observation,
	protectionPeriodDays int,
	asofDate time.Time,
	censoredFlags []bool,
	alphaBoostForCensored float64,
	windowWeeks int,
	mcParams MCParams,
	expectedWasteRate float64,
) Distribution {
	if protectionPeriodDays <= 0 || len(history) == 0 {
		return Distribution{ProtectionPeriodDays: protectionPeriodDays, ForecastMethod: method}
	}

	switch method {
	case "monte_carlo":
		return buildMonteCarlo(history, protectionPeriodDays, censoredFlags, alphaBoostForCensored, windowWeeks, mcParams, expectedWasteRate)
	case "croston", "sba", "tsb", "intermittent_auto":
		return buildIntermittent(method, history, protectionPeriodDays, censoredFlags)
	case "simple":
		return buildSimple(history, protectionPeriodDays, censoredFlags, alphaBoostForCensored, windowWeeks)
	default:
		logger.Warn("demand", fmt.Sprintf("unrecognized forecast_method %q, falling back to simple", method))
		return buildSimple(history, protectionPeriodDays, censoredFlags, alphaBoostForCensored, windowWeeks)
	}
}

func applyCensoredFlags(history []forecast.Observation, censoredFlags []bool) []forecast.Observation {
	if censoredFlags == nil || len(censoredFlags) != len(history) {
		return history
	}
	out := make([]forecast.Observation, len(history))
	copy(out, history)
	for i := range out {
		out[i].Censored = censoredFlags[i]
	}
	return out
}

func countCensored(history []forecast.Observation) int {
	n := 0
	for _, o := range history {
		if o.Censored {
			n++
		}
	}
	return n
}

func buildSimple(history []forecast.Observation, p int, censoredFlags []bool, alphaBoost float64, windowWeeks int) Distribution {
	obs := applyCensoredFlags(history, censoredFlags)
	model := forecast.FitSimpleModel(obs, 0.3, nil, alphaBoost)

	preds := forecast.Predict(model, p, nil)
	var muP float64
	for _, v := range preds {
		muP += v
	}

	forecastFn := func(train []forecast.Observation, horizon int) []float64 {
		m := forecast.FitSimpleModel(train, 0.3, nil, alphaBoost)
		return forecast.Predict(m, horizon, nil)
	}
	sigmaDaily, _, _ := forecast.EstimateDemandUncertainty(obs, forecastFn, windowWeeks, forecast.UncertaintyMAD)
	sigmaP := forecast.SigmaOverHorizon(p, sigmaDaily)

	return Distribution{
		MuP:                  muP,
		SigmaP:               sigmaP,
		ProtectionPeriodDays: p,
		ForecastMethod:       "simple",
		NSamples:             model.NSamples,
		NCensored:            model.NCensored,
	}
}

func buildMonteCarlo(history []forecast.Observation, p int, censoredFlags []bool, alphaBoost float64, windowWeeks int, mcParams MCParams, expectedWasteRate float64) Distribution {
	obs := applyCensoredFlags(history, censoredFlags)
	baseline := forecast.FitSimpleModel(obs, 0.3, nil, alphaBoost)

	mcParams.ExpectedWasteRate = expectedWasteRate
	result := forecast.RunMonteCarlo(obs, baseline, mcParams, p)

	forecastFn := func(train []forecast.Observation, horizon int) []float64 {
		m := forecast.FitSimpleModel(train, 0.3, nil, alphaBoost)
		return forecast.Predict(m, horizon, nil)
	}
	sigmaDaily, _, _ := forecast.EstimateDemandUncertainty(obs, forecastFn, windowWeeks, forecast.UncertaintyMAD)
	sigmaP := forecast.SigmaOverHorizon(p, sigmaDaily)

	return Distribution{
		MuP:                  result.MuP,
		SigmaP:               sigmaP,
		ProtectionPeriodDays: p,
		ForecastMethod:       "monte_carlo",
		NSamples:             baseline.NSamples,
		NCensored:            baseline.NCensored,
		Quantiles:            result.Quantiles,
	}
}

func toSeries(history []forecast.Observation) ([]float64, []int) {
	series := make([]float64, len(history))
	var exclude []int
	for i, o := range history {
		series[i] = o.QtySold
		if o.Censored {
			exclude = append(exclude, i)
		}
	}
	return series, exclude
}

func buildIntermittent(method string, history []forecast.Observation, p int, censoredFlags []bool) Distribution {
	obs := applyCensoredFlags(history, censoredFlags)
	series, exclude := toSeries(obs)
	nCensored := len(exclude)

	classification := forecast.ClassifyIntermittent(series, adiThreshold, cv2Threshold, exclude)

	subMethod := method
	if method == "intermittent_auto" {
		best, _ := forecast.SelectBestMethod(series, []string{"sba", "tsb"}, backtestPeriods, intermittentAlpha, exclude)
		subMethod = best
		if forecast.DetectObsolescence(series, 14, exclude) {
			subMethod = "tsb"
		}
		if subMethod == "" {
			subMethod = "sba"
		}
	}

	var model forecast.IntermittentModel
	var err error
	switch subMethod {
	case "croston":
		model, err = forecast.FitCroston(series, intermittentAlpha, exclude)
	case "tsb":
		model, err = forecast.FitTSB(series, intermittentAlpha, intermittentAlpha, exclude)
	default:
		subMethod = "sba"
		model, err = forecast.FitSBA(series, intermittentAlpha, exclude)
	}

	if err != nil {
		return Distribution{
			ProtectionPeriodDays: p,
			ForecastMethod:       method,
			NCensored:            nCensored,
			NSamples:             len(series) - nCensored,
		}
	}

	muP := forecast.PredictPDays(model, p)
	sigmaP := forecast.EstimateSigmaPRolling(series, model, p, exclude)

	return Distribution{
		MuP:                  muP,
		SigmaP:               sigmaP,
		ProtectionPeriodDays: p,
		ForecastMethod:       method,
		NSamples:             len(series) - nCensored,
		NCensored:            nCensored,
		IsIntermittentMethod: true,
		SelectedSubMethod:    subMethod,
		IsIntermittent:       classification.IsIntermittent,
		ADI:                  classification.ADI,
		CV2:                  classification.CV2,
		Bt:                   model.Bt,
		HasBt:                model.HasBt,
	}
}
