package forecast

import (
	"math"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Scenario F: censored day exclusion from the simple model.
func TestFitSimpleModel_CensoredDaysExcluded(t *testing.T) {
	var history []Observation
	start := day(2026, 1, 1)
	for i := 0; i < 10; i++ {
		history = append(history, Observation{Date: start.AddDate(0, 0, i), QtySold: 15})
	}
	for i := 10; i < 13; i++ {
		history = append(history, Observation{Date: start.AddDate(0, 0, i), QtySold: 0, Censored: true})
	}

	model := FitSimpleModel(history, 0.3, nil, 0.2)
	if model.NCensored != 3 {
		t.Fatalf("expected NCensored=3, got %d", model.NCensored)
	}
	if model.NSamples != 10 {
		t.Fatalf("expected NSamples=10, got %d", model.NSamples)
	}
	if model.Level < 14 || model.Level > 16 {
		t.Fatalf("expected level near 15, got %v", model.Level)
	}
}

func TestPredict_NonNegative(t *testing.T) {
	model := SimpleModel{Level: 0, LastDate: day(2026, 1, 1)}
	for i := range model.DOWFactors {
		model.DOWFactors[i] = 1.0
	}
	preds := Predict(model, 7, nil)
	for _, p := range preds {
		if p < 0 {
			t.Fatalf("negative prediction: %v", p)
		}
	}
}

// Invariant 5: sigma_over_horizon is monotonically non-decreasing in P.
func TestSigmaOverHorizon_MonotonicInP(t *testing.T) {
	prev := 0.0
	for p := 1; p <= 30; p++ {
		s := SigmaOverHorizon(p, 10.0)
		if s < prev {
			t.Fatalf("sigma decreased at P=%d: %v < %v", p, s, prev)
		}
		prev = s
	}
}

func TestSigmaOverHorizon_KnownValues(t *testing.T) {
	if s := SigmaOverHorizon(1, 10.0); s != 10.0 {
		t.Fatalf("P=1: got %v, want 10.0", s)
	}
	if s := SigmaOverHorizon(4, 10.0); s != 20.0 {
		t.Fatalf("P=4: got %v, want 20.0", s)
	}
	if s := SigmaOverHorizon(9, 10.0); s != 30.0 {
		t.Fatalf("P=9: got %v, want 30.0", s)
	}
}

// Invariant 6: replacing one non-median residual with a 100x outlier
// changes MAD-based sigma by less than 2x.
func TestRobustSigma_ResistsSingleOutlier(t *testing.T) {
	clean := []float64{1, 2, 3, 4, 5, 6, 7}
	sigmaClean := RobustSigma(clean)

	withOutlier := append([]float64{}, clean...)
	withOutlier[0] = withOutlier[0] * 100

	sigmaOutlier := RobustSigma(withOutlier)

	if sigmaOutlier > sigmaClean*2 {
		t.Fatalf("MAD sigma changed by more than 2x: clean=%v outlier=%v", sigmaClean, sigmaOutlier)
	}
}

func TestZScoreForCSL_ExactAndNearestFallback(t *testing.T) {
	if z := ZScoreForCSL(0.95); z != 1.645 {
		t.Fatalf("exact 0.95: got %v, want 1.645", z)
	}
	if z := ZScoreForCSL(0.96); z != 1.645 && z != 2.054 {
		t.Fatalf("nearest-key fallback for 0.96 returned unexpected z: %v", z)
	}
}

func TestSafetyStockForCSL_ZeroSigmaIsZero(t *testing.T) {
	if s := SafetyStockForCSL(0, 0.95); s != 0 {
		t.Fatalf("expected 0 safety stock for zero sigma, got %v", s)
	}
}

// Scenario D: intermittent classification and dispatch.
func TestClassifyIntermittent_Scenario(t *testing.T) {
	series := make([]float64, 90)
	for i := range series {
		if i%6 == 0 {
			series[i] = 2
			if (i/6)%2 == 1 {
				series[i] = 20
			}
		}
	}
	classification := ClassifyIntermittent(series, 1.32, 0.49, nil)
	if !classification.IsIntermittent {
		t.Fatalf("expected sparse series to classify as intermittent: %+v", classification)
	}
	if classification.ADI <= 1.32 {
		t.Fatalf("expected ADI > 1.32, got %v", classification.ADI)
	}
}

func TestFitCroston_SBA_TSB_ProduceNonNegativeForecasts(t *testing.T) {
	series := []float64{0, 0, 5, 0, 0, 0, 8, 0, 0, 3, 0, 0, 0, 6}

	croston, err := FitCroston(series, 0.1, nil)
	if err != nil {
		t.Fatalf("croston: %v", err)
	}
	sba, err := FitSBA(series, 0.1, nil)
	if err != nil {
		t.Fatalf("sba: %v", err)
	}
	tsb, err := FitTSB(series, 0.1, 0.1, nil)
	if err != nil {
		t.Fatalf("tsb: %v", err)
	}

	for _, m := range []IntermittentModel{croston, sba, tsb} {
		if PredictDaily(m) < 0 {
			t.Fatalf("%s: negative forecast", m.Method)
		}
		if p := PredictPDays(m, 14); p < 0 {
			t.Fatalf("%s: negative P-day forecast", m.Method)
		}
	}
}

func TestDetectObsolescence_DecliningDemand(t *testing.T) {
	var series []float64
	for i := 0; i < 14; i++ {
		series = append(series, 10)
	}
	for i := 0; i < 14; i++ {
		series = append(series, 2)
	}
	if !DetectObsolescence(series, 14, nil) {
		t.Fatalf("expected obsolescence to be detected for a sharply declining series")
	}
}

func TestRunMonteCarlo_DeterministicGivenSeed(t *testing.T) {
	var history []Observation
	start := day(2026, 1, 1)
	for i := 0; i < 60; i++ {
		history = append(history, Observation{Date: start.AddDate(0, 0, i), QtySold: 10 + float64(i%5)})
	}
	baseline := FitSimpleModel(history, 0.3, nil, 0)

	params := MonteCarloParams{
		Distribution: "normal", NSimulations: 200, RandomSeed: 42,
		OutputStat: "mean", HorizonMode: "custom", HorizonDays: 14,
		ExpectedWasteRate: 0,
	}

	r1 := RunMonteCarlo(history, baseline, params, 14)
	r2 := RunMonteCarlo(history, baseline, params, 14)

	if math.Abs(r1.MuP-r2.MuP) > 1e-9 {
		t.Fatalf("same seed produced different MuP: %v vs %v", r1.MuP, r2.MuP)
	}
	for i := range r1.PerDayForecast {
		if math.Abs(r1.PerDayForecast[i]-r2.PerDayForecast[i]) > 1e-9 {
			t.Fatalf("same seed produced different per-day forecast at index %d", i)
		}
	}
	if r1.MuP < 0 {
		t.Fatalf("expected non-negative MuP, got %v", r1.MuP)
	}
}
