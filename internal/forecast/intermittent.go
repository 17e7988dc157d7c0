package forecast

import (
	"fmt"
	"math"
)

// IntermittentModel is the fitted state of Croston, SBA, or TSB.
type IntermittentModel struct {
	Method    string // "croston" | "sba" | "tsb"
	Alpha     float64
	Pt        float64
	Zt        float64
	Bt        float64 // TSB only
	HasBt     bool
	NNonzero  int
	NTotal    int
	NCensored int
}

func excludeSet(indices []int) map[int]bool {
	set := make(map[int]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}
	return set
}

func cleanSeries(series []float64, exclude []int) []float64 {
	skip := excludeSet(exclude)
	out := make([]float64, 0, len(series))
	for i, v := range series {
		if !skip[i] {
			out = append(out, v)
		}
	}
	return out
}

// FitCroston fits Croston's method: separate exponential smoothing of
// the interval between non-zero demands (p_t) and their size (z_t).
func FitCroston(series []float64, alpha float64, exclude []int) (IntermittentModel, error) {
	if alpha <= 0 || alpha > 1 {
		return IntermittentModel{}, fmt.Errorf("alpha must be in (0, 1], got %v", alpha)
	}

	clean := cleanSeries(series, exclude)
	if len(clean) == 0 {
		return IntermittentModel{}, fmt.Errorf("no observations after censoring")
	}

	var nonzeroIdx []int
	for i, v := range clean {
		if v > 0 {
			nonzeroIdx = append(nonzeroIdx, i)
		}
	}

	if len(nonzeroIdx) == 0 {
		return IntermittentModel{
			Method: "croston", Alpha: alpha,
			Pt: float64(len(clean)), Zt: 0,
			NTotal: len(clean), NCensored: len(exclude),
		}, nil
	}

	first := nonzeroIdx[0]
	pt := float64(first + 1)
	zt := clean[first]
	last := first

	for _, idx := range nonzeroIdx[1:] {
		interval := float64(idx - last)
		pt = alpha*interval + (1-alpha)*pt
		zt = alpha*clean[idx] + (1-alpha)*zt
		last = idx
	}

	return IntermittentModel{
		Method: "croston", Alpha: alpha,
		Pt: math.Max(pt, 0.1), Zt: zt,
		NNonzero: len(nonzeroIdx), NTotal: len(clean), NCensored: len(exclude),
	}, nil
}

// FitSBA fits SBA, identical state to Croston with the bias correction
// applied at prediction time.
func FitSBA(series []float64, alpha float64, exclude []int) (IntermittentModel, error) {
	m, err := FitCroston(series, alpha, exclude)
	if err != nil {
		return IntermittentModel{}, err
	}
	m.Method = "sba"
	return m, nil
}

// FitTSB fits TSB: an exponentially smoothed probability of demand
// occurrence (b_t) combined with a smoothed demand size (z_t).
func FitTSB(series []float64, alphaDemand, alphaProbability float64, exclude []int) (IntermittentModel, error) {
	if alphaDemand <= 0 || alphaDemand > 1 {
		return IntermittentModel{}, fmt.Errorf("alpha_demand must be in (0, 1], got %v", alphaDemand)
	}
	if alphaProbability <= 0 || alphaProbability > 1 {
		return IntermittentModel{}, fmt.Errorf("alpha_probability must be in (0, 1], got %v", alphaProbability)
	}

	clean := cleanSeries(series, exclude)
	if len(clean) == 0 {
		return IntermittentModel{}, fmt.Errorf("no observations after censoring")
	}

	var nNonzero int
	for _, v := range clean {
		if v > 0 {
			nNonzero++
		}
	}
	if nNonzero == 0 {
		return IntermittentModel{
			Method: "tsb", Alpha: alphaDemand,
			Bt: 0, HasBt: true,
			NTotal: len(clean), NCensored: len(exclude),
		}, nil
	}

	var firstNonzero int
	for i, v := range clean {
		if v > 0 {
			firstNonzero = i
			break
		}
	}
	zt := clean[firstNonzero]
	bt := 0.0
	if clean[0] > 0 {
		bt = 1.0
	}

	for t := 1; t < len(clean); t++ {
		occurrence := 0.0
		if clean[t] > 0 {
			occurrence = 1.0
		}
		bt = alphaProbability*occurrence + (1-alphaProbability)*bt
		if clean[t] > 0 {
			zt = alphaDemand*clean[t] + (1-alphaDemand)*zt
		}
	}

	return IntermittentModel{
		Method: "tsb", Alpha: alphaDemand,
		Zt: zt, Bt: math.Max(bt, 0.0001), HasBt: true,
		NNonzero: nNonzero, NTotal: len(clean), NCensored: len(exclude),
	}, nil
}

// PredictDaily returns the fitted model's expected daily demand.
func PredictDaily(m IntermittentModel) float64 {
	switch m.Method {
	case "croston":
		if m.Pt <= 0 {
			return 0
		}
		return m.Zt / m.Pt
	case "sba":
		if m.Pt <= 0 {
			return 0
		}
		return (1.0 - m.Alpha/2.0) * m.Zt / m.Pt
	case "tsb":
		if !m.HasBt {
			return 0
		}
		return m.Bt * m.Zt
	default:
		return 0
	}
}

// PredictPDays scales the daily forecast to a P-day protection period.
func PredictPDays(m IntermittentModel, p int) float64 {
	return PredictDaily(m) * float64(p)
}

// IntermittentClassification is the result of applying the ADI/CV²
// intermittency test.
type IntermittentClassification struct {
	IsIntermittent bool
	ADI            float64
	CV2            float64
	NNonzero       int
	NTotal         int
	NCensored      int
}

// ClassifyIntermittent tests a demand series against the classic
// Syntetos ADI/CV² thresholds (defaults 1.32 / 0.49).
func ClassifyIntermittent(series []float64, adiThreshold, cv2Threshold float64, exclude []int) IntermittentClassification {
	clean := cleanSeries(series, exclude)
	if len(clean) == 0 {
		return IntermittentClassification{NCensored: len(exclude)}
	}

	var nonzero []float64
	for _, v := range clean {
		if v > 0 {
			nonzero = append(nonzero, v)
		}
	}
	nTotal := len(clean)

	if len(nonzero) == 0 {
		return IntermittentClassification{
			IsIntermittent: true, ADI: float64(nTotal), NTotal: nTotal, NCensored: len(exclude),
		}
	}

	adi := float64(nTotal) / float64(len(nonzero))

	var cv2 float64
	if len(nonzero) >= 2 {
		mean := meanOf(nonzero)
		if mean != 0 {
			sd := sampleStdev(nonzero, mean)
			cv := sd / mean
			cv2 = cv * cv
		}
	}

	return IntermittentClassification{
		IsIntermittent: adi > adiThreshold && cv2 > cv2Threshold,
		ADI:            adi,
		CV2:            cv2,
		NNonzero:       len(nonzero),
		NTotal:         nTotal,
		NCensored:      len(exclude),
	}
}

// BacktestResult is the performance of one intermittent method measured
// via rolling-origin backtest.
type BacktestResult struct {
	Method        string
	WMAPE         float64
	Bias          float64
	NForecasts    int
	NObservations int
}

// BacktestMethod evaluates method by fitting on an expanding window and
// comparing one-step-ahead forecasts to actuals over the last
// testPeriods observations.
func BacktestMethod(series []float64, method string, testPeriods int, alpha float64, exclude []int) (BacktestResult, error) {
	if len(series) < testPeriods+7 {
		return BacktestResult{}, fmt.Errorf("series too short for backtest: %d < %d", len(series), testPeriods+7)
	}

	skip := excludeSet(exclude)

	var errs, actuals []float64
	var nForecasts int

	for testIdx := len(series) - testPeriods; testIdx < len(series); testIdx++ {
		if skip[testIdx] {
			continue
		}
		train := series[:testIdx]
		var trainExclude []int
		for i := range skip {
			if i < testIdx {
				trainExclude = append(trainExclude, i)
			}
		}

		var model IntermittentModel
		var err error
		switch method {
		case "croston":
			model, err = FitCroston(train, alpha, trainExclude)
		case "sba":
			model, err = FitSBA(train, alpha, trainExclude)
		case "tsb":
			model, err = FitTSB(train, alpha, alpha, trainExclude)
		default:
			return BacktestResult{}, fmt.Errorf("unknown method: %s", method)
		}
		if err != nil {
			continue
		}

		forecast := PredictDaily(model)
		actual := series[testIdx]
		actuals = append(actuals, actual)
		errs = append(errs, forecast-actual)
		nForecasts++
	}

	if len(actuals) == 0 {
		return BacktestResult{Method: method, WMAPE: 999.0}, nil
	}

	var totalActual float64
	for _, a := range actuals {
		totalActual += a
	}

	wmape := 999.0
	if totalActual != 0 {
		var sumAbsErr float64
		for _, e := range errs {
			sumAbsErr += math.Abs(e)
		}
		wmape = sumAbsErr / totalActual
	}

	return BacktestResult{
		Method:        method,
		WMAPE:         wmape,
		Bias:          meanOf(errs),
		NForecasts:    nForecasts,
		NObservations: len(actuals),
	}, nil
}

// SelectBestMethod backtests each candidate method and returns the one
// with the lowest WMAPE.
func SelectBestMethod(series []float64, candidates []string, testPeriods int, alpha float64, exclude []int) (best string, results map[string]BacktestResult) {
	if len(candidates) == 0 {
		candidates = []string{"sba", "tsb"}
	}

	results = make(map[string]BacktestResult, len(candidates))
	for _, method := range candidates {
		result, err := BacktestMethod(series, method, testPeriods, alpha, exclude)
		if err != nil {
			result = BacktestResult{Method: method, WMAPE: 999.0, Bias: 999.0}
		}
		results[method] = result
	}

	bestWMAPE := math.Inf(1)
	for _, method := range candidates {
		if results[method].WMAPE < bestWMAPE {
			bestWMAPE = results[method].WMAPE
			best = method
		}
	}
	return best, results
}

// EstimateSigmaPRolling estimates the P-day forecast-error standard
// deviation by aggregating one-step-ahead errors from an intermittent
// model into P-day windows. Falls back to z_t*sqrt(P) when there isn't
// enough history.
func EstimateSigmaPRolling(series []float64, model IntermittentModel, p int, exclude []int) float64 {
	fallback := func() float64 {
		if model.Zt > 0 {
			return model.Zt * math.Sqrt(float64(p))
		}
		return 1.0
	}

	if len(series) < p+7 {
		return fallback()
	}

	skip := excludeSet(exclude)

	var errs []float64
	for t := 7; t < len(series); t++ {
		if skip[t] {
			continue
		}
		train := series[:t]
		var trainExclude []int
		for i := range skip {
			if i < t {
				trainExclude = append(trainExclude, i)
			}
		}

		var m IntermittentModel
		var err error
		switch model.Method {
		case "croston":
			m, err = FitCroston(train, model.Alpha, trainExclude)
		case "sba":
			m, err = FitSBA(train, model.Alpha, trainExclude)
		case "tsb":
			m, err = FitTSB(train, model.Alpha, model.Alpha, trainExclude)
		default:
			continue
		}
		if err != nil {
			continue
		}
		errs = append(errs, PredictDaily(m)-series[t])
	}

	if len(errs) < p {
		return fallback()
	}

	var aggregated []float64
	for i := 0; i <= len(errs)-p; i++ {
		var sum float64
		for _, e := range errs[i : i+p] {
			sum += e
		}
		aggregated = append(aggregated, sum)
	}
	if len(aggregated) == 0 {
		return fallback()
	}

	sigma := populationStdev(aggregated)
	return math.Max(sigma, 0.1)
}

// DetectObsolescence flags a declining-demand pattern: the mean of the
// most recent window is less than 70% of the mean of the window before
// it. Requires at least 2*window clean observations.
func DetectObsolescence(series []float64, window int, exclude []int) bool {
	clean := cleanSeries(series, exclude)
	if len(clean) < 2*window {
		return false
	}

	oldAvg := meanOf(clean[len(clean)-2*window : len(clean)-window])
	recentAvg := meanOf(clean[len(clean)-window:])

	if oldAvg == 0 {
		return false
	}
	return recentAvg < 0.7*oldAvg
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleStdev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		sumSq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

func populationStdev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := meanOf(values)
	var sumSq float64
	for _, v := range values {
		sumSq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sumSq / float64(len(values)))
}
