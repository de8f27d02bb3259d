package analysis

import (
	"github.com/revlift/revlift/internal/models"
)

// correlationFactors maps max horizon -> factor per correlation bucket
// (<0.4, <0.6, <0.7, <0.8, >=0.8). The breakpoints are hand-calibrated
// business constants: weaker correlation means more headroom for
// horizon-aware optimization, so the factor grows as correlation
// drops. Must stay a literal table; smoothing it would move the
// calibration.
var correlationFactors = map[int][5]float64{
	60:  {0.10, 0.08, 0.03, 0.01, 0},
	90:  {0.12, 0.10, 0.04, 0.01, 0},
	180: {0.14, 0.12, 0.04, 0.01, 0},
}

// CorrelationFactor resolves the uplift factor for a max horizon and
// correlation strength. Max horizons outside the table fail rather
// than interpolate.
func CorrelationFactor(maxHorizon int, correlation float64) (float64, error) {
	row, ok := correlationFactors[maxHorizon]
	if !ok {
		return 0, &UnsupportedHorizonError{MaxHorizon: maxHorizon}
	}
	switch {
	case correlation < 0.4:
		return row[0], nil
	case correlation < 0.6:
		return row[1], nil
	case correlation < 0.7:
		return row[2], nil
	case correlation < 0.8:
		return row[3], nil
	default:
		return row[4], nil
	}
}

// SpendFactor maps monthly ad spend to its uplift factor. The
// >200k -> 0.03 / >100k -> 0.05 ordering looks inverted but matches
// the shipped calibration.
func SpendFactor(monthlySpend float64) float64 {
	switch {
	case monthlySpend > 200_000:
		return 0.03
	case monthlySpend > 100_000:
		return 0.05
	default:
		return 0
	}
}

// Scenario is the projected outcome at one spend level.
type Scenario struct {
	MonthlySpend     float64 `json:"monthly_spend"`
	SpendFactor      float64 `json:"spend_factor"`
	ProjectedROAS    float64 `json:"projected_roas"`
	CurrentMonthly   float64 `json:"current_return_monthly"`
	CurrentAnnual    float64 `json:"current_return_annual"`
	ProjectedMonthly float64 `json:"projected_return_monthly"`
	ProjectedAnnual  float64 `json:"projected_return_annual"`
	UpliftMonthly    float64 `json:"uplift_monthly"`
	UpliftAnnual     float64 `json:"uplift_annual"`
	UpliftPercent    float64 `json:"uplift_percent"`
}

// UpliftEstimate is the full output of the estimator: one scenario at
// the minimum and one at the maximum of the analyst's spend bracket.
type UpliftEstimate struct {
	SpendBracket      string   `json:"spend_bracket"`
	ROASWindow        string   `json:"roas_window"`
	RegularROAS       float64  `json:"regular_roas"`
	MaxHorizon        int      `json:"max_horizon"`
	ChosenHorizon     *int     `json:"chosen_horizon,omitempty"`
	Correlation       float64  `json:"correlation"`
	CorrelationFactor float64  `json:"correlation_factor"`
	BaselineFactor    float64  `json:"baseline_factor"`
	Min               Scenario `json:"min"`
	Max               Scenario `json:"max"`
}

// EstimateUplift maps the horizon selection and business parameters
// through the factor tables into projected returns.
//
// A selection that found no horizon above threshold enters the table
// as correlation 0: the data shows no early signal, which is exactly
// the <0.4 bucket's meaning. The projected ROAS multiplier is
// regular * (1 + baseline + spend + correlation factors), applied to
// both bounds of the spend bracket at monthly and annualized cadence.
func EstimateUplift(sel HorizonSelection, params models.BusinessParameters, maxHorizon int, baseline float64) (*UpliftEstimate, error) {
	bracket, ok := models.SpendRangeFor(params.SpendBracket)
	if !ok {
		return nil, ErrUnknownSpendBracket
	}
	if !models.ValidROASWindow(params.ROASWindow) {
		return nil, ErrUnknownROASWindow
	}

	corr := 0.0
	if sel.Found {
		corr = sel.Correlation
	}

	corrFactor, err := CorrelationFactor(maxHorizon, corr)
	if err != nil {
		return nil, err
	}

	est := &UpliftEstimate{
		SpendBracket:      params.SpendBracket,
		ROASWindow:        params.ROASWindow,
		RegularROAS:       params.RegularROAS,
		MaxHorizon:        maxHorizon,
		Correlation:       corr,
		CorrelationFactor: corrFactor,
		BaselineFactor:    baseline,
		Min:               projectScenario(bracket.Min, params.RegularROAS, baseline, corrFactor),
		Max:               projectScenario(bracket.Max, params.RegularROAS, baseline, corrFactor),
	}
	if sel.Found {
		h := sel.Horizon
		est.ChosenHorizon = &h
	}
	return est, nil
}

func projectScenario(monthlySpend, regularROAS, baseline, corrFactor float64) Scenario {
	spendFactor := SpendFactor(monthlySpend)
	projectedROAS := regularROAS * (1 + baseline + spendFactor + corrFactor)

	s := Scenario{
		MonthlySpend:     monthlySpend,
		SpendFactor:      spendFactor,
		ProjectedROAS:    projectedROAS,
		CurrentMonthly:   monthlySpend * regularROAS,
		CurrentAnnual:    monthlySpend * 12 * regularROAS,
		ProjectedMonthly: monthlySpend * projectedROAS,
		ProjectedAnnual:  monthlySpend * 12 * projectedROAS,
	}
	s.UpliftMonthly = s.ProjectedMonthly - s.CurrentMonthly
	s.UpliftAnnual = s.ProjectedAnnual - s.CurrentAnnual
	if s.CurrentMonthly > 0 {
		s.UpliftPercent = s.UpliftMonthly / s.CurrentMonthly * 100
	}
	return s
}
