package svi_volatility

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/go-nlopt/nlopt"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// ErrFitFailure is wrapped by every FitError.
var ErrFitFailure = errors.New("svi fit failed")

// FitError carries the optimizer's diagnostic for a fit that did not converge.
type FitError struct {
	Method      Method
	Status      string
	Message     string
	Evaluations int
}

func (e *FitError) Error() string {
	return fmt.Sprintf("svi %s fit: %s (%s, %d evaluations)", e.Method, e.Message, e.Status, e.Evaluations)
}

func (e *FitError) Unwrap() error {
	return ErrFitFailure
}

type Method string

const (
	NelderMead Method = "neldermead"
	Bobyqa     Method = "bobyqa"
)

const (
	MaxIterations = 5000
	Tolerance     = 1e-14
)

type FitSettings struct {
	Method        Method
	MaxIterations int     // major iterations (Nelder-Mead) or evaluations/10 (BOBYQA)
	Tolerance     float64 // absolute change of the objective treated as converged
	Logger        *slog.Logger
}

func (s FitSettings) withDefaults() FitSettings {
	if s.Method == "" {
		s.Method = NelderMead
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = MaxIterations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = Tolerance
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	return s
}

// Bounds is the feasible box of the fit, in SviParams.Vec order.
type Bounds struct {
	Lower [ParamsLen]float64
	Upper [ParamsLen]float64
}

// DefaultBounds widens with the data so the initial guess is always feasible.
func DefaultBounds(kList, varianceList []float64) Bounds {
	kMin, kMax := floats.Min(kList), floats.Max(kList)
	vMax := floats.Max(varianceList)
	return Bounds{
		Lower: [ParamsLen]float64{-1, 0, -0.999, math.Min(2*kMin, -1), 1e-4},
		Upper: [ParamsLen]float64{1 + 2*vMax, 10, 0.999, math.Max(2*kMax, 1), 5},
	}
}

func (b Bounds) Contains(x []float64) bool {
	for i := range x {
		if x[i] < b.Lower[i] || x[i] > b.Upper[i] {
			return false
		}
	}
	return true
}

// Fit minimises the squared residuals of the SVI variance against varianceList,
// starting from InitialGuess. A fit that exhausts its budget is a FitError.
func Fit(kList, varianceList []float64, settings FitSettings) (*SviParams, error) {
	settings = settings.withDefaults()
	if len(kList) == 0 || len(kList) != len(varianceList) {
		return nil, &FitError{Method: settings.Method, Status: "Failure", Message: fmt.Sprintf("need matching non-empty inputs, got %d and %d points", len(kList), len(varianceList))}
	}
	if floats.HasNaN(kList) || floats.HasNaN(varianceList) {
		return nil, &FitError{Method: settings.Method, Status: "Failure", Message: "non-finite input"}
	}
	bounds := DefaultBounds(kList, varianceList)

	switch settings.Method {
	case NelderMead:
		return fitNelderMead(kList, varianceList, bounds, settings)
	case Bobyqa:
		return fitBobyqa(kList, varianceList, bounds, settings)
	}
	return nil, fmt.Errorf("unknown svi fit method %q", settings.Method)
}

func fitNelderMead(kList, varianceList []float64, bounds Bounds, settings FitSettings) (*SviParams, error) {
	pro := optimize.Problem{
		Func: func(x []float64) float64 {
			// bounds
			if !bounds.Contains(x) {
				return math.MaxFloat64
			}
			return LeastSquares(x, kList, varianceList)
		},
	}
	result, err := optimize.Minimize(pro, InitialGuess.Vec(), &optimize.Settings{
		MajorIterations: settings.MaxIterations,
		FuncEvaluations: 10 * settings.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   settings.Tolerance,
			Iterations: 200,
		},
	}, &optimize.NelderMead{})
	if result == nil {
		return nil, &FitError{Method: NelderMead, Status: "Failure", Message: errString(err)}
	}

	switch result.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge, optimize.FunctionThreshold, optimize.StepConvergence:
	default:
		return nil, &FitError{Method: NelderMead, Status: result.Status.String(), Message: errString(err), Evaluations: result.Stats.FuncEvaluations}
	}
	if err != nil || result.F == math.MaxFloat64 || math.IsNaN(result.F) {
		return nil, &FitError{Method: NelderMead, Status: result.Status.String(), Message: errString(err), Evaluations: result.Stats.FuncEvaluations}
	}

	p := paramsFromVec(result.X)
	settings.Logger.Debug("svi fit",
		"method", NelderMead,
		"status", result.Status.String(),
		"sse", result.F,
		"iterations", result.Stats.MajorIterations,
		"params", *p,
	)
	return p, nil
}

func fitBobyqa(kList, varianceList []float64, bounds Bounds, settings FitSettings) (*SviParams, error) {
	opt, err := nlopt.NewNLopt(nlopt.LN_BOBYQA, ParamsLen)
	if err != nil {
		return nil, &FitError{Method: Bobyqa, Status: "Failure", Message: err.Error()}
	}
	defer opt.Destroy()

	maxEval := 10 * settings.MaxIterations
	evals := 0
	err = opt.SetMinObjective(func(x, gradient []float64) float64 {
		evals++
		return LeastSquares(x, kList, varianceList)
	})
	if err == nil {
		err = opt.SetLowerBounds(bounds.Lower[:])
	}
	if err == nil {
		err = opt.SetUpperBounds(bounds.Upper[:])
	}
	if err == nil {
		err = opt.SetMaxEval(maxEval)
	}
	if err == nil {
		err = opt.SetFtolAbs(settings.Tolerance)
	}
	if err == nil {
		err = opt.SetXtolRel(1e-12)
	}
	if err != nil {
		return nil, &FitError{Method: Bobyqa, Status: "Failure", Message: err.Error()}
	}

	x, f, err := opt.Optimize(InitialGuess.Vec())
	if err != nil {
		return nil, &FitError{Method: Bobyqa, Status: "Failure", Message: err.Error(), Evaluations: evals}
	}
	if evals >= maxEval {
		return nil, &FitError{Method: Bobyqa, Status: "MaxEvalReached", Message: "evaluation budget exhausted", Evaluations: evals}
	}
	if math.IsNaN(f) {
		return nil, &FitError{Method: Bobyqa, Status: "Failure", Message: "objective is NaN", Evaluations: evals}
	}

	p := paramsFromVec(x)
	settings.Logger.Debug("svi fit",
		"method", Bobyqa,
		"sse", f,
		"evaluations", evals,
		"params", *p,
	)
	return p, nil
}

func errString(err error) string {
	if err == nil {
		return "did not converge"
	}
	return err.Error()
}
