// Package fitting recovers a single circuit parameter from measured data by
// bounded nonlinear least squares.
package fitting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/RMahshie/capfit/pkg/models"
)

var (
	ErrInvalidBounds    = errors.New("invalid parameter bounds")
	ErrLengthMismatch   = errors.New("frequency and voltage lengths differ")
	ErrInsufficientData = errors.New("no data points to fit")
	ErrNonFiniteModel   = errors.New("model is not finite anywhere inside the bounds")
	ErrNoConvergence    = errors.New("optimal parameter not found")
)

// Model is the function being fitted: x is the independent variable, p the
// free parameter.
type Model func(x, p float64) float64

// Options controls the solver. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	// ScanPerDecade is the number of log-spaced start candidates per decade.
	ScanPerDecade int
	// ScanDecades is how far below the upper bound the scan reaches when the
	// lower bound is zero.
	ScanDecades int
	MaxIterations int
	// XTol stops when the relative parameter step falls below it.
	XTol float64
	// FTol stops when the relative reduction of the cost falls below it.
	FTol float64
	// Step is the relative finite-difference step.
	Step float64
}

// DefaultOptions returns the solver settings used by the analysis pipeline
func DefaultOptions() Options {
	return Options{
		ScanPerDecade: 20,
		ScanDecades:   12,
		MaxIterations: 200,
		XTol:          1e-12,
		FTol:          1e-15,
		Step:          1e-6,
	}
}

// Result is the outcome of a fit
type Result struct {
	Parameter  float64
	Variance   float64
	ResidualSS float64
	Iterations int
}

// StdErr returns the one-sigma uncertainty of the parameter
func (r *Result) StdErr() float64 {
	return math.Sqrt(r.Variance)
}

type problem struct {
	model  Model
	x, y   []float64
	bounds models.Bounds
	opts   Options
	floor  float64
	resid  []float64
}

// Fit finds the parameter within bounds that minimises the sum of squared
// differences between model(x[i], p) and y[i].
func Fit(model Model, x, y []float64, bounds models.Bounds, opts Options) (*Result, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d frequencies, %d voltages", ErrLengthMismatch, len(x), len(y))
	}
	if len(x) == 0 {
		return nil, ErrInsufficientData
	}
	if err := checkBounds(bounds); err != nil {
		return nil, err
	}
	if opts.MaxIterations <= 0 {
		opts = DefaultOptions()
	}

	pr := &problem{
		model:  model,
		x:      x,
		y:      y,
		bounds: bounds,
		opts:   opts,
		floor:  scanFloor(bounds, opts.ScanDecades),
		resid:  make([]float64, len(x)),
	}

	start, cost, err := pr.scan()
	if err != nil {
		return nil, err
	}
	p, cost, iters, err := pr.refine(start, cost)
	if err != nil {
		return nil, err
	}

	return &Result{
		Parameter:  p,
		Variance:   pr.variance(p, cost),
		ResidualSS: cost,
		Iterations: iters,
	}, nil
}

func checkBounds(b models.Bounds) error {
	switch {
	case math.IsNaN(b.Lower) || math.IsNaN(b.Upper) || math.IsInf(b.Lower, 0) || math.IsInf(b.Upper, 0):
		return fmt.Errorf("%w: %v is not finite", ErrInvalidBounds, b)
	case b.Lower < 0:
		return fmt.Errorf("%w: lower bound %g is negative", ErrInvalidBounds, b.Lower)
	case b.Lower >= b.Upper:
		return fmt.Errorf("%w: lower bound %g is not below upper bound %g", ErrInvalidBounds, b.Lower, b.Upper)
	}
	return nil
}

// scanFloor is the smallest positive value probed by the start scan
func scanFloor(b models.Bounds, decades int) float64 {
	if b.Lower > 0 {
		return b.Lower
	}
	return b.Upper * math.Pow(10, -float64(decades))
}

// cost fills pr.resid for p and returns the residual sum of squares
func (pr *problem) cost(p float64) float64 {
	for i, xi := range pr.x {
		pr.resid[i] = pr.model(xi, p) - pr.y[i]
	}
	return floats.Dot(pr.resid, pr.resid)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// scan evaluates the cost on a log-spaced grid over the bounds and returns
// the best candidate.
func (pr *problem) scan() (float64, float64, error) {
	decades := math.Log10(pr.bounds.Upper / pr.floor)
	n := int(math.Ceil(decades*float64(pr.opts.ScanPerDecade))) + 1
	if n < 2 {
		n = 2
	}
	candidates := make([]float64, n)
	floats.LogSpan(candidates, pr.floor, pr.bounds.Upper)
	if pr.bounds.Lower == 0 {
		candidates = append([]float64{0}, candidates...)
	}

	best, bestCost := math.NaN(), math.Inf(1)
	for _, p := range candidates {
		p = pr.clamp(p)
		c := pr.cost(p)
		if finite(c) && c < bestCost {
			best, bestCost = p, c
		}
	}
	if math.IsNaN(best) {
		return 0, 0, ErrNonFiniteModel
	}
	return best, bestCost, nil
}

func (pr *problem) clamp(p float64) float64 {
	return math.Max(pr.bounds.Lower, math.Min(pr.bounds.Upper, p))
}

// jacobian returns d model(x[i], p) / dp. One-sided differences are used
// when a central stencil would leave the bounds.
func (pr *problem) jacobian(p float64) []float64 {
	h := pr.opts.Step * math.Max(math.Abs(p), pr.floor)
	settings := &fd.Settings{Formula: fd.Central, Step: h}
	switch {
	case p-h < pr.bounds.Lower:
		settings.Formula = fd.Forward
	case p+h > pr.bounds.Upper:
		settings.Formula = fd.Backward
	}

	jac := make([]float64, len(pr.x))
	for i, xi := range pr.x {
		xi := xi
		jac[i] = fd.Derivative(func(q float64) float64 { return pr.model(xi, q) }, p, settings)
	}
	return jac
}

// refine runs a projected Levenberg-Marquardt iteration from p.
func (pr *problem) refine(p, cost float64) (float64, float64, int, error) {
	lambda := 1e-3
	for iter := 1; iter <= pr.opts.MaxIterations; iter++ {
		if cost == 0 {
			return p, cost, iter - 1, nil
		}
		pr.cost(p)
		jac := pr.jacobian(p)
		g := floats.Dot(jac, pr.resid)
		h := floats.Dot(jac, jac)
		if g == 0 || h == 0 || !finite(g) || !finite(h) {
			return p, cost, iter - 1, nil
		}
		// undamped Gauss-Newton step
		if math.Abs(g/h) <= pr.opts.XTol*math.Max(math.Abs(p), pr.floor) {
			return p, cost, iter - 1, nil
		}

		accepted := false
		var next, nextCost, damping float64
		for lambda <= 1e16 {
			next = pr.clamp(p - g/(h*(1+lambda)))
			nextCost = pr.cost(next)
			if finite(nextCost) && nextCost < cost {
				accepted = true
				damping = lambda
				lambda = math.Max(lambda/10, 1e-12)
				break
			}
			lambda *= 10
		}
		if !accepted {
			// no downhill step exists inside the bounds
			return p, cost, iter, nil
		}

		reduction := cost - nextCost
		prev := cost
		p, cost = next, nextCost
		if damping < 1 && reduction <= pr.opts.FTol*prev {
			return p, cost, iter, nil
		}
	}
	return 0, 0, pr.opts.MaxIterations, fmt.Errorf("%w after %d iterations", ErrNoConvergence, pr.opts.MaxIterations)
}

// variance estimates var(p) = s^2 / (J'J) with s^2 = SSR / (n - 1)
func (pr *problem) variance(p, cost float64) float64 {
	dof := len(pr.x) - 1
	if dof <= 0 {
		return math.Inf(1)
	}
	jac := pr.jacobian(p)
	h := floats.Dot(jac, jac)
	if h == 0 || !finite(h) {
		return math.Inf(1)
	}
	return cost / float64(dof) / h
}
