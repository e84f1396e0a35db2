package fitting

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/capfit/internal/circuit"
	"github.com/RMahshie/capfit/pkg/models"
)

var (
	rc  = models.Circuit{Topology: models.TopologyRC, SourceVoltage: 3.535, Resistance: 1475}
	cr  = models.Circuit{Topology: models.TopologyCR, SourceVoltage: 3.543, Resistance: 1475}
	rcr = models.Circuit{Topology: models.TopologyRCR, SourceVoltage: 3.477, Resistance: 1475, Resistance2: 1197}

	wide   = models.Bounds{Lower: 0, Upper: 1}
	narrow = models.Bounds{Lower: 0, Upper: 1e-6}
)

func logFrequencies(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Pow(10, 2+4*float64(i)/float64(n-1))
	}
	return out
}

func synthesize(t *testing.T, c models.Circuit, freqs []float64, capacitance float64) (Model, []float64) {
	t.Helper()
	fn, err := circuit.Model(c)
	require.NoError(t, err)
	volts, err := circuit.Response(c, freqs, capacitance)
	require.NoError(t, err)
	return Model(fn), volts
}

func TestFitRecoversKnownRC(t *testing.T) {
	freqs := []float64{100, 1000, 10000, 100000, 1000000}
	model, volts := synthesize(t, rc, freqs, 100e-9)

	res, err := Fit(model, freqs, volts, wide, DefaultOptions())
	require.NoError(t, err)
	assert.InEpsilon(t, 100e-9, res.Parameter, 0.01)
}

func TestFitRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		circuit     models.Circuit
		bounds      models.Bounds
		capacitance float64
	}{
		{name: "rc 100nF", circuit: rc, bounds: wide, capacitance: 100e-9},
		{name: "rc 47nF", circuit: rc, bounds: wide, capacitance: 47e-9},
		{name: "rc 2.2uF", circuit: rc, bounds: wide, capacitance: 2.2e-6},
		{name: "cr 100nF", circuit: cr, bounds: wide, capacitance: 100e-9},
		{name: "cr 330nF", circuit: cr, bounds: wide, capacitance: 330e-9},
		{name: "rcr 100nF", circuit: rcr, bounds: narrow, capacitance: 100e-9},
		{name: "rcr 68nF", circuit: rcr, bounds: narrow, capacitance: 68e-9},
	}

	freqs := logFrequencies(41)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, volts := synthesize(t, tt.circuit, freqs, tt.capacitance)

			res, err := Fit(model, freqs, volts, tt.bounds, DefaultOptions())
			require.NoError(t, err)
			assert.InEpsilon(t, tt.capacitance, res.Parameter, 1e-6)
			assert.True(t, tt.bounds.Contains(res.Parameter))
			assert.Less(t, res.ResidualSS, 1e-18)
		})
	}
}

func TestFitStaysWithinBounds(t *testing.T) {
	freqs := logFrequencies(25)

	// the truth lies above the search interval
	model, volts := synthesize(t, rcr, freqs, 4.7e-6)
	res, err := Fit(model, freqs, volts, narrow, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, narrow.Contains(res.Parameter), "got %g", res.Parameter)
	assert.InEpsilon(t, narrow.Upper, res.Parameter, 1e-9)

	// and here below a positive lower bound
	bounds := models.Bounds{Lower: 200e-9, Upper: 1e-6}
	model, volts = synthesize(t, rc, freqs, 10e-9)
	res, err = Fit(model, freqs, volts, bounds, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, bounds.Contains(res.Parameter), "got %g", res.Parameter)
	assert.InEpsilon(t, bounds.Lower, res.Parameter, 1e-9)
}

func TestFitWithNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	freqs := logFrequencies(60)
	model, volts := synthesize(t, cr, freqs, 100e-9)
	for i := range volts {
		volts[i] += rng.NormFloat64() * 0.01
	}

	res, err := Fit(model, freqs, volts, wide, DefaultOptions())
	require.NoError(t, err)
	assert.InEpsilon(t, 100e-9, res.Parameter, 0.02)
	assert.Greater(t, res.Variance, 0.0)
	assert.False(t, math.IsInf(res.Variance, 0))
	// the truth should sit within a few standard errors
	assert.Less(t, math.Abs(res.Parameter-100e-9), 5*res.StdErr())
}

func TestFitVarianceUndefinedForSinglePoint(t *testing.T) {
	freqs := []float64{1000}
	model, volts := synthesize(t, rc, freqs, 100e-9)

	res, err := Fit(model, freqs, volts, wide, DefaultOptions())
	require.NoError(t, err)
	assert.InEpsilon(t, 100e-9, res.Parameter, 1e-6)
	assert.True(t, math.IsInf(res.Variance, 1))
}

func TestFitErrors(t *testing.T) {
	freqs := []float64{100, 1000, 10000}
	model, volts := synthesize(t, rc, freqs, 100e-9)

	tests := []struct {
		name   string
		x, y   []float64
		bounds models.Bounds
		model  Model
		want   error
	}{
		{name: "length mismatch", x: freqs, y: volts[:2], bounds: wide, model: model, want: ErrLengthMismatch},
		{name: "no data", x: nil, y: nil, bounds: wide, model: model, want: ErrInsufficientData},
		{name: "inverted bounds", x: freqs, y: volts, bounds: models.Bounds{Lower: 1, Upper: 0}, model: model, want: ErrInvalidBounds},
		{name: "empty interval", x: freqs, y: volts, bounds: models.Bounds{Lower: 1e-6, Upper: 1e-6}, model: model, want: ErrInvalidBounds},
		{name: "negative lower", x: freqs, y: volts, bounds: models.Bounds{Lower: -1, Upper: 1}, model: model, want: ErrInvalidBounds},
		{name: "infinite upper", x: freqs, y: volts, bounds: models.Bounds{Lower: 0, Upper: math.Inf(1)}, model: model, want: ErrInvalidBounds},
		{
			name:   "model never finite",
			x:      freqs,
			y:      volts,
			bounds: wide,
			model:  func(x, p float64) float64 { return math.NaN() },
			want:   ErrNonFiniteModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.model, tt.x, tt.y, tt.bounds, DefaultOptions())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFitReportsNonConvergence(t *testing.T) {
	freqs := logFrequencies(21)
	model, volts := synthesize(t, rc, freqs, 47e-9)

	opts := DefaultOptions()
	opts.MaxIterations = 1
	_, err := Fit(model, freqs, volts, wide, opts)
	assert.ErrorIs(t, err, ErrNoConvergence)
}

func TestZeroOptionsFallBackToDefaults(t *testing.T) {
	freqs := logFrequencies(11)
	model, volts := synthesize(t, rc, freqs, 150e-9)

	res, err := Fit(model, freqs, volts, wide, Options{})
	require.NoError(t, err)
	assert.InEpsilon(t, 150e-9, res.Parameter, 1e-6)
}
