// Package circuit evaluates the transfer-function magnitude of the measured
// filter circuits as a function of frequency and capacitance.
package circuit

import (
	"errors"
	"fmt"
	"math"

	"github.com/RMahshie/capfit/pkg/models"
)

var ErrInvalidCircuit = errors.New("invalid circuit")

// TransferFunction maps a frequency in Hz and a capacitance in farads to the
// output voltage magnitude
type TransferFunction func(frequency, capacitance float64) float64

// Validate checks that the circuit constants are usable
func Validate(c models.Circuit) error {
	if !c.Topology.Valid() {
		return fmt.Errorf("%w: unknown topology %q", ErrInvalidCircuit, c.Topology)
	}
	if !(c.SourceVoltage > 0) || math.IsInf(c.SourceVoltage, 0) {
		return fmt.Errorf("%w: %s source voltage must be positive, got %g", ErrInvalidCircuit, c.Topology, c.SourceVoltage)
	}
	if !(c.Resistance > 0) || math.IsInf(c.Resistance, 0) {
		return fmt.Errorf("%w: %s resistance must be positive, got %g", ErrInvalidCircuit, c.Topology, c.Resistance)
	}
	if c.Topology == models.TopologyRCR && (!(c.Resistance2 > 0) || math.IsInf(c.Resistance2, 0)) {
		return fmt.Errorf("%w: RCR second resistance must be positive, got %g", ErrInvalidCircuit, c.Resistance2)
	}
	return nil
}

// Model returns the transfer function of the circuit
func Model(c models.Circuit) (TransferFunction, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}
	switch c.Topology {
	case models.TopologyRC:
		return func(f, capacitance float64) float64 {
			return LowPass(c.SourceVoltage, c.Resistance, f, capacitance)
		}, nil
	case models.TopologyCR:
		return func(f, capacitance float64) float64 {
			return HighPass(c.SourceVoltage, c.Resistance, f, capacitance)
		}, nil
	default:
		return func(f, capacitance float64) float64 {
			return Bridge(c.SourceVoltage, c.Resistance, c.Resistance2, f, capacitance)
		}, nil
	}
}

// Response evaluates the circuit at every frequency
func Response(c models.Circuit, frequencies []float64, capacitance float64) ([]float64, error) {
	fn, err := Model(c)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(frequencies))
	for i, f := range frequencies {
		out[i] = fn(f, capacitance)
	}
	return out, nil
}

func omega(f float64) float64 {
	return 2 * math.Pi * f
}

// LowPass is the RC magnitude Vsrc / sqrt(1 + (wCR)^2).
func LowPass(vsrc, r, f, c float64) float64 {
	x := omega(f) * c * r
	return vsrc / math.Hypot(1, x)
}

// HighPass is the CR magnitude Vsrc / sqrt(1 + 1/(wCR)^2), written as
// Vsrc*x / sqrt(1 + x^2) so that x = 0 is finite.
func HighPass(vsrc, r, f, c float64) float64 {
	x := omega(f) * c * r
	if math.IsInf(x, 0) {
		return vsrc
	}
	return vsrc * math.Abs(x) / math.Hypot(1, x)
}

// Bridge is the RCR magnitude
//
//	Vsrc*R2*sqrt((R^2 + 1/(wC)^2) / ((R*R2)^2 + (R+R2)^2/(wC)^2))
//
// multiplied through by (wC)^2.
func Bridge(vsrc, r, r2, f, c float64) float64 {
	wc := omega(f) * c
	if math.IsInf(wc, 0) {
		return vsrc
	}
	num := math.Hypot(wc*r, 1)
	den := math.Hypot(wc*r*r2, r+r2)
	return vsrc * r2 * num / den
}
