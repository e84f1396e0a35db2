package models

import "fmt"

// Topology identifies one of the measured filter circuits
type Topology string

const (
	TopologyRC  Topology = "RC"  // series resistor, capacitor to ground (low-pass)
	TopologyCR  Topology = "CR"  // series capacitor, resistor to ground (high-pass)
	TopologyRCR Topology = "RCR" // resistor bridge with the capacitor across R
)

// Topologies lists every supported topology in reporting order
var Topologies = []Topology{TopologyRC, TopologyCR, TopologyRCR}

// Label returns the short name used when reporting the fitted capacitance
func (t Topology) Label() string {
	switch t {
	case TopologyRC:
		return "C1"
	case TopologyCR:
		return "C2"
	case TopologyRCR:
		return "C3"
	default:
		return string(t)
	}
}

// Valid reports whether t is a known topology
func (t Topology) Valid() bool {
	switch t {
	case TopologyRC, TopologyCR, TopologyRCR:
		return true
	}
	return false
}

// Circuit holds the known constants of a measured circuit
type Circuit struct {
	Topology      Topology `json:"topology" yaml:"topology"`
	SourceVoltage float64  `json:"source_voltage" yaml:"source_voltage" doc:"Excitation amplitude in volts"`
	Resistance    float64  `json:"resistance" yaml:"resistance" doc:"R in ohms"`
	Resistance2   float64  `json:"resistance_2,omitempty" yaml:"resistance_2,omitempty" doc:"Second resistor in ohms (RCR only)"`
}

// Bounds is the inclusive capacitance search interval in farads
type Bounds struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// Contains reports whether c lies inside the interval
func (b Bounds) Contains(c float64) bool {
	return b.Lower <= c && c <= b.Upper
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%g, %g]", b.Lower, b.Upper)
}
