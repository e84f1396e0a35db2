package models

// FrequencyPoint represents a single frequency measurement
type FrequencyPoint struct {
	Frequency float64 `json:"frequency" yaml:"frequency" doc:"Frequency in Hz"`
	Voltage   float64 `json:"voltage" yaml:"voltage" doc:"Voltage magnitude in volts"`
}

// MeasurementSeries holds the frequency response recorded for one circuit.
// Frequencies and Voltages always have the same length.
type MeasurementSeries struct {
	Topology    Topology  `json:"topology" yaml:"topology"`
	Source      string    `json:"source" yaml:"source"`
	Frequencies []float64 `json:"frequencies" yaml:"frequencies"`
	Voltages    []float64 `json:"voltages" yaml:"voltages"`
}

// Len returns the number of samples in the series
func (s *MeasurementSeries) Len() int {
	return len(s.Frequencies)
}

// Points returns the series as frequency/voltage pairs
func (s *MeasurementSeries) Points() []FrequencyPoint {
	points := make([]FrequencyPoint, len(s.Frequencies))
	for i := range s.Frequencies {
		points[i] = FrequencyPoint{Frequency: s.Frequencies[i], Voltage: s.Voltages[i]}
	}
	return points
}
