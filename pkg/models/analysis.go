package models

import (
	"time"
)

// FaradsToNanofarads converts a capacitance for display
const FaradsToNanofarads = 1e9

// FitResult represents the fitted capacitance for one circuit
type FitResult struct {
	Topology    Topology          `json:"topology" yaml:"topology"`
	Label       string            `json:"label" yaml:"label"`
	Circuit     Circuit           `json:"circuit" yaml:"circuit"`
	Bounds      Bounds            `json:"bounds" yaml:"bounds"`
	Capacitance float64           `json:"capacitance" yaml:"capacitance" doc:"Best-fit capacitance in farads"`
	Variance    float64           `json:"variance" yaml:"variance" doc:"Estimated variance of the capacitance in F^2"`
	StdErr      float64           `json:"std_err" yaml:"std_err"`
	ResidualSS  float64           `json:"residual_ss" yaml:"residual_ss" doc:"Sum of squared voltage residuals"`
	Iterations  int               `json:"iterations" yaml:"iterations"`
	Series      MeasurementSeries `json:"series" yaml:"series"`
}

// Nanofarads returns the fitted capacitance scaled to nF
func (r *FitResult) Nanofarads() float64 {
	return r.Capacitance * FaradsToNanofarads
}

// Analysis represents one complete run over the three circuits
type Analysis struct {
	ID                 string      `json:"id" yaml:"id"`
	Environment        string      `json:"environment" yaml:"environment"`
	Results            []FitResult `json:"results" yaml:"results"`
	AverageCapacitance float64     `json:"average_capacitance" yaml:"average_capacitance" doc:"Mean of the fitted capacitances in farads"`
	CreatedAt          time.Time   `json:"created_at" yaml:"created_at"`
}

// AverageNanofarads returns the mean capacitance scaled to nF
func (a *Analysis) AverageNanofarads() float64 {
	return a.AverageCapacitance * FaradsToNanofarads
}

// Result returns the fit for the given topology, or nil when absent
func (a *Analysis) Result(t Topology) *FitResult {
	for i := range a.Results {
		if a.Results[i].Topology == t {
			return &a.Results[i]
		}
	}
	return nil
}
