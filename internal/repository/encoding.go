package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/RMahshie/capfit/pkg/models"
)

// EncodeSeries converts measured samples to the JSON stored alongside a fit
func EncodeSeries(s models.MeasurementSeries) (string, error) {
	data, err := json.Marshal(s.Points())
	if err != nil {
		return "", fmt.Errorf("failed to marshal series: %w", err)
	}
	return string(data), nil
}

// DecodeSeries restores samples written by EncodeSeries
func DecodeSeries(data string, topology models.Topology, source string) (models.MeasurementSeries, error) {
	var points []models.FrequencyPoint
	if err := json.Unmarshal([]byte(data), &points); err != nil {
		return models.MeasurementSeries{}, fmt.Errorf("failed to unmarshal series: %w", err)
	}
	s := models.MeasurementSeries{
		Topology:    topology,
		Source:      source,
		Frequencies: make([]float64, len(points)),
		Voltages:    make([]float64, len(points)),
	}
	for i, p := range points {
		s.Frequencies[i] = p.Frequency
		s.Voltages[i] = p.Voltage
	}
	return s, nil
}

// NullableFloat maps non-finite values (an undefined variance) to NULL
func NullableFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// FloatOrInf is the inverse of NullableFloat
func FloatOrInf(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(1)
	}
	return v.Float64
}
