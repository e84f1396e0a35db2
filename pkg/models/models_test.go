package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopologyLabels(t *testing.T) {
	assert.Equal(t, []string{"C1", "C2", "C3"}, []string{TopologyRC.Label(), TopologyCR.Label(), TopologyRCR.Label()})
	assert.True(t, TopologyRCR.Valid())
	assert.False(t, Topology("LC").Valid())
}

func TestBounds(t *testing.T) {
	b := Bounds{Lower: 0, Upper: 1e-6}
	assert.True(t, b.Contains(0))
	assert.True(t, b.Contains(1e-6))
	assert.False(t, b.Contains(1.1e-6))
	assert.Equal(t, "[0, 1e-06]", b.String())
}

func TestAnalysisResult(t *testing.T) {
	a := Analysis{
		Results:            []FitResult{{Topology: TopologyRC, Capacitance: 100e-9}},
		AverageCapacitance: 100e-9,
	}
	assert.Equal(t, 100.0, a.Result(TopologyRC).Nanofarads())
	assert.Nil(t, a.Result(TopologyRCR))
	assert.Equal(t, 100.0, a.AverageNanofarads())
}
