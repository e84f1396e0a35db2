package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"gonum.org/v1/gonum/floats"

	"github.com/RMahshie/capfit/internal/circuit"
	"github.com/RMahshie/capfit/pkg/models"
)

// Plot axes are fixed so the three figures are directly comparable.
const (
	minFrequency = 10
	maxFrequency = 1e6
	minVoltage   = 0
	maxVoltage   = 5

	curvePoints = 241
)

var (
	colorFuchsia = drawing.ColorFromHex("ff00ff")
	colorCrimson = drawing.ColorFromHex("dc143c")
	colorGrid    = drawing.ColorFromHex("d9d9d9")
)

type plotStyle struct {
	title    string
	fitColor drawing.Color
}

var plotStyles = map[models.Topology]plotStyle{
	models.TopologyRC:  {title: "RC Fit", fitColor: colorFuchsia},
	models.TopologyCR:  {title: "CR Fit", fitColor: colorCrimson},
	models.TopologyRCR: {title: "RCR Fit", fitColor: colorCrimson},
}

// PlotFile returns the file name of the plot for a topology, e.g. rc_fit.png
func PlotFile(t models.Topology) string {
	return strings.ToLower(string(t)) + "_fit.png"
}

// WritePlots renders every result of the analysis into dir and returns the
// written paths in result order.
func WritePlots(dir string, a *models.Analysis) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	paths := make([]string, 0, len(a.Results))
	for i := range a.Results {
		res := &a.Results[i]

		var buf bytes.Buffer
		if err := RenderPlot(&buf, res); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, PlotFile(res.Topology))
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// RenderPlot draws the measured samples and the fitted curve as a PNG.
// Frequencies are plotted on a log10 axis.
func RenderPlot(w io.Writer, r *models.FitResult) error {
	style, ok := plotStyles[r.Topology]
	if !ok {
		return fmt.Errorf("no plot style for topology %q", r.Topology)
	}

	var xs, ys []float64
	for i, f := range r.Series.Frequencies {
		if f <= 0 {
			continue
		}
		xs = append(xs, math.Log10(f))
		ys = append(ys, r.Series.Voltages[i])
	}

	freqs := make([]float64, curvePoints)
	floats.LogSpan(freqs, minFrequency, maxFrequency)
	fitted, err := circuit.Response(r.Circuit, freqs, r.Capacitance)
	if err != nil {
		return err
	}
	logFreqs := make([]float64, len(freqs))
	for i, f := range freqs {
		logFreqs[i] = math.Log10(f)
	}

	name := strings.ToLower(string(r.Topology))
	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    name + " fit",
			XValues: logFreqs,
			YValues: fitted,
			Style: chart.Style{
				StrokeColor: style.fitColor,
				StrokeWidth: 2,
			},
		},
	}
	if len(xs) > 0 {
		series = append(series, chart.ContinuousSeries{
			Name:    name + " data",
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    4,
				DotColor:    drawing.ColorBlack,
			},
		})
	}
	series = append(series, chart.AnnotationSeries{
		Annotations: []chart.Value2{
			{XValue: math.Log10(25), YValue: 4.85, Label: resultLine(r)},
		},
	})

	gridStyle := chart.Style{StrokeColor: colorGrid, StrokeWidth: 1}
	ch := chart.Chart{
		Title:      style.title,
		Width:      1024,
		Height:     640,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 24, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "Frequency [Hz]",
			Range:          &chart.ContinuousRange{Min: math.Log10(minFrequency), Max: math.Log10(maxFrequency)},
			Ticks:          decadeTicks(),
			GridMajorStyle: gridStyle,
		},
		YAxis: chart.YAxis{
			Name:           "Voltage [V]",
			Range:          &chart.ContinuousRange{Min: minVoltage, Max: maxVoltage},
			Ticks:          voltageTicks(),
			GridMajorStyle: gridStyle,
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render %s plot: %w", r.Topology, err)
	}
	return nil
}

func decadeTicks() []chart.Tick {
	var ticks []chart.Tick
	for exp := 1; exp <= 6; exp++ {
		label := fmt.Sprintf("10^%d", exp)
		if exp == 1 {
			label = "10"
		}
		ticks = append(ticks, chart.Tick{Value: float64(exp), Label: label})
	}
	return ticks
}

func voltageTicks() []chart.Tick {
	var ticks []chart.Tick
	for v := minVoltage; v <= maxVoltage; v++ {
		ticks = append(ticks, chart.Tick{Value: float64(v), Label: fmt.Sprintf("%d", v)})
	}
	return ticks
}
