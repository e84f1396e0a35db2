package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/RMahshie/capfit/internal/circuit"
	"github.com/RMahshie/capfit/pkg/models"
)

// Exporter writes an analysis in a file format
type Exporter interface {
	Export(a *models.Analysis, w io.Writer) error
	Format() string
}

// ExporterFor picks an exporter from the extension of path
func ExporterFor(path string) (Exporter, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONExporter(), nil
	case ".yaml", ".yml":
		return NewYAMLExporter(), nil
	case ".tsv":
		return NewTSVExporter(), nil
	case ".xlsx":
		return NewXLSXExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", filepath.Ext(path))
	}
}

// WriteReport exports the analysis to path in the format implied by its extension
func WriteReport(path string, a *models.Analysis) error {
	exp, err := ExporterFor(path)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := exp.Export(a, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// document is the serialised form of an analysis. Undefined uncertainties are
// omitted since JSON has no infinity.
type document struct {
	ID                 string     `json:"id" yaml:"id"`
	Environment        string     `json:"environment" yaml:"environment"`
	CreatedAt          time.Time  `json:"created_at" yaml:"created_at"`
	AverageCapacitance float64    `json:"average_capacitance" yaml:"average_capacitance"`
	AverageNanofarads  float64    `json:"average_nf" yaml:"average_nf"`
	Results            []fitEntry `json:"results" yaml:"results"`
}

type fitEntry struct {
	Topology    models.Topology `json:"topology" yaml:"topology"`
	Label       string          `json:"label" yaml:"label"`
	Circuit     models.Circuit  `json:"circuit" yaml:"circuit"`
	Bounds      models.Bounds   `json:"bounds" yaml:"bounds"`
	Capacitance float64         `json:"capacitance" yaml:"capacitance"`
	Nanofarads  float64         `json:"capacitance_nf" yaml:"capacitance_nf"`
	Variance    *float64        `json:"variance,omitempty" yaml:"variance,omitempty"`
	StdErr      *float64        `json:"std_err,omitempty" yaml:"std_err,omitempty"`
	ResidualSS  float64         `json:"residual_ss" yaml:"residual_ss"`
	Iterations  int             `json:"iterations" yaml:"iterations"`
	Source      string          `json:"source" yaml:"source"`
	Samples     []sample        `json:"samples" yaml:"samples"`
}

type sample struct {
	Frequency float64 `json:"frequency" yaml:"frequency"`
	Measured  float64 `json:"measured" yaml:"measured"`
	Fitted    float64 `json:"fitted" yaml:"fitted"`
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newDocument(a *models.Analysis) (*document, error) {
	doc := &document{
		ID:                 a.ID,
		Environment:        a.Environment,
		CreatedAt:          a.CreatedAt,
		AverageCapacitance: a.AverageCapacitance,
		AverageNanofarads:  a.AverageNanofarads(),
		Results:            make([]fitEntry, 0, len(a.Results)),
	}

	for i := range a.Results {
		r := &a.Results[i]
		fitted, err := circuit.Response(r.Circuit, r.Series.Frequencies, r.Capacitance)
		if err != nil {
			return nil, err
		}

		entry := fitEntry{
			Topology:    r.Topology,
			Label:       r.Label,
			Circuit:     r.Circuit,
			Bounds:      r.Bounds,
			Capacitance: r.Capacitance,
			Nanofarads:  r.Nanofarads(),
			Variance:    finiteOrNil(r.Variance),
			StdErr:      finiteOrNil(r.StdErr),
			ResidualSS:  r.ResidualSS,
			Iterations:  r.Iterations,
			Source:      r.Series.Source,
			Samples:     make([]sample, r.Series.Len()),
		}
		for j := range entry.Samples {
			entry.Samples[j] = sample{
				Frequency: r.Series.Frequencies[j],
				Measured:  r.Series.Voltages[j],
				Fitted:    fitted[j],
			}
		}
		doc.Results = append(doc.Results, entry)
	}
	return doc, nil
}

// JSONExporter writes indented JSON
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Format returns the exporter format identifier
func (e *JSONExporter) Format() string {
	return "json"
}

// Export exports the analysis to JSON
func (e *JSONExporter) Export(a *models.Analysis, w io.Writer) error {
	doc, err := newDocument(a)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// YAMLExporter writes YAML
type YAMLExporter struct{}

// NewYAMLExporter creates a new YAML exporter
func NewYAMLExporter() *YAMLExporter {
	return &YAMLExporter{}
}

// Format returns the exporter format identifier
func (e *YAMLExporter) Format() string {
	return "yaml"
}

// Export exports the analysis to YAML
func (e *YAMLExporter) Export(a *models.Analysis, w io.Writer) error {
	doc, err := newDocument(a)
	if err != nil {
		return err
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return nil
}

// TSVExporter writes one tab separated row per fit plus an average row
type TSVExporter struct{}

// NewTSVExporter creates a new TSV exporter
func NewTSVExporter() *TSVExporter {
	return &TSVExporter{}
}

// Format returns the exporter format identifier
func (e *TSVExporter) Format() string {
	return "tsv"
}

var tsvHeader = []string{"label", "topology", "capacitance_f", "capacitance_nf", "std_err_nf", "residual_ss", "iterations", "points"}

// Export exports the analysis to TSV
func (e *TSVExporter) Export(a *models.Analysis, w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write(tsvHeader); err != nil {
		return err
	}
	for i := range a.Results {
		r := &a.Results[i]
		row := []string{
			r.Label,
			string(r.Topology),
			formatFloat(r.Capacitance),
			formatFloat(r.Nanofarads()),
			formatFloat(r.StdErr * models.FaradsToNanofarads),
			formatFloat(r.ResidualSS),
			strconv.Itoa(r.Iterations),
			strconv.Itoa(r.Series.Len()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	avg := []string{"C average", "", formatFloat(a.AverageCapacitance), formatFloat(a.AverageNanofarads()), "", "", "", ""}
	if err := cw.Write(avg); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// XLSXExporter writes a workbook with a Summary sheet and one sheet of samples
// per circuit
type XLSXExporter struct{}

// NewXLSXExporter creates a new XLSX exporter
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Format returns the exporter format identifier
func (e *XLSXExporter) Format() string {
	return "xlsx"
}

// Export exports the analysis to an Excel workbook
func (e *XLSXExporter) Export(a *models.Analysis, w io.Writer) error {
	doc, err := newDocument(a)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	summary := "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return err
	}

	header := []any{"Label", "Topology", "Capacitance [F]", "Capacitance [nF]", "Std. error [nF]", "Residual SS", "Iterations", "Points"}
	if err := f.SetSheetRow(summary, "A1", &header); err != nil {
		return err
	}

	row := 2
	for _, entry := range doc.Results {
		values := []any{
			entry.Label,
			string(entry.Topology),
			entry.Capacitance,
			entry.Nanofarads,
			nil,
			entry.ResidualSS,
			entry.Iterations,
			len(entry.Samples),
		}
		if entry.StdErr != nil {
			values[4] = *entry.StdErr * models.FaradsToNanofarads
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(summary, cell, &values); err != nil {
			return err
		}
		row++
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	avg := []any{"C average", nil, doc.AverageCapacitance, doc.AverageNanofarads}
	if err := f.SetSheetRow(summary, cell, &avg); err != nil {
		return err
	}

	for _, entry := range doc.Results {
		sheet := string(entry.Topology)
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		cols := []any{"Frequency [Hz]", "Measured [V]", "Fitted [V]"}
		if err := f.SetSheetRow(sheet, "A1", &cols); err != nil {
			return err
		}
		for i, s := range entry.Samples {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			values := []any{s.Frequency, s.Measured, s.Fitted}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
