// Package loader reads two-column frequency response tables.
package loader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/RMahshie/capfit/pkg/models"
)

var (
	ErrNoData              = errors.New("no data rows")
	ErrUnsortedFrequencies = errors.New("frequencies are not strictly increasing")
)

// ParseError reports a malformed line in a data file
type ParseError struct {
	Source string
	Line   int
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s:%d: %s: %v", e.Source, e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Source opens named data tables
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirSource reads data files from a local directory
type DirSource struct {
	Dir string
}

// NewDirSource creates a source rooted at dir
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// Open opens dir/name
func (s *DirSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.Dir, name))
}

// Options controls validation of loaded tables
type Options struct {
	// StrictOrder rejects tables whose frequencies are not strictly increasing
	StrictOrder bool
}

// Load reads the named table from src
func Load(ctx context.Context, src Source, name string, topology models.Topology, opts Options) (*models.MeasurementSeries, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer rc.Close()

	series, err := Parse(rc, name, opts)
	if err != nil {
		return nil, err
	}
	series.Topology = topology
	return series, nil
}

// Parse reads whitespace separated (frequency, voltage) rows. Blank lines and
// lines starting with '#' are skipped; every other line must hold exactly two
// numbers.
func Parse(r io.Reader, name string, opts Options) (*models.MeasurementSeries, error) {
	series := &models.MeasurementSeries{Source: name}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, &ParseError{
				Source: name,
				Line:   line,
				Msg:    fmt.Sprintf("expected 2 columns, found %d", len(fields)),
			}
		}

		freq, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, &ParseError{Source: name, Line: line, Msg: "invalid frequency", Err: err}
		}
		volt, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, &ParseError{Source: name, Line: line, Msg: "invalid voltage", Err: err}
		}

		if opts.StrictOrder && len(series.Frequencies) > 0 && freq <= series.Frequencies[len(series.Frequencies)-1] {
			return nil, &ParseError{Source: name, Line: line, Msg: fmt.Sprintf("frequency %g", freq), Err: ErrUnsortedFrequencies}
		}

		series.Frequencies = append(series.Frequencies, freq)
		series.Voltages = append(series.Voltages, volt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if series.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoData)
	}
	return series, nil
}
