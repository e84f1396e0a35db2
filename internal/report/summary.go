// Package report renders fitted analyses: the console summary, PNG plots and
// exported report files.
package report

import (
	"fmt"
	"io"

	"github.com/RMahshie/capfit/pkg/models"
)

// PrintSummary writes one line per fitted capacitance followed by the average
func PrintSummary(w io.Writer, a *models.Analysis) error {
	for i := range a.Results {
		if _, err := fmt.Fprintln(w, resultLine(&a.Results[i])); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "C average: %v nF\n", a.AverageNanofarads())
	return err
}

func resultLine(r *models.FitResult) string {
	return fmt.Sprintf("%s: %v nF", r.Label, r.Nanofarads())
}
