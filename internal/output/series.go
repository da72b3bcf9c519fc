package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// A SeriesTable holds the tide values of several points over time.
// Values[step][i] belongs to point IDs[i] at Times[step].
type SeriesTable struct {
	Times  []time.Time
	IDs    []int
	Values [][]float64
}

// WriteCSV writes a header "time,p_<id>,..." followed by one row per step.
func (t *SeriesTable) WriteCSV(w io.Writer) error {
	if len(t.Times) != len(t.Values) {
		return fmt.Errorf("series table: %d times for %d rows", len(t.Times), len(t.Values))
	}
	cw := csv.NewWriter(w)
	row := make([]string, len(t.IDs)+1)
	row[0] = "time"
	for i, id := range t.IDs {
		row[i+1] = "p_" + strconv.Itoa(id)
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	for s, at := range t.Times {
		if len(t.Values[s]) != len(t.IDs) {
			return fmt.Errorf("series table: row %d has %d values for %d points", s, len(t.Values[s]), len(t.IDs))
		}
		row[0] = at.UTC().Format(time.RFC3339)
		for i, v := range t.Values[s] {
			row[i+1] = strconv.FormatFloat(v, 'f', 4, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the table as CSV to path.
func (t *SeriesTable) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
