package artifact

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

const (
	dateLayout   = "2006-01-02"
	regimeColumn = "Regime"
)

// WriteCSV encodes the table with exact float round-tripping: values use the
// shortest representation that parses back to the same bits, missing cells
// are empty fields, never "NaN".
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)

	header := append([]string{"date"}, t.Columns...)
	header = append(header, regimeColumn)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(header))
	for i, ts := range t.Index {
		row[0] = ts.Format(dateLayout)
		for j, col := range t.Columns {
			row[j+1] = formatCell(t.Cells[col][i])
		}
		row[len(row)-1] = string(t.Regimes[i])
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV decodes a table written by WriteCSV
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 3 || header[0] != "date" || header[len(header)-1] != regimeColumn {
		return nil, fmt.Errorf("unexpected artifact header %v", header)
	}

	columns := header[1 : len(header)-1]
	t := &Table{
		Columns: columns,
		Cells:   make(map[string][]models.Cell, len(columns)),
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		ts, err := time.Parse(dateLayout, record[0])
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", record[0], err)
		}
		t.Index = append(t.Index, ts)

		for j, col := range columns {
			cell, err := parseCell(record[j+1])
			if err != nil {
				return nil, fmt.Errorf("column %s row %s: %w", col, record[0], err)
			}
			t.Cells[col] = append(t.Cells[col], cell)
		}
		t.Regimes = append(t.Regimes, models.RegimeLabel(record[len(record)-1]))
	}

	return t, nil
}

// WriteFile persists the artifact atomically: write a temp file in the same
// directory, then rename over the target so readers never see a partial file.
func WriteFile(path string, t *Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".aibps-*.csv")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, t); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

func formatCell(c models.Cell) string {
	if !c.Valid {
		return ""
	}
	return strconv.FormatFloat(c.Value, 'g', -1, 64)
}

func parseCell(s string) (models.Cell, error) {
	if s == "" {
		return models.Missing(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return models.Cell{}, err
	}
	return models.NewCell(v), nil
}
