package artifact

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// ReadSeriesCSV parses one raw indicator file: a date,value header followed
// by one observation per row. The indicator key is taken from the file name.
// Rows must already be in ascending date order; out-of-order input is
// rejected rather than silently resorted.
func ReadSeriesCSV(r io.Reader, key string) (models.IndicatorSeries, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return models.IndicatorSeries{}, fmt.Errorf("%s: read header: %w", key, err)
	}
	if len(header) < 2 || header[0] != "date" || header[1] != "value" {
		return models.IndicatorSeries{}, fmt.Errorf("%s: want date,value header, got %v", key, header)
	}

	series := models.IndicatorSeries{Key: key}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.IndicatorSeries{}, fmt.Errorf("%s: read row: %w", key, err)
		}

		ts, err := time.Parse(dateLayout, record[0])
		if err != nil {
			return models.IndicatorSeries{}, fmt.Errorf("%s: parse date %q: %w", key, record[0], err)
		}
		if n := len(series.Points); n > 0 && !ts.After(series.Points[n-1].Timestamp) {
			return models.IndicatorSeries{}, fmt.Errorf("%s: timestamps not strictly increasing at %s", key, record[0])
		}

		v, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return models.IndicatorSeries{}, fmt.Errorf("%s: parse value %q: %w", key, record[1], err)
		}

		series.Points = append(series.Points, models.Observation{
			Timestamp: ts,
			Value:     models.NewDecimal(v),
		})
	}

	return series, nil
}

// LoadSeriesDir reads every *.csv in dir as one indicator series, keyed by
// the upper-cased file stem (market_soxx.csv becomes MARKET_SOXX).
func LoadSeriesDir(dir string) (map[string]models.IndicatorSeries, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read series dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	series := make(map[string]models.IndicatorSeries, len(names))
	for _, name := range names {
		key := strings.ToUpper(strings.TrimSuffix(name, ".csv"))

		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		s, err := ReadSeriesCSV(f, key)
		f.Close()
		if err != nil {
			return nil, err
		}
		series[key] = s
	}

	return series, nil
}
