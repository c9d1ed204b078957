// Package extract parses input datasets into coordinate batches. CSV and
// XLSX sources are supported; column names map to lat/lon through built-in
// defaults or an explicit layout file.
package extract

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postcode-etl/internal/model"
)

// Options configures dataset parsing.
type Options struct {
	Encoding string  // source charset for CSV, "" = UTF-8
	Sheet    string  // XLSX sheet name, "" = first sheet
	Layout   *Layout // column mapping, nil = default column names
}

// latColumns and lonColumns are the header names accepted without a layout
// file, matched case-insensitively.
var (
	latColumns = []string{"lat", "latitude"}
	lonColumns = []string{"lon", "lng", "longitude"}
)

// ParseFile reads the dataset at path and returns its coordinates in file
// order. The format is chosen by extension: .xlsx is parsed as a workbook,
// everything else as CSV. A row with an unparsable or out-of-range
// coordinate fails the whole parse; malformed input never reaches
// enrichment.
func ParseFile(path string, opts Options) ([]model.Coordinate, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path, opts.Sheet)
	default:
		rows, err = readCSV(path, opts.Encoding)
	}
	if err != nil {
		return nil, err
	}

	coords, err := coordsFromRows(rows, opts.Layout)
	if err != nil {
		return nil, err
	}

	zap.L().Info("dataset parsed",
		zap.String("path", path),
		zap.Int("coordinates", len(coords)),
	)
	return coords, nil
}

// coordsFromRows converts header+data rows into coordinates. The first row
// must be a header naming the lat/lon columns.
func coordsFromRows(rows [][]string, layout *Layout) ([]model.Coordinate, error) {
	if len(rows) < 2 {
		return nil, eris.New("extract: dataset has no data rows")
	}

	colIdx := make(map[string]int, len(rows[0]))
	for i, col := range rows[0] {
		colIdx[strings.ToLower(strings.TrimSpace(col))] = i
	}

	latIdx, err := findColumn(colIdx, layout.latNames())
	if err != nil {
		return nil, err
	}
	lonIdx, err := findColumn(colIdx, layout.lonNames())
	if err != nil {
		return nil, err
	}

	coords := make([]model.Coordinate, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2 // 1-based, after the header

		lat, err := parseCoord(row, latIdx, "lat", line)
		if err != nil {
			return nil, err
		}
		lon, err := parseCoord(row, lonIdx, "lon", line)
		if err != nil {
			return nil, err
		}

		c := model.Coordinate{Lat: lat, Lon: lon}
		if !c.Valid() {
			return nil, eris.Errorf("extract: line %d: coordinate (%v, %v) out of range", line, lat, lon)
		}
		coords = append(coords, c)
	}

	return coords, nil
}

func findColumn(colIdx map[string]int, names []string) (int, error) {
	for _, name := range names {
		if idx, ok := colIdx[name]; ok {
			return idx, nil
		}
	}
	return 0, eris.Errorf("extract: none of columns %v found in header", names)
}

func parseCoord(row []string, idx int, field string, line int) (float64, error) {
	if idx >= len(row) {
		return 0, eris.Errorf("extract: line %d: missing %s column", line, field)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "extract: line %d: parse %s %q", line, field, row[idx])
	}
	return v, nil
}
