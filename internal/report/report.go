// Package report turns persisted enrichment results into the run
// artifacts: a flat CSV export and a plain-text coverage summary.
package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postcode-etl/internal/model"
)

// csvColumns is the export header, matching the locations schema minus id.
var csvColumns = []string{"lat", "lon", "nearest_postcode"}

// WriteCSV writes one row per record, in the given order, with an empty
// postcode field for misses.
func WriteCSV(locs []model.Location, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "report: create csv")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(csvColumns); err != nil {
		return eris.Wrap(err, "report: write header")
	}

	for _, loc := range locs {
		row := []string{
			strconv.FormatFloat(loc.Lat, 'f', -1, 64),
			strconv.FormatFloat(loc.Lon, 'f', -1, 64),
			loc.NearestPostcode,
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "report: write row")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "report: flush csv")
}

// BuildStats aggregates records in memory, mirroring what Store.Stats
// computes in SQL for already-persisted rows.
func BuildStats(locs []model.Location, topN int) *model.LocationStats {
	stats := &model.LocationStats{Total: int64(len(locs))}

	counts := make(map[string]int64)
	for _, loc := range locs {
		if loc.HasPostcode() {
			stats.WithPostcode++
			counts[loc.NearestPostcode]++
		}
	}
	stats.WithoutPostcode = stats.Total - stats.WithPostcode

	if topN <= 0 || len(counts) == 0 {
		return stats
	}

	top := make([]model.PostcodeCount, 0, len(counts))
	for pc, n := range counts {
		top = append(top, model.PostcodeCount{Postcode: pc, Count: n})
	}
	// Ties break by postcode so the listing is deterministic.
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Postcode < top[j].Postcode
	})
	if len(top) > topN {
		top = top[:topN]
	}
	stats.TopPostcodes = top

	return stats
}

// Coverage returns the postcode coverage percentage rounded to 2 decimals;
// 0 when there are no records.
func Coverage(with, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(10000*float64(with)/float64(total)) / 100
}

// FormatSummary renders the text summary.
func FormatSummary(stats *model.LocationStats) string {
	var b strings.Builder

	fmt.Fprintln(&b, "=== Enrichment Summary ===")
	fmt.Fprintf(&b, "Total records:      %d\n", stats.Total)
	fmt.Fprintf(&b, "With postcode:      %d\n", stats.WithPostcode)
	fmt.Fprintf(&b, "Without postcode:   %d\n", stats.WithoutPostcode)
	fmt.Fprintf(&b, "Coverage:           %.2f%%\n", Coverage(stats.WithPostcode, stats.Total))

	if len(stats.TopPostcodes) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Top postcodes:")
		for _, pc := range stats.TopPostcodes {
			fmt.Fprintf(&b, "  %-12s %d\n", pc.Postcode, pc.Count)
		}
	}

	return b.String()
}

// WriteSummary writes the text summary to path.
func WriteSummary(stats *model.LocationStats, path string) error {
	if err := os.WriteFile(path, []byte(FormatSummary(stats)), 0644); err != nil {
		return eris.Wrap(err, "report: write summary")
	}
	return nil
}
