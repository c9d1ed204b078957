package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/postcode-etl/internal/model"
)

func sampleRuns(now time.Time) []model.Run {
	return []model.Run{
		{
			ID:        "11111111-2222-3333-4444-555555555555",
			Source:    "coords.csv",
			Status:    model.RunStatusComplete,
			Total:     100,
			Inserted:  90,
			CreatedAt: now.Add(-2 * time.Minute),
			UpdatedAt: now,
		},
		{
			ID:        "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			Source:    "https://example.com/data/a-very-long-dataset-name.csv",
			Status:    model.RunStatusFailed,
			Error:     "extract: open input",
			CreatedAt: now.Add(-1 * time.Minute),
			UpdatedAt: now,
		},
		{
			ID:        "ffffffff-0000-1111-2222-333333333333",
			Source:    "b.csv",
			Status:    model.RunStatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func TestComputeRunStats(t *testing.T) {
	s := computeRunStats(sampleRuns(time.Now()))

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 100, s.Records)
	assert.Equal(t, int64(90), s.Inserted)
	assert.InDelta(t, 120.0, s.AvgDurSecs, 1.0)
}

func TestComputeRunStatsEmpty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AvgDurSecs)
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, sampleRuns(time.Now()))

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "11111111")
	assert.Contains(t, out, "coords.csv")
	// Long sources are truncated for display.
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "a-very-long-dataset-name.csv")
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{Total: 2, Complete: 1, Failed: 1, Records: 10, Inserted: 8, AvgDurSecs: 1.5})

	out := buf.String()
	assert.Contains(t, out, "Total runs:")
	assert.Contains(t, out, "Avg duration:")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("123456789abc"))
	assert.Equal(t, "short", truncateID("short"))
}
