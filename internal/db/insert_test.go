package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var locationsCfg = InsertIgnoreConfig{
	Table:        "locations",
	Columns:      []string{"lat", "lon", "nearest_postcode"},
	ConflictKeys: []string{"lat", "lon"},
}

func TestBulkInsertIgnore_EmptyRows(t *testing.T) {
	n, err := BulkInsertIgnore(context.TODO(), nil, locationsCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkInsertIgnore_NoColumns(t *testing.T) {
	_, err := BulkInsertIgnore(context.TODO(), nil, InsertIgnoreConfig{
		Table:        "locations",
		ConflictKeys: []string{"lat", "lon"},
	}, [][]any{{51.5, -0.1, "SW1A 1AA"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkInsertIgnore_NoConflictKeys(t *testing.T) {
	_, err := BulkInsertIgnore(context.TODO(), nil, InsertIgnoreConfig{
		Table:   "locations",
		Columns: []string{"lat", "lon", "nearest_postcode"},
	}, [][]any{{51.5, -0.1, "SW1A 1AA"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkInsertIgnore_SkipsConflicts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_load_locations"}, []string{"lat", "lon", "nearest_postcode"}).WillReturnResult(3)
	// Three rows copied, one already present: only two survive the conflict clause.
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{
		{51.5, -0.1, "SW1A 1AA"},
		{51.5, -0.1, "SW1A 1AA"},
		{0.0, 0.0, nil},
	}
	n, err := BulkInsertIgnore(context.Background(), mock, locationsCfg, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertIgnore_InsertErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_load_locations"}, []string{"lat", "lon", "nearest_postcode"}).WillReturnResult(1)
	mock.ExpectExec("INSERT INTO").WillReturnError(fmt.Errorf("deadlock detected"))
	mock.ExpectRollback()

	_, err = BulkInsertIgnore(context.Background(), mock, locationsCfg, [][]any{{51.5, -0.1, "SW1A 1AA"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INSERT ON CONFLICT for locations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertIgnore_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_load_locations"}, []string{"lat", "lon", "nearest_postcode"}).WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err = BulkInsertIgnore(context.Background(), mock, locationsCfg, [][]any{{51.5, -0.1, "SW1A 1AA"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for locations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"locations", `"locations"`},
		{"public.locations", `"public"."locations"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"lat", "lon", "nearest_postcode"})
	assert.Equal(t, `"lat", "lon", "nearest_postcode"`, result)
}
