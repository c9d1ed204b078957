package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/postcode-etl/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS locations (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	lat              REAL NOT NULL,
	lon              REAL NOT NULL,
	nearest_postcode TEXT,
	UNIQUE (lat, lon)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	total      INTEGER NOT NULL DEFAULT 0,
	enriched   INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	inserted   INTEGER NOT NULL DEFAULT 0,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_locations_postcode ON locations(nearest_postcode);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertLocations writes the batch in one transaction using INSERT OR
// IGNORE: a row whose (lat, lon) pair already exists in the table, or
// earlier in the same batch, is silently skipped. Returns the number of
// rows actually inserted.
func (s *SQLiteStore) InsertLocations(ctx context.Context, locs []model.Location) (int64, error) {
	if len(locs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO locations (lat, lon, nearest_postcode) VALUES (?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	var inserted int64
	for _, loc := range locs {
		res, err := stmt.ExecContext(ctx, loc.Lat, loc.Lon, postcodeNull(loc.NearestPostcode))
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: insert location")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lat, lon, COALESCE(nearest_postcode, '') FROM locations ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list locations")
	}
	defer rows.Close()

	var locs []model.Location
	for rows.Next() {
		var loc model.Location
		if err := rows.Scan(&loc.ID, &loc.Lat, &loc.Lon, &loc.NearestPostcode); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		locs = append(locs, loc)
	}
	return locs, eris.Wrap(rows.Err(), "sqlite: list locations iterate")
}

// Stats aggregates the locations table. COUNT(nearest_postcode) skips
// NULLs, which is exactly the with-postcode count since misses are stored
// as NULL.
func (s *SQLiteStore) Stats(ctx context.Context, topN int) (*model.LocationStats, error) {
	var stats model.LocationStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(nearest_postcode) FROM locations`,
	).Scan(&stats.Total, &stats.WithPostcode)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count locations")
	}
	stats.WithoutPostcode = stats.Total - stats.WithPostcode

	if topN <= 0 {
		return &stats, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT nearest_postcode, COUNT(*) AS cnt
		FROM locations
		WHERE nearest_postcode IS NOT NULL
		GROUP BY nearest_postcode
		ORDER BY cnt DESC, nearest_postcode ASC
		LIMIT ?`,
		topN,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: top postcodes")
	}
	defer rows.Close()

	for rows.Next() {
		var pc model.PostcodeCount
		if err := rows.Scan(&pc.Postcode, &pc.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan postcode count")
		}
		stats.TopPostcodes = append(stats.TopPostcodes, pc)
	}
	return &stats, eris.Wrap(rows.Err(), "sqlite: top postcodes iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, source, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, counts model.RunCounts) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, total = ?, enriched = ?, failed = ?, inserted = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), counts.Total, counts.Enriched, counts.Failed, counts.Inserted,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, total, enriched, failed, inserted, COALESCE(error, ''), created_at, updated_at
		 FROM runs WHERE id = ?`,
		runID,
	)

	var r model.Run
	err := row.Scan(&r.ID, &r.Source, &r.Status, &r.Total, &r.Enriched, &r.Failed, &r.Inserted,
		&r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, status, total, enriched, failed, inserted, COALESCE(error, ''), created_at, updated_at
	          FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.Total, &r.Enriched, &r.Failed, &r.Inserted,
			&r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

// postcodeNull maps an empty postcode to NULL so COUNT(nearest_postcode)
// and coverage stats see misses as absent values, not empty strings.
func postcodeNull(pc string) sql.NullString {
	return sql.NullString{String: pc, Valid: pc != ""}
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
