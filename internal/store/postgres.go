package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/postcode-etl/internal/db"
	"github.com/sells-group/postcode-etl/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO runs (id, source, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_run": `UPDATE runs SET status = $1, total = $2, enriched = $3, failed = $4, inserted = $5, updated_at = $6 WHERE id = $7`,
	"fail_run":     `UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"get_run":      `SELECT id, source, status, total, enriched, failed, inserted, COALESCE(error, ''), created_at, updated_at FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS locations (
	id               BIGSERIAL PRIMARY KEY,
	lat              DOUBLE PRECISION NOT NULL,
	lon              DOUBLE PRECISION NOT NULL,
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
	inserted   BIGINT NOT NULL DEFAULT 0,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_locations_postcode ON locations(nearest_postcode);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Pool returns the underlying database pool for direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// InsertLocations bulk-loads the batch through a temp table and INSERT ...
// ON CONFLICT (lat, lon) DO NOTHING, so duplicate coordinate pairs are
// silently skipped. Returns the number of rows actually inserted.
func (s *PostgresStore) InsertLocations(ctx context.Context, locs []model.Location) (int64, error) {
	rows := make([][]any, len(locs))
	for i, loc := range locs {
		var pc any
		if loc.NearestPostcode != "" {
			pc = loc.NearestPostcode
		}
		rows[i] = []any{loc.Lat, loc.Lon, pc}
	}

	return db.BulkInsertIgnore(ctx, s.pool, db.InsertIgnoreConfig{
		Table:        "locations",
		Columns:      []string{"lat", "lon", "nearest_postcode"},
		ConflictKeys: []string{"lat", "lon"},
	}, rows)
}

func (s *PostgresStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lat, lon, COALESCE(nearest_postcode, '') FROM locations ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list locations")
	}
	defer rows.Close()

	var locs []model.Location
	for rows.Next() {
		var loc model.Location
		if err := rows.Scan(&loc.ID, &loc.Lat, &loc.Lon, &loc.NearestPostcode); err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		locs = append(locs, loc)
	}
	return locs, eris.Wrap(rows.Err(), "postgres: list locations iterate")
}

func (s *PostgresStore) Stats(ctx context.Context, topN int) (*model.LocationStats, error) {
	var stats model.LocationStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(nearest_postcode) FROM locations`,
	).Scan(&stats.Total, &stats.WithPostcode)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count locations")
	}
	stats.WithoutPostcode = stats.Total - stats.WithPostcode

	if topN <= 0 {
		return &stats, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT nearest_postcode, COUNT(*) AS cnt
		FROM locations
		WHERE nearest_postcode IS NOT NULL
		GROUP BY nearest_postcode
		ORDER BY cnt DESC, nearest_postcode ASC
		LIMIT $1`,
		topN,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: top postcodes")
	}
	defer rows.Close()

	for rows.Next() {
		var pc model.PostcodeCount
		if err := rows.Scan(&pc.Postcode, &pc.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan postcode count")
		}
		stats.TopPostcodes = append(stats.TopPostcodes, pc)
	}
	return &stats, eris.Wrap(rows.Err(), "postgres: top postcodes iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, source, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, counts model.RunCounts) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, total = $2, enriched = $3, failed = $4, inserted = $5, updated_at = $6 WHERE id = $7`,
		string(model.RunStatusComplete), counts.Total, counts.Enriched, counts.Failed, counts.Inserted,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, status, total, enriched, failed, inserted, COALESCE(error, ''), created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Source, &r.Status, &r.Total, &r.Enriched, &r.Failed, &r.Inserted,
		&r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("postgres: get run: run not found: %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, status, total, enriched, failed, inserted, COALESCE(error, ''), created_at, updated_at
	          FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.Total, &r.Enriched, &r.Failed, &r.Inserted,
			&r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
