// Package enrich runs reverse postcode lookups over coordinate batches
// with a bounded worker pool, isolating per-item failures into an
// append-only error log.
package enrich

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/postcode-etl/internal/model"
	"github.com/sells-group/postcode-etl/pkg/postcodes"
)

const (
	// DefaultWorkers is the worker pool width used when none is configured.
	DefaultWorkers = 17

	// DefaultProgressEvery is how many completions pass between progress
	// log lines.
	DefaultProgressEvery = 20
)

// Engine enriches coordinate batches with their nearest postcodes.
type Engine struct {
	client        postcodes.Client
	errlog        *ErrorLog
	workers       int
	progressEvery int64
}

// NewEngine creates an Engine. Non-positive workers or progressEvery fall
// back to the defaults.
func NewEngine(client postcodes.Client, errlog *ErrorLog, workers, progressEvery int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if progressEvery <= 0 {
		progressEvery = DefaultProgressEvery
	}
	return &Engine{
		client:        client,
		errlog:        errlog,
		workers:       workers,
		progressEvery: int64(progressEvery),
	}
}

// Enrich looks up the nearest postcode for every coordinate, one lookup
// per input row, duplicates included. Results come back in input order
// regardless of completion order. A failed or empty lookup leaves the
// postcode blank and records one error log line; it never aborts the
// batch. Enrich returns only after every worker has finished. The one
// error it can return is context cancellation, in which case the partial
// results must not be used.
func (e *Engine) Enrich(ctx context.Context, coords []model.Coordinate) ([]model.Location, error) {
	if len(coords) == 0 {
		return nil, nil
	}

	total := int64(len(coords))
	results := make([]model.Location, len(coords))

	zap.L().Info("enriching coordinates",
		zap.Int64("total", total),
		zap.Int("workers", e.workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	var completed, enriched atomic.Int64

	for i, coord := range coords {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			loc := model.Location{Lat: coord.Lat, Lon: coord.Lon}

			result, err := e.client.NearestPostcode(gctx, coord.Lat, coord.Lon)
			switch {
			case err != nil:
				if gctx.Err() != nil {
					// The run is being cancelled, not an item failure.
					return gctx.Err()
				}
				e.errlog.Record(coord.Lat, coord.Lon, err.Error())
			case !result.Found:
				e.errlog.Record(coord.Lat, coord.Lon, "no postcode found")
			default:
				loc.NearestPostcode = result.Postcode
				enriched.Add(1)
			}

			// Each goroutine owns its slot, no lock needed.
			results[i] = loc

			done := completed.Add(1)
			if done%e.progressEvery == 0 || done == total {
				zap.L().Info("enrichment progress",
					zap.Int64("completed", done),
					zap.Int64("total", total),
				)
			}
			return nil // don't abort batch on individual failure
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "enrich: batch")
	}

	zap.L().Info("enrichment complete",
		zap.Int64("enriched", enriched.Load()),
		zap.Int64("failed", e.errlog.Count()),
	)

	return results, nil
}
