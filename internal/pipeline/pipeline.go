// Package pipeline orchestrates a full enrichment run:
// extract -> enrich -> load -> report.
package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postcode-etl/internal/config"
	"github.com/sells-group/postcode-etl/internal/enrich"
	"github.com/sells-group/postcode-etl/internal/extract"
	"github.com/sells-group/postcode-etl/internal/fetcher"
	"github.com/sells-group/postcode-etl/internal/model"
	"github.com/sells-group/postcode-etl/internal/report"
	"github.com/sells-group/postcode-etl/internal/store"
	"github.com/sells-group/postcode-etl/pkg/postcodes"
)

// topPostcodes is how many entries the summary ranking carries.
const topPostcodes = 10

// Pipeline wires the run phases over a store and a lookup client.
type Pipeline struct {
	cfg    *config.Config
	store  store.Store
	client postcodes.Client
}

// Result is what a completed run hands back to the CLI.
type Result struct {
	RunID   string
	Counts  model.RunCounts
	Stats   *model.LocationStats
	Summary string
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, client postcodes.Client) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, client: client}
}

// Run executes the pipeline for one input source. Item-level lookup
// failures are absorbed into the error log; any phase error fails the
// run, marks its run record failed, and nothing downstream of the failed
// phase executes.
func (p *Pipeline) Run(ctx context.Context, source string, layout *extract.Layout) (*Result, error) {
	log := zap.L().With(zap.String("source", source))
	log.Info("pipeline: starting run")

	run, err := p.store.CreateRun(ctx, source)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	res, err := p.run(ctx, source, layout, log)
	if err != nil {
		if failErr := p.store.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			log.Warn("pipeline: failed to mark run failed", zap.Error(failErr))
		}
		return nil, err
	}

	if err := p.store.CompleteRun(ctx, run.ID, res.Counts); err != nil {
		return nil, eris.Wrap(err, "pipeline: complete run")
	}
	res.RunID = run.ID

	log.Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.Int("total", res.Counts.Total),
		zap.Int("enriched", res.Counts.Enriched),
		zap.Int("failed", res.Counts.Failed),
		zap.Int64("inserted", res.Counts.Inserted),
	)
	return res, nil
}

// trackPhase runs fn and logs its duration under the phase name.
func trackPhase(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return err
	}
	log.Info("pipeline: phase complete",
		zap.String("phase", name),
		zap.Duration("duration", duration),
	)
	return nil
}

func (p *Pipeline) run(ctx context.Context, source string, layout *extract.Layout, log *zap.Logger) (*Result, error) {
	res := &Result{}

	// Extract
	var coords []model.Coordinate
	err := trackPhase(log, "extract", func() error {
		stageDir, err := os.MkdirTemp("", "postcode-etl-*")
		if err != nil {
			return eris.Wrap(err, "pipeline: create staging dir")
		}
		defer os.RemoveAll(stageDir) //nolint:errcheck

		path, err := fetcher.Fetch(ctx, source, stageDir, time.Duration(p.cfg.API.TimeoutSecs)*time.Second)
		if err != nil {
			return err
		}

		coords, err = extract.ParseFile(path, extract.Options{
			Encoding: p.cfg.Input.Encoding,
			Sheet:    p.cfg.Input.Sheet,
			Layout:   layout,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	// Enrich
	var records []model.Location
	var failed int64
	err = trackPhase(log, "enrich", func() error {
		errlog, err := enrich.OpenErrorLog(p.cfg.Enrich.ErrorLog)
		if err != nil {
			return err
		}
		defer errlog.Close() //nolint:errcheck

		engine := enrich.NewEngine(p.client, errlog, p.cfg.Enrich.Workers, p.cfg.Enrich.ProgressEvery)
		records, err = engine.Enrich(ctx, coords)
		failed = errlog.Count()
		return err
	})
	if err != nil {
		return nil, err
	}

	// Load
	err = trackPhase(log, "load", func() error {
		inserted, err := p.store.InsertLocations(ctx, records)
		if err != nil {
			return err
		}
		res.Counts.Inserted = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Report
	err = trackPhase(log, "report", func() error {
		if err := report.WriteCSV(records, p.cfg.Report.CSVPath); err != nil {
			return err
		}
		res.Stats = report.BuildStats(records, topPostcodes)
		return report.WriteSummary(res.Stats, p.cfg.Report.SummaryPath)
	})
	if err != nil {
		return nil, err
	}

	res.Counts.Total = len(records)
	res.Counts.Enriched = int(res.Stats.WithPostcode)
	res.Counts.Failed = int(failed)
	res.Summary = report.FormatSummary(res.Stats)

	return res, nil
}
