// Package pipeline runs the one-shot startup computation: load the dataset,
// project it to 3D, assemble point records and index the original features.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/23skdu/embedview/internal/dataset"
	"github.com/23skdu/embedview/internal/embedding"
	emberrors "github.com/23skdu/embedview/internal/errors"
	"github.com/23skdu/embedview/internal/meta"
	"github.com/23skdu/embedview/internal/metrics"
	"github.com/23skdu/embedview/internal/neighbors"
)

// Config selects the input bundle and the projection parameters.
type Config struct {
	DatasetPath string
	Embedding   embedding.Params
}

// Snapshot is the immutable product of Run, shared read-only by all handlers.
type Snapshot struct {
	Records   []meta.PointRecord
	Neighbors *neighbors.Index
	Points    int
	Dim       int
	KL        float64
	Elapsed   time.Duration
}

// Run executes the pipeline. Any error is fatal for the caller; no partial
// snapshot is ever returned.
func Run(ctx context.Context, cfg Config, logger zerolog.Logger) (*Snapshot, error) {
	log := logger.With().Str("component", "pipeline").Logger()
	start := time.Now()

	snap, err := run(ctx, cfg, log)
	if err != nil {
		typ, ok := emberrors.TypeOf(err)
		if !ok {
			typ = "unknown"
		}
		metrics.PipelineFailuresTotal.WithLabelValues(string(typ)).Inc()
		log.Error().Err(err).Str("type", string(typ)).Msg("startup pipeline failed")
		return nil, err
	}

	snap.Elapsed = time.Since(start)
	log.Info().
		Int("points", snap.Points).
		Int("dimensions", snap.Dim).
		Dur("elapsed", snap.Elapsed).
		Msg("startup pipeline complete")
	return snap, nil
}

func run(ctx context.Context, cfg Config, log zerolog.Logger) (*Snapshot, error) {
	var ds *dataset.FeatureDataset
	err := stage(log, "load", func() error {
		var err error
		ds, err = dataset.Load(cfg.DatasetPath)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.DatasetPoints.Set(float64(ds.Len()))
	metrics.DatasetDimensions.Set(float64(ds.Dim()))
	log.Info().Str("path", cfg.DatasetPath).Int("points", ds.Len()).Int("dimensions", ds.Dim()).Msg("dataset loaded")

	var res *embedding.Result
	err = stage(log, "project", func() error {
		var err error
		res, err = embedding.NewProjector(cfg.Embedding, log).Project(ctx, ds.Features)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.EmbeddingKLDivergence.Set(res.KL)
	metrics.EmbeddingIterations.Set(float64(res.Iterations))

	var records []meta.PointRecord
	step(log, "assemble", func() {
		records = meta.Assemble(res.Coords, ds.Labels, ds.ImagePaths)
	})

	var index *neighbors.Index
	step(log, "index", func() {
		index = neighbors.Build(ds.Features, int64(cfg.Embedding.Seed))
	})

	return &Snapshot{
		Records:   records,
		Neighbors: index,
		Points:    ds.Len(),
		Dim:       ds.Dim(),
		KL:        res.KL,
	}, nil
}

func stage(log zerolog.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	metrics.PipelineStageDurationSeconds.WithLabelValues(name).Observe(elapsed.Seconds())
	log.Debug().Str("stage", name).Dur("elapsed", elapsed).Err(err).Msg("stage finished")
	return err
}

// step times a stage that cannot fail.
func step(log zerolog.Logger, name string, fn func()) {
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	metrics.PipelineStageDurationSeconds.WithLabelValues(name).Observe(elapsed.Seconds())
	log.Debug().Str("stage", name).Dur("elapsed", elapsed).Msg("stage finished")
}
