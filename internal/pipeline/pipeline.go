// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/transcode"
	"call-evaluator-go/internal/types"
)

type Fetcher interface {
	Fetch(ctx context.Context, sourceRef, dest string) error
}

type Normalizer interface {
	Normalize(ctx context.Context, input, output string) (format string, err error)
}

type Analyzer interface {
	Analyze(ctx context.Context, audioPath, format string) (*types.EvaluationRecord, error)
}

type Persister interface {
	Persist(ctx context.Context, job types.Job, rec *types.EvaluationRecord) (types.Location, error)
}

// Runner executes fetch -> normalize -> analyze -> persist for one job.
// Normalization is best effort; every other stage failure ends the job.
type Runner struct {
	Fetcher    Fetcher
	Normalizer Normalizer // optional
	Analyzer   Analyzer
	Persister  Persister

	WorkDir        string        // parent of per-job temp dirs; "" = os.TempDir()
	AnalyzeTimeout time.Duration // 0 = no extra bound

	Log *logger.Logger
}

// Run processes job. The per-job temp directory is removed on every path.
func (r *Runner) Run(ctx context.Context, job types.Job) (*types.EvaluationRecord, error) {
	log := r.logger().WithJob(job)
	start := time.Now()

	dir, err := os.MkdirTemp(r.WorkDir, "job-")
	if err != nil {
		return nil, fmt.Errorf("%w: temp dir: %w", types.ErrFetch, err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).Warn("temp dir cleanup failed")
		}
	}()

	// 1) Fetch
	raw := filepath.Join(dir, "raw"+safeExt(job.DisplayName))
	if err := r.Fetcher.Fetch(ctx, job.SourceRef, raw); err != nil {
		return nil, stageErr(types.ErrFetch, err)
	}
	log.WithField("elapsed_ms", time.Since(start).Milliseconds()).Info("audio fetched")

	// 2) Normalize, falling back to the original file
	audioPath, format := raw, transcode.FormatHint(job.DisplayName)
	if r.Normalizer != nil {
		out := filepath.Join(dir, "normalized.mp3")
		f, err := r.Normalizer.Normalize(ctx, raw, out)
		if err != nil {
			log.WithError(err).Warn("normalization failed, sending original file")
		} else {
			audioPath, format = out, f
		}
	}

	// 3) Analyze
	actx := ctx
	if r.AnalyzeTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.AnalyzeTimeout)
		defer cancel()
	}
	rec, err := r.Analyzer.Analyze(actx, audioPath, format)
	if err != nil {
		return nil, stageErr(types.ErrAnalysis, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: empty evaluation", types.ErrAnalysis)
	}
	log.WithField("format", format).WithField("total_score", rec.TotalScore).Info("audio analyzed")

	// 4) Persist
	loc, err := r.Persister.Persist(ctx, job, rec)
	if err != nil {
		return nil, stageErr(types.ErrPersist, err)
	}
	log.WithFields(map[string]interface{}{
		"location":    loc.String(),
		"overwrite":   job.OverwriteTarget != nil,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("pipeline finished")
	return rec, nil
}

func (r *Runner) logger() *logger.Logger {
	if r.Log == nil {
		return logger.New().Component("pipeline")
	}
	return r.Log.Component("pipeline")
}

// stageErr tags err with the failing stage unless it already carries it.
func stageErr(stage, err error) error {
	if errors.Is(err, stage) {
		return err
	}
	return fmt.Errorf("%w: %w", stage, err)
}

// safeExt keeps a short alphanumeric extension of name for the temp file.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}
