// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// DefaultWorkers bounds concurrently running jobs when none is configured.
const DefaultWorkers = 4

// Runner executes jobs in the background on a bounded pool. The job row is
// written before a job is scheduled, so work that never ran is still
// visible and resumable after a restart.
type Runner struct {
	orch *Orchestrator
	ctx  context.Context
	pool *pool.Pool
	log  *zap.Logger
}

// NewRunner returns a Runner with at most workers jobs in flight. Jobs run
// under ctx.
func NewRunner(ctx context.Context, orch *Orchestrator, workers int, log *zap.Logger) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{
		orch: orch,
		ctx:  ctx,
		pool: pool.New().WithMaxGoroutines(workers),
		log:  logger.OrNop(log),
	}
}

// Submit validates req, persists a pending job, and schedules it. It blocks
// while every worker is busy. The returned job is owned by the worker; read
// its state back from the store.
func (r *Runner) Submit(ctx context.Context, req types.IngestRequest) (string, error) {
	job, err := r.orch.NewJob(ctx, req)
	if err != nil {
		return "", err
	}
	id := job.ID
	r.log.Info("job queued", zap.String("job_id", id))
	r.pool.Go(func() {
		if err := r.orch.Run(r.ctx, job, req); err != nil {
			r.log.Warn("job ended with error", zap.String("job_id", id), zap.Error(err))
		}
	})
	return id, nil
}

// Resume schedules Orchestrator.Resume for jobID.
func (r *Runner) Resume(jobID string) {
	r.pool.Go(func() {
		if _, err := r.orch.Resume(r.ctx, jobID); err != nil {
			r.log.Warn("resume ended with error", zap.String("job_id", jobID), zap.Error(err))
		}
	})
}

// RecoverStale schedules a resume for every job left in a non-terminal state
// and returns their ids.
func (r *Runner) RecoverStale(ctx context.Context) ([]string, error) {
	jobs, err := r.orch.RecoverStale(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
		r.log.Info("recovering stale job", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
		r.Resume(job.ID)
	}
	return ids, nil
}

// Wait blocks until every scheduled job has finished. The Runner cannot be
// used afterwards.
func (r *Runner) Wait() {
	r.pool.Wait()
}
