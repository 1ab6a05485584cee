// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives an ingest job through its stages: parsing the
// question, fetching from the catalogs, storing deduplicated papers,
// chunking, and embedding. Every stage transition is persisted with the
// job's progress document and broadcast as an activity event. A failed job
// keeps whatever earlier stages committed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/activity"
	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/embed"
	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/internal/metrics"
	"github.com/HiNala/bio-hack-sub000/internal/source"
	"github.com/HiNala/bio-hack-sub000/internal/store"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	CreateJob(ctx context.Context, job *types.IngestJob) error
	UpdateJob(ctx context.Context, job *types.IngestJob) error
	GetJob(ctx context.Context, id string) (*types.IngestJob, error)
	NonTerminalJobs(ctx context.Context) ([]*types.IngestJob, error)
	ExistingDOIs(ctx context.Context) (map[string]bool, error)
	InsertPapers(ctx context.Context, jobID string, papers []types.UnifiedPaper) ([]types.Paper, error)
	UnchunkedPapers(ctx context.Context, scope store.Scope) ([]types.Paper, error)
	ReplaceChunks(ctx context.Context, paperID string, chunks []types.Chunk) ([]types.Chunk, error)
}

// Chunker splits a paper into passages.
type Chunker interface {
	ChunkPaper(title, abstract string) []types.Chunk
}

// Embedder embeds the pending chunks in a scope.
type Embedder interface {
	EmbedPending(ctx context.Context, scope store.Scope, progress embed.ProgressFunc) (embed.Stats, error)
}

// Publisher receives activity events. *activity.Hub implements it.
type Publisher interface {
	Publish(e activity.Event)
}

// Options tunes the orchestrator.
type Options struct {
	// MaxPerSource is the per-query catalog limit when a request sets none.
	MaxPerSource int
}

// Orchestrator runs ingest jobs.
type Orchestrator struct {
	store    Store
	adapters []source.Adapter
	chunker  Chunker
	embedder Embedder
	events   Publisher
	opts     Options
	now      func() time.Time
	log      *zap.Logger
}

// New returns an Orchestrator. events may be nil.
func New(st Store, adapters []source.Adapter, ch Chunker, em Embedder, events Publisher, opts Options, log *zap.Logger) *Orchestrator {
	if opts.MaxPerSource <= 0 {
		opts.MaxPerSource = 50
	}
	return &Orchestrator{
		store:    st,
		adapters: adapters,
		chunker:  ch,
		embedder: em,
		events:   events,
		opts:     opts,
		now:      time.Now,
		log:      logger.OrNop(log),
	}
}

// Validate rejects a request before any job is created.
func (o *Orchestrator) Validate(req types.IngestRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return apperr.Validation("query", "must not be empty")
	}
	if req.YearFrom < 0 || req.YearTo < 0 {
		return apperr.Validation("year", "must not be negative")
	}
	if req.YearFrom > 0 && req.YearTo > 0 && req.YearFrom > req.YearTo {
		return apperr.Validation("year", "year_from %d is after year_to %d", req.YearFrom, req.YearTo)
	}
	if req.MaxPerSource < 0 {
		return apperr.Validation("max_per_source", "must not be negative")
	}
	for _, name := range req.Sources {
		if len(source.Filter(o.adapters, []string{name})) == 0 {
			return apperr.Validation("sources", "source %q is not configured", name)
		}
	}
	if len(source.Filter(o.adapters, req.Sources)) == 0 {
		return apperr.Validation("sources", "no sources configured")
	}
	return nil
}

// NewJob validates req and persists a pending job for it.
func (o *Orchestrator) NewJob(ctx context.Context, req types.IngestRequest) (*types.IngestJob, error) {
	if err := o.Validate(req); err != nil {
		return nil, err
	}
	job := &types.IngestJob{
		Status:        types.JobPending,
		OriginalQuery: req.Query,
		Request:       req,
		Progress:      types.NewProgress(),
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return job, nil
}

// Ingest validates req, creates its job, and runs it to completion.
func (o *Orchestrator) Ingest(ctx context.Context, req types.IngestRequest) (*types.IngestJob, error) {
	job, err := o.NewJob(ctx, req)
	if err != nil {
		return nil, err
	}
	return job, o.Run(ctx, job, req)
}

// Run drives a pending job through every stage. On a stage error the job is
// marked failed and the error returned. A cancelled context leaves the job at
// its last persisted stage so it can be resumed.
func (o *Orchestrator) Run(ctx context.Context, job *types.IngestJob, req types.IngestRequest) error {
	if job.Status != types.JobPending {
		return fmt.Errorf("job %s is %s, not pending", job.ID, job.Status)
	}
	r := o.newRun(job)
	ctx = logger.ContextWithLogger(ctx, r.log)
	r.log.Info("ingest started", zap.String("query", req.Query))
	return r.execute(ctx, req, types.JobPending)
}

// Resume continues a job that did not complete. The job's status never moves
// backwards:
//
//   - A job interrupted mid-run continues from the stage it was in. That
//     stage's work is redone in place, recomputing what earlier stages held
//     in memory, and the remaining stages follow.
//   - A job that failed while chunking or embedding stays failed. The chunk
//     and embed work is retried over its stored papers and the outcome is
//     recorded in the stage detail.
//   - A job that failed before storing papers, or a completed job, cannot be
//     resumed.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) (*types.IngestJob, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	req := job.Request
	if strings.TrimSpace(req.Query) == "" {
		req.Query = job.OriginalQuery
	}

	switch job.Status {
	case types.JobCompleted:
		return job, apperr.Validation("job", "job %s is already completed", job.ID)
	case types.JobPending:
		return job, o.Run(ctx, job, req)
	case types.JobFailed:
		if job.FailedStage != types.JobChunking && job.FailedStage != types.JobEmbedding {
			return job, apperr.Validation("job",
				"job %s failed while %s before any papers were stored; start a new ingest", job.ID, job.FailedStage)
		}
		r := o.newRun(job)
		ctx = logger.ContextWithLogger(ctx, r.log)
		return job, r.retry(ctx)
	}

	r := o.newRun(job)
	ctx = logger.ContextWithLogger(ctx, r.log)
	r.log.Info("resuming job", zap.String("stage", string(job.Status)))
	return job, r.execute(ctx, req, job.Status)
}

// RecoverStale returns jobs left in a non-terminal state, typically by a
// process that stopped mid-run.
func (o *Orchestrator) RecoverStale(ctx context.Context) ([]*types.IngestJob, error) {
	return o.store.NonTerminalJobs(ctx)
}

// run is the state of one job execution.
type run struct {
	o     *Orchestrator
	job   *types.IngestJob
	start time.Time
	log   *zap.Logger

	yearFrom, yearTo int
	queries          []string
	fetched          source.FetchOutput
	storedCount      int
}

func (o *Orchestrator) newRun(job *types.IngestJob) *run {
	return &run{
		o:     o,
		job:   job,
		start: o.now(),
		log:   o.log.With(zap.String("job_id", job.ID)),
	}
}

// step is one stage of a run and the work it does.
type step struct {
	stage types.JobStatus
	fn    func(context.Context) error
}

func (r *run) steps(req types.IngestRequest) []step {
	return []step{
		{types.JobParsing, func(context.Context) error { return r.parse(req) }},
		{types.JobFetching, func(ctx context.Context) error {
			var err error
			r.fetched, err = r.fetch(ctx, req)
			return err
		}},
		{types.JobStoring, func(ctx context.Context) error { return r.storePapers(ctx, r.fetched) }},
		{types.JobChunking, r.chunk},
		{types.JobEmbedding, r.embed},
	}
}

// execute runs the stages from current onwards and completes the job.
// current is the status the job already holds: its work is redone in place,
// without a transition, after replaying the earlier in-memory work it
// depends on (the parsed queries, and the fetched papers for storing). A
// pending job runs every stage.
func (r *run) execute(ctx context.Context, req types.IngestRequest, current types.JobStatus) error {
	steps := r.steps(req)
	at := slices.Index(types.JobStages, current)

	for i, s := range steps {
		switch {
		case at < 0 || i > at:
			if err := r.stage(ctx, s.stage, s.fn); err != nil {
				return err
			}
		case i == at:
			if err := r.continueStage(ctx, s.stage, s.fn); err != nil {
				return err
			}
		case current == types.JobFetching || current == types.JobStoring:
			if err := s.fn(ctx); err != nil {
				return r.fail(ctx, current, 0, err)
			}
		}
	}
	return r.complete(ctx)
}

// stage enters s, runs fn, and records the outcome.
func (r *run) stage(ctx context.Context, s types.JobStatus, fn func(context.Context) error) error {
	if err := r.enter(ctx, s); err != nil {
		return err
	}
	return r.work(ctx, s, fn)
}

// continueStage redoes the work of s, the stage the job is already in.
func (r *run) continueStage(ctx context.Context, s types.JobStatus, fn func(context.Context) error) error {
	r.job.Progress.CurrentStage = s
	r.job.Progress.Stage(s).Status = types.StageInProgress
	if err := r.o.store.UpdateJob(ctx, r.job); err != nil {
		return fmt.Errorf("persisting %s stage: %w", s, err)
	}
	r.log.Info("stage resumed", zap.String("stage", string(s)))
	r.publish(stageEvent(s))
	return r.work(ctx, s, fn)
}

func (r *run) work(ctx context.Context, s types.JobStatus, fn func(context.Context) error) error {
	began := r.o.now()
	err := fn(ctx)
	elapsed := r.o.now().Sub(began)
	if err != nil {
		metrics.StageDuration.WithLabelValues(string(s), "error").Observe(elapsed.Seconds())
		return r.fail(ctx, s, elapsed, err)
	}
	metrics.StageDuration.WithLabelValues(string(s), "success").Observe(elapsed.Seconds())
	sp := r.job.Progress.Stage(s)
	sp.Status = types.StageCompleted
	sp.DurationMs = durationMs(elapsed)
	return nil
}

// retry redoes the chunk and embed work of a failed job over its stored
// papers. The job stays failed; the outcome goes into the stage details.
func (r *run) retry(ctx context.Context) error {
	r.log.Info("retrying chunking and embedding", zap.String("failed_stage", string(r.job.FailedStage)))
	r.publish(activity.Event{
		Type:    activity.Processing,
		Message: "Retrying chunking and embedding for stored papers",
	})

	for _, s := range []step{{types.JobChunking, r.chunk}, {types.JobEmbedding, r.embed}} {
		if err := s.fn(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.job.Progress.Stage(s.stage).Detail = "retry failed: " + err.Error()
			r.publish(activity.Event{
				Type:    activity.Error,
				Message: fmt.Sprintf("Retry failed while %s", s.stage),
				Detail:  err.Error(),
			})
			if perr := r.o.store.UpdateJob(ctx, r.job); perr != nil {
				return errors.Join(err, fmt.Errorf("persisting retry: %w", perr))
			}
			return fmt.Errorf("retry %s: %w", s.stage, err)
		}
		r.job.Progress.Stage(s.stage).Status = types.StageCompleted
	}

	e := r.job.Progress.Embeddings
	detail := fmt.Sprintf("retried after failure: %d of %d passages embedded", e.Completed, e.Total)
	if e.Completed < e.Total {
		detail += "; resume again to retry the rest"
	}
	r.job.Progress.Stage(types.JobEmbedding).Detail = detail
	if err := r.o.store.UpdateJob(ctx, r.job); err != nil {
		return fmt.Errorf("persisting retry: %w", err)
	}
	r.log.Info("retry finished", zap.Int("embedded", e.Completed), zap.Int("total", e.Total))
	r.publish(activity.Event{
		Type:     activity.Complete,
		Message:  "Retry complete",
		Detail:   detail,
		Progress: activity.Float(e.Percent),
	})
	return nil
}

// enter advances the state machine, persists progress, and broadcasts the
// stage start.
func (r *run) enter(ctx context.Context, s types.JobStatus) error {
	if err := r.job.Advance(s); err != nil {
		return err
	}
	r.job.Progress.CurrentStage = s
	r.job.Progress.Stage(s).Status = types.StageInProgress
	if err := r.o.store.UpdateJob(ctx, r.job); err != nil {
		return fmt.Errorf("persisting %s stage: %w", s, err)
	}
	r.log.Info("stage started", zap.String("stage", string(s)))
	r.publish(stageEvent(s))
	return nil
}

// fail marks the job failed unless ctx was cancelled, in which case the job
// stays at its last persisted stage.
func (r *run) fail(ctx context.Context, s types.JobStatus, elapsed time.Duration, cause error) error {
	if ctx.Err() != nil {
		r.log.Warn("stage interrupted", zap.String("stage", string(s)), zap.Error(ctx.Err()))
		return ctx.Err()
	}

	sp := r.job.Progress.Stage(s)
	sp.Status = types.StageFailed
	sp.DurationMs = durationMs(elapsed)
	if err := r.job.Advance(types.JobFailed); err != nil {
		return errors.Join(cause, err)
	}
	now := r.o.now()
	r.job.FailedStage = s
	r.job.ErrorMessage = cause.Error()
	r.job.CompletedAt = &now

	metrics.JobsTotal.WithLabelValues(string(types.JobFailed)).Inc()
	r.log.Error("job failed", zap.String("stage", string(s)), zap.Error(cause))
	r.publish(activity.Event{
		Type:    activity.Error,
		Message: fmt.Sprintf("Ingestion failed while %s", s),
		Detail:  cause.Error(),
	})

	if err := r.o.store.UpdateJob(ctx, r.job); err != nil {
		return errors.Join(fmt.Errorf("%s: %w", s, cause), fmt.Errorf("persisting failure: %w", err))
	}
	return fmt.Errorf("%s: %w", s, cause)
}

func (r *run) complete(ctx context.Context) error {
	if err := r.job.Advance(types.JobCompleted); err != nil {
		return err
	}
	now := r.o.now()
	r.job.Progress.CurrentStage = types.JobCompleted
	r.job.CompletedAt = &now
	if err := r.o.store.UpdateJob(ctx, r.job); err != nil {
		return fmt.Errorf("persisting completion: %w", err)
	}

	metrics.JobsTotal.WithLabelValues(string(types.JobCompleted)).Inc()
	p := r.job.Progress
	r.log.Info("ingest completed",
		zap.Int("papers_stored", p.Papers.PapersStored),
		zap.Int("chunks", p.Chunks.TotalCreated),
		zap.Int("embedded", p.Embeddings.Completed),
		zap.Duration("elapsed", now.Sub(r.start)))
	r.publish(activity.Event{
		Type:    activity.Complete,
		Message: "Ingestion complete",
		Detail: fmt.Sprintf("%d papers stored, %d chunks, %d embedded",
			p.Papers.PapersStored, p.Chunks.TotalCreated, p.Embeddings.Completed),
	})
	return nil
}

func (r *run) publish(e activity.Event) {
	if r.o.events == nil {
		return
	}
	e.JobID = r.job.ID
	r.o.events.Publish(e)
}

func stageEvent(s types.JobStatus) activity.Event {
	switch s {
	case types.JobParsing:
		return activity.Event{Type: activity.Thinking, Message: "Parsing research question"}
	case types.JobFetching:
		return activity.Event{Type: activity.Searching, Message: "Searching literature catalogs"}
	case types.JobStoring:
		return activity.Event{Type: activity.Processing, Message: "Deduplicating and storing papers"}
	case types.JobChunking:
		return activity.Event{Type: activity.Processing, Message: "Splitting papers into passages"}
	case types.JobEmbedding:
		return activity.Event{Type: activity.Embedding, Message: "Generating embeddings", Progress: activity.Float(0)}
	}
	return activity.Event{Type: activity.Processing, Message: string(s)}
}

func durationMs(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

// round rounds v to the given number of decimals.
func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
