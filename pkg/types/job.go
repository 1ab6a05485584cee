// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// JobStatus is a state of the ingestion state machine.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobParsing   JobStatus = "parsing"
	JobFetching  JobStatus = "fetching"
	JobStoring   JobStatus = "storing"
	JobChunking  JobStatus = "chunking"
	JobEmbedding JobStatus = "embedding"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobStages lists the working stages in execution order. Each one has an
// entry in Progress.Stages.
var JobStages = []JobStatus{JobParsing, JobFetching, JobStoring, JobChunking, JobEmbedding}

// statusOrder ranks the non-failed states; failed is handled separately.
var statusOrder = map[JobStatus]int{
	JobPending:   0,
	JobParsing:   1,
	JobFetching:  2,
	JobStoring:   3,
	JobChunking:  4,
	JobEmbedding: 5,
	JobCompleted: 6,
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	if s == JobFailed {
		return true
	}
	_, ok := statusOrder[s]
	return ok
}

// CanTransition reports whether the state machine allows from → to: exactly
// one step forward, or to failed from any non-terminal state.
func CanTransition(from, to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == JobFailed {
		return true
	}
	fi, ok1 := statusOrder[from]
	ti, ok2 := statusOrder[to]
	return ok1 && ok2 && ti == fi+1
}

// IngestJob is the persisted state record of one ingestion request.
type IngestJob struct {
	ID            string    `json:"id" yaml:"id"`
	Status        JobStatus `json:"status" yaml:"status"`
	OriginalQuery string    `json:"original_query" yaml:"original_query"`
	ParsedQueries []string  `json:"parsed_queries" yaml:"parsed_queries"`
	Progress      Progress  `json:"progress" yaml:"progress"`

	// Request is the caller's request, replayed when the job is resumed.
	Request IngestRequest `json:"request" yaml:"request"`

	// ErrorMessage and FailedStage are set when Status is failed.
	ErrorMessage string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	FailedStage  JobStatus `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`

	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Advance moves the job to status to, rejecting skipped stages, backward
// moves, and moves out of a terminal state.
func (j *IngestJob) Advance(to JobStatus) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("job %s: invalid transition %s -> %s", j.ID, j.Status, to)
	}
	j.Status = to
	return nil
}

// IngestRequest carries the caller's parameters for a new job.
type IngestRequest struct {
	Query        string   `json:"query" yaml:"query"`
	YearFrom     int      `json:"year_from,omitempty" yaml:"year_from,omitempty"`
	YearTo       int      `json:"year_to,omitempty" yaml:"year_to,omitempty"`
	MaxPerSource int      `json:"max_per_source,omitempty" yaml:"max_per_source,omitempty"`
	Sources      []string `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// StageState is the status of one stage inside the progress document.
type StageState string

const (
	StagePending    StageState = "pending"
	StageInProgress StageState = "in_progress"
	StageCompleted  StageState = "completed"
	StageFailed     StageState = "failed"
)

// StageProgress is the per-stage entry of the progress document.
type StageProgress struct {
	Status     StageState `json:"status" yaml:"status"`
	DurationMs *int64     `json:"durationMs,omitempty" yaml:"durationMs,omitempty"`
	Detail     string     `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// PaperProgress counts fetched, deduplicated, and stored papers.
type PaperProgress struct {
	OpenAlexFound        int `json:"openalexFound" yaml:"openalexFound"`
	SemanticScholarFound int `json:"semanticScholarFound" yaml:"semanticScholarFound"`
	DuplicatesRemoved    int `json:"duplicatesRemoved" yaml:"duplicatesRemoved"`
	UniquePapers         int `json:"uniquePapers" yaml:"uniquePapers"`
	PapersStored         int `json:"papersStored" yaml:"papersStored"`
}

// ChunkProgress summarises the chunking stage.
type ChunkProgress struct {
	TotalCreated    int     `json:"totalCreated" yaml:"totalCreated"`
	AveragePerPaper float64 `json:"averagePerPaper" yaml:"averagePerPaper"`
}

// EmbeddingProgress tracks embedding batches as they complete.
type EmbeddingProgress struct {
	Completed int     `json:"completed" yaml:"completed"`
	Total     int     `json:"total" yaml:"total"`
	Percent   float64 `json:"percent" yaml:"percent"`
}

// Progress is the job progress document persisted with the job and streamed
// to observers. Field names and nesting are a compatibility surface for
// progress UIs.
type Progress struct {
	CurrentStage JobStatus                    `json:"currentStage" yaml:"currentStage"`
	Stages       map[JobStatus]*StageProgress `json:"stages" yaml:"stages"`
	Papers       PaperProgress                `json:"papers" yaml:"papers"`
	Chunks       ChunkProgress                `json:"chunks" yaml:"chunks"`
	Embeddings   EmbeddingProgress            `json:"embeddings" yaml:"embeddings"`
}

// NewProgress returns a document with every stage pending.
func NewProgress() Progress {
	p := Progress{
		CurrentStage: JobPending,
		Stages:       make(map[JobStatus]*StageProgress, len(JobStages)),
	}
	for _, s := range JobStages {
		p.Stages[s] = &StageProgress{Status: StagePending}
	}
	return p
}

// Stage returns the entry for s, creating it if the document was decoded
// without one.
func (p *Progress) Stage(s JobStatus) *StageProgress {
	if p.Stages == nil {
		p.Stages = make(map[JobStatus]*StageProgress, len(JobStages))
	}
	sp, ok := p.Stages[s]
	if !ok {
		sp = &StageProgress{Status: StagePending}
		p.Stages[s] = sp
	}
	return sp
}
