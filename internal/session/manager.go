// Package session runs extraction jobs in the background, each with its
// own record store, status and cancel token.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/mcq-extractor/internal/cache"
	"github.com/spherical/mcq-extractor/internal/domain"
	"github.com/spherical/mcq-extractor/internal/extract"
	"github.com/spherical/mcq-extractor/internal/observability"
	"github.com/spherical/mcq-extractor/internal/store"
)

const defaultMaxJobs = 50

// Dependencies are shared by every job
type Dependencies struct {
	Rasterizer  domain.Rasterizer
	Converter   domain.Converter
	Extractor   domain.Extractor
	Cache       *cache.ResultCache
	PageCounter extract.PageCounter
	Options     extract.Options
}

// Job is one extraction run
type Job struct {
	ID        string
	FileName  string
	Kind      domain.DocumentKind
	Language  string
	CreatedAt time.Time

	Store   *store.Store
	service *extract.Service
	token   *extract.CancelToken
	done    chan struct{}

	mu         sync.RWMutex
	summary    *domain.RunSummary
	err        error
	finishedAt time.Time
}

// View is the JSON form of a job
type View struct {
	ID         string                  `json:"id"`
	FileName   string                  `json:"fileName"`
	Kind       domain.DocumentKind     `json:"kind"`
	Language   string                  `json:"language"`
	CreatedAt  time.Time               `json:"createdAt"`
	FinishedAt *time.Time              `json:"finishedAt,omitempty"`
	Status     domain.ProcessingStatus `json:"status"`
	Summary    *SummaryView            `json:"summary,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// SummaryView is the JSON form of a run summary
type SummaryView struct {
	Records     int   `json:"records"`
	Units       int   `json:"units"`
	Groups      int   `json:"groups"`
	FailedUnits int   `json:"failedUnits"`
	CacheHits   int   `json:"cacheHits"`
	Cancelled   bool  `json:"cancelled"`
	DurationMS  int64 `json:"durationMs"`
}

// Status returns the job's current processing status
func (j *Job) Status() domain.ProcessingStatus {
	return j.service.Status()
}

// Done is closed once the run settles
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Finished reports whether the run has settled
func (j *Job) Finished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Result returns the summary and error of a settled run
func (j *Job) Result() (*domain.RunSummary, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.summary, j.err
}

// View returns a snapshot for serialization
func (j *Job) View() View {
	v := View{
		ID:        j.ID,
		FileName:  j.FileName,
		Kind:      j.Kind,
		Language:  j.Language,
		CreatedAt: j.CreatedAt,
		Status:    j.Status(),
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		v.FinishedAt = &t
	}
	if j.summary != nil {
		v.Summary = &SummaryView{
			Records:     j.summary.Records,
			Units:       j.summary.Units,
			Groups:      j.summary.Groups,
			FailedUnits: j.summary.FailedUnits,
			CacheHits:   j.summary.CacheHits,
			Cancelled:   j.summary.Cancelled,
			DurationMS:  j.summary.Duration.Milliseconds(),
		}
	}
	if j.err != nil {
		v.Error = j.err.Error()
	}
	return v
}

func (j *Job) finish(summary domain.RunSummary, err error) {
	j.mu.Lock()
	j.summary = &summary
	j.err = err
	j.finishedAt = time.Now()
	j.mu.Unlock()
	close(j.done)
}

// Manager owns the jobs of a server process
type Manager struct {
	deps    Dependencies
	maxJobs int
	logger  *observability.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
}

// NewManager creates a job manager retaining at most maxJobs jobs
func NewManager(deps Dependencies, maxJobs int, logger *observability.Logger) *Manager {
	if maxJobs <= 0 {
		maxJobs = defaultMaxJobs
	}
	if logger == nil {
		logger = observability.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		deps:    deps,
		maxJobs: maxJobs,
		logger:  logger.WithOperation("session"),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*Job),
	}
}

// Start registers a job for doc and runs it in the background
func (m *Manager) Start(doc domain.Document, language string) (*Job, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, domain.ValidationError("server is shutting down", err)
	}

	st := store.New()
	job := &Job{
		ID:        uuid.NewString(),
		FileName:  doc.Name,
		Kind:      doc.Kind,
		Language:  language,
		CreatedAt: time.Now(),
		Store:     st,
		token:     extract.NewCancelToken(),
		done:      make(chan struct{}),
	}
	job.service = extract.NewService(m.deps.Rasterizer, m.deps.Converter, m.deps.Extractor, st, m.deps.Options, m.logger.WithJob(job.ID)).
		WithCache(m.deps.Cache).
		WithPageCounter(m.deps.PageCounter)

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.evictLocked()
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		summary, err := job.service.Process(m.ctx, doc, language, job.token, nil)
		job.finish(summary, err)
	}()

	m.logger.Info().
		Str("job_id", job.ID).
		Str("file", doc.Name).
		Str("kind", string(doc.Kind)).
		Msg("Job started")

	return job, nil
}

// Get returns the job with id
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.NotFoundError("job " + id + " not found")
	}
	return job, nil
}

// List returns jobs newest first
func (m *Manager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.jobs[m.order[i]])
	}
	return out
}

// Cancel requests cooperative cancellation of a job
func (m *Manager) Cancel(id string) (*Job, error) {
	job, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	job.token.Cancel()
	m.logger.Info().Str("job_id", id).Msg("Job cancellation requested")
	return job, nil
}

// Shutdown cancels every running job and waits for them until ctx is done
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, job := range m.jobs {
		job.token.Cancel()
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		// Abort in-flight model calls.
		m.cancel()
		<-done
		return ctx.Err()
	}
}

// evictLocked drops the oldest finished jobs beyond the retention limit.
// Running jobs are never evicted.
func (m *Manager) evictLocked() {
	for i := 0; len(m.order) > m.maxJobs && i < len(m.order); {
		id := m.order[i]
		if m.jobs[id].Finished() {
			delete(m.jobs, id)
			m.order = append(m.order[:i], m.order[i+1:]...)
			continue
		}
		i++
	}
}
