// Package extract drives a document through preparation and batched model
// extraction, appending records to a sink as each group settles.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical/mcq-extractor/internal/cache"
	"github.com/spherical/mcq-extractor/internal/domain"
	"github.com/spherical/mcq-extractor/internal/observability"
)

const (
	defaultPageGroupSize  = 4
	defaultChunkGroupSize = 1
	defaultConcurrency    = 3
	defaultMaxChunkChars  = 30000
)

// Options configures batching
type Options struct {
	PageGroupSize  int
	ChunkGroupSize int
	Concurrency    int
	MaxChunkChars  int
	// Model is folded into cache keys so a model switch never reuses answers.
	Model string
}

// DefaultOptions returns the default batching options
func DefaultOptions() Options {
	return Options{
		PageGroupSize:  defaultPageGroupSize,
		ChunkGroupSize: defaultChunkGroupSize,
		Concurrency:    defaultConcurrency,
		MaxChunkChars:  defaultMaxChunkChars,
	}
}

// CancelToken is a cooperative cancellation flag checked before preparation
// and between waves. In-flight calls are allowed to finish.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken creates an unset token
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel requests cancellation
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// PageCounter reports a PDF's page count without rendering it
type PageCounter func(data []byte) (int, error)

// Service orchestrates the extraction process
type Service struct {
	rasterizer domain.Rasterizer
	converter  domain.Converter
	extractor  domain.Extractor
	sink       domain.RecordSink
	cache      *cache.ResultCache
	pageCount  PageCounter
	opts       Options
	logger     *observability.Logger

	mu      sync.RWMutex
	status  domain.ProcessingStatus
	running bool
}

// NewService creates a new extraction service writing into sink
func NewService(rasterizer domain.Rasterizer, converter domain.Converter, extractor domain.Extractor, sink domain.RecordSink, opts Options, logger *observability.Logger) *Service {
	defaults := DefaultOptions()
	if opts.PageGroupSize <= 0 {
		opts.PageGroupSize = defaults.PageGroupSize
	}
	if opts.ChunkGroupSize <= 0 {
		opts.ChunkGroupSize = defaults.ChunkGroupSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = defaults.MaxChunkChars
	}
	if logger == nil {
		logger = observability.Nop()
	}

	return &Service{
		rasterizer: rasterizer,
		converter:  converter,
		extractor:  extractor,
		sink:       sink,
		opts:       opts,
		logger:     logger.WithOperation("extract"),
		status:     domain.ProcessingStatus{State: domain.StateIdle},
	}
}

// WithCache serves repeated groups from rc. A nil rc disables caching.
func (s *Service) WithCache(rc *cache.ResultCache) *Service {
	s.cache = rc
	return s
}

// WithPageCounter sets the preflight used to report a PDF's page total
// before rendering.
func (s *Service) WithPageCounter(fn PageCounter) *Service {
	s.pageCount = fn
	return s
}

// Status returns a snapshot of the current run
func (s *Service) Status() domain.ProcessingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// run carries the mutable counters of one Process call
type run struct {
	start    time.Time
	units    int
	groups   int
	failed   int
	hits     int
	records  int
	language string
	eventCh  chan<- domain.StreamEvent
}

// Process runs the whole pipeline for doc. The sink is reset first. The
// returned error is non-nil when the run ends in the error state or when
// ctx is cancelled; a token cancellation returns a summary and no error.
func (s *Service) Process(ctx context.Context, doc domain.Document, language string, token *CancelToken, eventCh chan<- domain.StreamEvent) (domain.RunSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return domain.RunSummary{}, domain.ValidationError("a run is already in progress", nil)
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	r := &run{start: time.Now(), language: language, eventCh: eventCh}

	s.sink.Reset()
	s.setStatus(r, domain.EventStart, nil, func(st *domain.ProcessingStatus) {
		*st = domain.ProcessingStatus{State: domain.StateAnalyzing, Message: "Analyzing " + doc.Name}
	})

	s.logger.Info().
		Str("file", doc.Name).
		Str("kind", string(doc.Kind)).
		Int("bytes", len(doc.Data)).
		Msg("Starting extraction")

	if doc.Kind == domain.KindUnknown {
		return s.fail(r, domain.ValidationError("unsupported file type, please choose a PDF or Word document", nil))
	}

	if token.Cancelled() {
		return s.cancelled(r)
	}

	units, groupSize, err := s.prepare(ctx, r, doc)
	if err != nil {
		if ctx.Err() != nil {
			return s.aborted(r, ctx.Err())
		}
		return s.fail(r, err)
	}

	groups := groupUnits(units, groupSize)
	r.units, r.groups = len(units), len(groups)

	s.setStatus(r, domain.EventStatus, nil, func(st *domain.ProcessingStatus) {
		st.State = domain.StateExtracting
		st.Total = len(units)
		st.Current = 0
		st.Message = fmt.Sprintf("Extracting questions from %d part(s) in %d request(s)", len(units), len(groups))
	})

	for start := 0; start < len(groups); start += s.opts.Concurrency {
		if token.Cancelled() {
			return s.cancelled(r)
		}
		if err := ctx.Err(); err != nil {
			return s.aborted(r, err)
		}

		end := start + s.opts.Concurrency
		if end > len(groups) {
			end = len(groups)
		}

		if err := s.runWave(ctx, r, groups[start:end], start); err != nil {
			return s.fail(r, err)
		}
	}

	if token.Cancelled() {
		return s.cancelled(r)
	}
	if err := ctx.Err(); err != nil {
		return s.aborted(r, err)
	}

	return s.complete(r)
}

// prepare turns the document into content units
func (s *Service) prepare(ctx context.Context, r *run, doc domain.Document) ([]domain.ContentUnit, int, error) {
	switch doc.Kind {
	case domain.KindPDF:
		if s.pageCount != nil {
			if n, err := s.pageCount(doc.Data); err != nil {
				s.logger.Warn().Err(err).Msg("Page count preflight failed")
			} else {
				s.setStatus(r, domain.EventStatus, nil, func(st *domain.ProcessingStatus) {
					st.Total = n
					st.Message = fmt.Sprintf("Rendering %d page(s)", n)
				})
			}
		}

		pages, err := s.rasterizer.Rasterize(ctx, doc.Data)
		if err != nil {
			return nil, 0, err
		}
		units := make([]domain.ContentUnit, len(pages))
		for i, p := range pages {
			units[i] = domain.UnitFromPage(p)
		}
		s.logger.Info().Int("pages", len(pages)).Msg("Rendered pages")
		return units, s.opts.PageGroupSize, nil

	case domain.KindWord:
		s.setStatus(r, domain.EventStatus, nil, func(st *domain.ProcessingStatus) {
			st.Message = "Converting document"
		})

		chunks, err := s.converter.Convert(ctx, doc.Data, s.opts.MaxChunkChars)
		if err != nil {
			return nil, 0, err
		}
		units := make([]domain.ContentUnit, len(chunks))
		for i, c := range chunks {
			units[i] = domain.UnitFromChunk(c)
		}
		s.logger.Info().Int("chunks", len(chunks)).Msg("Converted document")
		return units, s.opts.ChunkGroupSize, nil
	}

	return nil, 0, domain.ValidationError("unsupported document kind "+string(doc.Kind), nil)
}

// runWave dispatches one wave of groups concurrently and waits for all of
// them. Only a fatal failure is returned.
func (s *Service) runWave(ctx context.Context, r *run, wave [][]domain.ContentUnit, offset int) error {
	var g errgroup.Group

	for i, group := range wave {
		index := offset + i
		group := group
		g.Go(func() error {
			return s.extractGroup(ctx, r, index, group)
		})
	}

	return g.Wait()
}

// extractGroup runs one group through the cache and the model
func (s *Service) extractGroup(ctx context.Context, r *run, index int, group []domain.ContentUnit) error {
	label := groupLabel(group)
	key := cache.GroupKey(s.opts.Model, r.language, group)

	records, hit := s.cache.Get(ctx, key)
	if !hit {
		var err error
		records, err = s.extractor.Extract(ctx, group, r.language)
		if err != nil {
			if domain.IsFatal(err) {
				s.logger.Error().Err(err).Str("group", label).Msg("Fatal extraction failure")
				return err
			}
			// Aborted by the caller; Process reports it after the wave.
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}

			s.logger.Warn().Err(err).Str("group", label).Int("group_index", index).Msg("Group extraction failed")
			s.setStatus(r, domain.EventUnitFailed, label, func(st *domain.ProcessingStatus) {
				r.failed += len(group)
				st.Current += len(group)
				st.Message = fmt.Sprintf("Failed to extract %s", label)
			})
			return nil
		}
		if err := s.cache.Set(ctx, key, records); err != nil {
			s.logger.Debug().Err(err).Msg("Result not cached")
		}
	}

	s.sink.Append(records...)

	s.setStatus(r, domain.EventRecords, records, func(st *domain.ProcessingStatus) {
		if hit {
			r.hits++
		}
		r.records += len(records)
		st.Current += len(group)
		st.Records = r.records
		st.Message = fmt.Sprintf("Found %d question(s) in %s", len(records), label)
	})

	return nil
}

func (s *Service) complete(r *run) (domain.RunSummary, error) {
	msg := fmt.Sprintf("Extraction complete: %d question(s)", r.records)
	if r.failed > 0 {
		msg += fmt.Sprintf(", %d part(s) failed", r.failed)
	}
	if r.units == 0 {
		msg = "Extraction complete: no content found"
	}

	s.setStatus(r, domain.EventComplete, nil, func(st *domain.ProcessingStatus) {
		st.State = domain.StateComplete
		st.Message = msg
	})

	summary := s.summary(r, false)
	s.logger.Info().
		Int("records", summary.Records).
		Int("units", summary.Units).
		Int("failed_units", summary.FailedUnits).
		Int("cache_hits", summary.CacheHits).
		Dur("duration", summary.Duration).
		Msg("Extraction complete")

	return summary, nil
}

func (s *Service) cancelled(r *run) (domain.RunSummary, error) {
	s.setStatus(r, domain.EventCancelled, nil, func(st *domain.ProcessingStatus) {
		st.State = domain.StateIdle
		st.Cancelled = true
		st.Message = "cancelled"
	})
	s.logger.Info().Int("records", r.records).Msg("Extraction cancelled")
	return s.summary(r, true), nil
}

// aborted ends a run whose context was cancelled
func (s *Service) aborted(r *run, err error) (domain.RunSummary, error) {
	s.setStatus(r, domain.EventCancelled, nil, func(st *domain.ProcessingStatus) {
		st.State = domain.StateIdle
		st.Cancelled = true
		st.Message = "cancelled"
	})
	s.logger.Warn().Err(err).Int("records", r.records).Msg("Extraction aborted")
	return s.summary(r, true), err
}

func (s *Service) fail(r *run, err error) (domain.RunSummary, error) {
	s.setStatus(r, domain.EventError, err.Error(), func(st *domain.ProcessingStatus) {
		st.State = domain.StateError
		st.Message = err.Error()
	})
	s.logger.Error().Err(err).Msg("Extraction failed")
	return s.summary(r, false), err
}

func (s *Service) summary(r *run, cancelled bool) domain.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.RunSummary{
		Records:     r.records,
		Units:       r.units,
		Groups:      r.groups,
		FailedUnits: r.failed,
		CacheHits:   r.hits,
		Cancelled:   cancelled,
		Duration:    time.Since(r.start),
	}
}

// setStatus mutates status and run counters under the lock, then emits a
// snapshot.
func (s *Service) setStatus(r *run, eventType domain.EventType, payload interface{}, mutate func(*domain.ProcessingStatus)) {
	s.mu.Lock()
	mutate(&s.status)
	snapshot := s.status
	s.mu.Unlock()

	s.emitEvent(r.eventCh, domain.StreamEvent{
		Type:      eventType,
		Status:    snapshot,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// emitEvent safely emits an event to the channel
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh != nil {
		select {
		case eventCh <- event:
		default:
			s.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}
}

// groupUnits splits units into consecutive groups of at most size
func groupUnits(units []domain.ContentUnit, size int) [][]domain.ContentUnit {
	if size <= 0 {
		size = 1
	}
	groups := make([][]domain.ContentUnit, 0, (len(units)+size-1)/size)
	for start := 0; start < len(units); start += size {
		end := start + size
		if end > len(units) {
			end = len(units)
		}
		groups = append(groups, units[start:end])
	}
	return groups
}

// groupLabel names a group by its first and last unit, e.g. "page 1 to page 4"
func groupLabel(group []domain.ContentUnit) string {
	if len(group) == 0 {
		return ""
	}
	if len(group) == 1 {
		return group[0].Label
	}
	return group[0].Label + " to " + group[len(group)-1].Label
}
