package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/indexer"
	"github.com/mikeboe/deep-research/pkg/research"
)

var (
	// ErrJobNotRunning is returned when cancelling a job that is not in flight.
	ErrJobNotRunning = errors.New("job is not running")
	ErrInvalidJob    = errors.New("invalid research parameters")
)

// JobStore persists research jobs, their iterations and logs.
type JobStore interface {
	LogWriter
	CreateJob(ctx context.Context, seed string, config any) (*database.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error)
	ListJobs(ctx context.Context, limit int) ([]database.Job, error)
	SetJobStatus(ctx context.Context, id uuid.UUID, status string) error
	SaveIteration(ctx context.Context, jobID uuid.UUID, iteration int, confidence float64, retained int, result any) error
	ListIterations(ctx context.Context, jobID uuid.UUID) ([]database.IterationRecord, error)
	FinishJob(ctx context.Context, id uuid.UUID, status, reason string, confidence float64, report any, errMsg string) error
	FailJob(ctx context.Context, id uuid.UUID, errMsg string) error
	GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]database.LogEntry, error)
}

// ReportIndexer stores the sources of a finished report for retrieval.
type ReportIndexer interface {
	Index(ctx context.Context, r *research.FinalReport) (indexer.Stats, error)
}

var (
	_ JobStore      = (*database.PostgresDB)(nil)
	_ ReportIndexer = (*indexer.Indexer)(nil)
)

type Service struct {
	Jobs         JobStore
	Research     research.Config
	Collaborator research.Collaborator
	// Indexer is optional; without it reports are not indexed.
	Indexer ReportIndexer
	// Console receives a copy of every job log record when set.
	Console slog.Handler

	ctx     context.Context
	stop    context.CancelFunc
	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
}

func NewService(jobs JobStore, cfg research.Config, c research.Collaborator) *Service {
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		Jobs:         jobs,
		Research:     cfg,
		Collaborator: c,
		ctx:          ctx,
		stop:         stop,
		running:      make(map[uuid.UUID]context.CancelFunc),
	}
}

type CreateJobRequest struct {
	Seed          string   `json:"seed" binding:"required"`
	MaxIterations int      `json:"max_iterations,omitempty"`
	MaxQueries    int      `json:"max_queries,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`
}

// config applies the request overrides to the service defaults.
func (r CreateJobRequest) config(base research.Config) (research.Config, error) {
	cfg := base
	if r.MaxIterations > 0 {
		cfg.MaxIterations = r.MaxIterations
	}
	if r.MaxQueries > 0 {
		cfg.MaxQueries = r.MaxQueries
	}
	if r.MinConfidence != nil {
		cfg.MinConfidence = *r.MinConfidence
	}
	return cfg, cfg.Validate()
}

// CreateJob stores a pending job and starts researching it in the background.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*database.Job, error) {
	seed := strings.TrimSpace(req.Seed)
	if seed == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJob, research.ErrEmptySeed)
	}
	cfg, err := req.config(s.Research)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	job, err := s.Jobs.CreateJob(ctx, seed, cfg)
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.running[job.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(job.ID)
		s.runWorker(jobCtx, job.ID, seed, cfg)
	}()

	return job, nil
}

func (s *Service) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.running[id]; ok {
		cancel()
		delete(s.running, id)
	}
}

// CancelJob stops a running job. The job finishes with the cancelled reason
// and keeps whatever it had gathered.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Jobs.GetJob(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return ErrJobNotRunning
	}
	cancel()
	return nil
}

// Running reports whether a job is in flight.
func (s *Service) Running(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

// Shutdown cancels every running job and waits for the workers to record
// their results, or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error) {
	return s.Jobs.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context) ([]database.Job, error) {
	return s.Jobs.ListJobs(ctx, 50)
}

func (s *Service) GetJobLogs(ctx context.Context, id uuid.UUID) ([]database.LogEntry, error) {
	if _, err := s.Jobs.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.Jobs.GetJobLogs(ctx, id)
}

func (s *Service) GetIterations(ctx context.Context, id uuid.UUID) ([]database.IterationRecord, error) {
	if _, err := s.Jobs.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.Jobs.ListIterations(ctx, id)
}

func (s *Service) runWorker(ctx context.Context, jobID uuid.UUID, seed string, cfg research.Config) {
	// Writes use a detached context so a cancelled job still records its outcome.
	store := context.WithoutCancel(ctx)
	logger := slog.New(NewDBLogHandler(s.Jobs, jobID, s.Console))

	if err := s.Jobs.SetJobStatus(store, jobID, database.StatusRunning); err != nil {
		logger.Error("Failed to mark job running", "error", err)
	}

	engine, err := research.NewEngine(cfg, s.Collaborator)
	if err != nil {
		s.failJob(store, logger, jobID, fmt.Sprintf("Failed to init engine: %v", err))
		return
	}
	engine.Logger = logger
	engine.OnIteration = func(r research.IterationResult) {
		if err := s.Jobs.SaveIteration(store, jobID, r.Index, r.Confidence, len(r.Retained), r); err != nil {
			logger.Error("Failed to save iteration", "iteration", r.Index, "error", err)
		}
	}

	report, err := engine.Run(ctx, seed)
	if report == nil {
		s.failJob(store, logger, jobID, fmt.Sprintf("Research failed: %v", err))
		return
	}
	// The job ID names the session everywhere it is stored.
	report.ID = jobID.String()

	status := database.StatusCompleted
	switch {
	case report.Reason == research.ReasonCancelled:
		status = database.StatusCancelled
	case report.Reason.Failed():
		status = database.StatusFailed
	}
	if err := s.Jobs.FinishJob(store, jobID, status, string(report.Reason), report.Confidence, report, report.Error); err != nil {
		logger.Error("Failed to save final report", "error", err)
	}

	if s.Indexer == nil || len(report.Sources) == 0 {
		return
	}
	stats, err := s.Indexer.Index(store, report)
	if err != nil {
		logger.Error("Failed to index sources", "error", err)
		return
	}
	logger.Info("Indexed sources", "indexed", stats.Indexed, "skipped", stats.Skipped, "failed", stats.Failed, "chunks", stats.Chunks)
}

func (s *Service) failJob(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, reason string) {
	logger.Error(reason)
	if err := s.Jobs.FailJob(ctx, jobID, reason); err != nil {
		logger.Error("Failed to mark job failed", "error", err)
	}
}
