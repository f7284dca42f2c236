package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/indexer"
	"github.com/mikeboe/deep-research/pkg/research"
)

// memStore is an in-memory JobStore.
type memStore struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*database.Job
	iterations map[uuid.UUID][]database.IterationRecord
	logs       map[uuid.UUID][]database.LogEntry
	done       chan uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		jobs:       make(map[uuid.UUID]*database.Job),
		iterations: make(map[uuid.UUID][]database.IterationRecord),
		logs:       make(map[uuid.UUID][]database.LogEntry),
		done:       make(chan uuid.UUID, 16),
	}
}

func (m *memStore) CreateJob(_ context.Context, seed string, config any) (*database.Job, error) {
	cfg, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	job := &database.Job{
		ID:        uuid.New(),
		Seed:      seed,
		Status:    database.StatusPending,
		Config:    cfg,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (*database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) ListJobs(context.Context, int) ([]database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Job
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (m *memStore) SetJobStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return database.ErrJobNotFound
	}
	job.Status = status
	return nil
}

func (m *memStore) SaveIteration(_ context.Context, jobID uuid.UUID, iteration int, confidence float64, retained int, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iterations[jobID] = append(m.iterations[jobID], database.IterationRecord{
		Iteration:  iteration,
		Confidence: confidence,
		Retained:   retained,
		Result:     data,
	})
	return nil
}

func (m *memStore) ListIterations(_ context.Context, jobID uuid.UUID) ([]database.IterationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.iterations[jobID], nil
}

func (m *memStore) FinishJob(_ context.Context, id uuid.UUID, status, reason string, confidence float64, report any, errMsg string) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return database.ErrJobNotFound
	}
	job.Status = status
	job.Reason = &reason
	job.Confidence = &confidence
	job.Report = data
	if errMsg != "" {
		job.Error = &errMsg
	}
	m.mu.Unlock()
	m.done <- id
	return nil
}

func (m *memStore) FailJob(_ context.Context, id uuid.UUID, errMsg string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return database.ErrJobNotFound
	}
	job.Status = database.StatusFailed
	job.Error = &errMsg
	m.mu.Unlock()
	m.done <- id
	return nil
}

func (m *memStore) InsertLog(_ context.Context, jobID uuid.UUID, ts time.Time, level, message string, metadata []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[jobID] = append(m.logs[jobID], database.LogEntry{
		ID:        len(m.logs[jobID]) + 1,
		Timestamp: ts,
		Level:     level,
		Message:   message,
		Metadata:  metadata,
	})
	return nil
}

func (m *memStore) GetJobLogs(_ context.Context, jobID uuid.UUID) ([]database.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logs[jobID], nil
}

// stubCollaborator answers every call with canned data. Search blocks until
// the context ends when block is set.
type stubCollaborator struct {
	block      bool
	confidence float64
	expandErr  error
}

func (s stubCollaborator) Expand(_ context.Context, seed string, _ []string, count int) ([]string, error) {
	if s.expandErr != nil {
		return nil, s.expandErr
	}
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", seed, i)
	}
	return out, nil
}

func (s stubCollaborator) Search(ctx context.Context, query string, _ int) ([]research.Document, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []research.Document{{
		URL:     "https://example.com/" + uuid.NewString(),
		Title:   query,
		Content: "content for " + query,
	}}, nil
}

func (s stubCollaborator) Evaluate(_ context.Context, d research.Document, _ research.ResearchContext) (*research.Evaluation, error) {
	return &research.Evaluation{Score: 9, Summary: "about " + d.Title, KeyPoints: []string{"point"}}, nil
}

func (s stubCollaborator) Synthesize(_ context.Context, seed string, summaries []research.EvaluatedSummary, _ string) (*research.Synthesis, error) {
	return &research.Synthesis{
		Narrative:  fmt.Sprintf("%s across %d sources", seed, len(summaries)),
		Confidence: s.confidence,
	}, nil
}

type recordingIndexer struct {
	mu      sync.Mutex
	reports []*research.FinalReport
}

func (r *recordingIndexer) Index(_ context.Context, rep *research.FinalReport) (indexer.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return indexer.Stats{Indexed: len(rep.Sources)}, nil
}

func testResearchConfig() research.Config {
	cfg := research.DefaultConfig()
	cfg.CallTimeout = time.Second
	cfg.Retry = research.RetryPolicy{MaxAttempts: 1}
	return cfg
}
