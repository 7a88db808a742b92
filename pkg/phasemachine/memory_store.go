package phasemachine

import (
	"context"
	"sync"
	"time"

	"github.com/tudragon154203/product-video-matching-sub000/pkg/domain"
)

// MemoryJobStore is an in-process JobStore fake used by service_test.go,
// run_test.go and internal/integrationsim.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
}

// NewMemoryJobStore builds an empty MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]domain.Job)}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, jobID string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *MemoryJobStore) UpdatePhase(_ context.Context, jobID string, phase domain.Phase, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Phase = phase
	job.UpdatedAt = now
	if phase == domain.PhaseCompleted {
		t := now
		job.CompletedAt = &t
	}
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryJobStore) Cancel(_ context.Context, jobID, reason, notes string, now time.Time) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	job.Phase = domain.PhaseCancelled
	job.CancellationReason = reason
	job.CancellationNotes = notes
	job.CancelledAt = &now
	job.UpdatedAt = now
	s.jobs[jobID] = job
	return job, nil
}

func (s *MemoryJobStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

// MemoryPhaseEventStore is an in-process PhaseEventStore fake.
type MemoryPhaseEventStore struct {
	mu       sync.Mutex
	received map[string]map[string]bool
}

// NewMemoryPhaseEventStore builds an empty MemoryPhaseEventStore.
func NewMemoryPhaseEventStore() *MemoryPhaseEventStore {
	return &MemoryPhaseEventStore{received: make(map[string]map[string]bool)}
}

func (s *MemoryPhaseEventStore) RecordCompletion(_ context.Context, jobID, topic, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.received[jobID] == nil {
		s.received[jobID] = make(map[string]bool)
	}
	if s.received[jobID][topic] {
		return false, nil
	}
	s.received[jobID][topic] = true
	return true, nil
}

func (s *MemoryPhaseEventStore) ReceivedTopics(_ context.Context, jobID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.received[jobID]))
	for k, v := range s.received[jobID] {
		out[k] = v
	}
	return out, nil
}

var (
	_ JobStore        = (*MemoryJobStore)(nil)
	_ PhaseEventStore = (*MemoryPhaseEventStore)(nil)
)
