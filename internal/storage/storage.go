package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/shelfripper/internal/models"
)

// JobStore keeps download jobs in memory. Callers only ever see copies;
// changes go through Update.
type JobStore struct {
	jobs    map[string]*models.Job
	cancels map[string]context.CancelFunc
	mu      sync.RWMutex
}

func New() *JobStore {
	return &JobStore{
		jobs:    make(map[string]*models.Job),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create stores a new queued job and assigns its ID
func (s *JobStore) Create(catalogID, selection string) *models.Job {
	job := &models.Job{
		ID:        uuid.NewString(),
		CatalogID: catalogID,
		Selection: selection,
		Status:    models.JobQueued,
		Books:     []models.JobBook{},
		CreatedAt: time.Now(),
		Documents: make(map[int][]byte),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job.Clone()
}

func (s *JobStore) Get(jobID string) (*models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, exists := s.jobs[jobID]
	if !exists {
		return nil, false
	}
	return job.Clone(), true
}

// Update applies fn to the stored job under the store lock
func (s *JobStore) Update(jobID string, fn func(*models.Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, exists := s.jobs[jobID]
	if !exists {
		return false
	}
	fn(job)
	return true
}

// GetAll returns every job, oldest first
func (s *JobStore) GetAll() []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		result = append(result, job.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// SetCancel registers the function that stops a running job
func (s *JobStore) SetCancel(jobID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[jobID] = cancel
}

// Cancel stops a running job; it reports false if nothing was running
func (s *JobStore) Cancel(jobID string) bool {
	s.mu.Lock()
	cancel, exists := s.cancels[jobID]
	delete(s.cancels, jobID)
	s.mu.Unlock()

	if !exists {
		return false
	}
	cancel()
	return true
}

// Finish releases the job's cancel function once it has stopped
func (s *JobStore) Finish(jobID string) {
	s.mu.Lock()
	cancel, exists := s.cancels[jobID]
	delete(s.cancels, jobID)
	s.mu.Unlock()

	if exists {
		cancel()
	}
}

func (s *JobStore) Delete(jobID string) {
	s.mu.Lock()
	cancel, exists := s.cancels[jobID]
	delete(s.cancels, jobID)
	delete(s.jobs, jobID)
	s.mu.Unlock()

	if exists {
		cancel()
	}
}
