package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

var _ driven.RefreshJobStore = (*RefreshJobStore)(nil)

// RefreshJobStore keeps refresh jobs in memory. Jobs are lost on restart.
type RefreshJobStore struct {
	mu   sync.Mutex
	jobs map[connectionKey]*domain.RefreshJob
}

func NewRefreshJobStore() *RefreshJobStore {
	return &RefreshJobStore{jobs: make(map[connectionKey]*domain.RefreshJob)}
}

func (s *RefreshJobStore) Save(ctx context.Context, job *domain.RefreshJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := *job
	s.jobs[connectionKey{job.UserID, job.Platform}] = &j
	return nil
}

func (s *RefreshJobStore) Get(ctx context.Context, userID string, platform domain.Platform) (*domain.RefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[connectionKey{userID, platform}]
	if !ok {
		return nil, nil
	}
	c := *j
	return &c, nil
}

func (s *RefreshJobStore) Due(ctx context.Context, now time.Time, limit int) ([]*domain.RefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.RefreshJob
	for _, j := range s.jobs {
		if j.IsDue(now) {
			c := *j
			due = append(due, &c)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].NextRunAt.Before(due[k].NextRunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *RefreshJobStore) Reschedule(ctx context.Context, userID string, platform domain.Platform, ranAt, nextRunAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[connectionKey{userID, platform}]
	if !ok {
		return domain.ErrNotFound
	}
	j.LastRunAt = &ranAt
	j.NextRunAt = nextRunAt
	j.LastError = lastError
	if lastError == "" {
		j.Attempts = 0
	} else {
		j.Attempts++
	}
	return nil
}

func (s *RefreshJobStore) Delete(ctx context.Context, userID string, platform domain.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, connectionKey{userID, platform})
	return nil
}

func (s *RefreshJobStore) CountDue(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, j := range s.jobs {
		if j.IsDue(now) {
			n++
		}
	}
	return n, nil
}
