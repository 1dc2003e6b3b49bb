package testkit

import (
	"context"
	"sort"
	"sync"
	"time"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/domain/verdict"
	"scoregate/ports"
)

// SubmissionRecord is one row of the in-memory submissions table
type SubmissionRecord struct {
	ID        core.SubmissionID
	RoundID   core.RoundID
	UserID    core.UserID
	Filename  string
	CreatedAt time.Time
	Selected  bool
}

// InMemoryStore is a SubmissionStore for tests and the demo command
type InMemoryStore struct {
	mu          sync.RWMutex
	rounds      map[core.RoundID]submission.Round
	users       map[core.UserID]string
	submissions map[core.SubmissionID]SubmissionRecord

	originality        map[core.SubmissionID]verdict.Originality
	originalityPending map[core.SubmissionID]bool
	concordance        map[core.SubmissionID]verdict.Concordance
	concordancePending map[core.SubmissionID]bool
	consistency        map[core.SubmissionID]verdict.Consistency
	metrics            map[core.SubmissionID]verdict.Metrics
}

var _ ports.SubmissionStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rounds:             make(map[core.RoundID]submission.Round),
		users:              make(map[core.UserID]string),
		submissions:        make(map[core.SubmissionID]SubmissionRecord),
		originality:        make(map[core.SubmissionID]verdict.Originality),
		originalityPending: make(map[core.SubmissionID]bool),
		concordance:        make(map[core.SubmissionID]verdict.Concordance),
		concordancePending: make(map[core.SubmissionID]bool),
		consistency:        make(map[core.SubmissionID]verdict.Consistency),
		metrics:            make(map[core.SubmissionID]verdict.Metrics),
	}
}

// AddRound registers a round
func (s *InMemoryStore) AddRound(r submission.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[r.ID] = r
}

// AddUser registers a user; uploads live under the username
func (s *InMemoryStore) AddUser(id core.UserID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = username
}

// AddSubmission registers a submission
func (s *InMemoryStore) AddSubmission(rec SubmissionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[rec.ID] = rec
}

func (s *InMemoryStore) record(id core.SubmissionID) (SubmissionRecord, error) {
	rec, ok := s.submissions[id]
	if !ok {
		return SubmissionRecord{}, core.NewNotFoundError("submission", id.String())
	}
	return rec, nil
}

func (s *InMemoryStore) ResolveRound(ctx context.Context, id core.SubmissionID) (submission.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(id)
	if err != nil {
		return submission.Round{}, err
	}
	r, ok := s.rounds[rec.RoundID]
	if !ok {
		return submission.Round{}, core.NewNotFoundError("round", rec.RoundID.String())
	}
	return r, nil
}

func (s *InMemoryStore) ResolveFileLocation(ctx context.Context, id core.SubmissionID) (submission.FileLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(id)
	if err != nil {
		return submission.FileLocation{}, err
	}
	name, ok := s.users[rec.UserID]
	if !ok {
		return submission.FileLocation{}, core.NewNotFoundError("user", rec.UserID.String())
	}
	return submission.FileLocation{Path: name, Filename: rec.Filename}, nil
}

func (s *InMemoryStore) ResolveOwner(ctx context.Context, id core.SubmissionID) (submission.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(id)
	if err != nil {
		return submission.Owner{}, err
	}
	return submission.Owner{RoundID: rec.RoundID, UserID: rec.UserID}, nil
}

func (s *InMemoryStore) SubmissionCreatedAt(ctx context.Context, id core.SubmissionID) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(id)
	if err != nil {
		return time.Time{}, err
	}
	return rec.CreatedAt, nil
}

func (s *InMemoryStore) ListCompetingSubmissions(ctx context.Context, round core.RoundID, user core.UserID, before time.Time) ([]core.SubmissionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recs []SubmissionRecord
	for id, rec := range s.submissions {
		if rec.RoundID != round || rec.UserID == user || !rec.Selected || !rec.CreatedAt.Before(before) {
			continue
		}
		pending, tracked := s.originalityPending[id]
		if !tracked {
			continue
		}
		if pending || s.originality[id].IsOriginal {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	ids := make([]core.SubmissionID, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	return ids, nil
}

func (s *InMemoryStore) WriteOriginality(ctx context.Context, v verdict.Originality) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.record(v.SubmissionID); err != nil {
		return err
	}
	s.originality[v.SubmissionID] = v
	s.originalityPending[v.SubmissionID] = false
	return nil
}

func (s *InMemoryStore) WriteConcordance(ctx context.Context, v verdict.Concordance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.record(v.SubmissionID); err != nil {
		return err
	}
	s.concordance[v.SubmissionID] = v
	s.concordancePending[v.SubmissionID] = false
	return nil
}

func (s *InMemoryStore) WriteConsistency(ctx context.Context, v verdict.Consistency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.record(v.SubmissionID); err != nil {
		return err
	}
	s.consistency[v.SubmissionID] = v
	return nil
}

func (s *InMemoryStore) WriteValidationMetrics(ctx context.Context, m verdict.Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.record(m.SubmissionID); err != nil {
		return err
	}
	s.metrics[m.SubmissionID] = m
	return nil
}

// MarkConcordancePending creates a pending marker unless a row already exists.
func (s *InMemoryStore) MarkConcordancePending(ctx context.Context, id core.SubmissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.concordancePending[id]; !ok {
		s.concordancePending[id] = true
	}
	return nil
}

// MarkOriginalityPending creates a pending marker unless a row already exists.
func (s *InMemoryStore) MarkOriginalityPending(ctx context.Context, id core.SubmissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.originalityPending[id]; !ok {
		s.originalityPending[id] = true
	}
	return nil
}

// Originality returns the stored originality verdict
func (s *InMemoryStore) Originality(id core.SubmissionID) (verdict.Originality, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.originality[id]
	return v, ok
}

// Concordance returns the stored concordance verdict
func (s *InMemoryStore) Concordance(id core.SubmissionID) (verdict.Concordance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.concordance[id]
	return v, ok
}

// Consistency returns the stored consistency verdict
func (s *InMemoryStore) Consistency(id core.SubmissionID) (verdict.Consistency, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.consistency[id]
	return v, ok
}

// Metrics returns the stored validation metrics
func (s *InMemoryStore) Metrics(id core.SubmissionID) (verdict.Metrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.metrics[id]
	return v, ok
}

// Pending reports the pending markers of a submission
func (s *InMemoryStore) Pending(id core.SubmissionID) (originality, concordance bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.originalityPending[id], s.concordancePending[id]
}
