package pipeline

import (
	"context"
	"fmt"

	"scoregate/domain/core"
	"scoregate/domain/dataset"
	"scoregate/domain/submission"
	"scoregate/internal"
	"scoregate/internal/scoring"
	"scoregate/ports"
)

// Check names reported to a VerdictRecorder
const (
	CheckOriginality = "originality"
	CheckConcordance = "concordance"
)

// VerdictRecorder counts persisted verdicts.
type VerdictRecorder interface {
	Verdict(check string, passed bool)
}

type nopVerdicts struct{}

func (nopVerdicts) Verdict(string, bool) {}

// vectorInvalidator is implemented by vector sources that cache.
type vectorInvalidator interface {
	Invalidate(id core.SubmissionID)
}

// Stages holds the handlers of the three queues.
type Stages struct {
	Store             ports.SubmissionStore
	Vectors           scoring.VectorSource
	Rounds            *scoring.RoundData
	OriginalityEngine *scoring.OriginalityEngine
	ConcordanceEngine *scoring.ConcordanceEngine
	Consistency       scoring.ConsistencyConfig

	// OriginalityQueue and ConcordanceQueue receive every submission the
	// leaderboard stage scored.
	OriginalityQueue ports.Queue
	ConcordanceQueue ports.Queue

	Verdicts VerdictRecorder
	Log      *internal.Logger
}

func (s *Stages) verdicts() VerdictRecorder {
	if s.Verdicts == nil {
		return nopVerdicts{}
	}
	return s.Verdicts
}

func (s *Stages) logger() *internal.Logger {
	if s.Log == nil {
		return internal.Discard()
	}
	return s.Log
}

// Leaderboard writes the consistency score and validation metrics, then
// marks both checks pending and enqueues the submission for them. Nothing
// is enqueued unless the consistency score was written.
//
// A submission arriving here may have replaced its file, so any cached
// vector for it is dropped first.
func (s *Stages) Leaderboard(ctx context.Context, item submission.QueueItem) error {
	id := item.SubmissionID
	if inv, ok := s.Vectors.(vectorInvalidator); ok {
		inv.Invalidate(id)
	}
	round, err := s.Store.ResolveRound(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to resolve round of %s: %w", id, err)
	}
	data, err := s.Rounds.Get(ctx, round)
	if err != nil {
		return fmt.Errorf("failed to load dataset for %s: %w", round.Key(), err)
	}
	vec, err := s.Vectors.Vector(ctx, id)
	if err != nil {
		return err
	}

	score, err := scoring.Consistency(id, vec, data, round.Tournament, s.Consistency)
	if err != nil {
		return fmt.Errorf("consistency of %s: %w", id, err)
	}
	if err := s.Store.WriteConsistency(ctx, score); err != nil {
		return fmt.Errorf("failed to write consistency of %s: %w", id, err)
	}
	s.logger().Info("%s consistency %.1f%% (%d/%d eras)", id, score.Percent, score.ErasBeaten, score.Eras)

	if err := s.writeMetrics(ctx, id, round, vec, data); err != nil {
		s.logger().Warn("metrics of %s not updated: %v", id, err)
	}

	return s.fanOut(ctx, id)
}

func (s *Stages) writeMetrics(ctx context.Context, id core.SubmissionID, round submission.Round, vec *submission.Vector, data *dataset.Round) error {
	target, err := s.Consistency.TargetColumn(round.Tournament)
	if err != nil {
		return err
	}
	m, err := scoring.ValidationMetrics(id, vec, data, target)
	if err != nil {
		return err
	}
	return s.Store.WriteValidationMetrics(ctx, m)
}

func (s *Stages) fanOut(ctx context.Context, id core.SubmissionID) error {
	if err := s.Store.MarkConcordancePending(ctx, id); err != nil {
		return fmt.Errorf("failed to mark concordance pending for %s: %w", id, err)
	}
	if err := s.Store.MarkOriginalityPending(ctx, id); err != nil {
		return fmt.Errorf("failed to mark originality pending for %s: %w", id, err)
	}
	next := submission.NewQueueItem(id)
	for _, q := range []ports.Queue{s.OriginalityQueue, s.ConcordanceQueue} {
		if err := q.Enqueue(ctx, next); err != nil {
			return fmt.Errorf("failed to enqueue %s on %s: %w", id, q.Name(), err)
		}
	}
	return nil
}

// Originality compares a submission against earlier competing submissions
// from other users in its round and writes the verdict.
func (s *Stages) Originality(ctx context.Context, item submission.QueueItem) error {
	id := item.SubmissionID
	owner, err := s.Store.ResolveOwner(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to resolve owner of %s: %w", id, err)
	}
	createdAt, err := s.Store.SubmissionCreatedAt(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read creation time of %s: %w", id, err)
	}
	competitors, err := s.Store.ListCompetingSubmissions(ctx, owner.RoundID, owner.UserID, createdAt)
	if err != nil {
		return fmt.Errorf("failed to list competitors of %s: %w", id, err)
	}
	candidate, err := s.Vectors.Vector(ctx, id)
	if err != nil {
		return err
	}

	v, err := s.OriginalityEngine.Check(ctx, id, candidate, competitors)
	if err != nil {
		return fmt.Errorf("originality of %s: %w", id, err)
	}
	if err := s.Store.WriteOriginality(ctx, v); err != nil {
		return fmt.Errorf("failed to write originality of %s: %w", id, err)
	}
	s.verdicts().Verdict(CheckOriginality, v.IsOriginal)
	s.logger().Info("%s originality %t (%s, %d competitors, %d skipped)", id, v.IsOriginal, v.Reason, len(competitors), v.Skipped)
	return nil
}

// Concordance scores a submission against its round's clustering and
// writes the verdict.
func (s *Stages) Concordance(ctx context.Context, item submission.QueueItem) error {
	id := item.SubmissionID
	round, err := s.Store.ResolveRound(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to resolve round of %s: %w", id, err)
	}
	v, err := s.ConcordanceEngine.Score(ctx, id, round)
	if err != nil {
		return fmt.Errorf("concordance of %s: %w", id, err)
	}
	if err := s.Store.WriteConcordance(ctx, v); err != nil {
		return fmt.Errorf("failed to write concordance of %s: %w", id, err)
	}
	s.verdicts().Verdict(CheckConcordance, v.IsConcordant)
	s.logger().Info("%s concordance %t (mean ks %.4f)", id, v.IsConcordant, v.MeanKS)
	return nil
}
