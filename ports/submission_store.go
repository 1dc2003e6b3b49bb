package ports

import (
	"context"
	"time"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/domain/verdict"
)

// SubmissionStore defines the datastore operations the scoring pipeline consumes
type SubmissionStore interface {
	// Lookups
	ResolveRound(ctx context.Context, id core.SubmissionID) (submission.Round, error)
	ResolveFileLocation(ctx context.Context, id core.SubmissionID) (submission.FileLocation, error)
	ResolveOwner(ctx context.Context, id core.SubmissionID) (submission.Owner, error)
	SubmissionCreatedAt(ctx context.Context, id core.SubmissionID) (time.Time, error)

	// ListCompetingSubmissions returns other users' selected submissions in the
	// round inserted before the cutoff that are original or still pending,
	// most recent first.
	ListCompetingSubmissions(ctx context.Context, round core.RoundID, user core.UserID, before time.Time) ([]core.SubmissionID, error)

	// Verdict writes
	WriteOriginality(ctx context.Context, v verdict.Originality) error
	WriteConcordance(ctx context.Context, v verdict.Concordance) error
	WriteConsistency(ctx context.Context, v verdict.Consistency) error
	WriteValidationMetrics(ctx context.Context, m verdict.Metrics) error

	// Pending markers
	MarkConcordancePending(ctx context.Context, id core.SubmissionID) error
	MarkOriginalityPending(ctx context.Context, id core.SubmissionID) error
}
