package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/domain/verdict"
	"scoregate/ports"
)

// submissionStore implements ports.SubmissionStore on the tournament database
type submissionStore struct {
	db *sqlx.DB
}

// NewSubmissionStore creates a new PostgreSQL submission store
func NewSubmissionStore(db *sqlx.DB) ports.SubmissionStore {
	return &submissionStore{db: db}
}

func notFound(err error, resource string, id core.SubmissionID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewNotFoundError(resource, id.String())
	}
	return fmt.Errorf("failed to get %s of submission %s: %w", resource, id, err)
}

// ResolveRound returns the round a submission was made in
func (s *submissionStore) ResolveRound(ctx context.Context, id core.SubmissionID) (submission.Round, error) {
	var r submission.Round
	err := s.db.GetContext(ctx, &r, `
		SELECT r.id, r.tournament, r.number AS round_number, COALESCE(r.dataset_path, '') AS dataset_path
		FROM submissions s
		INNER JOIN rounds r
		  ON s.round_id = r.id
		    AND s.id = $1`, id)
	if err != nil {
		return submission.Round{}, notFound(err, "round", id)
	}
	return r, nil
}

// ResolveFileLocation returns the object key of the submission upload,
// which lives under the owner's username
func (s *submissionStore) ResolveFileLocation(ctx context.Context, id core.SubmissionID) (submission.FileLocation, error) {
	var loc submission.FileLocation
	err := s.db.GetContext(ctx, &loc, `
		SELECT u.username AS path, s.filename
		FROM submissions s
		INNER JOIN users u ON u.id = s.user_id
		WHERE s.id = $1`, id)
	if err != nil {
		return submission.FileLocation{}, notFound(err, "file location", id)
	}
	return loc, nil
}

func (s *submissionStore) ResolveOwner(ctx context.Context, id core.SubmissionID) (submission.Owner, error) {
	var owner submission.Owner
	err := s.db.GetContext(ctx, &owner, `SELECT round_id, user_id FROM submissions WHERE id = $1`, id)
	if err != nil {
		return submission.Owner{}, notFound(err, "owner", id)
	}
	return owner, nil
}

func (s *submissionStore) SubmissionCreatedAt(ctx context.Context, id core.SubmissionID) (time.Time, error) {
	var t time.Time
	err := s.db.GetContext(ctx, &t, `SELECT inserted_at FROM submissions WHERE id = $1`, id)
	if err != nil {
		return time.Time{}, notFound(err, "inserted_at", id)
	}
	return t, nil
}

// ListCompetingSubmissions returns everyone else's selected submissions in
// the round that are original or still pending, newest first
func (s *submissionStore) ListCompetingSubmissions(ctx context.Context, round core.RoundID, user core.UserID, before time.Time) ([]core.SubmissionID, error) {
	var ids []core.SubmissionID
	err := s.db.SelectContext(ctx, &ids, `
		SELECT s.id FROM submissions s
		INNER JOIN originalities o
		  ON s.id = o.submission_id
		WHERE s.round_id = $1 AND
		  s.user_id != $2 AND
		  s.inserted_at < $3 AND
		  s.selected = TRUE AND
		  (o.value = TRUE OR o.pending = TRUE)
		ORDER BY s.inserted_at DESC`, round, user, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list competing submissions: %w", err)
	}
	return ids, nil
}

func (s *submissionStore) WriteOriginality(ctx context.Context, v verdict.Originality) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO originalities (submission_id, pending, value, reason, matched_id, statistic)
		VALUES ($1, FALSE, $2, $3, $4, $5)
		ON CONFLICT (submission_id) DO UPDATE SET
		  pending = FALSE,
		  value = EXCLUDED.value,
		  reason = EXCLUDED.reason,
		  matched_id = EXCLUDED.matched_id,
		  statistic = EXCLUDED.statistic`,
		v.SubmissionID, v.IsOriginal, string(v.Reason), nullableID(v.MatchedID), nullable(v.Statistic))
	if err != nil {
		return fmt.Errorf("failed to write originality: %w", err)
	}
	return nil
}

func (s *submissionStore) WriteConcordance(ctx context.Context, v verdict.Concordance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO concordances (submission_id, pending, value, mean_ks)
		VALUES ($1, FALSE, $2, $3)
		ON CONFLICT (submission_id) DO UPDATE SET
		  pending = FALSE,
		  value = EXCLUDED.value,
		  mean_ks = EXCLUDED.mean_ks`,
		v.SubmissionID, v.IsConcordant, nullable(v.MeanKS))
	if err != nil {
		return fmt.Errorf("failed to write concordance: %w", err)
	}
	return nil
}

func (s *submissionStore) WriteConsistency(ctx context.Context, v verdict.Consistency) error {
	return s.updateSubmission(ctx, v.SubmissionID, "consistency",
		`UPDATE submissions SET consistency = $1 WHERE id = $2`, v.Percent, v.SubmissionID)
}

func (s *submissionStore) WriteValidationMetrics(ctx context.Context, m verdict.Metrics) error {
	return s.updateSubmission(ctx, m.SubmissionID, "metrics", `
		UPDATE submissions SET
		  validation_logloss = $1, test_logloss = $2,
		  validation_auroc = $3, test_auroc = $4
		WHERE id = $5`,
		nullable(m.ValidationLogLoss), nullable(m.TestLogLoss),
		nullable(m.ValidationAUROC), nullable(m.TestAUROC), m.SubmissionID)
}

func (s *submissionStore) updateSubmission(ctx context.Context, id core.SubmissionID, what, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", what, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NewNotFoundError("submission", id.String())
	}
	return nil
}

func (s *submissionStore) MarkConcordancePending(ctx context.Context, id core.SubmissionID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO concordances (pending, submission_id) VALUES (TRUE, $1) ON CONFLICT (submission_id) DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("failed to mark concordance pending: %w", err)
	}
	return nil
}

func (s *submissionStore) MarkOriginalityPending(ctx context.Context, id core.SubmissionID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO originalities (pending, submission_id) VALUES (TRUE, $1) ON CONFLICT (submission_id) DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("failed to mark originality pending: %w", err)
	}
	return nil
}

// nullable stores NaN as NULL
func nullable(f float64) sql.NullFloat64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func nullableID(id core.SubmissionID) sql.NullString {
	if id == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
