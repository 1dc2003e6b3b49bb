package scoring

import (
	"context"
	"math"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/domain/verdict"
	"scoregate/internal"
	"scoregate/internal/stats"
)

// OriginalityConfig holds the duplicate-detection thresholds
type OriginalityConfig struct {
	ExactDupeThreshold float64
	SimilarThreshold   float64
	MaxSimilar         int
	CorrelationLimit   float64
}

// DefaultOriginalityConfig returns the production thresholds
func DefaultOriginalityConfig() OriginalityConfig {
	return OriginalityConfig{
		ExactDupeThreshold: 0.005,
		SimilarThreshold:   0.03,
		MaxSimilar:         1,
		CorrelationLimit:   0.95,
	}
}

// OriginalityEngine decides whether a submission is a near-duplicate of a
// competitor's earlier submission.
type OriginalityEngine struct {
	vectors VectorSource
	cfg     OriginalityConfig
	log     *internal.Logger
}

// NewOriginalityEngine creates an originality engine
func NewOriginalityEngine(vectors VectorSource, cfg OriginalityConfig, log *internal.Logger) *OriginalityEngine {
	return &OriginalityEngine{vectors: vectors, cfg: cfg, log: log.Component("originality")}
}

// Check compares candidate against competitors, most recent first, in two
// passes. The first pass disqualifies on an id-aligned Pearson correlation
// above the limit. Only if none is found, the second pass compares value
// distributions with the KS statistic: below the exact threshold is a
// duplicate, at or below the similar threshold counts toward MaxSimilar.
//
// Competitors whose file is unavailable (a soft error) or whose length
// differs from the candidate's are skipped for the rest of the check, with
// a warning on length mismatch. Any other load failure aborts the check so
// that no verdict is written from partial information.
func (e *OriginalityEngine) Check(ctx context.Context, id core.SubmissionID, candidate *submission.Vector, competitors []core.SubmissionID) (verdict.Originality, error) {
	result := verdict.Originality{SubmissionID: id, IsOriginal: true, Reason: verdict.ReasonOriginal}
	skipped := make(map[core.SubmissionID]struct{})
	finish := func(v verdict.Originality) (verdict.Originality, error) {
		v.Skipped = len(skipped)
		return v, nil
	}

	load := func(cid core.SubmissionID) (*submission.Vector, error) {
		if cid == id {
			return nil, nil
		}
		if _, seen := skipped[cid]; seen {
			return nil, nil
		}
		other, err := e.vectors.Vector(ctx, cid)
		if err != nil {
			if core.IsSoft(err) {
				skipped[cid] = struct{}{}
				return nil, nil
			}
			return nil, err
		}
		if other.Len() != candidate.Len() {
			e.log.Warn("skipping competitor %s of %s: %d rows vs %d", cid, id, other.Len(), candidate.Len())
			skipped[cid] = struct{}{}
			return nil, nil
		}
		return other, nil
	}

	if !stats.IsConstant(candidate.ByID()) {
		for _, cid := range competitors {
			other, err := load(cid)
			if err != nil {
				return result, err
			}
			if other == nil || stats.IsConstant(other.ByID()) {
				continue
			}
			r := stats.Pearson(candidate.ByID(), other.ByID())
			if math.Abs(r) > e.cfg.CorrelationLimit {
				e.log.Debug("%s correlates with %s at %.4f", id, cid, r)
				return finish(disqualify(result, verdict.ReasonCorrelated, cid, r))
			}
		}
	}

	similar := 0
	for _, cid := range competitors {
		other, err := load(cid)
		if err != nil {
			return result, err
		}
		if other == nil {
			continue
		}
		score, err := stats.OriginalityScore(candidate.ByValue(), other.ByValue())
		if err != nil {
			continue
		}
		if score < e.cfg.ExactDupeThreshold {
			return finish(disqualify(result, verdict.ReasonExactDuplicate, cid, score))
		}
		if score <= e.cfg.SimilarThreshold {
			similar++
			result.SimilarIDs = append(result.SimilarIDs, cid)
			if similar >= e.cfg.MaxSimilar {
				return finish(disqualify(result, verdict.ReasonTooSimilar, cid, score))
			}
		}
	}
	return finish(result)
}

func disqualify(v verdict.Originality, reason verdict.OriginalityReason, matched core.SubmissionID, statistic float64) verdict.Originality {
	v.IsOriginal = false
	v.Reason = reason
	v.MatchedID = matched
	v.Statistic = statistic
	return v
}
