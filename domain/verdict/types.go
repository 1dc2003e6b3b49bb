package verdict

import (
	"scoregate/domain/core"
)

// OriginalityReason explains an originality verdict
type OriginalityReason string

const (
	ReasonOriginal       OriginalityReason = "original"
	ReasonCorrelated     OriginalityReason = "correlated"
	ReasonExactDuplicate OriginalityReason = "exact_duplicate"
	ReasonTooSimilar     OriginalityReason = "too_similar"
)

// Originality is the outcome of comparing a submission against its competitors
type Originality struct {
	SubmissionID core.SubmissionID
	IsOriginal   bool
	Reason       OriginalityReason
	// MatchedID is the competitor that disqualified the submission, if any.
	MatchedID core.SubmissionID
	// SimilarIDs lists competitors whose KS statistic fell under the similarity threshold.
	SimilarIDs []core.SubmissionID
	// Statistic is the correlation or KS value that decided the verdict.
	Statistic float64
	Skipped   int
}

// Concordance is the outcome of the per-cluster partition comparison
type Concordance struct {
	SubmissionID core.SubmissionID
	IsConcordant bool
	MeanKS       float64
	PerCluster   map[int]float64
}

// Consistency is the share of validation eras beating the benchmark
type Consistency struct {
	SubmissionID core.SubmissionID
	Percent      float64
	Eras         int
	ErasBeaten   int
}

// Metrics holds loss figures on the labelled partitions. Test figures are
// NaN when the round's test rows carry no targets.
type Metrics struct {
	SubmissionID      core.SubmissionID
	ValidationLogLoss float64
	ValidationAUROC   float64
	TestLogLoss       float64
	TestAUROC         float64
}
