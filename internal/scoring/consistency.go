package scoring

import (
	"fmt"
	"math"
	"sort"

	"scoregate/domain/core"
	"scoregate/domain/dataset"
	"scoregate/domain/submission"
	"scoregate/domain/verdict"
	"scoregate/internal/stats"
)

// DefaultTargets maps tournament ids to their target column; index 0 is unused.
var DefaultTargets = []string{
	"sentinel", "target_bernie", "target_elizabeth", "target_jordan",
	"target_ken", "target_charles", "target_frank", "target_hillary",
}

// ConsistencyConfig controls the per-era benchmark comparison
type ConsistencyConfig struct {
	Benchmark float64
	EraCount  int
	Targets   []string
}

// DefaultConsistencyConfig returns the production settings
func DefaultConsistencyConfig() ConsistencyConfig {
	return ConsistencyConfig{Benchmark: 0.002, EraCount: 12, Targets: DefaultTargets}
}

// TargetColumn returns the target column scored for a tournament.
func (c ConsistencyConfig) TargetColumn(tournament int) (string, error) {
	if tournament <= 0 || tournament >= len(c.Targets) {
		return "", core.NewSchemaError("targets", fmt.Sprintf("no target column for tournament %d", tournament))
	}
	return c.Targets[tournament], nil
}

// Consistency returns the percentage of validation eras in which the rank
// correlation between the submission and the target beats the benchmark.
// The number of validation eras must equal cfg.EraCount.
func Consistency(id core.SubmissionID, vec *submission.Vector, data *dataset.Round, tournament int, cfg ConsistencyConfig) (verdict.Consistency, error) {
	target, err := cfg.TargetColumn(tournament)
	if err != nil {
		return verdict.Consistency{}, err
	}
	frame := data.Tournament
	targets, ok := frame.Number(target)
	if !ok {
		return verdict.Consistency{}, core.NewSchemaError("tournament data", "missing target column "+target)
	}
	eras, ok := frame.Text(dataset.ColumnEra)
	if !ok {
		return verdict.Consistency{}, core.NewSchemaError("tournament data", "missing era column")
	}

	type pairs struct{ target, prob []float64 }
	byEra := make(map[string]*pairs)
	validation := data.Partitions.Validation
	for i, rowID := range validation.IDs {
		row := validation.Rows[i]
		p := byEra[eras[row]]
		if p == nil {
			p = &pairs{}
			byEra[eras[row]] = p
		}
		prob, ok := vec.Lookup(rowID)
		if !ok || math.IsNaN(targets[row]) {
			continue
		}
		p.target = append(p.target, targets[row])
		p.prob = append(p.prob, prob)
	}

	if len(byEra) != cfg.EraCount {
		return verdict.Consistency{}, core.NewDataShapeError("expected %d validation eras, found %d", cfg.EraCount, len(byEra))
	}

	names := make([]string, 0, len(byEra))
	for era := range byEra {
		names = append(names, era)
	}
	sort.Strings(names)

	beaten := 0
	for _, era := range names {
		p := byEra[era]
		if len(p.prob) == 0 {
			return verdict.Consistency{}, core.NewDataShapeError("submission %s has no rows in era %s", id, era)
		}
		corr, err := stats.RankCorrelation(p.target, p.prob)
		if err != nil {
			return verdict.Consistency{}, core.NewDataShapeError("era %s: %v", era, err)
		}
		if corr > cfg.Benchmark {
			beaten++
		}
	}

	return verdict.Consistency{
		SubmissionID: id,
		Percent:      float64(beaten) / float64(len(names)) * 100,
		Eras:         len(names),
		ErasBeaten:   beaten,
	}, nil
}

// ValidationMetrics computes logloss and AUROC on the validation and test
// partitions. Rows without a target are ignored; a partition with no
// labelled rows reports NaN.
func ValidationMetrics(id core.SubmissionID, vec *submission.Vector, data *dataset.Round, target string) (verdict.Metrics, error) {
	targets, ok := data.Tournament.Number(target)
	if !ok {
		return verdict.Metrics{}, core.NewSchemaError("tournament data", "missing target column "+target)
	}

	m := verdict.Metrics{SubmissionID: id}
	var err error
	m.ValidationLogLoss, m.ValidationAUROC, err = partitionMetrics(vec, data.Partitions.Validation, targets)
	if err != nil {
		return verdict.Metrics{}, fmt.Errorf("validation metrics: %w", err)
	}
	m.TestLogLoss, m.TestAUROC, err = partitionMetrics(vec, data.Partitions.Test, targets)
	if err != nil {
		return verdict.Metrics{}, fmt.Errorf("test metrics: %w", err)
	}
	return m, nil
}

func partitionMetrics(vec *submission.Vector, part dataset.Partition, targets []float64) (float64, float64, error) {
	var y, p []float64
	for i, id := range part.IDs {
		t := targets[part.Rows[i]]
		if math.IsNaN(t) {
			continue
		}
		prob, ok := vec.Lookup(id)
		if !ok {
			continue
		}
		y = append(y, t)
		p = append(p, prob)
	}
	if len(y) == 0 {
		return math.NaN(), math.NaN(), nil
	}
	loss, err := stats.LogLoss(y, p)
	if err != nil {
		return 0, 0, err
	}
	auc, err := stats.AUROC(y, p)
	if err != nil {
		return 0, 0, err
	}
	return loss, auc, nil
}
