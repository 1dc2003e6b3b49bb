package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/internal"
	"scoregate/internal/config"
	"scoregate/internal/container"
	datasetio "scoregate/internal/dataset"
	"scoregate/internal/errors"
	"scoregate/internal/migration"
	"scoregate/internal/scoring"
	"scoregate/ports"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "scorectl",
		Short:        "Operate the scoregate scoring pipeline and run checks on local files",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newMigrateCmd(),
		newEnqueueCmd(),
		newOriginalityCmd(),
		newConcordanceCmd(),
		newConsistencyCmd(),
		newDemoCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logger() *internal.Logger {
	cfg := config.Parse()
	return internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level), cfg.Log.Format, os.Stderr)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the scoring tables in DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Parse()
			if cfg.Database.URL == "" {
				return errors.ConfigInvalid("DATABASE_URL is required")
			}
			db, err := container.OpenDatabase(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			runner := migration.NewRunner()
			if err := runner.Run(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema %s applied\n", runner.Version())
			return nil
		},
	}
}

func newEnqueueCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "enqueue <submission-id>...",
		Short: "Put submissions on a pipeline queue",
		Long: `Put submissions on a pipeline queue, bypassing the HTTP front door.

The queue backend is taken from QUEUE_DRIVER and its settings.

Example: scorectl enqueue 3f1c... --queue originality`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Parse()
			queues, closeFn, err := container.OpenQueues(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			q := map[string]ports.Queue{
				ports.QueueLeaderboard: queues.Leaderboard,
				ports.QueueOriginality: queues.Originality,
				ports.QueueConcordance: queues.Concordance,
			}[target]
			if q == nil {
				return errors.InvalidInput("unknown queue " + strconv.Quote(target))
			}
			for _, id := range args {
				if err := q.Enqueue(cmd.Context(), submission.NewQueueItem(core.SubmissionID(id))); err != nil {
					return errors.QueueError(target, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s on %s\n", id, target)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "queue", ports.QueueLeaderboard, "Queue to use: leaderboard, originality or concordance")
	return cmd
}

// fileVectors serves prediction files named on the command line.
type fileVectors map[core.SubmissionID]*submission.Vector

func (f fileVectors) Vector(_ context.Context, id core.SubmissionID) (*submission.Vector, error) {
	vec, ok := f[id]
	if !ok {
		return nil, core.NewNotFoundError("prediction file", string(id))
	}
	return vec, nil
}

func readVector(path string) (*submission.Vector, error) {
	frame, err := datasetio.ReadFrameFile(path)
	if err != nil {
		return nil, err
	}
	return scoring.VectorFromFrame(frame, path)
}

func newOriginalityCmd() *cobra.Command {
	cfg := scoring.DefaultOriginalityConfig()

	cmd := &cobra.Command{
		Use:   "originality <candidate.csv> <competitor.csv>...",
		Short: "Check a prediction file against earlier ones",
		Long: `Check a prediction file against competitor files, most recent first.

Example: scorectl originality mine.csv theirs-new.csv theirs-old.csv`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vectors := fileVectors{}
			for _, path := range args {
				vec, err := readVector(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				vectors[core.SubmissionID(path)] = vec
			}
			competitors := make([]core.SubmissionID, 0, len(args)-1)
			for _, path := range args[1:] {
				competitors = append(competitors, core.SubmissionID(path))
			}

			engine := scoring.NewOriginalityEngine(vectors, cfg, logger())
			candidate := core.SubmissionID(args[0])
			v, err := engine.Check(cmd.Context(), candidate, vectors[candidate], competitors)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "original:  %t\n", v.IsOriginal)
			fmt.Fprintf(out, "reason:    %s\n", v.Reason)
			if v.MatchedID != "" {
				fmt.Fprintf(out, "matched:   %s (%.4f)\n", v.MatchedID, v.Statistic)
			}
			if v.Skipped > 0 {
				fmt.Fprintf(out, "skipped:   %d\n", v.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&cfg.ExactDupeThreshold, "exact-threshold", cfg.ExactDupeThreshold, "KS statistic below which files are duplicates")
	cmd.Flags().Float64Var(&cfg.SimilarThreshold, "similar-threshold", cfg.SimilarThreshold, "KS statistic at or below which files count as similar")
	cmd.Flags().IntVar(&cfg.MaxSimilar, "max-similar", cfg.MaxSimilar, "Similar competitors allowed before disqualification")
	cmd.Flags().Float64Var(&cfg.CorrelationLimit, "correlation-limit", cfg.CorrelationLimit, "Absolute Pearson correlation above which files are copies")
	return cmd
}

func newConcordanceCmd() *cobra.Command {
	var datasetDir string
	var tournament, round int
	cfg := scoring.DefaultConcordanceConfig()

	cmd := &cobra.Command{
		Use:   "concordance --dataset DIR <submission.csv>",
		Short: "Score a prediction file's concordance against a round dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := scoring.LoadRound(datasetDir)
			if err != nil {
				return err
			}
			vec, err := readVector(args[0])
			if err != nil {
				return err
			}
			labels, err := scoring.FitClusters(cmd.Context(), core.RoundKey{Tournament: tournament, Round: round}, data, cfg.Clusters)
			if err != nil {
				return err
			}
			parts := data.Partitions
			mean, perCluster, err := scoring.ConcordanceStatistic(
				vec.Restrict(parts.Validation.IDs),
				vec.Restrict(parts.Test.IDs),
				vec.Restrict(parts.Live.IDs),
				*labels,
			)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			clusters := make([]int, 0, len(perCluster))
			for c := range perCluster {
				clusters = append(clusters, c)
			}
			sort.Ints(clusters)
			for _, c := range clusters {
				fmt.Fprintf(out, "cluster %d: max ks %.4f\n", c, perCluster[c])
			}
			fmt.Fprintf(out, "mean ks:    %.4f\n", mean)
			fmt.Fprintf(out, "concordant: %t\n", mean < cfg.Threshold)
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetDir, "dataset", "", "Directory holding the round's training and tournament files")
	cmd.Flags().IntVar(&tournament, "tournament", 1, "Tournament id used to label the clustering")
	cmd.Flags().IntVar(&round, "round", 0, "Round number used to label the clustering")
	cmd.Flags().Float64Var(&cfg.Threshold, "threshold", cfg.Threshold, "Mean KS below which the file is concordant")
	cmd.Flags().Int64Var(&cfg.Clusters.Seed, "seed", cfg.Clusters.Seed, "Random seed for clustering")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func newConsistencyCmd() *cobra.Command {
	var datasetDir, targets string
	var tournament int
	cfg := scoring.DefaultConsistencyConfig()

	cmd := &cobra.Command{
		Use:   "consistency --dataset DIR --tournament N <submission.csv>",
		Short: "Score a prediction file's era consistency and validation metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if targets != "" {
				cfg.Targets = strings.Split(targets, ",")
			}
			data, err := scoring.LoadRound(datasetDir)
			if err != nil {
				return err
			}
			vec, err := readVector(args[0])
			if err != nil {
				return err
			}
			id := core.SubmissionID(args[0])
			score, err := scoring.Consistency(id, vec, data, tournament, cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "consistency: %.2f%% (%d of %d eras)\n", score.Percent, score.ErasBeaten, score.Eras)

			target, err := cfg.TargetColumn(tournament)
			if err != nil {
				return err
			}
			m, err := scoring.ValidationMetrics(id, vec, data, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "validation:  logloss %.5f auroc %.4f\n", m.ValidationLogLoss, m.ValidationAUROC)
			fmt.Fprintf(out, "test:        logloss %.5f auroc %.4f\n", m.TestLogLoss, m.TestAUROC)
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetDir, "dataset", "", "Directory holding the round's training and tournament files")
	cmd.Flags().IntVar(&tournament, "tournament", 1, "Tournament id selecting the target column")
	cmd.Flags().StringVar(&targets, "targets", "", "Comma-separated target columns indexed by tournament id")
	cmd.Flags().Float64Var(&cfg.Benchmark, "benchmark", cfg.Benchmark, "Per-era correlation to beat")
	cmd.Flags().IntVar(&cfg.EraCount, "eras", cfg.EraCount, "Expected number of validation eras")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}
