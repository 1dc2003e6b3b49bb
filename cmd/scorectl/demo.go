package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/internal/config"
	"scoregate/internal/container"
	"scoregate/internal/testkit"
)

// demoEntry is one synthetic submission and how it was produced
type demoEntry struct {
	id     core.SubmissionID
	user   string
	recipe string
}

func newDemoCmd() *cobra.Command {
	var seed int64
	var workers int
	var keep bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Score a synthetic round end to end on local adapters",
		Long: `Generate a synthetic round with a handful of submissions, push them through
the full pipeline (filesystem storage, sqlite queues, in-memory datastore)
and print every verdict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.MkdirTemp("", "scoregate-demo-")
			if err != nil {
				return err
			}
			if !keep {
				defer os.RemoveAll(root)
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), root, seed, workers)
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for the synthetic round")
	cmd.Flags().IntVar(&workers, "workers", 2, "Originality workers")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the generated files")
	return cmd
}

func runDemo(ctx context.Context, out io.Writer, root string, seed int64, workers int) error {
	cfg := config.Parse()
	cfg.Server.APIKey = "demo"
	cfg.Storage.Driver = config.StorageFS
	cfg.Storage.Root = filepath.Join(root, "storage")
	cfg.Queue.Driver = config.QueueSQLite
	cfg.Queue.Path = filepath.Join(root, "queues.db")
	cfg.Workers.Originality = workers

	genCfg := testkit.DefaultTournamentConfig()
	genCfg.Seed = seed
	gen := testkit.NewTournamentGenerator(genCfg)
	data := gen.Generate()
	rng := gen.Rand()

	round := submission.Round{ID: core.RoundID(uuid.NewString()), Tournament: 1, Number: 1}
	if err := data.WriteTo(cfg.Storage.Root, round); err != nil {
		return err
	}

	store := testkit.NewInMemoryStore()
	store.AddRound(round)

	recipes := []struct {
		user, recipe string
		fn           func(int, float64) float64
	}{
		{"alice", "signal", func(_ int, s float64) float64 { return 0.1 + 0.8*s }},
		{"bob", "copy of alice", func(_ int, s float64) float64 { return 0.1 + 0.8*s }},
		{"carol", "uniform noise", func(int, float64) float64 { return rng.Float64() }},
		{"dave", "shuffled signal", nil},
		{"erin", "inverted signal", func(_ int, s float64) float64 { return 0.9 - 0.8*s }},
	}

	ids := data.AllIDs()
	started := time.Now().Add(-time.Hour)
	var entries []demoEntry
	var alice []float64
	for i, r := range recipes {
		var probs []float64
		if r.fn != nil {
			probs = data.Predictions(r.fn)
		} else {
			probs = append([]float64(nil), alice...)
			rng.Shuffle(len(probs), func(a, b int) { probs[a], probs[b] = probs[b], probs[a] })
		}
		if i == 0 {
			alice = probs
		}

		id := core.SubmissionID(uuid.NewString())
		uid := core.UserID(uuid.NewString())
		filename := fmt.Sprintf("%s.csv", id)
		store.AddUser(uid, r.user)
		store.AddSubmission(testkit.SubmissionRecord{
			ID:        id,
			RoundID:   round.ID,
			UserID:    uid,
			Filename:  filename,
			CreatedAt: started.Add(time.Duration(i) * time.Minute),
			Selected:  true,
		})
		loc := submission.FileLocation{Path: r.user, Filename: filename}
		if err := testkit.WritePredictions(cfg.Storage.Root, loc, ids, probs); err != nil {
			return err
		}
		entries = append(entries, demoEntry{id: id, user: r.user, recipe: r.recipe})
	}

	c, err := container.NewWithStore(ctx, cfg, logger(), store)
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	for _, e := range entries {
		if err := c.Queues.Leaderboard.Enqueue(ctx, submission.NewQueueItem(e.id)); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Pipeline.Run(runCtx) }()

	deadline := time.After(5 * time.Minute)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case <-deadline:
			cancel()
			<-done
			return fmt.Errorf("demo timed out waiting for verdicts")
		case <-ctx.Done():
			cancel()
			<-done
			return ctx.Err()
		case <-tick.C:
			if demoFinished(store, entries) {
				break wait
			}
		}
	}
	cancel()
	if err := <-done; err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tRECIPE\tCONSISTENCY\tORIGINAL\tREASON\tCONCORDANT\tMEAN KS")
	for _, e := range entries {
		cons, _ := store.Consistency(e.id)
		orig, _ := store.Originality(e.id)
		conc, _ := store.Concordance(e.id)
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%t\t%.4f\n",
			e.user, e.recipe, percent(cons.Percent, cons.Eras), orig.IsOriginal, orig.Reason, conc.IsConcordant, conc.MeanKS)
	}
	return w.Flush()
}

// demoFinished reports whether every submission has both verdicts.
func demoFinished(store *testkit.InMemoryStore, entries []demoEntry) bool {
	for _, e := range entries {
		_, hasOrig := store.Originality(e.id)
		_, hasConc := store.Concordance(e.id)
		if !hasOrig || !hasConc {
			return false
		}
	}
	return true
}

func percent(p float64, eras int) string {
	if eras == 0 || math.IsNaN(p) {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", p)
}
