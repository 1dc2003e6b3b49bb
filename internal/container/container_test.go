package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoregate/domain/submission"
	"scoregate/internal"
	"scoregate/internal/config"
	"scoregate/internal/errors"
	"scoregate/internal/testkit"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://unused")
	t.Setenv("API_KEY", "secret")
	t.Setenv("STORAGE_ROOT", t.TempDir())
	t.Setenv("QUEUE_PATH", filepath.Join(t.TempDir(), "queues.db"))
	t.Setenv("ORIGINALITY_WORKERS", "2")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewWithStore_ScoresSubmissionEndToEnd(t *testing.T) {
	cfg := localConfig(t)
	store := testkit.NewInMemoryStore()
	round := submission.Round{ID: "round-1", Tournament: 1, Number: 101}
	store.AddRound(round)
	store.AddUser("user-1", "alice")
	store.AddSubmission(testkit.SubmissionRecord{
		ID: "sub-1", RoundID: round.ID, UserID: "user-1", Filename: "p.csv",
		CreatedAt: time.Now().Add(-time.Hour), Selected: true,
	})

	gen := testkit.NewTournamentGenerator(testkit.DefaultTournamentConfig()).Generate()
	require.NoError(t, gen.WriteTo(cfg.Storage.Root, round))
	probs := gen.Predictions(func(_ int, s float64) float64 { return 0.1 + 0.8*s })
	require.NoError(t, testkit.WritePredictions(cfg.Storage.Root, submission.FileLocation{Path: "alice", Filename: "p.csv"}, gen.AllIDs(), probs))

	c, err := NewWithStore(context.Background(), cfg, internal.Discard(), store)
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"submission_id":"sub-1","api_key":"secret"}`))
	rec := httptest.NewRecorder()
	c.Server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Pipeline.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, orig := store.Originality("sub-1")
		_, conc := store.Concordance("sub-1")
		return orig && conc
	}, 30*time.Second, 50*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	score, ok := store.Consistency("sub-1")
	require.True(t, ok)
	assert.Equal(t, 12, score.Eras)

	rec = httptest.NewRecorder()
	c.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `scoregate_items_total{outcome="ok",queue="leaderboard"} 1`)
	assert.Contains(t, rec.Body.String(), "scoregate_cluster_builds_total 1")
}

func TestNewWithStore_BadDriverFails(t *testing.T) {
	cfg := localConfig(t)
	cfg.Queue.Driver = "kafka"
	_, err := NewWithStore(context.Background(), cfg, internal.Discard(), testkit.NewInMemoryStore())
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestConfigMapping(t *testing.T) {
	cfg := localConfig(t)
	cfg.Consistency.Targets = []string{"sentinel", "target_x"}
	cfg.Concordance.Clusters = 7

	assert.Equal(t, 7, ConcordanceConfig(cfg).Clusters.K)
	assert.Equal(t, 0.03, OriginalityConfig(cfg).SimilarThreshold)
	target, err := ConsistencyConfig(cfg).TargetColumn(1)
	require.NoError(t, err)
	assert.Equal(t, "target_x", target)
}
