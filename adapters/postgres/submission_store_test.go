package postgres

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoregate/domain/core"
	"scoregate/domain/verdict"
	"scoregate/internal/migration"
)

// openTestDB connects to SCOREGATE_TEST_DATABASE_URL and migrates it.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("SCOREGATE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping live test: SCOREGATE_TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migration.NewRunner().Run(context.Background(), db))
	return db
}

type fixture struct {
	round core.RoundID
	users [2]core.UserID
}

func seed(t *testing.T, db *sqlx.DB) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	number := int(time.Now().UnixNano() % 1_000_000)
	require.NoError(t, db.GetContext(ctx, &f.round,
		`INSERT INTO rounds (tournament, number, dataset_path) VALUES (1, $1, 'datasets/r') RETURNING id`, number))
	for i, name := range []string{"alice", "bob"} {
		require.NoError(t, db.GetContext(ctx, &f.users[i],
			`INSERT INTO users (username) VALUES ($1) RETURNING id`, name+core.NewID().String()[:8]))
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM rounds WHERE id = $1`, f.round)
		db.Exec(`DELETE FROM users WHERE id = ANY($1::uuid[])`, pq.Array([]string{f.users[0].String(), f.users[1].String()}))
	})
	return f
}

func addSubmission(t *testing.T, db *sqlx.DB, f fixture, user core.UserID, at time.Time) core.SubmissionID {
	t.Helper()
	var id core.SubmissionID
	require.NoError(t, db.GetContext(context.Background(), &id,
		`INSERT INTO submissions (round_id, user_id, filename, inserted_at) VALUES ($1, $2, 'preds.csv', $3) RETURNING id`,
		f.round, user, at))
	return id
}

func TestSubmissionStore_Lookups(t *testing.T) {
	db := openTestDB(t)
	f := seed(t, db)
	store := NewSubmissionStore(db)
	ctx := context.Background()
	at := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	id := addSubmission(t, db, f, f.users[0], at)

	round, err := store.ResolveRound(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, f.round, round.ID)
	assert.Equal(t, "datasets/r", round.DatasetPath)

	loc, err := store.ResolveFileLocation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "preds.csv", loc.Filename)

	owner, err := store.ResolveOwner(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, f.users[0], owner.UserID)

	created, err := store.SubmissionCreatedAt(ctx, id)
	require.NoError(t, err)
	assert.True(t, created.Equal(at))

	_, err = store.ResolveRound(ctx, core.SubmissionID(core.NewID()))
	assert.True(t, core.IsNotFoundError(err))
}

func TestSubmissionStore_CompetitorsAndVerdicts(t *testing.T) {
	db := openTestDB(t)
	f := seed(t, db)
	store := NewSubmissionStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	older := addSubmission(t, db, f, f.users[1], now.Add(-2*time.Hour))
	newer := addSubmission(t, db, f, f.users[1], now.Add(-time.Hour))
	unoriginal := addSubmission(t, db, f, f.users[1], now.Add(-90*time.Minute))
	mine := addSubmission(t, db, f, f.users[0], now)
	for _, id := range []core.SubmissionID{older, newer, unoriginal, mine} {
		require.NoError(t, store.MarkOriginalityPending(ctx, id))
		require.NoError(t, store.MarkOriginalityPending(ctx, id))
	}
	require.NoError(t, store.WriteOriginality(ctx, verdict.Originality{SubmissionID: unoriginal, Reason: verdict.ReasonCorrelated, MatchedID: older, Statistic: 0.99}))
	require.NoError(t, store.WriteOriginality(ctx, verdict.Originality{SubmissionID: older, IsOriginal: true, Reason: verdict.ReasonOriginal}))

	ids, err := store.ListCompetingSubmissions(ctx, f.round, f.users[0], now)
	require.NoError(t, err)
	assert.Equal(t, []core.SubmissionID{newer, older}, ids)

	require.NoError(t, store.MarkConcordancePending(ctx, mine))
	require.NoError(t, store.WriteConcordance(ctx, verdict.Concordance{SubmissionID: mine, IsConcordant: true, MeanKS: 0.04}))
	require.NoError(t, store.MarkConcordancePending(ctx, mine))
	var pending bool
	require.NoError(t, db.GetContext(ctx, &pending, `SELECT pending FROM concordances WHERE submission_id = $1`, mine))
	assert.False(t, pending)

	require.NoError(t, store.WriteConsistency(ctx, verdict.Consistency{SubmissionID: mine, Percent: 75}))
	require.NoError(t, store.WriteValidationMetrics(ctx, verdict.Metrics{
		SubmissionID: mine, ValidationLogLoss: 0.69, ValidationAUROC: 0.52, TestLogLoss: math.NaN(), TestAUROC: math.NaN(),
	}))
	var row struct {
		Consistency float64  `db:"consistency"`
		TestLogLoss *float64 `db:"test_logloss"`
	}
	require.NoError(t, db.GetContext(ctx, &row, `SELECT consistency, test_logloss FROM submissions WHERE id = $1`, mine))
	assert.Equal(t, 75.0, row.Consistency)
	assert.Nil(t, row.TestLogLoss)

	err = store.WriteConsistency(ctx, verdict.Consistency{SubmissionID: core.SubmissionID(core.NewID())})
	assert.True(t, core.IsNotFoundError(err))
}
