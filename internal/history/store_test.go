package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcel/stitch/internal/models"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(id string) *models.RunReport {
	return &models.RunReport{
		RunID:   id,
		Request: "rename greet to hello",
		Outcomes: []models.TaskOutcome{
			{ID: 1, Title: "rename function", Status: models.StatusDone, Digest: "renamed greet"},
			{ID: 2, Title: "update callers", Status: models.StatusFailed, Digest: "patch did not apply",
				Retries: 1, Message: "old string \"greet(\" not found"},
		},
		Done:        1,
		Failed:      1,
		Duration:    42 * time.Second,
		FinalAnswer: "partially completed",
	}
}

func TestRecordAndDetail(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, s.RecordRun(ctx, time.Now(), sampleReport(id)))

	got, err := s.RunDetail(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "rename greet to hello", got.Request)
	assert.Equal(t, 1, got.Done)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 42*time.Second, got.Duration)
	assert.Equal(t, "partially completed", got.FinalAnswer)
	require.Len(t, got.Outcomes, 2)
	assert.Equal(t, models.StatusDone, got.Outcomes[0].Status)
	assert.Equal(t, "patch did not apply", got.Outcomes[1].Digest)
	assert.Equal(t, 1, got.Outcomes[1].Retries)
	assert.Equal(t, "old string \"greet(\" not found", got.Outcomes[1].Message)
	assert.Zero(t, got.Outcomes[0].Retries)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	older := sampleReport(uuid.NewString())
	newer := sampleReport(uuid.NewString())
	newer.Request = "second request"

	require.NoError(t, s.RecordRun(ctx, time.Now().Add(-time.Hour), older))
	require.NoError(t, s.RecordRun(ctx, time.Now(), newer))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.RunID, runs[0].ID)
	assert.Equal(t, "second request", runs[0].Request)
	assert.Equal(t, older.RunID, runs[1].ID)
	assert.Equal(t, 42*time.Second, runs[0].Duration)
}

func TestListRunsLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r := sampleReport(uuid.NewString())
		require.NoError(t, s.RecordRun(ctx, time.Now().Add(time.Duration(i)*time.Minute), r))
	}

	runs, err := s.ListRuns(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRunDetailUnknown(t *testing.T) {
	s := newStore(t)
	_, err := s.RunDetail(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDuplicateRunIDRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, s.RecordRun(ctx, time.Now(), sampleReport(id)))
	assert.Error(t, s.RecordRun(ctx, time.Now(), sampleReport(id)))
}

func TestFileBackedStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "history.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	id := uuid.NewString()
	require.NoError(t, s.RecordRun(context.Background(), time.Now(), sampleReport(id)))

	runs, err := s.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}
