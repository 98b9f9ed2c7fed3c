package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/jobfeat/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func newJob(name, slurmID, complexity string, threads float64) *types.JobData {
	features := types.NewFeatureRecord()
	features.Set(types.Numeric, "threads", types.Number(threads))
	features.Set(types.Category, "complexity", types.Text(complexity))
	return &types.JobData{
		JobName:  name,
		SlurmID:  slurmID,
		Cmd:      "monomer -T 2 -C " + complexity,
		Features: features,
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	version, err := SchemaVersion(context.Background(), storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestRecordJob(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	data := newJob("nupack", "1001", "simple", 2)
	data.Features.Set(types.Numeric, "reads_file_lines", types.Numbers(3, 4))
	data.Memory = types.Int64(512)

	job, err := storage.RecordJob(ctx, data)
	require.NoError(t, err)
	assert.Greater(t, job.ID, int64(0))
	assert.Equal(t, `{"complexity":"simple"}`, job.CategoryKey)

	retrieved, err := storage.GetJob(ctx, "nupack", "1001")
	require.NoError(t, err)
	assert.Equal(t, job.ID, retrieved.ID)
	assert.Equal(t, data.Cmd, retrieved.Cmd)
	require.NotNil(t, retrieved.Memory)
	assert.Equal(t, int64(512), *retrieved.Memory)
	assert.Nil(t, retrieved.Runtime)
	assert.Equal(t, types.Number(2), retrieved.Features.Numerics["threads"])
	assert.Equal(t, types.Numbers(3, 4), retrieved.Features.Numerics["reads_file_lines"])
	assert.Equal(t, types.Text("simple"), retrieved.Features.Categories["complexity"])
	assert.False(t, retrieved.CreatedAt.IsZero())
}

func TestRecordJob_Duplicate(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	_, err := storage.RecordJob(ctx, newJob("nupack", "1001", "simple", 2))
	require.NoError(t, err)

	_, err = storage.RecordJob(ctx, newJob("nupack", "1001", "complex", 4))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// The failed insert left nothing behind
	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.JobsCount)
	assert.Equal(t, 2, status.FeaturesCount)
}

func TestRecordJob_Invalid(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	_, err := storage.RecordJob(ctx, newJob("nupack", "", "simple", 2))
	assert.ErrorIs(t, err, ErrMissingSlurmID)

	_, err = storage.RecordJob(ctx, newJob("", "1", "simple", 2))
	assert.Error(t, err)
}

func TestGetJob_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	_, err := storage.GetJob(context.Background(), "nupack", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListJobs(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	for _, data := range []*types.JobData{
		newJob("nupack", "1", "simple", 1),
		newJob("nupack", "2", "simple", 2),
		newJob("blast", "3", "fast", 8),
	} {
		_, err := storage.RecordJob(ctx, data)
		require.NoError(t, err)
	}

	jobs, err := storage.ListJobs(ctx, "nupack")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "1", jobs[0].SlurmID)
	assert.Equal(t, "2", jobs[1].SlurmID)
	assert.Equal(t, types.Number(2), jobs[1].Features.Numerics["threads"])

	all, err := storage.ListJobs(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "blast", all[0].JobName)

	none, err := storage.ListJobs(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryJobs(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	for _, data := range []*types.JobData{
		newJob("nupack", "1", "simple", 1),
		newJob("nupack", "2", "complex", 2),
		newJob("nupack", "3", "simple", 4),
		newJob("other", "4", "simple", 1),
	} {
		_, err := storage.RecordJob(ctx, data)
		require.NoError(t, err)
	}

	// Numerical features do not affect the match
	jobs, err := storage.QueryJobs(ctx, newJob("nupack", "", "simple", 99))
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "1", jobs[0].SlurmID)
	assert.Equal(t, "3", jobs[1].SlurmID)

	// Category maps must match exactly
	query := newJob("nupack", "", "simple", 1)
	query.Features.Set(types.Category, "extra", types.Text("x"))
	jobs, err = storage.QueryJobs(ctx, query)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	_, err = storage.QueryJobs(ctx, &types.JobData{JobName: "nupack"})
	assert.Error(t, err)
}

func TestCategoryKey_IsCanonical(t *testing.T) {
	a := types.NewFeatureRecord()
	a.Set(types.Category, "z", types.Text("1"))
	a.Set(types.Category, "a", types.List{types.Text("x"), types.Number(2)})

	b := types.NewFeatureRecord()
	b.Set(types.Category, "a", types.List{types.Text("x"), types.Number(2)})
	b.Set(types.Category, "z", types.Text("1"))
	b.Set(types.Numeric, "n", types.Number(5))

	keyA, err := categoryKey(a)
	require.NoError(t, err)
	keyB, err := categoryKey(b)
	require.NoError(t, err)
	assert.Equal(t, keyA, keyB)
	assert.Equal(t, `{"a":["x",2],"z":"1"}`, keyA)
}

func TestDeleteJob(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	_, err := storage.RecordJob(ctx, newJob("nupack", "1", "simple", 1))
	require.NoError(t, err)

	require.NoError(t, storage.DeleteJob(ctx, "nupack", "1"))
	_, err = storage.GetJob(ctx, "nupack", "1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Features are removed with their job
	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.FeaturesCount)

	assert.ErrorIs(t, storage.DeleteJob(ctx, "nupack", "1"), ErrNotFound)
}

func TestDeleteJobs(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		_, err := storage.RecordJob(ctx, newJob("nupack", id, "simple", 1))
		require.NoError(t, err)
	}
	_, err := storage.RecordJob(ctx, newJob("blast", "9", "fast", 1))
	require.NoError(t, err)

	deleted, err := storage.DeleteJobs(ctx, "nupack")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	remaining, err := storage.ListJobs(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "blast", remaining[0].JobName)
}

func TestBeginTx_CommitRollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.RecordJob(ctx, newJob("nupack", "1", "simple", 1))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = storage.GetJob(ctx, "nupack", "1")
	assert.ErrorIs(t, err, ErrNotFound)

	tx, err = storage.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.RecordJob(ctx, newJob("nupack", "2", "simple", 1))
	require.NoError(t, err)

	// Reads inside the transaction see the pending row
	jobs, err := tx.QueryJobs(ctx, newJob("nupack", "", "simple", 0))
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	_, err = tx.BeginTx(ctx)
	assert.ErrorIs(t, err, ErrNestedTx)
	assert.Error(t, tx.Close())

	require.NoError(t, tx.Commit())

	_, err = storage.GetJob(ctx, "nupack", "2")
	assert.NoError(t, err)
}

func TestTx_FailedRecordLeavesNoRows(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	_, err = tx.RecordJob(ctx, newJob("nupack", "1", "simple", math.NaN()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threads")

	_, err = tx.RecordJob(ctx, newJob("nupack", "1", "simple", math.Inf(1)))
	require.Error(t, err)

	_, err = tx.RecordJob(ctx, newJob("nupack", "2", "simple", 2))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = storage.GetJob(ctx, "nupack", "1")
	assert.ErrorIs(t, err, ErrNotFound)

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.JobsCount)
	assert.Equal(t, 2, status.FeaturesCount)

	// A corrected retry is not a duplicate
	_, err = storage.RecordJob(ctx, newJob("nupack", "1", "simple", 4))
	require.NoError(t, err)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.Equal(t, BuildMode, status.BuildMode)
	assert.Zero(t, status.JobsCount)
	assert.True(t, status.LastRecordedAt.IsZero())

	for _, data := range []*types.JobData{
		newJob("nupack", "1", "simple", 1),
		newJob("nupack", "2", "simple", 2),
		newJob("blast", "3", "fast", 8),
	} {
		_, err := storage.RecordJob(ctx, data)
		require.NoError(t, err)
	}

	status, err = storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.JobsCount)
	assert.Equal(t, 6, status.FeaturesCount)
	assert.Equal(t, map[string]int{"nupack": 2, "blast": 1}, status.JobNames)
	assert.False(t, status.LastRecordedAt.IsZero())
}

func TestMigrations_RollbackAndReapply(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, RollbackMigration(ctx, storage.db))

	version, err := SchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	require.NoError(t, ApplyMigrations(ctx, storage.db))
	version, err = SchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Applying again is a no-op
	require.NoError(t, ApplyMigrations(ctx, storage.db))
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	storage, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	_, err = storage.RecordJob(ctx, newJob("nupack", "1", "simple", 1))
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	storage, err = NewSQLiteStorage(path)
	require.NoError(t, err)
	defer storage.Close()

	job, err := storage.GetJob(ctx, "nupack", "1")
	require.NoError(t, err)
	assert.Equal(t, types.Text("simple"), job.Features.Categories["complexity"])
}
