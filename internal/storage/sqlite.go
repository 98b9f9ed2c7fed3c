package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dshills/jobfeat/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrMissingSlurmID is returned when recording a job without a scheduler id
	ErrMissingSlurmID = errors.New("slurm id is required")
	// ErrNestedTx is returned when beginning a transaction inside a transaction
	ErrNestedTx = errors.New("nested transactions not supported")
)

// featureBatchSize bounds the number of ids bound into one IN clause
const featureBatchSize = 500

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// isUniqueViolation reports a UNIQUE constraint failure from either driver
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// categoryKey encodes categorical features canonically: keys sorted, values
// in their JSON form. Runs with equal keys share every categorical value.
func categoryKey(features *types.FeatureRecord) (string, error) {
	if features == nil {
		return "", errors.New("features are required")
	}

	encoded := make(map[string]json.RawMessage, len(features.Categories))
	for key, value := range features.Categories {
		data, err := types.MarshalValue(value)
		if err != nil {
			return "", fmt.Errorf("failed to encode feature %s: %w", key, err)
		}
		encoded[key] = data
	}

	data, err := json.Marshal(encoded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Job operations

// recordJobWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) recordJobWithQuerier(ctx context.Context, q querier, data *types.JobData) (*Job, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}
	if data.SlurmID == "" {
		return nil, ErrMissingSlurmID
	}

	key, err := categoryKey(data.Features)
	if err != nil {
		return nil, err
	}

	// Encode every feature before any row is written
	features := featuresOf(data.Features)
	encoded := make([]string, len(features))
	for i, feature := range features {
		value, err := types.MarshalValue(feature.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode feature %s: %w", feature.Key, err)
		}
		encoded[i] = string(value)
	}

	query := `
		INSERT INTO jobs (job_name, slurm_id, cmd, category_key, memory, runtime, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	job := &Job{JobData: *data, CategoryKey: key, CreatedAt: time.Now()}
	err = q.QueryRowContext(ctx, query,
		data.JobName, data.SlurmID, data.Cmd, key,
		nullInt64(data.Memory), nullInt64(data.Runtime), job.CreatedAt).Scan(&job.ID)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("job %s/%s: %w", data.JobName, data.SlurmID, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record job: %w", err)
	}

	insert := `INSERT INTO features (job_id, key, kind, value) VALUES (?, ?, ?, ?)`
	for i, feature := range features {
		if _, err := q.ExecContext(ctx, insert, job.ID, feature.Key, string(feature.Kind), encoded[i]); err != nil {
			return nil, fmt.Errorf("failed to record feature %s: %w", feature.Key, err)
		}
	}

	return job, nil
}

// RecordJob stores a job and its features atomically
func (s *SQLiteStorage) RecordJob(ctx context.Context, data *types.JobData) (*Job, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := tx.RecordJob(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job: %w", err)
	}
	return job, nil
}

// featuresOf flattens a record into rows, numerics first, each in key order
func featuresOf(record *types.FeatureRecord) []Feature {
	features := make([]Feature, 0, record.Len())
	for _, key := range sortedKeys(record.Numerics) {
		features = append(features, Feature{Key: key, Kind: types.Numeric, Value: record.Numerics[key]})
	}
	for _, key := range sortedKeys(record.Categories) {
		features = append(features, Feature{Key: key, Kind: types.Category, Value: record.Categories[key]})
	}
	return features
}

func sortedKeys(m map[string]types.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

const jobColumns = `id, job_name, slurm_id, cmd, category_key, memory, runtime, created_at`

// getJobWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getJobWithQuerier(ctx context.Context, q querier, jobName, slurmID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_name = ? AND slurm_id = ?`
	jobs, err := s.queryJobsWithQuerier(ctx, q, query, jobName, slurmID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrNotFound
	}
	return jobs[0], nil
}

func (s *SQLiteStorage) GetJob(ctx context.Context, jobName, slurmID string) (*Job, error) {
	return s.getJobWithQuerier(ctx, s.querier(), jobName, slurmID)
}

// listJobsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listJobsWithQuerier(ctx context.Context, q querier, jobName string) ([]*Job, error) {
	if jobName == "" {
		return s.queryJobsWithQuerier(ctx, q, `SELECT `+jobColumns+` FROM jobs ORDER BY job_name, id`)
	}
	return s.queryJobsWithQuerier(ctx, q, `SELECT `+jobColumns+` FROM jobs WHERE job_name = ? ORDER BY id`, jobName)
}

// ListJobs returns the runs of one job, or of every job when jobName is empty
func (s *SQLiteStorage) ListJobs(ctx context.Context, jobName string) ([]*Job, error) {
	return s.listJobsWithQuerier(ctx, s.querier(), jobName)
}

// matchJobsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) matchJobsWithQuerier(ctx context.Context, q querier, query *types.JobData) ([]*Job, error) {
	key, err := categoryKey(query.Features)
	if err != nil {
		return nil, err
	}
	return s.queryJobsWithQuerier(ctx, q,
		`SELECT `+jobColumns+` FROM jobs WHERE job_name = ? AND category_key = ? ORDER BY id`,
		query.JobName, key)
}

// QueryJobs returns the runs of the same job whose categorical features are
// identical to those of query
func (s *SQLiteStorage) QueryJobs(ctx context.Context, query *types.JobData) ([]*Job, error) {
	return s.matchJobsWithQuerier(ctx, s.querier(), query)
}

// deleteJobWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteJobWithQuerier(ctx context.Context, q querier, jobName, slurmID string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM jobs WHERE job_name = ? AND slurm_id = ?`, jobName, slurmID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteJob(ctx context.Context, jobName, slurmID string) error {
	return s.deleteJobWithQuerier(ctx, s.querier(), jobName, slurmID)
}

// deleteJobsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteJobsWithQuerier(ctx context.Context, q querier, jobName string) (int, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM jobs WHERE job_name = ?`, jobName)
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteJobs removes every run of a job and returns how many were removed
func (s *SQLiteStorage) DeleteJobs(ctx context.Context, jobName string) (int, error) {
	return s.deleteJobsWithQuerier(ctx, s.querier(), jobName)
}

// queryJobsWithQuerier scans job rows and attaches their features. Rows are
// closed before features are read since the pool holds a single connection.
func (s *SQLiteStorage) queryJobsWithQuerier(ctx context.Context, q querier, query string, args ...interface{}) ([]*Job, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	var jobs []*Job
	for rows.Next() {
		var job Job
		var memory, runtime sql.NullInt64
		if err := rows.Scan(&job.ID, &job.JobName, &job.SlurmID, &job.Cmd,
			&job.CategoryKey, &memory, &runtime, &job.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if memory.Valid {
			job.Memory = types.Int64(memory.Int64)
		}
		if runtime.Valid {
			job.Runtime = types.Int64(runtime.Int64)
		}
		job.Features = types.NewFeatureRecord()
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	if err := s.loadFeaturesWithQuerier(ctx, q, jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// loadFeaturesWithQuerier fills in the feature records of jobs
func (s *SQLiteStorage) loadFeaturesWithQuerier(ctx context.Context, q querier, jobs []*Job) error {
	byID := make(map[int64]*Job, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
	}

	for start := 0; start < len(jobs); start += featureBatchSize {
		end := start + featureBatchSize
		if end > len(jobs) {
			end = len(jobs)
		}

		batch := jobs[start:end]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]interface{}, len(batch))
		for i, job := range batch {
			args[i] = job.ID
		}

		query := `SELECT job_id, key, kind, value FROM features WHERE job_id IN (` + placeholders + `)`
		if err := s.scanFeatures(ctx, q, query, args, byID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) scanFeatures(ctx context.Context, q querier, query string, args []interface{}, byID map[int64]*Job) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var jobID int64
		var key, kind, raw string
		if err := rows.Scan(&jobID, &key, &kind, &raw); err != nil {
			return err
		}

		value, err := types.UnmarshalValue([]byte(raw))
		if err != nil {
			return fmt.Errorf("failed to decode feature %s: %w", key, err)
		}
		if job, ok := byID[jobID]; ok {
			job.Features.Set(types.ValueKind(kind), key, value)
		}
	}
	return rows.Err()
}

// Status operations

// getStatusWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	status := &Status{BuildMode: BuildMode, JobNames: make(map[string]int)}

	if err := q.QueryRowContext(ctx, `SELECT version FROM schema_version ORDER BY rowid DESC LIMIT 1`).Scan(&status.SchemaVersion); err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}

	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM features`).Scan(&status.FeaturesCount); err != nil {
		return nil, fmt.Errorf("failed to count features: %w", err)
	}

	rows, err := q.QueryContext(ctx, `SELECT job_name, COUNT(*) FROM jobs GROUP BY job_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.JobNames[name] = count
		status.JobsCount += count
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	if status.JobsCount > 0 {
		err := q.QueryRowContext(ctx, `SELECT created_at FROM jobs ORDER BY created_at DESC LIMIT 1`).Scan(&status.LastRecordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to read last recorded time: %w", err)
		}
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// Transaction delegation

// RecordJob records inside a savepoint so a failed record leaves no rows
// behind in the enclosing transaction
func (t *sqliteTx) RecordJob(ctx context.Context, data *types.JobData) (*Job, error) {
	q := t.querier()
	if _, err := q.ExecContext(ctx, "SAVEPOINT record_job"); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	job, err := t.storage.recordJobWithQuerier(ctx, q, data)
	if err != nil {
		cleanup := context.WithoutCancel(ctx)
		_, _ = q.ExecContext(cleanup, "ROLLBACK TO record_job")
		_, _ = q.ExecContext(cleanup, "RELEASE record_job")
		return nil, err
	}

	if _, err := q.ExecContext(ctx, "RELEASE record_job"); err != nil {
		return nil, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return job, nil
}

func (t *sqliteTx) GetJob(ctx context.Context, jobName, slurmID string) (*Job, error) {
	return t.storage.getJobWithQuerier(ctx, t.querier(), jobName, slurmID)
}

func (t *sqliteTx) ListJobs(ctx context.Context, jobName string) ([]*Job, error) {
	return t.storage.listJobsWithQuerier(ctx, t.querier(), jobName)
}

func (t *sqliteTx) QueryJobs(ctx context.Context, query *types.JobData) ([]*Job, error) {
	return t.storage.matchJobsWithQuerier(ctx, t.querier(), query)
}

func (t *sqliteTx) DeleteJob(ctx context.Context, jobName, slurmID string) error {
	return t.storage.deleteJobWithQuerier(ctx, t.querier(), jobName, slurmID)
}

func (t *sqliteTx) DeleteJobs(ctx context.Context, jobName string) (int, error) {
	return t.storage.deleteJobsWithQuerier(ctx, t.querier(), jobName)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	return errors.New("cannot close transaction, use Commit or Rollback")
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}
