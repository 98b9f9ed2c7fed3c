package storage

import (
	"context"
	"time"

	"github.com/dshills/jobfeat/pkg/types"
)

// Storage defines the interface for persisting and querying recorded jobs
type Storage interface {
	// Job operations
	RecordJob(ctx context.Context, data *types.JobData) (*Job, error)
	GetJob(ctx context.Context, jobName, slurmID string) (*Job, error)
	ListJobs(ctx context.Context, jobName string) ([]*Job, error)
	QueryJobs(ctx context.Context, query *types.JobData) ([]*Job, error)
	DeleteJob(ctx context.Context, jobName, slurmID string) error
	DeleteJobs(ctx context.Context, jobName string) (deletedCount int, err error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Job is a recorded job run with its database identity
type Job struct {
	ID int64 `json:"id"`
	types.JobData
	CategoryKey string    `json:"-"` // Canonical encoding of the categorical features
	CreatedAt   time.Time `json:"created_at"`
}

// Feature is one stored feature value
type Feature struct {
	JobID int64
	Key   string
	Kind  types.ValueKind
	Value types.Value
}

// Status contains statistics about the job database
type Status struct {
	SchemaVersion  string
	BuildMode      string
	JobsCount      int
	FeaturesCount  int
	JobNames       map[string]int // Recorded runs per job name
	LastRecordedAt time.Time
}
