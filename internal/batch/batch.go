package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/jobfeat/internal/logger"
	"github.com/dshills/jobfeat/internal/storage"
	"github.com/dshills/jobfeat/pkg/types"
)

// ErrInProgress is returned when Run is called while another run is active
var ErrInProgress = errors.New("batch already in progress")

// Extractor turns commands or variables into job data
type Extractor interface {
	ParseJobCommand(jobName, slurmID, cmd string) (*types.JobData, error)
	ParseJobVariables(jobName, slurmID string, values map[string]any) (*types.JobData, error)
	AddDefaults(data *types.JobData) error
}

// Batch coordinates the pipeline: extract -> store
type Batch struct {
	extractor Extractor
	storage   storage.Storage
	guard     runGuard
}

// Options contains configuration for a run
type Options struct {
	Workers       int  // Number of concurrent extractions (default: runtime.NumCPU())
	BatchSize     int  // Number of jobs to commit per transaction (default: 20)
	ApplyDefaults bool // Fill missing memory and runtime from the job's defaults
	DryRun        bool // Extract only, store nothing
}

// Statistics contains statistics about a run
type Statistics struct {
	Requested  int
	Extracted  int
	Stored     int
	Failed     int // Requests that produced no stored job
	Mismatched int // Subset of Failed whose command did not match its job spec
	Duration   time.Duration

	Jobs          []*types.JobData // Extracted jobs in request order
	ErrorMessages []string
}

// New creates a new Batch. store may be nil when every run is a dry run.
func New(extractor Extractor, store storage.Storage) *Batch {
	return &Batch{
		extractor: extractor,
		storage:   store,
	}
}

// Run extracts every request concurrently and stores the successes.
// Failed requests are counted and logged; only context cancellation and
// transaction failures abort the run.
func (b *Batch) Run(ctx context.Context, requests []Request, opts *Options) (*Statistics, error) {
	if !b.guard.enter() {
		return nil, ErrInProgress
	}
	defer b.guard.leave()

	if opts == nil {
		opts = &Options{}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if b.storage == nil && !opts.DryRun {
		return nil, errors.New("storage is required unless dry run")
	}

	startTime := time.Now()
	stats := &Statistics{
		Requested:     len(requests),
		ErrorMessages: make([]string, 0),
	}

	results, err := b.extractAll(ctx, requests, opts, stats)
	if err != nil {
		return nil, fmt.Errorf("failed to extract jobs: %w", err)
	}

	for _, data := range results {
		if data != nil {
			stats.Jobs = append(stats.Jobs, data)
		}
	}
	stats.Extracted = len(stats.Jobs)

	if !opts.DryRun {
		if err := b.storeAll(ctx, stats.Jobs, opts.BatchSize, stats); err != nil {
			return nil, fmt.Errorf("failed to store jobs: %w", err)
		}
	}

	stats.Duration = time.Since(startTime)
	log.Ctx(ctx).Info().
		Int("extracted", stats.Extracted).
		Int("stored", stats.Stored).
		Int("failed", stats.Failed).
		Int("mismatched", stats.Mismatched).
		Dur("duration", stats.Duration).
		Msg("batch complete")
	return stats, nil
}

// extractAll runs extractions on a bounded worker pool. The result slice is
// indexed like requests, nil where extraction failed.
func (b *Batch) extractAll(ctx context.Context, requests []Request, opts *Options, stats *Statistics) ([]*types.JobData, error) {
	semaphore := make(chan struct{}, opts.Workers)
	results := make([]*types.JobData, len(requests))

	var (
		failed     int32
		mismatched int32
		mu         sync.Mutex // Protect stats.ErrorMessages
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := range requests {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
				// Acquire semaphore
			}
			defer func() { <-semaphore }()

			req := &requests[i]
			jobCtx := logger.ContextWithJob(gctx, req.JobName, req.SlurmID)
			data, err := b.extract(req, opts)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				if errors.Is(err, types.ErrMismatch) {
					atomic.AddInt32(&mismatched, 1)
				}
				log.Ctx(jobCtx).Warn().Err(err).Msg("extraction failed")

				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s/%s: %v", req.JobName, req.SlurmID, err))
				mu.Unlock()
				return nil
			}

			log.Ctx(jobCtx).Debug().Int("features", data.Features.Len()).Msg("extracted")
			results[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Failed += int(failed)
	stats.Mismatched = int(mismatched)
	return results, nil
}

// extract builds the job data for one request
func (b *Batch) extract(req *Request, opts *Options) (*types.JobData, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var data *types.JobData
	var err error
	if req.Variables != nil {
		data, err = b.extractor.ParseJobVariables(req.JobName, req.SlurmID, req.Variables)
	} else {
		data, err = b.extractor.ParseJobCommand(req.JobName, req.SlurmID, req.Cmd)
	}
	if err != nil {
		return nil, err
	}

	data.Memory = req.Memory
	data.Runtime = req.Runtime
	if opts.ApplyDefaults {
		if err := b.extractor.AddDefaults(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// storeAll records jobs in transactions of batchSize
func (b *Batch) storeAll(ctx context.Context, jobs []*types.JobData, batchSize int, stats *Statistics) error {
	for i := 0; i < len(jobs); i += batchSize {
		end := i + batchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		if err := b.storeBatch(ctx, jobs[i:end], stats); err != nil {
			return err
		}
	}
	return nil
}

// storeBatch records a batch of jobs within a transaction
func (b *Batch) storeBatch(ctx context.Context, jobs []*types.JobData, stats *Statistics) error {
	tx, err := b.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored := 0
	for _, data := range jobs {
		if _, err := tx.RecordJob(ctx, data); err != nil {
			stats.Failed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s/%s: %v", data.JobName, data.SlurmID, err))
			log.Ctx(logger.ContextWithJob(ctx, data.JobName, data.SlurmID)).Warn().Err(err).Msg("record failed")
			continue
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	stats.Stored += stored
	return nil
}
