// Package batch extracts features for many job runs at once.
//
// Requests are read as JSON lines, one run per line, carrying either the
// command that ran or its typed variables:
//
//	{"job_name":"nupack","slurm_id":"1001","cmd":"monomer -T 2 -C simple","memory":512}
//	{"job_name":"snake","slurm_id":"1002","variables":{"threads":4}}
//
// Extraction runs on a bounded worker pool. Successful runs are recorded in
// transactions of Options.BatchSize. A run whose command does not match its
// job spec is counted and logged, never fatal.
//
//	b := batch.New(cfg, store)
//	stats, err := b.Run(ctx, requests, &batch.Options{Workers: 4})
//
// Only one Run may be active per Batch; a concurrent call returns
// ErrInProgress.
package batch
