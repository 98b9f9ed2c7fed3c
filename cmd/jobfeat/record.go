package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/jobfeat/internal/batch"
	"github.com/dshills/jobfeat/pkg/types"
)

func newRecordCmd(a *app) *cobra.Command {
	in := &jobInput{}
	var (
		memory, runtime int64
		defaults        bool
	)

	cmd := &cobra.Command{
		Use:   "record JOB [-- COMMAND...]",
		Short: "Extract a run's features and store them in the job database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.slurmID == "" {
				return fmt.Errorf("--slurm-id is required")
			}

			data, err := in.extract(a, args[0], args[1:])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("memory") {
				data.Memory = types.Int64(memory)
			}
			if cmd.Flags().Changed("runtime") {
				data.Runtime = types.Int64(runtime)
			}
			if defaults {
				if err := a.cfg.AddDefaults(data); err != nil {
					return err
				}
			}

			store, err := a.openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			job, err := store.RecordJob(cmd.Context(), data)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), job)
		},
	}

	in.bind(cmd)
	cmd.Flags().Int64Var(&memory, "memory", 0, "peak memory in MB")
	cmd.Flags().Int64Var(&runtime, "runtime", 0, "runtime in minutes")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "fill missing memory and runtime from the job's defaults")
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	opts := &batch.Options{}

	cmd := &cobra.Command{
		Use:   "batch [FILE]",
		Short: "Extract and store job runs read as JSON lines from FILE or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				r = f
			}

			requests, err := batch.ReadRequests(r)
			if err != nil {
				return err
			}

			var b *batch.Batch
			if opts.DryRun {
				b = batch.New(a.cfg, nil)
			} else {
				store, err := a.openStorage()
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				b = batch.New(a.cfg, store)
			}

			stats, err := b.Run(cmd.Context(), requests, opts)
			if err != nil {
				return err
			}

			if opts.DryRun {
				return writeJSON(cmd.OutOrStdout(), stats.Jobs)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"requested":   stats.Requested,
				"extracted":   stats.Extracted,
				"stored":      stats.Stored,
				"failed":      stats.Failed,
				"mismatched":  stats.Mismatched,
				"duration_ms": stats.Duration.Milliseconds(),
				"errors":      stats.ErrorMessages,
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "concurrent extractions (default number of CPUs)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 20, "runs committed per transaction")
	cmd.Flags().BoolVar(&opts.ApplyDefaults, "defaults", false, "fill missing memory and runtime from the job's defaults")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print extracted runs without storing them")
	return cmd
}
