package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/jobfeat/internal/storage"
)

func newPrintCmd(a *app) *cobra.Command {
	var (
		like   string
		status bool
		remove bool
	)

	cmd := &cobra.Command{
		Use:   "print [JOB]",
		Short: "Print recorded runs, or database status with --status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if status {
				st, err := store.GetStatus(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), st)
			}

			jobName := ""
			if len(args) == 1 {
				jobName = args[0]
			}

			if remove {
				if jobName == "" {
					return fmt.Errorf("--delete requires a job name")
				}
				n, err := store.DeleteJobs(ctx, jobName)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d runs of %s\n", n, jobName)
				return err
			}

			var jobs []*storage.Job
			if like != "" {
				if jobName == "" {
					return fmt.Errorf("--like requires a job name")
				}
				query, err := a.cfg.ParseJobCommand(jobName, "", strings.TrimSpace(like))
				if err != nil {
					return err
				}
				jobs, err = store.QueryJobs(ctx, query)
				if err != nil {
					return err
				}
			} else {
				jobs, err = store.ListJobs(ctx, jobName)
				if err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), jobs)
		},
	}

	cmd.Flags().StringVar(&like, "like", "", "only runs whose categorical features equal this command's")
	cmd.Flags().BoolVar(&status, "status", false, "print database statistics")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete every recorded run of JOB")
	return cmd
}
