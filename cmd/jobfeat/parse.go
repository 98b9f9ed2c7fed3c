package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/jobfeat/pkg/types"
)

// jobInput holds the flags that select how a run is described
type jobInput struct {
	slurmID   string
	variables string
}

func (in *jobInput) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.slurmID, "slurm-id", "", "scheduler job id of the run")
	cmd.Flags().StringVar(&in.variables, "variables", "", "JSON object of typed variables, used instead of a command")
}

// extract builds job data from the remaining args or --variables
func (in *jobInput) extract(a *app, jobName string, cmdArgs []string) (*types.JobData, error) {
	if in.variables != "" {
		if len(cmdArgs) > 0 {
			return nil, fmt.Errorf("a command and --variables are mutually exclusive")
		}
		var values map[string]any
		if err := json.Unmarshal([]byte(in.variables), &values); err != nil {
			return nil, fmt.Errorf("failed to decode --variables: %w", err)
		}
		return a.cfg.ParseJobVariables(jobName, in.slurmID, values)
	}

	if len(cmdArgs) == 0 {
		return nil, fmt.Errorf("a command or --variables is required")
	}
	return a.cfg.ParseJobCommand(jobName, in.slurmID, strings.Join(cmdArgs, " "))
}

func newParseCmd(a *app) *cobra.Command {
	in := &jobInput{}
	cmd := &cobra.Command{
		Use:   "parse JOB [-- COMMAND...]",
		Short: "Print the features extracted from a job command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := in.extract(a, args[0], args[1:])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), data)
		},
	}
	in.bind(cmd)
	return cmd
}

func newExplainCmd(a *app) *cobra.Command {
	var exact bool
	cmd := &cobra.Command{
		Use:   "explain JOB -- COMMAND...",
		Short: "Show how a command aligns with its job spec",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := a.cfg.Job(args[0])
			if err != nil {
				return err
			}

			command := strings.Join(args[1:], " ")
			var diagnostic string
			if exact {
				diagnostic, err = job.Spec.ExplainExact(command)
			} else {
				diagnostic, err = job.Spec.Explain(command)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), diagnostic)
			return err
		},
	}
	cmd.Flags().BoolVar(&exact, "exact", false, "try an exact match first and report whether it parsed")
	return cmd
}
