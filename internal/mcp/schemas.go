package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// jobInputProperties are shared by the tools that extract a job run
func jobInputProperties() map[string]interface{} {
	return map[string]interface{}{
		"job_name": map[string]interface{}{
			"type":        "string",
			"description": "Name of a job defined in the configuration",
		},
		"cmd": map[string]interface{}{
			"type":        "string",
			"description": "Command line that ran (mutually exclusive with variables)",
		},
		"variables": map[string]interface{}{
			"type":        "object",
			"description": "Typed variable values keyed by name (mutually exclusive with cmd)",
		},
	}
}

// parseCommandTool returns the tool definition for parse_command
func parseCommandTool() mcp.Tool {
	return mcp.Tool{
		Name:        "parse_command",
		Description: "Extract the numerical and categorical features of a job command",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: jobInputProperties(),
			Required:   []string{"job_name"},
		},
	}
}

// explainCommandTool returns the tool definition for explain_command
func explainCommandTool() mcp.Tool {
	return mcp.Tool{
		Name:        "explain_command",
		Description: "Align a command against its job spec and show where they differ",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"job_name": map[string]interface{}{
					"type":        "string",
					"description": "Name of a job defined in the configuration",
				},
				"cmd": map[string]interface{}{
					"type":        "string",
					"description": "Command line to explain",
				},
				"exact": map[string]interface{}{
					"type":        "boolean",
					"description": "Try an exact match first and report whether it parsed",
					"default":     false,
				},
			},
			Required: []string{"job_name", "cmd"},
		},
	}
}

// recordJobTool returns the tool definition for record_job
func recordJobTool() mcp.Tool {
	properties := jobInputProperties()
	properties["slurm_id"] = map[string]interface{}{
		"type":        "string",
		"description": "Scheduler job id of this run",
	}
	properties["memory"] = map[string]interface{}{
		"type":        "integer",
		"description": "Peak memory in MB",
		"minimum":     0,
	}
	properties["runtime"] = map[string]interface{}{
		"type":        "integer",
		"description": "Runtime in minutes",
		"minimum":     0,
	}
	properties["apply_defaults"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Fill missing memory and runtime from the job's configured defaults",
		"default":     false,
	}

	return mcp.Tool{
		Name:        "record_job",
		Description: "Extract a job run's features and store them with its resource usage",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   []string{"job_name", "slurm_id"},
		},
	}
}

// recordBatchTool returns the tool definition for record_batch
func recordBatchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record_batch",
		Description: "Extract and store many job runs concurrently",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"requests": map[string]interface{}{
					"type":        "array",
					"description": "Job runs, each with job_name, slurm_id, and cmd or variables",
					"items": map[string]interface{}{
						"type": "object",
					},
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Number of concurrent extractions",
					"minimum":     1,
				},
				"apply_defaults": map[string]interface{}{
					"type":        "boolean",
					"description": "Fill missing memory and runtime from the job's configured defaults",
					"default":     false,
				},
			},
			Required: []string{"requests"},
		},
	}
}

// listJobsTool returns the tool definition for list_jobs
func listJobsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_jobs",
		Description: "List recorded job runs, optionally only those sharing a command's categorical features",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"job_name": map[string]interface{}{
					"type":        "string",
					"description": "Only list runs of this job",
				},
				"cmd": map[string]interface{}{
					"type":        "string",
					"description": "Only list runs whose categorical features equal this command's (requires job_name)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of runs to return (1-1000)",
					"default":     50,
					"minimum":     1,
					"maximum":     1000,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report configured jobs and job database statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
