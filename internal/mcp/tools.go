package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/dshills/jobfeat/internal/batch"
	"github.com/dshills/jobfeat/internal/config"
	"github.com/dshills/jobfeat/internal/jobspec"
	"github.com/dshills/jobfeat/internal/storage"
	"github.com/dshills/jobfeat/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeJobNotFound      = -32001 // Job is not defined in the configuration
	ErrorCodeBatchInProgress  = -32002 // Another batch is already running
	ErrorCodeMismatch         = -32003 // Command does not match its job spec
	ErrorCodeAlreadyRecorded  = -32004 // Run with this slurm id already stored
	ErrorCodeExtractionFailed = -32005 // Features could not be extracted
)

// maxReportedErrors caps the error messages included in a batch response
const maxReportedErrors = 5

// handleParseCommand handles the parse_command tool invocation
func (s *Server) handleParseCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	data, err := s.extract(args, getStringDefault(args, "slurm_id", ""))
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"job_name": data.JobName,
		"features": data.Features,
	})), nil
}

// handleExplainCommand handles the explain_command tool invocation
func (s *Server) handleExplainCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	job, err := s.job(args)
	if err != nil {
		return nil, err
	}

	cmd, ok := args["cmd"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "cmd parameter is required", map[string]interface{}{
			"param":  "cmd",
			"reason": "missing",
		})
	}

	var diagnostic string
	if getBoolDefault(args, "exact", false) {
		diagnostic, err = job.Spec.ExplainExact(cmd)
	} else {
		diagnostic, err = job.Spec.Explain(cmd)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeExtractionFailed, "unable to explain command", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(diagnostic), nil
}

// handleRecordJob handles the record_job tool invocation
func (s *Server) handleRecordJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	slurmID := getStringDefault(args, "slurm_id", "")
	if slurmID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "slurm_id parameter is required", map[string]interface{}{
			"param":  "slurm_id",
			"reason": "missing or empty",
		})
	}

	data, err := s.extract(args, slurmID)
	if err != nil {
		return nil, err
	}

	for key, dst := range map[string]**int64{"memory": &data.Memory, "runtime": &data.Runtime} {
		v, err := getOptionalInt64(args, key)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid "+key, map[string]interface{}{
				"param":  key,
				"reason": err.Error(),
			})
		}
		*dst = v
	}

	if getBoolDefault(args, "apply_defaults", false) {
		if err := s.config.AddDefaults(data); err != nil {
			return nil, extractionError(err)
		}
	}

	job, err := s.storage.RecordJob(ctx, data)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil, newMCPError(ErrorCodeAlreadyRecorded, "job run already recorded", map[string]interface{}{
			"job_name": data.JobName,
			"slurm_id": slurmID,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to record job", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"recorded": true,
		"job":      job,
	})), nil
}

// handleRecordBatch handles the record_batch tool invocation
func (s *Server) handleRecordBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	requests, err := decodeRequests(args["requests"])
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid requests", map[string]interface{}{
			"param":  "requests",
			"reason": err.Error(),
		})
	}

	opts := &batch.Options{
		Workers:       getIntDefault(args, "workers", 0),
		ApplyDefaults: getBoolDefault(args, "apply_defaults", false),
	}

	stats, err := s.batch.Run(ctx, requests, opts)
	if errors.Is(err, batch.ErrInProgress) {
		return nil, newMCPError(ErrorCodeBatchInProgress, "a batch is already running", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "batch failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"requested":   stats.Requested,
		"extracted":   stats.Extracted,
		"stored":      stats.Stored,
		"failed":      stats.Failed,
		"mismatched":  stats.Mismatched,
		"duration_ms": stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListJobs handles the list_jobs tool invocation
func (s *Server) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	limit := getIntDefault(args, "limit", 50)
	if limit < 1 || limit > 1000 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 1000", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	jobName := getStringDefault(args, "job_name", "")
	cmd := getStringDefault(args, "cmd", "")

	var jobs []*storage.Job
	var err error
	switch {
	case cmd != "" && jobName == "":
		return nil, newMCPError(ErrorCodeInvalidParams, "cmd requires job_name", map[string]interface{}{
			"param": "job_name",
		})
	case cmd != "":
		query, extractErr := s.config.ParseJobCommand(jobName, "", cmd)
		if extractErr != nil {
			return nil, extractionError(extractErr)
		}
		jobs, err = s.storage.QueryJobs(ctx, query)
	default:
		jobs, err = s.storage.ListJobs(ctx, jobName)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list jobs", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"count": len(jobs),
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
		response["truncated"] = true
	}
	response["jobs"] = jobs

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"configured_jobs":      s.config.JobNames(),
		"parser_cache_entries": s.config.ParserCacheLen(),
		"database": map[string]interface{}{
			"path":           s.config.DBPath(),
			"schema_version": status.SchemaVersion,
			"build_mode":     status.BuildMode,
			"jobs_count":     status.JobsCount,
			"features_count": status.FeaturesCount,
			"runs_per_job":   status.JobNames,
		},
	}
	if !status.LastRecordedAt.IsZero() {
		response["last_recorded_at"] = status.LastRecordedAt.Format("2006-01-02T15:04:05Z07:00")
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// job resolves the job_name argument against the configuration
func (s *Server) job(args map[string]interface{}) (*config.Job, error) {
	jobName := getStringDefault(args, "job_name", "")
	if jobName == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "job_name parameter is required", map[string]interface{}{
			"param":  "job_name",
			"reason": "missing or empty",
		})
	}

	job, err := s.config.Job(jobName)
	if err != nil {
		return nil, extractionError(err)
	}
	return job, nil
}

// extract builds job data from either the cmd or the variables argument
func (s *Server) extract(args map[string]interface{}, slurmID string) (*types.JobData, error) {
	job, err := s.job(args)
	if err != nil {
		return nil, err
	}

	cmd, hasCmd := args["cmd"].(string)
	variables, hasVariables := args["variables"].(map[string]interface{})
	if hasCmd == hasVariables {
		return nil, newMCPError(ErrorCodeInvalidParams, "exactly one of cmd or variables is required", map[string]interface{}{
			"param": "cmd",
		})
	}

	var data *types.JobData
	if hasVariables {
		data, err = s.config.ParseJobVariables(job.Name, slurmID, variables)
	} else {
		data, err = s.config.ParseJobCommand(job.Name, slurmID, cmd)
	}
	if err != nil {
		return nil, extractionError(err)
	}
	return data, nil
}

// extractionError maps extraction failures to MCP errors
func extractionError(err error) error {
	var mismatch *jobspec.MismatchError
	switch {
	case errors.As(err, &mismatch):
		return newMCPError(ErrorCodeMismatch, "command does not match job spec", map[string]interface{}{
			"diagnostic": mismatch.Diagnostic,
		})
	case errors.Is(err, config.ErrJobNotFound):
		return newMCPError(ErrorCodeJobNotFound, err.Error(), nil)
	default:
		return newMCPError(ErrorCodeExtractionFailed, "extraction failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// decodeRequests converts the decoded JSON array into batch requests
func decodeRequests(raw interface{}) ([]batch.Request, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, errors.New("must be an array")
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	var requests []batch.Request
	if err := json.Unmarshal(data, &requests); err != nil {
		return nil, err
	}
	for i := range requests {
		if err := requests[i].Validate(); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}
	return requests, nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getOptionalInt64 extracts a non-negative integer parameter, nil when absent
func getOptionalInt64(args map[string]interface{}, key string) (*int64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, err := cast.ToInt64E(raw)
	if err != nil {
		return nil, err
	}
	if v < 0 {
		return nil, errors.New("must not be negative")
	}
	return types.Int64(v), nil
}
