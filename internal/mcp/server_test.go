package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/jobfeat/internal/config"
	"github.com/dshills/jobfeat/internal/logger"
)

const testConfig = `
[jobfeat]
base_dir = %q

[jobfeat.job.nupack]
job_spec = "monomer -T {threads:numeric} -C {complexity:category}"
default_mem = 1000
default_time = 60

[jobfeat.job.snake]
variables = { threads = "numeric", mode = "category" }
`

func setupServer(t *testing.T) *Server {
	t.Helper()
	logger.ConfigureTestLogging(t)
	t.Setenv(config.EnvDBPath, "")

	dir := t.TempDir()
	cfg, err := config.Parse([]byte(fmt.Sprintf(testConfig, dir)), dir)
	require.NoError(t, err)

	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func TestNewServer(t *testing.T) {
	s := setupServer(t)
	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.storage)
	assert.NotNil(t, s.batch)
}

func TestHandleParseCommand(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	result, err := s.handleParseCommand(ctx, callRequest(map[string]interface{}{
		"job_name": "nupack",
		"cmd":      "monomer -T 2 -C simple",
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, "nupack", out["job_name"])
	features := out["features"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"threads": float64(2)}, features["numerical"])
	assert.Equal(t, map[string]interface{}{"complexity": "simple"}, features["categorical"])

	result, err = s.handleParseCommand(ctx, callRequest(map[string]interface{}{
		"job_name":  "snake",
		"variables": map[string]interface{}{"threads": float64(4), "mode": "fast"},
	}))
	require.NoError(t, err)
	features = resultJSON(t, result)["features"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"mode": "fast"}, features["categorical"])
}

func TestHandleParseCommand_Errors(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	_, err := s.handleParseCommand(ctx, callRequest(map[string]interface{}{
		"job_name": "nupack",
		"cmd":      "monomer -T 2A -C simple",
	}))
	mcpErr := requireMCPError(t, err, ErrorCodeMismatch)
	data := mcpErr.Data.(map[string]interface{})
	assert.Contains(t, data["diagnostic"], "{threads⇒2A}")

	_, err = s.handleParseCommand(ctx, callRequest(map[string]interface{}{
		"job_name": "nupak",
		"cmd":      "monomer -T 2 -C simple",
	}))
	mcpErr = requireMCPError(t, err, ErrorCodeJobNotFound)
	assert.Contains(t, mcpErr.Message, "nupack")

	_, err = s.handleParseCommand(ctx, callRequest(map[string]interface{}{"cmd": "x"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleParseCommand(ctx, callRequest(map[string]interface{}{"job_name": "nupack"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleParseCommand(ctx, callRequest(map[string]interface{}{
		"job_name":  "snake",
		"variables": map[string]interface{}{"threads": "many", "mode": "fast"},
	}))
	requireMCPError(t, err, ErrorCodeExtractionFailed)

	_, err = s.handleParseCommand(ctx, mcp.CallToolRequest{})
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleExplainCommand(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	result, err := s.handleExplainCommand(ctx, callRequest(map[string]interface{}{
		"job_name": "nupack",
		"cmd":      "monomer -T 2A -C simple",
	}))
	require.NoError(t, err)
	assert.Equal(t, "monomer -T {threads⇒2A} -C {complexity⇒simple}\n"+
		"           │     ⚠    │    │                 │\n"+
		"monomer -T └───┤2A├───┘ -C └─────┤simple├────┘", resultText(t, result))

	result, err = s.handleExplainCommand(ctx, callRequest(map[string]interface{}{
		"job_name": "nupack",
		"cmd":      "monomer -T 2 -C simple",
		"exact":    true,
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Able to parse")

	_, err = s.handleExplainCommand(ctx, callRequest(map[string]interface{}{"job_name": "snake", "cmd": "x"}))
	requireMCPError(t, err, ErrorCodeExtractionFailed)
}

func TestHandleRecordJob(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	result, err := s.handleRecordJob(ctx, callRequest(map[string]interface{}{
		"job_name":       "nupack",
		"slurm_id":       "1001",
		"cmd":            "monomer -T 2 -C simple",
		"memory":         float64(512),
		"apply_defaults": true,
	}))
	require.NoError(t, err)
	out := resultJSON(t, result)
	assert.Equal(t, true, out["recorded"])

	job, err := s.storage.GetJob(ctx, "nupack", "1001")
	require.NoError(t, err)
	assert.Equal(t, int64(512), *job.Memory)
	assert.Equal(t, int64(60), *job.Runtime)

	_, err = s.handleRecordJob(ctx, callRequest(map[string]interface{}{
		"job_name": "nupack",
		"slurm_id": "1001",
		"cmd":      "monomer -T 4 -C simple",
	}))
	requireMCPError(t, err, ErrorCodeAlreadyRecorded)

	_, err = s.handleRecordJob(ctx, callRequest(map[string]interface{}{
		"job_name": "nupack",
		"cmd":      "monomer -T 4 -C simple",
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleRecordJob(ctx, callRequest(map[string]interface{}{
		"job_name": "nupack",
		"slurm_id": "1002",
		"cmd":      "monomer -T 4 -C simple",
		"runtime":  float64(-1),
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleRecordBatch(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	result, err := s.handleRecordBatch(ctx, callRequest(map[string]interface{}{
		"requests": []interface{}{
			map[string]interface{}{"job_name": "nupack", "slurm_id": "1", "cmd": "monomer -T 2 -C simple"},
			map[string]interface{}{"job_name": "nupack", "slurm_id": "2", "cmd": "monomer -T x -C simple"},
			map[string]interface{}{"job_name": "snake", "slurm_id": "3", "variables": map[string]interface{}{"threads": 1, "mode": "a"}},
		},
		"workers": float64(2),
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, float64(3), out["requested"])
	assert.Equal(t, float64(2), out["stored"])
	assert.Equal(t, float64(1), out["mismatched"])
	assert.Len(t, out["errors"], 1)

	_, err = s.handleRecordBatch(ctx, callRequest(map[string]interface{}{"requests": "nope"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleRecordBatch(ctx, callRequest(map[string]interface{}{
		"requests": []interface{}{map[string]interface{}{"slurm_id": "1"}},
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleListJobs(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	for i, cmd := range []string{"monomer -T 1 -C simple", "monomer -T 2 -C complex", "monomer -T 3 -C simple"} {
		_, err := s.handleRecordJob(ctx, callRequest(map[string]interface{}{
			"job_name": "nupack",
			"slurm_id": fmt.Sprint(i),
			"cmd":      cmd,
		}))
		require.NoError(t, err)
	}

	result, err := s.handleListJobs(ctx, callRequest(map[string]interface{}{"job_name": "nupack"}))
	require.NoError(t, err)
	assert.Equal(t, float64(3), resultJSON(t, result)["count"])

	result, err = s.handleListJobs(ctx, callRequest(map[string]interface{}{
		"job_name": "nupack",
		"cmd":      "monomer -T 99 -C simple",
	}))
	require.NoError(t, err)
	out := resultJSON(t, result)
	assert.Equal(t, float64(2), out["count"])
	jobs := out["jobs"].([]interface{})
	require.Len(t, jobs, 2)
	first := jobs[0].(map[string]interface{})
	assert.Equal(t, "0", first["slurm_id"])
	assert.NotContains(t, first, "CategoryKey")

	result, err = s.handleListJobs(ctx, callRequest(map[string]interface{}{"limit": float64(1)}))
	require.NoError(t, err)
	out = resultJSON(t, result)
	assert.Equal(t, true, out["truncated"])
	assert.Len(t, out["jobs"], 1)

	_, err = s.handleListJobs(ctx, callRequest(map[string]interface{}{"cmd": "monomer"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleListJobs(ctx, callRequest(map[string]interface{}{"limit": float64(0)}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleGetStatus(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	_, err := s.handleRecordJob(ctx, callRequest(map[string]interface{}{
		"job_name": "nupack",
		"slurm_id": "1",
		"cmd":      "monomer -T 1 -C simple",
	}))
	require.NoError(t, err)

	result, err := s.handleGetStatus(ctx, callRequest(nil))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, []interface{}{"nupack", "snake"}, out["configured_jobs"])
	database := out["database"].(map[string]interface{})
	assert.Equal(t, float64(1), database["jobs_count"])
	assert.Equal(t, float64(2), database["features_count"])
	assert.Contains(t, out, "last_recorded_at")
}
