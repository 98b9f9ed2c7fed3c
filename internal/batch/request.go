package batch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds one JSON-lines request
const maxLineSize = 1024 * 1024

// Request describes one job run to extract. Exactly one of Cmd and
// Variables is set.
type Request struct {
	JobName   string         `json:"job_name"`
	SlurmID   string         `json:"slurm_id"`
	Cmd       string         `json:"cmd,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
	Memory    *int64         `json:"memory,omitempty"`  // MB
	Runtime   *int64         `json:"runtime,omitempty"` // minutes
}

// Validate checks the request shape
func (r *Request) Validate() error {
	if r.JobName == "" {
		return errors.New("job_name is required")
	}
	if r.Cmd == "" && r.Variables == nil {
		return errors.New("one of cmd or variables is required")
	}
	if r.Cmd != "" && r.Variables != nil {
		return errors.New("cmd and variables are mutually exclusive")
	}
	return nil
}

// ReadRequests reads one JSON request per line. Blank lines are skipped.
func ReadRequests(r io.Reader) ([]Request, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var requests []Request
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return nil, fmt.Errorf("line %d: failed to decode request: %w", line, err)
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		requests = append(requests, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read requests: %w", err)
	}
	return requests, nil
}
