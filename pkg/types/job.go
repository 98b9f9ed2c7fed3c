package types

import (
	"encoding/json"
	"errors"
	"sort"
)

// FeatureRecord holds the features extracted from one command or variable map
type FeatureRecord struct {
	Numerics   map[string]Value
	Categories map[string]Value
}

// NewFeatureRecord creates an empty record
func NewFeatureRecord() *FeatureRecord {
	return &FeatureRecord{
		Numerics:   make(map[string]Value),
		Categories: make(map[string]Value),
	}
}

// Set stores a value in the map selected by kind
func (r *FeatureRecord) Set(kind ValueKind, key string, v Value) {
	if kind == Category {
		r.Categories[key] = v
		return
	}
	r.Numerics[key] = v
}

// Keys returns every feature key in sorted order
func (r *FeatureRecord) Keys() []string {
	keys := make([]string, 0, len(r.Numerics)+len(r.Categories))
	for k := range r.Numerics {
		keys = append(keys, k)
	}
	for k := range r.Categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the record as {"numerical": {...}, "categorical": {...}}
func (r *FeatureRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]map[string]any{
		"numerical":   plainMap(r.Numerics),
		"categorical": plainMap(r.Categories),
	})
}

func plainMap(m map[string]Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = toPlain(v)
	}
	return out
}

// Len returns the number of features
func (r *FeatureRecord) Len() int {
	return len(r.Numerics) + len(r.Categories)
}

// JobData is one execution of a configured job: its identity, the command
// that ran, the extracted features and the observed resource usage
type JobData struct {
	// Identification
	JobName string `json:"job_name"`
	SlurmID string `json:"slurm_id,omitempty"` // Scheduler job id, empty for queries

	// Input
	Cmd string `json:"cmd,omitempty"`

	// Features
	Features *FeatureRecord `json:"features"`

	// Outcome
	Memory  *int64 `json:"memory,omitempty"`  // Peak memory in MB
	Runtime *int64 `json:"runtime,omitempty"` // Runtime in minutes
}

// Validate checks that the job can be recorded
func (j *JobData) Validate() error {
	if j.JobName == "" {
		return errors.New("job name is required")
	}

	if j.Features == nil {
		return errors.New("features are required")
	}

	if j.Memory != nil && *j.Memory < 0 {
		return errors.New("memory must not be negative")
	}

	if j.Runtime != nil && *j.Runtime < 0 {
		return errors.New("runtime must not be negative")
	}

	return nil
}

// HasOutcome returns true once both memory and runtime are known
func (j *JobData) HasOutcome() bool {
	return j.Memory != nil && j.Runtime != nil
}

// Int64 returns a pointer to v, for populating optional outcome fields
func Int64(v int64) *int64 {
	return &v
}
