package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/dshills/jobfeat/pkg/types"
)

// maxSuggestions bounds the "did you mean" list of ErrJobNotFound
const maxSuggestions = 3

// maxTypoDistance is the largest edit distance still suggested as a typo
const maxTypoDistance = 2

// Job returns a configured job
func (c *Configuration) Job(name string) (*Job, error) {
	if job, ok := c.Jobs[name]; ok {
		return job, nil
	}

	suggestions := c.Suggest(name)
	if len(suggestions) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}
	return nil, fmt.Errorf("%w: %q (did you mean %s?)", ErrJobNotFound, name, strings.Join(suggestions, ", "))
}

// Suggest returns configured job names close to name, best first
func (c *Configuration) Suggest(name string) []string {
	names := c.JobNames()

	var suggestions []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] && len(suggestions) < maxSuggestions {
			seen[s] = true
			suggestions = append(suggestions, s)
		}
	}

	ranks := fuzzy.RankFindFold(name, names)
	sort.Sort(ranks)
	for _, r := range ranks {
		add(r.Target)
	}

	type scored struct {
		name     string
		distance int
	}
	var typos []scored
	for _, candidate := range names {
		d := fuzzy.LevenshteinDistance(strings.ToLower(name), strings.ToLower(candidate))
		if d <= maxTypoDistance {
			typos = append(typos, scored{candidate, d})
		}
	}
	sort.SliceStable(typos, func(i, j int) bool { return typos[i].distance < typos[j].distance })
	for _, typo := range typos {
		add(typo.name)
	}

	return suggestions
}

// ParseJobCommand extracts the features of one execution of a job from its
// command line
func (c *Configuration) ParseJobCommand(jobName, slurmID, cmd string) (*types.JobData, error) {
	job, err := c.Job(jobName)
	if err != nil {
		return nil, err
	}

	features, err := job.Spec.MatchCommand(cmd)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", jobName, err)
	}

	return &types.JobData{
		JobName:  jobName,
		SlurmID:  slurmID,
		Cmd:      cmd,
		Features: features,
	}, nil
}

// ParseJobVariables extracts the features of one execution of a job from
// typed variables
func (c *Configuration) ParseJobVariables(jobName, slurmID string, values map[string]any) (*types.JobData, error) {
	job, err := c.Job(jobName)
	if err != nil {
		return nil, err
	}

	features, err := job.Spec.MatchVariables(values)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", jobName, err)
	}

	return &types.JobData{
		JobName:  jobName,
		SlurmID:  slurmID,
		Features: features,
	}, nil
}

// AddDefaults fills unset memory and runtime with the job's defaults
func (c *Configuration) AddDefaults(data *types.JobData) error {
	job, err := c.Job(data.JobName)
	if err != nil {
		return err
	}

	if data.Memory == nil && job.DefaultMemory > 0 {
		data.Memory = types.Int64(job.DefaultMemory)
	}
	if data.Runtime == nil && job.DefaultRuntime > 0 {
		data.Runtime = types.Int64(job.DefaultRuntime)
	}
	return nil
}
