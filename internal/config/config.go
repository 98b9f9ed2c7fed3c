package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/c2h5oh/datasize"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/dshills/jobfeat/internal/fileparser"
	"github.com/dshills/jobfeat/internal/jobspec"
	"github.com/dshills/jobfeat/pkg/types"
)

// Environment overrides
const (
	EnvConfigPath = "JOBFEAT_CONFIG"
	EnvDBPath     = "JOBFEAT_DB_PATH"
)

// Defaults for optional settings
const (
	DefaultConfigFile = "jobfeat.toml"
	DefaultDBFilename = "jobfeat.db"
)

var (
	// ErrJobNotFound is returned for job names missing from the configuration
	ErrJobNotFound = errors.New("job not found in configuration")

	// ErrInvalidConfig is returned when the configuration cannot be used
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Configuration is a loaded and compiled configuration file
type Configuration struct {
	BaseDir    string
	DBFilename string
	Jobs       map[string]*Job
	Parsers    types.Registry

	cache *fileparser.Cache
}

// Job is a configured job with its compiled specification
type Job struct {
	Name string
	Spec *jobspec.Spec

	// Defaults applied to jobs without a recorded outcome; zero when unset
	DefaultMemory  int64 // MB
	DefaultRuntime int64 // minutes
}

// file mirrors the TOML layout
type file struct {
	Jobfeat section `toml:"jobfeat"`
}

type section struct {
	BaseDir     string                   `toml:"base_dir"`
	DBFilename  string                   `toml:"db_filename"`
	CacheSize   int                      `toml:"cache_size"`
	Jobs        map[string]jobSection    `toml:"job"`
	FileParsers map[string]parserSection `toml:"file_parsers"`
}

type jobSection struct {
	JobSpec     string            `toml:"job_spec"`
	Variables   map[string]string `toml:"variables"`
	FileParsers map[string]string `toml:"file_parsers"`
	DefaultMem  interface{}       `toml:"default_mem"`
	DefaultTime interface{}       `toml:"default_time"`
}

type parserSection struct {
	ReturnType string `toml:"return_type"`
	AwkScript  string `toml:"awk_script"`
	AwkFile    string `toml:"awk_file"`
	Regex      string `toml:"regex"`
}

// Load reads a configuration file. An empty path falls back to
// $JOBFEAT_CONFIG, then to jobfeat.toml in the working directory.
func Load(path string) (*Configuration, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Debug().Str("path", path).Int("jobs", len(cfg.Jobs)).Msg("loaded configuration")
	return cfg, nil
}

// Parse decodes TOML configuration data. Relative paths are resolved
// against dir. Every invalid job or parser is reported, not only the first.
func Parse(data []byte, dir string) (*Configuration, error) {
	var raw file
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg := &Configuration{
		BaseDir:    resolve(dir, raw.Jobfeat.BaseDir),
		DBFilename: raw.Jobfeat.DBFilename,
		Jobs:       make(map[string]*Job),
		cache:      fileparser.NewCache(raw.Jobfeat.CacheSize),
	}
	if cfg.DBFilename == "" {
		cfg.DBFilename = DefaultDBFilename
	}

	errs := new(multierror.Error)

	registry := fileparser.Builtins()
	for _, name := range sortedKeys(raw.Jobfeat.FileParsers) {
		p, err := buildParser(name, raw.Jobfeat.FileParsers[name], dir)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("file parser %q: %w", name, err))
			continue
		}
		registry.Register(p)
	}
	cfg.Parsers = cfg.cache.WrapAll(registry)

	for _, name := range sortedKeys(raw.Jobfeat.Jobs) {
		job, err := buildJob(name, raw.Jobfeat.Jobs[name], cfg.Parsers)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("job %q: %w", name, err))
			continue
		}
		cfg.Jobs[name] = job
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// buildParser creates a custom file parser from its definition
func buildParser(name string, def parserSection, dir string) (types.Parser, error) {
	kind, err := types.ParseValueKind(def.ReturnType)
	if err != nil {
		return nil, err
	}

	sources := 0
	for _, s := range []string{def.AwkScript, def.AwkFile, def.Regex} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return nil, errors.New("exactly one of awk_script, awk_file or regex is required")
	}

	switch {
	case def.AwkScript != "":
		return fileparser.NewAwkCommand(name, kind, def.AwkScript), nil
	case def.AwkFile != "":
		return fileparser.NewAwkFile(name, kind, resolve(dir, def.AwkFile)), nil
	default:
		return fileparser.NewRegex(name, kind, def.Regex)
	}
}

// buildJob compiles a job's specification and reads its defaults
func buildJob(name string, def jobSection, registry types.Registry) (*Job, error) {
	var spec *jobspec.Spec
	var err error

	switch {
	case def.JobSpec != "":
		spec, err = jobspec.Compile(def.JobSpec, def.FileParsers, registry)
		if err == nil && def.Variables != nil {
			err = spec.CheckVariables(def.Variables)
		}
	case def.Variables != nil:
		spec, err = jobspec.FromVariableMap(def.Variables, def.FileParsers, registry)
	default:
		err = errors.New("job_spec or variables is required")
	}
	if err != nil {
		return nil, err
	}

	job := &Job{Name: name, Spec: spec}

	if def.DefaultMem != nil {
		if job.DefaultMemory, err = parseMemory(def.DefaultMem); err != nil {
			return nil, fmt.Errorf("default_mem: %w", err)
		}
	}
	if def.DefaultTime != nil {
		if job.DefaultRuntime, err = cast.ToInt64E(def.DefaultTime); err != nil {
			return nil, fmt.Errorf("default_time: %w", err)
		}
	}
	return job, nil
}

// parseMemory accepts megabytes as a number or a size such as "4GB"
func parseMemory(v interface{}) (int64, error) {
	if s, ok := v.(string); ok {
		if mb, err := cast.ToInt64E(s); err == nil {
			return mb, nil
		}
		size, err := datasize.ParseString(s)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", s, err)
		}
		return int64(size.MBytes()), nil
	}
	return cast.ToInt64E(v)
}

// DBPath returns the database location: $JOBFEAT_DB_PATH when set, otherwise
// db_filename inside base_dir
func (c *Configuration) DBPath() string {
	if p := os.Getenv(EnvDBPath); p != "" {
		return p
	}
	return filepath.Join(c.BaseDir, c.DBFilename)
}

// JobNames returns the configured job names in sorted order
func (c *Configuration) JobNames() []string {
	return sortedKeys(c.Jobs)
}

// ParserCacheLen returns the number of cached file parser results
func (c *Configuration) ParserCacheLen() int {
	return c.cache.Len()
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
