// Package pipeline defines the declarative pipeline model: stages,
// parallel groups, post-actions and scheduling options.
package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so pipeline definitions can use
// human-readable values like "30m" in both YAML and JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Pipeline is a complete pipeline definition.
type Pipeline struct {
	Name    string  `yaml:"name" json:"name"`
	Options Options `yaml:"options" json:"options"`
	Stages  []Stage `yaml:"stages" json:"stages"`
}

// Options holds the run-global settings of a pipeline.
type Options struct {
	// GlobalTimeout bounds the whole run, measured from enqueue time.
	// Queue wait counts against it.
	GlobalTimeout Duration `yaml:"global_timeout" json:"global_timeout"`

	// Timestamps prefixes every captured output line with a timestamp.
	Timestamps bool `yaml:"timestamps" json:"timestamps"`

	// ANSIColor preserves ANSI escape sequences in captured output
	// instead of stripping them.
	ANSIColor bool `yaml:"ansi_color" json:"ansi_color"`

	// Category names the throttle group this pipeline belongs to.
	Category string `yaml:"category" json:"category"`

	// MaxTotal bounds concurrently active runs across all nodes in
	// the category. MaxPerNode bounds active runs on a single node.
	MaxTotal   int `yaml:"max_total" json:"max_total"`
	MaxPerNode int `yaml:"max_per_node" json:"max_per_node"`

	// Retention: how many recent runs keep their logs / artifacts.
	LogRunsToKeep      int `yaml:"log_runs_to_keep" json:"log_runs_to_keep"`
	ArtifactRunsToKeep int `yaml:"artifact_runs_to_keep" json:"artifact_runs_to_keep"`

	// MainlineBranches are never supersede-cancelled by newer runs.
	MainlineBranches []string `yaml:"mainline_branches" json:"mainline_branches"`
}

// Stage is a named unit of work. A stage either runs commands or
// fans out into parallel children, never both.
type Stage struct {
	Name     string   `yaml:"name" json:"name"`
	Commands []string `yaml:"commands,omitempty" json:"commands,omitempty"`
	Parallel []Stage  `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	Timeout  Duration `yaml:"timeout" json:"timeout"`

	// AllowFailure marks the stage failed without failing the run.
	AllowFailure bool `yaml:"allow_failure,omitempty" json:"allow_failure,omitempty"`

	// Image switches the stage to the container runtime.
	Image string `yaml:"image,omitempty" json:"image,omitempty"`

	Post *PostAction `yaml:"post,omitempty" json:"post,omitempty"`
}

// PostAction is a hook that runs after its stage regardless of outcome.
type PostAction struct {
	Archive *ArchiveSpec `yaml:"archive,omitempty" json:"archive,omitempty"`
}

// ArchiveSpec selects workspace files for artifact archiving.
type ArchiveSpec struct {
	Name    string   `yaml:"name" json:"name"`
	Globs   []string `yaml:"globs" json:"globs"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// Defaults applied by Normalize.
const (
	DefaultGlobalTimeout      = 24 * time.Hour
	DefaultMaxTotal           = 9
	DefaultMaxPerNode         = 1
	DefaultLogRunsToKeep      = 10
	DefaultArtifactRunsToKeep = 5
)

// DefaultMainlineBranches are the branches whose runs are never
// cancelled by a newer run on the same branch.
var DefaultMainlineBranches = []string{"stable", "testing", "unstable"}

// Normalize fills unset options with defaults.
func (p *Pipeline) Normalize() {
	if p.Options.GlobalTimeout <= 0 {
		p.Options.GlobalTimeout = Duration(DefaultGlobalTimeout)
	}
	if p.Options.Category == "" {
		p.Options.Category = p.Name
	}
	if p.Options.MaxTotal <= 0 {
		p.Options.MaxTotal = DefaultMaxTotal
	}
	if p.Options.MaxPerNode <= 0 {
		p.Options.MaxPerNode = DefaultMaxPerNode
	}
	if p.Options.LogRunsToKeep <= 0 {
		p.Options.LogRunsToKeep = DefaultLogRunsToKeep
	}
	if p.Options.ArtifactRunsToKeep <= 0 {
		p.Options.ArtifactRunsToKeep = DefaultArtifactRunsToKeep
	}
	if len(p.Options.MainlineBranches) == 0 {
		p.Options.MainlineBranches = DefaultMainlineBranches
	}
}

// IsMainline reports whether runs on the branch are protected from
// supersede-cancellation.
func (p *Pipeline) IsMainline(branch string) bool {
	for _, b := range p.Options.MainlineBranches {
		if b == branch {
			return true
		}
	}
	return false
}

// StageCount returns the number of leaf stages, counting parallel
// children individually.
func (p *Pipeline) StageCount() int {
	n := 0
	for _, s := range p.Stages {
		if len(s.Parallel) > 0 {
			n += len(s.Parallel)
		} else {
			n++
		}
	}
	return n
}

// Validate checks structural invariants of the definition.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline %q has no stages", p.Name)
	}

	seen := make(map[string]bool)
	var checkStage func(s *Stage, topLevel bool) error
	checkStage = func(s *Stage, topLevel bool) error {
		if s.Name == "" {
			return fmt.Errorf("pipeline %q: stage without a name", p.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("pipeline %q: duplicate stage name %q", p.Name, s.Name)
		}
		seen[s.Name] = true

		hasCommands := len(s.Commands) > 0
		hasChildren := len(s.Parallel) > 0
		switch {
		case hasCommands && hasChildren:
			return fmt.Errorf("stage %q: commands and parallel are mutually exclusive", s.Name)
		case !hasCommands && !hasChildren:
			return fmt.Errorf("stage %q: needs commands or parallel children", s.Name)
		}

		if hasChildren {
			if !topLevel {
				return fmt.Errorf("stage %q: parallel groups cannot nest", s.Name)
			}
			for i := range s.Parallel {
				if err := checkStage(&s.Parallel[i], false); err != nil {
					return err
				}
			}
			return nil
		}

		if s.Timeout <= 0 {
			return fmt.Errorf("stage %q: timeout is required", s.Name)
		}
		return nil
	}

	for i := range p.Stages {
		if err := checkStage(&p.Stages[i], true); err != nil {
			return err
		}
	}
	return nil
}
