package pipeline

import (
	"fmt"
	"strings"
)

// Params are the user-settable parameters of a run.
type Params struct {
	AgentLabel string `json:"agent_label"`
	Verbosity  int    `json:"verbosity"`
	NimCommit  string `json:"nim_commit"`
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.Verbosity < 0 || p.Verbosity > 2 {
		return fmt.Errorf("verbosity must be 0, 1 or 2, got %d", p.Verbosity)
	}
	return nil
}

// DefaultNimCommit returns the default NIM_COMMIT value for a job
// path: "upstream" for nim-upstream jobs, otherwise empty (builds
// use the pinned submodule revision).
func DefaultNimCommit(jobPath string) string {
	if strings.Contains(jobPath, "nim-upstream") {
		return "upstream"
	}
	return ""
}

// BuildFlags composes the flag string handed to the external build
// tool: parallelism from the runner's processor count, verbosity,
// and the optional commit pin.
func BuildFlags(p Params, nproc int) string {
	if nproc < 1 {
		nproc = 1
	}
	flags := fmt.Sprintf("-j%d V=%d", nproc, p.Verbosity)
	if p.NimCommit != "" {
		flags += fmt.Sprintf(" NIM_COMMIT=%s", p.NimCommit)
	}
	return flags
}

// BuildEnv returns the environment exposed to stage commands.
func BuildEnv(p Params, nproc int) map[string]string {
	if nproc < 1 {
		nproc = 1
	}
	env := map[string]string{
		"NPROC":       fmt.Sprintf("%d", nproc),
		"VERBOSITY":   fmt.Sprintf("%d", p.Verbosity),
		"BUILD_FLAGS": BuildFlags(p, nproc),
	}
	if p.NimCommit != "" {
		env["NIM_COMMIT"] = p.NimCommit
	}
	return env
}
