package pipeline

import (
	"fmt"
	"strings"
)

// RecognizedLabels is the fixed set of platform/arch tokens that can
// be derived into an agent label from a job path.
var RecognizedLabels = []string{"linux", "macos", "windows", "x86_64", "aarch64"}

// ResolveAgentLabel resolves the agent label for a run. An explicit
// label always wins. Otherwise the job path is tokenized and
// intersected with RecognizedLabels; multiple matches combine with
// "&&" (e.g. "linux && aarch64"). A derivation that matches nothing
// is an error rather than an empty label, so a run with an
// unschedulable label never reaches the queue.
func ResolveAgentLabel(explicit, jobPath string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	recognized := make(map[string]bool, len(RecognizedLabels))
	for _, l := range RecognizedLabels {
		recognized[l] = true
	}

	var matched []string
	seen := make(map[string]bool)
	for _, token := range tokenizeJobPath(jobPath) {
		if recognized[token] && !seen[token] {
			matched = append(matched, token)
			seen[token] = true
		}
	}

	if len(matched) == 0 {
		return "", fmt.Errorf("no recognized platform token in job path %q", jobPath)
	}
	return strings.Join(matched, " && "), nil
}

// MatchesLabel reports whether a node advertising the given labels
// satisfies an agent label expression (tokens joined by "&&").
func MatchesLabel(expr string, nodeLabels []string) bool {
	have := make(map[string]bool, len(nodeLabels))
	for _, l := range nodeLabels {
		have[l] = true
	}
	for _, want := range strings.Split(expr, "&&") {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		if !have[want] {
			return false
		}
	}
	return true
}

func tokenizeJobPath(jobPath string) []string {
	return strings.FieldsFunc(jobPath, func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
}
