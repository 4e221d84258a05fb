package artifact

import (
	"path"
	"strings"
)

// matchPattern checks a slash-separated relative path against a glob
// pattern. "*" and "?" never cross a "/" (standard path.Match
// behavior); "**" matches zero or more whole segments and may appear
// as suffix ("logs/**"), prefix ("**/core") or interior
// ("local-testnet-*/**/node.log"). Malformed patterns match nothing.
func matchPattern(pattern, relPath string) bool {
	if pattern == "**" {
		return true
	}

	if !strings.Contains(pattern, "**") {
		matched, err := path.Match(pattern, relPath)
		if err != nil {
			return false
		}
		return matched
	}

	if strings.HasSuffix(pattern, "/**") {
		prefix := pattern[:len(pattern)-3]
		if matchGlob(prefix, relPath) {
			return true
		}
		// ** consumes one or more trailing segments.
		segments := strings.Split(relPath, "/")
		for i := 1; i < len(segments); i++ {
			if matchGlob(prefix, strings.Join(segments[:i], "/")) {
				return true
			}
		}
		return false
	}

	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		if matchGlob(suffix, relPath) {
			return true
		}
		segments := strings.Split(relPath, "/")
		for i := 1; i < len(segments); i++ {
			if matchGlob(suffix, strings.Join(segments[i:], "/")) {
				return true
			}
		}
		return false
	}

	// Interior "/**/": split once and match both halves.
	idx := strings.Index(pattern, "/**/")
	if idx < 0 {
		// ** embedded inside a segment ("foo**bar") — treat as a
		// plain multi-char wildcard within that segment.
		return matchGlob(strings.ReplaceAll(pattern, "**", "*"), relPath)
	}
	prefix, suffix := pattern[:idx], pattern[idx+4:]

	if matchPattern(prefix+"/"+suffix, relPath) {
		return true
	}

	segments := strings.Split(relPath, "/")
	for i := 1; i < len(segments); i++ {
		if matchGlob(prefix, strings.Join(segments[:i], "/")) &&
			matchPattern("**/"+suffix, strings.Join(segments[i:], "/")) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, s string) bool {
	matched, err := path.Match(pattern, s)
	if err != nil {
		return false
	}
	return matched
}
