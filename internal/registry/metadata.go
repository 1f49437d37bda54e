package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
)

const (
	blockOpen  = "# /// script"
	blockClose = "# ///"
)

var dependencyLinePattern = regexp.MustCompile(`"([^"]+)"`)

// ParseInlineDeps extracts the PEP-723-shaped inline dependency block:
//
//	# /// script
//	# dependencies = [ "<pkg-spec>", ... ]
//	# ///
//
// The dependencies list may span several comment lines. Every interior line
// must start with the comment marker; unknown keys are
// ignored; a malformed block (open with no matching close, a non-comment
// interior line) is reported as domain.ErrBadSource so callers can surface
// it the same way as any other source-parse failure.
func ParseInlineDeps(source string) ([]string, error) {
	lines := strings.Split(normalizeSource(source), "\n")

	start := -1
	end := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == blockOpen {
			start = i
			continue
		}
		if start != -1 && strings.TrimSpace(line) == blockClose {
			end = i
			break
		}
	}

	if start == -1 {
		return nil, nil
	}
	if end == -1 {
		return nil, fmt.Errorf("%w: unterminated inline metadata block", domain.ErrBadSource)
	}

	var deps []string
	pending := "" // dependencies list text gathered until its closing bracket
	for _, raw := range lines[start+1 : end] {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			return nil, fmt.Errorf("%w: non-comment line inside inline metadata block", domain.ErrBadSource)
		}
		content := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if pending == "" && !strings.HasPrefix(content, "dependencies") {
			continue // unknown keys ignored
		}
		pending += content
		if !strings.HasSuffix(content, "]") {
			continue // list continues on the next comment line
		}
		open := strings.Index(pending, "[")
		closeIdx := strings.LastIndex(pending, "]")
		if open == -1 || closeIdx < open {
			return nil, fmt.Errorf("%w: malformed dependencies list", domain.ErrBadSource)
		}
		matches := dependencyLinePattern.FindAllStringSubmatch(pending[open:closeIdx], -1)
		for _, m := range matches {
			deps = append(deps, m[1])
		}
		pending = ""
	}
	if pending != "" {
		return nil, fmt.Errorf("%w: malformed dependencies list", domain.ErrBadSource)
	}
	return deps, nil
}
