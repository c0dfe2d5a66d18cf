// Package checks implements the gate check runner: sanitized shell command
// execution with timeouts, the placeholder scan, env completeness and start
// checks, and persistence of results as typed artifacts.
package checks

import (
	"regexp"

	pipelineerrors "github.com/randalmurphal/popeye/internal/errors"
)

// denyPatterns rejects commands that must never run under the pipeline, no
// matter where they came from.
var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(^|\s)sudo(\s|$)`),
	regexp.MustCompile(`rm\s+(-[a-zA-Z]*\s+)*-[a-zA-Z]*[rf][a-zA-Z]*\s+/(\s|$)`),
	regexp.MustCompile(`rm\s+-rf\s+/`),
	regexp.MustCompile(`(curl|wget)[^|]*\|\s*(ba)?sh`),
	regexp.MustCompile(`(^|\s)mkfs(\.|$|\s)`),
	regexp.MustCompile(`(^|\s)dd\s+.*of=/dev/`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`(^|\s)shutdown(\s|$)`),
	regexp.MustCompile(`(^|\s)reboot(\s|$)`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};:`),
}

// SanitizeCommand rejects deny-listed commands. A nil return means the
// command may run.
func SanitizeCommand(command string) error {
	for _, p := range denyPatterns {
		if p.MatchString(command) {
			return pipelineerrors.ErrCommandRejected(command, p.String())
		}
	}
	return nil
}
