package policy

import (
	"regexp"
	"strings"
)

// Decision is the verdict on oracle-authored text that will be fed back into a later prompt.
type Decision struct {
	Blocked bool
	Reason  string
}

var blockedDirectivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+-rf\s+/(?:\s|$)`),
	regexp.MustCompile(`(?i)\b(sudo\s+)?cat\s+.*(?:id_rsa|id_ed25519|\.env|auth\.json)`),
	regexp.MustCompile(`(?i)\b(exfiltrate|dump credentials|leak secrets?)\b`),
	regexp.MustCompile(`(?i)\b(print|show|reveal)\b.*\b(api[_ -]?key|password|secret)\b`),
	regexp.MustCompile(`(?i)\bignore (all|any|previous|prior) (instructions|rules)\b`),
	regexp.MustCompile(`(?i)\b(write|create|modify|delete)\b.*\bfiles?\b.*\b(on disk|in the (working )?directory)\b`),
}

// ScreenDirective rejects directives that would steer a tool-capable oracle process toward the
// host instead of the simulation. Ordinary in-world verbs ("kill", "destroy") pass.
func ScreenDirective(text string) Decision {
	in := strings.TrimSpace(text)
	if in == "" {
		return Decision{}
	}
	for _, re := range blockedDirectivePatterns {
		if re.MatchString(in) {
			return Decision{
				Blocked: true,
				Reason:  "directive addresses the host rather than the simulation",
			}
		}
	}
	return Decision{}
}
