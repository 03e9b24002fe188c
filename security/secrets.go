package security

import "regexp"

// secretPatterns detect common secret shapes: API key prefixes, JWTs, and
// PEM private-key headers, per spec §4.3 step 2.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),                        // OpenAI-style API key
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                           // AWS access key id
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),                        // GitHub personal access token
	regexp.MustCompile(`eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`), // JWT shape
	regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |)PRIVATE KEY-----`),
}

// ContainsSecret reports whether input matches a recognized secret pattern.
func ContainsSecret(input string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(input) {
			return true
		}
	}
	return false
}

// RedactSecrets replaces every recognized secret pattern with "[REDACTED]",
// used on both tool input logging and tool output before it leaves the
// dispatch path (spec §4.3 steps 2 and 6).
func RedactSecrets(input string) string {
	out := input
	for _, p := range secretPatterns {
		out = p.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}
