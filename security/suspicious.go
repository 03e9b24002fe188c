package security

import "regexp"

var (
	pathTraversalPattern     = regexp.MustCompile(`(^|/)\.\.(/|$)`)
	commandMetacharPattern   = regexp.MustCompile(`[;&|` + "`" + `$]|\$\(`)
	sqlInjectionPattern      = regexp.MustCompile(`(?i)(\bunion\b\s+\bselect\b|\bor\b\s+1\s*=\s*1|;\s*drop\s+table|--\s*$)`)
	scriptTagPattern         = regexp.MustCompile(`(?i)<script[\s>]`)
)

// SuspiciousKind names which suspicious-pattern family matched.
type SuspiciousKind string

const (
	SuspiciousNone            SuspiciousKind = ""
	SuspiciousPathTraversal   SuspiciousKind = "path_traversal"
	SuspiciousCommandInjection SuspiciousKind = "command_injection"
	SuspiciousSQLInjection    SuspiciousKind = "sql_injection"
	SuspiciousScriptTag       SuspiciousKind = "script_tag"
)

// ScanSuspicious checks input against the fixed family of suspicious shapes
// named in spec §4.3 step 3: path-traversal segments, command-injection
// metacharacters, SQL-injection shapes, and script tags. It mirrors, in a
// single general scanner, what the teacher's command.go/file_writer.go did
// ad hoc per tool (extractBaseCommand splitting on "|><;", validatePath's
// ".." check).
func ScanSuspicious(input string) SuspiciousKind {
	switch {
	case pathTraversalPattern.MatchString(input):
		return SuspiciousPathTraversal
	case commandMetacharPattern.MatchString(input):
		return SuspiciousCommandInjection
	case sqlInjectionPattern.MatchString(input):
		return SuspiciousSQLInjection
	case scriptTagPattern.MatchString(input):
		return SuspiciousScriptTag
	default:
		return SuspiciousNone
	}
}
