// Package ident validates the identifier types threaded through the spec's
// data model: agent ids, tool names, memory keys, mesh topics, and namespace
// prefixes. Centralizing the regexes keeps the boundary behaviors (§8) in
// one place instead of re-implemented per package.
package ident

import (
	"regexp"

	"github.com/relaykit/kernel/kernelerr"
)

var (
	agentIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,128}$`)
	toolNamePattern   = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)
	memoryKeyPattern  = regexp.MustCompile(`^[A-Za-z0-9_\-./]{1,256}$`)
	topicPattern      = regexp.MustCompile(`^[a-zA-Z0-9._\-]{1,128}$`)
	namespacePattern  = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)
)

func validation(component, operation, message string) error {
	return kernelerr.New(kernelerr.KindValidation, kernelerr.CodeMalformedIdentifier, component, operation, message, nil)
}

// AgentID validates an agent identifier: non-empty, <=128 chars, ASCII
// alphanumeric plus '-' and '_'.
func AgentID(s string) error {
	if !agentIDPattern.MatchString(s) {
		return validation("ident", "AgentID", "agent id must match [A-Za-z0-9_-]{1,128}")
	}
	return nil
}

// ToolName validates a custom tool name: 1-64 chars, no shell metacharacters.
func ToolName(s string) error {
	if !toolNamePattern.MatchString(s) {
		return validation("ident", "ToolName", "tool name must match [A-Za-z0-9_-]{1,64}")
	}
	return nil
}

// MemoryKey validates a memory key: 1-256 chars matching [A-Za-z0-9_-./].
func MemoryKey(s string) error {
	if !memoryKeyPattern.MatchString(s) {
		return validation("ident", "MemoryKey", "memory key must match [A-Za-z0-9_-./]{1,256}")
	}
	return nil
}

// Topic validates a mesh topic or presence endpoint name.
func Topic(s string) error {
	if !topicPattern.MatchString(s) {
		return validation("ident", "Topic", "topic must match [a-zA-Z0-9._-]{1,128}")
	}
	return nil
}

// Namespace validates a memory namespace prefix.
func Namespace(s string) error {
	if !namespacePattern.MatchString(s) {
		return validation("ident", "Namespace", "namespace must match [A-Za-z0-9_-]{1,64}")
	}
	return nil
}
