// Package security implements the spec's §4.5 security manager: policy
// loading, input/path/domain validation, secret and suspicious-pattern
// scanning, the resource tracker, and structured audit events. It is
// grounded on the teacher's own ad hoc security checks — command.go's
// allowlist validation and file_writer.go's path-escape check — generalized
// here into a single policy-driven pipeline instead of one-off per-tool
// logic.
package security

import (
	"bytes"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/relaykit/kernel/kernelerr"
)

// FSPolicy controls filesystem tool access.
type FSPolicy struct {
	AllowPaths    []string `toml:"allow_paths"`
	DenyPatterns  []string `toml:"deny_patterns"`
	MaxFileSizeMB int64    `toml:"max_file_size_mb"`
	AllowSymlinks bool     `toml:"allow_symlinks"`
}

// HTTPPolicy controls the HTTP standard tools.
type HTTPPolicy struct {
	AllowDomains      []string `toml:"allow_domains"`
	DenyDomains       []string `toml:"deny_domains"`
	AllowMethods      []string `toml:"allow_methods"`
	MaxResponseSizeMB int64    `toml:"max_response_size_mb"`
	TimeoutSeconds    int64    `toml:"timeout_seconds"`
	UserAgent         string   `toml:"user_agent"`
}

// NetworkPolicy controls raw network access (non-HTTP tools).
type NetworkPolicy struct {
	AllowPorts []int `toml:"allow_ports"`
	DenyPorts  []int `toml:"deny_ports"`
}

// ResourcePolicy bounds per-operation resource consumption.
type ResourcePolicy struct {
	MaxMemoryMB         int64 `toml:"max_memory_mb"`
	MaxCPUPercent       int64 `toml:"max_cpu_percent"`
	MaxConcurrentOps    int64 `toml:"max_concurrent_ops"`
	MaxExecutionSeconds int64 `toml:"max_execution_seconds"`
	MaxInputBytes       int64 `toml:"max_input_bytes"`
}

// AuditPolicy controls audit-event emission.
type AuditPolicy struct {
	Enabled   bool   `toml:"enabled"`
	SinkDepth int    `toml:"sink_depth"`
	SignKeyID string `toml:"sign_key_id"`
}

// SecretsPolicy controls secret-pattern scanning behavior.
type SecretsPolicy struct {
	DenyOnDetect bool `toml:"deny_on_detect"`
	RedactInLogs bool `toml:"redact_in_logs"`
}

// AlertingPolicy is reserved for alert routing configuration; no alerting
// transport is implemented in the core (out of scope), but the section is
// still parsed and validated per spec §6.
type AlertingPolicy struct {
	Enabled bool `toml:"enabled"`
}

// EmergencyPolicy carries the emergency-lockdown flag.
type EmergencyPolicy struct {
	Lockdown bool `toml:"lockdown"`
}

// Policy is the fully parsed, validated security policy document.
type Policy struct {
	FS        FSPolicy        `toml:"fs"`
	HTTP      HTTPPolicy      `toml:"http"`
	Network   NetworkPolicy   `toml:"network"`
	Resources ResourcePolicy  `toml:"resources"`
	Audit     AuditPolicy     `toml:"audit"`
	Secrets   SecretsPolicy   `toml:"secrets"`
	Alerting  AlertingPolicy  `toml:"alerting"`
	Emergency EmergencyPolicy `toml:"emergency"`
}

// DefaultPolicy returns a deny-by-default policy: nothing is allowed unless
// explicitly added (spec §6: "Default policy is deny-by-default").
func DefaultPolicy() Policy {
	return Policy{
		FS: FSPolicy{
			AllowPaths:    []string{},
			DenyPatterns:  []string{"..", "/etc", "/proc", "/sys"},
			MaxFileSizeMB: 1,
			AllowSymlinks: false,
		},
		HTTP: HTTPPolicy{
			AllowDomains:      []string{},
			DenyDomains:       []string{"169.254.169.254", "metadata.google.internal", "localhost", "127.0.0.1"},
			AllowMethods:      []string{"GET", "POST"},
			MaxResponseSizeMB: 10,
			TimeoutSeconds:    30,
			UserAgent:         "relaykit-kernel/1.0",
		},
		Network: NetworkPolicy{AllowPorts: []int{}, DenyPorts: []int{}},
		Resources: ResourcePolicy{
			MaxMemoryMB:         512,
			MaxCPUPercent:       80,
			MaxConcurrentOps:    16,
			MaxExecutionSeconds: 30,
			MaxInputBytes:       16 * 1024,
		},
		Audit:     AuditPolicy{Enabled: true, SinkDepth: 1024},
		Secrets:   SecretsPolicy{DenyOnDetect: true, RedactInLogs: true},
		Alerting:  AlertingPolicy{Enabled: false},
		Emergency: EmergencyPolicy{Lockdown: false},
	}
}

// LoadPolicy reads and validates a TOML policy document. Unknown keys
// produce a load-time error, per spec §6.
func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, kernelerr.Wrap(kernelerr.KindValidation, kernelerr.CodeOutOfRange, "security.policy", "LoadPolicy", "failed to read policy file", err)
	}

	policy := DefaultPolicy()
	dec := toml.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&policy); err != nil {
		return Policy{}, kernelerr.Wrap(kernelerr.KindValidation, kernelerr.CodeOutOfRange, "security.policy", "LoadPolicy", "policy document failed validation", err)
	}

	if err := policy.validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func (p Policy) validate() error {
	if p.Resources.MaxConcurrentOps <= 0 {
		return kernelerr.New(kernelerr.KindValidation, kernelerr.CodeOutOfRange, "security.policy", "validate", "resources.max_concurrent_ops must be positive", nil)
	}
	if p.Resources.MaxExecutionSeconds <= 0 {
		return kernelerr.New(kernelerr.KindValidation, kernelerr.CodeOutOfRange, "security.policy", "validate", "resources.max_execution_seconds must be positive", nil)
	}
	if p.Resources.MaxInputBytes <= 0 {
		return kernelerr.New(kernelerr.KindValidation, kernelerr.CodeOutOfRange, "security.policy", "validate", "resources.max_input_bytes must be positive", nil)
	}
	return nil
}
