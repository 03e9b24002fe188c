package config

import (
	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/relaykit/kernel/kernelerr"
)

// FileToolConfig configures the standard filesystem tools.
type FileToolConfig struct {
	WorkingDirectory string `mapstructure:"working_directory"`
	MaxFileSize      int64  `mapstructure:"max_file_size"`
}

// HTTPToolConfig configures the standard HTTP tools.
type HTTPToolConfig struct {
	TimeoutSeconds    int64 `mapstructure:"timeout_seconds"`
	MaxResponseBytes  int64 `mapstructure:"max_response_bytes"`
}

// DecodeToolConfig decodes a generic map (as loaded from a larger
// configuration document) into a typed tool config struct, grounded on
// the teacher's own ToolConfig decode path (mapstructure.Decode keyed off
// each tool's own struct tags rather than a hand-rolled field-by-field
// parser).
func DecodeToolConfig(raw map[string]any, out any) error {
	decoderCfg := &mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(decoderCfg)
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindValidation, kernelerr.CodeOutOfRange, "config", "DecodeToolConfig", "failed to build decoder", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return kernelerr.Wrap(kernelerr.KindValidation, kernelerr.CodeOutOfRange, "config", "DecodeToolConfig", "tool config decode failed", err)
	}
	return nil
}

// ToolConfigSchema generates a JSON schema document for a tool config
// struct, for publishing alongside the policy document so operators can
// validate their configuration before startup.
func ToolConfigSchema(v any) (*jsonschema.Schema, error) {
	reflector := &jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(v)
	return schema, nil
}
