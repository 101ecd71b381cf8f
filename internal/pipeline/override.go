package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/job-evaluator/internal/schemas"
)

// overrideSchema constrains pipeline override files
const overrideSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string", "minLength": 1, "pattern": "^[A-Za-z0-9._-]+$"},
    "tiers": {
      "type": "object",
      "additionalProperties": {"type": "string", "enum": ["lite", "standard", "advanced"]}
    }
  }
}`

// Override publishes a new pipeline version with different model routing
type Override struct {
	Version string            `json:"version"`
	Tiers   map[string]string `json:"tiers,omitempty"`
}

// ParseOverride validates raw against the override schema and decodes it
func ParseOverride(raw []byte) (*Override, error) {
	if err := schemas.ValidateJSONString(overrideSchema, string(raw)); err != nil {
		return nil, fmt.Errorf("invalid pipeline override: %w", err)
	}
	var o Override
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline override: %w", err)
	}
	return &o, nil
}

// LoadOverride reads and validates an override file
func LoadOverride(path string) (*Override, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline override %s: %w", path, err)
	}
	return ParseOverride(raw)
}

// Apply derives a new definition from base. The base is left unchanged.
func (o Override) Apply(base *Definition) (*Definition, error) {
	def := &Definition{
		Version: o.Version,
		Stages:  append([]StageDef(nil), base.Stages...),
	}
	for stage, tier := range o.Tiers {
		i := def.Index(stage)
		if i < 0 {
			return nil, fmt.Errorf("pipeline override %s: unknown stage %s", o.Version, stage)
		}
		def.Stages[i].Tier = tier
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// RegistryFor builds a registry whose current definition is base with the
// override applied. The base stays registered so runs started under it can
// still be continued.
func RegistryFor(base *Definition, o *Override) (*Registry, error) {
	if o == nil {
		return NewRegistry(base)
	}
	def, err := o.Apply(base)
	if err != nil {
		return nil, err
	}
	if def.Version == base.Version {
		return NewRegistry(def)
	}
	return NewRegistry(def, base)
}
