package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema produces a JSON Schema for the civreg.toml config format. It
// reflects the Config struct using TOML field names. Consumed by
// "civreg config schema" and by editors that validate config files.
func Schema() (*jsonschema.Schema, error) {
	r := &jsonschema.Reflector{
		FieldNameTag: "toml",
	}
	s := r.Reflect(&Config{})
	if s == nil {
		return nil, fmt.Errorf("reflecting config schema")
	}
	s.Title = "civreg Configuration"
	s.Description = "Schema for civreg.toml — the root configuration file for a civreg installation."
	return s, nil
}

// SchemaJSON returns the config schema as indented JSON bytes.
func SchemaJSON() ([]byte, error) {
	s, err := Schema()
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	return data, nil
}
