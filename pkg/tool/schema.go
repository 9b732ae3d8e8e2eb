package tool

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// FieldType is the declared type of a config option
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
)

// jsonType maps a field type onto its JSON Schema type
func (t FieldType) jsonType() (string, bool) {
	switch t {
	case FieldString:
		return "string", true
	case FieldInt:
		return "integer", true
	case FieldFloat:
		return "number", true
	case FieldBool:
		return "boolean", true
	default:
		return "", false
	}
}

// ConfigField declares a single config option
type ConfigField struct {
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
	Secret      bool      `json:"secret,omitempty"`
}

// Schema maps option name to its declaration
type Schema map[string]ConfigField

// Resolve applies declared defaults to raw and validates the result.
// Absent optional fields without a default stay absent.
func (s Schema) Resolve(toolName string, raw map[string]any) (Config, error) {
	resolved := make(Config, len(s))
	for k, v := range raw {
		resolved[k] = v
	}

	for name, field := range s {
		if _, ok := resolved[name]; !ok && field.Default != nil {
			resolved[name] = field.Default
		}
	}

	schema, err := s.jsonSchema(toolName)
	if err != nil {
		return nil, err
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]any(resolved)))
	if err != nil {
		return nil, &ConfigurationError{Tool: toolName, Reason: err.Error()}
	}

	if !result.Valid() {
		return nil, configurationErrorFrom(toolName, result.Errors())
	}

	return resolved, nil
}

// jsonSchema builds the JSON Schema for the declared options
func (s Schema) jsonSchema(toolName string) (*gojsonschema.Schema, error) {
	properties := make(map[string]any, len(s))
	required := []string{}

	for name, field := range s {
		jsonType, ok := field.Type.jsonType()
		if !ok {
			return nil, &ConfigurationError{Tool: toolName, Field: name, Reason: fmt.Sprintf("unsupported field type %q", field.Type)}
		}

		prop := map[string]any{"type": jsonType}
		if field.Description != "" {
			prop["description"] = field.Description
		}
		properties[name] = prop

		if field.Required && field.Default == nil {
			required = append(required, name)
		}
	}

	schemaMap := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		sort.Strings(required)
		schemaMap["required"] = required
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return nil, &ConfigurationError{Tool: toolName, Reason: fmt.Sprintf("invalid schema: %v", err)}
	}
	return schema, nil
}

func configurationErrorFrom(toolName string, errs []gojsonschema.ResultError) *ConfigurationError {
	fields := make([]string, 0, len(errs))
	reasons := make([]string, 0, len(errs))

	for _, e := range errs {
		field := e.Field()
		switch e.Type() {
		case "required", "additional_property_not_allowed":
			if p, ok := e.Details()["property"].(string); ok {
				field = p
			}
		}
		fields = append(fields, field)
		reasons = append(reasons, e.Description())
	}

	return &ConfigurationError{
		Tool:   toolName,
		Field:  fields[0],
		Reason: strings.Join(reasons, "; "),
	}
}

// Config is a resolved tool configuration
type Config map[string]any

// Clone returns a shallow copy
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Has reports whether key is set
func (c Config) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// String returns the string option, or "" when absent
func (c Config) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Bool returns the bool option, or false when absent
func (c Config) Bool(key string) bool {
	b, _ := c[key].(bool)
	return b
}

// Float returns a numeric option as float64
func (c Config) Float(key string) (float64, bool) {
	return toFloat(c[key])
}

// Int returns a numeric option as int
func (c Config) Int(key string) (int, bool) {
	f, ok := toFloat(c[key])
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Seconds reads a numeric option as a duration in seconds
func (c Config) Seconds(key string) (time.Duration, bool) {
	f, ok := toFloat(c[key])
	if !ok || f <= 0 {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
