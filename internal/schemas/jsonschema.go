package schemas

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError represents a JSON Schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaContent)
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Path:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}

	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}

// JSONSchema renders the contract as a draft-07 JSON Schema document. Validate
// checks stage outputs against it and executors receive it as a format hint.
func (c Contract) JSONSchema() map[string]any {
	schema := objectSchema(c.Fields)
	schema["$schema"] = "http://json-schema.org/draft-07/schema#"
	schema["title"] = c.Stage
	return schema
}

// JSONSchemaString renders the contract schema as indented JSON
func (c Contract) JSONSchemaString() string {
	raw, err := json.MarshalIndent(c.JSONSchema(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func fieldSchema(f Field) map[string]any {
	var s map[string]any
	switch f.Type {
	case TypeEnum:
		s = map[string]any{"type": "string", "enum": f.Enum}
	case TypeTimestamp:
		s = map[string]any{"type": "string", "format": "date-time"}
	case TypeObject:
		s = objectSchema(f.Fields)
	case TypeAny:
		s = map[string]any{"type": "object"}
	case TypeArray:
		s = map[string]any{"type": "array"}
		if f.Items != nil {
			s["items"] = fieldSchema(*f.Items)
		}
		if f.MinItems > 0 {
			s["minItems"] = f.MinItems
		}
	default:
		s = map[string]any{"type": string(f.Type)}
	}
	if f.Range != nil {
		if f.Range.Min != nil {
			s["minimum"] = *f.Range.Min
		}
		if f.Range.Max != nil {
			s["maximum"] = *f.Range.Max
		}
	}
	return s
}
