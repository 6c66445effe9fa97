// Package schemas provides JSON Schema validation for the documents the copilot
// reads from outside: the classifier model descriptor and the profile cache slot.
package schemas

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed model_descriptor.schema.json
var modelDescriptorSchema string

//go:embed profile_cache.schema.json
var profileCacheSchema string

// Schema names accepted by Validate.
const (
	ModelDescriptor = "model_descriptor"
	ProfileCache    = "profile_cache"
)

var builtin = map[string]string{
	ModelDescriptor: modelDescriptorSchema,
	ProfileCache:    profileCacheSchema,
}

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Schema string
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
	sb.WriteString("validation failed")
	if ve.Schema != "" {
		sb.WriteString(" against " + ve.Schema)
	}
	sb.WriteString(":\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate checks a JSON document against one of the built-in schemas.
func Validate(name string, document []byte) error {
	schema, ok := builtin[name]
	if !ok {
		return &SchemaLoadError{Path: name, Message: "unknown schema"}
	}
	err := ValidateJSONString(schema, string(document))
	if ve, ok := err.(*ValidationError); ok {
		ve.Schema = name
	}
	return err
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
