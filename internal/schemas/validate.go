// Package schemas enforces a strict shape on model output at the
// classification and generation boundaries. Anything the schemas reject is
// treated uniformly as malformed output by the callers.
package schemas

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed *.json
var schemaFiles embed.FS

// Schema file names
const (
	ClassifiedGroups = "classified_groups.json"
	ArticleBundle    = "article_bundle.json"
)

// ValidationError reports schema violations with field paths
type ValidationError struct {
	Schema string
	Errors []FieldError
}

// FieldError is a single violation at a specific field
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return fmt.Sprintf("schema %s validation failed: %s", e.Schema, strings.Join(msgs, "; "))
}

// Validate checks a JSON document against the named embedded schema.
// A non-nil error is either a ValidationError or a document/schema load failure.
func Validate(schemaName string, document []byte) error {
	schemaData, err := schemaFiles.ReadFile(schemaName)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", schemaName, err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaData)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate against %s: %w", schemaName, err)
	}

	if !result.Valid() {
		ve := &ValidationError{Schema: schemaName}
		for _, desc := range result.Errors() {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   desc.Field(),
				Message: desc.Description(),
			})
		}
		return ve
	}

	return nil
}
