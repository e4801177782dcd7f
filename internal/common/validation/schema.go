// Package validation compiles and applies JSON schemas for inbound payloads.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Webhook payload schemas. Gateways differ in what they post; these pin the
// minimal shape the engine relies on before any field is read.
const (
	InboundReplySchema = `{
		"type": "object",
		"properties": {
			"address":       {"type": "string", "minLength": 1},
			"channel":       {"type": "string", "enum": ["sms", "email", "chat"]},
			"rawText":       {"type": "string"},
			"providerToken": {"type": "string"}
		},
		"required": ["address", "channel", "rawText"],
		"additionalProperties": true
	}`

	DeliveryCallbackSchema = `{
		"type": "object",
		"properties": {
			"providerMessageId": {"type": "string", "minLength": 1},
			"status":            {"type": "string", "enum": ["delivered", "failed"]},
			"errorDetail":       {"type": "string"}
		},
		"required": ["providerMessageId", "status"],
		"additionalProperties": true
	}`
)

// Schema is a compiled JSON schema ready for repeated validation.
type Schema struct {
	schema *gojsonschema.Schema
}

// Compile parses a schema document once at startup.
func Compile(document string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustCompile is Compile for package-level schema constants.
func MustCompile(document string) *Schema {
	s, err := Compile(document)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a raw JSON payload against the schema and returns a single
// error describing every violation.
func (s *Schema) Validate(payload []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	if result.Valid() {
		return nil
	}

	descriptions := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		descriptions = append(descriptions, resultErr.String())
	}
	return fmt.Errorf("payload invalid: %s", strings.Join(descriptions, "; "))
}
