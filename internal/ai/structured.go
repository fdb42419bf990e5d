package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"

	"github.com/spigell/placement-engine/internal/placement"
)

// Contract is the schema-validating boundary between raw judge text and a
// typed value. Decode either fills the target completely or returns a
// SchemaError; partially populated values never escape.
type Contract struct {
	name     string
	schema   *gojsonschema.Schema
	validate *validator.Validate
}

// NewContract compiles the JSON Schema describing one output shape.
func NewContract(name, schemaJSON string) (*Contract, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return &Contract{name: name, schema: schema, validate: validator.New()}, nil
}

// MustContract is NewContract for package-level schemas.
func MustContract(name, schemaJSON string) *Contract {
	c, err := NewContract(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the contract name used in error messages.
func (c *Contract) Name() string { return c.name }

// Decode locates the first JSON object in raw, validates it against the
// schema and struct tags, and decodes it into out (a pointer to struct).
func (c *Contract) Decode(raw string, out any) error {
	op := "decode " + c.name

	object, ok := LocateObject(raw)
	if !ok {
		return placement.Errorf(placement.KindSchema, op, "no JSON object found in judge output")
	}

	result, err := c.schema.Validate(gojsonschema.NewStringLoader(object))
	if err != nil {
		return placement.Errorf(placement.KindSchema, op, "validate judge output: %w", err)
	}
	if !result.Valid() {
		return placement.Errorf(placement.KindSchema, op, "judge output violates schema: %s", describe(result.Errors()))
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(object), &data); err != nil {
		return placement.Errorf(placement.KindSchema, op, "parse judge output: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		ErrorUnset: true,
		Result:     out,
	})
	if err != nil {
		return fmt.Errorf("%s: build decoder: %w", op, err)
	}
	if err := decoder.Decode(data); err != nil {
		return placement.Errorf(placement.KindSchema, op, "decode judge output: %w", err)
	}

	if err := c.validate.Struct(out); err != nil {
		return placement.Errorf(placement.KindSchema, op, "judge output failed validation: %w", err)
	}

	return nil
}

func describe(errs []gojsonschema.ResultError) string {
	parts := make([]string, 0, len(errs))
	for _, desc := range errs {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	return strings.Join(parts, "; ")
}

// LocateObject returns the first balanced top-level JSON object literal in
// raw. Prose, code fences and stray braces around it are ignored. Objects
// nested inside a balanced but malformed candidate are never returned.
func LocateObject(raw string) (string, bool) {
	for start := strings.IndexByte(raw, '{'); start >= 0; {
		resume := start + 1
		if end := matchBrace(raw, start); end > start {
			candidate := raw[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
			resume = end + 1
		}

		next := strings.IndexByte(raw[resume:], '{')
		if next < 0 {
			break
		}
		start = resume + next
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
