package policy

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// policySchema is the JSON schema every policy document must satisfy
// before decoding. Catching shape errors here yields one clear message
// per violation instead of a zero-valued struct.
const policySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["action"],
        "properties": {
          "name": {"type": "string"},
          "action": {
            "type": "string",
            "enum": ["keep", "drop", "reword", "squash_into", "squash_into_previous"]
          },
          "message": {"type": "string", "minLength": 1},
          "target": {"type": "string", "minLength": 1},
          "match": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "paths": {"type": "array", "items": {"type": "string", "minLength": 1}},
              "paths_any": {"type": "array", "items": {"type": "string", "minLength": 1}},
              "message": {"type": "string", "minLength": 1},
              "languages": {"type": "array", "items": {"type": "string", "minLength": 1}}
            }
          }
        }
      }
    }
  }
}`

// validateSchema checks a YAML policy document against policySchema.
func validateSchema(raw []byte) error {
	var doc any

	err := yaml.Unmarshal(raw, &doc)
	if err != nil {
		return fmt.Errorf("decode policy: %w", err)
	}

	if doc == nil {
		// Empty documents are a valid empty policy.
		return nil
	}

	schemaLoader := gojsonschema.NewStringLoader(policySchema)
	docLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("validate policy: %w", err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrPolicySchema, strings.Join(problems, "; "))
}
