package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation is returned when an action document does not match the schema.
var ErrSchemaViolation = errors.New("action does not match schema")

// uuidPattern matches the canonical textual form of a UUID.
const uuidPattern = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`

// Schema is the JSON schema of a submitted action document.
var Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "action",
  "type": "object",
  "required": ["action_id", "type", "media_item_id"],
  "additionalProperties": false,
  "properties": {
    "action_id": {"type": "string", "pattern": "` + uuidPattern + `"},
    "type": {"type": "string", "enum": ["analyze", "delete"]},
    "media_item_id": {"type": "string", "pattern": "` + uuidPattern + `"},
    "aspects": {
      "type": "object",
      "propertyNames": {"pattern": "` + uuidPattern + `"},
      "additionalProperties": {
        "type": "array",
        "items": {"type": "object"}
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(Schema)

// ValidateJSON checks a raw action document against Schema.
func ValidateJSON(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate action: %w", err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
}

// Decode validates and decodes a single JSON action document.
func Decode(data []byte) (*Action, error) {
	err := ValidateJSON(data)
	if err != nil {
		return nil, err
	}

	var act Action

	unmarshalErr := json.Unmarshal(data, &act)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("decode action: %w", unmarshalErr)
	}

	validateErr := act.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &act, nil
}
