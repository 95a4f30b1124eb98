package conversation

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// replySchemaJSON describes the object the reasoning provider is asked to return.
const replySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["speech_output"],
  "additionalProperties": false,
  "properties": {
    "speech_output": {"type": "string"},
    "action_triggers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "resource"],
        "additionalProperties": false,
        "properties": {
          "type": {"const": "resource_request"},
          "resource": {"type": "string", "minLength": 1}
        }
      }
    },
    "ui_updates": {"type": "object"},
    "advance_patient_state": {"type": ["string", "null"]},
    "update_vitals": {
      "oneOf": [
        {"type": "null"},
        {
          "type": "object",
          "required": ["next_state_id"],
          "properties": {
            "next_state_id": {"type": "string"},
            "qualitative_change": {"type": "string"},
            "reason": {"type": "string"}
          }
        }
      ]
    },
    "patient_voice": {"type": ["string", "null"]},
    "hint": {"type": ["string", "null"]}
  }
}`

var compileReplySchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(replySchemaJSON), &doc); err != nil {
		return nil, fmt.Errorf("conversation: unmarshal reply schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("reply.json", doc); err != nil {
		return nil, fmt.Errorf("conversation: add reply schema: %w", err)
	}
	schema, err := c.Compile("reply.json")
	if err != nil {
		return nil, fmt.Errorf("conversation: compile reply schema: %w", err)
	}
	return schema, nil
})

// ValidateReply checks a provider object against the reply schema. Violations
// are diagnostic; the normalizer still decides what survives.
func ValidateReply(obj map[string]any) error {
	schema, err := compileReplySchema()
	if err != nil {
		return err
	}
	return schema.Validate(any(obj))
}
