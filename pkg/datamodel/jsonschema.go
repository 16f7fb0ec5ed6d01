package datamodel

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBaseURL = "https://github.com/caikit/caikit-huggingface-demo/blob/main/config/schema/"

var inputSchemaDocs = map[InputKind]string{
	TextInput: `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "text_in": {"type": "string", "title": "Input Text"}
  },
  "required": ["text_in"],
  "additionalProperties": false
}`,
	SentencesInput: `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "sentences": {
      "type": "array",
      "title": "Sentences (the first one is the source sentence)",
      "items": {"type": "string"},
      "minItems": 1
    }
  },
  "required": ["sentences"],
  "additionalProperties": false
}`,
	ImageInput: `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "encoded_bytes_or_url": {"type": "string", "title": "Input Image", "minLength": 1}
  },
  "required": ["encoded_bytes_or_url"],
  "additionalProperties": false
}`,
}

var schemaOnce sync.Once
var schemaErr error
var inputSchemas map[InputKind]*jsonschema.Schema

func schemaURL(kind InputKind) string {
	return fmt.Sprintf("%sinput_%d.json", schemaBaseURL, kind)
}

// InitJSONSchema compiles the tab input schemas. It is safe to call more
// than once.
func InitJSONSchema() error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for kind, doc := range inputSchemaDocs {
			if err := compiler.AddResource(schemaURL(kind), strings.NewReader(doc)); err != nil {
				schemaErr = err
				return
			}
		}

		compiled := make(map[InputKind]*jsonschema.Schema, len(inputSchemaDocs))
		for kind := range inputSchemaDocs {
			s, err := compiler.Compile(schemaURL(kind))
			if err != nil {
				schemaErr = err
				return
			}
			compiled[kind] = s
		}
		inputSchemas = compiled
	})
	return schemaErr
}

// InputSchema returns the JSON schema document of a request shape
func InputSchema(kind InputKind) json.RawMessage {
	return json.RawMessage(inputSchemaDocs[kind])
}

// ValidateInputs validates decoded JSON inputs against the schema of kind
func ValidateInputs(kind InputKind, inputs any) error {
	if err := InitJSONSchema(); err != nil {
		return err
	}

	s, ok := inputSchemas[kind]
	if !ok {
		return errors.Errorf("no input schema for kind %d", kind)
	}

	if err := s.Validate(inputs); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			b, _ := json.Marshal(verr.BasicOutput())
			return errors.Errorf("%s", string(b))
		}
		return err
	}

	return nil
}
