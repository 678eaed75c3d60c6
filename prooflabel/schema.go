package prooflabel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const arbitrationSchemaURL = "https://veille.schemas.local/arbitrage_decisions.schema.json"

const arbitrationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "approved": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["p1", "p2", "canonical", "date"],
        "properties": {
          "p1": {"type": "string", "minLength": 1},
          "p2": {"type": "string", "minLength": 1},
          "canonical": {"type": "string", "minLength": 1},
          "date": {"type": "string", "minLength": 1}
        }
      }
    },
    "rejected": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["p1", "p2", "date"],
        "properties": {
          "p1": {"type": "string", "minLength": 1},
          "p2": {"type": "string", "minLength": 1},
          "date": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func arbitrationDocumentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(arbitrationSchemaURL, strings.NewReader(arbitrationSchema)); err != nil {
			schemaErr = fmt.Errorf("arbitration schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(arbitrationSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("arbitration schema compile failed: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// validateArbitrationDocument checks a decoded JSON document against the
// decision file layout.
func validateArbitrationDocument(doc any) error {
	schema, err := arbitrationDocumentSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("arbitration file does not match schema: %w", err)
	}
	return nil
}
