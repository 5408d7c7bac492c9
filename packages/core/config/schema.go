package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var workspaceSchema []byte

// ErrSchema is wrapped by every schema violation
var ErrSchema = errors.New("workspace does not match schema")

// ValidateSchema checks a raw workspace document against the embedded JSON
// schema. An empty document is valid.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing workspace: %w", err)
	}
	if doc == nil {
		return nil
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("converting workspace to JSON: %w", err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(workspaceSchema)
	documentLoader := gojsonschema.NewBytesLoader(docJSON)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(problems, "; "))
}
