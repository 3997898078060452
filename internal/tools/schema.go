package tools

import "github.com/google/jsonschema-go/jsonschema"

// Schema construction helpers. Tool parameter schemas are plain JSON Schema
// objects handed to the provider adapters verbatim.

func objectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func stringProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

func numberProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Description: description}
}

func integerProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: description}
}

func integerPropMin(description string, minimum float64) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: description, Minimum: &minimum}
}

func booleanProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: description}
}
