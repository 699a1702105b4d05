package schema

import (
	jsonschema "github.com/swaggest/jsonschema-go"
)

// Helper functions to create JSON schemas

// CreateStringSchema creates a JSON schema for a string field
func CreateStringSchema(description string) *jsonschema.Schema {
	strType := jsonschema.SimpleType("string")
	return &jsonschema.Schema{
		Type:        &jsonschema.Type{SimpleTypes: &strType},
		Description: &description,
	}
}

// CreateObjectSchema creates a JSON schema for an object with properties and required fields
func CreateObjectSchema(properties map[string]*jsonschema.Schema, required []string) *jsonschema.Schema {
	schemaProps := make(map[string]jsonschema.SchemaOrBool)
	for name, prop := range properties {
		schemaProps[name] = jsonschema.SchemaOrBool{TypeObject: prop}
	}

	objType := jsonschema.SimpleType("object")
	return &jsonschema.Schema{
		Type:       &jsonschema.Type{SimpleTypes: &objType},
		Properties: schemaProps,
		Required:   required,
	}
}

// CreateFreeformObjectSchema creates a JSON schema for an object with arbitrary keys
func CreateFreeformObjectSchema(description string) *jsonschema.Schema {
	objType := jsonschema.SimpleType("object")
	return &jsonschema.Schema{
		Type:        &jsonschema.Type{SimpleTypes: &objType},
		Description: &description,
	}
}

// CreateStringSchemaEnum creates a JSON schema for a string field with enum values
func CreateStringSchemaEnum(description string, enumValues []string) *jsonschema.Schema {
	strType := jsonschema.SimpleType("string")
	enum := make([]interface{}, len(enumValues))
	for i, v := range enumValues {
		enum[i] = v
	}
	return &jsonschema.Schema{
		Type:        &jsonschema.Type{SimpleTypes: &strType},
		Description: &description,
		Enum:        enum,
	}
}

// CreateArraySchema creates a JSON schema for an array of items with a minimum length
func CreateArraySchema(description string, items *jsonschema.Schema, minItems int64) *jsonschema.Schema {
	arrType := jsonschema.SimpleType("array")
	return &jsonschema.Schema{
		Type:        &jsonschema.Type{SimpleTypes: &arrType},
		Description: &description,
		Items:       &jsonschema.Items{SchemaOrBool: &jsonschema.SchemaOrBool{TypeObject: items}},
		MinItems:    minItems,
	}
}

// CreateOneOfSchema creates a JSON schema matching exactly one of the variants
func CreateOneOfSchema(variants ...*jsonschema.Schema) *jsonschema.Schema {
	oneOf := make([]jsonschema.SchemaOrBool, len(variants))
	for i, v := range variants {
		oneOf[i] = jsonschema.SchemaOrBool{TypeObject: v}
	}
	return &jsonschema.Schema{OneOf: oneOf}
}
