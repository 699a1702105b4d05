// Package schema provides helper functions for creating JSON Schema definitions.
//
// This package contains utilities for creating JSON Schema objects used in
// request context sent to the assistant backend. The proposal schema tells
// the model which shape of embedded chain modification proposal the client
// can parse and apply.
//
// Example usage:
//
//	import "github.com/elee1766/chainpilot/src/schema"
//
//	// Create an object schema with properties
//	linkSchema := schema.CreateObjectSchema(map[string]*jsonschema.Schema{
//		"from": schema.CreateStringSchema("Source element id"),
//		"to":   schema.CreateStringSchema("Target element id"),
//	}, []string{"from", "to"})
package schema
