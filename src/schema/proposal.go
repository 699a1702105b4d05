package schema

import (
	"encoding/json"
	"sync"

	jsonschema "github.com/swaggest/jsonschema-go"

	"github.com/elee1766/chainpilot/src/proposal"
)

var (
	proposalSchema     *jsonschema.Schema
	proposalSchemaOnce sync.Once
)

// ProposalSchema describes the chain modification proposal the assistant may
// embed in a reply. It is sent with ask-mode requests.
func ProposalSchema() *jsonschema.Schema {
	proposalSchemaOnce.Do(func() {
		proposalSchema = buildProposalSchema()
	})
	return proposalSchema
}

// ProposalSchemaJSON returns ProposalSchema indented for display.
func ProposalSchemaJSON() ([]byte, error) {
	return json.MarshalIndent(ProposalSchema(), "", "  ")
}

func buildProposalSchema() *jsonschema.Schema {
	str := CreateStringSchema
	ids := func(description string) *jsonschema.Schema {
		return CreateArraySchema(description, CreateStringSchema("Identifier"), 1)
	}
	action := func(kind proposal.ActionType, props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
		props["action"] = CreateStringSchemaEnum("Change kind", []string{string(kind)})
		return CreateObjectSchema(props, append([]string{"action"}, required...))
	}

	changes := CreateOneOfSchema(
		action(proposal.ActionUpdateChain, map[string]*jsonschema.Schema{
			"name":        str("New chain name"),
			"description": str("New chain description"),
		}),
		action(proposal.ActionCreateElement, map[string]*jsonschema.Schema{
			"elementType":     str("Element type to create"),
			"parentElementId": str("Container element to create it in"),
			"name":            str("Display name"),
			"properties":      CreateFreeformObjectSchema("Element properties"),
		}, "elementType"),
		action(proposal.ActionUpdateElement, map[string]*jsonschema.Schema{
			"elementId":  str("Element to update"),
			"name":       str("New display name"),
			"properties": CreateFreeformObjectSchema("Properties to merge into the element"),
		}, "elementId"),
		action(proposal.ActionDeleteElements, map[string]*jsonschema.Schema{
			"elementIds": ids("Elements to delete"),
		}, "elementIds"),
		action(proposal.ActionCreateConnection, map[string]*jsonschema.Schema{
			"from": str("Source element id"),
			"to":   str("Target element id"),
		}, "from", "to"),
		action(proposal.ActionDeleteConnections, map[string]*jsonschema.Schema{
			"connectionIds": ids("Connections to delete"),
		}, "connectionIds"),
	)

	title := "Chain modification proposal"
	s := CreateObjectSchema(map[string]*jsonschema.Schema{
		"type":    CreateStringSchemaEnum("Proposal marker", []string{proposal.Type}),
		"chainId": str("Chain the changes apply to"),
		"summary": str("One-line summary shown to the user"),
		"changes": CreateArraySchema("Changes applied in order", changes, 0),
	}, []string{"type", "chainId", "changes"})
	s.Title = &title
	return s
}
