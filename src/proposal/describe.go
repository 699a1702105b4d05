package proposal

import (
	"fmt"
	"sort"
	"strings"
)

// Describe renders one preview line per change.
func Describe(p *Proposal) []string {
	if p == nil {
		return nil
	}
	lines := make([]string, 0, len(p.Changes))
	for _, action := range p.Changes {
		lines = append(lines, DescribeAction(action))
	}
	return lines
}

// DescribeAction renders a single change.
func DescribeAction(action Action) string {
	switch a := action.(type) {
	case *UpdateChain:
		var parts []string
		if a.Name != nil {
			parts = append(parts, fmt.Sprintf("rename to %q", *a.Name))
		}
		if a.Description != nil {
			parts = append(parts, "update description")
		}
		return "Chain: " + strings.Join(parts, ", ")
	case *CreateElement:
		s := "Create " + a.ElementType + " element"
		if a.Name != "" {
			s += fmt.Sprintf(" %q", a.Name)
		}
		if a.ParentElementID != "" {
			s += " in " + a.ParentElementID
		}
		return s + propertySuffix(a.Properties)
	case *UpdateElement:
		s := "Update element " + a.ElementID
		if a.Name != nil {
			s += fmt.Sprintf(" (rename to %q)", *a.Name)
		}
		return s + propertySuffix(a.Properties)
	case *DeleteElements:
		return fmt.Sprintf("Delete %d element(s): %s", len(a.ElementIDs), strings.Join(a.ElementIDs, ", "))
	case *CreateConnection:
		return fmt.Sprintf("Connect %s → %s", a.From, a.To)
	case *DeleteConnections:
		return fmt.Sprintf("Delete %d connection(s): %s", len(a.ConnectionIDs), strings.Join(a.ConnectionIDs, ", "))
	default:
		return fmt.Sprintf("Unknown change %T", action)
	}
}

func propertySuffix(props map[string]any) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return " [" + strings.Join(keys, ", ") + "]"
}
