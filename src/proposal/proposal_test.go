package proposal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryParse(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantOK      bool
		wantChain   string
		wantChanges []ActionType
	}{
		{
			name:      "empty changes embedded in prose",
			text:      `Here is the plan: {"type":"chain-modification-proposal","chainId":"c1","changes":[]} Thanks.`,
			wantOK:    true,
			wantChain: "c1",
		},
		{
			name:   "no marker",
			text:   `Here is some text with {"chainId":"c1"} but no marker.`,
			wantOK: false,
		},
		{
			name: "fenced with spaces around colon",
			text: "Sure.\n```json\n{\n  \"type\" : \"chain-modification-proposal\",\n  \"chainId\": \"c2\",\n" +
				"  \"summary\": \"Add logging\",\n  \"changes\": [\n" +
				"    {\"action\": \"createElement\", \"elementType\": \"script\", \"properties\": {\"script\": \"log()\"}},\n" +
				"    {\"action\": \"createConnection\", \"from\": \"a\", \"to\": \"b\"}\n  ]\n}\n```\nLet me know {if} that works}",
			wantOK:      true,
			wantChain:   "c2",
			wantChanges: []ActionType{ActionCreateElement, ActionCreateConnection},
		},
		{
			name:   "marker before nested object",
			text:   `{"chainId":"c3","changes":[{"action":"deleteElements","elementIds":["e1"]}],"type":"chain-modification-proposal"} done`,
			wantOK: true, wantChain: "c3",
			wantChanges: []ActionType{ActionDeleteElements},
		},
		{
			name:   "missing changes key",
			text:   `{"type":"chain-modification-proposal","chainId":"c1"}`,
			wantOK: false,
		},
		{
			name:   "unknown action",
			text:   `{"type":"chain-modification-proposal","chainId":"c1","changes":[{"action":"explode"}]}`,
			wantOK: false,
		},
		{
			name:   "action failing validation",
			text:   `{"type":"chain-modification-proposal","chainId":"c1","changes":[{"action":"deleteConnections","connectionIds":[]}]}`,
			wantOK: false,
		},
		{
			name:   "missing chain id",
			text:   `{"type":"chain-modification-proposal","changes":[]}`,
			wantOK: false,
		},
		{
			name:   "truncated json",
			text:   `{"type":"chain-modification-proposal","chainId":"c1","changes":[`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := TryParse(tt.text)
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Nil(t, p)
				return
			}
			assert.Equal(t, tt.wantChain, p.ChainID)
			require.Len(t, p.Changes, len(tt.wantChanges))
			for i, kind := range tt.wantChanges {
				assert.Equal(t, kind, p.Changes[i].Kind())
			}
		})
	}
}

func TestLocate(t *testing.T) {
	text := `prefix {"a":{"b":1},"type":"chain-modification-proposal"}`
	assert.Equal(t, 7, Locate(text))
	assert.Equal(t, -1, Locate("nothing here"))
	assert.Equal(t, -1, Locate(`"type":"chain-modification-proposal"}`))
}

func TestDecodePrefersLongestCandidate(t *testing.T) {
	// A stray brace in the trailing prose must not hide the object itself.
	text := `{"type":"chain-modification-proposal","chainId":"c1","changes":[{"action":"updateElement","elementId":"e1","properties":{"x":{"y":1}}}]} trailing }`
	p, err := Decode(text, Locate(text))
	require.NoError(t, err)
	require.Len(t, p.Changes, 1)
	upd := p.Changes[0].(*UpdateElement)
	assert.Equal(t, map[string]any{"x": map[string]any{"y": 1.0}}, upd.Properties)
}

func TestProposalMarshalRoundTrip(t *testing.T) {
	name := "Orders"
	p := &Proposal{
		Type:    Type,
		ChainID: "c1",
		Changes: []Action{
			&UpdateChain{Name: &name},
			&CreateElement{ElementType: "script", Name: "Log"},
		},
	}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"action":"updateChain"`)
	assert.Contains(t, string(b), `"action":"createElement"`)

	var back Proposal
	require.NoError(t, json.Unmarshal(b, &back))
	require.NoError(t, Validate(&back))
	assert.Equal(t, p.Changes, back.Changes)
}

func TestDescribe(t *testing.T) {
	name := "Renamed"
	p := &Proposal{Changes: []Action{
		&UpdateChain{Name: &name},
		&CreateElement{ElementType: "script", Name: "Log", Properties: map[string]any{"b": 1, "a": 2}},
		&UpdateElement{ElementID: "e1", Name: &name},
		&DeleteElements{ElementIDs: []string{"e1", "e2"}},
		&CreateConnection{From: "a", To: "b"},
		&DeleteConnections{ConnectionIDs: []string{"d1"}},
	}}
	assert.Equal(t, []string{
		`Chain: rename to "Renamed"`,
		`Create script element "Log" [a, b]`,
		`Update element e1 (rename to "Renamed")`,
		"Delete 2 element(s): e1, e2",
		"Connect a → b",
		"Delete 1 connection(s): d1",
	}, Describe(p))
	assert.Nil(t, Describe(nil))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("nothing to see here")
	assert.ErrorIs(t, err, ErrNoProposal)

	_, err = Parse(`{"type":"chain-modification-proposal","chainId":"c1","changes":[{"action":"deleteElements","elementIds":[]}]}`)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoProposal)
	assert.Contains(t, err.Error(), "invalid proposal")
}
