package chainapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

func newTestClient(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			assert.NoError(t, json.Unmarshal(b, &rec.Body))
		}
		reqs = append(reqs, rec)
		respond(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return c, &reqs
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClientRoutes(t *testing.T) {
	name := "Renamed"
	tests := []struct {
		name       string
		call       func(c *Client) error
		wantMethod string
		wantPath   string
		wantQuery  string
		wantBody   map[string]any
	}{
		{
			name:       "update chain",
			call:       func(c *Client) error { return c.UpdateChain(context.Background(), "c1", ChainPatch{Name: &name}) },
			wantMethod: http.MethodPatch,
			wantPath:   "/api/v1/catalog/chains/c1",
			wantBody:   map[string]any{"name": "Renamed"},
		},
		{
			name: "create element",
			call: func(c *Client) error {
				_, err := c.CreateElement(context.Background(), "c1", CreateElementRequest{Type: "script", ParentElementID: "p"})
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/catalog/chains/c1/elements",
			wantBody:   map[string]any{"type": "script", "parentElementId": "p"},
		},
		{
			name: "elements by type",
			call: func(c *Client) error {
				_, err := c.GetElementsByType(context.Background(), "c1", "http trigger")
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/catalog/chains/c1/elements",
			wantQuery:  "type=http+trigger",
		},
		{
			name: "update element",
			call: func(c *Client) error {
				_, err := c.UpdateElement(context.Background(), "c1", "e1", ElementPatch{Properties: map[string]any{"a": 1.0}})
				return err
			},
			wantMethod: http.MethodPatch,
			wantPath:   "/api/v1/catalog/chains/c1/elements/e1",
			wantBody:   map[string]any{"properties": map[string]any{"a": 1.0}},
		},
		{
			name:       "delete elements",
			call:       func(c *Client) error { return c.DeleteElements(context.Background(), "c1", []string{"e1", "e2"}) },
			wantMethod: http.MethodDelete,
			wantPath:   "/api/v1/catalog/chains/c1/elements",
			wantBody:   map[string]any{"elementsIds": []any{"e1", "e2"}},
		},
		{
			name: "create connection",
			call: func(c *Client) error {
				_, err := c.CreateConnection(context.Background(), "c1", "e1", "e2")
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/catalog/chains/c1/dependencies",
			wantBody:   map[string]any{"from": "e1", "to": "e2"},
		},
		{
			name:       "delete connections",
			call:       func(c *Client) error { return c.DeleteConnections(context.Background(), "c1", []string{"d1"}) },
			wantMethod: http.MethodDelete,
			wantPath:   "/api/v1/catalog/chains/c1/dependencies",
			wantBody:   map[string]any{"dependenciesIds": []any{"d1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			require.NoError(t, tt.call(c))
			require.Len(t, *reqs, 1)
			got := (*reqs)[0]
			assert.Equal(t, tt.wantMethod, got.Method)
			assert.Equal(t, tt.wantPath, got.Path)
			assert.Equal(t, tt.wantQuery, got.Query)
			assert.Equal(t, tt.wantBody, got.Body)
		})
	}
}

func TestClientDecodesResponses(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/catalog/chains/c1":
			io.WriteString(w, `{"id":"c1","name":"Orders","elements":[{"id":"e1","type":"script"}]}`)
		case "/api/v1/catalog/chains/c1/dependencies":
			io.WriteString(w, `{"createdDependencies":[{"id":"d9","from":"e1","to":"e2"}]}`)
		}
	})

	chain, err := c.GetChain(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Orders", chain.Name)
	require.Len(t, chain.Elements, 1)

	conn, err := c.CreateConnection(context.Background(), "c1", "e1", "e2")
	require.NoError(t, err)
	assert.Equal(t, "d9", conn.ID)
}

func TestClientErrors(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, "element is locked")
	})
	err := c.DeleteElements(context.Background(), "c1", []string{"e1"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "element is locked")
}
