// Package chainapi is a client for the chain-editing REST service.
package chainapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// ErrNotConfigured is returned when no base URL is configured.
var ErrNotConfigured = errors.New("chain service URL is not configured")

// Config holds configuration for the chain client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is the chain service client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a chain service client.
func NewClient(config Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		logger:     logger.With("component", "chain_client"),
	}, nil
}

func chainPath(chainID string, parts ...string) string {
	p := "/api/v1/catalog/chains/" + url.PathEscape(chainID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// GetChain fetches a chain with its elements and dependencies.
func (c *Client) GetChain(ctx context.Context, chainID string) (*Chain, error) {
	var chain Chain
	if err := c.do(ctx, http.MethodGet, chainPath(chainID), nil, &chain); err != nil {
		return nil, err
	}
	return &chain, nil
}

// UpdateChain patches chain metadata.
func (c *Client) UpdateChain(ctx context.Context, chainID string, patch ChainPatch) error {
	return c.do(ctx, http.MethodPatch, chainPath(chainID), patch, nil)
}

// CreateElement creates an element and reports everything the service created.
func (c *Client) CreateElement(ctx context.Context, chainID string, req CreateElementRequest) (*ElementsChange, error) {
	var change ElementsChange
	if err := c.do(ctx, http.MethodPost, chainPath(chainID, "elements"), req, &change); err != nil {
		return nil, err
	}
	return &change, nil
}

// GetElementsByType lists the elements of a given type.
func (c *Client) GetElementsByType(ctx context.Context, chainID, elementType string) ([]Element, error) {
	var elements []Element
	path := chainPath(chainID, "elements") + "?type=" + url.QueryEscape(elementType)
	if err := c.do(ctx, http.MethodGet, path, nil, &elements); err != nil {
		return nil, err
	}
	return elements, nil
}

// UpdateElement patches one element.
func (c *Client) UpdateElement(ctx context.Context, chainID, elementID string, patch ElementPatch) (*ElementsChange, error) {
	var change ElementsChange
	if err := c.do(ctx, http.MethodPatch, chainPath(chainID, "elements", url.PathEscape(elementID)), patch, &change); err != nil {
		return nil, err
	}
	return &change, nil
}

// DeleteElements removes elements by id.
func (c *Client) DeleteElements(ctx context.Context, chainID string, elementIDs []string) error {
	body := map[string][]string{"elementsIds": elementIDs}
	return c.do(ctx, http.MethodDelete, chainPath(chainID, "elements"), body, nil)
}

// CreateConnection adds a dependency from one element to another.
func (c *Client) CreateConnection(ctx context.Context, chainID, from, to string) (*Connection, error) {
	body := map[string]string{"from": from, "to": to}
	var change ElementsChange
	if err := c.do(ctx, http.MethodPost, chainPath(chainID, "dependencies"), body, &change); err != nil {
		return nil, err
	}
	for _, dep := range change.CreatedDependencies {
		if dep.From == from && dep.To == to {
			return &dep, nil
		}
	}
	return &Connection{From: from, To: to}, nil
}

// DeleteConnections removes dependencies by id.
func (c *Client) DeleteConnections(ctx context.Context, chainID string, connectionIDs []string) error {
	body := map[string][]string{"dependenciesIds": connectionIDs}
	return c.do(ctx, http.MethodDelete, chainPath(chainID, "dependencies"), body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger := c.logger.With("method", method, "path", path)
	logger.Debug("sending chain request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chain API %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Warn("chain request failed", "status_code", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode chain response: %w", err)
	}
	return nil
}
