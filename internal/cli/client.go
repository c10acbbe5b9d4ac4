// =============================================================================
// CLI HTTP CLIENT - ADMIN INTERFACE TO A GOREGISTRY SERVER
// =============================================================================
//
// WHAT IS THIS?
// A lightweight HTTP client for CLI operations against the registry's REST
// API.
//
// HTTP ENDPOINTS USED:
//
//   Subjects:
//     GET    /subjects                              List subjects
//     POST   /subjects/{subject}/versions           Register schema
//     GET    /subjects/{subject}/versions           List versions
//     GET    /subjects/{subject}/versions/{v}       Get version
//     DELETE /subjects/{subject}/versions/{v}       Delete version
//     DELETE /subjects/{subject}                    Delete subject
//
//   Schemas:
//     GET    /schemas/ids/{id}                      Get schema by global ID
//
//   Config:
//     GET    /config[/{subject}]                    Get compatibility
//     PUT    /config[/{subject}]                    Set compatibility
//
//   Admin:
//     GET    /health                                Health check
//     GET    /stats                                 Registry stats
//
// =============================================================================

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ClientConfig holds configuration for the CLI HTTP client.
type ClientConfig struct {
	// ServerURL is the base URL of the registry server
	// (e.g., "http://localhost:8081").
	ServerURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL: "http://localhost:8081",
		Timeout:   30 * time.Second,
	}
}

// Client is the HTTP client for CLI operations.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new CLI HTTP client.
func NewClient(config ClientConfig) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// doRequest executes an HTTP request and decodes the JSON response.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}, result interface{}) error {
	u, err := url.JoinPath(c.config.ServerURL, path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func deletedQuery(includeDeleted bool) url.Values {
	if !includeDeleted {
		return nil
	}
	return url.Values{"deleted": []string{"true"}}
}

func permanentQuery(permanent bool) url.Values {
	if !permanent {
		return nil
	}
	return url.Values{"permanent": []string{"true"}}
}

// =============================================================================
// SUBJECT OPERATIONS
// =============================================================================

// SchemaVersion is one registered version as the API reports it.
type SchemaVersion struct {
	Subject    string `json:"subject"`
	Version    int    `json:"version"`
	ID         int64  `json:"id"`
	SchemaType string `json:"schemaType"`
	Schema     string `json:"schema"`
	Deleted    bool   `json:"deleted,omitempty"`
}

// Register registers a schema under a subject and returns its global ID.
func (c *Client) Register(ctx context.Context, subject, schemaType, schema string) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	err := c.doRequest(ctx, http.MethodPost, "/subjects/"+url.PathEscape(subject)+"/versions", nil,
		map[string]string{"schema": schema, "schemaType": schemaType}, &resp)
	return resp.ID, err
}

// ListSubjects returns all subject names.
func (c *Client) ListSubjects(ctx context.Context, includeDeleted bool) ([]string, error) {
	var subjects []string
	err := c.doRequest(ctx, http.MethodGet, "/subjects", deletedQuery(includeDeleted), nil, &subjects)
	return subjects, err
}

// ListVersions returns a subject's version numbers.
func (c *Client) ListVersions(ctx context.Context, subject string, includeDeleted bool) ([]int, error) {
	var versions []int
	err := c.doRequest(ctx, http.MethodGet,
		"/subjects/"+url.PathEscape(subject)+"/versions", deletedQuery(includeDeleted), nil, &versions)
	return versions, err
}

// GetVersion returns one version of a subject. version "latest" is accepted.
func (c *Client) GetVersion(ctx context.Context, subject, version string) (*SchemaVersion, error) {
	var sv SchemaVersion
	err := c.doRequest(ctx, http.MethodGet,
		"/subjects/"+url.PathEscape(subject)+"/versions/"+url.PathEscape(version), nil, nil, &sv)
	if err != nil {
		return nil, err
	}
	return &sv, nil
}

// DeleteSubject deletes a subject, returning the versions it covered.
func (c *Client) DeleteSubject(ctx context.Context, subject string, permanent bool) ([]int, error) {
	var versions []int
	err := c.doRequest(ctx, http.MethodDelete,
		"/subjects/"+url.PathEscape(subject), permanentQuery(permanent), nil, &versions)
	return versions, err
}

// DeleteVersion deletes one version of a subject.
func (c *Client) DeleteVersion(ctx context.Context, subject string, version int, permanent bool) error {
	return c.doRequest(ctx, http.MethodDelete,
		"/subjects/"+url.PathEscape(subject)+"/versions/"+strconv.Itoa(version),
		permanentQuery(permanent), nil, nil)
}

// =============================================================================
// SCHEMA OPERATIONS
// =============================================================================

// GetSchemaByID returns the schema body registered under a global ID.
func (c *Client) GetSchemaByID(ctx context.Context, id int64) (schemaType, schema string, err error) {
	var resp struct {
		SchemaType string `json:"schemaType"`
		Schema     string `json:"schema"`
	}
	err = c.doRequest(ctx, http.MethodGet, "/schemas/ids/"+strconv.FormatInt(id, 10), nil, nil, &resp)
	return resp.SchemaType, resp.Schema, err
}

// =============================================================================
// CONFIG OPERATIONS
// =============================================================================

func configPath(subject string) string {
	if subject == "" {
		return "/config"
	}
	return "/config/" + url.PathEscape(subject)
}

// GetCompatibility returns the effective compatibility level.
func (c *Client) GetCompatibility(ctx context.Context, subject string) (string, error) {
	var resp struct {
		Compatibility string `json:"compatibility"`
	}
	err := c.doRequest(ctx, http.MethodGet, configPath(subject), nil, nil, &resp)
	return resp.Compatibility, err
}

// SetCompatibility sets the compatibility level (global when subject is "").
func (c *Client) SetCompatibility(ctx context.Context, subject, level string) error {
	return c.doRequest(ctx, http.MethodPut, configPath(subject), nil,
		map[string]string{"compatibility": level}, nil)
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

// Health checks server health.
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Stats holds registry statistics as the API reports them.
type Stats struct {
	Subjects            int    `json:"subjects"`
	Schemas             int    `json:"schemas"`
	GlobalCompatibility string `json:"global_compatibility"`
	LoadedOffset        int64  `json:"loaded_offset"`
}

// GetStats fetches registry statistics.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.doRequest(ctx, http.MethodGet, "/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
