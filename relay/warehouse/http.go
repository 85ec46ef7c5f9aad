package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPClient implements Client against a REST-shaped warehouse data API.
//
// Endpoints, relative to the base URL:
//   - POST /statements            submit a statement
//   - GET  /statements/{id}       describe a statement
//   - GET  /statements/{id}/result?nextToken=...  fetch a result page
//   - POST /statements/{id}/cancel
//   - GET  /statements?status=...&name=...        list statements
//
// The cluster, database, and user identify the execution target and are
// sent with every submission; they are validated at construction because a
// missing value is a deployment misconfiguration, not a runtime condition.
//
// Example:
//
//	client, err := warehouse.NewHTTPClient(warehouse.HTTPConfig{
//	    BaseURL:  "https://data-api.internal:8443",
//	    Cluster:  "analytics",
//	    Database: "dw",
//	    DBUser:   "relay",
//	})
type HTTPClient struct {
	cfg    HTTPConfig
	client *http.Client
}

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// BaseURL is the root of the warehouse data API. Required.
	BaseURL string

	// Cluster identifies the warehouse cluster statements run on. Required.
	Cluster string

	// Database is the database statements execute against. Required.
	Database string

	// DBUser is the database user statements execute as. Required.
	DBUser string

	// HTTPClient overrides the underlying HTTP client. Optional; defaults
	// to http.DefaultClient. Timeouts are handled via context.
	HTTPClient *http.Client
}

// NewHTTPClient validates the configuration and builds a client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("warehouse base URL is required")
	}
	if cfg.Cluster == "" || cfg.Database == "" || cfg.DBUser == "" {
		return nil, fmt.Errorf("warehouse cluster, database, and db user are required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{cfg: cfg, client: client}, nil
}

// ExecuteStatement submits statement text for asynchronous execution
// (implements Client).
func (h *HTTPClient) ExecuteStatement(ctx context.Context, sql, statementName string, withEvent bool) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"ClusterIdentifier": h.cfg.Cluster,
		"Database":          h.cfg.Database,
		"DbUser":            h.cfg.DBUser,
		"Sql":               sql,
		"StatementName":     statementName,
		"WithEvent":         withEvent,
	}
	return h.doJSON(ctx, http.MethodPost, "/statements", body)
}

// DescribeStatement returns the warehouse's description of a statement
// (implements Client).
func (h *HTTPClient) DescribeStatement(ctx context.Context, id string) (map[string]interface{}, error) {
	return h.doJSON(ctx, http.MethodGet, "/statements/"+url.PathEscape(id), nil)
}

// GetStatementResult returns a page of statement results (implements Client).
func (h *HTTPClient) GetStatementResult(ctx context.Context, id, nextToken string) (map[string]interface{}, error) {
	path := "/statements/" + url.PathEscape(id) + "/result"
	if nextToken != "" {
		path += "?nextToken=" + url.QueryEscape(nextToken)
	}
	return h.doJSON(ctx, http.MethodGet, path, nil)
}

// CancelStatement requests cancellation of a statement (implements Client).
func (h *HTTPClient) CancelStatement(ctx context.Context, id string) (map[string]interface{}, error) {
	return h.doJSON(ctx, http.MethodPost, "/statements/"+url.PathEscape(id)+"/cancel", nil)
}

// ListStatements enumerates statement executions (implements Client).
func (h *HTTPClient) ListStatements(ctx context.Context, status State, statementName string) ([]StatementSummary, error) {
	q := url.Values{}
	q.Set("status", string(status))
	if statementName != "" {
		q.Set("name", statementName)
	}
	resp, err := h.doJSON(ctx, http.MethodGet, "/statements?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	raw, ok := resp["Statements"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("malformed list response: missing Statements")
	}
	statements := make([]StatementSummary, 0, len(raw))
	for _, entry := range raw {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("malformed list response: bad statement entry")
		}
		summary := StatementSummary{}
		if v, ok := fields["Id"].(string); ok {
			summary.ID = v
		}
		if v, ok := fields["StatementName"].(string); ok {
			summary.Name = v
		}
		if v, ok := fields["QueryString"].(string); ok {
			summary.QueryString = v
		}
		if v, ok := fields["Status"].(string); ok {
			summary.State = State(v)
		}
		statements = append(statements, summary)
	}
	return statements, nil
}

// doJSON executes one request and decodes the JSON response body.
func (h *HTTPClient) doJSON(ctx context.Context, method, path string, body map[string]interface{}) (map[string]interface{}, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("warehouse returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded map[string]interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return decoded, nil
}
