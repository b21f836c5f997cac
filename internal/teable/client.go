// ABOUTME: HTTP client for the Teable API, bound to one tenant's credential
// ABOUTME: Thin typed wrappers over the space/base/table/field/view/record endpoints

package teable

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
	"strconv"
	"strings"
	"time"
)

// ErrNoAPIKey indicates a client was constructed with an empty credential.
var ErrNoAPIKey = errors.New("no API key provided")

// UpstreamError is a non-2xx response from the Teable API. Body is the raw
// response text; no particular shape is assumed.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("teable API error: %d. Response: %s", e.StatusCode, e.Body)
}

// Client calls the Teable API on behalf of one tenant. It holds the decrypted
// credential and the tenant's upstream base URL and nothing else, so instances
// are cheap and safe to share across goroutines.
type Client struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient creates a client bound to the given credential and base URL.
func NewClient(apiKey, baseURL string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if baseURL == "" {
		baseURL = "https://app.teable.ai/api"
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default().With("component", "teable"),
	}, nil
}

// do issues one request and decodes the JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling teable API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Spaces and bases

func (c *Client) ListSpaces(ctx context.Context) ([]Space, error) {
	var spaces []Space
	if err := c.do(ctx, http.MethodGet, "/space", nil, &spaces); err != nil {
		return nil, err
	}
	return spaces, nil
}

func (c *Client) ListBases(ctx context.Context, spaceID string) ([]Base, error) {
	var bases []Base
	if err := c.do(ctx, http.MethodGet, "/space/"+spaceID+"/base", nil, &bases); err != nil {
		return nil, err
	}
	return bases, nil
}

func (c *Client) GetBase(ctx context.Context, baseID string) (*Base, error) {
	var base Base
	if err := c.do(ctx, http.MethodGet, "/base/"+baseID, nil, &base); err != nil {
		return nil, err
	}
	return &base, nil
}

// Tables

func (c *Client) ListTables(ctx context.Context, baseID string) ([]Table, error) {
	var tables []Table
	if err := c.do(ctx, http.MethodGet, "/base/"+baseID+"/table", nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

func (c *Client) GetTable(ctx context.Context, baseID, tableID string) (*Table, error) {
	var table Table
	if err := c.do(ctx, http.MethodGet, "/base/"+baseID+"/table/"+tableID, nil, &table); err != nil {
		return nil, err
	}
	return &table, nil
}

func (c *Client) CreateTable(ctx context.Context, baseID, name string, fields []Field) (*Table, error) {
	payload := map[string]any{"name": name}
	if len(fields) > 0 {
		payload["fields"] = fields
	}
	var table Table
	if err := c.do(ctx, http.MethodPost, "/base/"+baseID+"/table/", payload, &table); err != nil {
		return nil, err
	}
	return &table, nil
}

func (c *Client) DeleteTable(ctx context.Context, baseID, tableID string) error {
	return c.do(ctx, http.MethodDelete, "/base/"+baseID+"/table/"+tableID, nil, nil)
}

// Fields

func (c *Client) ListFields(ctx context.Context, tableID string) ([]Field, error) {
	var fields []Field
	if err := c.do(ctx, http.MethodGet, "/table/"+tableID+"/field", nil, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (c *Client) CreateField(ctx context.Context, tableID string, field Field) (*Field, error) {
	var created Field
	if err := c.do(ctx, http.MethodPost, "/table/"+tableID+"/field", field, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateField applies a partial update. Only the keys present in updates are
// sent; an absent name or type must not reach the upstream as an empty string.
func (c *Client) UpdateField(ctx context.Context, tableID, fieldID string, updates map[string]any) (*Field, error) {
	var updated Field
	if err := c.do(ctx, http.MethodPatch, "/table/"+tableID+"/field/"+fieldID, updates, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) DeleteField(ctx context.Context, tableID, fieldID string) error {
	return c.do(ctx, http.MethodDelete, "/table/"+tableID+"/field/"+fieldID, nil, nil)
}

// Views

func (c *Client) ListViews(ctx context.Context, tableID string) ([]View, error) {
	var views []View
	if err := c.do(ctx, http.MethodGet, "/table/"+tableID+"/view", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *Client) CreateView(ctx context.Context, tableID, name, viewType string) (*View, error) {
	if viewType == "" {
		viewType = "grid"
	}
	var view View
	payload := map[string]string{"name": name, "type": viewType}
	if err := c.do(ctx, http.MethodPost, "/table/"+tableID+"/view", payload, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) DeleteView(ctx context.Context, tableID, viewID string) error {
	return c.do(ctx, http.MethodDelete, "/table/"+tableID+"/view/"+viewID, nil, nil)
}

// Records

func (c *Client) GetRecord(ctx context.Context, tableID, recordID string) (*Record, error) {
	var record Record
	if err := c.do(ctx, http.MethodGet, "/table/"+tableID+"/record/"+recordID, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) ListRecords(ctx context.Context, tableID string, opts ListRecordsOptions) (*RecordList, error) {
	params := url.Values{}
	if opts.ViewID != "" {
		params.Set("viewId", opts.ViewID)
	}
	if opts.FilterByFormula != "" {
		params.Set("filterByFormula", opts.FilterByFormula)
	}
	if opts.MaxRecords > 0 {
		params.Set("maxRecords", strconv.Itoa(opts.MaxRecords))
	}

	path := "/table/" + tableID + "/record"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var list RecordList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) CreateRecord(ctx context.Context, tableID string, fields map[string]any) (*Record, error) {
	var record Record
	payload := map[string]any{"fields": fields}
	if err := c.do(ctx, http.MethodPost, "/table/"+tableID+"/record", payload, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) CreateRecords(ctx context.Context, tableID string, records []RecordInput) (*RecordList, error) {
	var list RecordList
	payload := map[string]any{"records": records}
	if err := c.do(ctx, http.MethodPost, "/table/"+tableID+"/record", payload, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (*Record, error) {
	var record Record
	payload := map[string]any{"fields": fields}
	if err := c.do(ctx, http.MethodPatch, "/table/"+tableID+"/record/"+recordID, payload, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) UpdateRecords(ctx context.Context, tableID string, records []RecordUpdate) (*RecordList, error) {
	var list RecordList
	payload := map[string]any{"records": records}
	if err := c.do(ctx, http.MethodPatch, "/table/"+tableID+"/record", payload, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) DeleteRecord(ctx context.Context, tableID, recordID string) error {
	return c.do(ctx, http.MethodDelete, "/table/"+tableID+"/record/"+recordID, nil, nil)
}

func (c *Client) DeleteRecords(ctx context.Context, tableID string, recordIDs []string) error {
	params := url.Values{}
	for _, id := range recordIDs {
		params.Add("recordIds", id)
	}
	return c.do(ctx, http.MethodDelete, "/table/"+tableID+"/record?"+params.Encode(), nil, nil)
}
