package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/rflorenc/field-migration-workbench/internal/models"
)

// maxPageSize is the largest page the record store accepts per search call.
const maxPageSize = 200

// Client is the HTTP implementation of RecordStore against a CRM-style
// REST API. One Client serves one org connection.
type Client struct {
	baseURL    string
	orgID      string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a Client from a Connection.
func NewClient(conn *models.Connection, log zerolog.Logger) *Client {
	transport := &http.Transport{}
	if conn.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	} else if conn.CACert != "" {
		caCertPool := x509.NewCertPool()
		if caCertPool.AppendCertsFromPEM([]byte(conn.CACert)) {
			transport.TLSClientConfig = &tls.Config{RootCAs: caCertPool}
		}
	}
	return &Client{
		baseURL: conn.BaseURL(),
		orgID:   conn.OrgID,
		apiKey:  conn.APIKey,
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Re-apply basic auth on redirects
				if len(via) > 0 {
					req.SetBasicAuth(conn.OrgID, conn.APIKey)
				}
				return nil
			},
		},
		log: log.With().Str("component", "store").Str("org", conn.OrgID).Logger(),
	}
}

// do performs an authenticated request and returns the response body and status.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload interface{}) ([]byte, int, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshaling body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.orgID, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("record store call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, resp.StatusCode, fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, truncate(string(body), 200))
	}
	return body, resp.StatusCode, nil
}

// Get fetches one record by ID.
func (c *Client) Get(ctx context.Context, id string) (models.Record, error) {
	body, status, err := c.do(ctx, "GET", "/v2/records/"+id, nil, nil)
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec models.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("parsing record %s: %w", id, err)
	}
	return rec, nil
}

// searchRequest is the wire form of a search call.
type searchRequest struct {
	SearchFields []searchField `json:"searchFields"`
	OutputFields []string      `json:"outputFields,omitempty"`
	Pagination   pagination    `json:"pagination"`
}

type searchField struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value,omitempty"`
}

type pagination struct {
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
}

// searchResponse is the record store's paginated search envelope.
type searchResponse struct {
	SearchResults []models.Record `json:"searchResults"`
	Pagination    struct {
		TotalResults int `json:"totalResults"`
		TotalPages   int `json:"totalPages"`
		CurrentPage  int `json:"currentPage"`
	} `json:"pagination"`
}

// Search runs a scoped search, following pagination until q.Limit records
// have been collected or results are exhausted.
func (c *Client) Search(ctx context.Context, q Query) ([]models.Record, error) {
	pageSize := q.Limit
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var all []models.Record
	for page := 0; ; page++ {
		req := searchRequest{
			SearchFields: []searchField{{Field: q.Field, Operator: string(q.Operator), Value: q.Value}},
			OutputFields: q.OutputFields,
			Pagination:   pagination{CurrentPage: page, PageSize: pageSize},
		}
		body, _, err := c.do(ctx, "POST", "/v2/records/search", nil, req)
		if err != nil {
			return nil, err
		}
		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parsing search response: %w", err)
		}

		all = append(all, resp.SearchResults...)
		if q.Limit > 0 && len(all) >= q.Limit {
			return all[:q.Limit], nil
		}
		if page+1 >= resp.Pagination.TotalPages || len(resp.SearchResults) == 0 {
			return all, nil
		}
	}
}

// Patch partially updates a record's standard fields.
func (c *Client) Patch(ctx context.Context, id string, fields map[string]interface{}) error {
	_, _, err := c.do(ctx, "PATCH", "/v2/records/"+id, nil, fields)
	return err
}

// customFieldPayload is the wire form of a custom-field value.
type customFieldPayload struct {
	Value interface{} `json:"value"`
}

// GetCustomFieldValue reads one custom field. A 404 means the record has no
// value for the field.
func (c *Client) GetCustomFieldValue(ctx context.Context, id, fieldName string) (interface{}, bool, error) {
	body, status, err := c.do(ctx, "GET", "/v2/records/"+id+"/customFields/"+url.PathEscape(fieldName), nil, nil)
	if status == http.StatusNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var payload customFieldPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false, fmt.Errorf("parsing custom field %s: %w", fieldName, err)
	}
	if payload.Value == nil {
		return nil, false, nil
	}
	return payload.Value, true, nil
}

// SetCustomFieldValue writes one custom field.
func (c *Client) SetCustomFieldValue(ctx context.Context, id, fieldName string, value interface{}) error {
	_, _, err := c.do(ctx, "PUT", "/v2/records/"+id+"/customFields/"+url.PathEscape(fieldName), nil, customFieldPayload{Value: value})
	return err
}

// ClearCustomFieldValue removes a custom field from the record entirely.
func (c *Client) ClearCustomFieldValue(ctx context.Context, id, fieldName string) error {
	body, status, err := c.do(ctx, "DELETE", "/v2/records/"+id+"/customFields/"+url.PathEscape(fieldName), nil, nil)
	if status == http.StatusNotFound {
		return nil // already clear
	}
	if err != nil {
		return fmt.Errorf("clearing %s on %s: %w (%s)", fieldName, id, err, truncate(string(body), 100))
	}
	return nil
}

// FindFieldMetadataByName resolves a field name to its metadata, or (nil, nil)
// if the store has no such field.
func (c *Client) FindFieldMetadataByName(ctx context.Context, name string) (*models.FieldMetadata, error) {
	params := url.Values{"name": {name}}
	body, _, err := c.do(ctx, "GET", "/v2/fields", params, nil)
	if err != nil {
		return nil, err
	}
	var fields []models.FieldMetadata
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("parsing field metadata: %w", err)
	}
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i], nil
		}
	}
	return nil, nil
}

// ListCustomFields returns metadata for every custom field in the org.
func (c *Client) ListCustomFields(ctx context.Context) ([]models.FieldMetadata, error) {
	body, _, err := c.do(ctx, "GET", "/v2/customFields", nil, nil)
	if err != nil {
		return nil, err
	}
	var fields []models.FieldMetadata
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("parsing custom fields: %w", err)
	}
	return fields, nil
}

// Ping checks connectivity and credentials by listing custom fields.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListCustomFields(ctx)
	return err
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
