// Package upstream is the GraphQL-over-HTTP client for the commerce admin
// API. It implements the bulk export calls and the paginated query call.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/gobulk/pkg/bulk"
	"github.com/3leaps/gobulk/pkg/paginate"
	"github.com/3leaps/gobulk/pkg/record"
	"github.com/3leaps/gobulk/pkg/resource"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// Config configures the client.
type Config struct {
	// Endpoint is the GraphQL endpoint URL.
	Endpoint string

	// Authorizer attaches credentials to each request. Optional.
	Authorizer Authorizer

	// HTTPClient overrides the HTTP client.
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is nil.
	// Default: 30s
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Zero means unlimited.
	RateLimit float64
}

// Client sends GraphQL operations to the admin API.
//
// Client is safe for concurrent use.
type Client struct {
	endpoint   string
	auth       Authorizer
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

var (
	_ bulk.Client         = (*Client)(nil)
	_ paginate.PageSource = (*Client)(nil)
)

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("upstream endpoint is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	c := &Client{
		endpoint:   cfg.Endpoint,
		auth:       cfg.Authorizer,
		httpClient: hc,
		logger:     zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// WithLogger sets the logger used for request events.
// Returns the client for method chaining.
func (c *Client) WithLogger(l *zap.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors GraphQLErrors   `json:"errors,omitempty"`
}

// Execute sends a query or mutation and decodes its data into result.
//
// Numbers in result are decoded as json.Number when result holds
// interface values.
func (c *Client) Execute(ctx context.Context, op, query string, variables map[string]any, result any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &NetworkError{Op: op, Cause: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	if c.auth != nil {
		if err := c.auth.Authorize(req); err != nil {
			return fmt.Errorf("authorize request: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Cause: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("Upstream call",
		zap.String("op", op),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &NetworkError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(snippet)),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Cause: fmt.Errorf("read response: %w", err)}
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(raw, &gqlResp); err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Cause: fmt.Errorf("unmarshal response: %w", err)}
	}
	if len(gqlResp.Errors) > 0 {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Cause: gqlResp.Errors}
	}

	if result != nil && len(gqlResp.Data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(gqlResp.Data))
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return nil
}

// RunBulkQuery implements bulk.Client.
func (c *Client) RunBulkQuery(ctx context.Context, mutation string) (*bulk.SubmitResponse, error) {
	var data struct {
		BulkOperationRunQuery *struct {
			BulkOperation *struct {
				ID        string `json:"id"`
				Status    string `json:"status"`
				ErrorCode string `json:"errorCode"`
			} `json:"bulkOperation"`
			UserErrors []bulk.UserError `json:"userErrors"`
		} `json:"bulkOperationRunQuery"`
	}
	if err := c.Execute(ctx, "RunBulkQuery", mutation, nil, &data); err != nil {
		return nil, err
	}

	out := &bulk.SubmitResponse{}
	if payload := data.BulkOperationRunQuery; payload != nil {
		out.UserErrors = payload.UserErrors
		if op := payload.BulkOperation; op != nil {
			out.JobID = op.ID
			out.Status = op.Status
			out.ErrorCode = op.ErrorCode
		}
	}
	return out, nil
}

// CurrentBulkOperation implements bulk.Client.
func (c *Client) CurrentBulkOperation(ctx context.Context) (*bulk.StatusResponse, error) {
	var data struct {
		CurrentBulkOperation *struct {
			ID          string      `json:"id"`
			Status      string      `json:"status"`
			ErrorCode   string      `json:"errorCode"`
			URL         string      `json:"url"`
			ObjectCount json.Number `json:"objectCount"`
		} `json:"currentBulkOperation"`
	}
	if err := c.Execute(ctx, "CurrentBulkOperation", resource.CurrentOperationQuery, nil, &data); err != nil {
		return nil, err
	}

	op := data.CurrentBulkOperation
	if op == nil {
		return nil, nil
	}
	out := &bulk.StatusResponse{
		ID:        op.ID,
		Status:    op.Status,
		ErrorCode: op.ErrorCode,
		URL:       op.URL,
	}
	if op.ObjectCount != "" {
		n, err := strconv.ParseInt(op.ObjectCount.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse objectCount %q: %w", op.ObjectCount, err)
		}
		out.ObjectCount = n
	}
	return out, nil
}

// FetchPage implements paginate.PageSource.
func (c *Client) FetchPage(ctx context.Context, kind resource.Kind, req paginate.PageRequest) (*record.Page, error) {
	s, err := resource.Lookup(kind)
	if err != nil {
		return nil, err
	}

	vars := map[string]any{"first": req.First}
	if req.After != "" {
		vars["after"] = req.After
	}

	var data map[string]struct {
		Edges []struct {
			Cursor string         `json:"cursor"`
			Node   map[string]any `json:"node"`
		} `json:"edges"`
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
	}
	if err := c.Execute(ctx, "FetchPage", s.PageQuery, vars, &data); err != nil {
		return nil, err
	}

	conn, ok := data[s.RootField]
	if !ok {
		return nil, fmt.Errorf("page response has no %q field", s.RootField)
	}

	page := &record.Page{
		Cursor:  conn.PageInfo.EndCursor,
		HasNext: conn.PageInfo.HasNextPage,
		Items:   make([]record.Raw, 0, len(conn.Edges)),
	}
	for i, edge := range conn.Edges {
		if edge.Node == nil {
			return nil, fmt.Errorf("%s edge %d has no node", s.RootField, i)
		}
		item, children, err := record.FromNode(edge.Node)
		if err != nil {
			return nil, fmt.Errorf("%s edge %d: %w", s.RootField, i, err)
		}
		page.Items = append(page.Items, item)
		page.Children = append(page.Children, children...)
	}
	if page.Cursor == "" && len(conn.Edges) > 0 {
		page.Cursor = conn.Edges[len(conn.Edges)-1].Cursor
	}
	return page, nil
}
