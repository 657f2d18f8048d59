package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/graphsync/pkg/buildinfo"
	"github.com/matzehuels/graphsync/pkg/errors"
	"github.com/matzehuels/graphsync/pkg/gateway"
	"github.com/matzehuels/graphsync/pkg/graph"
	"github.com/matzehuels/graphsync/pkg/httputil"
)

// DefaultBaseURL is where a locally started server listens.
const DefaultBaseURL = "http://localhost:8080"

// Defaults for [Options].
const (
	DefaultTimeout  = 30 * time.Second
	DefaultAttempts = httputil.DefaultAttempts
)

// Options configures a [Client]. The zero value is usable.
type Options struct {
	// HTTPClient sends requests. Nil uses a client with DefaultTimeout.
	HTTPClient *http.Client

	// Attempts bounds retries of read requests. Zero uses DefaultAttempts;
	// 1 disables retries.
	Attempts int

	// RetryDelay is the first backoff delay. Zero uses httputil.DefaultDelay.
	RetryDelay time.Duration

	Logger *log.Logger
}

// Client talks to a graphsync server.
type Client struct {
	base     *url.URL
	http     *http.Client
	attempts int
	delay    time.Duration
	logger   *log.Logger
}

// Version is the server's build information.
type Version = buildinfo.Info

// New creates a client for the server at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	if err := errors.ValidateURL(baseURL); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid server URL")
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = httputil.DefaultDelay
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Client{
		base:     base,
		http:     opts.HTTPClient,
		attempts: opts.Attempts,
		delay:    opts.RetryDelay,
		logger:   opts.Logger,
	}, nil
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.base.String() }

// =============================================================================
// Mutations
// =============================================================================

type syncResponse struct {
	Success bool   `json:"success"`
	Type    string `json:"type"`
	Applied bool   `json:"applied"`
}

// Sync sends one mutation. It is never retried: a request that timed out
// may already have been applied.
func (c *Client) Sync(ctx context.Context, m gateway.Mutation) (gateway.Result, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return gateway.Result{}, errors.Wrap(errors.ErrCodeInvalidPayload, err, "encode mutation")
	}

	var out syncResponse
	if err := c.do(ctx, http.MethodPost, "/sync", nil, body, &out); err != nil {
		return gateway.Result{}, err
	}
	return gateway.Result{Type: out.Type, Applied: out.Applied}, nil
}

// Mutate builds a mutation from data and sends it.
func (c *Client) Mutate(ctx context.Context, mutationType string, data any) (gateway.Result, error) {
	m, err := gateway.NewMutation(mutationType, data)
	if err != nil {
		return gateway.Result{}, err
	}
	return c.Sync(ctx, m)
}

// Push replaces the server graph with a {nodes, edges} document. The
// document is sent as-is, so nodes without coordinates are laid out by the
// server.
func (c *Client) Push(ctx context.Context, doc json.RawMessage) (gateway.Result, error) {
	if !json.Valid(doc) {
		return gateway.Result{}, errors.New(errors.ErrCodeInvalidFormat, "bulk document is not valid JSON")
	}
	return c.Sync(ctx, gateway.Mutation{Type: gateway.TypeBulkSync, Data: doc})
}

// =============================================================================
// Queries
// =============================================================================

// Graph fetches the full graph.
func (c *Client) Graph(ctx context.Context) (graph.Graph, error) {
	var g graph.Graph
	if err := c.get(ctx, "/graph", nil, &g); err != nil {
		return graph.Graph{}, err
	}
	return g, nil
}

// Subgraph fetches the nodes within depth hops of center.
func (c *Client) Subgraph(ctx context.Context, center string, depth int) (graph.Graph, error) {
	q := url.Values{}
	q.Set("center", center)
	q.Set("depth", strconv.Itoa(depth))

	var g graph.Graph
	if err := c.get(ctx, "/graph", q, &g); err != nil {
		return graph.Graph{}, err
	}
	return g, nil
}

// Health fetches the server health summary.
func (c *Client) Health(ctx context.Context) (gateway.Health, error) {
	var h gateway.Health
	err := c.get(ctx, "/health", nil, &h)
	return h, err
}

// Version fetches the server build information.
func (c *Client) Version(ctx context.Context) (Version, error) {
	var v Version
	err := c.get(ctx, "/version", nil, &v)
	return v, err
}

// =============================================================================
// Transport
// =============================================================================

// get performs an idempotent request, retrying network failures and 5xx.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return httputil.Retry(ctx, c.attempts, c.delay, func() error {
		err := c.do(ctx, http.MethodGet, path, q, nil, out)
		if isTransient(err) {
			c.logger.Debug("retrying request", "path", path, "err", err)
			return httputil.Retryable(err)
		}
		return err
	})
}

func isTransient(err error) bool {
	switch errors.GetCode(err) {
	case errors.ErrCodeNetwork, errors.ErrCodeUnavailable, errors.ErrCodeTimeout, errors.ErrCodeInternal:
		return true
	}
	return false
}

// apiError is the body of every non-2xx response.
type apiError struct {
	Error string      `json:"error"`
	Code  errors.Code `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, out any) error {
	u := *c.base
	u.Path += path
	u.RawQuery = q.Encode()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(errors.ErrCodeNetwork, err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode %s response", path)
	}
	return nil
}

// decodeError turns an error response into an *errors.Error, falling back to
// a code derived from the status when the body is not the usual JSON.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body apiError
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return errors.New(errors.FromStatus(resp.StatusCode), "server returned %d: %s", resp.StatusCode, msg)
	}
	return &errors.Error{Code: body.Code, Message: body.Error}
}
