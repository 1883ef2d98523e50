// Package toolproxy forwards participant tool calls to externally configured
// HTTP APIs.
package toolproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// DefaultAPIKeyHeader carries api_key credentials when the config names no header.
const DefaultAPIKeyHeader = "X-API-Key"

// Call is one outbound request.
type Call struct {
	Config       *domain.ToolConfig
	EndpointPath string
	Method       string
	// Parameters is a JSON object. GET and DELETE send it as the query
	// string, other methods as the JSON body.
	Parameters json.RawMessage
}

// Result is a successful response.
type Result struct {
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
}

// Options configures a Client.
type Options struct {
	Timeout    time.Duration
	RatePerSec float64
	RateBurst  int
}

// Client executes tool calls with a rate limiter per tool configuration.
type Client struct {
	http    *fasthttp.Client
	timeout time.Duration
	limit   rate.Limit
	burst   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a tool proxy client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	return &Client{
		http: &fasthttp.Client{
			Name:            "roundtable-toolproxy",
			MaxConnsPerHost: 64,
		},
		timeout:  opts.Timeout,
		limit:    limit,
		burst:    opts.RateBurst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiter(configID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[configID]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[configID] = l
	}
	return l
}

// Execute sends the call and returns the decoded response. Non-2xx statuses
// and JSON bodies carrying a non-empty "error" field are failures.
func (c *Client) Execute(ctx context.Context, call *Call) (*Result, error) {
	if call.Config == nil {
		return nil, domain.NewValidationError("tool configuration is required")
	}
	method := strings.ToUpper(strings.TrimSpace(call.Method))
	if method == "" {
		method = http.MethodGet
	}

	if err := c.limiter(call.Config.ID).Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, domain.NewTimedOutError("tool call", ctx.Err())
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	if err := buildRequest(req, call, method); err != nil {
		return nil, err
	}

	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		var netErr net.Error
		if errors.Is(err, fasthttp.ErrTimeout) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, domain.NewTimedOutError("tool call", err)
		}
		return nil, domain.NewRemoteCallError("tool call", err)
	}

	status := resp.StatusCode()
	body := append([]byte(nil), resp.Body()...)
	if status < 200 || status >= 300 {
		return nil, domain.NewRemoteCallError("tool call",
			fmt.Errorf("HTTP error! status: %d, body: %s", status, truncate(string(body), 500)))
	}
	if msg := applicationError(body); msg != "" {
		return nil, domain.NewRemoteCallError("tool call", errors.New(msg))
	}

	var data json.RawMessage
	switch {
	case len(bytes.TrimSpace(body)) == 0:
		data = json.RawMessage("null")
	case json.Valid(body):
		data = body
	default:
		data, _ = json.Marshal(string(body))
	}
	return &Result{StatusCode: status, Data: data}, nil
}

func buildRequest(req *fasthttp.Request, call *Call, method string) error {
	cfg := call.Config
	req.SetRequestURI(strings.TrimSuffix(cfg.BaseURL, "/") + "/" + strings.TrimPrefix(call.EndpointPath, "/"))
	req.Header.SetMethod(method)

	for k, v := range cfg.CommonHeaders {
		req.Header.Set(k, v)
	}
	switch cfg.AuthType {
	case domain.AuthTypeBearer:
		if cfg.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
		}
	case domain.AuthTypeAPIKey:
		if cfg.AuthToken != "" {
			header := cfg.AuthHeaderName
			if header == "" {
				header = DefaultAPIKeyHeader
			}
			req.Header.Set(header, cfg.AuthToken)
		}
	}

	params, err := decodeParams(call.Parameters)
	if err != nil {
		return err
	}

	if method == http.MethodGet || method == http.MethodDelete {
		args := req.URI().QueryArgs()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args.Add(k, queryValue(params[k]))
		}
		return nil
	}

	body := call.Parameters
	if len(bytes.TrimSpace(body)) == 0 {
		body = json.RawMessage("{}")
	}
	req.Header.SetContentType("application/json")
	req.SetBody(body)
	return nil
}

func decodeParams(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return map[string]json.RawMessage{}, nil
	}
	var params map[string]json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, domain.NewParseError("tool arguments", err)
	}
	return params, nil
}

// queryValue renders strings bare and everything else as JSON.
func queryValue(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}

// applicationError extracts a non-empty top-level "error" field.
func applicationError(body []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	raw, ok := obj["error"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Message != "" {
		return nested.Message
	}
	switch strings.TrimSpace(string(raw)) {
	case "null", "false", "":
		return ""
	}
	return string(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
