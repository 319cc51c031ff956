package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/muurk/esp32ctl/internal/logging"
	"github.com/muurk/esp32ctl/internal/version"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultProbeTimeout bounds a single reachability probe
	DefaultProbeTimeout = 5 * time.Second

	// DefaultProbePath is the lightweight endpoint used for probes
	DefaultProbePath = "/api/status"

	// maxBodySize caps how much of a response is read into memory
	maxBodySize = 4 << 20
)

// Observer receives the transport outcome of every observed call.
// err is nil when an HTTP response was received and usable, an
// *ApplicationError when the device reported a logical failure, and an
// *Error when the transport failed.
type Observer interface {
	ObserveTransport(err error)
}

// ObserverFunc is a function adapter for Observer
type ObserverFunc func(err error)

func (f ObserverFunc) ObserveTransport(err error) {
	f(err)
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Stats holds request counters for one client
type Stats struct {
	Requests int64
	Failures int64
	Probes   int64
}

type counters struct {
	requests atomic.Int64
	failures atomic.Int64
	probes   atomic.Int64
}

// Client is the transport primitive for a device's HTTP API
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
	stats   *counters

	mu        sync.RWMutex
	observers []Observer
	observed  bool
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout for API calls
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the device at baseURL
// (e.g. "http://192.168.4.1" or "http://192.168.4.1:8080").
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid device URL %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid device URL %q: missing host", baseURL)
	}

	c := &Client{
		baseURL:  u,
		http:     &http.Client{Timeout: DefaultTimeout},
		logger:   logging.Named("transport"),
		stats:    &counters{},
		observed: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the device base URL
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Host returns the device host (with port, if any)
func (c *Client) Host() string {
	return c.baseURL.Host
}

// AddObserver registers an observer for the outcome of every call
func (c *Client) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Unobserved returns a client that shares this client's connection pool and
// counters but never notifies observers. It is used for traffic that is not
// a connectivity signal, such as asset fetches and the poller's own status
// reads.
func (c *Client) Unobserved() *Client {
	return &Client{
		baseURL:  c.baseURL,
		http:     c.http,
		logger:   c.logger,
		stats:    c.stats,
		observed: false,
	}
}

// Stats returns a snapshot of the request counters
func (c *Client) Stats() Stats {
	return Stats{
		Requests: c.stats.requests.Load(),
		Failures: c.stats.failures.Load(),
		Probes:   c.stats.probes.Load(),
	}
}

// Perform issues one request and returns the fully read response.
// body may be nil, []byte, url.Values (form encoded) or any value that is
// encoded as JSON. Network errors, timeouts and non-2xx responses without a
// JSON error body are returned as *Error; non-2xx responses that carry one
// are returned as *ApplicationError.
func (c *Client) Perform(ctx context.Context, method, path string, body any) (*Response, error) {
	resp, err := c.roundTrip(ctx, method, path, body)
	c.notify(err)
	return resp, err
}

// Do performs a request and decodes the JSON response into out (if non-nil).
// A response envelope with "success": false becomes an *ApplicationError.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	err := c.do(ctx, method, path, in, out)
	c.notify(err)
	return err
}

// Get is Do with GET and no body
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post is Do with POST
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// Probe issues one bounded GET used only to test reachability. Any non-2xx
// status or timeout is a failure. The body is not inspected and observers
// are not notified.
func (c *Client) Probe(ctx context.Context, path string, timeout time.Duration) error {
	if path == "" {
		path = DefaultProbePath
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.stats.probes.Inc()
	_, err := c.roundTrip(ctx, http.MethodGet, path, nil)

	// a non-2xx status is a failed probe even if it carries an error body
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return NewStatusError("GET "+path, appErr.StatusCode, []byte(appErr.Message))
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path

	resp, err := c.roundTrip(ctx, method, path, in)
	if err != nil {
		return err
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		if out == nil {
			return nil
		}
		return NewParseError(op, "empty response body", nil)
	}

	var envelope struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		// arrays have no envelope
		var probe json.RawMessage
		if jsonErr := json.Unmarshal(resp.Body, &probe); jsonErr != nil {
			return NewParseError(op, "failed to parse JSON response", jsonErr)
		}
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return NewParseError(op, "failed to decode response", err)
		}
	}

	if envelope.Success != nil && !*envelope.Success {
		msg := envelope.Message
		if msg == "" {
			msg = envelope.Error
		}
		return &ApplicationError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) (*Response, error) {
	op := method + " " + path
	requestID := uuid.NewString()
	start := time.Now()

	c.stats.requests.Inc()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		c.stats.failures.Inc()
		return nil, err
	}
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.stats.failures.Inc()
		tErr := Classify(err, c.baseURL.Hostname())
		tErr.Op = op
		logging.LogRequest(c.logger, requestID, method, path, 0, time.Since(start), tErr)
		return nil, tErr
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readBody(resp)
	if err != nil {
		c.stats.failures.Inc()
		tErr := Classify(err, c.baseURL.Hostname())
		tErr.Op = op
		tErr.Message = "failed to read response body"
		logging.LogRequest(c.logger, requestID, method, path, resp.StatusCode, time.Since(start), tErr)
		return nil, tErr
	}

	logging.LogRequest(c.logger, requestID, method, path, resp.StatusCode, time.Since(start), nil)

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg, ok := errorBody(data); ok {
			return out, &ApplicationError{Op: op, StatusCode: resp.StatusCode, Message: msg}
		}
		c.stats.failures.Inc()
		return out, NewStatusError(op, resp.StatusCode, data)
	}

	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	target := c.resolve(path)

	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "application/octet-stream"
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: method + " " + path, Message: "failed to create request", Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", version.UserAgent())
	return req, nil
}

func (c *Client) resolve(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL.String() + path
}

func (c *Client) notify(err error) {
	if !c.observed || IsCanceled(err) {
		return
	}
	if err != nil && !IsTransportFailure(err) && !IsApplicationFailure(err) {
		return
	}

	c.mu.RLock()
	observers := append([]Observer(nil), c.observers...)
	c.mu.RUnlock()

	for _, o := range observers {
		o.ObserveTransport(err)
	}
}

// readBody reads the response body, decoding gzip content encoding. The
// device serves some assets pre-compressed.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = io.LimitReader(resp.Body, maxBodySize)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return io.ReadAll(r)
}

// errorBody extracts a device error message from a non-2xx JSON body like
// {"error": "File not found"} or {"success": false, "message": "..."}.
func errorBody(data []byte) (string, bool) {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return "", false
	}
	for _, key := range []string{"error", "message"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
