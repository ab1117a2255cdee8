package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"
)

// Config contains the configuration subset adapters need. It is derived
// from the gateway's provider descriptor by the registry.
type Config struct {
	// Name is the provider's stable identifier (e.g. "openai-primary")
	Name string

	// Dialect is the wire dialect tag (openai, anthropic, azure, ...)
	Dialect string

	// BaseURL is the API endpoint base URL
	BaseURL string

	// APIKey is the authentication credential
	APIKey string

	// Region tags the provider for hint-based routing
	Region string

	// Timeout is the per-request timeout for this provider
	Timeout time.Duration

	// ModelMap maps logical model names to provider-native names.
	// Unknown models pass through verbatim unless RequireModelMap is set.
	ModelMap map[string]string

	// RequireModelMap makes unmapped models an UnsupportedModel error
	RequireModelMap bool

	// Headers are custom header injections merged after the adapter's
	// mandatory auth headers
	Headers map[string]string

	// MaxIdleConns bounds the provider's connection pool
	MaxIdleConns int

	// MaxIdleConnsPerHost bounds idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections linger in the pool
	IdleConnTimeout time.Duration

	// MaxInFlight bounds concurrent requests to this provider
	// (0 = unbounded). Over-limit requests fail as transient with a
	// zero retry hint.
	MaxInFlight int64

	// MaxRetries is how many times the driver may retry this provider
	// on a retryable failure before advancing to the next candidate
	MaxRetries int

	// RetryBaseDelay seeds the driver's exponential backoff for this
	// provider
	RetryBaseDelay time.Duration

	// APIVersion is a dialect-specific version string (azure, anthropic)
	APIVersion string
}

// HTTPProvider is the base implementation for HTTP-based dialect
// adapters. It owns the provider's pooled HTTP client, merges headers,
// classifies upstream failures into ErrorKinds, and enforces the
// per-provider in-flight bound.
//
// Concrete adapters embed this struct and implement the Provider
// interface methods. The base never retries; retry and failover live in
// the driver.
type HTTPProvider struct {
	config   Config
	client   *http.Client
	inflight atomic.Int64
}

// NewHTTPProvider creates a base HTTP provider with a dedicated
// connection pool.
func NewHTTPProvider(config Config) *HTTPProvider {
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPProvider{
		config: config,
		client: &http.Client{
			Transport: transport,
			// No client-level timeout: streaming responses outlive any
			// sane request timeout. Deadlines come in via context.
		},
	}
}

// Name returns the provider's configured name.
func (p *HTTPProvider) Name() string { return p.config.Name }

// Dialect returns the provider's wire dialect tag.
func (p *HTTPProvider) Dialect() string { return p.config.Dialect }

// Config returns the provider's configuration.
func (p *HTTPProvider) Config() Config { return p.config }

// InFlight returns the number of requests currently against this
// provider.
func (p *HTTPProvider) InFlight() int64 { return p.inflight.Load() }

// Models returns the sorted logical model names in the provider's map.
func (p *HTTPProvider) Models() []string {
	models := make([]string, 0, len(p.config.ModelMap))
	for logical := range p.config.ModelMap {
		models = append(models, logical)
	}
	sort.Strings(models)
	return models
}

// NativeModel maps a logical model name to the provider-native name.
// Unknown models pass through verbatim unless the provider mandates a
// mapping.
func (p *HTTPProvider) NativeModel(logical string) (string, error) {
	if native, ok := p.config.ModelMap[logical]; ok {
		return native, nil
	}
	if p.config.RequireModelMap {
		return "", ErrUnsupportedModel(p.config.Name, logical)
	}
	return logical, nil
}

// acquire claims an in-flight slot, failing fast when the configured
// bound is reached.
func (p *HTTPProvider) acquire() (release func(), err error) {
	n := p.inflight.Add(1)
	if p.config.MaxInFlight > 0 && n > p.config.MaxInFlight {
		p.inflight.Add(-1)
		return nil, &Error{
			Provider: p.config.Name,
			Kind:     KindTransient,
			Message:  fmt.Sprintf("in-flight limit of %d reached", p.config.MaxInFlight),
		}
	}
	return func() { p.inflight.Add(-1) }, nil
}

// DoRequest performs one HTTP request and classifies any failure.
// Header precedence: the adapter's mandatory headers (auth included) go
// first, then the configured custom injections — which may override auth
// but never the adapter's own Content-Type.
//
// A non-2xx status is returned as a classified *Error; the response is
// only handed back on success, and the caller owns closing its body.
func (p *HTTPProvider) DoRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	// The effective deadline (caller, breaker, provider timeout — the
	// shortest wins) is already composed on ctx by the driver.
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, &Error{Provider: p.config.Name, Kind: KindBadRequest, Message: "failed to build request", Cause: err}
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	for key, value := range p.config.Headers {
		if http.CanonicalHeaderKey(key) == "Content-Type" {
			continue
		}
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("sending request to provider",
		"provider", p.config.Name,
		"method", method,
		"url", url,
	)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.classifyTransport(ctx, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	return nil, p.classifyStatus(resp.StatusCode, resp.Header, string(errorBody))
}

// classifyTransport maps transport-level failures onto the error
// taxonomy.
func (p *HTTPProvider) classifyTransport(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return &Error{Provider: p.config.Name, Kind: KindCancelled, Message: "request cancelled", Cause: err}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Provider: p.config.Name, Kind: KindTimeout, Message: fmt.Sprintf("request exceeded %s", p.config.Timeout), Cause: err}
	default:
		return &Error{Provider: p.config.Name, Kind: KindTransient, Message: "network error", Cause: err}
	}
}

// classifyStatus maps an upstream HTTP status onto the error taxonomy.
func (p *HTTPProvider) classifyStatus(status int, header http.Header, body string) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Provider: p.config.Name, Kind: KindAuthFailed, StatusCode: status, Message: body}

	case status == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(header.Get("Retry-After"))
		if retryAfter <= 0 {
			// A 429 without a hint is indistinguishable from overload.
			return &Error{Provider: p.config.Name, Kind: KindTransient, StatusCode: status, Message: body}
		}
		return &Error{Provider: p.config.Name, Kind: KindRateLimited, StatusCode: status, RetryAfter: retryAfter, Message: body}

	case status == http.StatusNotFound:
		return &Error{Provider: p.config.Name, Kind: KindUnsupportedModel, StatusCode: status, Message: body}

	case status >= 400 && status < 500:
		return &Error{Provider: p.config.Name, Kind: KindBadRequest, StatusCode: status, Message: body}

	default:
		return &Error{Provider: p.config.Name, Kind: KindTransient, StatusCode: status, Message: body}
	}
}

// DoJSON performs a JSON request and decodes the response body into
// respBody.
func (p *HTTPProvider) DoJSON(ctx context.Context, method, url string, reqBody, respBody any, headers map[string]string) error {
	var bodyBytes []byte
	var err error
	if reqBody != nil {
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return &Error{Provider: p.config.Name, Kind: KindBadRequest, Message: "failed to marshal request", Cause: err}
		}
	}

	resp, err := p.DoRequest(ctx, method, url, bodyBytes, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.classifyTransport(ctx, err)
	}

	if respBody != nil && len(responseBytes) > 0 {
		if err := json.Unmarshal(responseBytes, respBody); err != nil {
			return &Error{
				Provider: p.config.Name,
				Kind:     KindTransient,
				Message:  "failed to parse provider response",
				Cause:    err,
			}
		}
	}

	return nil
}

// Close releases the provider's idle connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	slog.Info("provider closed", "provider", p.config.Name)
	return nil
}

// parseRetryAfter parses the Retry-After header value in either
// delay-seconds or HTTP-date form.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
