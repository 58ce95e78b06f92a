// Package httpclient provides the transports cases are executed over: a
// session-style network client and an in-process handler round trip.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 30 * time.Second
	// DefaultMaxIdleConnsPerHost keeps connection reuse sensible for runs
	// that hammer a single host.
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
)

// UserAgent is sent on every request unless overridden by a session header.
const UserAgent = "schemaprobe/1.0"

// Transport executes one request and returns the unified response view.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
	// DefaultHeaders exposes the session-level headers so the executor can
	// apply the header-collision rule before dispatch.
	DefaultHeaders() map[string]string
}

// Client is the network transport. The zero value is not usable; construct
// with NewClient.
type Client struct {
	httpClient     *http.Client
	timeout        time.Duration
	validateSSL    bool
	defaultHeaders map[string]string
	limiter        *rate.Limiter

	basicUser, basicPass   string
	digestUser, digestPass string
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:        DefaultTimeout,
		validateSSL:    true,
		defaultHeaders: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}
	if !c.validateSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}
	return c
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.defaultHeaders[k] = v
		}
	}
}

func WithBasicAuth(user, pass string) ClientOption {
	return func(c *Client) {
		c.basicUser, c.basicPass = user, pass
	}
}

func WithDigestAuth(user, pass string) ClientOption {
	return func(c *Client) {
		c.digestUser, c.digestPass = user, pass
	}
}

func WithValidateSSL(validate bool) ClientOption {
	return func(c *Client) {
		c.validateSSL = validate
	}
}

// WithRateLimit caps outgoing requests per second across all cases executed
// through this client.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func (c *Client) DefaultHeaders() map[string]string {
	return c.defaultHeaders
}

func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.digestUser != "" {
		return c.doWithDigestAuth(ctx, req)
	}
	return c.doRequest(ctx, req, "")
}

func (c *Client) doRequest(ctx context.Context, req *Request, authHeader string) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("User-Agent", UserAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	// Session headers win over generated case headers.
	for k, v := range c.defaultHeaders {
		httpReq.Header.Set(k, v)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	for name, value := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	switch {
	case authHeader != "":
		httpReq.Header.Set("Authorization", authHeader)
	case c.basicUser != "":
		httpReq.Header.Set("Authorization", BasicAuthHeader(c.basicUser, c.basicPass))
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}

	return &Response{
		URL:        req.URL,
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    headers,
		Body:       respBody,
		Duration:   duration,
	}, nil
}

func (c *Client) doWithDigestAuth(ctx context.Context, req *Request) (*Response, error) {
	// First round trip collects the challenge.
	resp, err := c.doRequest(ctx, req, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	challenge := resp.Header("WWW-Authenticate")
	if !strings.HasPrefix(challenge, "Digest ") {
		return resp, nil
	}

	authHeader, err := digestAuthorization(c.digestUser, c.digestPass, req.Method, req.URL, challenge)
	if err != nil {
		return nil, err
	}
	return c.doRequest(ctx, req, authHeader)
}

// BasicAuthHeader builds an RFC 7617 Authorization header value.
func BasicAuthHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
