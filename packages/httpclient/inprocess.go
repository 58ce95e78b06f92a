package httpclient

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"time"
)

// InProcess executes requests directly against an http.Handler, skipping the
// network entirely. It mirrors the Client's header and auth behavior so check
// results are comparable between transports.
type InProcess struct {
	handler        http.Handler
	defaultHeaders map[string]string
	basicUser      string
	basicPass      string
}

type InProcessOption func(*InProcess)

func NewInProcess(handler http.Handler, opts ...InProcessOption) *InProcess {
	t := &InProcess{
		handler:        handler,
		defaultHeaders: make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func WithInProcessHeaders(headers map[string]string) InProcessOption {
	return func(t *InProcess) {
		for k, v := range headers {
			t.defaultHeaders[k] = v
		}
	}
}

func WithInProcessBasicAuth(user, pass string) InProcessOption {
	return func(t *InProcess) {
		t.basicUser, t.basicPass = user, pass
	}
}

func (t *InProcess) DefaultHeaders() map[string]string {
	return t.defaultHeaders
}

func (t *InProcess) Do(ctx context.Context, req *Request) (*Response, error) {
	target := req.URL
	if target == "" {
		target = req.Path
	}

	var body *bytes.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq := httptest.NewRequest(req.Method, target, body).WithContext(ctx)
	httpReq.Header.Set("User-Agent", UserAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range t.defaultHeaders {
		httpReq.Header.Set(k, v)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if t.basicUser != "" {
		httpReq.Header.Set("Authorization", BasicAuthHeader(t.basicUser, t.basicPass))
	}
	// Cookies exist only for the duration of this call; the recorder holds
	// no jar to clear afterwards.
	for name, value := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	recorder := httptest.NewRecorder()
	start := time.Now()
	t.handler.ServeHTTP(recorder, httpReq)
	duration := time.Since(start)

	result := recorder.Result()
	defer result.Body.Close()

	headers := make(map[string]string, len(result.Header))
	for k := range result.Header {
		headers[k] = result.Header.Get(k)
	}

	return &Response{
		URL:        target,
		StatusCode: result.StatusCode,
		Status:     result.Status,
		Headers:    headers,
		Body:       recorder.Body.Bytes(),
		Duration:   duration,
	}, nil
}
