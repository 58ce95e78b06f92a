package schema

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Endpoint is one documented operation: a path template, a method and the
// parameter schemas grouped by location. Endpoints are built once during
// schema load and treated as read-only afterwards.
type Endpoint struct {
	Path        string
	Method      string
	OperationID string
	Tags        []string

	BaseURL        string
	App            http.Handler
	ValidateSchema bool

	PathParameters *openapi3.Schema
	Query          *openapi3.Schema
	Headers        *openapi3.Schema
	Cookies        *openapi3.Schema
	Body           *openapi3.Schema
	FormData       *openapi3.Schema

	// Responses maps declared status codes to their JSON body schemas.
	Responses        map[string]*openapi3.Schema
	DeclaredStatuses []string
}

// Name returns the "METHOD /path" label used in reports and events.
func (e *Endpoint) Name() string {
	return e.Method + " " + e.Path
}

// Case is one concrete instantiation of an endpoint's parameters. A case is
// never mutated after generation; dependency resolution produces a new value
// via Clone.
type Case struct {
	Endpoint *Endpoint

	PathParameters map[string]any
	Headers        map[string]string
	Cookies        map[string]string
	Query          map[string]any
	Body           any
	FormData       any
}

// Path returns the owning endpoint's path template.
func (c *Case) Path() string { return c.Endpoint.Path }

// Method returns the owning endpoint's HTTP method.
func (c *Case) Method() string { return c.Endpoint.Method }

// BaseURL returns the owning endpoint's base URL.
func (c *Case) BaseURL() string { return c.Endpoint.BaseURL }

// FormattedPath substitutes path parameters into the path template.
func (c *Case) FormattedPath() (string, error) {
	path := c.Endpoint.Path
	for name, value := range c.PathParameters {
		path = strings.ReplaceAll(path, "{"+name+"}", fmt.Sprintf("%v", value))
	}
	if i := strings.IndexByte(path, '{'); i != -1 {
		return "", &InvalidSchemaError{Reason: "unresolved path parameter in " + path}
	}
	return path, nil
}

// URL joins the base URL with the formatted path.
func (c *Case) URL() (string, error) {
	base := c.Endpoint.BaseURL
	if base == "" {
		return "", fmt.Errorf("endpoint %s has no base URL", c.Endpoint.Name())
	}
	path, err := c.FormattedPath()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("building URL for %s: %w", c.Endpoint.Name(), err)
	}
	return u.String(), nil
}

// Clone returns a copy with fresh top-level maps so resolved fields can be
// substituted without touching the original case.
func (c *Case) Clone() *Case {
	clone := &Case{
		Endpoint: c.Endpoint,
		Body:     cloneValue(c.Body),
		FormData: cloneValue(c.FormData),
	}
	if c.PathParameters != nil {
		clone.PathParameters = make(map[string]any, len(c.PathParameters))
		for k, v := range c.PathParameters {
			clone.PathParameters[k] = v
		}
	}
	if c.Query != nil {
		clone.Query = make(map[string]any, len(c.Query))
		for k, v := range c.Query {
			clone.Query[k] = v
		}
	}
	if c.Headers != nil {
		clone.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			clone.Headers[k] = v
		}
	}
	if c.Cookies != nil {
		clone.Cookies = make(map[string]string, len(c.Cookies))
		for k, v := range c.Cookies {
			clone.Cookies[k] = v
		}
	}
	return clone
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// IsMultipart reports whether a generated body contains raw bytes anywhere in
// its structure. Binary payloads only appear for `format: binary` schemas,
// which in practice means the request should be sent as multipart form data.
func IsMultipart(body any) bool {
	switch val := body.(type) {
	case []byte:
		return true
	case map[string]any:
		for _, item := range val {
			if IsMultipart(item) {
				return true
			}
		}
	case []any:
		for _, item := range val {
			if IsMultipart(item) {
				return true
			}
		}
	}
	return false
}
