// Package schema loads OpenAPI documents and exposes them as a flat list of
// testable endpoints with per-location parameter schemas.
package schema

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// InvalidSchemaError reports a schema definition that cannot be tested,
// for example a GET operation that declares a request body.
type InvalidSchemaError struct {
	Reason string
}

func (e *InvalidSchemaError) Error() string {
	return "invalid schema: " + e.Reason
}

// Schema is a loaded and filtered OpenAPI document.
type Schema struct {
	doc *openapi3.T

	BaseURL        string
	ValidateSchema bool
	// App is an optional in-process target. When set, cases are executed
	// against the handler directly instead of over the network.
	App http.Handler

	endpoints []*Endpoint
}

// LoadOptions controls document loading and endpoint selection.
type LoadOptions struct {
	BaseURL        string
	App            http.Handler
	ValidateSchema bool

	// Endpoint, Method and Tag narrow down which operations are kept.
	// Endpoint is matched as a substring of the path template.
	Endpoint string
	Method   string
	Tag      string
}

// Load reads an OpenAPI document from a filesystem path or an HTTP(S) URL.
func Load(location string, opts LoadOptions) (*Schema, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	var (
		doc *openapi3.T
		err error
	)
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		u, perr := url.Parse(location)
		if perr != nil {
			return nil, fmt.Errorf("parsing schema URL: %w", perr)
		}
		doc, err = loader.LoadFromURI(u)
		if err == nil && opts.BaseURL == "" {
			opts.BaseURL = u.Scheme + "://" + u.Host
		}
	} else {
		if _, serr := os.Stat(location); serr != nil {
			return nil, fmt.Errorf("schema location %q: %w", location, serr)
		}
		doc, err = loader.LoadFromFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	return FromDoc(doc, opts)
}

// FromData builds a schema from raw JSON or YAML bytes.
func FromData(data []byte, opts LoadOptions) (*Schema, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	return FromDoc(doc, opts)
}

// FromDoc builds a schema from an already parsed document.
func FromDoc(doc *openapi3.T, opts LoadOptions) (*Schema, error) {
	if opts.ValidateSchema {
		if err := doc.Validate(context.Background()); err != nil {
			return nil, fmt.Errorf("validating schema: %w", err)
		}
	}

	baseURL := opts.BaseURL
	if baseURL == "" && len(doc.Servers) > 0 {
		baseURL = strings.TrimSuffix(doc.Servers[0].URL, "/")
	}

	s := &Schema{
		doc:            doc,
		BaseURL:        baseURL,
		ValidateSchema: opts.ValidateSchema,
		App:            opts.App,
	}
	if err := s.collectEndpoints(opts); err != nil {
		return nil, err
	}
	return s, nil
}

// Endpoints returns the selected operations in stable document order.
func (s *Schema) Endpoints() []*Endpoint {
	return s.endpoints
}

func (s *Schema) collectEndpoints(opts LoadOptions) error {
	if s.doc.Paths == nil {
		return nil
	}
	pathMap := s.doc.Paths.Map()

	paths := make([]string, 0, len(pathMap))
	for path := range pathMap {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		item := pathMap[path]
		for method, op := range item.Operations() {
			if !matchFilters(path, method, op, opts) {
				continue
			}
			endpoint, err := s.buildEndpoint(path, method, item, op)
			if err != nil {
				return err
			}
			s.endpoints = append(s.endpoints, endpoint)
		}
		// Operations() returns a map; re-sort for a deterministic order.
		sort.Slice(s.endpoints, func(i, j int) bool {
			if s.endpoints[i].Path != s.endpoints[j].Path {
				return s.endpoints[i].Path < s.endpoints[j].Path
			}
			return s.endpoints[i].Method < s.endpoints[j].Method
		})
	}
	return nil
}

func matchFilters(path, method string, op *openapi3.Operation, opts LoadOptions) bool {
	if opts.Endpoint != "" && !strings.Contains(path, opts.Endpoint) {
		return false
	}
	if opts.Method != "" && !strings.EqualFold(method, opts.Method) {
		return false
	}
	if opts.Tag != "" {
		found := false
		for _, tag := range op.Tags {
			if strings.EqualFold(tag, opts.Tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Schema) buildEndpoint(path, method string, item *openapi3.PathItem, op *openapi3.Operation) (*Endpoint, error) {
	endpoint := &Endpoint{
		Path:           path,
		Method:         strings.ToUpper(method),
		OperationID:    op.OperationID,
		Tags:           op.Tags,
		BaseURL:        s.BaseURL,
		App:            s.App,
		ValidateSchema: s.ValidateSchema,
	}

	params := append(openapi3.Parameters{}, item.Parameters...)
	params = append(params, op.Parameters...)
	for _, ref := range params {
		param := ref.Value
		if param == nil || param.Schema == nil || param.Schema.Value == nil {
			continue
		}
		switch param.In {
		case openapi3.ParameterInPath:
			endpoint.PathParameters = addProperty(endpoint.PathParameters, param.Name, param.Schema.Value, true)
		case openapi3.ParameterInQuery:
			endpoint.Query = addProperty(endpoint.Query, param.Name, param.Schema.Value, param.Required)
		case openapi3.ParameterInHeader:
			endpoint.Headers = addProperty(endpoint.Headers, param.Name, param.Schema.Value, param.Required)
		case openapi3.ParameterInCookie:
			endpoint.Cookies = addProperty(endpoint.Cookies, param.Name, param.Schema.Value, param.Required)
		}
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		for contentType, media := range op.RequestBody.Value.Content {
			if media.Schema == nil || media.Schema.Value == nil {
				continue
			}
			switch {
			case strings.Contains(contentType, "json"):
				endpoint.Body = media.Schema.Value
			case strings.Contains(contentType, "form"):
				endpoint.FormData = media.Schema.Value
			}
		}
	}

	if op.Responses != nil {
		endpoint.Responses = make(map[string]*openapi3.Schema)
		for status, ref := range op.Responses.Map() {
			endpoint.DeclaredStatuses = append(endpoint.DeclaredStatuses, status)
			if ref.Value == nil {
				continue
			}
			for contentType, media := range ref.Value.Content {
				if strings.Contains(contentType, "json") && media.Schema != nil {
					endpoint.Responses[status] = media.Schema.Value
				}
			}
		}
		sort.Strings(endpoint.DeclaredStatuses)
	}

	return endpoint, nil
}

// addProperty folds one named parameter schema into a per-location object schema.
func addProperty(obj *openapi3.Schema, name string, value *openapi3.Schema, required bool) *openapi3.Schema {
	if obj == nil {
		obj = &openapi3.Schema{
			Type:       &openapi3.Types{openapi3.TypeObject},
			Properties: openapi3.Schemas{},
		}
	}
	obj.Properties[name] = openapi3.NewSchemaRef("", value)
	if required {
		obj.Required = append(obj.Required, name)
	}
	return obj
}
