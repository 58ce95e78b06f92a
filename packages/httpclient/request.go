package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/url"
	"sort"

	"github.com/abdul-hamid-achik/schemaprobe/packages/generator"
	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
)

// Request is a fully resolved outgoing request, ready for either the network
// client or the in-process transport.
type Request struct {
	Method      string
	URL         string
	Path        string
	Headers     map[string]string
	Cookies     map[string]string
	Body        []byte
	ContentType string
}

// FromCase converts a generated case into a transport request. Query
// parameters are encoded into the URL; the body is JSON unless the case
// carries form data or raw bytes.
func FromCase(c *schema.Case) (*Request, error) {
	path, err := c.FormattedPath()
	if err != nil {
		return nil, err
	}
	// Without a base URL the request targets the bare path. That is enough
	// for the in-process transport, which dispatches by path.
	target := path
	if c.BaseURL() != "" {
		target, err = c.URL()
		if err != nil {
			return nil, err
		}
	}

	req := &Request{
		Method:  c.Method(),
		URL:     target,
		Path:    path,
		Headers: make(map[string]string, len(c.Headers)),
		Cookies: c.Cookies,
	}
	for k, v := range c.Headers {
		req.Headers[k] = v
	}

	if len(c.Query) > 0 {
		u, err := url.Parse(req.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing case URL: %w", err)
		}
		q := u.Query()
		for k, v := range c.Query {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
		req.URL = u.String()
	}

	if err := encodeBody(req, c); err != nil {
		return nil, err
	}
	return req, nil
}

func encodeBody(req *Request, c *schema.Case) error {
	switch {
	case c.FormData != nil:
		return encodeForm(req, c.FormData)
	case c.Body == nil:
		return nil
	}

	if raw, ok := c.Body.([]byte); ok {
		req.Body = raw
		req.ContentType = "application/octet-stream"
		return nil
	}
	if schema.IsMultipart(c.Body) {
		if m, ok := c.Body.(map[string]any); ok {
			return encodeMultipart(req, m)
		}
	}

	data, err := json.Marshal(c.Body)
	if err != nil {
		return fmt.Errorf("encoding JSON body: %w", err)
	}
	req.Body = data
	req.ContentType = "application/json"
	return nil
}

func encodeForm(req *Request, form any) error {
	switch fields := form.(type) {
	case map[string]any:
		if schema.IsMultipart(fields) {
			return encodeMultipart(req, fields)
		}
		values := url.Values{}
		for name, value := range fields {
			values.Set(name, fmt.Sprintf("%v", value))
		}
		req.Body = []byte(values.Encode())
		req.ContentType = "application/x-www-form-urlencoded"
		return nil
	case []generator.FormPair:
		values := url.Values{}
		for _, pair := range fields {
			values.Add(pair.Name, fmt.Sprintf("%v", pair.Value))
		}
		req.Body = []byte(values.Encode())
		req.ContentType = "application/x-www-form-urlencoded"
		return nil
	default:
		return fmt.Errorf("unsupported form payload of type %T", form)
	}
}

func encodeMultipart(req *Request, fields map[string]any) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch value := fields[name].(type) {
		case []byte:
			part, err := writer.CreateFormFile(name, name)
			if err != nil {
				return err
			}
			if _, err := part.Write(value); err != nil {
				return err
			}
		default:
			if err := writer.WriteField(name, fmt.Sprintf("%v", value)); err != nil {
				return err
			}
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req.Body = body.Bytes()
	req.ContentType = writer.FormDataContentType()
	return nil
}
