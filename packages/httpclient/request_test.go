package httpclient

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/schemaprobe/packages/generator"
	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
)

func testCase(method string, overrides func(*schema.Case)) *schema.Case {
	c := &schema.Case{
		Endpoint: &schema.Endpoint{
			Path:    "/notes/{note_id}",
			Method:  method,
			BaseURL: "http://localhost:9000",
		},
		PathParameters: map[string]any{"note_id": 5},
	}
	if overrides != nil {
		overrides(c)
	}
	return c
}

func TestFromCase_URLAndQuery(t *testing.T) {
	c := testCase("GET", func(c *schema.Case) {
		c.Query = map[string]any{"limit": 10, "verbose": true}
	})

	req, err := FromCase(c)
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/notes/5", req.Path)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, "/notes/5", u.Path)
	assert.Equal(t, "10", u.Query().Get("limit"))
	assert.Equal(t, "true", u.Query().Get("verbose"))
}

func TestFromCase_NoBaseURLTargetsPath(t *testing.T) {
	c := testCase("GET", func(c *schema.Case) {
		c.Endpoint.BaseURL = ""
		c.Query = map[string]any{"limit": 3}
	})

	req, err := FromCase(c)
	require.NoError(t, err)

	assert.Equal(t, "/notes/5", req.Path)
	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Empty(t, u.Host)
	assert.Equal(t, "/notes/5", u.Path)
	assert.Equal(t, "3", u.Query().Get("limit"))
}

func TestFromCase_JSONBody(t *testing.T) {
	c := testCase("POST", func(c *schema.Case) {
		c.Body = map[string]any{"text": "hello"}
	})

	req, err := FromCase(c)
	require.NoError(t, err)

	assert.Equal(t, "application/json", req.ContentType)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &decoded))
	assert.Equal(t, "hello", decoded["text"])
}

func TestFromCase_RawBytesBody(t *testing.T) {
	c := testCase("POST", func(c *schema.Case) {
		c.Body = []byte{0x01, 0x02}
	})

	req, err := FromCase(c)
	require.NoError(t, err)

	assert.Equal(t, "application/octet-stream", req.ContentType)
	assert.Equal(t, []byte{0x01, 0x02}, req.Body)
}

func TestFromCase_URLEncodedForm(t *testing.T) {
	c := testCase("POST", func(c *schema.Case) {
		c.FormData = map[string]any{"name": "alice", "age": 30}
	})

	req, err := FromCase(c)
	require.NoError(t, err)

	assert.Equal(t, "application/x-www-form-urlencoded", req.ContentType)
	values, err := url.ParseQuery(string(req.Body))
	require.NoError(t, err)
	assert.Equal(t, "alice", values.Get("name"))
	assert.Equal(t, "30", values.Get("age"))
}

func TestFromCase_FormPairSequence(t *testing.T) {
	c := testCase("POST", func(c *schema.Case) {
		c.FormData = []generator.FormPair{
			{Name: "tag", Value: "a"},
			{Name: "tag", Value: "b"},
		}
	})

	req, err := FromCase(c)
	require.NoError(t, err)

	values, err := url.ParseQuery(string(req.Body))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, values["tag"])
}

func TestFromCase_MultipartWhenBodyHasBytes(t *testing.T) {
	c := testCase("POST", func(c *schema.Case) {
		c.Body = map[string]any{
			"file": []byte("content"),
			"name": "upload",
		}
	})

	req, err := FromCase(c)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(req.ContentType, "multipart/form-data"))
	body := string(req.Body)
	assert.Contains(t, body, `filename="file"`)
	assert.Contains(t, body, "content")
	assert.Contains(t, body, `name="name"`)
}

func TestFromCase_MultipartFormData(t *testing.T) {
	c := testCase("POST", func(c *schema.Case) {
		c.FormData = map[string]any{"file": []byte{0xff}}
	})

	req, err := FromCase(c)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(req.ContentType, "multipart/form-data"))
}

func TestFromCase_UnresolvedPathParameterFails(t *testing.T) {
	c := testCase("GET", func(c *schema.Case) {
		c.PathParameters = nil
	})

	_, err := FromCase(c)
	var invalid *schema.InvalidSchemaError
	assert.ErrorAs(t, err, &invalid)
}

func TestResponse_Helpers(t *testing.T) {
	resp := &Response{
		StatusCode: 503,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"error": "down"}`),
	}

	assert.True(t, resp.IsServerError())
	assert.True(t, resp.IsJSON())
	assert.Equal(t, "application/json", resp.Header("content-type"))

	decoded, err := resp.BodyJSON()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"error": "down"}, decoded)
}
