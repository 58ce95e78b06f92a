package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SessionHeadersWinOverCaseHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithDefaultHeaders(map[string]string{"X-Token": "session"}))
	_, err := client.Do(context.Background(), &Request{
		Method:  "GET",
		URL:     server.URL + "/",
		Headers: map[string]string{"X-Token": "generated", "X-Case": "kept"},
	})
	require.NoError(t, err)

	assert.Equal(t, "session", got.Get("X-Token"))
	assert.Equal(t, "kept", got.Get("X-Case"))
	assert.Equal(t, UserAgent, got.Get("User-Agent"))
}

func TestClient_SendsCookiesAndBasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil || cookie.Value != "abc" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "bob" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithBasicAuth("bob", "secret"))
	resp, err := client.Do(context.Background(), &Request{
		Method:  "GET",
		URL:     server.URL + "/",
		Cookies: map[string]string{"session": "abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_DigestAuthFlow(t *testing.T) {
	const realm = "test"
	const nonce = "abc123"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			w.Header().Set("WWW-Authenticate",
				fmt.Sprintf(`Digest realm="%s", nonce="%s", qop="auth"`, realm, nonce))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// Just verify the second request carries a digest response.
		assert.Contains(t, auth, `username="carol"`)
		assert.Contains(t, auth, `nonce="abc123"`)
		assert.Contains(t, auth, "response=")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithDigestAuth("carol", "secret"))
	resp, err := client.Do(context.Background(), &Request{Method: "GET", URL: server.URL + "/protected"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_ResponseCapturesBodyAndDuration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 1}`)
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Do(context.Background(), &Request{Method: "POST", URL: server.URL + "/notes"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"id": 1}`, resp.BodyString())
	assert.True(t, resp.IsJSON())
	assert.Greater(t, resp.Duration.Nanoseconds(), int64(0))
}

func TestParseChallenge(t *testing.T) {
	params := parseChallenge(`Digest realm="api", nonce="xyz", qop="auth", opaque="o1"`)

	assert.Equal(t, "api", params["realm"])
	assert.Equal(t, "xyz", params["nonce"])
	assert.Equal(t, "auth", params["qop"])
	assert.Equal(t, "o1", params["opaque"])
}

func TestDigestAuthorization_NoQop(t *testing.T) {
	header, err := digestAuthorization("u", "p", "GET", "http://host/path", `Digest realm="r", nonce="n"`)
	require.NoError(t, err)

	assert.Contains(t, header, `uri="/path"`)
	assert.NotContains(t, header, "qop=")
	assert.NotContains(t, header, "cnonce=")
}
