package httpclient

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcess_RoundTrip(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})

	transport := NewInProcess(handler)
	resp, err := transport.Do(context.Background(), &Request{
		Method:      "POST",
		Path:        "/echo",
		Body:        []byte(`{"x":1}`),
		ContentType: "application/json",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"x":1}`, resp.BodyString())
}

func TestInProcess_HeaderPrecedenceMatchesClient(t *testing.T) {
	var got http.Header
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	})

	transport := NewInProcess(handler, WithInProcessHeaders(map[string]string{"X-Token": "session"}))
	_, err := transport.Do(context.Background(), &Request{
		Method:  "GET",
		Path:    "/",
		Headers: map[string]string{"X-Token": "generated"},
	})
	require.NoError(t, err)
	assert.Equal(t, "session", got.Get("X-Token"))
}

func TestInProcess_BasicAuthAndCookies(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "u" || pass != "p" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if cookie, err := r.Cookie("sid"); err != nil || cookie.Value != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	transport := NewInProcess(handler, WithInProcessBasicAuth("u", "p"))
	resp, err := transport.Do(context.Background(), &Request{
		Method:  "GET",
		Path:    "/",
		Cookies: map[string]string{"sid": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
