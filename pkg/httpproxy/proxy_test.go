package httpproxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	events []any
}

func (r *recordingSender) SendEvent(event any) {
	r.events = append(r.events, event)
}

func TestHealthIsServedLocally(t *testing.T) {
	p, err := New("https://api.pennsieve.io", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForwardsMethodPathQueryHeadersAndBody(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotUA, gotConnection, gotHost string
	var gotBody []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		gotConnection = r.Header.Get("Connection")
		gotHost = r.Host
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	sender := &recordingSender{}
	p, err := New(upstream.URL, sender)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/datasets/N:dataset:1?x=1", nil)
	req.Body = io.NopCloser(strings.NewReader("payload"))
	req.Header.Set("Connection", "keep-alive")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/datasets/N:dataset:1", gotPath)
	assert.Equal(t, "x=1", gotQuery)
	assert.Equal(t, "payload", string(gotBody))
	assert.Empty(t, gotConnection, "Connection header must not be forwarded")
	assert.NotEmpty(t, gotUA)
	assert.Contains(t, gotUA, "agent/")
	assert.NotEmpty(t, gotHost)

	require.Len(t, sender.events, 1)
}

func TestOverrideHeaderRedirectsDestination(t *testing.T) {
	var hitOverride bool
	override := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitOverride = true
		w.WriteHeader(http.StatusOK)
	}))
	defer override.Close()

	// Default upstream deliberately points nowhere useful; the override
	// header must redirect this one request away from it.
	p, err := New("http://127.0.0.1:0", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Header.Set(overrideHeader, override.URL)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	assert.True(t, hitOverride, "request should have been routed to the override host")
	assert.Equal(t, http.StatusOK, rec.Code)
}
