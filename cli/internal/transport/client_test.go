package transport

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONSendsFixedHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/config", r.URL.Path)
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "http://"+r.Host+"/api/", r.Header.Get("Referer"))
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.Write([]byte(`{"key":"k","salt":"s"}`))
	}))
	defer server.Close()

	c, err := New(server.URL + "/api/")
	require.NoError(t, err)

	resp, err := c.GetJSON(context.Background(), "/config")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "k", resp.Body.Get("key").String())
	assert.Equal(t, "s", resp.Body.Get("salt").String())
}

func TestPostJSON(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"struct", struct {
			Login string `json:"login"`
		}{Login: "abc"}},
		{"raw bytes", []byte(`{"login":"abc"}`)},
		{"raw message", json.RawMessage(`{"login":"abc"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json;charset=utf-8", r.Header.Get("Content-Type"))

				var got map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, "abc", got["login"])
				w.Write([]byte(`{"result":"OK"}`))
			}))
			defer server.Close()

			c, err := New(server.URL)
			require.NoError(t, err)

			resp, err := c.PostJSON(context.Background(), "/login", tt.body)
			require.NoError(t, err)
			assert.Equal(t, "OK", resp.Body.Get("result").String())
		})
	}
}

func TestCookiesPersistAcrossCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123", Path: "/"})
		w.Write([]byte(`{"result":"OK"}`))
	})
	mux.HandleFunc("/usage", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil || cookie.Value != "abc123" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"NOT_LOGGED_IN"}`))
			return
		}
		w.Write([]byte(`{"activePackage":null}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	_, err = c.GetJSON(context.Background(), "/usage")
	require.Error(t, err)

	_, err = c.PostJSON(context.Background(), "/login", map[string]string{})
	require.NoError(t, err)

	resp, err := c.GetJSON(context.Background(), "/usage")
	require.NoError(t, err)
	assert.True(t, resp.Body.Get("activePackage").Exists())
}

func TestServerTime(t *testing.T) {
	date := time.Date(2017, time.January, 2, 3, 36, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", date.Format(http.TimeFormat))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	resp, err := c.GetJSON(context.Background(), "/usage")
	require.NoError(t, err)

	got, ok := resp.ServerTime()
	require.True(t, ok)
	assert.True(t, date.Equal(got))
	assert.False(t, resp.ReceivedAt.IsZero())

	resp.Header.Set("Date", "yesterday")
	_, ok = resp.ServerTime()
	assert.False(t, ok)
}

func TestHTTPError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantJSON bool
	}{
		{"json body", http.StatusUnauthorized, `{"error":"INVALID_CREDENTIALS"}`, true},
		{"text body", http.StatusBadGateway, "bad gateway", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, err := New(server.URL)
			require.NoError(t, err)

			_, err = c.PostJSON(context.Background(), "/login", map[string]string{"login": "x"})
			require.Error(t, err)

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.body, httpErr.Raw)
			assert.Equal(t, tt.wantJSON, httpErr.Body.IsObject())
			assert.Contains(t, err.Error(), "unexpected status")
		})
	}
}

func TestInvalidJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	_, err = c.GetJSON(context.Background(), "/config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestRequestInterval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, err := New(server.URL, WithRequestInterval(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.GetJSON(context.Background(), "/")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestProbeTLS(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// The test server's certificate is self-signed, so a default client rejects it
	c, err := New(server.URL)
	require.NoError(t, err)
	assert.NoError(t, c.ProbeTLS(context.Background(), server.URL))

	// A client trusting the test certificate accepts it, which the probe reports
	trusting, err := New(server.URL, WithHTTPClient(server.Client()))
	require.NoError(t, err)
	assert.Error(t, trusting.ProbeTLS(context.Background(), server.URL))
}

func TestRootCAsSurviveHTTPClientOption(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	pool := x509.NewCertPool()
	pool.AddCert(server.Certificate())

	for name, opts := range map[string][]Option{
		"pool first":   {WithRootCAs(pool), WithHTTPClient(&http.Client{})},
		"pool last":    {WithHTTPClient(&http.Client{}), WithRootCAs(pool)},
		"pool only":    {WithRootCAs(pool)},
		"with timeout": {WithRootCAs(pool), WithTimeout(5 * time.Second)},
	} {
		t.Run(name, func(t *testing.T) {
			c, err := New(server.URL, opts...)
			require.NoError(t, err)

			resp, err := c.GetJSON(context.Background(), "/")
			require.NoError(t, err)
			assert.True(t, resp.Body.Get("ok").Bool())

			transport, ok := c.httpClient.Transport.(*http.Transport)
			require.True(t, ok)
			assert.NotNil(t, transport.Proxy, "keeps the default transport's settings")
			assert.NotSame(t, http.DefaultTransport, transport)
		})
	}
}
