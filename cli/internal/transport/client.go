package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent with every request
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// Client talks JSON to one base URL and keeps the cookies the server sets
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	rootCAs    *x509.CertPool
	limiter    *rate.Limiter
}

// Option configures the Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is added
// if it has none.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRootCAs verifies server certificates against pool instead of the system
// roots. It applies to whichever HTTP client the other options settle on.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(client *Client) {
		client.rootCAs = pool
	}
}

// WithTimeout sets the HTTP client timeout. Zero means none.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = timeout
	}
}

// WithRequestInterval spaces consecutive requests at least interval apart
func WithRequestInterval(interval time.Duration) Option {
	return func(client *Client) {
		if interval <= 0 {
			client.limiter = nil
			return
		}
		client.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// New creates a client for baseURL with an empty cookie jar
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.rootCAs != nil {
		base, ok := c.httpClient.Transport.(*http.Transport)
		if !ok || base == nil {
			base = http.DefaultTransport.(*http.Transport)
		}
		t := base.Clone()
		if t.TLSClientConfig == nil {
			t.TLSClientConfig = &tls.Config{}
		}
		t.TLSClientConfig.RootCAs = c.rootCAs
		c.httpClient.Transport = t
	}

	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}

	return c, nil
}

// BaseURL returns the URL all paths are resolved against
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a decoded JSON response
type Response struct {
	Status     int
	Body       gjson.Result
	Header     http.Header
	ReceivedAt time.Time // Local clock
}

// ServerTime returns the instant in the response's Date header
func (r *Response) ServerTime() (time.Time, bool) {
	date := r.Header.Get("Date")
	if date == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// HTTPError is returned for non-2xx responses
type HTTPError struct {
	StatusCode int
	Body       gjson.Result // Type is Null unless the body was JSON
	Raw        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, strings.TrimSpace(e.Raw))
}

// GetJSON issues a GET request for path
func (c *Client) GetJSON(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// PostJSON posts body as JSON. []byte and json.RawMessage bodies are sent as is.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	var data []byte
	switch b := body.(type) {
	case []byte:
		data = b
	case json.RawMessage:
		data = b
	default:
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling payload: %w", err)
		}
	}
	return c.do(ctx, http.MethodPost, path, data)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json;charset=utf-8")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	received := time.Now()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", received.Sub(start)).
		Msg("transport: request done")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Raw: string(respBody)}
		if gjson.ValidBytes(respBody) {
			httpErr.Body = gjson.ParseBytes(respBody)
		}
		return nil, httpErr
	}

	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("%s %s: response is not valid JSON", method, path)
	}

	return &Response{
		Status:     resp.StatusCode,
		Body:       gjson.ParseBytes(respBody),
		Header:     resp.Header,
		ReceivedAt: received,
	}, nil
}

// ProbeTLS connects to url, a host known to serve a bad certificate.
// It returns nil when certificate verification rejects the handshake.
func (c *Client) ProbeTLS(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err == nil {
		resp.Body.Close()
		return fmt.Errorf("TLS verification accepted %s (status %d)", url, resp.StatusCode)
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalid          x509.CertificateInvalidError
		verification     *tls.CertificateVerificationError
	)
	switch {
	case errors.As(err, &verification), errors.As(err, &unknownAuthority),
		errors.As(err, &hostname), errors.As(err, &invalid):
		log.Debug().Err(err).Str("url", url).Msg("transport: bad certificate rejected")
		return nil
	}
	return fmt.Errorf("probing %s: %w", url, err)
}
