// Package transport provides the blocking HTTP client the test engines
// talk through. Callers depend on the Client interface so tests can
// inject scripted responses instead of real network calls.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout is the per-request ceiling applied when a Request
// carries no explicit timeout.
const DefaultTimeout = 30 * time.Second

// Request describes one HTTP call to perform.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    any // nil, string, []byte, or a JSON-encodable value
	Timeout time.Duration
}

// Response is the raw result of a performed Request.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client performs HTTP requests. Do blocks until a response arrives or
// the request timeout elapses.
type Client interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// ErrorKind classifies a request failure.
type ErrorKind string

const (
	ErrTimeout    ErrorKind = "timeout"
	ErrConnection ErrorKind = "connection"
	ErrOther      ErrorKind = "other"
)

// RequestError wraps a transport failure with its classification.
type RequestError struct {
	Kind ErrorKind
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s error: %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// HTTPClient is the real Client over net/http.
type HTTPClient struct {
	inner *http.Client
}

// NewHTTPClient creates a client. When verifyTLS is false, server
// certificates are not checked (self-signed test environments).
func NewHTTPClient(verifyTLS bool) *HTTPClient {
	tr := http.DefaultTransport
	if !verifyTLS {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		tr = t
	}
	return &HTTPClient{inner: &http.Client{Transport: tr}}
}

// Do performs the request. Failures are returned as *RequestError with
// timeout, connection and other kinds kept distinct so callers can
// report them separately. No retries are attempted.
func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, &RequestError{Kind: ErrOther, Err: err}
	}

	fullURL, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, &RequestError{Kind: ErrOther, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), fullURL, body)
	if err != nil {
		return nil, &RequestError{Kind: ErrOther, Err: err}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.inner.Do(httpReq)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}, nil
}

func encodeBody(v any) (io.Reader, string, error) {
	switch b := v.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func buildURL(raw string, query map[string]string) (string, error) {
	if len(query) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// classify maps a net/http error to a RequestError kind.
func classify(err error) *RequestError {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &RequestError{Kind: ErrTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestError{Kind: ErrTimeout, Err: err}
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return &RequestError{Kind: ErrConnection, Err: err}
	}
	return &RequestError{Kind: ErrOther, Err: err}
}
