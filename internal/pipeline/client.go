package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultClientTimeout         = 30 * time.Second
	defaultDialTimeout           = 10 * time.Second
	defaultResponseHeaderTimeout = 15 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultMaxIdleConnsPerHost   = 16
)

// ClientOptions configures the outbound HTTP client
type ClientOptions struct {
	Timeout           time.Duration
	Headers           map[string]string
	RequestsPerSecond float64 // 0 disables the limiter
	Burst             int
}

// headerTransport fills in origin headers the request does not set, strips
// credentials and optionally paces requests.
type headerTransport struct {
	headers map[string]string
	limiter *rate.Limiter
	base    http.RoundTripper
}

// RoundTrip implements http.RoundTripper
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	out := req.Clone(req.Context())
	for k, v := range t.headers {
		if out.Header.Get(k) == "" {
			out.Header.Set(k, v)
		}
	}
	out.Header.Del("Cookie")
	out.Header.Del("Authorization")

	return t.base.RoundTrip(out)
}

// NewHTTPClient returns a client that sends the origin headers on every request
// and never carries cookies.
func NewHTTPClient(opts ClientOptions) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	dialTimeout := timeout
	if dialTimeout > defaultDialTimeout {
		dialTimeout = defaultDialTimeout
	}

	responseHeaderTimeout := timeout
	if responseHeaderTimeout > defaultResponseHeaderTimeout {
		responseHeaderTimeout = defaultResponseHeaderTimeout
	}

	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	transport := &headerTransport{headers: headers, base: base}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		transport.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	// No Jar: credentials are never stored or replayed
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// get fetches url and returns the body of a 2xx response. For any other
// status the body is discarded and the status is returned with a non-nil error.
func get(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}

	return body, resp.StatusCode, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled)
}
