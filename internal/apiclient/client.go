package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

// DefaultBaseURL is the backend origin used when none is configured.
const DefaultBaseURL = "http://localhost:5001"

const maxErrorBody = 4 << 10

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

type Config struct {
	BaseURL string
	// HTTPClient is optional; a cookie jar is installed on it when it has none.
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// Client is the shared backend client: fixed base address, cookies replayed
// on every request, and request/response interceptor chains.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *logrus.Entry

	mu       sync.RWMutex
	requests []RequestInterceptor
	replies  []ResponseInterceptor
}

func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		base:     base,
		http:     hc,
		logger:   logger.WithField("component", "apiclient"),
		requests: []RequestInterceptor{PassThrough[*http.Request]()},
		replies:  []ResponseInterceptor{PassThrough[*http.Response]()},
	}, nil
}

// UseRequest appends a request interceptor.
func (c *Client) UseRequest(i RequestInterceptor) {
	c.mu.Lock()
	c.requests = append(c.requests, i)
	c.mu.Unlock()
}

// UseResponse appends a response interceptor.
func (c *Client) UseResponse(i ResponseInterceptor) {
	c.mu.Lock()
	c.replies = append(c.replies, i)
	c.mu.Unlock()
}

func (c *Client) BaseURL() string {
	return c.base.String()
}

// Cookies returns the credentials the client will send to the backend origin.
func (c *Client) Cookies() []*http.Cookie {
	return c.http.Jar.Cookies(c.base)
}

// Do issues a request against the base address. body is JSON encoded when
// non-nil. The caller owns the returned response body.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	target := c.base.ResolveReference(&url.URL{Path: path})

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	requests := append([]RequestInterceptor(nil), c.requests...)
	replies := append([]ResponseInterceptor(nil), c.replies...)
	c.mu.RUnlock()

	req, err = runChain(requests, req, nil)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if req == nil {
		return nil, fmt.Errorf("%s %s: request interceptor dropped the request", method, path)
	}

	resp, err := c.http.Do(req)
	if err == nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		err = statusError(req, resp)
	}

	resp, err = runChain(replies, resp, err)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		c.logger.WithError(err).Debugf("%s %s failed", method, path)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%s %s: response interceptor recovered without a response", method, path)
	}

	c.logger.Debugf("%s %s -> %d", method, path, resp.StatusCode)
	return resp, nil
}

// PostJSON posts body (nil means no body) and decodes the JSON reply into out
// when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.Do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// statusError records the start of the body and leaves resp.Body readable
// from the beginning, so a response interceptor that recovers hands the caller
// an intact reply. The body is closed once, by Do or by the caller.
func statusError(req *http.Request, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(snippet), resp.Body), resp.Body}
	return &StatusError{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}
