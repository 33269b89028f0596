// Package restclient is the HTTP transport shared by the REST-based provider
// adapters. It turns every failure into a *errors.ProviderError.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
)

const maxBodyBytes = 1 << 20

// ErrorDecoder extracts the provider's own error code and message from a
// non-2xx body. ok is false when the body is not in the provider's format.
type ErrorDecoder func(body []byte) (code, message string, ok bool)

type Client struct {
	provider    string
	baseURL     string
	http        *http.Client
	header      http.Header
	decodeError ErrorDecoder
}

type Option func(*Client)

// WithTransport instruments rt with otelhttp and uses it for every call.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt == nil {
			rt = http.DefaultTransport
		}
		c.http = &http.Client{Transport: otelhttp.NewTransport(rt)}
	}
}

// WithHTTPClient uses hc as is. Used when the client already carries auth,
// as oauth2 clients do.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

func WithErrorDecoder(d ErrorDecoder) Option {
	return func(c *Client) { c.decodeError = d }
}

func New(provider, baseURL string, opts ...Option) *Client {
	c := &Client{
		provider:    provider,
		baseURL:     strings.TrimRight(baseURL, "/"),
		header:      make(http.Header),
		decodeError: decodeGenericError,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return c
}

// Request describes one call. At most one of Form and JSON is set.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	JSON   any
	Header http.Header
}

func (c *Client) Get(ctx context.Context, op, path string, query url.Values, out any) error {
	return c.Do(ctx, op, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) PostForm(ctx context.Context, op, path string, form url.Values, out any) error {
	return c.Do(ctx, op, Request{Method: http.MethodPost, Path: path, Form: form}, out)
}

func (c *Client) PostJSON(ctx context.Context, op, path string, body, out any) error {
	return c.Do(ctx, op, Request{Method: http.MethodPost, Path: path, JSON: body}, out)
}

// Do sends the request and decodes a 2xx JSON body into out (when non-nil).
//
//	transport failure, deadline, 408, 429, 5xx -> ErrProviderNetwork
//	401, 403                                   -> ErrProviderConfiguration
//	any other 4xx                              -> ErrProviderRejected
func (c *Client) Do(ctx context.Context, op string, r Request, out any) error {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return domainErrors.NewProviderError(c.provider, op, domainErrors.ErrProviderConfiguration, "build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domainErrors.NewNetworkError(c.provider, op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(op, resp.StatusCode, body)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domainErrors.NewProviderError(c.provider, op, domainErrors.ErrProviderNetwork, "malformed response body", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	target := c.baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.JSON != nil:
		raw, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range r.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) transportError(op string, err error) error {
	// A rejected token request means the credentials are wrong, not that
	// the provider is down.
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil {
		code := retrieve.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout {
			return domainErrors.NewProviderError(c.provider, op, domainErrors.ErrProviderConfiguration, "credentials rejected", err)
		}
	}
	return domainErrors.NewNetworkError(c.provider, op, err)
}

func (c *Client) statusError(op string, statusCode int, body []byte) error {
	code, message, ok := c.decodeError(body)
	if !ok {
		code = fmt.Sprintf("http_%d", statusCode)
		message = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e := domainErrors.NewProviderError(c.provider, op, domainErrors.ErrProviderConfiguration, message, nil)
		e.Code = code
		return e
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests || statusCode >= 500:
		e := domainErrors.NewProviderError(c.provider, op, domainErrors.ErrProviderNetwork, message, nil)
		e.Code = code
		return e
	default:
		return domainErrors.NewRejectionError(c.provider, op, code, message)
	}
}

// decodeGenericError understands {"code","message"} and
// {"error":{"code","message"}} bodies.
func decodeGenericError(body []byte) (string, string, bool) {
	var flat struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err != nil {
		return "", "", false
	}
	if flat.Error != nil && flat.Error.Message != "" {
		return flat.Error.Code, flat.Error.Message, true
	}
	if flat.Message != "" {
		return flat.Code, flat.Message, true
	}
	return "", "", false
}
