// Package rest is the JSON-over-HTTP client shared by the REST vector stores.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/wilhg/agentcore/pkg/errmodel"
	aotel "github.com/wilhg/agentcore/pkg/otel"
)

// Signer mutates a request before it is sent, e.g. to add a SigV4 signature.
// body is the exact payload, nil when there is none.
type Signer func(req *http.Request, body []byte) error

// Client issues JSON requests against a base URL.
type Client struct {
	// Store names the backend in errors.
	Store  string
	base   *url.URL
	HTTP   *http.Client
	Header http.Header
	Sign   Signer
}

// New parses baseURL. A URL without a scheme is treated as https.
func New(store, baseURL string) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, errmodel.Configuration("invalid_url", store+": invalid endpoint URL", map[string]any{"url": baseURL})
	}
	return &Client{Store: store, base: u, HTTP: aotel.HTTPClient(time.Minute), Header: http.Header{}}, nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string { return http.StatusText(e.Status) + ": " + e.Body }

// IsNotFound reports whether err carries a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// URL joins p onto the base path. p may carry a query string.
func (c *Client) URL(p string) string {
	u := *c.base
	rawQuery := ""
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p, rawQuery = p[:i], p[i+1:]
	}
	u.Path = path.Join("/", u.Path, p)
	u.RawQuery = rawQuery
	return u.String()
}

// JSON sends body encoded as JSON and decodes a JSON response into out when out is non-nil.
func (c *Client) JSON(ctx context.Context, method, p string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errmodel.System("encode_failed", c.Store+": cannot encode request", nil, err)
		}
		payload = b
	}
	return c.Do(ctx, method, p, "application/json", payload, out)
}

// Do sends a raw payload with the given content type.
func (c *Client) Do(ctx context.Context, method, p, contentType string, payload []byte, out any) error {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(p), rd)
	if err != nil {
		return errmodel.Configuration("invalid_url", c.Store+": cannot build request", map[string]any{"path": p})
	}
	for k, vs := range c.Header {
		req.Header[k] = vs
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.Sign != nil {
		if err := c.Sign(req, payload); err != nil {
			return errmodel.Configuration("sign_failed", c.Store+": cannot sign request: "+err.Error(), nil)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errmodel.Invocation("transport", c.Store+": request failed", map[string]any{"method": method, "path": p}, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errmodel.Invocation("transport", c.Store+": cannot read response", map[string]any{"method": method, "path": p}, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Status: resp.StatusCode, Body: string(data)}
		return errmodel.Invocation("http_status", c.Store+": "+method+" "+p+" => "+resp.Status,
			map[string]any{"status": resp.StatusCode, "body": se.Body}, se)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errmodel.Invocation("decode_failed", c.Store+": unexpected response body", map[string]any{"method": method, "path": p}, err)
	}
	return nil
}
