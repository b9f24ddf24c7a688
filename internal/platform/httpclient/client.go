package httpclient

import (
	"context"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"
)

// Client sends single HTTP attempts with logging. Request layers the retry
// orchestrator on top of it.
type Client struct {
	hc          *stdhttp.Client
	log         *slog.Logger
	baseURL     string
	headers     map[string]string
	urlRedactor func(*url.URL) string
	maxBody     int64
	now         func() time.Time
}

// Option configures Client.
type Option func(*Client)

// WithTimeout caps every attempt made by the client.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithBaseURL resolves relative request URLs against u.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHeaders adds default headers to each request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			if c.headers == nil {
				c.headers = make(map[string]string)
			}
			c.headers[k] = v
		}
	}
}

// WithoutHeaders removes default headers.
func WithoutHeaders(keys ...string) Option {
	return func(c *Client) {
		for _, k := range keys {
			delete(c.headers, k)
		}
	}
}

// WithURLRedactor sets URL redactor for logs and errors.
func WithURLRedactor(f func(*url.URL) string) Option {
	return func(c *Client) { c.urlRedactor = f }
}

// StripQuery is a URL redactor that drops userinfo, query and fragment, which
// may carry credentials.
func StripQuery(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	c.ForceQuery = false
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// WithTransport sets custom transport.
func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// WithMaxResponseBody limits the number of body bytes read per attempt (0 disables limit).
func WithMaxResponseBody(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// New creates configured Client.
func New(opts ...Option) *Client {
	tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
	tr.MaxIdleConns = 100
	tr.MaxConnsPerHost = 100
	tr.MaxIdleConnsPerHost = 100
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second

	c := &Client{
		hc: &stdhttp.Client{
			Timeout:   30 * time.Second,
			Transport: tr,
		},
		log:     slog.Default(),
		maxBody: 8 << 20,
		headers: map[string]string{"Accept": "application/json"},
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// redactURL returns redacted URL string.
func (c *Client) redactURL(u *url.URL) string {
	if c.urlRedactor != nil {
		return c.urlRedactor(u)
	}
	return u.Redacted()
}

// drainAndClose drains up to 512KB from body and closes it.
func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, b, 512<<10)
	_ = b.Close()
}

// Do sends one HTTP request with default headers and logging. It never retries.
func (c *Client) Do(ctx context.Context, req *stdhttp.Request) (*stdhttp.Response, error) {
	r := req.Clone(ctx)
	for k, v := range c.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	u := c.redactURL(r.URL)
	st := time.Now()
	resp, err := c.hc.Do(r)
	dur := time.Since(st)
	if err != nil {
		c.log.Debug("http request error", slog.String("method", r.Method), slog.String("url", u), slog.Duration("dur", dur), slog.Any("error", err))
		return nil, err
	}
	c.log.Debug("http request", slog.String("method", r.Method), slog.String("url", u), slog.Int("status", resp.StatusCode), slog.Duration("dur", dur))
	return resp, nil
}

// readBody reads the response body up to the configured limit and closes it.
func (c *Client) readBody(resp *stdhttp.Response) ([]byte, error) {
	defer drainAndClose(resp.Body)
	if c.maxBody <= 0 {
		return io.ReadAll(resp.Body)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}
