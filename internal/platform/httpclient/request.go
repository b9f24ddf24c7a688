package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"retryrelay/internal/shared"
	"retryrelay/pkg/retry"
)

// Request defaults.
const (
	DefaultAttemptTimeout = 10 * time.Second
	DefaultRetryInterval  = 1000 * time.Millisecond
	DefaultRetryTimeout   = 10000 * time.Millisecond
	DefaultCode           = "0"
)

var (
	// ErrResponseTooLarge indicates the response body exceeds the read limit.
	ErrResponseTooLarge = errors.New("http: response body too large")
	// ErrEmptyURL is returned when RequestConfig.URL is empty.
	ErrEmptyURL = errors.New("http: empty url")
)

// RetryOptions is the request level retry configuration. Zero interval and
// timeout fall back to DefaultRetryInterval and DefaultRetryTimeout.
type RetryOptions struct {
	RetryTimes        int
	RetryInterval     time.Duration
	Timeout           time.Duration
	CheckResolve      func(resp *Response, rd retry.RuntimeData) retry.Verdict
	ResolveLastResult bool
	// OnRetry is called after each failed attempt that will be retried
	OnRetry func(attempt int, err error, delay time.Duration)
}

// RequestConfig describes one logical request.
type RequestConfig struct {
	URL     string
	Method  string
	Headers map[string]string
	// Data is sent as query parameters for GET and as a JSON body otherwise
	Data any
	// Timeout limits a single attempt (default DefaultAttemptTimeout)
	Timeout time.Duration
	// Code is the envelope code that marks success (default DefaultCode)
	Code string
	// UseRawData returns the whole envelope without checking its code
	UseRawData bool
	// UseRawResponse returns the body of any 2xx response without decoding it
	UseRawResponse bool
	// WithTimestamp adds a "t" parameter with the current unix milliseconds
	// unless Data already has one
	WithTimestamp bool
	Retry         *RetryOptions
}

// Envelope is the JSON body shape {code, message, data} returned by upstreams.
type Envelope struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message,omitempty"`
	Msg     string          `json:"msg,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// CodeString returns the code as text whether it was encoded as a string or a number.
func (e Envelope) CodeString() string {
	raw := bytes.TrimSpace(e.Code)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Text returns message or msg, whichever is set.
func (e Envelope) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Msg
}

// Response is a successful attempt.
type Response struct {
	Status int
	Header stdhttp.Header
	// Body is the raw response body
	Body []byte
	// Data is the payload selected by the request mode: the envelope data,
	// the whole envelope with UseRawData, or the body with UseRawResponse
	Data json.RawMessage
}

// Payload returns Data for JSON encoding: valid JSON as is, anything else as
// a string and nil when there is no data.
func (r *Response) Payload() any {
	if len(r.Data) == 0 {
		return nil
	}
	if json.Valid(r.Data) {
		return r.Data
	}
	return string(r.Data)
}

// StatusError describes an attempt rejected because of its HTTP status or
// envelope code.
type StatusError struct {
	Method  string
	URL     string
	Status  int
	Code    string
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	if e.Status != stdhttp.StatusOK {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Status)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s %s: unexpected code %q: %s", e.Method, e.URL, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: unexpected code %q", e.Method, e.URL, e.Code)
}

// UserMessage returns the upstream message, if any.
func (e *StatusError) UserMessage() string {
	return e.Message
}

// Result is the decoded payload of a request together with the HTTP status.
type Result[T any] struct {
	Status int
	Data   T
}

// Request performs cfg through the retry orchestrator. Each attempt is one
// HTTP round trip and fails on transport errors, non-success statuses and
// unexpected envelope codes.
func (c *Client) Request(ctx context.Context, cfg RequestConfig) (*Response, error) {
	cfg = c.withDefaults(cfg)
	target, err := c.resolve(cfg.URL)
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindValidation)
	}
	data := cfg.Data
	if cfg.WithTimestamp {
		data = withTimestamp(data, c.now())
	}
	// input errors are final; only the round trip below is retried
	enc, err := encode(cfg.Method, target, data)
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindValidation)
	}
	name := cfg.Method + " " + c.redactURL(target)

	attempt := func(ctx context.Context) (*Response, error) {
		resp, err := c.attempt(ctx, cfg, target, enc)
		if err != nil {
			c.log.Warn("fetch failed", slog.String("request", name), slog.Any("params", data), slog.Any("error", err))
			return nil, err
		}
		return resp, nil
	}

	wrapped, err := retry.Wrap(name, attempt, c.policy(cfg.Retry))
	if err != nil {
		return nil, err
	}
	return wrapped(ctx)
}

func (c *Client) withDefaults(cfg RequestConfig) RequestConfig {
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.Method == "" {
		cfg.Method = stdhttp.MethodGet
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAttemptTimeout
	}
	if cfg.Code == "" {
		cfg.Code = DefaultCode
	}
	return cfg
}

func (c *Client) policy(o *RetryOptions) retry.Policy[*Response] {
	p := retry.Policy[*Response]{
		RetryInterval: DefaultRetryInterval,
		Timeout:       DefaultRetryTimeout,
	}
	if o == nil {
		return p
	}
	p.RetryLimit = o.RetryTimes
	if o.RetryInterval > 0 {
		p.RetryInterval = o.RetryInterval
	}
	if o.Timeout > 0 {
		p.Timeout = o.Timeout
	}
	p.CheckResolve = o.CheckResolve
	p.ResolveWithLastResult = o.ResolveLastResult
	p.OnRetry = o.OnRetry
	return p
}

func (c *Client) resolve(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, ErrEmptyURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.IsAbs() || c.baseURL == "" {
		return u, nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(&url.URL{Path: strings.TrimLeft(u.Path, "/"), RawQuery: u.RawQuery}), nil
}

func (c *Client) attempt(ctx context.Context, cfg RequestConfig, target *url.URL, enc encoded) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := c.newRequest(ctx, cfg, enc)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	body, err := c.readBody(resp)
	if err != nil {
		return nil, err
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}
	u := c.redactURL(target)
	if cfg.UseRawResponse {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, statusError(cfg.Method, u, resp.StatusCode, "", "", body)
		}
		out.Data = body
		return out, nil
	}

	var env Envelope
	if len(bytes.TrimSpace(body)) > 0 {
		// non-JSON bodies are reported through the status check below
		_ = json.Unmarshal(body, &env)
	}
	if resp.StatusCode != stdhttp.StatusOK {
		return nil, statusError(cfg.Method, u, resp.StatusCode, "", env.Text(), body)
	}
	if cfg.UseRawData {
		out.Data = body
		return out, nil
	}
	if code := env.CodeString(); code != cfg.Code {
		return nil, statusError(cfg.Method, u, resp.StatusCode, code, env.Text(), body)
	}
	out.Data = env.Data
	return out, nil
}

// encoded is the wire form of a request, built once and replayed by every attempt.
type encoded struct {
	url  string
	body []byte
}

func encode(method string, target *url.URL, data any) (encoded, error) {
	u := *target
	if method == stdhttp.MethodGet {
		q, err := queryOf(u.Query(), data)
		if err != nil {
			return encoded{}, err
		}
		u.RawQuery = q.Encode()
		return encoded{url: u.String()}, nil
	}
	if data == nil {
		return encoded{url: u.String()}, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return encoded{}, err
	}
	return encoded{url: u.String(), body: b}, nil
}

func (c *Client) newRequest(ctx context.Context, cfg RequestConfig, enc encoded) (*stdhttp.Request, error) {
	var body io.Reader
	if enc.body != nil {
		body = bytes.NewReader(enc.body)
	}
	req, err := stdhttp.NewRequestWithContext(ctx, cfg.Method, enc.url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func statusError(method, u string, status int, code, msg string, body []byte) error {
	err := &StatusError{Method: method, URL: u, Status: status, Code: code, Message: msg, Body: body}
	if status == stdhttp.StatusNotFound {
		return shared.MarkKind(err, shared.KindNotFound)
	}
	return shared.MarkKind(err, shared.KindDependencyFailure)
}

// withTimestamp merges {"t": now} into data. Maps are copied, nil becomes a
// new map and any other value is left untouched.
func withTimestamp(data any, now time.Time) any {
	ts := now.UnixMilli()
	switch d := data.(type) {
	case nil:
		return map[string]any{"t": ts}
	case map[string]any:
		if _, ok := d["t"]; ok {
			return d
		}
		out := make(map[string]any, len(d)+1)
		for k, v := range d {
			out[k] = v
		}
		out["t"] = ts
		return out
	case url.Values:
		if d.Has("t") {
			return d
		}
		out := make(url.Values, len(d)+1)
		for k, v := range d {
			out[k] = append([]string(nil), v...)
		}
		out.Set("t", strconv.FormatInt(ts, 10))
		return out
	default:
		return data
	}
}

// queryOf adds data to q. Supported data types are url.Values, maps with
// string keys and structs that encode to a JSON object.
func queryOf(q url.Values, data any) (url.Values, error) {
	switch d := data.(type) {
	case nil:
		return q, nil
	case url.Values:
		for k, v := range d {
			for _, s := range v {
				q.Add(k, s)
			}
		}
		return q, nil
	case map[string]string:
		for k, v := range d {
			q.Set(k, v)
		}
		return q, nil
	case map[string]any:
		for k, v := range d {
			q.Set(k, fmt.Sprint(v))
		}
		return q, nil
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("http: query data must encode to an object: %w", err)
		}
		return queryOf(q, m)
	}
}

// Fetch performs cfg and decodes the selected payload into T.
func Fetch[T any](ctx context.Context, c *Client, cfg RequestConfig) (Result[T], error) {
	var res Result[T]
	resp, err := c.Request(ctx, cfg)
	if err != nil {
		return res, err
	}
	res.Status = resp.Status
	if len(resp.Data) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(resp.Data, &res.Data); err != nil {
		return res, fmt.Errorf("http: decode %s %s: %w", cfg.Method, cfg.URL, err)
	}
	return res, nil
}

// Get is Fetch with the GET method.
func Get[T any](ctx context.Context, c *Client, cfg RequestConfig) (Result[T], error) {
	cfg.Method = stdhttp.MethodGet
	return Fetch[T](ctx, c, cfg)
}

// Post is Fetch with the POST method.
func Post[T any](ctx context.Context, c *Client, cfg RequestConfig) (Result[T], error) {
	cfg.Method = stdhttp.MethodPost
	return Fetch[T](ctx, c, cfg)
}

// Put is Fetch with the PUT method.
func Put[T any](ctx context.Context, c *Client, cfg RequestConfig) (Result[T], error) {
	cfg.Method = stdhttp.MethodPut
	return Fetch[T](ctx, c, cfg)
}

// Delete is Fetch with the DELETE method.
func Delete[T any](ctx context.Context, c *Client, cfg RequestConfig) (Result[T], error) {
	cfg.Method = stdhttp.MethodDelete
	return Fetch[T](ctx, c, cfg)
}
