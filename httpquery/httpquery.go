// Package httpquery provides a BaseQuery that performs HTTP requests
// with resty. Endpoint definitions carry the method and path through
// extra options; prepare hooks can take full control by returning a
// Request directly. Response bodies decode into argval values so
// results flow through the cache like any other data.
package httpquery

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"resty.dev/v3"

	"github.com/quiverlabs/quiver"
	"github.com/quiverlabs/quiver/argval"
)

// Config configures the underlying HTTP client.
type Config struct {
	// BaseURL prefixes every request path.
	BaseURL string

	// Timeout bounds each request. Zero means no client-side timeout;
	// the dispatch context still applies.
	Timeout time.Duration

	// Header holds static headers sent with every request.
	Header map[string]string

	// AuthToken, when set, is sent as a bearer token.
	AuthToken string

	// ValidateStatus decides which status codes settle as fulfilled.
	// Nil accepts 2xx.
	ValidateStatus func(code int) bool
}

// Query is an HTTP-backed base query. Pass the Run method value to
// quiver.New:
//
//	hq := httpquery.New(httpquery.Config{BaseURL: "https://api.example.com"})
//	defer hq.Close()
//	client := quiver.New(hq.Run)
type Query struct {
	rc       *resty.Client
	validate func(code int) bool
}

// New builds a Query from the config.
func New(cfg Config) *Query {
	rc := resty.New()
	if cfg.BaseURL != "" {
		rc.SetBaseURL(cfg.BaseURL)
	}
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	for k, v := range cfg.Header {
		rc.SetHeader(k, v)
	}
	if cfg.AuthToken != "" {
		rc.SetAuthToken(cfg.AuthToken)
	}

	validate := cfg.ValidateStatus
	if validate == nil {
		validate = func(code int) bool { return code >= 200 && code <= 299 }
	}

	return &Query{rc: rc, validate: validate}
}

// Close releases the HTTP client's resources.
func (q *Query) Close() error {
	return q.rc.Close()
}

// Run implements the base query. The request is derived from the
// prepared input and the endpoint's extra options, executed under the
// dispatch context, and the JSON response body is decoded into an
// argval value. Meta carries the response status code under "status".
func (q *Query) Run(qctx quiver.QueryContext, input any, extra quiver.ExtraOptions) quiver.Result {
	req, err := buildRequest(input, extra)
	if err != nil {
		return quiver.Result{Err: err}
	}

	r := q.rc.R().
		SetContext(qctx.Context).
		SetDoNotParseResponse(true)
	for k, v := range req.Header {
		r.SetHeader(k, v)
	}
	for k, v := range req.Query {
		r.SetQueryParam(k, v)
	}
	if req.Body != nil {
		body, err := argval.MarshalValue(req.Body)
		if err != nil {
			return quiver.Result{Err: fmt.Errorf("encode request body: %w", err)}
		}
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(body)
	}

	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		return quiver.Result{Err: err}
	}
	defer resp.RawResponse.Body.Close()

	body, err := io.ReadAll(resp.RawResponse.Body)
	if err != nil {
		return quiver.Result{Err: fmt.Errorf("read response body: %w", err)}
	}

	meta := map[string]any{"status": resp.StatusCode()}

	if !q.validate(resp.StatusCode()) {
		return quiver.Result{
			Err:  &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status(), Body: body},
			Meta: meta,
		}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return quiver.Result{Data: argval.Null{}, Meta: meta}
	}

	data, err := argval.FromJSON(body)
	if err != nil {
		return quiver.Result{Err: fmt.Errorf("decode response body: %w", err), Meta: meta}
	}

	return quiver.Result{Data: data, Meta: meta}
}

// StatusError reports a response whose status failed validation. The
// engine wraps it in a TransportError; unwrap with errors.As to read
// the code and body.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}
