package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"reflect"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/openclaw/missioncontrol/internal"
	"github.com/openclaw/missioncontrol/internal/logr"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultURL is the address of the Mission Control API when none is
	// configured.
	DefaultURL = "http://localhost:8000"

	// defaultErrorMessage is the error message used when a failed response
	// carries no body.
	defaultErrorMessage = "Request failed."

	userAgent = "missioncontrol-client"
)

type (
	// Client issues requests to the Mission Control API.
	Client struct {
		baseURL string
		headers http.Header
		http    *retryablehttp.Client
	}

	// ClientConfig provides configuration details to the API client.
	ClientConfig struct {
		// The URL of the Mission Control API.
		URL string
		// Headers that will be added to every request.
		Headers http.Header
		// Toggle retrying requests upon encountering transient errors.
		RetryRequests bool
		// Override default http transport
		Transport http.RoundTripper
		// Logger for logging an error upon retry
		Logger logr.Logger
		// Registerer, if non-nil, is used to register request metrics.
		Registerer prometheus.Registerer
	}

	// RequestOptions are the per-request parameters.
	RequestOptions struct {
		// Token is the bearer token. An empty token sends no Authorization
		// header.
		Token string
		// Method defaults to GET.
		Method string
		// Body is JSON encoded when non-nil.
		Body any
		// Headers are applied last, overriding any others.
		Headers http.Header
	}

	// RequestFailedError is returned when the API responds with a non-2xx
	// status.
	RequestFailedError struct {
		Status  int
		Message string
	}
)

func NewClient(config ClientConfig) (*Client, error) {
	// set defaults
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Headers == nil {
		config.Headers = make(http.Header)
	}
	if config.Transport == nil {
		config.Transport = DefaultTransport
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}
	config.Headers.Set("User-Agent", userAgent)

	if _, err := ParseURL(config.URL); err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}

	transport := config.Transport
	if config.Registerer != nil {
		instrumented, err := instrumentTransport(transport, config.Registerer)
		if err != nil {
			return nil, err
		}
		transport = instrumented
	}

	client := &Client{
		baseURL: strings.TrimRight(config.URL, "/"),
		headers: config.Headers,
	}
	client.http = &retryablehttp.Client{
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		HTTPClient:   &http.Client{Transport: transport},
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 30 * time.Second,
		RetryMax:     5,
	}
	if config.RetryRequests {
		// enable retries
		client.http.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
			retry, retryErr := retryablehttp.ErrorPropagatedRetryPolicy(ctx, resp, err)
			if retry {
				// The ErrorPropagatedRetryPolicy sometimes returns an error
				// explaining why it has decided to retry and if so then
				// report this error rather than the original error.
				if retryErr != nil {
					err = retryErr
				}
				// The http response is nil when there is a problem with the
				// request and there is no response, e.g. socket timeout.
				if resp != nil && resp.Request != nil {
					config.Logger.V(1).Info("retrying request", "error", err, "url", resp.Request.URL, "status", resp.StatusCode)
				} else {
					config.Logger.V(1).Info("retrying request", "error", err)
				}
			}
			return retry, retryErr
		}
	} else {
		// disable retries
		client.http.CheckRetry = func(_ context.Context, _ *http.Response, err error) (bool, error) {
			return false, err
		}
	}
	return client, nil
}

// URL returns the absolute URL for the given API path.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// Hostname returns the server host:port.
func (c *Client) Hostname() string {
	host, _ := internal.SanitizeHostname(c.baseURL)
	return host
}

// NewRequest creates an API request. The path is appended to the client's base
// URL as-is.
//
// If opts.Body is non-nil it is JSON encoded and the content type is set
// accordingly. An Authorization header is only set when opts.Token is
// non-empty.
func (c *Client) NewRequest(ctx context.Context, path string, opts RequestOptions) (*retryablehttp.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	// Create a request specific headers map.
	reqHeaders := make(http.Header)
	reqHeaders.Set("Accept", "application/json")

	var body any
	if hasBody(opts.Body) {
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request body: %w", err)
		}
		body = bytes.NewReader(b)
		reqHeaders.Set("Content-Type", "application/json")
	}
	if opts.Token != "" {
		reqHeaders.Set("Authorization", "Bearer "+opts.Token)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, err
	}

	// Set the default headers.
	maps.Copy(req.Header, c.headers)

	// Set the request specific headers.
	maps.Copy(req.Header, reqHeaders)

	// Set the caller's headers.
	maps.Copy(req.Header, opts.Headers)

	return req, nil
}

// Do sends an API request and decodes the JSON response into the value
// pointed to by v. A response with no content leaves v untouched.
//
// If v implements the io.Writer interface, the raw response body will be
// written to v, without attempting to first decode it.
//
// The provided ctx must be non-nil. If it is canceled or times out, ctx.Err()
// will be returned.
func (c *Client) Do(ctx context.Context, path string, opts RequestOptions, v any) error {
	req, err := c.NewRequest(ctx, path, opts)
	if err != nil {
		return err
	}

	// Execute the request and check the response.
	resp, err := c.http.Do(req)
	if err != nil && resp == nil {
		// If we got an error, and the context has been canceled,
		// the context's error is probably more useful.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return err
		}
	}
	// A response is preferred over any error reported alongside it, i.e. a
	// retry policy giving up on a 5xx.
	defer resp.Body.Close()

	// Basic response checking.
	if err := checkResponseCode(resp); err != nil {
		return err
	}

	// Return here if decoding the response isn't needed or possible.
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	// If v implements io.Writer, write the raw response body.
	if w, ok := v.(io.Writer); ok {
		_, err = io.Copy(w, resp.Body)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("unmarshalling response: %w", err)
	}
	return nil
}

// Request sends an API request and returns the decoded response. A response
// with no content returns the zero value of T, i.e. nil for pointer, slice
// and map types.
func Request[T any](ctx context.Context, c *Client, path string, opts RequestOptions) (T, error) {
	var v T
	if err := c.Do(ctx, path, opts, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func (e *RequestFailedError) Error() string {
	return e.Message
}

// Unwrap maps well-known statuses onto the generic errors, permitting
// errors.Is(err, internal.ErrUnauthorized) etc.
func (e *RequestFailedError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return internal.ErrUnauthorized
	case http.StatusForbidden:
		return internal.ErrAccessNotPermitted
	case http.StatusNotFound:
		return internal.ErrResourceNotFound
	case http.StatusConflict:
		return internal.ErrConflict
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return internal.ErrTimeout
	}
	return nil
}

// checkResponseCode returns a RequestFailedError for a non-2xx response,
// carrying the response body as its message.
func checkResponseCode(r *http.Response) error {
	if r.StatusCode >= 200 && r.StatusCode <= 299 {
		return nil
	}
	msg := defaultErrorMessage
	if b, err := io.ReadAll(r.Body); err == nil && len(b) > 0 {
		msg = string(b)
	}
	return &RequestFailedError{Status: r.StatusCode, Message: msg}
}

// hasBody reports whether v should be sent as a request body. Nil pointers,
// maps and slices are treated as absent.
func hasBody(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
