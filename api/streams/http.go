// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package streams

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/juju/errors"
	jujuhttp "github.com/juju/http/v2"
	"gopkg.in/httprequest.v1"
)

// MIME represents a MIME type for identifying requests and response bodies.
type MIME = string

const (
	// JSON represents the MIME type for JSON request and response types.
	JSON MIME = "application/json"
)

// Logger describes the logging methods this package depends on.
type Logger interface {
	IsTraceEnabled() bool
	Errorf(string, ...interface{})
	Debugf(string, ...interface{})
	Tracef(string, ...interface{})
}

// Transport defines a type for making the actual request.
type Transport interface {
	// Do performs the *http.Request and returns a *http.Response or an
	// error if it fails to construct the transport.
	Do(*http.Request) (*http.Response, error)
}

// DefaultHTTPTransport creates a new HTTPTransport.
func DefaultHTTPTransport(logger Logger) Transport {
	return jujuhttp.NewClient(
		jujuhttp.WithRequestRecorder(loggingRequestRecorder{logger: logger}),
		jujuhttp.WithLogger(logger),
	)
}

type loggingRequestRecorder struct {
	logger Logger
}

// Record an outgoing request which produced an http.Response.
func (r loggingRequestRecorder) Record(method string, url *url.URL, res *http.Response, rtt time.Duration) {
	r.logger.Tracef("%s %s -> %s in %s", method, url, res.Status, rtt)
}

// RecordError an outgoing request which returned back an error.
func (r loggingRequestRecorder) RecordError(method string, url *url.URL, err error) {
	r.logger.Debugf("%s %s failed: %s", method, url, err)
}

// APIError holds a non-success response from the replication-config
// API. The status code is preserved so callers can distinguish server
// trouble from rejected input, but this package never acts on it.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// AsAPIError returns the *APIError in err's chain, if there is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// APIRequester wraps a transport so that non-success responses come
// back as a *APIError rather than leaking to response parsing.
type APIRequester struct {
	transport Transport
	logger    Logger
}

// NewAPIRequester creates a new requester for making requests to a server.
func NewAPIRequester(transport Transport, logger Logger) *APIRequester {
	return &APIRequester{
		transport: transport,
		logger:    logger,
	}
}

// Do performs the *http.Request and returns a *http.Response or an error.
func (t *APIRequester) Do(req *http.Request) (*http.Response, error) {
	if t.logger.IsTraceEnabled() {
		if data, err := httputil.DumpRequest(req, true); err == nil {
			t.logger.Tracef("%s request %s", req.Method, data)
		} else {
			t.logger.Tracef("%s request DumpRequest error %s", req.Method, err.Error())
		}
	}

	resp, err := t.transport.Do(req)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if t.logger.IsTraceEnabled() {
		if data, err := httputil.DumpResponse(resp, true); err == nil {
			t.logger.Tracef("%s response %s", req.Method, data)
		} else {
			t.logger.Tracef("%s response DumpResponse error %s", req.Method, err.Error())
		}
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode <= http.StatusNoContent {
		return resp, nil
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Message:    readErrorMessage(resp),
	}
}

// readErrorMessage extracts a human-readable message from an error
// response body. The API reports errors as {"error": "..."}; anything
// else is carried as a truncated plain-text snippet.
func readErrorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil || len(body) == 0 {
		return ""
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), JSON) {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// RESTClient defines a type for making requests to a server.
type RESTClient interface {
	// Get performs GET requests to a given Path.
	Get(context.Context, Path, interface{}) error
	// Patch performs PATCH requests to a given Path with a JSON body.
	Patch(context.Context, Path, interface{}, interface{}) error
}

// HTTPRESTClient represents a RESTClient that expects to interact with
// an HTTP transport.
type HTTPRESTClient struct {
	transport Transport
}

// NewHTTPRESTClient creates a new HTTPRESTClient.
func NewHTTPRESTClient(transport Transport) *HTTPRESTClient {
	return &HTTPRESTClient{
		transport: transport,
	}
}

// Get makes a GET request to the given path, parsing the result as JSON
// into the given result value, which should be a pointer to the
// expected data, but may be nil if no result is desired.
func (c *HTTPRESTClient) Get(ctx context.Context, path Path, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path.String(), nil)
	if err != nil {
		return errors.Annotate(err, "can not make new request")
	}
	req.Header.Set("Accept", JSON)

	resp, err := c.transport.Do(req)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := httprequest.UnmarshalJSONResponse(resp, result); err != nil {
		return errors.Annotate(err, "parsing response")
	}
	return nil
}

// Patch makes a PATCH request to the given path with a JSON-encoded
// body, parsing the result as JSON into the given result value.
func (c *HTTPRESTClient) Patch(ctx context.Context, path Path, body, result interface{}) error {
	buffer := new(bytes.Buffer)
	if err := json.NewEncoder(buffer).Encode(body); err != nil {
		return errors.Trace(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, path.String(), buffer)
	if err != nil {
		return errors.Annotate(err, "can not make new request")
	}
	req.Header.Set("Accept", JSON)
	req.Header.Set("Content-Type", JSON)

	resp, err := c.transport.Do(req)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := httprequest.UnmarshalJSONResponse(resp, result); err != nil {
		return errors.Annotate(err, "parsing response")
	}
	return nil
}
