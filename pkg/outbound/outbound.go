// Package outbound holds the HTTP plumbing shared by clients of sibling services.
package outbound

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout        = 3 * time.Second
	bodyReadLimit   int64 = 1 << 20
	errorSnippetMax       = 256
)

// NewHTTPClient returns a client with a bounded timeout whose transport
// propagates trace context and records client spans.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// JoinURL appends path segments to a base URL.
func JoinURL(base string, segments ...string) string {
	out := strings.TrimRight(strings.TrimSpace(base), "/")
	for _, seg := range segments {
		out += "/" + strings.Trim(seg, "/")
	}
	return out
}

// Envelope mirrors the {"data":...} / {"error":{...}} shape every service answers with.
type Envelope[T any] struct {
	Data  *T `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeEnvelope reads a bounded body into an Envelope.
func DecodeEnvelope[T any](resp *http.Response) (*Envelope[T], error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, bodyReadLimit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var env Envelope[T]
	if len(body) == 0 {
		return &env, nil
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode body (status %d): %s", resp.StatusCode, snippet(body))
	}
	return &env, nil
}

// StatusError describes an unexpected response status.
func StatusError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetMax))
	return fmt.Errorf("%s responded %d: %s", service, resp.StatusCode, snippet(body))
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorSnippetMax {
		s = s[:errorSnippetMax]
	}
	return s
}
