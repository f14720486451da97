package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TransportResponse is the raw outcome of one provider exchange.
type TransportResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Transport performs the network exchange with the model provider. Injected
// so the client stays testable offline; connection handling and any
// HTTP-level retry policy live behind this interface, not in the client.
type Transport interface {
	Send(ctx context.Context, url string, headers map[string]string, body []byte) (*TransportResponse, error)
}

// HTTPTransport is the production Transport over net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with the given request timeout.
// A zero timeout falls back to 30 seconds.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

// Send posts body to url and returns the full response regardless of status
// code; status interpretation belongs to the caller.
func (t *HTTPTransport) Send(ctx context.Context, url string, headers map[string]string, body []byte) (*TransportResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building provider request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending provider request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading provider response: %w", err)
	}

	return &TransportResponse{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Body:    respBody,
	}, nil
}
