package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 64 << 20

// defaultHTTPTimeout backstops provider calls. The Adapter applies the
// per-call deadline that normally fires first.
const defaultHTTPTimeout = 60 * time.Second

// StatusError is a non-2xx reply from an embedding endpoint.
type StatusError struct {
	// Code is the HTTP status code.
	Code int
	// Message is the provider's error text, if the body carried one.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

// jsonPoster sends JSON requests on behalf of one provider client.
type jsonPoster struct {
	client *http.Client
	// errPath is the gjson path of the error text in a failure body.
	errPath string
}

func newJSONPoster(client *http.Client, errPath string) jsonPoster {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return jsonPoster{client: client, errPath: errPath}
}

// post marshals body, sends it to url with header, and returns the raw reply.
func (p jsonPoster) post(ctx context.Context, url string, header http.Header, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Code: resp.StatusCode}
		if err == nil && gjson.ValidBytes(raw) {
			se.Message = gjson.GetBytes(raw, p.errPath).String()
		}
		return nil, se
	}
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return raw, nil
}
