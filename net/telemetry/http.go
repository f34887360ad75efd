package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

const (
	BackendHTTP = "http"

	messageIDHeader = "X-Message-Id"

	maxErrorBody = 512
)

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

func post(ctx context.Context, client *http.Client, url string, body []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// HTTPCollector posts each message as JSON to a collector URL.
type HTTPCollector struct {
	URL    string
	Client *http.Client
}

func (c *HTTPCollector) Transmit(ctx context.Context, m Message) error {
	body, err := m.Encode()
	if err != nil {
		return &TransmissionError{Backend: BackendHTTP, Cause: err}
	}
	h := http.Header{}
	h.Set(messageIDHeader, uuid.NewString())
	err = post(ctx, c.Client, c.URL, body, h)
	if err != nil {
		return &TransmissionError{Backend: BackendHTTP, Cause: err}
	}
	return nil
}
