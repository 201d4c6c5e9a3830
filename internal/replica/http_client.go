package replica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient writes to a json-server style REST collection.
type HTTPClient struct {
	baseURL    string
	collection string
	client     *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: "users",
		client:     &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Put(ctx context.Context, id string, fields Fields) error {
	body := make(Fields, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["id"] = id
	return c.do(ctx, http.MethodPost, c.baseURL+"/"+c.collection, body)
}

func (c *HTTPClient) Patch(ctx context.Context, id string, fields Fields) error {
	return c.do(ctx, http.MethodPatch, c.baseURL+"/"+c.collection+"/"+url.PathEscape(id), fields)
}

func (c *HTTPClient) do(ctx context.Context, method, target string, payload Fields) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("replica encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("replica request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("replica %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound && method == http.MethodPatch:
		return ErrRecordMissing
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("replica %s %s: unexpected status %d", method, target, resp.StatusCode)
	}
	return nil
}
