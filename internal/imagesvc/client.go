// Package imagesvc talks to the external image extraction service, which
// fetches picture bytes from OneNote and saves them where the image map
// says.
package imagesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dgallion1/notegest/internal/render"
)

// Client communicates with the image service HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// MapRequest is the body for PUT /maps/{runID}.
type MapRequest struct {
	Dialect string          `json:"dialect"`
	Images  render.ImageMap `json:"images"`
}

// SubmitResponse is returned once the service has queued a map.
type SubmitResponse struct {
	RunID    string `json:"run_id"`
	Accepted int    `json:"accepted"`
}

// MapStatus reports extraction progress for a submitted map.
type MapStatus struct {
	RunID   string `json:"run_id"`
	Total   int    `json:"total"`
	Fetched int    `json:"fetched"`
	Failed  int    `json:"failed"`
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	msg := e.Message
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, msg)
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, string(body))
}

func (c *Client) mapURL(runID string) string {
	return c.baseURL + "/maps/" + url.PathEscape(runID)
}

// SubmitMap hands the image map of one run to the service.
func (c *Client) SubmitMap(ctx context.Context, runID string, dialect render.Dialect, images render.ImageMap) (*SubmitResponse, error) {
	if images == nil {
		images = render.ImageMap{}
	}
	body, err := json.Marshal(MapRequest{Dialect: string(dialect), Images: images})
	if err != nil {
		return nil, fmt.Errorf("marshal map: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.mapURL(runID), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit map: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, statusError("submit map "+runID, resp)
	}

	var out SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	return &out, nil
}

// MapStatus fetches extraction progress. It returns nil, nil when the
// service does not know the run.
func (c *Client) MapStatus(ctx context.Context, runID string) (*MapStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.mapURL(runID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("map status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("map status "+runID, resp)
	}

	var status MapStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode map status: %w", err)
	}
	return &status, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
