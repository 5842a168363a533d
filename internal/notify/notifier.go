// Package notify delivers "your track was played" notifications to
// producers. Delivery is best-effort and at-most-once per track per session:
// the caller only records the durable notified marker after a dispatch
// succeeds, so a failed attempt is retried on the next reconciliation pass
// instead of being retried in a loop here.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

type Payload struct {
	TrackID     string `json:"track_id"`
	ProducerID  string `json:"producer_id"`
	TrackTitle  string `json:"track_title"`
	ArtistName  string `json:"artist_name"`
	DJName      string `json:"dj_name"`
	PerformedAt string `json:"performed_at"`
	Venue       string `json:"venue"`
	City        string `json:"city"`
	Country     string `json:"country"`
	ArtworkURL  string `json:"artwork_url"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, p Payload) error
}

type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Dispatch(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification service returned status %d: %s", resp.StatusCode, msg)
	}

	return nil
}
