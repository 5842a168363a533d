// Package recognition is the client for the remote audio-recognition
// service. The fingerprinting itself is a black box on the other side of one
// HTTP endpoint; this package only cares about telling apart the three
// outcomes that matter to the engine: transport failure (network is down),
// service error (network is provably up), and a real answer.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clubsonar/setlistd/internal/models"
)

const defaultTimeout = 30 * time.Second

type Request struct {
	AudioData  string `json:"audio_data"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Venue      string `json:"venue,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	DJID       string `json:"dj_id,omitempty"`
	DJName     string `json:"dj_name,omitempty"`
}

type Response struct {
	Success         bool    `json:"success"`
	Found           bool    `json:"found"`
	Title           string  `json:"title,omitempty"`
	Artist          string  `json:"artist,omitempty"`
	Album           string  `json:"album,omitempty"`
	Genre           string  `json:"genre,omitempty"`
	CoverImage      string  `json:"cover_image,omitempty"`
	ExternalTrackID string  `json:"external_track_id,omitempty"`
	ProducerID      string  `json:"producer_id,omitempty"`
	Score           float64 `json:"score,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Matched reports whether the response carries an identified track. A
// successful response without a match means "no track found", not an error.
func (r *Response) Matched() bool {
	return r.Success && (r.Found || r.Title != "")
}

// Identification converts a matched response into the engine's track model.
func (r *Response) Identification() *models.TrackIdentification {
	return &models.TrackIdentification{
		Title:           r.Title,
		Artist:          r.Artist,
		Album:           r.Album,
		Genre:           r.Genre,
		ExternalTrackID: r.ExternalTrackID,
		ProducerID:      r.ProducerID,
		CoverArtURL:     r.CoverImage,
		Confidence:      r.Score,
		RecognizedAt:    time.Now(),
	}
}

// TransportError marks failures where the service was never reached: DNS,
// connection refused, timeout. Only these demote the network monitor and
// divert the capture into the offline queue.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("recognition transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Recognize submits one capture. Transport-level failures come back as
// *TransportError; a reachable service answering with an error status comes
// back as a plain error, which callers absorb as a no-match.
func (c *Client) Recognize(ctx context.Context, reqBody Request) (*Response, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/recognize-audio", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("recognition service returned status %d: %s", resp.StatusCode, body)
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &result, nil
}
