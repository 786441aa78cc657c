// Package smartturn provides an end-of-turn classifier backed by a
// smart-turn inference service over HTTP. It implements the eot.Classifier
// interface.
//
// The service contract is a single POST endpoint: the request body is the
// raw PCM window, the response is JSON {"prediction": 0|1, "probability": p}.
// Anything other than HTTP 200 is an error.
package smartturn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/voxgate/voxgate/pkg/provider/eot"
)

const defaultTimeout = 5 * time.Second

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent with every request. Self-hosted
// deployments typically need none.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. Default: 5s. The turn
// controller's own timeout is usually tighter, so this mostly bounds
// connection pile-up when the service is unreachable.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// Client implements eot.Classifier against a smart-turn HTTP service.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New creates a Client for the given endpoint URL.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("smartturn: endpoint must not be empty")
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type response struct {
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
}

// Classify POSTs the PCM window and decodes the verdict.
func (c *Client) Classify(ctx context.Context, pcm []byte, sampleRate int) (eot.Verdict, error) {
	if len(pcm) == 0 {
		return eot.Verdict{}, errors.New("smartturn: empty audio window")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(pcm))
	if err != nil {
		return eot.Verdict{}, fmt.Errorf("smartturn: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Sample-Rate", strconv.Itoa(sampleRate))
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eot.Verdict{}, fmt.Errorf("smartturn: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return eot.Verdict{}, fmt.Errorf("smartturn: service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return eot.Verdict{}, fmt.Errorf("smartturn: decode response: %w", err)
	}
	if out.Probability < 0 || out.Probability > 1 {
		return eot.Verdict{}, fmt.Errorf("smartturn: probability %.3f outside [0,1]", out.Probability)
	}

	return eot.Verdict{
		Complete:    out.Prediction == 1,
		Probability: out.Probability,
	}, nil
}

// Ensure Client implements eot.Classifier at compile time.
var _ eot.Classifier = (*Client)(nil)
