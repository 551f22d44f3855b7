// Package ask forwards questions to the upstream answering service. The
// upstream's semantics are its own business; this client is a pass-through
// with timeouts and transient-failure retry.
package ask

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 60 * time.Second
	maxAnswerSize   = 4 << 20 // 4MB
	retryBaseDelay  = 500 * time.Millisecond
	retryMaxRetries = 2
)

// Client posts questions to the configured upstream endpoint.
type Client struct {
	url  string
	http *http.Client
	log  *zap.Logger
}

// New constructs a client for the given upstream URL.
func New(url string, log *zap.Logger) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: defaultTimeout},
		log:  log,
	}
}

type askRequest struct {
	Question string `json:"question"`
}

// Ask relays a question and returns the upstream's JSON answer verbatim.
// Transport errors and upstream 5xx responses are retried with exponential
// backoff before giving up.
func (c *Client) Ask(ctx context.Context, question string) (json.RawMessage, error) {
	payload, err := json.Marshal(askRequest{Question: question})
	if err != nil {
		return nil, err
	}

	var answer json.RawMessage
	backoff := retry.WithMaxRetries(retryMaxRetries, retry.NewExponential(retryBaseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Warn("ask upstream unreachable", zap.Error(err))
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerSize))
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			c.log.Warn("ask upstream error", zap.Int("status", resp.StatusCode))
			return retry.RetryableError(fmt.Errorf("upstream status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("upstream status %d: %s", resp.StatusCode, body)
		}
		answer = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return answer, nil
}
