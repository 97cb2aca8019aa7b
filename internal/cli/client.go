package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/me/jobtracker/pkg/model"
)

// Client sends commands to a tracker.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a tracker client.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	}
}

// apiResponse is the envelope used for transport-level errors.
type apiResponse struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Error     *model.APIError `json:"error"`
}

// Send posts cmd and decodes the command response into out.
func (c *Client) Send(cmd model.Command, out any) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	url := c.BaseURL + "/"
	c.Logger.Debug("HTTP request", "method", "POST", "url", url, "body", string(data))

	req, err := http.NewRequest("POST", url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "body", string(respBody))

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w\nbody: %s", err, string(respBody))
		}
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		var sr model.StatusResponse
		if err := json.Unmarshal(respBody, &sr); err == nil && sr.Status != "" {
			return &model.ProtocolError{Reason: sr.Error}
		}
	}

	var env apiResponse
	if err := json.Unmarshal(respBody, &env); err == nil && env.Error != nil {
		return env.Error
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
}

// IsUnauthorized reports whether err is the tracker rejecting the token.
func IsUnauthorized(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == model.ErrUnauthorized
}
