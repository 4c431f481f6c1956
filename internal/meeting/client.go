// Package meeting talks to the REST collection that owns meeting sessions.
package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 1024
)

// ErrMissingID is returned when a created meeting comes back without an id.
var ErrMissingID = errors.New("meeting: response has no id")

// CreateRequest is the body of a create call.
type CreateRequest struct {
	Title          string   `json:"title"`
	Participants   []string `json:"participants"`
	IsConfidential bool     `json:"is_confidential"`
}

// Meeting is the server's view of a session. Only ID is guaranteed.
type Meeting struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	StartTime    float64  `json:"start_time"`
	Participants []string `json:"participants"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("meeting %s: unexpected status %d", e.Op, e.StatusCode)
	}

	return fmt.Sprintf("meeting %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// API creates and stops meetings.
type API interface {
	Create(ctx context.Context, req CreateRequest) (*Meeting, error)
	Stop(ctx context.Context, id string) error
}

// URLBuilder joins path elements onto the configured API prefix.
type URLBuilder func(elem ...string) (string, error)

// Client is the HTTP implementation of API.
type Client struct {
	logger *zap.Logger
	http   *http.Client
	url    URLBuilder
}

// NewClient builds a client that resolves endpoints through url.
func NewClient(logger *zap.Logger, httpClient *http.Client, url URLBuilder) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		logger: logger.Named("meeting"),
		http:   httpClient,
		url:    url,
	}
}

// Create registers a new meeting and returns it.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*Meeting, error) {
	if req.Participants == nil {
		req.Participants = []string{}
	}

	var m Meeting
	if err := c.do(ctx, "create", http.MethodPost, req, &m, "meetings"); err != nil {
		return nil, err
	}
	if m.ID == "" {
		return nil, ErrMissingID
	}

	c.logger.Info("Meeting created", zap.String("meeting_id", m.ID), zap.String("title", m.Title))

	return &m, nil
}

// Stop tells the server the client finished streaming for id.
func (c *Client) Stop(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("meeting stop: empty id")
	}

	return c.do(ctx, "stop", http.MethodPost, nil, nil, "meetings", id, "stop")
}

func (c *Client) do(ctx context.Context, op, method string, in, out any, elem ...string) error {
	endpoint, err := c.url(elem...)
	if err != nil {
		return fmt.Errorf("meeting %s: build url: %w", op, err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("meeting %s: encode: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("meeting %s: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger := c.logger.With(zap.String("op", op), zap.String("request_id", requestID))
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("Request failed", zap.Error(err))

		return fmt.Errorf("meeting %s: %w", op, err)
	}
	defer resp.Body.Close()

	logger.Debug("Request completed",
		zap.String("url", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("meeting %s: decode: %w", op, err)
	}

	return nil
}
