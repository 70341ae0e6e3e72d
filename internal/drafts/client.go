// Package drafts is the client for the remote drafting service.
package drafts

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

	"replydraft/internal/config"
	"replydraft/internal/extract"
	"replydraft/internal/logging"
)

// ErrNotConfigured is returned when the service URL or credential is missing.
// No network attempt is made in that case.
var ErrNotConfigured = errors.New("drafting service not configured: set api_url and api_secret")

// DraftPath is the draft endpoint relative to the service base URL.
const DraftPath = "/api/linkedin/draft"

// HealthPath is the liveness endpoint relative to the service base URL.
const HealthPath = "/health"

// ServiceError is a failure reported by, or observed talking to, the service.
type ServiceError struct {
	Status  int // HTTP status, 0 for transport failures
	Message string
}

func (e *ServiceError) Error() string {
	if e.Status == 0 {
		return "drafting service: " + e.Message
	}
	return fmt.Sprintf("drafting service (%d): %s", e.Status, e.Message)
}

// Request is the draft request wire body.
type Request struct {
	SenderName          string   `json:"sender_name"`
	SenderHeadline      string   `json:"sender_headline,omitempty"` // absent when the header has none
	MessageText         string   `json:"message_text"`
	ConversationContext []string `json:"conversation_context"`
	ConversationID      string   `json:"conversation_id"`
}

// RequestFromSnapshot maps an extracted snapshot onto the wire body.
func RequestFromSnapshot(s *extract.Snapshot) Request {
	ctxLines := s.ContextLines
	if ctxLines == nil {
		ctxLines = []string{}
	}
	return Request{
		SenderName:          s.SenderName,
		SenderHeadline:      s.SenderHeadline,
		MessageText:         s.MessageText,
		ConversationContext: ctxLines,
		ConversationID:      s.ConversationID,
	}
}

// Response is the service verdict. DraftText is set when NeedsResponse;
// Summary explains a "no response needed" verdict.
type Response struct {
	NeedsResponse bool   `json:"needs_response"`
	DraftText     string `json:"draft_text,omitempty"`
	Urgency       string `json:"urgency,omitempty"`
	Summary       string `json:"summary,omitempty"`
}

// errorBody captures both {error} and FastAPI-style {detail} failures.
type errorBody struct {
	Error  string          `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

func (b errorBody) message() string {
	if b.Error != "" {
		return b.Error
	}
	if len(b.Detail) == 0 || string(b.Detail) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Detail, &s); err == nil {
		return s
	}
	return string(b.Detail)
}

// Client calls the drafting service described by the current settings.
type Client struct {
	httpClient     *http.Client
	requestTimeout time.Duration
	statusTimeout  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeouts sets the draft request and status check bounds.
func WithTimeouts(request, status time.Duration) Option {
	return func(c *Client) {
		if request > 0 {
			c.requestTimeout = request
		}
		if status > 0 {
			c.statusTimeout = status
		}
	}
}

// NewClient returns a Client with a 60s draft bound and a 5s status bound.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{},
		requestTimeout: 60 * time.Second,
		statusTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Draft submits req and returns the verdict. Errors are ErrNotConfigured,
// *ServiceError, or context errors.
func (c *Client) Draft(ctx context.Context, settings config.Settings, req Request) (*Response, error) {
	if !settings.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode draft request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(settings.APIURL, DraftPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build draft request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+settings.APISecret)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("draft request for %s: %w", req.ConversationID, ctxErr)
		}
		return nil, &ServiceError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Status: resp.StatusCode, Message: "failed to read response: " + err.Error()}
	}
	logging.Drafts("draft request for %s: status=%d in %v", req.ConversationID, resp.StatusCode, time.Since(start))

	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	if msg := eb.message(); msg != "" {
		return nil, &ServiceError{Status: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServiceError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &ServiceError{Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return &out, nil
}

// Health is the service liveness report.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Status checks service liveness, bounded by the status timeout.
func (c *Client) Status(ctx context.Context, settings config.Settings) (*Health, error) {
	if settings.APIURL == "" {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(settings.APIURL, HealthPath), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("status check: %w", ctxErr)
		}
		return nil, &ServiceError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, &ServiceError{Status: resp.StatusCode, Message: "malformed health response: " + err.Error()}
	}
	return &h, nil
}

func endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
