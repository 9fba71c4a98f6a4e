// Package client is the HTTP/JSON transport for the backing services:
// health, transcription, command pipeline, action execution and the
// read-only views.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	ierr "github.com/mark3labs/voiceops/internal/errors"
	"github.com/mark3labs/voiceops/internal/logger"
	"github.com/mark3labs/voiceops/internal/model"
)

var log = logger.Named("client")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Client talks to the voiceops backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// Config holds configuration for creating a new Client.
type Config struct {
	BaseURL    string        // e.g. http://localhost:8000
	Timeout    time.Duration // Per-request timeout, 0 = none
	HTTPClient *http.Client  // Optional, overrides Timeout
}

// New creates a new Client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
	}
}

// CommandRequest is the body of a pipeline submission. Context carries the
// prior transcript when the text answers a clarification request.
type CommandRequest struct {
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// ActionRequest is the body of a single action execution.
type ActionRequest struct {
	Transcript string             `json:"transcript"`
	Intent     string             `json:"intent"`
	Entities   map[string]*string `json:"entities,omitempty"`
	Action     model.Action       `json:"action"`
}

// Health calls GET /api/health.
func (c *Client) Health(ctx context.Context) (model.HealthStatus, error) {
	var out model.HealthStatus
	err := c.do(ctx, http.MethodGet, "/api/health", nil, "", &out)
	return out, err
}

// TranscribeAudio uploads an audio blob and returns the transcript.
func (c *Client) TranscribeAudio(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "recording.webm"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return "", fmt.Errorf("creating multipart field: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart body: %w", err)
	}

	var out struct {
		Transcript string `json:"transcript"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/transcribe", &buf, mw.FormDataContentType(), &out); err != nil {
		return "", err
	}
	return out.Transcript, nil
}

// ProcessCommand submits a command to the three-stage pipeline.
func (c *Client) ProcessCommand(ctx context.Context, req CommandRequest) (model.PipelineResult, error) {
	var out model.PipelineResult
	err := c.doJSON(ctx, http.MethodPost, "/api/command", req, &out)
	return out, err
}

// ExecuteAction executes one confirmed action.
func (c *Client) ExecuteAction(ctx context.Context, req ActionRequest) (model.ActionOutcome, error) {
	var out model.ActionOutcome
	if err := c.doJSON(ctx, http.MethodPost, "/api/execute", req, &out); err != nil {
		return model.ActionOutcome{}, err
	}
	if out.Step == 0 {
		out.Step = req.Action.Step
	}
	if out.Type == "" {
		out.Type = req.Action.Type
	}
	return out, nil
}

// RunESQLQuery runs a preset ES|QL query.
func (c *Client) RunESQLQuery(ctx context.Context, presetID string) (model.ESQLResult, error) {
	var out model.ESQLResult
	err := c.do(ctx, http.MethodGet, "/api/esql/"+url.PathEscape(presetID), nil, "", &out)
	return out, err
}

// AuditLog fetches the server-side audit log.
func (c *Client) AuditLog(ctx context.Context) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	err := c.do(ctx, http.MethodGet, "/api/audit", nil, "", &out)
	return out, err
}

// Tickets fetches the server-side ticket list.
func (c *Client) Tickets(ctx context.Context) ([]model.Ticket, error) {
	var out []model.Ticket
	err := c.do(ctx, http.MethodGet, "/api/tickets", nil, "", &out)
	return out, err
}

// Analytics fetches the analytics snapshot.
func (c *Client) Analytics(ctx context.Context) (model.Analytics, error) {
	var out model.Analytics
	err := c.do(ctx, http.MethodGet, "/api/analytics", nil, "", &out)
	return out, err
}

// Impact fetches the impact metrics snapshot.
func (c *Client) Impact(ctx context.Context) (model.Impact, error) {
	var out model.Impact
	err := c.do(ctx, http.MethodGet, "/api/impact", nil, "", &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(data), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	log.Debug("%s %s (request %s)", method, path, reqID)
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("%s %s failed: %v", method, path, err)
		return ierr.NewTransientError(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
