// Package agent implements the HTTP client for the conversational agent
// service that produces companion replies.
package agent

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
)

// ErrUnavailable covers timeouts, transport failures, and non-2xx replies.
var ErrUnavailable = errors.New("agent unavailable")

// ErrBadPayload means the agent answered with a malformed top-level document.
var ErrBadPayload = errors.New("agent returned malformed payload")

const (
	defaultTextTimeout  = 60 * time.Second
	defaultAudioTimeout = 45 * time.Second
	healthTimeout       = 5 * time.Second
	charactersTimeout   = 10 * time.Second
)

// Client talks to the agent service. The base URL is fixed at construction.
type Client struct {
	baseURL      string
	httpc        *http.Client
	textTimeout  time.Duration
	audioTimeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithTimeouts overrides the per-call deadlines for text and audio turns.
func WithTimeouts(text, audio time.Duration) Option {
	return func(c *Client) {
		c.textTimeout = text
		c.audioTimeout = audio
	}
}

// NewClient creates a Client for the given agent base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpc:        &http.Client{},
		textTimeout:  defaultTextTimeout,
		audioTimeout: defaultAudioTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TextRequest is one text turn sent to the agent.
type TextRequest struct {
	UserKey        string
	CharacterKey   string
	ThreadID       string
	Message        string
	VoiceConfig    map[string]any
	ForceWebSearch bool
	Context        map[string]any
}

// AudioRequest is one voice turn sent to the agent.
type AudioRequest struct {
	UserKey      string
	CharacterKey string
	ThreadID     string
	AudioBase64  string
	Context      map[string]any
}

// SendText posts a text turn and waits at most the text deadline.
func (c *Client) SendText(ctx context.Context, req TextRequest) (*Reply, error) {
	body := map[string]any{
		"user_id":      req.UserKey,
		"character_id": req.CharacterKey,
		"message":      req.Message,
		"use_agent":    true,
		"role":         "elderly",
		"thread_id":    req.ThreadID,
	}
	if req.VoiceConfig != nil {
		body["voice_config"] = req.VoiceConfig
	}
	if req.ForceWebSearch {
		body["force_web_search"] = true
	}
	if req.Context != nil {
		body["context"] = req.Context
	}
	return c.post(ctx, "/chat", body, c.textTimeout)
}

// SendAudio posts a voice turn and waits at most the audio deadline.
func (c *Client) SendAudio(ctx context.Context, req AudioRequest) (*Reply, error) {
	body := map[string]any{
		"user_id":      req.UserKey,
		"character_id": req.CharacterKey,
		"audio_base64": req.AudioBase64,
		"use_agent":    true,
		"role":         "elderly",
		"thread_id":    req.ThreadID,
	}
	if req.Context != nil {
		body["context"] = req.Context
	}
	return c.post(ctx, "/chat/audio", body, c.audioTimeout)
}

// Healthy probes the agent liveness endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Characters fetches the agent's own character list as an opaque document.
func (c *Client) Characters(ctx context.Context) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, charactersTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/characters", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build characters request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get /characters: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read /characters: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: get /characters: status %d", ErrUnavailable, resp.StatusCode)
	}
	return json.RawMessage(raw), nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]any, timeout time.Duration) (*Reply, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: post %s: %v", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: post %s: status %d", ErrUnavailable, path, resp.StatusCode)
	}

	reply, err := decodeReply(raw)
	if err != nil {
		return nil, err
	}
	return reply, nil
}
