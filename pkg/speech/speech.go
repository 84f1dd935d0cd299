package speech

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

// ErrUseBrowser tells the caller to fall back to the browser's built-in
// speech synthesis.
var ErrUseBrowser = errors.New("tts unavailable, use browser speech synthesis")

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID = "eleven_monolingual_v1"
	maxAudioBytes  = 10 << 20
)

// Audio is synthesized speech.
type Audio struct {
	ContentType string
	Data        []byte
}

// Client calls a hosted text-to-speech endpoint.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	voiceID string
	modelID string
}

// NewClient creates a new TTS client. Without an API key every call
// returns ErrUseBrowser.
func NewClient(baseURL, apiKey, voiceID, modelID string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	if modelID == "" {
		modelID = defaultModelID
	}
	return &Client{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: modelID,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// Synthesize converts text to audio. Quota, auth and network failures wrap
// ErrUseBrowser; other failures are returned as is.
func (c *Client) Synthesize(ctx context.Context, text string) (*Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("speech: empty text")
	}
	if !c.Enabled() {
		return nil, ErrUseBrowser
	}

	body, _ := json.Marshal(map[string]any{
		"text":     text,
		"model_id": c.modelID,
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUseBrowser, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: tts status %d", ErrUseBrowser, resp.StatusCode)
	default:
		return nil, fmt.Errorf("tts status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read audio: %v", ErrUseBrowser, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &Audio{ContentType: contentType, Data: data}, nil
}
