package alert

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
)

// Webhook posts the Notification itself as JSON. A non-empty secret adds an
// X-Signature-256 header computed over the body.
type Webhook struct {
	client *http.Client
	url    string
	secret string
}

// NewWebhook creates a generic webhook notifier.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: sendTimeout},
		url:    url,
		secret: secret,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Sign returns the X-Signature-256 header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (w *Webhook) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	header := http.Header{}
	header.Set("User-Agent", "voicevoter/1.0")
	header.Set("X-Voicevoter-Event", string(n.Kind))
	if w.secret != "" {
		header.Set("X-Signature-256", Sign(w.secret, body))
	}
	return post(ctx, w.client, "webhook", w.url, json.RawMessage(body), header)
}
