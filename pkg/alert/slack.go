package alert

import (
	"context"
	"fmt"
	"net/http"
)

// Slack posts block-kit messages to an incoming webhook.
type Slack struct {
	client     *http.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		client:     &http.Client{Timeout: sendTimeout},
		webhookURL: webhookURL,
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	return post(ctx, s.client, "slack webhook", s.webhookURL, map[string]any{"blocks": slackBlocks(n)}, nil)
}

func slackBlocks(n *Notification) []map[string]any {
	icon, summary := "👑", n.Body
	if n.Kind == KindCrowned {
		summary = fmt.Sprintf("*Votes:* %d | *Trending score:* %d | *Category:* %s\n%s",
			n.VoteCount, n.Score, n.Category, n.Body)
	} else {
		icon = "🚨"
	}

	blocks := []map[string]any{
		{"type": "header", "text": map[string]any{"type": "plain_text", "text": icon + " " + n.Title}},
		{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": summary}},
	}
	if n.Kind != KindBreaking {
		return blocks
	}

	var elements []map[string]any
	for _, t := range topicLines(n, 5) {
		elements = append(elements, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("%s [%s]", t.QuestionText, t.Category),
		})
	}
	if len(elements) > 0 {
		blocks = append(blocks, map[string]any{"type": "context", "elements": elements})
	}
	return blocks
}
