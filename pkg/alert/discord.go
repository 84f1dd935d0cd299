package alert

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	colorCrowned  = 0xF1C40F
	colorBreaking = 0xE74C3C
)

// Discord posts a single embed to a Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: sendTimeout},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	embed := map[string]any{
		"title":     n.Title,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if n.Kind == KindBreaking {
		var lines []string
		for _, t := range topicLines(n, 5) {
			lines = append(lines, fmt.Sprintf("• %s [%s]", t.QuestionText, t.Category))
		}
		embed["color"] = colorBreaking
		embed["description"] = n.Body + "\n\n" + strings.Join(lines, "\n")
	} else {
		embed["color"] = colorCrowned
		embed["description"] = fmt.Sprintf("**Votes:** %d | **Trending score:** %d\n\n%s", n.VoteCount, n.Score, n.Body)
	}

	return post(ctx, d.client, "discord webhook", d.webhookURL, map[string]any{"embeds": []map[string]any{embed}}, nil)
}
