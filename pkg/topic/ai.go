package topic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/elonfeng/voicevoter/pkg/source"
)

const rewritePrompt = `You turn trending headlines into neutral yes/no poll questions for a public voting app.

The headlines below were collected from %s. For each headline produce an object with:
1. "raw_topic": the headline exactly as given
2. "summary": one plain sentence describing what happened
3. "question_text": a short, neutral yes/no question the public can vote on
4. "context": one sentence of background a voter needs before answering
5. "category": one of %s, or "General"
6. "keywords": up to 5 lowercase keywords
7. "trending_score": integer 0-100, how widely discussed this is right now
8. "is_safe": false if the topic involves graphic violence, sexual content, self-harm or hate; otherwise true

Headlines:
%s

Respond with a JSON array of these objects, one per headline, in the same order.
Return ONLY the JSON array, no other text.`

// ErrMalformedResponse is returned when the model output is not a JSON array.
var ErrMalformedResponse = errors.New("malformed ai response")

// AIOptions configures an AIRewriter.
type AIOptions struct {
	Provider string // "openai", "anthropic" or "ollama"
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	MaxBatch int
	// Heuristic fills fields the model left out and rechecks every topic
	// against the banned list. Nil uses the default list.
	Heuristic *Heuristic
}

// AIRewriter rewrites a batch of headlines with one LLM call and falls back
// to another Rewriter for the whole batch on any failure.
type AIRewriter struct {
	client   *http.Client
	ollama   *ollama.Client
	provider string
	model    string
	apiKey   string
	baseURL  string
	timeout  time.Duration
	maxBatch int
	fallback Rewriter
	moderate *Heuristic
	logger   *zap.Logger
}

// NewAIRewriter creates a new LLM-backed rewriter.
func NewAIRewriter(opts AIOptions, fallback Rewriter, logger *zap.Logger) (*AIRewriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Model == "" {
		switch opts.Provider {
		case "anthropic":
			opts.Model = "claude-sonnet-4-20250514"
		case "ollama":
			opts.Model = "llama3.2"
		default:
			opts.Model = "gpt-4o-mini"
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxBatch <= 0 || opts.MaxBatch > 20 {
		opts.MaxBatch = 20
	}
	if opts.Heuristic == nil {
		opts.Heuristic = NewHeuristic(nil)
	}

	r := &AIRewriter{
		client:   &http.Client{Timeout: opts.Timeout},
		provider: opts.Provider,
		model:    opts.Model,
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		timeout:  opts.Timeout,
		maxBatch: opts.MaxBatch,
		fallback: fallback,
		moderate: opts.Heuristic,
		logger:   logger,
	}

	if opts.Provider == "ollama" {
		var err error
		if r.baseURL != "" {
			base, perr := url.Parse(r.baseURL)
			if perr != nil {
				return nil, fmt.Errorf("parse ollama base url: %w", perr)
			}
			r.ollama = ollama.NewClient(base, r.client)
		} else {
			r.ollama, err = ollama.ClientFromEnvironment()
			if err != nil {
				return nil, fmt.Errorf("create ollama client: %w", err)
			}
		}
	}
	return r, nil
}

func (a *AIRewriter) Rewrite(ctx context.Context, src source.SourceType, items []source.Item) []Candidate {
	var out []Candidate
	for start := 0; start < len(items); start += a.maxBatch {
		end := min(start+a.maxBatch, len(items))
		batch := items[start:end]

		candidates, err := a.rewriteBatch(ctx, src, batch)
		if err != nil {
			a.logger.Warn("ai rewrite failed, using heuristic",
				zap.String("source", string(src)),
				zap.Int("items", len(batch)),
				zap.Error(err))
			out = append(out, a.fallback.Rewrite(ctx, src, batch)...)
			continue
		}
		out = append(out, candidates...)
	}
	return out
}

// aiTopic mirrors one element of the model's JSON array. IsSafe is a
// pointer so a missing flag can be told apart from false.
type aiTopic struct {
	RawTopic      string   `json:"raw_topic"`
	Summary       string   `json:"summary"`
	QuestionText  string   `json:"question_text"`
	Context       string   `json:"context"`
	Category      string   `json:"category"`
	Keywords      []string `json:"keywords"`
	TrendingScore int      `json:"trending_score"`
	IsSafe        *bool    `json:"is_safe"`
}

func (a *AIRewriter) rewriteBatch(ctx context.Context, src source.SourceType, items []source.Item) ([]Candidate, error) {
	var lines []string
	for i, it := range items {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, it.Title))
	}
	prompt := fmt.Sprintf(rewritePrompt, sourceLabel(src),
		strings.Join(Categories(), ", "), strings.Join(lines, "\n"))

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		raw string
		err error
	)
	switch a.provider {
	case "anthropic":
		raw, err = a.callAnthropic(ctx, prompt)
	case "ollama":
		raw, err = a.callOllama(ctx, prompt)
	default:
		raw, err = a.callOpenAI(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	topics, err := parseTopics(raw)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]int, len(items))
	for _, it := range items {
		scores[strings.ToLower(it.Title)] = it.Score
	}

	var out []Candidate
	for _, t := range topics {
		t.RawTopic = strings.TrimSpace(t.RawTopic)
		if t.RawTopic == "" {
			continue
		}
		if t.IsSafe != nil && !*t.IsSafe {
			a.logger.Debug("ai marked topic unsafe", zap.String("topic", t.RawTopic))
			continue
		}
		// The model's verdict never overrides the banned list.
		if !a.moderate.IsSafe(t.RawTopic) {
			a.logger.Debug("banned topic dropped", zap.String("topic", t.RawTopic))
			continue
		}
		c := Candidate{
			RawTopic:      t.RawTopic,
			Summary:       t.Summary,
			QuestionText:  strings.TrimSpace(t.QuestionText),
			Context:       t.Context,
			Category:      t.Category,
			Keywords:      t.Keywords,
			TrendingScore: t.TrendingScore,
			IsSafe:        true,
		}
		if c.QuestionText == "" {
			c.QuestionText = a.moderate.Question(t.RawTopic)
		}
		if c.Category == "" {
			c.Category = Categorize(t.RawTopic)
		}
		if len(c.Keywords) == 0 {
			c.Keywords = Keywords(t.RawTopic)
		}
		if c.TrendingScore <= 0 {
			c.TrendingScore = scores[strings.ToLower(t.RawTopic)]
		}
		out = append(out, c)
	}
	return out, nil
}

// parseTopics extracts the outermost JSON array from a model reply. The
// whole reply is rejected if it is not an array of objects.
func parseTopics(raw string) ([]aiTopic, error) {
	raw = stripFences(raw)
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no json array: %s", ErrMalformedResponse, truncateStr(raw, 200))
	}

	var topics []aiTopic
	if err := json.Unmarshal([]byte(raw[start:end+1]), &topics); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return topics, nil
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw[3:], "\n"); idx >= 0 {
			raw = raw[3+idx+1:]
		}
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	return strings.TrimSpace(raw)
}

func (a *AIRewriter) callOpenAI(ctx context.Context, prompt string) (string, error) {
	baseURL := a.baseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	payload := map[string]any{
		"model": a.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.3,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (a *AIRewriter) callAnthropic(ctx context.Context, prompt string) (string, error) {
	baseURL := a.baseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	payload := map[string]any{
		"model":      a.model,
		"max_tokens": 4096,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("anthropic: no content returned")
	}
	return result.Content[0].Text, nil
}

func (a *AIRewriter) callOllama(ctx context.Context, prompt string) (string, error) {
	if a.ollama == nil {
		return "", errors.New("ollama: client not configured")
	}

	var response strings.Builder
	err := a.ollama.Generate(ctx, &ollama.GenerateRequest{
		Model:  a.model,
		Prompt: prompt,
		Options: map[string]any{
			"temperature": 0.3,
		},
	}, func(res ollama.GenerateResponse) error {
		response.WriteString(res.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("call ollama: %w", err)
	}
	return response.String(), nil
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
