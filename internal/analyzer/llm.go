package analyzer

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

	"github.com/ivlev/talkinghead/internal/registry"
	"github.com/ivlev/talkinghead/internal/timeline"
)

type LLMOptions struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

const (
	defaultLLMBaseURL = "https://openrouter.ai/api/v1"
	defaultLLMModel   = "openai/gpt-4o-mini"
	defaultLLMTimeout = 90 * time.Second
)

// LLMAnalyzer asks an OpenAI compatible chat endpoint to split the script.
// Replies that cannot be used fall back to the rule parser.
type LLMAnalyzer struct {
	opts     Options
	client   *http.Client
	fallback *RuleParser
}

func NewLLMAnalyzer(opts Options) *LLMAnalyzer {
	opts = opts.withDefaults()
	if opts.LLM.BaseURL == "" {
		opts.LLM.BaseURL = defaultLLMBaseURL
	}
	opts.LLM.BaseURL = strings.TrimRight(opts.LLM.BaseURL, "/")
	if opts.LLM.Model == "" {
		opts.LLM.Model = defaultLLMModel
	}
	if opts.LLM.Timeout <= 0 {
		opts.LLM.Timeout = defaultLLMTimeout
	}
	return &LLMAnalyzer{
		opts:     opts,
		client:   &http.Client{Timeout: 5 * time.Minute},
		fallback: NewRuleParser(opts),
	}
}

type llmScene struct {
	Speaker string `json:"speaker"`
	Emotion string `json:"emotion"`
	Gesture string `json:"gesture"`
	Text    string `json:"text"`
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, text string, reg *registry.Registry) ([]timeline.Scene, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyScript
	}

	content, err := a.complete(ctx, buildPrompt(text, reg))
	if err != nil {
		return nil, err
	}

	clean, err := extractJSONObject(content)
	if err != nil {
		return a.fallback.Analyze(ctx, text, reg)
	}
	var out struct {
		Scenes []llmScene `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil || len(out.Scenes) == 0 {
		return a.fallback.Analyze(ctx, text, reg)
	}

	var scenes []timeline.Scene
	var unresolved []string
	for _, s := range out.Scenes {
		c, ok := reg.Lookup(s.Speaker)
		if !ok {
			unresolved = append(unresolved, s.Speaker)
			continue
		}
		emotion, known := mapEmotion(s.Emotion)
		if !known {
			emotion = timeline.NormalizeEmotion(s.Emotion)
		}
		scene := timeline.Scene{
			Speaker: c.ID,
			Text:    strings.Join(strings.Fields(s.Text), " "),
			Emotion: emotion,
			Gesture: mapGesture(s.Gesture),
		}
		if scene.Text == "" {
			scene.Pause = true
			scene.Duration = a.opts.PauseDuration
		} else {
			scene.Duration = estimateDuration(scene.Text, a.opts.WordsPerSecond)
		}
		scenes = append(scenes, scene)
	}

	if len(scenes) == 0 {
		return nil, &UnknownSpeakerError{Tokens: unresolved}
	}
	if a.opts.MaxScenes > 0 && len(scenes) > a.opts.MaxScenes {
		return nil, &ScriptTooLongError{Scenes: len(scenes), Max: a.opts.MaxScenes}
	}
	return scenes, nil
}

func (a *LLMAnalyzer) complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":  a.opts.LLM.Model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
		"response_format": map[string]any{"type": "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.opts.LLM.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.opts.LLM.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.opts.LLM.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("llm timeout after %s (model=%s)", a.opts.LLM.Timeout, a.opts.LLM.Model)
		}
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, truncate(strings.ReplaceAll(string(rb), a.opts.LLM.APIKey, "***"), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return "", nil
	}
	return raw.Choices[0].Message.Content, nil
}

func buildPrompt(script string, reg *registry.Registry) string {
	var speakers []string
	for _, c := range reg.Characters() {
		speakers = append(speakers, c.ID)
	}
	emotions := make([]string, len(timeline.Emotions))
	for i, e := range timeline.Emotions {
		emotions[i] = string(e)
	}
	gestures := make([]string, len(timeline.Gestures))
	for i, g := range timeline.Gestures {
		gestures[i] = string(g)
	}

	var b strings.Builder
	b.WriteString("Split the dialogue script below into scenes, one per spoken line, in order.\n")
	b.WriteString("Return only JSON: {\"scenes\":[{\"speaker\":\"\",\"emotion\":\"\",\"gesture\":\"\",\"text\":\"\"}]}.\n")
	fmt.Fprintf(&b, "speaker must be one of: %s.\n", strings.Join(speakers, ", "))
	fmt.Fprintf(&b, "emotion must be one of: %s.\n", strings.Join(emotions, ", "))
	fmt.Fprintf(&b, "gesture is empty or one of: %s.\n", strings.Join(gestures, ", "))
	b.WriteString("Remove stage directions from text. Keep the original language.\n\nSCRIPT:\n")
	b.WriteString(script)
	return b.String()
}

// extractJSONObject strips code fences and surrounding prose from a reply.
func extractJSONObject(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", errors.New("no JSON object in reply")
	}
	return s[start : end+1], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
