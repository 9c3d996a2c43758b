package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultGenerateTimeout bounds a blocking or streaming generation.
	DefaultGenerateTimeout = 120 * time.Second
	// connectTimeout bounds the /api/tags connectivity probe.
	connectTimeout = 5 * time.Second
)

// ChatClient wraps Ollama's chat completion API.
type ChatClient struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewChatClient creates an Ollama chat client for the given model.
func NewChatClient(baseURL, model string, logger *slog.Logger) *ChatClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: DefaultGenerateTimeout},
		logger:  logger,
	}
}

// Model returns the configured model identifier.
func (c *ChatClient) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Options  chatOptions   `json:"options"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// CheckConnection verifies the backend is reachable and that the
// configured model is available. It returns a boolean and never errors.
func (c *ChatClient) CheckConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("ollama: backend unreachable", "url", c.baseURL, "error", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	for _, m := range tags.Models {
		if strings.Contains(m.Name, c.model) {
			return true
		}
	}
	c.logger.Warn("ollama: model not found in backend", "model", c.model)
	return true
}

// ListModels returns the model identifiers the backend reports.
func (c *ChatClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: list models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: list models: status %d", resp.StatusCode)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama: list models decode: %w", err)
	}
	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// Generate runs a blocking chat completion. Backend failures come back
// as descriptive "Error: ..." text, never as an error, so the caller's
// response schema stays well-formed.
func (c *ChatClient) Generate(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int) string {
	resp, errText := c.send(ctx, prompt, systemPrompt, temperature, maxTokens, false)
	if errText != "" {
		return errText
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Sprintf("Error: undecodable LLM response: %v", err)
	}
	return out.Message.Content
}

// GenerateStream runs a streaming chat completion, calling emit for each
// incremental fragment in arrival order. On failure it emits a single
// descriptive error fragment and stops.
func (c *ChatClient) GenerateStream(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int, emit func(token string)) {
	resp, errText := c.send(ctx, prompt, systemPrompt, temperature, maxTokens, true)
	if errText != "" {
		emit(errText)
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			emit(chunk.Message.Content)
		}
		if chunk.Done {
			return
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		emit(fmt.Sprintf("Error: stream read failed: %v", err))
	}
}

// send posts the chat request. The string return is a descriptive error
// text; it is empty exactly when the response is usable.
func (c *ChatClient) send(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int, stream bool) (*http.Response, string) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Options: chatOptions{Temperature: temperature, NumPredict: maxTokens},
		Stream:  stream,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Sprintf("Error: building LLM request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, "Error: LLM request timed out"
		}
		c.logger.Error("ollama: chat request failed", "error", err)
		return nil, "Error: Cannot connect to LLM server"
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		resp.Body.Close()
		c.logger.Error("ollama: chat error", "status", resp.StatusCode, "body", string(detail))
		return nil, fmt.Sprintf("Error: LLM returned status %d", resp.StatusCode)
	}
	return resp, ""
}
