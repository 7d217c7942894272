// Package announcer produces the flavor text shown while a winner is
// revealed. It is strictly best-effort: callers bound it with a context and
// fall back to a canned line when it is slow or down.
package announcer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

const defaultModel = "gpt-4o-mini"

const completionsURL = "https://api.openai.com/v1/chat/completions"

// OpenAI asks a chat-completions endpoint for a short reveal scene built
// around the winning title.
type OpenAI struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewOpenAI(apiKey string, logger *zap.Logger) *OpenAI {
	return &OpenAI{
		apiKey:     apiKey,
		model:      defaultModel,
		endpoint:   completionsURL,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
}

// WithEndpoint overrides the completions URL, for tests and proxies.
func (o *OpenAI) WithEndpoint(url string) *OpenAI {
	o.endpoint = url
	return o
}

func (o *OpenAI) Flavor(ctx context.Context, winner string) (string, error) {
	prompt := fmt.Sprintf(`You are writing a short reveal scene for the movie: %s

Write 3-5 lines of dialogue between characters from the movie. Build
suspense without saying the title. No actor names, no spoilers, no
narration. Match the movie's genre and tone.`, winner)

	body, err := json.Marshal(chatRequest{
		Model:    o.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal announce request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build announce request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("announce request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("announce provider returned status %d", resp.StatusCode)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode announce response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("announce provider returned no choices")
	}

	content := result.Choices[0].Message.Content
	o.logger.Debug("flavor text generated", zap.Int("length", len(content)))
	return content, nil
}
