package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const capChat = "chat"

// ChatClient wraps an OpenAI-compatible chat completion endpoint.
type ChatClient struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Client      *http.Client
}

func NewChatClient(baseURL, apiKey, model string, maxTokens int, temperature, topP float64, timeout time.Duration) *ChatClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChatClient{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
		Client:      &http.Client{Timeout: timeout},
	}
}

type chatCompletionReq struct {
	Model       string    `json:"model"`
	Messages    []chatMsg `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResp struct {
	Choices []struct {
		Message chatMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat sends one prompt and returns the completion text.
func (c *ChatClient) Chat(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatCompletionReq{
		Model:       c.Model,
		Messages:    []chatMsg{{Role: "user", Content: prompt}},
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		TopP:        c.TopP,
	})
	if err != nil {
		return "", permanentError(capChat, err.Error())
	}

	url := fmt.Sprintf("%s/v1/chat/completions", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", permanentError(capChat, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", transportError(capChat, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(capChat, resp.StatusCode)
	}

	var decoded chatCompletionResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", permanentError(capChat, err.Error())
	}
	if decoded.Error != nil {
		return "", permanentError(capChat, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", permanentError(capChat, "empty choices")
	}
	return decoded.Choices[0].Message.Content, nil
}
