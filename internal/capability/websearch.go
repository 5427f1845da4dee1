package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const capWebSearch = "web_search"

// WebSearchClient wraps the live-web lookup service. The reply is a
// pre-summarized digest of current results, suitable for prompt context.
type WebSearchClient struct {
	BaseURL    string
	APIKey     string
	MaxResults int
	Client     *http.Client
}

func NewWebSearchClient(baseURL, apiKey string, timeout time.Duration) *WebSearchClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebSearchClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		MaxResults: 5,
		Client:     &http.Client{Timeout: timeout},
	}
}

type webSearchReq struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type webSearchResp struct {
	Query        string `json:"query"`
	Summary      string `json:"summary"`
	TotalResults int    `json:"total_results"`
	Error        string `json:"error,omitempty"`
}

// Search returns a one-paragraph summary of current web results for query.
func (c *WebSearchClient) Search(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(webSearchReq{Query: query, MaxResults: c.MaxResults})
	if err != nil {
		return "", permanentError(capWebSearch, err.Error())
	}

	url := fmt.Sprintf("%s/v1/search", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", permanentError(capWebSearch, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", transportError(capWebSearch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(capWebSearch, resp.StatusCode)
	}

	var decoded webSearchResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", permanentError(capWebSearch, err.Error())
	}
	if decoded.Error != "" {
		return "", permanentError(capWebSearch, decoded.Error)
	}
	return fmt.Sprintf("Current Web Information: %s", decoded.Summary), nil
}
