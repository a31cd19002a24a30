package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client fetches video transcripts from the transcript extraction service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, c *http.Client) *Client {
	return &Client{baseURL: baseURL, httpClient: c}
}

type transcriptResponse struct {
	VideoID    string `json:"video_id"`
	Language   string `json:"language"`
	Transcript string `json:"transcript"`
	Error      string `json:"error,omitempty"`
}

// FetchTranscript retrieves the transcript for a video, trying the given
// language codes in order of preference.
func (c *Client) FetchTranscript(ctx context.Context, videoID string, languages []string) (string, error) {
	if len(languages) == 0 {
		languages = []string{"en", "en-US", "en-GB"}
	}

	q := url.Values{}
	q.Set("video_id", videoID)
	q.Set("languages", strings.Join(languages, ","))

	reqURL := fmt.Sprintf("%s/transcript?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcript service returned %d: %s", resp.StatusCode, string(body))
	}

	var result transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("transcript extraction failed: %s", result.Error)
	}
	if strings.TrimSpace(result.Transcript) == "" {
		return "", fmt.Errorf("no transcript available for video %s", videoID)
	}

	return result.Transcript, nil
}
