package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Voice describes one synthesis voice offered by the engine.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender,omitempty"`
}

// Client talks to the speech synthesis engine.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, c *http.Client) *Client {
	return &Client{baseURL: baseURL, httpClient: c}
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// ListVoices returns the voice catalog of the synthesis engine.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	url := fmt.Sprintf("%s/voices", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts engine returned %d listing voices", resp.StatusCode)
	}

	var voices []Voice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("error decoding voice list: %w", err)
	}
	return voices, nil
}

// Synthesize renders text with the given voice and returns the encoded
// audio bytes (MP3).
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	reqBody := synthesizeRequest{Text: text, Voice: voiceID}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/synthesize", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts engine returned %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading audio response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts engine returned empty audio for voice %s", voiceID)
	}
	return audio, nil
}
