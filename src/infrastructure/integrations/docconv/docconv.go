package docconv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// Client talks to the document conversion service, which extracts text from
// uploaded documents and renders markdown into binary formats.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, c *http.Client) *Client {
	return &Client{baseURL: baseURL, httpClient: c}
}

type extractElement struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ExtractText extracts the plain text content of a document.
func (c *Client) ExtractText(ctx context.Context, filename string, content []byte) (string, error) {
	var requestBody bytes.Buffer
	multipartWriter := multipart.NewWriter(&requestBody)

	fileWriter, err := multipartWriter.CreateFormFile("files", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(fileWriter, bytes.NewReader(content)); err != nil {
		return "", fmt.Errorf("failed to write file content: %w", err)
	}
	if err := multipartWriter.WriteField("output_format", "application/json"); err != nil {
		return "", fmt.Errorf("failed to write output format: %w", err)
	}
	multipartWriter.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", multipartWriter.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach conversion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("conversion service returned %d: %s", resp.StatusCode, string(body))
	}

	var elements []extractElement
	if err := json.NewDecoder(resp.Body).Decode(&elements); err != nil {
		return "", fmt.Errorf("failed to decode extraction response: %w", err)
	}

	var sb strings.Builder
	for _, el := range elements {
		if el.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(el.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text extracted from %s", filename)
	}
	return sb.String(), nil
}

type renderRequest struct {
	Content string `json:"content"`
	Format  string `json:"format"`
}

// Render converts markdown content into the requested binary format
// ("docx" or "pdf") and returns the file bytes.
func (c *Client) Render(ctx context.Context, markdownContent, format string) ([]byte, error) {
	reqBody := renderRequest{Content: markdownContent, Format: format}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach conversion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("conversion service returned %d: %s", resp.StatusCode, string(body))
	}

	rendered, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading rendered document: %w", err)
	}
	return rendered, nil
}
