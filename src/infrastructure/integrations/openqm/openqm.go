package openqm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Multi-value database delimiter characters.
const (
	FieldMark    = '\xFE'
	ValueMark    = '\xFD'
	SubvalueMark = '\xFC'
)

// TranscriptRecord is the data archived for one completed job.
type TranscriptRecord struct {
	JobID          string
	SourceName     string
	Language       string
	Transcript     string
	ProcessedText  string
	ProcessingType string
	CreatedAt      time.Time
}

// Client writes transcript records into a legacy multi-value database
// through its HTTP gateway. The record body uses field marks between
// attributes and value marks between transcript lines, as the database
// expects; the wire protocol itself lives behind the gateway.
type Client struct {
	gatewayURL string
	account    string
	file       string
	httpClient *http.Client
	node       *snowflake.Node
}

func NewClient(gatewayURL, account, file string, c *http.Client) (*Client, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}

	return &Client{
		gatewayURL: gatewayURL,
		account:    account,
		file:       file,
		httpClient: c,
		node:       node,
	}, nil
}

type writeRequest struct {
	Account  string `json:"account"`
	File     string `json:"file"`
	RecordID string `json:"record_id"`
	Record   string `json:"record"`
}

type writeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ArchiveTranscript writes one transcript record and returns the generated
// record ID.
func (c *Client) ArchiveTranscript(ctx context.Context, rec TranscriptRecord) (string, error) {
	recordID := fmt.Sprintf("TRANS_%s", c.node.Generate())

	reqBody := writeRequest{
		Account:  c.account,
		File:     c.file,
		RecordID: recordID,
		Record:   BuildRecord(rec),
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL+"/write", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error reaching openqm gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openqm gateway returned %d: %s", resp.StatusCode, string(body))
	}

	var result writeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error decoding gateway response: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("openqm write rejected: %s", result.Error)
	}

	return recordID, nil
}

// BuildRecord flattens a transcript record into the multi-value layout:
// one attribute per field, transcript and processed text lines as values
// within their attribute.
func BuildRecord(rec TranscriptRecord) string {
	attributes := []string{
		rec.JobID,
		rec.SourceName,
		rec.Language,
		rec.CreatedAt.UTC().Format("20060102_150405"),
		multivalue(rec.Transcript),
		rec.ProcessingType,
		multivalue(rec.ProcessedText),
	}
	return strings.Join(attributes, string(FieldMark))
}

// multivalue converts newline-separated text into value-mark-separated
// values, stripping characters that would collide with the record marks.
func multivalue(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.Map(func(r rune) rune {
			switch r {
			case FieldMark, ValueMark, SubvalueMark:
				return -1
			}
			return r
		}, line)
	}
	return strings.Join(lines, string(ValueMark))
}
