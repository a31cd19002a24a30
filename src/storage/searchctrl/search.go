package searchctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

// TranscriptDocument is the shape indexed for each completed job.
type TranscriptDocument struct {
	JobID          string    `json:"job_id"`
	SourceName     string    `json:"source_name"`
	Language       string    `json:"language"`
	Transcript     string    `json:"transcript"`
	ProcessingType string    `json:"processing_type,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SearchHit is one transcript match returned to the caller.
type SearchHit struct {
	JobID      string  `json:"job_id"`
	SourceName string  `json:"source_name"`
	Language   string  `json:"language"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// SearchService indexes completed transcripts in Elasticsearch for
// full-text lookup.
type SearchService struct {
	client *elasticsearch.Client
	index  string
}

func NewSearchService(url, index string) (*SearchService, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &SearchService{client: client, index: index}, nil
}

// IndexTranscript stores one transcript document keyed by job ID.
func (s *SearchService) IndexTranscript(ctx context.Context, doc TranscriptDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript document: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(doc.JobID),
	)
	if err != nil {
		return fmt.Errorf("failed to index transcript: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch rejected document: %s", string(msg))
	}
	return nil
}

// Search runs a match query against indexed transcripts.
func (s *SearchService) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}

	var buf bytes.Buffer
	q := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"transcript": query,
			},
		},
	}
	if err := json.NewEncoder(&buf).Encode(q); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search transcripts: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch search failed: %s", string(msg))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64            `json:"_score"`
				Source TranscriptDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]SearchHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, SearchHit{
			JobID:      h.Source.JobID,
			SourceName: h.Source.SourceName,
			Language:   h.Source.Language,
			Snippet:    snippet(h.Source.Transcript, 200),
			Score:      h.Score,
		})
	}
	return hits, nil
}

func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	cut := strings.LastIndex(text[:max], " ")
	if cut <= 0 {
		cut = max
	}
	return text[:cut] + "..."
}
