package job_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"scribe/src/core/ingest"
	"scribe/src/infrastructure/integrations/docconv"
	"scribe/src/infrastructure/integrations/ollama"
	"scribe/src/infrastructure/integrations/tts"
	"scribe/src/infrastructure/integrations/whisper"
	"scribe/src/infrastructure/integrations/youtube"
	"scribe/src/infrastructure/job"
)

// fakeStore is an in-memory object store for pipeline tests.
type fakeStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (s *fakeStore) GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucketName+"/"+objectName]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucketName, objectName)
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeStore) PutObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bucketName + "/" + objectName
	s.objects[key] = append([]byte(nil), data...)
	s.contentTypes[key] = contentType
	return nil
}

func (s *fakeStore) seed(bucketName, objectName string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucketName+"/"+objectName] = data
}

// startJob creates a job for the descriptor and moves it to running, the
// state Execute is always called in.
func startJob(t *testing.T, repo job.Repository, d ingest.Descriptor) *job.Job {
	t.Helper()

	j := &job.Job{
		ID:            uuid.New().String(),
		Status:        job.StatusQueued,
		StatusMessage: "queued",
		Descriptor:    d,
	}
	ctx := context.Background()
	if err := repo.Create(ctx, j); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Begin(ctx, j.ID); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	return j
}

func TestExecuteTextInput(t *testing.T) {
	repo := job.NewMemoryRepository()
	store := newFakeStore()
	task := job.NewProcessingTask(repo, job.ProcessingTaskConfig{
		Store:        store,
		UploadBucket: "uploads",
		ResultBucket: "results",
	})

	j := startJob(t, repo, ingest.Descriptor{
		InputType:      ingest.InputText,
		Text:           "hello there",
		TargetLanguage: "en",
		OutputFormats:  []string{ingest.FormatText},
	})

	resultText, files, err := task.Execute(context.Background(), j)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resultText != "hello there" {
		t.Errorf("resultText = %q, want the input text unchanged", resultText)
	}
	if len(files) != 1 || files[0] != "transcript.txt" {
		t.Fatalf("files = %v, want [transcript.txt]", files)
	}

	artifact, err := store.GetObject(context.Background(), "results", j.ID+"/transcript.txt")
	if err != nil {
		t.Fatalf("artifact not stored: %v", err)
	}
	if !strings.Contains(string(artifact), "=== TRANSCRIPTION DETAILS ===") {
		t.Errorf("artifact missing metadata header:\n%s", artifact)
	}
	if !strings.Contains(string(artifact), "hello there") {
		t.Errorf("artifact missing content:\n%s", artifact)
	}

	// Execute reports progress but never records the terminal state; that
	// belongs to the message consumer.
	got, err := repo.Get(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != job.StatusRunning {
		t.Errorf("Status = %v after Execute, want %v", got.Status, job.StatusRunning)
	}
	if got.Progress != 95 {
		t.Errorf("Progress = %d, want 95 (final stage report)", got.Progress)
	}
}

func TestExecuteYouTubeInput(t *testing.T) {
	tests := []struct {
		name          string
		lang          string
		wantLanguages string
	}{
		{"requested language first", "de", "de,en,en-US"},
		{"english default order", "en", "en,en-US,en-GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("video_id"); got != "dQw4w9WgXcQ" {
					t.Errorf("video_id = %q, want extracted ID", got)
				}
				if got := r.URL.Query().Get("languages"); got != tt.wantLanguages {
					t.Errorf("languages = %q, want %q", got, tt.wantLanguages)
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"video_id":"dQw4w9WgXcQ","transcript":"video words"}`))
			}))
			defer srv.Close()

			repo := job.NewMemoryRepository()
			task := job.NewProcessingTask(repo, job.ProcessingTaskConfig{
				Store:         newFakeStore(),
				UploadBucket:  "uploads",
				ResultBucket:  "results",
				YouTubeClient: youtube.NewClient(srv.URL, srv.Client()),
			})

			j := startJob(t, repo, ingest.Descriptor{
				InputType:      ingest.InputYouTube,
				SourceURL:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
				TargetLanguage: tt.lang,
				OutputFormats:  []string{ingest.FormatText},
			})

			resultText, _, err := task.Execute(context.Background(), j)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if resultText != "video words" {
				t.Errorf("resultText = %q, want the fetched transcript", resultText)
			}
		})
	}
}

func TestExecuteFileInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"spoken words"}`))
	}))
	defer srv.Close()

	repo := job.NewMemoryRepository()
	store := newFakeStore()
	store.seed("uploads", "abc123.mp3", []byte("audio bytes"))

	task := job.NewProcessingTask(repo, job.ProcessingTaskConfig{
		Store:         store,
		UploadBucket:  "uploads",
		ResultBucket:  "results",
		WhisperClient: whisper.NewClient(srv.URL, "whisper-1", srv.Client()),
	})

	j := startJob(t, repo, ingest.Descriptor{
		InputType:      ingest.InputFile,
		Filename:       "meeting.mp3",
		ObjectKey:      "abc123.mp3",
		TargetLanguage: "en",
		OutputFormats:  []string{ingest.FormatText},
	})

	resultText, _, err := task.Execute(context.Background(), j)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resultText != "spoken words" {
		t.Errorf("resultText = %q, want the transcription", resultText)
	}
}

func TestExecuteDocumentInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Errorf("path = %q, want /extract", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"type":"NarrativeText","text":"para one"},{"type":"NarrativeText","text":"para two"}]`))
	}))
	defer srv.Close()

	repo := job.NewMemoryRepository()
	store := newFakeStore()
	store.seed("uploads", "doc1.pdf", []byte("%PDF fake"))

	task := job.NewProcessingTask(repo, job.ProcessingTaskConfig{
		Store:        store,
		UploadBucket: "uploads",
		ResultBucket: "results",
		DocClient:    docconv.NewClient(srv.URL, srv.Client()),
	})

	j := startJob(t, repo, ingest.Descriptor{
		InputType:      ingest.InputDocument,
		Filename:       "notes.pdf",
		ObjectKey:      "doc1.pdf",
		TargetLanguage: "en",
		OutputFormats:  []string{ingest.FormatText},
	})

	resultText, _, err := task.Execute(context.Background(), j)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resultText != "para one\n\npara two" {
		t.Errorf("resultText = %q, want joined paragraphs", resultText)
	}
}

func TestExecuteRendersRequestedFormats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/render", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content string `json:"content"`
			Format  string `json:"format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding render request: %v", err)
		}
		if req.Format != "pdf" {
			t.Errorf("render format = %q, want pdf", req.Format)
		}
		w.Write([]byte("%PDF rendered"))
	})
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ID3 audio bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := job.NewMemoryRepository()
	store := newFakeStore()

	task := job.NewProcessingTask(repo, job.ProcessingTaskConfig{
		Store:        store,
		UploadBucket: "uploads",
		ResultBucket: "results",
		DocClient:    docconv.NewClient(srv.URL, srv.Client()),
		TTSClient:    tts.NewClient(srv.URL, srv.Client()),
	})

	j := startJob(t, repo, ingest.Descriptor{
		InputType:      ingest.InputText,
		Text:           "render me",
		TargetLanguage: "en",
		OutputFormats:  []string{ingest.FormatText, ingest.FormatMarkdown, ingest.FormatPDF, ingest.FormatMP3},
		VoiceID:        "google_en_us_female",
	})

	_, files, err := task.Execute(context.Background(), j)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := []string{"transcript.txt", "transcript.md", "transcript.pdf", "speech.mp3"}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}

	ctx := context.Background()
	for _, f := range want {
		if _, err := store.GetObject(ctx, "results", j.ID+"/"+f); err != nil {
			t.Errorf("artifact %s not stored: %v", f, err)
		}
	}
	if ct := store.contentTypes["results/"+j.ID+"/transcript.pdf"]; ct != "application/pdf" {
		t.Errorf("pdf content type = %q, want application/pdf", ct)
	}
}

func TestExecutePromptSelection(t *testing.T) {
	tests := []struct {
		name         string
		ai           ingest.AIDirective
		wantSystem   string
		wantInPrompt string
	}{
		{
			name:         "summarize",
			ai:           ingest.AIDirective{Enabled: true, ProcessingType: ingest.ProcessSummarize},
			wantSystem:   "You are a helpful assistant that creates clear, concise summaries.",
			wantInPrompt: "comprehensive summary",
		},
		{
			name:         "critique",
			ai:           ingest.AIDirective{Enabled: true, ProcessingType: ingest.ProcessCritique},
			wantSystem:   "You are a thoughtful critic who provides constructive analysis and feedback.",
			wantInPrompt: "detailed critique",
		},
		{
			name:         "expand",
			ai:           ingest.AIDirective{Enabled: true, ProcessingType: ingest.ProcessExpand},
			wantSystem:   "You are a creative writer who expands ideas with depth and detail.",
			wantInPrompt: "expand on the following text",
		},
		{
			name:         "explain",
			ai:           ingest.AIDirective{Enabled: true, ProcessingType: ingest.ProcessExplain},
			wantSystem:   "You are a clear educator who explains complex topics in simple terms.",
			wantInPrompt: "easy-to-understand language",
		},
		{
			name: "custom prompt passes through",
			ai: ingest.AIDirective{
				Enabled:        true,
				ProcessingType: ingest.ProcessCustom,
				Prompt:         "Rewrite this as a haiku",
			},
			wantSystem:   "You are a helpful AI assistant.",
			wantInPrompt: "Rewrite this as a haiku",
		},
		{
			name:         "unrecognized type falls back to summarize",
			ai:           ingest.AIDirective{Enabled: true, ProcessingType: "emojify"},
			wantSystem:   "You are a helpful assistant that creates clear, concise summaries.",
			wantInPrompt: "comprehensive summary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured struct {
				Model  string `json:"model"`
				System string `json:"system"`
				Prompt string `json:"prompt"`
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
					t.Fatalf("decoding generate request: %v", err)
				}
				w.Write([]byte(`{"response":"processed","done":true}` + "\n"))
			}))
			defer srv.Close()

			repo := job.NewMemoryRepository()
			task := job.NewProcessingTask(repo, job.ProcessingTaskConfig{
				Store:        newFakeStore(),
				UploadBucket: "uploads",
				ResultBucket: "results",
				OllamaClient: ollama.NewClient(srv.URL, srv.Client()),
				DefaultModel: "llama2",
			})

			j := startJob(t, repo, ingest.Descriptor{
				InputType:      ingest.InputText,
				Text:           "the source text",
				TargetLanguage: "en",
				OutputFormats:  []string{ingest.FormatText},
				AI:             tt.ai,
			})

			resultText, _, err := task.Execute(context.Background(), j)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if resultText != "processed" {
				t.Errorf("resultText = %q, want the model output", resultText)
			}
			if captured.Model != "llama2" {
				t.Errorf("model = %q, want the default model", captured.Model)
			}
			if captured.System != tt.wantSystem {
				t.Errorf("system prompt = %q, want %q", captured.System, tt.wantSystem)
			}
			if !strings.Contains(captured.Prompt, tt.wantInPrompt) {
				t.Errorf("prompt %q missing %q", captured.Prompt, tt.wantInPrompt)
			}
			if !strings.Contains(captured.Prompt, "the source text") {
				t.Errorf("prompt %q missing the source text", captured.Prompt)
			}
		})
	}
}

func TestExecuteTranscriptionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	repo := job.NewMemoryRepository()
	store := newFakeStore()
	store.seed("uploads", "abc123.mp3", []byte("audio bytes"))

	task := job.NewProcessingTask(repo, job.ProcessingTaskConfig{
		Store:         store,
		UploadBucket:  "uploads",
		ResultBucket:  "results",
		WhisperClient: whisper.NewClient(srv.URL, "whisper-1", srv.Client()),
	})

	j := startJob(t, repo, ingest.Descriptor{
		InputType:      ingest.InputFile,
		Filename:       "meeting.mp3",
		ObjectKey:      "abc123.mp3",
		TargetLanguage: "en",
		OutputFormats:  []string{ingest.FormatText},
	})

	if _, _, err := task.Execute(context.Background(), j); err == nil {
		t.Fatal("Execute() expected error when transcription fails")
	}

	// The failing task does not write the terminal state itself.
	got, err := repo.Get(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != job.StatusRunning {
		t.Errorf("Status = %v, want %v (terminal call belongs to the consumer)", got.Status, job.StatusRunning)
	}
}
