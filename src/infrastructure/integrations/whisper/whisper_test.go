package whisper_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"scribe/src/infrastructure/integrations/whisper"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q, want /audio/transcriptions", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q, want whisper-1", got)
		}
		if got := r.FormValue("language"); got != "de" {
			t.Errorf("language = %q, want de", got)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("reading file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "meeting.mp3" {
			t.Errorf("filename = %q, want meeting.mp3", header.Filename)
		}
		content, _ := io.ReadAll(file)
		if string(content) != "fake audio bytes" {
			t.Errorf("file content = %q", content)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hallo welt","language":"de"}`))
	}))
	defer srv.Close()

	c := whisper.NewClient(srv.URL, "whisper-1", srv.Client())
	got, err := c.Transcribe(context.Background(), "meeting.mp3", []byte("fake audio bytes"), "de")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "hallo welt" {
		t.Errorf("Transcribe() = %q, want %q", got, "hallo welt")
	}
}

func TestTranscribeOmitsEmptyLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart form: %v", err)
		}
		if _, ok := r.MultipartForm.Value["language"]; ok {
			t.Error("language field should be omitted for autodetect")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	c := whisper.NewClient(srv.URL, "whisper-1", srv.Client())
	if _, err := c.Transcribe(context.Background(), "a.mp3", []byte("x"), ""); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := whisper.NewClient(srv.URL, "whisper-1", srv.Client())
	if _, err := c.Transcribe(context.Background(), "a.mp3", []byte("x"), ""); err == nil {
		t.Fatal("Transcribe() expected error for server failure")
	}
}

func TestTranscribeEmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"   "}`))
	}))
	defer srv.Close()

	c := whisper.NewClient(srv.URL, "whisper-1", srv.Client())
	if _, err := c.Transcribe(context.Background(), "a.mp3", []byte("x"), ""); err == nil {
		t.Fatal("Transcribe() expected error for empty transcription")
	}
}
