package ingest

import (
	"fmt"
	"regexp"
	"strings"
)

// InputType identifies the kind of source material a request carries.
type InputType string

const (
	InputFile     InputType = "file"
	InputYouTube  InputType = "youtube"
	InputText     InputType = "text"
	InputDocument InputType = "document"
)

// Output format identifiers a request may ask for.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatDocx     = "docx"
	FormatPDF      = "pdf"
	FormatMP3      = "mp3"
)

// ProcessingType selects the built-in LLM prompt used for post-processing.
type ProcessingType string

const (
	ProcessSummarize ProcessingType = "summarize"
	ProcessCritique  ProcessingType = "critique"
	ProcessExpand    ProcessingType = "expand"
	ProcessExplain   ProcessingType = "explain"
	ProcessCustom    ProcessingType = "custom"
)

// AIDirective asks for LLM post-processing of the extracted text.
type AIDirective struct {
	Enabled        bool           `json:"enabled"`
	ProcessingType ProcessingType `json:"processing_type"`
	Prompt         string         `json:"prompt,omitempty"`
	Model          string         `json:"model,omitempty"`
}

// Descriptor is the normalized, validated description of one processing
// request. It is captured on the job at creation time and never mutated.
type Descriptor struct {
	InputType      InputType   `json:"input_type"`
	Filename       string      `json:"filename,omitempty"`
	ObjectKey      string      `json:"object_key,omitempty"`
	SourceURL      string      `json:"source_url,omitempty"`
	Text           string      `json:"text,omitempty"`
	TargetLanguage string      `json:"target_language"`
	OutputFormats  []string    `json:"output_formats"`
	VoiceID        string      `json:"voice_id,omitempty"`
	AI             AIDirective `json:"ai"`
}

// Request is the raw, untrusted request as decoded from the HTTP layer.
type Request struct {
	InputType      string
	Filename       string
	SourceURL      string
	Text           string
	TargetLanguage string
	OutputFormats  []string
	VoiceID        string
	AI             AIDirective
}

// ValidationError reports a malformed or incomplete request. It is surfaced
// to the caller before any job exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

var languagePattern = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

var videoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/watch\?v=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/([a-zA-Z0-9_-]+)`),
}

// IsVideoURL reports whether the URL looks like a YouTube video link.
func IsVideoURL(raw string) bool {
	return ExtractVideoID(raw) != ""
}

// ExtractVideoID returns the video ID embedded in a YouTube URL, or "" if
// the URL does not match a known form.
func ExtractVideoID(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, p := range videoPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	}
	return ""
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".mp4": true,
	".ogg": true, ".flac": true, ".webm": true,
}

var documentExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".txt": true, ".md": true,
}

// Validate normalizes a raw request into a Descriptor, or rejects it with a
// *ValidationError. A request that passes here is satisfiable by the worker;
// no queued job ever represents an unsatisfiable request.
func Validate(req Request) (Descriptor, error) {
	var d Descriptor

	switch InputType(req.InputType) {
	case InputFile:
		ext := strings.ToLower(extension(req.Filename))
		if req.Filename == "" {
			return d, &ValidationError{Field: "filename", Reason: "required for file input"}
		}
		if !audioExtensions[ext] {
			return d, &ValidationError{Field: "filename", Reason: fmt.Sprintf("unsupported audio type %q", ext)}
		}
	case InputDocument:
		ext := strings.ToLower(extension(req.Filename))
		if req.Filename == "" {
			return d, &ValidationError{Field: "filename", Reason: "required for document input"}
		}
		if !documentExtensions[ext] {
			return d, &ValidationError{Field: "filename", Reason: fmt.Sprintf("unsupported document type %q", ext)}
		}
	case InputYouTube:
		if req.SourceURL == "" {
			return d, &ValidationError{Field: "source_url", Reason: "required for youtube input"}
		}
		if !IsVideoURL(req.SourceURL) {
			return d, &ValidationError{Field: "source_url", Reason: "not a recognized YouTube URL"}
		}
	case InputText:
		if strings.TrimSpace(req.Text) == "" {
			return d, &ValidationError{Field: "text", Reason: "required for text input"}
		}
	default:
		return d, &ValidationError{Field: "input_type", Reason: fmt.Sprintf("unknown input type %q", req.InputType)}
	}

	lang := req.TargetLanguage
	if lang == "" {
		lang = "en"
	}
	if !languagePattern.MatchString(lang) {
		return d, &ValidationError{Field: "target_language", Reason: fmt.Sprintf("%q is not an ISO language code", lang)}
	}

	formats := req.OutputFormats
	if len(formats) == 0 {
		formats = []string{FormatText}
	}
	seen := make(map[string]bool)
	normalized := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case FormatText, FormatMarkdown, FormatDocx, FormatPDF, FormatMP3:
		default:
			return d, &ValidationError{Field: "output_formats", Reason: fmt.Sprintf("unknown format %q", f)}
		}
		if !seen[f] {
			seen[f] = true
			normalized = append(normalized, f)
		}
	}
	if seen[FormatMP3] && req.VoiceID == "" {
		return d, &ValidationError{Field: "voice_id", Reason: "required when mp3 output is requested"}
	}

	ai := req.AI
	if ai.Enabled {
		switch ai.ProcessingType {
		case ProcessSummarize, ProcessCritique, ProcessExpand, ProcessExplain:
		case ProcessCustom:
			if strings.TrimSpace(ai.Prompt) == "" {
				return d, &ValidationError{Field: "ai.prompt", Reason: "required for custom processing"}
			}
		case "":
			ai.ProcessingType = ProcessSummarize
		default:
			return d, &ValidationError{Field: "ai.processing_type", Reason: fmt.Sprintf("unknown processing type %q", ai.ProcessingType)}
		}
	}

	return Descriptor{
		InputType:      InputType(req.InputType),
		Filename:       req.Filename,
		SourceURL:      req.SourceURL,
		Text:           req.Text,
		TargetLanguage: lang,
		OutputFormats:  normalized,
		VoiceID:        req.VoiceID,
		AI:             ai,
	}, nil
}

func extension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	return filename[i:]
}
