package outputfmt

import (
	"fmt"
	"strings"
	"time"

	"scribe/src/core/ingest"
)

// Metadata is the provenance block prepended to formatted output.
type Metadata struct {
	SourceName     string
	Language       string
	ProcessingType string
	ProcessedAt    time.Time
}

// AsText renders content as plain text with a transcription details header.
func AsText(content string, meta Metadata) string {
	var sb strings.Builder

	sb.WriteString("=== TRANSCRIPTION DETAILS ===\n")
	if meta.SourceName != "" {
		sb.WriteString(fmt.Sprintf("Source: %s\n", meta.SourceName))
	}
	if meta.Language != "" {
		sb.WriteString(fmt.Sprintf("Language: %s\n", meta.Language))
	}
	if meta.ProcessingType != "" {
		sb.WriteString(fmt.Sprintf("Processing: %s\n", meta.ProcessingType))
	}
	if !meta.ProcessedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Processed: %s\n", meta.ProcessedAt.UTC().Format(time.RFC3339)))
	}
	sb.WriteString(strings.Repeat("=", 30))
	sb.WriteString("\n\n")
	sb.WriteString(content)

	return sb.String()
}

// AsMarkdown renders content as a markdown document with a metadata section.
func AsMarkdown(content string, meta Metadata) string {
	var sb strings.Builder

	sb.WriteString("# Transcription\n\n")
	if meta.SourceName != "" || meta.Language != "" || !meta.ProcessedAt.IsZero() {
		sb.WriteString("## Details\n\n")
		if meta.SourceName != "" {
			sb.WriteString(fmt.Sprintf("- **Source:** %s\n", meta.SourceName))
		}
		if meta.Language != "" {
			sb.WriteString(fmt.Sprintf("- **Language:** %s\n", meta.Language))
		}
		if meta.ProcessingType != "" {
			sb.WriteString(fmt.Sprintf("- **Processing:** %s\n", meta.ProcessingType))
		}
		if !meta.ProcessedAt.IsZero() {
			sb.WriteString(fmt.Sprintf("- **Processed:** %s\n", meta.ProcessedAt.UTC().Format(time.RFC3339)))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("## Content\n\n")
	sb.WriteString(content)
	sb.WriteString("\n")

	return sb.String()
}

// FileName returns the artifact filename for a given output format.
func FileName(format string) string {
	switch format {
	case ingest.FormatText:
		return "transcript.txt"
	case ingest.FormatMarkdown:
		return "transcript.md"
	case ingest.FormatDocx:
		return "transcript.docx"
	case ingest.FormatPDF:
		return "transcript.pdf"
	case ingest.FormatMP3:
		return "speech.mp3"
	}
	return "transcript." + format
}

// ContentType returns the MIME type stored alongside an artifact.
func ContentType(format string) string {
	switch format {
	case ingest.FormatText:
		return "text/plain; charset=utf-8"
	case ingest.FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case ingest.FormatDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ingest.FormatPDF:
		return "application/pdf"
	case ingest.FormatMP3:
		return "audio/mpeg"
	}
	return "application/octet-stream"
}
