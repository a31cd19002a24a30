package job

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"

	"scribe/src/core/ingest"
	"scribe/src/core/outputfmt"
	"scribe/src/infrastructure/integrations/docconv"
	"scribe/src/infrastructure/integrations/ollama"
	"scribe/src/infrastructure/integrations/openqm"
	"scribe/src/infrastructure/integrations/tts"
	"scribe/src/infrastructure/integrations/whisper"
	"scribe/src/infrastructure/integrations/youtube"
	"scribe/src/infrastructure/log"
	"scribe/src/storage/searchctrl"
)

// ObjectStore is the slice of blob storage the pipeline needs.
type ObjectStore interface {
	GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error)
	PutObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error
}

// Text longer than this is split into chunks before LLM processing.
const llmChunkThreshold = 12000

// promptConfig pairs the system and user prompt template for one built-in
// processing type.
type promptConfig struct {
	system string
	user   string
}

var processingPrompts = map[ingest.ProcessingType]promptConfig{
	ingest.ProcessSummarize: {
		system: "You are a helpful assistant that creates clear, concise summaries.",
		user:   "Please provide a comprehensive summary of the following text:\n\n%s",
	},
	ingest.ProcessCritique: {
		system: "You are a thoughtful critic who provides constructive analysis and feedback.",
		user:   "Please provide a detailed critique of the following text, including strengths, weaknesses, and suggestions for improvement:\n\n%s",
	},
	ingest.ProcessExpand: {
		system: "You are a creative writer who expands ideas with depth and detail.",
		user:   "Please expand on the following text with additional details, examples, and context:\n\n%s",
	},
	ingest.ProcessExplain: {
		system: "You are a clear educator who explains complex topics in simple terms.",
		user:   "Please explain the following text in clear, easy-to-understand language:\n\n%s",
	},
}

// ProcessingTask executes the delegated work for one job: source text
// acquisition, optional LLM post-processing, artifact rendering, and
// archival. Progress is reported through the repository as stages advance;
// the terminal transition is owned by the caller.
type ProcessingTask struct {
	repo          Repository
	store         ObjectStore
	uploadBucket  string
	resultBucket  string
	whisperClient *whisper.Client
	ollamaClient  *ollama.Client
	defaultModel  string
	ttsClient     *tts.Client
	docClient     *docconv.Client
	ytClient      *youtube.Client
	archive       *openqm.Client
	search        *searchctrl.SearchService
}

type ProcessingTaskConfig struct {
	Store         ObjectStore
	UploadBucket  string
	ResultBucket  string
	WhisperClient *whisper.Client
	OllamaClient  *ollama.Client
	DefaultModel  string
	TTSClient     *tts.Client
	DocClient     *docconv.Client
	YouTubeClient *youtube.Client
	Archive       *openqm.Client
	Search        *searchctrl.SearchService
}

func NewProcessingTask(repo Repository, cfg ProcessingTaskConfig) *ProcessingTask {
	return &ProcessingTask{
		repo:          repo,
		store:         cfg.Store,
		uploadBucket:  cfg.UploadBucket,
		resultBucket:  cfg.ResultBucket,
		whisperClient: cfg.WhisperClient,
		ollamaClient:  cfg.OllamaClient,
		defaultModel:  cfg.DefaultModel,
		ttsClient:     cfg.TTSClient,
		docClient:     cfg.DocClient,
		ytClient:      cfg.YouTubeClient,
		archive:       cfg.Archive,
		search:        cfg.Search,
	}
}

// Execute runs the pipeline for a running job and returns the result text
// and stored artifact names. A non-nil error means the job should fail.
func (task *ProcessingTask) Execute(ctx context.Context, j *Job) (string, []string, error) {
	d := j.Descriptor

	text, err := task.acquireText(ctx, j)
	if err != nil {
		return "", nil, err
	}

	resultText := text
	if d.AI.Enabled {
		task.progress(ctx, j.ID, 60, "running AI post-processing")
		processed, err := task.postProcess(ctx, d, text)
		if err != nil {
			return "", nil, fmt.Errorf("AI post-processing failed: %w", err)
		}
		resultText = processed
	}

	files, err := task.renderArtifacts(ctx, j, resultText)
	if err != nil {
		return "", nil, err
	}

	task.progress(ctx, j.ID, 95, "archiving transcript")
	task.archiveAndIndex(ctx, j, text, resultText)

	return resultText, files, nil
}

// acquireText resolves the descriptor's source material into plain text.
func (task *ProcessingTask) acquireText(ctx context.Context, j *Job) (string, error) {
	d := j.Descriptor

	switch d.InputType {
	case ingest.InputText:
		task.progress(ctx, j.ID, 10, "reading input text")
		return d.Text, nil

	case ingest.InputYouTube:
		task.progress(ctx, j.ID, 10, "fetching YouTube transcript")
		videoID := ingest.ExtractVideoID(d.SourceURL)
		if videoID == "" {
			return "", fmt.Errorf("could not extract video ID from %s", d.SourceURL)
		}
		transcript, err := task.ytClient.FetchTranscript(ctx, videoID, preferredLanguages(d.TargetLanguage))
		if err != nil {
			return "", fmt.Errorf("transcript extraction failed: %w", err)
		}
		task.progress(ctx, j.ID, 40, "transcript extracted")
		return transcript, nil

	case ingest.InputFile:
		task.progress(ctx, j.ID, 10, "fetching uploaded audio")
		audio, err := task.store.GetObject(ctx, task.uploadBucket, d.ObjectKey)
		if err != nil {
			return "", fmt.Errorf("failed to read uploaded file: %w", err)
		}
		task.progress(ctx, j.ID, 20, "transcribing audio")
		transcript, err := task.whisperClient.Transcribe(ctx, d.Filename, audio, d.TargetLanguage)
		if err != nil {
			return "", fmt.Errorf("transcription failed: %w", err)
		}
		task.progress(ctx, j.ID, 50, "transcription complete")
		return transcript, nil

	case ingest.InputDocument:
		task.progress(ctx, j.ID, 10, "fetching uploaded document")
		content, err := task.store.GetObject(ctx, task.uploadBucket, d.ObjectKey)
		if err != nil {
			return "", fmt.Errorf("failed to read uploaded document: %w", err)
		}
		task.progress(ctx, j.ID, 20, "extracting document text")
		text, err := task.docClient.ExtractText(ctx, d.Filename, content)
		if err != nil {
			return "", fmt.Errorf("document extraction failed: %w", err)
		}
		task.progress(ctx, j.ID, 50, "document text extracted")
		return text, nil
	}

	return "", fmt.Errorf("unknown input type %q", d.InputType)
}

// postProcess runs the requested LLM processing over the text, splitting
// into chunks when the input exceeds the model-friendly threshold.
func (task *ProcessingTask) postProcess(ctx context.Context, d ingest.Descriptor, text string) (string, error) {
	model := d.AI.Model
	if model == "" {
		model = task.defaultModel
	}

	system, userTemplate := promptsFor(d.AI)

	if len(text) <= llmChunkThreshold {
		return task.ollamaClient.Generate(ctx, model, system, fmt.Sprintf(userTemplate, text), nil)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(llmChunkThreshold),
		textsplitter.WithChunkOverlap(200),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return "", fmt.Errorf("failed to split text for processing: %w", err)
	}

	var parts []string
	for i, chunk := range chunks {
		out, err := task.ollamaClient.Generate(ctx, model, system, fmt.Sprintf(userTemplate, chunk), nil)
		if err != nil {
			return "", fmt.Errorf("processing chunk %d of %d: %w", i+1, len(chunks), err)
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, "\n\n"), nil
}

// promptsFor resolves the system prompt and user prompt template for a
// directive. Custom directives carry their own prompt.
func promptsFor(ai ingest.AIDirective) (system, userTemplate string) {
	if ai.ProcessingType == ingest.ProcessCustom {
		return "You are a helpful AI assistant.", ai.Prompt + "\n\n%s"
	}
	cfg, ok := processingPrompts[ai.ProcessingType]
	if !ok {
		cfg = processingPrompts[ingest.ProcessSummarize]
	}
	return cfg.system, cfg.user
}

// renderArtifacts writes one artifact per requested output format into the
// result bucket under the job's ID and returns the stored filenames.
func (task *ProcessingTask) renderArtifacts(ctx context.Context, j *Job, resultText string) ([]string, error) {
	d := j.Descriptor
	meta := outputfmt.Metadata{
		SourceName:     sourceName(d),
		Language:       d.TargetLanguage,
		ProcessedAt:    time.Now(),
		ProcessingType: processingLabel(d.AI),
	}

	files := []string{}
	total := len(d.OutputFormats)
	for i, format := range d.OutputFormats {
		pct := 70 + (20*i)/max(total, 1)
		task.progress(ctx, j.ID, pct, fmt.Sprintf("rendering %s output", format))

		var data []byte
		switch format {
		case ingest.FormatText:
			data = []byte(outputfmt.AsText(resultText, meta))
		case ingest.FormatMarkdown:
			data = []byte(outputfmt.AsMarkdown(resultText, meta))
		case ingest.FormatDocx, ingest.FormatPDF:
			rendered, err := task.docClient.Render(ctx, outputfmt.AsMarkdown(resultText, meta), format)
			if err != nil {
				return nil, fmt.Errorf("failed to render %s: %w", format, err)
			}
			data = rendered
		case ingest.FormatMP3:
			audio, err := task.ttsClient.Synthesize(ctx, resultText, d.VoiceID)
			if err != nil {
				return nil, fmt.Errorf("speech synthesis failed: %w", err)
			}
			data = audio
		default:
			return nil, fmt.Errorf("unknown output format %q", format)
		}

		filename := outputfmt.FileName(format)
		objectName := fmt.Sprintf("%s/%s", j.ID, filename)
		if err := task.store.PutObject(ctx, task.resultBucket, objectName, data, outputfmt.ContentType(format)); err != nil {
			return nil, fmt.Errorf("failed to store %s artifact: %w", format, err)
		}
		files = append(files, filename)
	}

	return files, nil
}

// archiveAndIndex records the transcript in the legacy database and the
// search index. Both are best-effort: failure is logged, not fatal, so a
// finished transcription is never discarded over a secondary sink.
func (task *ProcessingTask) archiveAndIndex(ctx context.Context, j *Job, transcript, resultText string) {
	d := j.Descriptor

	if task.archive != nil {
		recordID, err := task.archive.ArchiveTranscript(ctx, openqm.TranscriptRecord{
			JobID:          j.ID,
			SourceName:     sourceName(d),
			Language:       d.TargetLanguage,
			Transcript:     transcript,
			ProcessedText:  resultText,
			ProcessingType: processingLabel(d.AI),
			CreatedAt:      j.CreatedAt,
		})
		if err != nil {
			log.Error(err, "failed to archive transcript", "job_id", j.ID)
		} else {
			log.Info("transcript archived", "job_id", j.ID, "record_id", recordID)
		}
	}

	if task.search != nil {
		err := task.search.IndexTranscript(ctx, searchctrl.TranscriptDocument{
			JobID:          j.ID,
			SourceName:     sourceName(d),
			Language:       d.TargetLanguage,
			Transcript:     transcript,
			ProcessingType: processingLabel(d.AI),
			CreatedAt:      j.CreatedAt,
		})
		if err != nil {
			log.Error(err, "failed to index transcript", "job_id", j.ID)
		}
	}
}

// progress reports a stage advance; a lost update degrades to a log line
// rather than interrupting the pipeline.
func (task *ProcessingTask) progress(ctx context.Context, id string, pct int, msg string) {
	if err := task.repo.ReportProgress(ctx, id, pct, msg); err != nil {
		log.Error(err, "failed to report progress", "job_id", id, "percentage", pct)
	}
}

func sourceName(d ingest.Descriptor) string {
	switch d.InputType {
	case ingest.InputYouTube:
		return d.SourceURL
	case ingest.InputText:
		return "raw text"
	}
	return d.Filename
}

// preferredLanguages orders transcript language candidates, trying the
// requested language first and falling back to English variants.
func preferredLanguages(lang string) []string {
	if lang == "" || lang == "en" {
		return []string{"en", "en-US", "en-GB"}
	}
	return []string{lang, "en", "en-US"}
}

func processingLabel(ai ingest.AIDirective) string {
	if !ai.Enabled {
		return ""
	}
	return string(ai.ProcessingType)
}
