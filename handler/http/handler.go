package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"scribe/src/infrastructure/integrations/ollama"
	"scribe/src/infrastructure/integrations/tts"
	"scribe/src/infrastructure/job"
	"scribe/src/storage/searchctrl"
)

// ObjectStore is the slice of blob storage the API needs: storing uploads,
// streaming result artifacts, and removing uploads whose job never came to be.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error
	GetObjectStream(ctx context.Context, bucketName, objectName string) (io.ReadCloser, int64, error)
	DeleteObject(ctx context.Context, bucketName, objectName string) error
}

// Handler carries the service dependencies of the public API. It is
// constructed at process start and injected into the router; no handler
// state is global.
type Handler struct {
	jobs           *job.Service
	store          ObjectStore
	uploadBucket   string
	resultBucket   string
	maxUploadBytes int64
	ttsClient      *tts.Client
	ollamaClient   *ollama.Client
	defaultModel   string
	search         *searchctrl.SearchService
}

type Config struct {
	Jobs           *job.Service
	Store          ObjectStore
	UploadBucket   string
	ResultBucket   string
	MaxUploadBytes int64
	TTSClient      *tts.Client
	OllamaClient   *ollama.Client
	DefaultModel   string
	Search         *searchctrl.SearchService
}

func NewHandler(cfg Config) *Handler {
	return &Handler{
		jobs:           cfg.Jobs,
		store:          cfg.Store,
		uploadBucket:   cfg.UploadBucket,
		resultBucket:   cfg.ResultBucket,
		maxUploadBytes: cfg.MaxUploadBytes,
		ttsClient:      cfg.TTSClient,
		ollamaClient:   cfg.OllamaClient,
		defaultModel:   cfg.DefaultModel,
		search:         cfg.Search,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	api.POST("/process", h.Process)
	api.GET("/job-status/:job_id", h.JobStatus)
	api.GET("/download/:job_id/:filename", h.Download)
	api.GET("/voices", h.ListVoices)
	api.GET("/models", h.ListModels)
	api.GET("/transcripts/search", h.SearchTranscripts)

	r.GET("/health", h.CheckHealth)
}

func (h *Handler) CheckHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// sendJobError maps tracker errors onto HTTP statuses. A storage fault must
// surface as temporarily unavailable, never as a false not-found.
func sendJobError(c *gin.Context, err error) {
	var storageErr *job.StorageError
	switch {
	case errors.Is(err, job.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.As(err, &storageErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
