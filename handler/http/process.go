package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scribe/src/core/ingest"
	"scribe/src/infrastructure/log"
)

// ProcessJSONRequest is the JSON body accepted for text and YouTube inputs.
type ProcessJSONRequest struct {
	InputType      string             `json:"input_type" binding:"required"`
	Text           string             `json:"text"`
	URL            string             `json:"url"`
	TargetLanguage string             `json:"target_language"`
	OutputFormats  []string           `json:"output_formats"`
	VoiceID        string             `json:"voice_id"`
	AI             ingest.AIDirective `json:"ai"`
}

// Process accepts a new processing request. File and document inputs arrive
// as multipart forms; text and YouTube inputs as JSON. Validation happens
// before any job exists: a rejected request leaves no record behind.
func (h *Handler) Process(c *gin.Context) {
	contentType := c.ContentType()

	var (
		req         ingest.Request
		fileContent []byte
	)

	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "no file uploaded"})
			return
		}
		defer file.Close()

		if header.Size > h.maxUploadBytes {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   fmt.Sprintf("file exceeds the %d byte upload limit", h.maxUploadBytes),
			})
			return
		}

		fileContent, err = io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to read upload"})
			return
		}
		if int64(len(fileContent)) > h.maxUploadBytes {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   fmt.Sprintf("file exceeds the %d byte upload limit", h.maxUploadBytes),
			})
			return
		}

		req = ingest.Request{
			InputType:      c.PostForm("input_type"),
			Filename:       header.Filename,
			TargetLanguage: c.PostForm("target_language"),
			OutputFormats:  splitFormats(c.PostForm("output_formats")),
			VoiceID:        c.PostForm("voice_id"),
			AI: ingest.AIDirective{
				Enabled:        c.PostForm("ai_enabled") == "true",
				ProcessingType: ingest.ProcessingType(c.PostForm("ai_processing_type")),
				Prompt:         c.PostForm("ai_prompt"),
				Model:          c.PostForm("ai_model"),
			},
		}
		if req.InputType == "" {
			req.InputType = string(ingest.InputFile)
		}
	} else {
		var body ProcessJSONRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		req = ingest.Request{
			InputType:      body.InputType,
			Text:           body.Text,
			SourceURL:      body.URL,
			TargetLanguage: body.TargetLanguage,
			OutputFormats:  body.OutputFormats,
			VoiceID:        body.VoiceID,
			AI:             body.AI,
		}
	}

	descriptor, err := ingest.Validate(req)
	if err != nil {
		var validationErr *ingest.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": validationErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	if len(fileContent) > 0 {
		objectKey := uuid.New().String() + strings.ToLower(filepath.Ext(descriptor.Filename))
		if err := h.store.PutObject(c.Request.Context(), h.uploadBucket, objectKey, fileContent, ""); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "failed to store upload"})
			return
		}
		descriptor.ObjectKey = objectKey
	}

	jobID, err := h.jobs.Create(c.Request.Context(), descriptor)
	if err != nil {
		// The upload has no job referencing it; remove it rather than
		// leaving an orphan behind.
		if descriptor.ObjectKey != "" {
			if delErr := h.store.DeleteObject(c.Request.Context(), h.uploadBucket, descriptor.ObjectKey); delErr != nil {
				log.Error(delErr, "failed to remove orphaned upload", "object_key", descriptor.ObjectKey)
			}
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "failed to create job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "job_id": jobID})
}

func splitFormats(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	formats := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			formats = append(formats, p)
		}
	}
	return formats
}
