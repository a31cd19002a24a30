package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scribe/src/infrastructure/log"
)

// ListVoices returns the synthesis engine's voice catalog.
func (h *Handler) ListVoices(c *gin.Context) {
	voices, err := h.ttsClient.ListVoices(c.Request.Context())
	if err != nil {
		log.Error(err, "failed to list voices")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "voice catalog unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"voices": voices})
}

// ListModels returns the models available on the LLM runtime. When the
// runtime is unreachable the default model is still advertised so clients
// can submit requests that will work once it recovers.
func (h *Handler) ListModels(c *gin.Context) {
	models, err := h.ollamaClient.ListModels(c.Request.Context())
	if err != nil {
		log.Error(err, "failed to list models, advertising default")
		models = []string{h.defaultModel}
	}
	c.JSON(http.StatusOK, gin.H{"models": models, "default": h.defaultModel})
}
