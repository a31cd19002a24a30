package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"scribe/src/core/outputfmt"
	"scribe/src/infrastructure/job"
	"scribe/src/infrastructure/log"
)

// Download streams one result artifact of a completed job. The filename
// must be among the job's recorded result files, which also keeps object
// keys confined to the job's own prefix.
func (h *Handler) Download(c *gin.Context) {
	jobID := c.Param("job_id")
	filename := c.Param("filename")

	j, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		sendJobError(c, err)
		return
	}
	if j.Status != job.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "job has no results yet"})
		return
	}

	known := false
	for _, f := range j.ResultFiles {
		if f == filename {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such result file"})
		return
	}

	objectName := fmt.Sprintf("%s/%s", jobID, filename)
	stream, size, err := h.store.GetObjectStream(c.Request.Context(), h.resultBucket, objectName)
	if err != nil {
		log.Error(err, "failed to open result artifact", "job_id", jobID, "filename", filename)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
		return
	}
	defer stream.Close()

	format := strings.TrimPrefix(strings.ToLower(filenameExt(filename)), ".")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.DataFromReader(http.StatusOK, size, outputfmt.ContentType(formatFromExt(format)), stream, nil)
}

func filenameExt(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	return filename[i:]
}

func formatFromExt(ext string) string {
	switch ext {
	case "txt":
		return "text"
	case "md":
		return "markdown"
	}
	return ext
}
