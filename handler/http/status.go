package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scribe/src/infrastructure/job"
)

// JobStatus returns the latest committed snapshot of a job. Result fields
// appear only once the job is completed; the error message only once it has
// failed.
func (h *Handler) JobStatus(c *gin.Context) {
	j, err := h.jobs.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		sendJobError(c, err)
		return
	}

	resp := gin.H{
		"status":              j.Status,
		"progress_percentage": j.Progress,
		"status_message":      j.StatusMessage,
	}
	switch j.Status {
	case job.StatusCompleted:
		files := j.ResultFiles
		if files == nil {
			files = []string{}
		}
		resp["result_text"] = j.ResultText
		resp["result_files"] = files
	case job.StatusFailed:
		resp["error_message"] = j.ErrorMessage
	}

	c.JSON(http.StatusOK, resp)
}
