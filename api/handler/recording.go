package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webexporter/models"
)

func recordingState(rec Recorder) models.RecordingResponse {
	return models.RecordingResponse{
		Success:    true,
		Recording:  rec.Running(),
		ExportKind: rec.ExportKind(),
	}
}

// StartRecording returns a handler for POST /api/v1/recording/start.
// The body is optional.
func StartRecording(rec Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RecordingRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, err)
			return
		}
		if req.ExportKind != "" {
			rec.SetExportKind(req.ExportKind)
		}
		if err := rec.Start(); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recordingState(rec))
	}
}

// StopRecording returns a handler for POST /api/v1/recording/stop.
func StopRecording(rec Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := rec.Stop(); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recordingState(rec))
	}
}

// RecordingStatus returns a handler for GET /api/v1/recording.
func RecordingStatus(rec Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, recordingState(rec))
	}
}
