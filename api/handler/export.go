package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webexporter/models"
)

// ExportTasks returns a handler for GET /api/v1/export/tasks.
func ExportTasks(q ExportQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		tasks := q.Tasks()
		out := make([]models.ExportTask, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, models.ExportTask{URL: t.URL, Filename: t.Filename})
		}
		c.JSON(http.StatusOK, models.ExportResponse{Success: true, Count: len(out), Tasks: out})
	}
}

// ExportOutput returns a handler for GET /api/v1/export/output. The body
// is the plain-text list, one entry per line.
func ExportOutput(q ExportQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, q.Output())
	}
}

// ClearExport returns a handler for DELETE /api/v1/export/tasks.
func ClearExport(q ExportQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		q.Clear()
		c.JSON(http.StatusOK, models.ExportResponse{Success: true, Tasks: []models.ExportTask{}})
	}
}
