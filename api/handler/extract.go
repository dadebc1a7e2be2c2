package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/webexporter/engine"
	"github.com/use-agent/webexporter/models"
)

// Extract returns a handler for POST /api/v1/extract.
//
// The supplied body goes through the same capture and rule path as a
// browser response, so extractors store and export exactly as they would
// while recording.
func Extract(rec Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults()

		ex := &engine.Exchange{
			ID:      uuid.NewString(),
			URL:     req.URL,
			Method:  req.Method,
			Type:    "xmlhttprequest",
			Referer: req.Referer,
			Open: func() (engine.StreamFilter, error) {
				return engine.NewBodyFilter([]byte(req.Body)), nil
			},
		}
		results, err := rec.Extract(c.Request.Context(), ex)
		if err != nil {
			respondError(c, err)
			return
		}
		if len(results) == 0 {
			respondError(c, models.Errorf(models.ErrCodeNotFound, "no extractor matches %s", req.URL))
			return
		}

		out := make([]models.ExtractResult, 0, len(results))
		for _, r := range results {
			res := models.ExtractResult{SiteID: r.SiteID, ExtractorID: r.ExtractorID, Model: r.Model}
			if r.Err != nil {
				res.Error = errorDetail(r.Err)
			}
			out = append(out, res)
		}
		c.JSON(http.StatusOK, models.ExtractResponse{
			Success: true,
			ID:      ex.ID,
			Results: out,
			Timing:  models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
		})
	}
}
