package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webexporter/models"
)

func spiderList(spiders Spiders) models.SpidersResponse {
	out := []models.SpiderStatus{}
	for _, s := range spiders.List() {
		out = append(out, models.SpiderStatus{
			TabID:    s.TabID,
			SiteID:   s.SiteID,
			SpiderID: s.SpiderID,
			Started:  s.Started,
		})
	}
	return models.SpidersResponse{Success: true, Spiders: out}
}

// StartSpider returns a handler for POST /api/v1/spiders/start.
func StartSpider(spiders Spiders) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SpiderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := spiders.Start(req.TabID, req.SiteID, req.SpiderID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, spiderList(spiders))
	}
}

// StopSpider returns a handler for POST /api/v1/spiders/stop. It waits for
// the spider to return.
func StopSpider(spiders Spiders) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.StopSpiderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := spiders.Stop(c.Request.Context(), req.TabID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, spiderList(spiders))
	}
}

// ListSpiders returns a handler for GET /api/v1/spiders.
func ListSpiders(spiders Spiders) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, spiderList(spiders))
	}
}
