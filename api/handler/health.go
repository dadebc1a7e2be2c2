package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webexporter/models"
	"github.com/use-agent/webexporter/sites"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
func Health(rec Recorder, tabs Tabs, spiders Spiders, catalog *sites.Catalog, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    "healthy",
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Version:   Version,
			Browser:   tabs != nil,
			Recording: rec.Running(),
			Sites:     len(catalog.Sites()),
			Spiders:   len(spiders.List()),
		})
	}
}

// ListSites returns a handler for GET /api/v1/sites.
func ListSites(catalog *sites.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := []models.SiteInfo{}
		for _, s := range catalog.Sites() {
			info := models.SiteInfo{
				ID:         s.ID,
				Name:       s.Name,
				Tables:     sortedKeys(s.Tables),
				Extractors: sortedKeys(s.Extractors),
				Spiders:    sortedKeys(s.Spiders),
			}
			out = append(out, info)
		}
		c.JSON(http.StatusOK, models.SitesResponse{Success: true, Sites: out})
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
