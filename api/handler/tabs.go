package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webexporter/models"
)

// OpenTab returns a handler for POST /api/v1/tabs.
func OpenTab(tabs Tabs) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.OpenTabRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		id, err := tabs.Open(c.Request.Context(), req.URL, req.Referer)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.TabsResponse{
			Success: true,
			Tabs:    []models.Tab{{ID: id, URL: req.URL}},
		})
	}
}

// ListTabs returns a handler for GET /api/v1/tabs.
func ListTabs(tabs Tabs) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := []models.Tab{}
		for _, t := range tabs.Tabs() {
			out = append(out, models.Tab{ID: t.ID, URL: t.URL, Title: t.Title})
		}
		c.JSON(http.StatusOK, models.TabsResponse{Success: true, Tabs: out})
	}
}

// CloseTab returns a handler for DELETE /api/v1/tabs/:id.
func CloseTab(tabs Tabs) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			badRequest(c, err)
			return
		}
		if err := tabs.CloseTab(id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.TabsResponse{Success: true, Tabs: []models.Tab{}})
	}
}
