package models

import "strings"

// RecordingRequest is the payload for POST /api/v1/recording/start.
type RecordingRequest struct {
	// ExportKind is used by export steps that name no kind.
	// Allowed: "url" (default), "media", "download".
	ExportKind string `json:"export_kind,omitempty" binding:"omitempty,oneof=url media download"`
}

// OpenTabRequest is the payload for POST /api/v1/tabs.
type OpenTabRequest struct {
	// URL is the page to open. Required.
	URL string `json:"url" binding:"required,url"`

	// Referer is sent with every request of the tab.
	Referer string `json:"referer,omitempty" binding:"omitempty,url"`
}

// SpiderRequest is the payload for POST /api/v1/spiders/start.
type SpiderRequest struct {
	TabID    int    `json:"tab_id" binding:"required,min=1"`
	SiteID   string `json:"site_id" binding:"required"`
	SpiderID string `json:"spider_id" binding:"required"`
}

// StopSpiderRequest is the payload for POST /api/v1/spiders/stop.
type StopSpiderRequest struct {
	TabID int `json:"tab_id" binding:"required,min=1"`
}

// ExtractRequest is the payload for POST /api/v1/extract. It runs the
// extractors matching URL against Body as if the body had been captured.
type ExtractRequest struct {
	URL     string `json:"url" binding:"required,url"`
	Method  string `json:"method,omitempty"`
	Referer string `json:"referer,omitempty"`
	Body    string `json:"body"`
}

// Defaults applies default values to unset fields.
func (r *ExtractRequest) Defaults() {
	if r.Method == "" {
		r.Method = "GET"
	}
	r.Method = strings.ToUpper(r.Method)
}
