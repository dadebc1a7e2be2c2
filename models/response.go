package models

import "time"

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	Browser   bool   `json:"browser"`
	Recording bool   `json:"recording"`
	Sites     int    `json:"sites"`
	Spiders   int    `json:"spiders"`
}

// RecordingResponse reports the capture state.
type RecordingResponse struct {
	Success    bool   `json:"success"`
	Recording  bool   `json:"recording"`
	ExportKind string `json:"export_kind"`
}

// Tab describes a browser tab.
type Tab struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// TabsResponse lists browser tabs.
type TabsResponse struct {
	Success bool  `json:"success"`
	Tabs    []Tab `json:"tabs"`
}

// SpiderStatus describes a running spider.
type SpiderStatus struct {
	TabID    int       `json:"tab_id"`
	SiteID   string    `json:"site_id"`
	SpiderID string    `json:"spider_id"`
	Started  time.Time `json:"started"`
}

// SpidersResponse lists running spiders.
type SpidersResponse struct {
	Success bool           `json:"success"`
	Spiders []SpiderStatus `json:"spiders"`
}

// ExportTask is one collected export entry.
type ExportTask struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

// ExportResponse is the response for GET /api/v1/export/tasks.
type ExportResponse struct {
	Success bool         `json:"success"`
	Count   int          `json:"count"`
	Tasks   []ExportTask `json:"tasks"`
}

// ExtractResult is the outcome of one matching extractor.
type ExtractResult struct {
	SiteID      string       `json:"site_id"`
	ExtractorID string       `json:"extractor_id"`
	Model       any          `json:"model,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
}

// ExtractResponse is the response for POST /api/v1/extract.
type ExtractResponse struct {
	Success bool            `json:"success"`
	ID      string          `json:"id"`
	Results []ExtractResult `json:"results"`
	Timing  TimingInfo      `json:"timing"`
}

// TimingInfo provides duration breakdowns.
type TimingInfo struct {
	TotalMs int64 `json:"total_ms"`
}

// SiteInfo summarizes a loaded site.
type SiteInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Tables     []string `json:"tables"`
	Extractors []string `json:"extractors"`
	Spiders    []string `json:"spiders"`
}

// SitesResponse lists loaded sites.
type SitesResponse struct {
	Success bool       `json:"success"`
	Sites   []SiteInfo `json:"sites"`
}
