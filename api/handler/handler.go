// Package handler holds the gin handlers of the control API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webexporter/engine"
	"github.com/use-agent/webexporter/exporter"
	"github.com/use-agent/webexporter/models"
	"github.com/use-agent/webexporter/scraper"
	"github.com/use-agent/webexporter/spider"
)

// Recorder switches response capture on and off. *engine.Dispatcher
// implements it.
type Recorder interface {
	Start() error
	Stop() error
	Running() bool
	SetExportKind(kind string)
	ExportKind() string
	Extract(ctx context.Context, ex *engine.Exchange) ([]engine.Result, error)
}

// Tabs opens and lists browser tabs. *scraper.Browser implements it.
type Tabs interface {
	Open(ctx context.Context, url, referer string) (int, error)
	Tabs() []scraper.TabInfo
	CloseTab(id int) error
}

// Spiders runs spiders on tabs. *spider.House implements it.
type Spiders interface {
	Start(tabID int, siteID, spiderID string) error
	Stop(ctx context.Context, tabID int) error
	List() []spider.Status
}

// ExportQueue is the collected export list. *exporter.Exporter implements
// it.
type ExportQueue interface {
	Tasks() []exporter.Task
	Output() string
	Clear()
}

// respondError maps an error to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	var e *models.Error
	if !errors.As(err, &e) {
		e = models.NewError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(mapErrorToStatus(e), models.ErrorResponse{
		Success: false,
		Error:   e.ToDetail(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: err.Error(),
		},
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.Error) int {
	switch e.Code {
	case models.ErrCodeInvalidInput, models.ErrCodeInvalidStep, models.ErrCodeMalformedPath,
		models.ErrCodeUnsupportedCondition, models.ErrCodeUnknownOperator:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeSpiderRunning, models.ErrCodeSpiderNotRunning:
		return http.StatusConflict // 409
	case models.ErrCodeWaitTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeBrowserCrash:
		return http.StatusBadGateway // 502
	case models.ErrCodeCancelled:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

// errorDetail is ToDetail for any error.
func errorDetail(err error) *models.ErrorDetail {
	var e *models.Error
	if errors.As(err, &e) {
		d := e.ToDetail()
		d.Message = err.Error()
		return d
	}
	return &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()}
}
