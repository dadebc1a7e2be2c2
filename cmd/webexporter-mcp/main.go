package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("WEBEXPORTER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	c := newAPIClient(apiURL, os.Getenv("WEBEXPORTER_API_KEY"))

	s := server.NewMCPServer(
		"webexporter",
		"0.1.0",
		server.WithToolCapabilities(false),
	)
	registerTools(s, c)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func registerTools(s *server.MCPServer, c *apiClient) {
	s.AddTool(mcp.NewTool("list_sites",
		mcp.WithDescription("List the loaded site definitions with their tables, extractors and spiders."),
	), passthrough(c, http.MethodGet, "/api/v1/sites"))

	s.AddTool(mcp.NewTool("recording_start",
		mcp.WithDescription("Start capturing browser responses and running the matching extractors."),
		mcp.WithString("export_kind",
			mcp.Description("Export kind used by export steps that name none: 'url' (default), 'media' or 'download'"),
			mcp.Enum("url", "media", "download"),
		),
	), handleRecordingStart(c))

	s.AddTool(mcp.NewTool("recording_stop",
		mcp.WithDescription("Stop capturing browser responses."),
	), passthrough(c, http.MethodPost, "/api/v1/recording/stop"))

	s.AddTool(mcp.NewTool("open_tab",
		mcp.WithDescription("Open a browser tab on a URL. Returns the tab id spiders run on."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The page to open"),
		),
	), handleOpenTab(c))

	s.AddTool(mcp.NewTool("spider_start",
		mcp.WithDescription("Start a site's spider on a browser tab."),
		mcp.WithNumber("tab_id", mcp.Required(), mcp.Description("Tab id returned by open_tab")),
		mcp.WithString("site_id", mcp.Required(), mcp.Description("Site id")),
		mcp.WithString("spider_id", mcp.Required(), mcp.Description("Spider id within the site")),
	), handleSpiderStart(c))

	s.AddTool(mcp.NewTool("spider_stop",
		mcp.WithDescription("Stop the spider running on a tab and wait for it to finish."),
		mcp.WithNumber("tab_id", mcp.Required(), mcp.Description("Tab id")),
	), handleSpiderStop(c))

	s.AddTool(mcp.NewTool("spider_status",
		mcp.WithDescription("List running spiders."),
	), passthrough(c, http.MethodGet, "/api/v1/spiders"))

	s.AddTool(mcp.NewTool("export_output",
		mcp.WithDescription("Return the collected export list, one URL per line ('url#out=filename' for media)."),
	), passthrough(c, http.MethodGet, "/api/v1/export/output"))

	s.AddTool(mcp.NewTool("export_clear",
		mcp.WithDescription("Clear the collected export list."),
	), passthrough(c, http.MethodDelete, "/api/v1/export/tasks"))
}

// passthrough calls a parameterless endpoint and returns its body.
func passthrough(c *apiClient, method, path string) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := c.call(ctx, method, path, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(pretty(body)), nil
	}
}

func handleRecordingStart(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := map[string]any{}
		if kind := request.GetString("export_kind", ""); kind != "" {
			payload["export_kind"] = kind
		}
		body, err := c.call(ctx, http.MethodPost, "/api/v1/recording/start", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(pretty(body)), nil
	}
}

func handleOpenTab(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		body, err := c.call(ctx, http.MethodPost, "/api/v1/tabs", map[string]any{"url": url})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(pretty(body)), nil
	}
}

func handleSpiderStart(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tabID, err := request.RequireInt("tab_id")
		if err != nil {
			return mcp.NewToolResultError("tab_id is required"), nil
		}
		siteID, err := request.RequireString("site_id")
		if err != nil {
			return mcp.NewToolResultError("site_id is required"), nil
		}
		spiderID, err := request.RequireString("spider_id")
		if err != nil {
			return mcp.NewToolResultError("spider_id is required"), nil
		}
		_, err = c.call(ctx, http.MethodPost, "/api/v1/spiders/start", map[string]any{
			"tab_id":    tabID,
			"site_id":   siteID,
			"spider_id": spiderID,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Spider %s started on tab %d", spiderID, tabID)), nil
	}
}

func handleSpiderStop(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tabID, err := request.RequireInt("tab_id")
		if err != nil {
			return mcp.NewToolResultError("tab_id is required"), nil
		}
		if _, err := c.call(ctx, http.MethodPost, "/api/v1/spiders/stop", map[string]any{"tab_id": tabID}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Spider on tab " + strconv.Itoa(tabID) + " stopped"), nil
	}
}
