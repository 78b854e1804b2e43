package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/use-agent/scrapepal/api/handler"
	"github.com/use-agent/scrapepal/models"
	"github.com/use-agent/scrapepal/scraper"
)

// runner is the part of scraper.Scraper the MCP tools use.
type runner interface {
	RunRequest(ctx context.Context, req *models.ScrapeRequest) *models.ScrapeResult
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the scraper as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol.
			initLogger(cfg.Log, os.Stderr, false)

			sc := scraper.NewFromConfig(cfg)
			defer sc.Close()

			return server.ServeStdio(newMCPServer(sc))
		},
	}
}

func newMCPServer(r runner) *server.MCPServer {
	s := server.NewMCPServer(
		"scrapepal",
		handler.Version,
		server.WithToolCapabilities(false),
	)

	scrapeURLTool := mcp.NewTool("scrape_url",
		mcp.WithDescription("Fetch a web page and return its main content. Static HTTP is tried first; pages that need JavaScript are rendered in a headless browser."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to scrape"),
		),
		mcp.WithString("mode",
			mcp.Description("Fetch mode: 'auto' (default), 'static' (plain HTTP only) or 'dynamic' (always use the browser)"),
			mcp.Enum("auto", "static", "dynamic"),
		),
		mcp.WithString("css_selector",
			mcp.Description("Optional CSS selector limiting the content to matching elements"),
		),
		mcp.WithString("format",
			mcp.Description("Output: 'markdown' (default), 'text' (capped at 15000 characters) or 'json' (the full result envelope)"),
			mcp.Enum("markdown", "text", "json"),
		),
	)
	s.AddTool(scrapeURLTool, handleScrapeURL(r))

	batchTool := mcp.NewTool("batch_scrape",
		mcp.WithDescription("Scrape several URLs one after another and return the text of each."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of URLs to scrape"),
		),
		mcp.WithString("mode",
			mcp.Description("Fetch mode applied to every URL: 'auto' (default), 'static' or 'dynamic'"),
			mcp.Enum("auto", "static", "dynamic"),
		),
	)
	s.AddTool(batchTool, handleBatchScrape(r))

	return s
}

func handleScrapeURL(r runner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		res := r.RunRequest(ctx, &models.ScrapeRequest{
			URL:         url,
			Mode:        request.GetString("mode", ""),
			CSSSelector: request.GetString("css_selector", ""),
		})
		if !res.Success {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", res.ErrorCode, res.Error)), nil
		}

		switch request.GetString("format", "markdown") {
		case "json":
			body, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
			}
			return mcp.NewToolResultText(string(body)), nil
		case "text":
			return mcp.NewToolResultText(resultHeader(res) + res.SummaryInput(0)), nil
		default:
			content := res.Markdown
			if content == "" {
				content = res.TextContent
			}
			return mcp.NewToolResultText(resultHeader(res) + content), nil
		}
	}
}

func handleBatchScrape(r runner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil || len(urls) == 0 {
			return mcp.NewToolResultError("urls is required and must be a non-empty array of strings"), nil
		}
		if len(urls) > models.MaxBatchURLs {
			return mcp.NewToolResultError(fmt.Sprintf("maximum %d URLs per batch", models.MaxBatchURLs)), nil
		}
		mode := request.GetString("mode", "")

		var sb strings.Builder
		for i, u := range urls {
			if ctx.Err() != nil {
				fmt.Fprintf(&sb, "--- [%d] %s: cancelled ---\n\n", i+1, u)
				continue
			}
			res := r.RunRequest(ctx, &models.ScrapeRequest{URL: u, Mode: mode})
			if !res.Success {
				fmt.Fprintf(&sb, "--- [%d] %s: FAILED [%s] %s ---\n\n", i+1, u, res.ErrorCode, res.Error)
				continue
			}
			fmt.Fprintf(&sb, "--- [%d] %s ---\n%s%s\n\n", i+1, u, resultHeader(res), res.SummaryInput(0))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// resultHeader renders the title, source and fetch method above the content.
func resultHeader(res *models.ScrapeResult) string {
	title := ""
	if res.Structure != nil {
		title = res.Structure.Title
	}
	source := res.FinalURL
	if source == "" {
		source = res.URL
	}
	method := res.Method
	if res.Escalated {
		method += " (escalated: " + res.EscalationReason + ")"
	}
	return fmt.Sprintf("Title: %s\nSource: %s\nMethod: %s\n\n", title, source, method)
}
