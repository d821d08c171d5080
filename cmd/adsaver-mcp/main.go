package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/adsaver/models"
)

// apiClient talks to a running adsaver HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	userID  string
	http    *http.Client
}

func main() {
	apiURL := os.Getenv("ADSAVER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:3001"
	}
	api := &apiClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		apiKey:  os.Getenv("ADSAVER_API_KEY"),
		userID:  os.Getenv("ADSAVER_USER_ID"),
		http:    &http.Client{Timeout: 600 * time.Second},
	}

	s := server.NewMCPServer(
		"adsaver",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	parseAdTool := mcp.NewTool("parse_ad",
		mcp.WithDescription("Extract the video of a Facebook Ad Library ad together with its publisher, ad copy, call to action, poster image, duration and file size."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Ad Library URL, e.g. https://www.facebook.com/ads/library/?id=123"),
		),
	)
	s.AddTool(parseAdTool, handleParseAd(api))

	batchParseTool := mcp.NewTool("batch_parse",
		mcp.WithDescription("Extract several Ad Library ads in one job and wait for all of them to finish."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of Ad Library URLs"),
		),
	)
	s.AddTool(batchParseTool, handleBatchParse(api))

	historyTool := mcp.NewTool("ad_history",
		mcp.WithDescription("List the most recently extracted ads for this identity, newest first."),
	)
	s.AddTool(historyTool, handleHistory(api))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// do sends a request to the API and returns the body. Non-2xx responses
// become errors carrying the API message and code.
func (a *apiClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.apiKey != "" {
		req.Header.Set("X-API-Key", a.apiKey)
	}
	if a.userID != "" {
		req.Header.Set("X-User-ID", a.userID)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var e models.ErrorResponse
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("[%s] %s", resp.Header.Get("X-Error-Code"), e.Error)
		}
		return nil, fmt.Errorf("API returned HTTP %d", resp.StatusCode)
	}
	return respBody, nil
}

// pollBatch polls a batch job until it is no longer processing or ctx is
// cancelled.
func (a *apiClient) pollBatch(ctx context.Context, id string) (*models.BatchStatusResponse, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := a.do(ctx, http.MethodGet, "/api/v1/batch/"+id, nil)
			if err != nil {
				return nil, err
			}
			var status models.BatchStatusResponse
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if status.Status != models.BatchProcessing {
				return &status, nil
			}
		}
	}
}

func handleParseAd(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		body, err := api.do(ctx, http.MethodPost, "/api/v1/parse", models.ParseRequest{URL: url})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var ad models.AdResult
		if err := json.Unmarshal(body, &ad); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		return mcp.NewToolResultText(formatAd(&ad)), nil
	}
}

func handleBatchParse(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		body, err := api.do(ctx, http.MethodPost, "/api/v1/batch", models.BatchRequest{URLs: urls})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var job models.BatchResponse
		if err := json.Unmarshal(body, &job); err != nil || job.ID == "" {
			return mcp.NewToolResultError("batch job creation failed"), nil
		}

		status, err := api.pollBatch(ctx, job.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Batch %s: %s (%d/%d done)\n\n", status.ID, status.Status, status.Completed, status.Total)
		for i, item := range status.Items {
			if item.Data != nil {
				fmt.Fprintf(&sb, "--- [%d] %s ---\n%s\n\n", i+1, item.URL, formatAd(item.Data))
			} else {
				fmt.Fprintf(&sb, "--- [%d] FAILED: %s ---\n%s\n\n", i+1, item.URL, item.Error)
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleHistory(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := api.do(ctx, http.MethodGet, "/api/v1/history", nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var hist models.HistoryResponse
		if err := json.Unmarshal(body, &hist); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if len(hist.Items) == 0 {
			return mcp.NewToolResultText("No ads extracted yet."), nil
		}

		var sb strings.Builder
		for i := range hist.Items {
			fmt.Fprintf(&sb, "--- [%d] ---\n%s\n\n", i+1, formatAd(&hist.Items[i]))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// formatAd renders an AdResult as plain text.
func formatAd(ad *models.AdResult) string {
	status := "inactive"
	if ad.IsActive {
		status = "active"
	}
	text := ad.PrimaryText
	if ad.PrimaryTextMarkdown != "" {
		text = ad.PrimaryTextMarkdown
	}
	return fmt.Sprintf("Ad %s (%s)\nPublisher: %s\nCTA: %s\nVideo: %s\nPoster: %s\nDuration: %s  Size: %s  Resolution: %s\n\n%s",
		ad.ID, status, ad.PublisherName, ad.CTAType,
		ad.VideoURL, ad.PosterURL,
		ad.VideoDuration, ad.FileSize, ad.Resolution,
		text,
	)
}
