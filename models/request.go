package models

// ParseRequest is the payload for POST /api/v1/parse and /api/v1/parse/stream.
type ParseRequest struct {
	// URL is the Ad Library page to extract. Required.
	URL string `json:"url" binding:"required"`

	// Lang selects friendly localized error messages ("en" or "zh").
	// Empty returns the stable technical messages.
	Lang string `json:"lang,omitempty" binding:"omitempty,oneof=en zh"`
}

// DownloadRequest is the payload for POST /api/v1/download.
// GET /api/v1/download reads the same fields from the query string.
type DownloadRequest struct {
	URL string `json:"url" form:"url" binding:"required"`

	// Filename, when set, is appended to the Content-Disposition header.
	Filename string `json:"filename,omitempty" form:"filename"`
}
