package models

// AdResult is the response for a successful POST /api/v1/parse.
type AdResult struct {
	// ID is the "id" query parameter of the submitted Ad Library URL.
	ID string `json:"id"`

	IsActive        bool   `json:"isActive"`
	PrimaryText     string `json:"primaryText"`
	PublisherName   string `json:"publisherName"`
	PublisherAvatar string `json:"publisherAvatar"`
	CTAType         string `json:"ctaType"`

	// PrimaryTextMarkdown is the ad copy with links and line breaks kept.
	PrimaryTextMarkdown string `json:"primaryTextMarkdown,omitempty"`

	// Success is false when the DOM extraction fell back to defaults or
	// to the static HTML snapshot.
	Success    bool   `json:"success"`
	Diagnostic string `json:"diagnostic,omitempty"`

	VideoURL      string `json:"videoUrl"`
	PosterURL     string `json:"posterUrl"`
	VideoDuration string `json:"videoDuration"`
	FileSize      string `json:"fileSize"`
	Resolution    string `json:"resolution"`

	// CacheStatus is "hit" when the result was served from the result cache.
	CacheStatus string `json:"cacheStatus,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string      `json:"status"` // "healthy" or "degraded"
	Uptime  string      `json:"uptime"`
	Engine  EngineStats `json:"engine"`
	Version string      `json:"version"`
}

// EngineStats reports the state of the shared browser engine.
type EngineStats struct {
	Connected      bool  `json:"connected"`
	ActiveSessions int   `json:"activeSessions"`
	MaxSessions    int   `json:"maxSessions"`
	Relaunches     int64 `json:"relaunches"`
}

// UsageResponse is the response for GET /api/v1/usage.
type UsageResponse struct {
	Count     int `json:"count"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// HistoryResponse is the response for GET /api/v1/history.
type HistoryResponse struct {
	Items []AdResult `json:"items"`
}
