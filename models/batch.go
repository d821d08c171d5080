package models

// Batch item and job states.
const (
	BatchPending    = "pending"
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
	BatchPartial    = "partial"
)

// BatchRequest is the payload for POST /api/v1/batch.
type BatchRequest struct {
	// URLs is the list of Ad Library pages to extract. Required.
	URLs []string `json:"urls" binding:"required,min=1"`

	Lang string `json:"lang,omitempty" binding:"omitempty,oneof=en zh"`

	// WebhookURL receives a signed batch.completed event when the job ends.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// BatchResponse is the immediate response for POST /api/v1/batch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchItem is one URL of a batch job.
type BatchItem struct {
	ID     string    `json:"id"`
	URL    string    `json:"url"`
	Status string    `json:"status"`
	Data   *AdResult `json:"data,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Completed int         `json:"completed"`
	Total     int         `json:"total"`
	Items     []BatchItem `json:"items"`
}
