package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/adsaver/api/middleware"
	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/history"
	"github.com/use-agent/adsaver/models"
	"github.com/use-agent/adsaver/webhook"
	"golang.org/x/sync/errgroup"
)

// batchJob is one batch with its items. mu guards every field below it.
type batchJob struct {
	id        string
	identity  string
	createdAt time.Time

	mu        sync.Mutex
	status    string
	completed int
	items     []models.BatchItem
}

func (j *batchJob) snapshot() models.BatchStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	items := make([]models.BatchItem, len(j.items))
	copy(items, j.items)
	return models.BatchStatusResponse{
		ID:        j.id,
		Status:    j.status,
		Completed: j.completed,
		Total:     len(j.items),
		Items:     items,
	}
}

// Batches runs batch jobs and keeps them for polling until they expire.
// Items are extracted through the extractor directly: batches record
// history but do not consume quota.
type Batches struct {
	extractor AdExtractor
	history   *history.Service // optional
	notifier  *webhook.Notifier
	cfg       config.BatchConfig

	jobs sync.Map // id -> *batchJob
	wg   sync.WaitGroup
	now  func() time.Time
}

// NewBatches creates a Batches.
func NewBatches(extractor AdExtractor, hs *history.Service, notifier *webhook.Notifier, cfg config.BatchConfig) *Batches {
	return &Batches{extractor: extractor, history: hs, notifier: notifier, cfg: cfg, now: time.Now}
}

// Run expires jobs older than the configured TTL until ctx is done.
func (b *Batches) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.expire()
		}
	}
}

func (b *Batches) expire() {
	cutoff := b.now().Add(-b.cfg.JobTTL)
	b.jobs.Range(func(key, value any) bool {
		if value.(*batchJob).createdAt.Before(cutoff) {
			b.jobs.Delete(key)
		}
		return true
	})
}

// Wait blocks until every running job has finished.
func (b *Batches) Wait() {
	b.wg.Wait()
}

// Start registers a job for req.URLs and processes it in the background.
func (b *Batches) Start(identity string, req models.BatchRequest) models.BatchResponse {
	now := b.now()
	job := &batchJob{
		id:        uuid.NewString(),
		identity:  identity,
		createdAt: now,
		status:    models.BatchProcessing,
		items:     make([]models.BatchItem, len(req.URLs)),
	}
	for i, u := range req.URLs {
		job.items[i] = models.BatchItem{
			ID:     fmt.Sprintf("batch-%d-%d", now.UnixMilli(), i),
			URL:    u,
			Status: models.BatchPending,
		}
	}
	b.jobs.Store(job.id, job)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.process(context.Background(), job, req)
	}()
	return models.BatchResponse{ID: job.id, Status: models.BatchProcessing, Total: len(job.items)}
}

// Get returns the current state of a job.
func (b *Batches) Get(id string) (models.BatchStatusResponse, bool) {
	v, ok := b.jobs.Load(id)
	if !ok {
		return models.BatchStatusResponse{}, false
	}
	return v.(*batchJob).snapshot(), true
}

func (b *Batches) process(ctx context.Context, job *batchJob, req models.BatchRequest) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.cfg.Concurrency, 1))

	var failed int
	var mu sync.Mutex
	for i, rawURL := range req.URLs {
		g.Go(func() error {
			job.mu.Lock()
			job.items[i].Status = models.BatchProcessing
			job.mu.Unlock()

			result, err := b.extractor.Extract(gctx, rawURL, nil)

			job.mu.Lock()
			it := &job.items[i]
			if err != nil {
				it.Status = models.BatchFailed
				it.Error = models.UserMessage(asAdError(err), req.Lang)
			} else {
				it.Status = models.BatchCompleted
				it.Data = result
			}
			job.completed++
			job.mu.Unlock()

			if err != nil {
				slog.Info("batch item failed", "job", job.id, "index", i, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			if b.history != nil {
				if herr := b.history.Add(gctx, job.identity, *result); herr != nil {
					slog.Warn("recording history failed", "job", job.id, "error", herr)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	job.mu.Lock()
	switch {
	case failed == len(job.items):
		job.status = models.BatchFailed
	case failed > 0:
		job.status = models.BatchPartial
	default:
		job.status = models.BatchCompleted
	}
	job.mu.Unlock()

	status := job.snapshot()
	slog.Info("batch job finished",
		"id", job.id,
		"status", status.Status,
		"failed", failed,
		"total", status.Total,
	)

	if req.WebhookURL != "" && b.notifier != nil {
		b.notifier.DeliverAsync(req.WebhookURL, &webhook.Event{
			Type:      webhook.EventBatchCompleted,
			JobID:     job.id,
			Timestamp: b.now().Unix(),
			Data:      status,
		})
	}
}

// PostBatch returns a handler for POST /api/v1/batch.
func PostBatch(b *Batches) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewAdError(models.ErrCodeInvalidInput, err.Error(), err), "")
			return
		}
		if len(req.URLs) > b.cfg.MaxURLs {
			respondError(c, models.NewAdError(models.ErrCodeInvalidInput,
				fmt.Sprintf("maximum %d URLs per batch", b.cfg.MaxURLs), nil), "")
			return
		}

		c.JSON(http.StatusOK, b.Start(middleware.IdentityOf(c), req))
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(b *Batches) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, ok := b.Get(c.Param("id"))
		if !ok {
			respondError(c, models.NewAdError(models.ErrCodeNotFound, "batch job not found", nil), "")
			return
		}
		c.JSON(http.StatusOK, status)
	}
}
