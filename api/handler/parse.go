package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/adsaver/api/middleware"
	"github.com/use-agent/adsaver/cache"
	"github.com/use-agent/adsaver/history"
	"github.com/use-agent/adsaver/models"
	"github.com/use-agent/adsaver/quota"
	"github.com/use-agent/adsaver/scraper"
)

// Parser wraps the extractor with the per-identity bookkeeping of a single
// parse: quota reservation, result cache and history.
type Parser struct {
	Extractor AdExtractor
	Cache     *cache.Cache     // optional
	Quota     *quota.Service   // optional
	History   *history.Service // optional
}

// Parse runs one parse for identity.
//
// Flow:
//  1. Validate the URL (rejected before any browser work).
//  2. Reserve one parse from the daily quota.
//  3. Serve from cache, or extract and cache. A failed extraction refunds
//     the reservation.
//  4. Record history. Failures here are logged only.
func (p *Parser) Parse(ctx context.Context, identity, rawURL string, progress scraper.Progress) (*models.AdResult, error) {
	normalized, _, err := scraper.ValidateAdURL(rawURL)
	if err != nil {
		return nil, err
	}

	var refund func(context.Context)
	if p.Quota != nil {
		r, err := p.Quota.Reserve(ctx, identity)
		if err != nil {
			if _, isAdErr := err.(*models.AdError); isAdErr {
				return nil, err
			}
			slog.Warn("quota reservation failed, allowing request", "identity", identity, "error", err)
		}
		refund = r
	}

	var result *models.AdResult
	key := cache.Key(normalized)
	if p.Cache != nil {
		if cached, hit := p.Cache.Get(key); hit {
			cached.CacheStatus = "hit"
			result = cached
		}
	}
	if result == nil {
		result, err = p.Extractor.Extract(ctx, normalized, progress)
		if err != nil {
			if refund != nil {
				refund(context.WithoutCancel(ctx))
			}
			return nil, err
		}
		if p.Cache != nil {
			p.Cache.Set(key, result)
		}
	}

	if p.History != nil {
		if err := p.History.Add(ctx, identity, *result); err != nil {
			slog.Warn("recording history failed", "identity", identity, "error", err)
		}
	}
	return result, nil
}

// bindParseRequest binds the body, writing a 400 on failure.
func bindParseRequest(c *gin.Context) (models.ParseRequest, bool) {
	var req models.ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		msg := err.Error()
		if req.URL == "" {
			msg = models.MsgURLRequired
		}
		lang := req.Lang
		if lang != models.LangEnglish && lang != models.LangChinese {
			lang = ""
		}
		respondError(c, models.NewAdError(models.ErrCodeInvalidInput, msg, err), lang)
		return req, false
	}
	return req, true
}

// Parse returns a handler for POST /api/v1/parse.
func Parse(p *Parser) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindParseRequest(c)
		if !ok {
			return
		}

		result, err := p.Parse(c.Request.Context(), middleware.IdentityOf(c), req.URL, nil)
		if err != nil {
			respondError(c, err, req.Lang)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ParseStream returns a handler for POST /api/v1/parse/stream. Phase labels
// are sent as "progress" events, followed by one "result" or "error" event.
func ParseStream(p *Parser) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindParseRequest(c)
		if !ok {
			return
		}

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		progress := func(msg string) {
			c.SSEvent("progress", gin.H{"message": msg})
			c.Writer.Flush()
		}

		result, err := p.Parse(c.Request.Context(), middleware.IdentityOf(c), req.URL, progress)
		if err != nil {
			adErr := asAdError(err)
			slog.Info("stream parse failed", "code", adErr.Code, "error", adErr)
			c.SSEvent("error", gin.H{
				"error": models.UserMessage(adErr, req.Lang),
				"code":  adErr.Code,
			})
			c.Writer.Flush()
			return
		}
		c.SSEvent("result", result)
		c.Writer.Flush()
	}
}
