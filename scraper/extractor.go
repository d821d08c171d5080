package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/adsaver/models"
)

// Resolution is reported for every extracted video; the CDN does not expose
// the rendition.
const Resolution = "HD"

// Extractor validates an Ad Library URL, runs the pipeline inside a fresh
// browsing session and shapes the outcome into an AdResult.
type Extractor struct {
	sessions SessionProvider
	pipeline *Pipeline
	timeout  time.Duration
}

// NewExtractor creates an Extractor. timeout bounds a whole extraction;
// zero leaves it to the caller's context.
func NewExtractor(sessions SessionProvider, pipeline *Pipeline, timeout time.Duration) *Extractor {
	return &Extractor{sessions: sessions, pipeline: pipeline, timeout: timeout}
}

// Extract resolves the video behind rawURL. Invalid input is rejected
// before any browsing session is acquired. The session is always released,
// whatever the outcome.
func (e *Extractor) Extract(ctx context.Context, rawURL string, progress Progress) (*models.AdResult, error) {
	if progress == nil {
		progress = func(string) {}
	}

	normalized, adID, err := ValidateAdURL(rawURL)
	if err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	progress("Connecting to parser...")
	sess, err := e.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			slog.Warn("closing browsing session", "error", cerr)
		}
	}()

	out, err := e.pipeline.Run(ctx, sess.Driver(), sess.Capture(), normalized, progress)
	if err != nil {
		slog.Info("extraction failed",
			"url", normalized,
			"error", err,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
		return nil, err
	}

	progress("Parsing successful!")
	slog.Info("extraction complete",
		"url", normalized,
		"fromNetwork", out.VideoBytes != nil,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return toAdResult(adID, out), nil
}

func toAdResult(adID string, out *Outcome) *models.AdResult {
	return &models.AdResult{
		ID:                  adID,
		IsActive:            out.Info.IsActive,
		PrimaryText:         out.Info.PrimaryText,
		PublisherName:       out.Info.PublisherName,
		PublisherAvatar:     out.Info.PublisherAvatar,
		CTAType:             out.Info.CTAType,
		PrimaryTextMarkdown: out.Info.PrimaryTextMarkdown,
		Success:             out.Info.Success,
		Diagnostic:          out.Info.Diagnostic,
		VideoURL:            out.VideoURL,
		PosterURL:           out.PosterURL,
		VideoDuration:       out.Duration,
		FileSize:            FormatBytes(out.VideoBytes),
		Resolution:          Resolution,
	}
}
