package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/models"
)

// State is a step of the video resolution pipeline.
type State int

const (
	StateNavigating State = iota
	StateWaitingForContainer
	StateScrolling
	StateAwaitingNetworkCapture
	StateResolvingVideoFallback
	StateResolvingDuration
	StateResolvingPosterFallback
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateNavigating:              "navigating",
	StateWaitingForContainer:     "waiting_for_container",
	StateScrolling:               "scrolling",
	StateAwaitingNetworkCapture:  "awaiting_network_capture",
	StateResolvingVideoFallback:  "resolving_video_fallback",
	StateResolvingDuration:       "resolving_duration",
	StateResolvingPosterFallback: "resolving_poster_fallback",
	StateDone:                    "done",
	StateFailed:                  "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Progress receives human-readable phase labels. The wording carries no
// contract.
type Progress func(message string)

// UnknownDuration is reported when the video metadata never loads.
const UnknownDuration = "Unknown"

// Outcome is what a successful pipeline run produces.
type Outcome struct {
	Info       AdInfo
	VideoURL   string
	VideoBytes *int64 // nil when the video came from the DOM
	PosterURL  string
	Duration   string
}

// Pipeline drives one page from navigation to a resolved video.
type Pipeline struct {
	cfg        config.PipelineConfig
	heuristics *Heuristics
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg config.PipelineConfig, heuristics *Heuristics) *Pipeline {
	return &Pipeline{cfg: cfg, heuristics: heuristics, sleep: sleepCtx}
}

// Run executes the state machine against driver. capture is the session's
// network capture, filled concurrently by its observer, and is read as late
// as each field allows. Only input, engine, navigation and missing-video
// failures are returned; everything else degrades to defaults.
//
// The request context is a hard stop only until a video is resolved. Past
// that point an expired context degrades duration and poster instead.
func (p *Pipeline) Run(ctx context.Context, driver PageDriver, capture *NetworkCapture, url string, progress Progress) (*Outcome, error) {
	if progress == nil {
		progress = func(string) {}
	}
	r := &run{p: p, driver: driver, capture: capture, url: url, progress: progress}

	state := StateNavigating
	for state != StateDone && state != StateFailed {
		if state < StateResolvingVideoFallback {
			if err := ctx.Err(); err != nil {
				r.err = contextError(err)
				state = StateFailed
				break
			}
		}
		start := time.Now()
		next := r.step(ctx, state)
		slog.Debug("pipeline step",
			"state", state.String(),
			"next", next.String(),
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
		state = next
	}

	if state == StateFailed {
		return nil, r.err
	}
	return &r.out, nil
}

// run holds the state of one pipeline execution.
type run struct {
	p        *Pipeline
	driver   PageDriver
	capture  *NetworkCapture
	url      string
	progress Progress

	out Outcome
	err error
}

func (r *run) step(ctx context.Context, s State) State {
	cfg := r.p.cfg
	switch s {
	case StateNavigating:
		r.progress("Loading ad page...")
		navCtx, cancel := context.WithTimeout(ctx, cfg.NavigationTimeout)
		err := r.driver.Navigate(navCtx, r.url)
		cancel()
		if err != nil {
			r.err = navigationError(ctx, err)
			return StateFailed
		}
		return StateWaitingForContainer

	case StateWaitingForContainer:
		r.progress("Waiting for ad content...")
		waitCtx, cancel := context.WithTimeout(ctx, cfg.ContainerTimeout)
		err := r.driver.WaitContainer(waitCtx, cfg.ContainerSelector)
		cancel()
		if err != nil {
			slog.Info("ad container not found, proceeding", "error", err)
		}
		return StateScrolling

	case StateScrolling:
		r.progress("Loading video resources...")
		if n, err := r.driver.DismissOverlays(ctx); err != nil {
			slog.Debug("dismissing overlays failed", "error", err)
		} else if n > 0 {
			slog.Debug("overlays dismissed", "count", n)
		}
		if err := r.driver.ScrollTo(ctx, cfg.ScrollY); err != nil {
			slog.Debug("scroll failed", "error", err)
		}
		_ = r.p.sleep(ctx, cfg.ScrollSettle)
		return StateAwaitingNetworkCapture

	case StateAwaitingNetworkCapture:
		r.progress("Extracting ad details...")
		r.out.Info = r.extractInfo(ctx)
		return StateResolvingVideoFallback

	case StateResolvingVideoFallback:
		r.out.VideoURL, r.out.VideoBytes = r.capture.Video()
		if r.out.VideoURL == "" {
			if err := ctx.Err(); err != nil {
				r.err = contextError(err)
				return StateFailed
			}
			r.progress("Searching page for video...")
			if v, err := r.driver.Video(ctx); err == nil && v != nil {
				r.out.VideoURL = v.Src
			}
		}
		if r.out.VideoURL == "" {
			r.err = models.NewAdError(models.ErrCodeVideoNotFound, models.MsgNoVideo, nil)
			return StateFailed
		}
		return StateResolvingDuration

	case StateResolvingDuration:
		r.progress("Reading video duration...")
		r.out.Duration = r.resolveDuration(ctx)
		return StateResolvingPosterFallback

	case StateResolvingPosterFallback:
		r.out.PosterURL = r.capture.Poster()
		if r.out.PosterURL == "" {
			r.out.PosterURL = r.resolvePoster(ctx)
		}
		return StateDone
	}

	r.err = models.NewAdError(models.ErrCodeInternal, models.MsgServerError, fmt.Errorf("unexpected state %s", s))
	return StateFailed
}

// extractInfo reads the ad metadata. The live snapshot is preferred; when
// it fails the serialized HTML is parsed statically. Never fails.
func (r *run) extractInfo(ctx context.Context) (info AdInfo) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("ad info extraction panicked", "panic", rec)
			info = DefaultAdInfo()
			info.Diagnostic = fmt.Sprint("extraction panicked: ", rec)
		}
	}()

	h := r.p.heuristics
	snap, err := r.driver.Snapshot(ctx)
	if err == nil {
		info = h.Extract(snap)
		info.Success = true
		return info
	}
	slog.Warn("in-page extraction failed, using static html", "error", err)

	raw, herr := r.driver.HTML(ctx)
	if herr == nil {
		if static, serr := BuildStaticSnapshot(raw); serr == nil {
			info = h.Extract(static)
			info.Diagnostic = "in-page extraction failed: " + err.Error()
			return info
		}
	}
	info = DefaultAdInfo()
	info.Diagnostic = "extraction failed: " + err.Error()
	return info
}

// resolveDuration reads the video duration, retrying once after a delay for
// late metadata.
func (r *run) resolveDuration(ctx context.Context) string {
	if d, ok := r.readDuration(ctx); ok {
		return FormatDuration(d)
	}
	if err := r.p.sleep(ctx, r.p.cfg.DurationRetryDelay); err != nil {
		return UnknownDuration
	}
	if d, ok := r.readDuration(ctx); ok {
		return FormatDuration(d)
	}
	return UnknownDuration
}

func (r *run) readDuration(ctx context.Context) (float64, bool) {
	v, err := r.driver.Video(ctx)
	if err != nil || v == nil || v.Duration == nil || *v.Duration <= 0 {
		return 0, false
	}
	return *v.Duration, true
}

// resolvePoster tries the video poster attribute, then a large CDN image,
// then the placeholder.
func (r *run) resolvePoster(ctx context.Context) string {
	if v, err := r.driver.Video(ctx); err == nil && v != nil && v.Poster != "" {
		return v.Poster
	}
	if images, err := r.driver.Images(ctx); err == nil {
		if src, ok := r.p.heuristics.PosterFromImages(images); ok {
			return src
		}
	}
	return PlaceholderPoster
}

// navigationError classifies a navigation failure. parent distinguishes the
// navigation bound expiring from the caller giving up.
func navigationError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return contextError(parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewAdError(models.ErrCodeNavTimeout, models.MsgNavTimeout, err)
	}
	return models.NewAdError(models.ErrCodeNavigation, models.MsgNavFailed, err)
}

// contextError maps a done request context: an expired deadline is a
// timeout, anything else means the caller went away.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewAdError(models.ErrCodeNavTimeout, models.MsgNavTimeout, err)
	}
	return models.NewAdError(models.ErrCodeCanceled, models.MsgCanceled, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
