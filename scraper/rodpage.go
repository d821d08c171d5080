package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// PageDriver is the set of page operations the pipeline needs. Every call
// is bounded by ctx.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	WaitContainer(ctx context.Context, selector string) error
	DismissOverlays(ctx context.Context) (int, error)
	ScrollTo(ctx context.Context, y int) error
	Snapshot(ctx context.Context) (*Snapshot, error)
	HTML(ctx context.Context) (string, error)
	Video(ctx context.Context) (*VideoState, error)
	Images(ctx context.Context) ([]ImageInfo, error)
}

// rodPage implements PageDriver on a rod page.
type rodPage struct {
	page *rod.Page
}

// Navigate loads url and waits for DOMContentLoaded only; full network idle
// is never reached on Ad Library pages.
func (r *rodPage) Navigate(ctx context.Context, url string) error {
	p := r.page.Context(ctx)
	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func (r *rodPage) WaitContainer(ctx context.Context, selector string) error {
	_, err := r.page.Context(ctx).Element(selector)
	return err
}

// DismissOverlays removes consent and login overlays and reports how many
// were found.
func (r *rodPage) DismissOverlays(ctx context.Context) (int, error) {
	var n int
	if err := r.eval(ctx, overlaysJS, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *rodPage) ScrollTo(ctx context.Context, y int) error {
	_, err := r.page.Context(ctx).Eval(`(y) => window.scrollTo(0, y)`, y)
	return err
}

func (r *rodPage) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := r.eval(ctx, snapshotJS, &snap); err != nil {
		return nil, err
	}
	if !snap.OK {
		return nil, errors.New(snap.Error)
	}
	return &snap, nil
}

func (r *rodPage) HTML(ctx context.Context) (string, error) {
	return r.page.Context(ctx).HTML()
}

func (r *rodPage) Video(ctx context.Context) (*VideoState, error) {
	var v VideoState
	if err := r.eval(ctx, videoJS, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *rodPage) Images(ctx context.Context) ([]ImageInfo, error) {
	var images []ImageInfo
	if err := r.eval(ctx, imagesJS, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// eval runs js and decodes its JSON value into out.
func (r *rodPage) eval(ctx context.Context, js string, out any) error {
	res, err := r.page.Context(ctx).Eval(js)
	if err != nil {
		return err
	}
	if err := res.Value.Unmarshal(out); err != nil {
		return fmt.Errorf("decoding evaluation result: %w", err)
	}
	return nil
}
