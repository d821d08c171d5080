package scraper

import (
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// requestFilter aborts noise requests before they leave the browser and
// counts how many it dropped.
type requestFilter struct {
	classifier *Classifier
	dropped    atomic.Int64
}

func (f *requestFilter) handle(h *rod.Hijack) {
	req := h.Request
	if f.classifier.ShouldBlock(req.Type(), req.URL().String()) {
		f.dropped.Add(1)
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	}
	h.ContinueRequest(&proto.FetchContinueRequest{})
}

// setupHijack routes every request of page through a requestFilter. The
// router runs until Stop is called on it.
func setupHijack(page *rod.Page, classifier *Classifier) (*rod.HijackRouter, *atomic.Int64) {
	f := &requestFilter{classifier: classifier}
	router := page.HijackRequests()
	_ = router.Add("*", "", f.handle)
	go router.Run()
	return router, &f.dropped
}
