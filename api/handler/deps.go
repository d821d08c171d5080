package handler

import (
	"context"

	"github.com/use-agent/adsaver/models"
	"github.com/use-agent/adsaver/scraper"
)

// AdExtractor resolves one Ad Library URL. Satisfied by *scraper.Extractor.
type AdExtractor interface {
	Extract(ctx context.Context, rawURL string, progress scraper.Progress) (*models.AdResult, error)
}

// MediaOpener opens an upstream media stream. Satisfied by
// *scraper.Downloader.
type MediaOpener interface {
	Open(ctx context.Context, rawURL string) (*scraper.Download, error)
}

// EngineStatser reports browser engine state. Satisfied by *scraper.Manager.
type EngineStatser interface {
	Stats() models.EngineStats
}
