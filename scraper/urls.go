package scraper

import (
	"net/url"
	"strings"

	"github.com/use-agent/adsaver/models"
)

// adLibraryMarkers are the path fragments that identify an Ad Library link.
var adLibraryMarkers = []string{"facebook.com/ads/library", "facebook.com/ad_library"}

// ValidateAdURL checks that raw is an Ad Library link and returns it in
// normalized form together with the value of its "id" query parameter
// (empty when absent). A missing scheme defaults to https.
func ValidateAdURL(raw string) (normalized, adID string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !containsAny(raw, adLibraryMarkers) {
		return "", "", models.NewAdError(models.ErrCodeInvalidInput, models.MsgInvalidURL, nil)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, perr := url.Parse(raw)
	if perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", models.NewAdError(models.ErrCodeInvalidInput, models.MsgInvalidURL, perr)
	}
	if !hostMatches(u.Hostname(), []string{"facebook.com"}) {
		return "", "", models.NewAdError(models.ErrCodeInvalidInput, models.MsgInvalidURL, nil)
	}
	return u.String(), u.Query().Get("id"), nil
}

// hostMatches reports whether host equals one of suffixes or is a
// subdomain of one, walking up parent domains.
func hostMatches(host string, suffixes []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for {
		for _, s := range suffixes {
			if host == strings.ToLower(s) {
				return true
			}
		}
		dot := strings.IndexByte(host, '.')
		if dot < 0 {
			return false
		}
		host = host[dot+1:]
	}
}
