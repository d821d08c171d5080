package scraper

import (
	"errors"
	"testing"

	"github.com/use-agent/adsaver/models"
)

func TestValidateAdURL_Valid(t *testing.T) {
	tests := []struct {
		in       string
		wantURL  string
		wantAdID string
	}{
		{
			"https://www.facebook.com/ads/library/?id=1234567890",
			"https://www.facebook.com/ads/library/?id=1234567890",
			"1234567890",
		},
		{
			"  facebook.com/ads/library/?id=42&country=US  ",
			"https://facebook.com/ads/library/?id=42&country=US",
			"42",
		},
		{
			"https://m.facebook.com/ads/library/?active_status=all",
			"https://m.facebook.com/ads/library/?active_status=all",
			"",
		},
		{
			"http://www.facebook.com/ad_library/?id=7",
			"http://www.facebook.com/ad_library/?id=7",
			"7",
		},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, id, err := ValidateAdURL(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.wantURL || id != tc.wantAdID {
				t.Errorf("ValidateAdURL() = (%q, %q), want (%q, %q)", got, id, tc.wantURL, tc.wantAdID)
			}
		})
	}
}

func TestValidateAdURL_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"https://example.com/video.mp4",
		"https://www.facebook.com/somepage",
		"https://evil.example/facebook.com/ads/library/?id=1",
		"ftp://www.facebook.com/ads/library/?id=1",
		"javascript:alert(1)//facebook.com/ads/library",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, _, err := ValidateAdURL(in)
			var ae *models.AdError
			if !errors.As(err, &ae) {
				t.Fatalf("expected *AdError, got %v", err)
			}
			if ae.Code != models.ErrCodeInvalidInput || ae.Message != models.MsgInvalidURL {
				t.Errorf("got (%s, %q), want INVALID_INPUT with the invalid-URL message", ae.Code, ae.Message)
			}
		})
	}
}

func TestHostMatches(t *testing.T) {
	allowed := []string{"fbcdn.net", "facebook.com"}
	tests := []struct {
		host string
		want bool
	}{
		{"fbcdn.net", true},
		{"video.xx.fbcdn.net", true},
		{"WWW.Facebook.com.", true},
		{"notfbcdn.net", false},
		{"fbcdn.net.evil.com", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := hostMatches(tc.host, allowed); got != tc.want {
			t.Errorf("hostMatches(%q) = %v, want %v", tc.host, got, tc.want)
		}
	}
}
