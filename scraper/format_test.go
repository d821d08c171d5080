package scraper

import "testing"

func ptr(n int64) *int64 { return &n }

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   *int64
		want string
	}{
		{nil, "Unknown"},
		{ptr(0), "0 Bytes"},
		{ptr(-5), "0 Bytes"},
		{ptr(500), "500 Bytes"},
		{ptr(1024), "1 KB"},
		{ptr(1536), "1.5 KB"},
		{ptr(1048576), "1 MB"},
		{ptr(1234567), "1.18 MB"},
		{ptr(2621440), "2.5 MB"},
		{ptr(3 * 1024 * 1024 * 1024), "3 GB"},
	}

	for _, tc := range tests {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{59.99, "0:59"},
		{75.4, "1:15"},
		{600, "10:00"},
		{3725, "62:05"},
		{-3, "0:00"},
	}

	for _, tc := range tests {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
