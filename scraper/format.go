package scraper

import (
	"fmt"
	"math"
	"strconv"
)

var byteUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatBytes renders a byte count with two significant decimals,
// e.g. 1536 -> "1.5 KB". nil means the size is unknown.
func FormatBytes(n *int64) string {
	if n == nil {
		return "Unknown"
	}
	if *n <= 0 {
		return "0 Bytes"
	}
	v := float64(*n)
	i := int(math.Floor(math.Log(v) / math.Log(1024)))
	if i >= len(byteUnits) {
		i = len(byteUnits) - 1
	}
	scaled := math.Round(v/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(scaled, 'f', -1, 64) + " " + byteUnits[i]
}

// FormatDuration renders seconds as m:ss, truncating fractions.
func FormatDuration(seconds float64) string {
	total := int(math.Floor(seconds))
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
