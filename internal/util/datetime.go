package util

import (
	"fmt"
	"time"
)

// CaptureTimeLayout is the COCO date_captured format ("YYYY-MM-DD HH:MM:SS").
const CaptureTimeLayout = "2006-01-02 15:04:05"

// FormatCaptureTime renders t in the COCO date_captured layout (UTC).
func FormatCaptureTime(t time.Time) string {
	return t.UTC().Format(CaptureTimeLayout)
}

// ParseCaptureTime checks that s is a valid date_captured value and returns the parsed time.
func ParseCaptureTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(CaptureTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date_captured '%s' (want YYYY-MM-DD HH:MM:SS): %w", s, err)
	}
	return t, nil
}
