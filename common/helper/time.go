package helper

import (
	"fmt"
	"time"
)

// GetTimestamp get current timestamp in seconds
func GetTimestamp() int64 {
	return time.Now().Unix()
}

// GetTimeString returns a compact sortable time string with a nanosecond tail.
func GetTimeString() string {
	now := time.Now()
	return fmt.Sprintf("%s%d", now.Format("20060102150405"), now.UnixNano()%1e9)
}

// DayKey formats a unix timestamp as the daily bucket key used by reporting.
func DayKey(ts int64) string {
	return time.Unix(ts, 0).Format("2006-01-02")
}

// FormatTimestamp renders a unix timestamp for CSV exports. Zero stays empty.
func FormatTimestamp(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}
