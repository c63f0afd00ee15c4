package utils

import (
	"fmt"
	"time"
)

// FormatBytes renders a byte count with a binary unit, e.g. "1.5 MB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatRate renders a transfer rate, e.g. "12.0 MB/s".
func FormatRate(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// Throughput is the average rate of n bytes moved in d, or 0 for an empty
// duration.
func Throughput(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
