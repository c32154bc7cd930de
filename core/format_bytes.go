package core

import "fmt"

// Binary byte units, displayed with the familiar KB/MB/GB labels.
const (
	BytesPerKB int64 = 1 << 10
	BytesPerMB int64 = 1 << 20
	BytesPerGB int64 = 1 << 30
)

// FormatBytes renders a byte count for humans: "512 B", "1.50 KB",
// "4.00 GB". Negative counts render as "0 B".
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	if bytes < BytesPerKB {
		return fmt.Sprintf("%d B", bytes)
	}

	unit, label := BytesPerKB, "KB"
	switch {
	case bytes >= BytesPerGB:
		unit, label = BytesPerGB, "GB"
	case bytes >= BytesPerMB:
		unit, label = BytesPerMB, "MB"
	}
	return fmt.Sprintf("%.2f %s", float64(bytes)/float64(unit), label)
}
