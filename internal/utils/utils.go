// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize converts a human-readable size string (e.g. "64KB", "10MB", or
// a bare byte count) to bytes.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if v, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return v, nil
	}

	if len(sizeStr) < 3 {
		return 0, fmt.Errorf("invalid size string: %s", sizeStr)
	}
	unit := strings.ToUpper(sizeStr[len(sizeStr)-2:])
	value, err := strconv.ParseInt(strings.TrimSpace(sizeStr[:len(sizeStr)-2]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %v", err)
	}

	switch unit {
	case "KB":
		return value * 1024, nil
	case "MB":
		return value * 1024 * 1024, nil
	case "GB":
		return value * 1024 * 1024 * 1024, nil
	default:
		return 0, fmt.Errorf("unknown size unit: %s", unit)
	}
}

// FormatBytes renders a byte count in a human-readable unit.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
