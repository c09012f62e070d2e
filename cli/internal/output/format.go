package output

import (
	"fmt"
	"math"
	"strings"
	"time"
)

var sizeUnits = []string{"B", "KiB", "MiB", "GiB"}

// FormatDuration renders d as days, hours and minutes, e.g. "9d 22h 56m".
// Seconds are dropped, zero units are omitted and a zero duration is "".
func FormatDuration(d time.Duration) string {
	negative := d < 0
	if negative {
		d = -d
	}

	minutes := int64(d / time.Minute)
	days := minutes / (24 * 60)
	hours := minutes / 60 % 24
	minutes %= 60

	var parts []string
	if days != 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours != 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes != 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if len(parts) == 0 {
		return ""
	}

	s := strings.Join(parts, " ")
	if negative {
		return "-" + s
	}
	return s
}

// FormatSize renders a byte count with one decimal in the first binary unit
// whose magnitude is below 1024, stopping at GiB
func FormatSize(bytes float64) string {
	unit := 0
	for unit < len(sizeUnits)-1 && math.Abs(bytes) >= 1024 {
		bytes /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", bytes, sizeUnits[unit])
}

// FormatRate renders a bytes per day rate
func FormatRate(bytesPerDay float64) string {
	return FormatSize(bytesPerDay) + "/day"
}

// FormatTime renders t in minutes precision, in its own location
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}
