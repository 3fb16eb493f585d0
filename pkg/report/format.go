package report

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
)

// formatDuration renders a millisecond duration compactly: "1h 4m 12s",
// "3m 5.2s", "450ms".
func formatDuration(ms int64) string {
	negative := ms < 0
	if negative {
		ms = -ms
	}

	d := time.Duration(ms) * time.Millisecond

	var out string

	switch {
	case d >= time.Hour:
		out = fmt.Sprintf(
			"%dh %dm %ds",
			int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60,
		)
	case d >= time.Minute:
		out = fmt.Sprintf(
			"%dm %.1fs",
			int(d.Minutes()), float64(ms%60000)/1000,
		)
	case d >= time.Second:
		out = fmt.Sprintf("%.1fs", float64(ms)/1000)
	default:
		out = fmt.Sprintf("%dms", ms)
	}

	if negative {
		return "-" + out
	}

	return out
}

// formatPercent renders a share with one decimal.
func formatPercent(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

// formatBytes renders a byte size for humans, e.g. "1.24GB".
func formatBytes(size int64) string {
	return units.HumanSize(float64(size))
}
