package timing

import "fmt"

// FormatDuration renders minutes as "45m", "2h" or "1h 5m".
func FormatDuration(minutes int) string {
	if minutes < 0 {
		return "-" + FormatDuration(-minutes)
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// FormatDelta renders a signed change such as "+15m" or "-1h 5m". A zero
// delta renders as the empty string.
func FormatDelta(delta int) string {
	switch {
	case delta > 0:
		return "+" + FormatDuration(delta)
	case delta < 0:
		return FormatDuration(delta)
	}
	return ""
}
