package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// FormatAlert renders an alert as a short title and a multi-line body.
func FormatAlert(a domain.AlertRecord) (title, body string) {
	title = fmt.Sprintf("+EV %.2f%% | %s @ %s", a.EdgePercent(), a.OutcomeName, a.BookKey)

	var sb strings.Builder
	if a.HomeTeam != "" || a.AwayTeam != "" {
		fmt.Fprintf(&sb, "%s vs %s\n", a.AwayTeam, a.HomeTeam)
	}
	fmt.Fprintf(&sb, "Market: %s\n", a.MarketKey)
	fmt.Fprintf(&sb, "Pick: %s %s", a.OutcomeName, FormatOdds(a.Price))
	if a.Point != nil {
		fmt.Fprintf(&sb, " (%+.1f)", *a.Point)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Age: %s %.0fs\n", ageBadge(a.DataAge), a.DataAge)
	fmt.Fprintf(&sb, "Detected: %s", a.DetectedAt.UTC().Format("15:04:05"))
	return title, sb.String()
}

// FormatOdds renders American odds with an explicit sign.
func FormatOdds(american int) string {
	if american > 0 {
		return fmt.Sprintf("+%d", american)
	}
	return fmt.Sprintf("%d", american)
}

func ageBadge(seconds float64) string {
	switch {
	case seconds < 5:
		return "fresh"
	case seconds < 10:
		return "aging"
	default:
		return "stale"
	}
}
