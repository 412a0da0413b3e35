package weather

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatSummary renders a report the way it is shown in chat.
func FormatSummary(r Report) string {
	return fmt.Sprintf(
		"🌍 Город: %s, %s\n"+
			"🌡 Температура: %s°C\n"+
			"💨 Ветер: %s км/ч\n"+
			"💧 Влажность: %s%%\n"+
			"☁️ Условие: %s",
		r.City, r.Country,
		formatNumber(r.TempC),
		formatNumber(r.WindKPH),
		formatNumber(r.Humidity),
		r.Condition,
	)
}

// formatNumber prints the shortest representation: 15 -> "15", 15.5 -> "15.5".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// absoluteIconURL turns the provider's protocol-relative icon path into an
// absolute URL. Paths that already carry a scheme are returned unchanged.
func absoluteIconURL(scheme, icon string) string {
	if strings.HasPrefix(icon, "//") {
		return scheme + icon
	}
	return icon
}
