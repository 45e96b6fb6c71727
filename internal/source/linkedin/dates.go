package linkedin

import (
	"strings"
	"time"
)

var dateLayouts = []string{"Jan 2006", "January 2006", "2006"}

// ParseDateRange turns LinkedIn's free-text ranges ("Jan 2020 - Present",
// "Mar 2019 - Jun 2021 · 2 yrs 4 mos") into month-precision bounds. A single
// date is a start with no end, "Present" is an open end, and anything it
// cannot read becomes nil. It never fails.
func ParseDateRange(raw string) (start, end *time.Time) {
	text := raw
	if i := strings.Index(text, "·"); i >= 0 {
		text = text[:i]
	}
	text = strings.ReplaceAll(text, "–", "-")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	startText, endText, ranged := strings.Cut(text, " - ")
	start = parseMonth(startText)
	if !ranged {
		return start, nil
	}
	if strings.EqualFold(strings.TrimSpace(endText), "present") {
		return start, nil
	}
	return start, parseMonth(endText)
}

func parseMonth(text string) *time.Time {
	text = strings.Join(strings.Fields(text), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return &t
		}
	}
	return nil
}
