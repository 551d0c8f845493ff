package douban

import (
	"regexp"
	"strings"
)

// Contributor names arrive decorated with a nationality prefix and sometimes
// a romanized original name, e.g. "[法] 杰西·安佐斯佩（Jessie Inchauspé）".
var (
	nationalityPrefix = regexp.MustCompile(`^[\[【(][^\]】)]+[\]】)]\s*`)
	parentheticalName = regexp.MustCompile(`[（(][^）)]+[）)]`)
)

// cleanContributorName strips the nationality prefix and any parenthesized
// original name. The raw name is returned when cleaning would leave nothing.
func cleanContributorName(name string) string {
	cleaned := nationalityPrefix.ReplaceAllString(name, "")
	cleaned = parentheticalName.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return strings.TrimSpace(name)
	}
	return cleaned
}

// normalizeDate pads partial publication dates to YYYY-MM-DD: "2025-3"
// becomes "2025-03-01" and "2001" becomes "2001-01-01". Unrecognized shapes
// return empty.
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "-")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return ""
		}
		return parts[0] + "-01-01"
	case 2:
		return parts[0] + "-" + pad2(parts[1]) + "-01"
	case 3:
		return parts[0] + "-" + pad2(parts[1]) + "-" + pad2(parts[2])
	default:
		return ""
	}
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// extractField pulls the value following a "label:" line out of the metadata
// block text, collapsing internal whitespace.
func extractField(text, label string) string {
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, label) {
			continue
		}
		idx := strings.Index(line, label)
		value := line[idx+len(label):]
		return strings.Join(strings.Fields(value), " ")
	}
	return ""
}

// extractLabeledLine pulls the value after the colon from a "label: value"
// line, accepting both ASCII and fullwidth colons.
func extractLabeledLine(text, label string) string {
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, label) {
			continue
		}
		line = strings.ReplaceAll(line, "：", ":")
		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			continue
		}
		return strings.TrimSpace(line[idx+1:])
	}
	return ""
}
