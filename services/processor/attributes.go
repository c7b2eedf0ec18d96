package processor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/zetadesk/mailgate/internal/models"
)

// Typed capture groups of the permitted-attribute grammar. The key is
// matched case-insensitively, the value groups are not.
const (
	dateGroup   = `(\d{2})[-/](\d{2})[-/](\d{4})(?:[ \t]+(\d{2}):(\d{2}))?`
	idGroup     = `([A-Z]{3}\d{12})`
	stringGroup = `(\S+)`
)

// ExtractAttributes scans the body for the permitted typed attributes.
// When the body starts with an <html tag the textual content of <body>
// is matched instead of the markup. Extraction is idempotent: dates are
// canonicalized to ISO local time on the way out.
func ExtractAttributes(body string, permitted map[string]models.AttributeType) map[string]string {
	fields := make(map[string]string)
	if len(permitted) == 0 {
		return fields
	}

	text := body
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(body)), "<html") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
			text = doc.Find("body").Text()
		}
	}

	for key, attrType := range permitted {
		value, ok := extractAttribute(text, key, attrType)
		if ok {
			fields[key] = value
		}
	}

	return fields
}

func extractAttribute(text, key string, attrType models.AttributeType) (string, bool) {
	var group string
	switch attrType {
	case models.AttributeDate:
		group = dateGroup
	case models.AttributeID:
		group = idGroup
	case models.AttributeString:
		group = stringGroup
	default:
		return "", false
	}

	re, err := regexp.Compile(`(?i:` + regexp.QuoteMeta(key) + `)[\s\-;:]*` + group)
	if err != nil {
		return "", false
	}

	match := re.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}

	if attrType == models.AttributeDate {
		return canonicalizeDate(match)
	}
	return match[1], true
}

// canonicalizeDate turns the DD-MM-YYYY[ HH:MM] captures into
// YYYY-MM-DDTHH:MM:00; a missing time becomes end of day.
func canonicalizeDate(match []string) (string, bool) {
	day, _ := strconv.Atoi(match[1])
	month, _ := strconv.Atoi(match[2])
	year, _ := strconv.Atoi(match[3])

	hour, minute := 23, 59
	second := 59
	if match[4] != "" {
		hour, _ = strconv.Atoi(match[4])
		minute, _ = strconv.Atoi(match[5])
		second = 0
	}

	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 {
		return "", false
	}
	// Reject dates like 31-02-2024
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) || t.Year() != year {
		return "", false
	}

	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", year, month, day, hour, minute, second), true
}

// IsISODateTime reports whether the value is a naive ISO local-time
// string as produced by canonicalizeDate.
func IsISODateTime(value string) bool {
	_, err := time.Parse("2006-01-02T15:04:05", value)
	return err == nil
}
