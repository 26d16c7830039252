package conversation

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/veraclinic/agendabot/internal/scheduling"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// normalizeInput collapses whitespace and uppercases, so menu matching is
// insensitive to how the user typed the choice.
func normalizeInput(s string) string {
	return strings.ToUpper(whitespacePattern.ReplaceAllString(strings.TrimSpace(s), " "))
}

// isDigits reports whether s is one or more ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// formatDateBR renders a wire date ("2006-01-02") as DD/MM/AAAA.
func formatDateBR(date string) string {
	t, err := time.Parse(scheduling.DateFormat, date)
	if err != nil {
		return date
	}
	return t.Format("02/01/2006")
}

// parseBirthDate accepts DD/MM/AAAA user input and returns the wire format.
func parseBirthDate(input string) (string, bool) {
	t, err := time.Parse("02/01/2006", strings.TrimSpace(input))
	if err != nil {
		return "", false
	}
	return t.Format(scheduling.DateFormat), true
}

func urlEncode(s string) string {
	return url.QueryEscape(s)
}
