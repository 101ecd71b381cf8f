package gatekeeper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// hoursPerYear annualizes hourly rates
const hoursPerYear = 2080

var (
	// $120,000, USD 95k, £40/hr
	currencyAmount = regexp.MustCompile(`(?i)(?:\$|usd\s?|€|£|eur\s?|gbp\s?)(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)(\s?k\b)?(\s?(?:/\s?(?:hr|hour)\b|per\s+hour|an\s+hour|hourly))?`)
	bareThousands  = regexp.MustCompile(`(?i)\b(\d{2,3})\s?k\b`)
	yearsRequired  = regexp.MustCompile(`(?i)\b(\d{1,2})\+?\s*(?:-\s*\d{1,2}\s*)?years?\b`)
	entryLevel     = regexp.MustCompile(`(?i)\b(?:entry[- ]level|junior|new grad(?:uate)?|recent graduate)\b`)
)

// phraseMatcher matches configured phrases case-insensitively on word boundaries
type phraseMatcher struct {
	phrase string
	re     *regexp.Regexp
}

func newPhraseMatcher(phrase string) (phraseMatcher, bool) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return phraseMatcher{}, false
	}
	expr := regexp.QuoteMeta(strings.ToLower(phrase))
	if isWordChar(phrase[0]) {
		expr = `\b` + expr
	}
	if isWordChar(phrase[len(phrase)-1]) {
		expr += `\b`
	}
	return phraseMatcher{phrase: phrase, re: regexp.MustCompile(expr)}, true
}

func (m phraseMatcher) in(lowerText string) bool {
	return m.re.MatchString(lowerText)
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// firstMatch returns the first phrase found in lowerText
func firstMatch(phrases []string, lowerText string) (string, bool) {
	for _, p := range phrases {
		m, ok := newPhraseMatcher(p)
		if ok && m.in(lowerText) {
			return m.phrase, true
		}
	}
	return "", false
}

// ParseCompensation extracts the highest annualized figure stated in text.
// Figures need a currency marker or a k suffix; hourly rates are annualized.
func ParseCompensation(text string) (float64, bool) {
	var best float64
	found := false
	consider := func(v float64) {
		if v >= 1000 && v > best {
			best = v
			found = true
		}
	}

	for _, m := range currencyAmount.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		if strings.TrimSpace(m[2]) != "" {
			v *= 1000
		}
		if strings.TrimSpace(m[3]) != "" {
			v *= hoursPerYear
		}
		consider(v)
	}
	for _, m := range bareThousands.FindAllStringSubmatch(text, -1) {
		if m[1] == "401" || m[1] == "403" {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		consider(float64(v) * 1000)
	}
	return best, found
}

// maxYearsRequired returns the largest "N years" figure in text
func maxYearsRequired(text string) int {
	maxYears := 0
	for _, m := range yearsRequired.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxYears {
			maxYears = n
		}
	}
	return maxYears
}

func formatMoney(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 0, 64)
}

func quoted(s string) string {
	return fmt.Sprintf("%q", s)
}
