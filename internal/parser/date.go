package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultDateFormat is the journal title format used when none is configured.
const DefaultDateFormat = "MMM do, yyyy"

// journalFileRe matches journal file names such as 2023_06_29.
var journalFileRe = regexp.MustCompile(`^(\d{4})[_-](\d{2})[_-](\d{2})$`)

// dateToken is one element of a parsed date format.
type dateToken struct {
	kind    string // "" for literal text
	literal string
}

var dateTokenKinds = []string{"yyyy", "MMMM", "MMM", "MM", "EEEE", "EEE", "do", "dd", "M", "d"}

// DateFormat formats and recognizes journal page titles written with
// date-fns style tokens.
type DateFormat struct {
	tokens []dateToken
	re     *regexp.Regexp
}

// NewDateFormat compiles layout. An empty layout selects DefaultDateFormat.
func NewDateFormat(layout string) (*DateFormat, error) {
	if layout == "" {
		layout = DefaultDateFormat
	}
	var tokens []dateToken
	var pattern strings.Builder
	pattern.WriteString(`(?i)^`)
	rest := layout
	for rest != "" {
		matched := false
		for _, kind := range dateTokenKinds {
			if strings.HasPrefix(rest, kind) {
				tokens = append(tokens, dateToken{kind: kind})
				pattern.WriteString(tokenPattern(kind))
				rest = rest[len(kind):]
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		lit := rest[:1]
		tokens = append(tokens, dateToken{literal: lit})
		pattern.WriteString(regexp.QuoteMeta(lit))
		rest = rest[1:]
	}
	pattern.WriteString(`$`)
	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, fmt.Errorf("compile date format %q: %w", layout, err)
	}
	return &DateFormat{tokens: tokens, re: re}, nil
}

func tokenPattern(kind string) string {
	switch kind {
	case "yyyy":
		return `(\d{4})`
	case "MMMM", "MMM", "EEEE", "EEE":
		return `([A-Za-z]+)`
	case "MM", "dd":
		return `(\d{2})`
	case "do":
		return `(\d{1,2})(?:st|nd|rd|th)`
	}
	return `(\d{1,2})`
}

// Format renders t.
func (f *DateFormat) Format(t time.Time) string {
	var b strings.Builder
	for _, tok := range f.tokens {
		switch tok.kind {
		case "":
			b.WriteString(tok.literal)
		case "yyyy":
			fmt.Fprintf(&b, "%04d", t.Year())
		case "MMMM":
			b.WriteString(t.Month().String())
		case "MMM":
			b.WriteString(t.Month().String()[:3])
		case "MM":
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case "M":
			b.WriteString(strconv.Itoa(int(t.Month())))
		case "EEEE":
			b.WriteString(t.Weekday().String())
		case "EEE":
			b.WriteString(t.Weekday().String()[:3])
		case "do":
			b.WriteString(ordinal(t.Day()))
		case "dd":
			fmt.Fprintf(&b, "%02d", t.Day())
		case "d":
			b.WriteString(strconv.Itoa(t.Day()))
		}
	}
	return b.String()
}

// Parse recognizes a title written in this format.
func (f *DateFormat) Parse(s string) (time.Time, bool) {
	m := f.re.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, false
	}
	year, month, day := 0, 0, 0
	group := 1
	for _, tok := range f.tokens {
		if tok.kind == "" {
			continue
		}
		v := m[group]
		group++
		switch tok.kind {
		case "yyyy":
			year, _ = strconv.Atoi(v)
		case "MMMM", "MMM":
			month = monthByName(v)
		case "MM", "M":
			month, _ = strconv.Atoi(v)
		case "do", "dd", "d":
			day, _ = strconv.Atoi(v)
		}
	}
	if year == 0 || month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func monthByName(s string) int {
	s = strings.ToLower(s)
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if s == name || (len(s) == 3 && s == name[:3]) {
			return int(m)
		}
	}
	return 0
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}

// JournalDay returns t as a yyyymmdd integer.
func JournalDay(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// journalDate reads the date encoded in a journal file name.
func journalDate(base string) (time.Time, bool) {
	m := journalFileRe.FindStringSubmatch(base)
	if m == nil {
		return time.Time{}, false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
