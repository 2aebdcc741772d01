package crawler

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"sjsage522/jobworker/helpers"
)

// FallbackPolicy decides what an unrecognized date string becomes
type FallbackPolicy int

const (
	// FallbackToday resolves unrecognized dates to the reference day
	FallbackToday FallbackPolicy = iota
	// FallbackNull leaves unrecognized dates absent
	FallbackNull
)

// ParseFallback maps the DATE_FALLBACK setting to a policy
func ParseFallback(s string) FallbackPolicy {
	if strings.EqualFold(strings.TrimSpace(s), "null") {
		return FallbackNull
	}
	return FallbackToday
}

// DateNormalizer turns the free-text posting dates shown by job boards into
// calendar dates
type DateNormalizer struct {
	Fallback FallbackPolicy
}

var (
	todayPattern     = regexp.MustCompile(`\btoday\b|aujourd|\bjust now\b|\bjust posted\b`)
	yesterdayPattern = regexp.MustCompile(`\byesterday\b|\bhier\b`)
	ilYaPattern      = regexp.MustCompile(`\bil y a\s+(\S+)(?:\s+(\pL+))?`)
	agoPattern       = regexp.MustCompile(`(\S+)\s+(\pL+)\s+ago\b`)
	dayMonthPattern  = regexp.MustCompile(`\b(\d{1,2})(?:er|st|nd|rd|th)?\s+(\pL+)\.?,?\s+(\d{4})\b`)
	monthDayPattern  = regexp.MustCompile(`\b(\pL+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	isoPattern       = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})`)
)

// months maps accent-folded French and English month names to calendar months
var months = map[string]time.Month{
	"janvier": time.January, "january": time.January, "jan": time.January, "janv": time.January,
	"fevrier": time.February, "february": time.February, "feb": time.February, "fev": time.February, "fevr": time.February,
	"mars": time.March, "march": time.March, "mar": time.March,
	"avril": time.April, "april": time.April, "apr": time.April, "avr": time.April,
	"mai": time.May, "may": time.May,
	"juin": time.June, "june": time.June, "jun": time.June,
	"juillet": time.July, "july": time.July, "jul": time.July, "juil": time.July,
	"aout": time.August, "august": time.August, "aug": time.August,
	"septembre": time.September, "september": time.September, "sep": time.September, "sept": time.September,
	"octobre": time.October, "october": time.October, "oct": time.October,
	"novembre": time.November, "november": time.November, "nov": time.November,
	"decembre": time.December, "december": time.December, "dec": time.December,
}

type unitKind int

const (
	unitDay unitKind = iota
	unitSameDay
	unitWeek
	unitMonth
	unitYear
)

var units = map[string]unitKind{
	"": unitDay, "day": unitDay, "days": unitDay, "jour": unitDay, "jours": unitDay, "j": unitDay,
	"second": unitSameDay, "seconds": unitSameDay, "seconde": unitSameDay, "secondes": unitSameDay,
	"minute": unitSameDay, "minutes": unitSameDay, "min": unitSameDay, "mins": unitSameDay,
	"hour": unitSameDay, "hours": unitSameDay, "heure": unitSameDay, "heures": unitSameDay, "h": unitSameDay,
	"week": unitWeek, "weeks": unitWeek, "semaine": unitWeek, "semaines": unitWeek,
	"month": unitMonth, "months": unitMonth, "mois": unitMonth,
	"year": unitYear, "years": unitYear, "an": unitYear, "ans": unitYear, "annee": unitYear, "annees": unitYear,
}

// NormalizeDate normalizes raw with the default policy
func NormalizeDate(raw string, today time.Time) *time.Time {
	return DateNormalizer{}.Normalize(raw, today)
}

// Normalize maps raw to a calendar date relative to today. Relative phrases are
// tried before absolute dates; a pattern that matches but does not produce a
// valid date yields nil rather than falling through.
func (n DateNormalizer) Normalize(raw string, today time.Time) *time.Time {
	ref := dateOf(today)
	text := fold(raw)

	if todayPattern.MatchString(text) {
		return &ref
	}
	if yesterdayPattern.MatchString(text) {
		d := ref.AddDate(0, 0, -1)
		return &d
	}

	if m := ilYaPattern.FindStringSubmatch(text); m != nil {
		return relative(ref, m[1], m[2])
	}
	if m := agoPattern.FindStringSubmatch(text); m != nil {
		return relative(ref, m[1], m[2])
	}

	if m := dayMonthPattern.FindStringSubmatch(text); m != nil {
		if month, ok := months[m[2]]; ok {
			return calendarDate(m[3], month, m[1])
		}
	}
	if m := monthDayPattern.FindStringSubmatch(text); m != nil {
		if month, ok := months[m[1]]; ok {
			return calendarDate(m[3], month, m[2])
		}
	}
	if m := isoPattern.FindStringSubmatch(text); m != nil {
		mon, _ := strconv.Atoi(m[2])
		if mon < 1 || mon > 12 {
			return nil
		}
		return calendarDate(m[1], time.Month(mon), m[3])
	}

	if n.Fallback == FallbackNull {
		return nil
	}
	return &ref
}

// relative subtracts count units from ref. A count that is not an integer
// makes the whole phrase unparsable.
func relative(ref time.Time, count, unit string) *time.Time {
	count = strings.TrimSuffix(count, "+")
	v, err := strconv.Atoi(count)
	if err != nil || v < 0 {
		return nil
	}

	kind, ok := units[unit]
	if !ok {
		// "il y a 3" followed by an unrelated word
		kind = unitDay
	}

	var d time.Time
	switch kind {
	case unitSameDay:
		d = ref
	case unitWeek:
		d = ref.AddDate(0, 0, -7*v)
	case unitMonth:
		d = addMonths(ref, -v)
	case unitYear:
		d = addMonths(ref, -12*v)
	default:
		d = ref.AddDate(0, 0, -v)
	}
	return &d
}

// addMonths moves t by months, clamping the day to the end of the target month
// so "1 month" before March 31 is February 29 and not March 2
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// calendarDate builds a date and rejects anything time.Date would normalize
// into another day (Feb 31, day 0)
func calendarDate(year string, month time.Month, day string) *time.Time {
	y, err := strconv.Atoi(year)
	if err != nil {
		return nil
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return nil
	}

	t := time.Date(y, month, d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || t.Month() != month || t.Day() != d {
		return nil
	}
	return &t
}

// dateOf truncates t to its calendar day, expressed at UTC midnight
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fold lowercases s, collapses whitespace and strips diacritics and typographic
// apostrophes so "Publiée le 5 février" and "publiee le 5 fevrier" compare equal
func fold(s string) string {
	s = strings.ToLower(helpers.CleanText(s))
	s = strings.NewReplacer("’", "'", "`", "'").Replace(s)
	// transformers carry state, so each call builds its own chain
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(folder, s)
	if err != nil {
		return s
	}
	return out
}
