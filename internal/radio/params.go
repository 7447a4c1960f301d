package radio

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	DefaultLimit = 50
	MaxLimit     = 1000

	// maxFieldRunes caps every free-text parameter forwarded upstream.
	maxFieldRunes = 100
)

// Limits bounds the page size a caller may request.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits returns the stock page size bounds.
func DefaultLimits() Limits {
	return Limits{Default: DefaultLimit, Max: MaxLimit}
}

func (l Limits) normalized() Limits {
	if l.Max < 1 {
		l.Max = MaxLimit
	}
	if l.Default < 1 || l.Default > l.Max {
		l.Default = min(DefaultLimit, l.Max)
	}
	return l
}

// ValidatedParams are station search parameters that are safe to forward.
type ValidatedParams struct {
	Limit       int
	Offset      int
	CountryCode string
	Tag         string
	Name        string
	Language    string
	Order       string
	Reverse     bool
}

// ValidateParams normalizes raw query values. It never fails: bad numbers
// fall back to defaults, out-of-range numbers are clamped, strings are
// trimmed and truncated, and unknown keys are dropped.
func ValidateParams(q url.Values, limits Limits) ValidatedParams {
	limits = limits.normalized()

	p := ValidatedParams{
		Limit:       limits.Default,
		CountryCode: Sanitize(q.Get("countrycode")),
		Tag:         Sanitize(q.Get("tag")),
		Name:        Sanitize(q.Get("name")),
		Language:    Sanitize(q.Get("language")),
		Order:       Sanitize(q.Get("order")),
		Reverse:     parseBool(q.Get("reverse")),
	}

	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			p.Limit = ClampLimit(n, limits)
		}
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.Offset = n
		}
	}
	return p
}

// Query renders the parameters for the upstream search endpoint. Empty
// fields are omitted and broken stations are always hidden.
func (p ValidatedParams) Query() url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(p.Limit))
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set("countrycode", p.CountryCode)
	set("tag", p.Tag)
	set("name", p.Name)
	set("language", p.Language)
	set("order", p.Order)
	if p.Reverse {
		q.Set("reverse", "true")
	}
	q.Set("hidebroken", "true")
	return q
}

// ClampLimit forces n into [1, limits.Max].
func ClampLimit(n int, limits Limits) int {
	limits = limits.normalized()
	if n < 1 {
		return 1
	}
	if n > limits.Max {
		return limits.Max
	}
	return n
}

// Sanitize trims s and truncates it to the maximum field length.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxFieldRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxFieldRunes]))
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
