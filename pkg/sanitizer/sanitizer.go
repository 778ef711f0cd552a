package sanitizer

import (
	"net/url"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

func trimAndCollapseSpaces(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

// SanitizeToolName normalizes a display name: trimmed, inner whitespace
// collapsed to single spaces.
func SanitizeToolName(input string) string {
	p := Pipeline{
		trimAndCollapseSpaces,
	}
	return p.Apply(input)
}

// SanitizeHolder normalizes a holder email for use as a match key.
// Emails are compared case-insensitively everywhere in the ledger.
func SanitizeHolder(input string) string {
	p := Pipeline{
		strings.TrimSpace,
		strings.ToLower,
	}
	return p.Apply(input)
}

// SanitizeURL canonicalizes a display URL, forcing https when no scheme
// is present and stripping tracking query parameters. Returns "" when
// the input does not parse to a host.
func SanitizeURL(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}

	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}

	u.Host = strings.ToLower(u.Host)
	if after, ok := strings.CutPrefix(u.Host, "www."); ok {
		u.Host = after
	}
	u.Path = strings.TrimSuffix(strings.TrimSpace(u.Path), "/")

	q := u.Query()
	qClean := url.Values{}
	for k, v := range q {
		key := strings.TrimSpace(strings.ToLower(k))
		if strings.HasPrefix(key, "utm_") {
			continue
		}
		for _, val := range v {
			if val != "" {
				qClean.Add(key, val)
			}
		}
	}
	u.RawQuery = qClean.Encode()

	return u.String()
}
