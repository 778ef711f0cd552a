package sanitizer

import "testing"

func TestSanitizeToolName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"trims whitespace", "  Figma Org  ", "Figma Org"},
		{"collapses inner spaces", "Jira \t  Cloud", "Jira Cloud"},
		{"empty input", "   ", ""},
		{"preserves case", "GitHub Enterprise", "GitHub Enterprise"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeToolName(tc.input); got != tc.want {
				t.Errorf("SanitizeToolName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestSanitizeHolder(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"  Alice@Example.COM ", "alice@example.com"},
		{"bob@x.com", "bob@x.com"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := SanitizeHolder(tc.input); got != tc.want {
			t.Errorf("SanitizeHolder(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestSanitizeURL(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"adds https", "example.com/login", "https://example.com/login"},
		{"strips www", "https://www.example.com", "https://example.com"},
		{"strips trailing slash", "https://example.com/app/", "https://example.com/app"},
		{"drops utm params", "https://example.com/x?utm_source=mail&id=7", "https://example.com/x?id=7"},
		{"rejects garbage", "://nope", ""},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeURL(tc.input); got != tc.want {
				t.Errorf("SanitizeURL(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
