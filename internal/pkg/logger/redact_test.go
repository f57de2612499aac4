package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"a@example.com":        "***@example.com",
		"not-an-email":         "***@***",
	}
	for in, want := range cases {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactProfileURL(t *testing.T) {
	got := redactProfileURL("https://linkedin.com/in/jane-doe-123")
	want := "linkedin.com/***"
	if got != want {
		t.Errorf("redactProfileURL = %q, want %q", got, want)
	}
}
