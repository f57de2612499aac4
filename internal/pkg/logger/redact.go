package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// redactProfileURL keeps the host of a profile URL (e.g. linkedin.com) but
// masks the path, which usually encodes the person's name or vanity slug.
func redactProfileURL(raw string) string {
	rest := raw
	if idx := strings.Index(raw, "://"); idx >= 0 {
		rest = raw[idx+3:]
	}
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return raw
	}
	return rest[:slash] + "/***"
}
