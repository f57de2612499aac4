package domain

import "strings"

// NormalizeCompanyKey lowercases, trims, and strips the common punctuation
// and corporate suffixes that would otherwise make the same company look
// like two distinct dedup keys.
func NormalizeCompanyKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "www.")
	replacer := strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
	)
	s = replacer.Replace(s)
	for _, suffix := range []string{" inc", " llc", " ltd", " co", " corp", " corporation"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.Join(strings.Fields(s), " ")
}
