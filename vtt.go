package main

import (
	"html"
	"regexp"
	"strings"
)

var vttTagPattern = regexp.MustCompile(`<[^>]+>`)

// CleanVTT strips WEBVTT headers, timing cues, cue numbers, and inline markup
// from subtitle content, collapses consecutive duplicate caption lines
// (YouTube auto-subs repeat each line as the next one scrolls in), and joins
// the remainder into one whitespace-normalized string.
func CleanVTT(vtt string) string {
	if strings.TrimSpace(vtt) == "" {
		return ""
	}

	seen := make(map[string]struct{})
	var result []string
	for _, line := range strings.Split(vtt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "WEBVTT") || strings.Contains(line, "-->") || isDigits(line) {
			continue
		}
		line = vttTagPattern.ReplaceAllString(line, "")
		line = html.UnescapeString(line)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		result = append(result, line)
	}
	return strings.Join(result, " ")
}

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
