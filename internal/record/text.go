package record

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// emphasisRegex matches markdown bold/italic markers.
var emphasisRegex = regexp.MustCompile(`\*{1,3}|_{2,3}`)

// maxNameChars caps display names.
const maxNameChars = 200

// NormalizeName cleans a user-supplied file name for display:
// base name only, whitespace collapsed, trimmed and capped.
func NormalizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	name = whitespaceRegex.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxNameChars {
		name = string([]rune(name)[:maxNameChars])
	}
	return name
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// Excerpt flattens markdown text to one line and truncates it to n runes,
// adding an ellipsis when cut.
func Excerpt(text string, n int) string {
	text = emphasisRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	r := []rune(text)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
