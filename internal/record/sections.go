package record

import (
	"regexp"
	"strings"
)

// Section is one titled block of a report.
type Section struct {
	Title string // "Solution"; empty for the lead paragraph
	Body  string // trimmed text following the heading
}

// headingPattern matches report headings: "**Solution:**" on its own line,
// or a markdown "## Solution" header.
var headingPattern = regexp.MustCompile(`(?m)^[ \t]*(?:\*\*([^*\n]+?):?\*\*|#{1,6}[ \t]+([^\n]+?))[ \t]*$`)

// ParseSections splits report text at its headings. Text before the first
// heading becomes an untitled lead section. Returns nil for empty text.
func ParseSections(text string) []Section {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	matches := headingPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []Section{{Body: strings.TrimSpace(text)}}
	}

	var sections []Section
	if lead := strings.TrimSpace(text[:matches[0][0]]); lead != "" {
		sections = append(sections, Section{Body: lead})
	}

	for i, m := range matches {
		// m: [full, full, boldTitle, boldTitle, hashTitle, hashTitle]
		var title string
		if m[2] >= 0 {
			title = text[m[2]:m[3]]
		} else {
			title = text[m[4]:m[5]]
		}
		title = strings.TrimSuffix(strings.TrimSpace(title), ":")

		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections = append(sections, Section{
			Title: title,
			Body:  strings.TrimSpace(text[m[1]:end]),
		})
	}
	return sections
}

// FindSection returns the section with the given title (case-insensitive).
func FindSection(sections []Section, title string) *Section {
	want := strings.ToLower(strings.TrimSpace(title))
	for i := range sections {
		if strings.ToLower(sections[i].Title) == want {
			return &sections[i]
		}
	}
	return nil
}

// SectionTitles lists the titled sections, for error messages.
func SectionTitles(sections []Section) []string {
	titles := make([]string, 0, len(sections))
	for _, s := range sections {
		if s.Title != "" {
			titles = append(titles, s.Title)
		}
	}
	return titles
}
