// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunk

import (
	"regexp"
	"strings"
)

// Section labels.
const (
	SectionBackground = "background"
	SectionMethods    = "methods"
	SectionResults    = "results"
	SectionConclusion = "conclusion"
	SectionObjective  = "objective"
	SectionAbstract   = "abstract"
)

// sectionWindow is how much of a passage's start is inspected for a heading.
const sectionWindow = 100

var sectionPatterns = []struct {
	label string
	re    *regexp.Regexp
}{
	{SectionBackground, regexp.MustCompile(`^(?:background|introduction|context)\b[:.]?`)},
	{SectionMethods, regexp.MustCompile(`^(?:methods?|methodology|approach|materials)\b[:.]?`)},
	{SectionResults, regexp.MustCompile(`^(?:results?|findings|observations)\b[:.]?`)},
	{SectionConclusion, regexp.MustCompile(`^(?:conclusions?|summary|discussion)\b[:.]?`)},
	{SectionObjective, regexp.MustCompile(`^(?:objectives?|aims?|purpose|goals?)\b[:.]?`)},
	{SectionAbstract, regexp.MustCompile(`^(?:abstract|title)\b[:.]?`)},
}

// DetectSection returns the label of a heading-like prefix of text, or "".
func DetectSection(text string) string {
	start := text
	if len(start) > sectionWindow {
		start = start[:sectionWindow]
	}
	start = strings.ToLower(strings.TrimSpace(start))
	for _, p := range sectionPatterns {
		if p.re.MatchString(start) {
			return p.label
		}
	}
	return ""
}
