package ai

import (
	"regexp"
	"strings"
)

var (
	reEmphasis   = regexp.MustCompile("\\*{1,2}|_{1,2}|~{1,2}|`{1,3}")
	reHeading    = regexp.MustCompile(`#{1,6}\s`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reEdgeQuotes = regexp.MustCompile("^[\"'`“”‘’]+|[\"'`“”‘’]+$")
	reLabel      = regexp.MustCompile(`(?i)^(Title:|Subject:|Topic:|Summary:|الملخص:)\s*`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// CleanGeneratedText strips the markdown decoration and label prefixes
// models sneak into short generations despite being told not to.
func CleanGeneratedText(text string) string {
	s := strings.TrimSpace(text)
	s = reEmphasis.ReplaceAllString(s, "")
	s = reHeading.ReplaceAllString(s, "")
	s = reLink.ReplaceAllString(s, "$1")
	s = reEdgeQuotes.ReplaceAllString(s, "")
	s = reLabel.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
