package criteria

import (
	"regexp"
	"strings"
)

var (
	sectionRegex    = regexp.MustCompile(`(?is)success criteria(.*)`)
	bulletRegex     = regexp.MustCompile(`(?m)^\s*[-•]\s*(.+)$`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Extract parses the "Success Criteria" section of a research brief into a
// Set of unsatisfied criteria. The heading is matched case-insensitively and
// everything after it is scanned for bulleted lines (leading "-" or "•").
// Runs of whitespace inside a bullet collapse to a single space and lines
// that collapse to nothing are dropped. Duplicate bullets collapse to a
// single key at the first-seen position.
//
// A brief without the section yields an empty Set, not an error: briefs may
// legitimately omit explicit criteria. Extract is pure, calling it twice on
// the same text yields an identical Set.
func Extract(brief string) *Set {
	set := NewSet()
	if brief == "" {
		return set
	}

	section := sectionRegex.FindStringSubmatch(brief)
	if section == nil {
		return set
	}

	for _, bullet := range bulletRegex.FindAllStringSubmatch(section[1], -1) {
		text := strings.TrimSpace(whitespaceRegex.ReplaceAllString(bullet[1], " "))
		if text == "" {
			continue
		}
		set.Add(text)
	}

	return set
}
