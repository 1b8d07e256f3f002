package conversation

import (
	"regexp"
	"strings"
)

var (
	codeBlock    = regexp.MustCompile("(?s)```.*?```")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	url          = regexp.MustCompile(`https?://\S+`)
	heading      = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	bullet       = regexp.MustCompile(`(?m)^\s*(?:[*•-]|\d+\.)\s+(.+)$`)
	emphasis     = regexp.MustCompile(`\*\*|__|\*`)
	whitespace   = regexp.MustCompile(`\s+`)
	sentenceGlue = regexp.MustCompile(`([^.!?:;,\s])\n`)
)

// Speakable rewrites a model reply into plain text a synthesizer can read:
// code blocks are announced instead of read, markdown links keep their text,
// URLs become "a link", headings and list items become sentences and
// emphasis markers are removed.
func Speakable(text string) string {
	s := codeBlock.ReplaceAllString(text, " I have left out a code block. ")
	s = inlineCode.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = url.ReplaceAllString(s, "a link")
	s = heading.ReplaceAllString(s, "$1.")
	s = bullet.ReplaceAllString(s, "$1.")
	s = emphasis.ReplaceAllString(s, "")
	s = sentenceGlue.ReplaceAllString(s, "$1.\n")
	s = strings.ReplaceAll(s, "..", ".")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
