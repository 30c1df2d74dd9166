// Package extract pulls code out of free-form model replies.
package extract

import (
	"regexp"
	"strings"
)

// fencePattern matches the first complete triple-backtick block. Any language
// tag is dropped when it sits alone on the opening fence line; a python tag is
// also dropped when code follows it on the same line. Other leading words are
// kept so untagged inline blocks are not mistaken for a tag.
var fencePattern = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+.#-]+[ \\t]*\\r?\\n|(?i:python3?|py)[ \\t]+)?(.*?)```")

// Code returns the trimmed contents of the first fenced code block in text.
// Text without a complete block is returned trimmed.
func Code(text string) string {
	match := fencePattern.FindStringSubmatch(text)
	if match == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(match[1])
}

// HasFence reports whether text contains a complete fenced code block.
func HasFence(text string) bool {
	return fencePattern.MatchString(text)
}
