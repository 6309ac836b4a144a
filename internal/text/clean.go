package text

import (
	"regexp"
	"strings"
)

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// Applied in order; fences go before inline code and images before links.
var markdownRewrites = []rewrite{
	{regexp.MustCompile("```[\\w+-]*"), " "},
	{regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+\.)[ \t]+`), ""},
	{regexp.MustCompile(`\*\*(.+?)\*\*`), "$1"},
	{regexp.MustCompile(`__(.+?)__`), "$1"},
	{regexp.MustCompile(`~~(.+?)~~`), "$1"},
	{regexp.MustCompile(`\*(\S(?:[^*]*\S)?)\*`), "$1"},
	{regexp.MustCompile(`\b_(.+?)_\b`), "$1"},
	{regexp.MustCompile("`([^`]*)`"), "$1"},
}

var whitespace = regexp.MustCompile(`\s+`)

// Clean strips markdown markup a speech engine would read aloud and
// collapses whitespace to single spaces.
func Clean(s string) string {
	for _, rw := range markdownRewrites {
		s = rw.re.ReplaceAllString(s, rw.repl)
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
