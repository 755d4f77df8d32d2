package core

import (
	"regexp"
	"strings"
)

// MatchURL reports whether url satisfies pattern. Patterns without
// wildcards must match exactly; "*" matches within a path segment and "**"
// matches across segments.
func MatchURL(pattern, url string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == url
	}
	re, err := globToRegexp(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(url)
}

func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '*' {
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i++
				continue
			}
			b.WriteString("[^/]*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(c)))
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
