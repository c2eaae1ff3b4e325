package approval

import (
	"regexp"
	"strings"
	"sync"
)

// globToRegex compiles a restriction glob: '*' matches any run of characters,
// every other character is literal, and the match is anchored at both ends
// and case-insensitive.
func globToRegex(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '.', '+', '?', '^', '$', '(', ')', '[', ']', '{', '}', '|', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

const maxCompiled = 1024

var (
	compiledMu sync.Mutex
	compiled   = make(map[string]*regexp.Regexp)
)

func compileGlob(pattern string) *regexp.Regexp {
	compiledMu.Lock()
	defer compiledMu.Unlock()
	if re, ok := compiled[pattern]; ok {
		return re
	}
	re, err := globToRegex(pattern)
	if err != nil {
		// Only invalid UTF-8 gets here; such a pattern matches nothing.
		re = nil
	}
	if len(compiled) >= maxCompiled {
		compiled = make(map[string]*regexp.Regexp)
	}
	compiled[pattern] = re
	return re
}

// MatchesPattern reports whether the whole command satisfies the glob.
// "sudo *" matches "sudo rm -rf /" but not "echo sudo ls".
func MatchesPattern(command, pattern string) bool {
	re := compileGlob(pattern)
	return re != nil && re.MatchString(command)
}

// firstMatch returns the first pattern, in list order, that matches command.
func firstMatch(command string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if MatchesPattern(command, p) {
			return p, true
		}
	}
	return "", false
}
