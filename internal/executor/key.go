package executor

import (
	"strconv"
	"strings"
)

// CommandKey derives the stable identity of a command line. Arguments are
// joined by single spaces; an argument that is empty or contains
// whitespace, quotes or backslashes is Go-quoted so distinct argument
// vectors never collide.
func CommandKey(argv []string) string {
	parts := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t\r\n\"'\\") {
			parts[i] = strconv.Quote(arg)
			continue
		}
		parts[i] = arg
	}
	return strings.Join(parts, " ")
}
