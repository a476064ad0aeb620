package density

import (
	"fmt"
	"strings"
)

// Policy controls how recoverable data problems (missing feature values,
// rows unknown to a model) are handled.
type Policy string

const (
	// Fail aborts the whole operation on the first problem.
	Fail Policy = "fail"
	// Ignore skips the offending row and counts it; the count is reported
	// once as an advisory when the operation completes.
	Ignore Policy = "ignore"
)

// ParsePolicy parses a policy name case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case Fail, Ignore:
		return p, nil
	case "":
		return Fail, nil
	default:
		return "", fmt.Errorf("density: unknown policy %q (want %q or %q)", s, Fail, Ignore)
	}
}

func (p Policy) String() string { return string(p) }

// plural selects between the singular and plural form for count.
func plural(count int, one, many string) string {
	if count == 1 {
		return one
	}
	return many
}
