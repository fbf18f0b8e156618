// Package sanitize turns free-text project and run names into safe SQL
// identifiers. It is a defense-in-depth pre-filter: every identifier built
// from user input is additionally passed through the driver's quoting
// facility before reaching SQL text.
package sanitize

import (
	"regexp"
	"strings"
)

const (
	DatabaseFallback = "unnamed_project"
	RunTableFallback = "unnamed_eff"

	databasePrefix = "proj_"
	runTablePrefix = "eff_"
)

var (
	invalidChars = regexp.MustCompile(`[^a-z0-9_]`)
	repeatedSep  = regexp.MustCompile(`_+`)
)

// Name lowercases s, replaces every character outside [a-z0-9_] with an
// underscore, collapses runs of underscores and trims leading/trailing
// ones. The result is empty or matches ^[a-z0-9][a-z0-9_]*$.
// Idempotent: Name(Name(s)) == Name(s).
func Name(s string) string {
	out := strings.ToLower(s)
	out = invalidChars.ReplaceAllString(out, "_")
	out = repeatedSep.ReplaceAllString(out, "_")
	return strings.Trim(out, "_")
}

// DatabaseName derives a project database identifier from a logical
// project name. Results not starting with a letter get the proj_ prefix;
// an empty result yields DatabaseFallback.
func DatabaseName(name string) string {
	return withPrefix(Name(name), databasePrefix, DatabaseFallback)
}

// RunTableBase derives a run-table base identifier from an efficiency test
// filename. A trailing .eff extension is dropped before sanitizing.
func RunTableBase(filename string) string {
	name := strings.TrimSuffix(filename, ".eff")
	return withPrefix(Name(name), runTablePrefix, RunTableFallback)
}

func withPrefix(s, prefix, fallback string) string {
	if s == "" {
		return fallback
	}
	if s[0] < 'a' || s[0] > 'z' {
		return prefix + s
	}
	return s
}
