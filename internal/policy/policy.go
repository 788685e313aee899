// Package policy derives the column-filtered SQL used to build the virtual
// dataset that stands in front of a promoted physical dataset.
package policy

import (
	"fmt"
	"strings"
)

// SQLPath builds the fully qualified table reference from the promoted
// dataset's path segments (source name first).
//
// The returned string carries its own trailing quote but not the opening one;
// callers embed it as `FROM "<path>`. Saved view definitions in the catalog
// depend on this exact form.
func SQLPath(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	return strings.Join(segments, `"."`) + `"`
}

// AllowedColumns returns the columns of all that are not named in protected,
// preserving the order of all.
func AllowedColumns(all, protected []string) []string {
	blocked := make(map[string]struct{}, len(protected))
	for _, col := range protected {
		blocked[col] = struct{}{}
	}
	allowed := make([]string, 0, len(all))
	for _, col := range all {
		if _, ok := blocked[col]; ok {
			continue
		}
		allowed = append(allowed, col)
	}
	return allowed
}

// BuildQuery derives the view SQL exposing every column of the table except
// the protected ones. It returns the empty string when no column survives the
// policy: the dataset has nothing to expose.
func BuildQuery(protected []string, sqlPath string, all []string) string {
	allowed := AllowedColumns(all, protected)
	if len(allowed) == 0 {
		return ""
	}
	return fmt.Sprintf(`SELECT %s FROM "%s`, strings.Join(allowed, ", "), sqlPath)
}
