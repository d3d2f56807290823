// Package schema parses sqlite_master rows and CREATE TABLE SQL text into
// typed column definitions, affinities, and constraints.
package schema

import "strings"

// Affinity is a column's declared type affinity, per
// https://sqlite.org/datatype3.html.
type Affinity uint8

const (
	AffinityNone Affinity = iota
	AffinityText
	AffinityNumeric
	AffinityInteger
	AffinityReal
)

func (a Affinity) String() string {
	switch a {
	case AffinityText:
		return "TEXT"
	case AffinityNumeric:
		return "NUMERIC"
	case AffinityInteger:
		return "INTEGER"
	case AffinityReal:
		return "REAL"
	default:
		return "NONE"
	}
}

// DetermineAffinity classifies a declared column type name into an
// affinity. The rule order is TEXT, then NONE/BLOB, then REAL, then
// NUMERIC, then INTEGER, defaulting to NUMERIC — this is the order stated
// by this repository's governing specification, not SQLite's own
// documented order (which checks "INT" first); a hypothetical type name
// containing both substrings resolves per this order.
func DetermineAffinity(typeName string) Affinity {
	upper := strings.ToUpper(typeName)

	switch {
	case containsAny(upper, "CHAR", "CLOB", "TEXT"):
		return AffinityText
	case strings.Contains(upper, "BLOB"), upper == "":
		return AffinityNone
	case containsAny(upper, "REAL", "FLOA", "DOUB"):
		return AffinityReal
	case containsAny(upper, "NUM", "DEC"):
		return AffinityNumeric
	case strings.Contains(upper, "INT"):
		return AffinityInteger
	default:
		return AffinityNumeric
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
