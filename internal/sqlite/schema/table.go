package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Column is one column definition extracted from a CREATE TABLE
// statement, per spec.md §4.4.
type Column struct {
	Name          string
	TypeName      string
	TypeParams    []int
	Affinity      Affinity
	NotNull       bool
	PrimaryKey    bool
	Autoincrement bool
	Unique        bool
	Collation     string

	// Default, Check, References, and Generated hold the constraint's
	// raw trailing SQL text, unparsed — this repository extracts column
	// shape and affinity, not full expression semantics.
	Default    string
	Check      string
	References string
	Generated  string
}

// Table is a parsed ordinary-table master-schema entry.
type Table struct {
	Name             string
	RootPage         uint32
	SQL              string
	Columns          []*Column
	WithoutRowID     bool
	TableConstraints []string // raw text of CONSTRAINT/PRIMARY/UNIQUE/CHECK/FOREIGN segments
}

var createTableRe = regexp.MustCompile(
	`(?is)^\s*CREATE\s+(?:TEMP\s+|TEMPORARY\s+)?TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?([^\s(]+)\s*\(`,
)

// ParseCreateTable extracts column definitions, affinities, and
// constraints from a CREATE TABLE statement's SQL text, per spec.md
// §4.4's column/constraint segment rules.
func ParseCreateTable(sqlText string, rootPage uint32) (*Table, error) {
	stripped := stripComments(sqlText)

	m := createTableRe.FindStringSubmatchIndex(stripped)
	if m == nil {
		return nil, fmt.Errorf("schema: not a CREATE TABLE statement")
	}
	name := unquoteIdent(stripped[m[2]:m[3]])
	openParen := m[1] - 1 // index of the "(" consumed by the trailing \( in the match

	closeParen, err := matchingParen(stripped, openParen)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	body := stripped[openParen+1 : closeParen]
	trailer := stripped[closeParen+1:]

	t := &Table{
		Name:         name,
		RootPage:     rootPage,
		SQL:          sqlText,
		WithoutRowID: withoutRowIDRe.MatchString(trailer),
	}

	for _, seg := range splitTopLevel(body) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if isTableConstraintSegment(seg) {
			t.TableConstraints = append(t.TableConstraints, seg)
			continue
		}
		col, err := parseColumnSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("schema: column %q: %w", seg, err)
		}
		t.Columns = append(t.Columns, col)
	}
	return t, nil
}

var withoutRowIDRe = regexp.MustCompile(`(?is)^\s*WITHOUT\s+ROWID\b`)

var tableConstraintLeaderRe = regexp.MustCompile(`(?is)^\s*(CONSTRAINT|PRIMARY|UNIQUE|CHECK|FOREIGN)\b`)

func isTableConstraintSegment(seg string) bool {
	return tableConstraintLeaderRe.MatchString(seg)
}

var (
	notNullRe       = regexp.MustCompile(`(?is)\bNOT\s+NULL\b`)
	primaryKeyRe    = regexp.MustCompile(`(?is)\bPRIMARY\s+KEY\b`)
	autoincrementRe = regexp.MustCompile(`(?is)\bAUTOINCREMENT\b`)
	uniqueRe        = regexp.MustCompile(`(?is)\bUNIQUE\b`)
	collateRe       = regexp.MustCompile(`(?is)\bCOLLATE\s+(\S+)`)
	defaultRe       = regexp.MustCompile(`(?is)\bDEFAULT\s+(.+?)(?:\bNOT\s+NULL\b|\bPRIMARY\s+KEY\b|\bUNIQUE\b|\bCOLLATE\b|\bCHECK\b|\bREFERENCES\b|\bGENERATED\b|$)`)
	checkRe         = regexp.MustCompile(`(?is)\bCHECK\s*\((.*)\)\s*$|\bCHECK\s*\((.*?)\)`)
	referencesRe    = regexp.MustCompile(`(?is)\bREFERENCES\s+(.+?)(?:\bNOT\s+NULL\b|\bUNIQUE\b|\bCOLLATE\b|\bCHECK\b|\bGENERATED\b|$)`)
	generatedRe     = regexp.MustCompile(`(?is)\bGENERATED\s+ALWAYS\s+AS\s*\((.*)\)|\bAS\s*\((.*)\)`)
)

// parseColumnSegment splits a single column-definition segment into its
// name, optional type, and constraint clauses, per spec.md §4.4: "first
// identifier is the name; optional type name ...; remainder are column
// constraints."
func parseColumnSegment(seg string) (*Column, error) {
	name, rest, err := splitLeadingIdent(seg)
	if err != nil {
		return nil, err
	}
	rest = strings.TrimSpace(rest)

	typeCandidate, constraintText := splitLeadingTypeName(rest)

	col := &Column{Name: name}
	if pt, ok := parseTypeName(typeCandidate); ok {
		col.TypeName = pt.Name
		col.TypeParams = pt.Params
	}
	col.Affinity = DetermineAffinity(col.TypeName)

	col.NotNull = notNullRe.MatchString(constraintText)
	col.Unique = uniqueRe.MatchString(constraintText)
	if primaryKeyRe.MatchString(constraintText) {
		col.PrimaryKey = true
		col.Autoincrement = autoincrementRe.MatchString(constraintText)
	}
	if m := collateRe.FindStringSubmatch(constraintText); m != nil {
		col.Collation = unquoteIdent(strings.TrimSuffix(m[1], ","))
	}
	if m := defaultRe.FindStringSubmatch(constraintText); m != nil {
		col.Default = strings.TrimSpace(m[1])
	}
	if m := checkRe.FindStringSubmatch(constraintText); m != nil {
		col.Check = strings.TrimSpace(firstNonEmpty(m[1:]))
	}
	if m := referencesRe.FindStringSubmatch(constraintText); m != nil {
		col.References = strings.TrimSpace(m[1])
	}
	if m := generatedRe.FindStringSubmatch(constraintText); m != nil {
		col.Generated = strings.TrimSpace(firstNonEmpty(m[1:]))
	}
	return col, nil
}

func firstNonEmpty(ss []string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

var constraintKeywordRe = regexp.MustCompile(
	`(?is)^\s*(NOT\s+NULL|PRIMARY\s+KEY|UNIQUE|COLLATE|DEFAULT|CHECK|REFERENCES|GENERATED|AS)\b`,
)

// splitLeadingTypeName separates a run of type-name tokens (identifiers
// and an optional parenthesized parameter list) from the constraint
// clauses that follow, by scanning word-by-word until a recognized
// constraint keyword or end of input.
func splitLeadingTypeName(rest string) (typeName, constraints string) {
	if rest == "" {
		return "", ""
	}
	i := 0
	for i < len(rest) {
		trimmed := strings.TrimLeft(rest[i:], " \t\r\n")
		skipped := len(rest[i:]) - len(trimmed)
		i += skipped
		if i >= len(rest) {
			break
		}
		if constraintKeywordRe.MatchString(rest[i:]) {
			break
		}
		if rest[i] == '(' {
			end, err := matchingParen(rest, i)
			if err != nil {
				break
			}
			i = end + 1
			continue
		}
		// Consume one identifier/word token.
		j := i
		for j < len(rest) && !isSpace(rest[j]) && rest[j] != '(' {
			j++
		}
		if j == i {
			break
		}
		i = j
	}
	return strings.TrimSpace(rest[:i]), strings.TrimSpace(rest[i:])
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' || b == '\n' }

// splitLeadingIdent extracts the first identifier (bare or quoted) from
// s and returns it along with the remaining text.
func splitLeadingIdent(s string) (ident, rest string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", fmt.Errorf("empty column segment")
	}
	if q := quoteChar(s[0]); q != 0 {
		end := findQuoteEnd(s, 0, q)
		if end < 0 {
			return "", "", fmt.Errorf("unterminated quoted identifier")
		}
		return unquoteIdent(s[:end+1]), s[end+1:], nil
	}
	i := 0
	for i < len(s) && !isSpace(s[i]) && s[i] != '(' {
		i++
	}
	return s[:i], s[i:], nil
}

func quoteChar(b byte) byte {
	switch b {
	case '"', '\'', '`', '[':
		return b
	}
	return 0
}

func findQuoteEnd(s string, start int, open byte) int {
	closeCh := open
	if open == '[' {
		closeCh = ']'
	}
	for i := start + 1; i < len(s); i++ {
		if s[i] == closeCh {
			if closeCh != ']' && i+1 < len(s) && s[i+1] == closeCh {
				i++ // escaped doubled quote
				continue
			}
			return i
		}
	}
	return -1
}

func unquoteIdent(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	switch {
	case s[0] == '"' && s[len(s)-1] == '"':
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	case s[0] == '`' && s[len(s)-1] == '`':
		return s[1 : len(s)-1]
	case s[0] == '[' && s[len(s)-1] == ']':
		return s[1 : len(s)-1]
	case s[0] == '\'' && s[len(s)-1] == '\'':
		return strings.ReplaceAll(s[1:len(s)-1], `''`, `'`)
	}
	return s
}

// matchingParen finds the index of the ")" matching the "(" at
// s[openIdx], respecting quoted strings and nested parens.
func matchingParen(s string, openIdx int) (int, error) {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		c := s[i]
		if q := quoteChar(c); q != 0 {
			end := findQuoteEnd(s, i, q)
			if end < 0 {
				return 0, fmt.Errorf("unterminated quoted string")
			}
			i = end
			continue
		}
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced parentheses")
}

// splitTopLevel splits s at commas that are not inside parentheses or
// quoted strings, per spec.md §4.4's "split segments at top-level commas".
func splitTopLevel(s string) []string {
	var segments []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if q := quoteChar(c); q != 0 {
			end := findQuoteEnd(s, i, q)
			if end < 0 {
				break
			}
			i = end
			continue
		}
		switch c {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				segments = append(segments, s[start:i])
				start = i + 1
			}
		}
	}
	segments = append(segments, s[start:])
	return segments
}

// stripComments removes "/* ... */" and "-- ..." comments while
// preserving the contents of quoted strings and identifiers, per
// spec.md §4.4.
func stripComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	for i := 0; i < len(sql); {
		c := sql[i]
		if q := quoteChar(c); q != 0 {
			end := findQuoteEnd(sql, i, q)
			if end < 0 {
				b.WriteString(sql[i:])
				break
			}
			b.WriteString(sql[i : end+1])
			i = end + 1
			continue
		}
		if c == '/' && i+1 < len(sql) && sql[i+1] == '*' {
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				break
			}
			i += 2 + end + 2
			continue
		}
		if c == '-' && i+1 < len(sql) && sql[i+1] == '-' {
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				break
			}
			i += end
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}
