package schema

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// typeNameNode is the participle grammar for a column's declared type:
// one or more identifier parts (e.g. "DOUBLE PRECISION") followed by an
// optional parenthesized parameter list (e.g. "(10,2)").
//
//nolint:govet // participle grammar tags are not standard struct tags
type typeNameNode struct {
	Parts  []string `@Ident+`
	Params []string `( "(" @Number ( "," @Number )? ")" )?`
}

var typeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Number", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var typeParser = participle.MustBuild[typeNameNode](
	participle.Lexer(typeLexer),
	participle.Elide("Whitespace"),
)

// parsedTypeName is the result of parsing a column's type-name fragment.
type parsedTypeName struct {
	Name   string
	Params []int
}

// parseTypeName parses the leading type-name fragment of a column
// definition (everything between the column name and its first
// constraint keyword). Returns ok=false when raw is empty or doesn't
// look like a type name, in which case the column has no declared type
// (affinity NONE, per spec.md §4.7's NONE/BLOB mapping).
func parseTypeName(raw string) (parsedTypeName, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return parsedTypeName{}, false
	}
	node, err := typeParser.ParseString("", raw)
	if err != nil {
		return parsedTypeName{}, false
	}
	out := parsedTypeName{Name: strings.Join(node.Parts, " ")}
	for _, p := range node.Params {
		n, convErr := strconv.Atoi(p)
		if convErr == nil {
			out.Params = append(out.Params, n)
		}
	}
	return out, true
}
