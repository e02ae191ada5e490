package planner

import (
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/leapstack-labs/fedplan/pkg/plan"
)

// maxTableParts bounds integration.database.schema.table.
const maxTableParts = 4

// predictorRef is a table identifier resolved to a predictor.
type predictorRef struct {
	namespace string
	// ident is name or name.version, carrying the alias of the reference
	ident *ast.Identifier
	info  catalog.Predictor
}

// name returns the predictor identifier without its alias.
func (p predictorRef) name() *ast.Identifier {
	return ast.NewIdentifier(p.ident.Parts...)
}

// alias returns the name under which the predictor output is addressed.
func (p predictorRef) alias() string {
	if p.ident.Alias != "" {
		return p.ident.Alias
	}
	return p.info.Name
}

// resolveTable splits a table identifier into its integration and the table
// path inside it. Unknown first segments fall back to the default namespace.
func (b *builder) resolveTable(id *ast.Identifier) (string, *ast.Identifier, error) {
	if len(id.Parts) > maxTableParts {
		return "", nil, errorf("too many parts (dots) in table identifier: %s", id.Path())
	}
	if len(id.Parts) > 1 && b.cat.HasIntegration(id.Parts[0]) {
		table := &ast.Identifier{Parts: append([]string(nil), id.Parts[1:]...), Alias: id.Alias}
		return b.cat.CanonicalName(id.Parts[0]), table, nil
	}
	if ns := b.cat.DefaultNamespace; ns != "" && b.cat.HasIntegration(ns) && len(id.Parts) < maxTableParts {
		return b.cat.CanonicalName(ns), ast.Clone(id), nil
	}
	return "", nil, errorf("integration not found for: %s", id.Path())
}

// cteRef returns the result of a WITH entry referenced by a bare table name.
func (b *builder) cteRef(n ast.Node) (plan.Result, bool) {
	id, ok := n.(*ast.Identifier)
	if !ok || len(id.Parts) != 1 {
		return plan.Result{}, false
	}
	r, ok := b.ctes[strings.ToLower(id.Parts[0])]
	return r, ok
}

// predictor resolves n to a predictor. A trailing numeric segment selects a version.
func (b *builder) predictor(n ast.Node) (predictorRef, bool) {
	id, ok := n.(*ast.Identifier)
	if !ok || len(id.Parts) == 0 {
		return predictorRef{}, false
	}
	if _, isCTE := b.cteRef(id); isCTE {
		return predictorRef{}, false
	}
	parts := id.Parts
	var version string
	if len(parts) > 1 && isDigits(parts[len(parts)-1]) {
		version = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}
	if len(parts) > 2 {
		return predictorRef{}, false
	}

	name := parts[len(parts)-1]
	namespace := b.cat.DefaultNamespace
	if len(parts) == 2 {
		namespace = parts[0]
	} else if namespace == "" {
		namespace = b.cat.PredictorNamespace
	}
	info, ok := b.cat.Predictor(namespace, name)
	if !ok {
		return predictorRef{}, false
	}

	identParts := []string{name}
	if version != "" {
		identParts = append(identParts, version)
	}
	return predictorRef{
		namespace: b.cat.CanonicalName(namespace),
		ident:     &ast.Identifier{Parts: identParts, Alias: id.Alias},
		info:      info,
	}, true
}

// prefixes returns the qualifiers that may precede a predictor column, longest first.
func (p predictorRef) prefixes() [][]string {
	if p.ident.Alias != "" {
		return [][]string{{p.ident.Alias}}
	}
	out := [][]string{append([]string{p.namespace}, p.ident.Parts...)}
	if len(p.ident.Parts) > 1 {
		out = append(out, []string{p.namespace, p.info.Name})
	}
	out = append(out, p.ident.Parts)
	if len(p.ident.Parts) > 1 {
		out = append(out, []string{p.info.Name})
	}
	return out
}

// column strips a predictor qualifier from a column reference.
func (p predictorRef) column(id *ast.Identifier) *ast.Identifier {
	parts := id.Parts
	for _, prefix := range p.prefixes() {
		if len(parts) > len(prefix) && hasPrefixFold(parts, prefix) {
			parts = parts[len(prefix):]
			break
		}
	}
	return &ast.Identifier{Parts: append([]string(nil), parts...), Alias: id.Alias}
}

func hasPrefixFold(parts, prefix []string) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i := range prefix {
		if !strings.EqualFold(parts[i], prefix[i]) {
			return false
		}
	}
	return true
}

func (b *builder) isPredictor(n ast.Node) bool {
	_, ok := b.predictor(n)
	return ok
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// tableName is the local name a sub-select step exposes for its FROM table.
func tableName(n ast.Node) string {
	if a := ast.AliasOf(n); a != "" {
		return a
	}
	if id, ok := n.(*ast.Identifier); ok {
		return id.Last()
	}
	return ""
}
