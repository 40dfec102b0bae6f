package query

import (
	"fmt"
	"strings"
)

// Filter is one node of a WHERE clause tree. Atoms carry a SQL fragment
// with ?-placeholders; And, Or and Not combine nodes with correct
// parenthesisation.
type Filter interface {
	Clause(d Dialect) (string, []any)
}

// StringFilter is the raw atom: an expression with bound arguments.
type StringFilter struct {
	Expr string
	Args []any
}

// Where builds a raw filter atom, e.g. Where("u.login = ?", login).
func Where(expr string, args ...any) *StringFilter {
	return &StringFilter{Expr: expr, Args: args}
}

func (f *StringFilter) Clause(d Dialect) (string, []any) {
	return f.Expr, f.Args
}

// SearchFilter matches when every whitespace-separated token of Term is
// a case-insensitive prefix of some position in Column.
type SearchFilter struct {
	Column string
	Term   string
}

// Search builds a substring-search atom over a column.
func Search(column, term string) *SearchFilter {
	return &SearchFilter{Column: column, Term: term}
}

func (f *SearchFilter) Clause(d Dialect) (string, []any) {
	tokens := strings.Fields(f.Term)
	if len(tokens) == 0 {
		return "1 = 1", nil
	}
	var parts []string
	var args []any
	for _, tok := range tokens {
		if d == PostgreSQL {
			parts = append(parts, fmt.Sprintf("%s ILIKE ?", f.Column))
		} else {
			parts = append(parts, fmt.Sprintf("LOWER(%s) LIKE ?", f.Column))
		}
		args = append(args, "%"+strings.ToLower(tok)+"%")
	}
	return strings.Join(parts, " AND "), args
}

type andFilter struct{ children []Filter }
type orFilter struct{ children []Filter }
type notFilter struct{ child Filter }

// And combines filters conjunctively.
func And(filters ...Filter) Filter {
	return &andFilter{children: filters}
}

// Or combines filters disjunctively.
func Or(filters ...Filter) Filter {
	return &orFilter{children: filters}
}

// Not negates a filter.
func Not(f Filter) Filter {
	return &notFilter{child: f}
}

func joinChildren(d Dialect, children []Filter, op string) (string, []any) {
	if len(children) == 0 {
		return "1 = 1", nil
	}
	var parts []string
	var args []any
	for _, c := range children {
		clause, a := c.Clause(d)
		parts = append(parts, "("+clause+")")
		args = append(args, a...)
	}
	return strings.Join(parts, " "+op+" "), args
}

func (f *andFilter) Clause(d Dialect) (string, []any) {
	return joinChildren(d, f.children, "AND")
}

func (f *orFilter) Clause(d Dialect) (string, []any) {
	return joinChildren(d, f.children, "OR")
}

func (f *notFilter) Clause(d Dialect) (string, []any) {
	clause, args := f.child.Clause(d)
	return "NOT (" + clause + ")", args
}
