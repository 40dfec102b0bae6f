package query

import (
	"fmt"
	"strings"
)

// JoinKind enumerates supported join types. RIGHT joins exist on
// PostgreSQL only.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
	OuterJoin
	CrossJoin
	RightJoin
)

func (k JoinKind) keyword() string {
	switch k {
	case InnerJoin:
		return "INNER JOIN"
	case LeftJoin:
		return "LEFT JOIN"
	case OuterJoin:
		return "FULL OUTER JOIN"
	case CrossJoin:
		return "CROSS JOIN"
	case RightJoin:
		return "RIGHT JOIN"
	default:
		return "JOIN"
	}
}

// NullsPlacement controls where NULL sort keys land in an order term.
type NullsPlacement int

const (
	NullsDefault NullsPlacement = iota
	NullsFirst
	NullsLast
)

type orderTerm struct {
	expr      string
	ascending bool
	nulls     NullsPlacement
}

type join struct {
	kind   JoinKind
	source string
	on     string
	args   []any
}

// Builder assembles one SELECT statement for the configured dialect.
// The zero value is not usable; construct with NewBuilder.
type Builder struct {
	dialect    Dialect
	selects    []string
	from       string
	joins      []join
	filter     Filter
	orders     []orderTerm
	groupBy    []string
	distinct   bool
	distinctOn string
	limit      *int
	offset     *int
}

// NewBuilder returns an empty builder for the dialect.
func NewBuilder(d Dialect) *Builder {
	return &Builder{dialect: d}
}

// Clone returns a deep copy sharing no mutable state, so a reader can
// derive its items and count statements from one base.
func (b *Builder) Clone() *Builder {
	c := *b
	c.selects = append([]string(nil), b.selects...)
	c.joins = append([]join(nil), b.joins...)
	c.orders = append([]orderTerm(nil), b.orders...)
	c.groupBy = append([]string(nil), b.groupBy...)
	return &c
}

// Dialect returns the builder's dialect.
func (b *Builder) Dialect() Dialect { return b.dialect }

// AddSelectExpression appends one output column or expression.
func (b *Builder) AddSelectExpression(expr string) *Builder {
	b.selects = append(b.selects, expr)
	return b
}

// ClearSelectExpressions drops the output list, letting a count builder
// replace it with a single aggregate.
func (b *Builder) ClearSelectExpressions() *Builder {
	b.selects = nil
	return b
}

// AddDataSource sets the FROM source: a table name or a parenthesised
// subquery, optionally aliased.
func (b *Builder) AddDataSource(source string, alias ...string) *Builder {
	if len(alias) > 0 {
		source = source + " " + alias[0]
	}
	b.from = source
	return b
}

// AddJoin appends a join of the given kind. The on condition is ignored
// for cross joins. Placeholder arguments inside a subquery source are
// passed after the condition and bind before any filter arguments.
func (b *Builder) AddJoin(kind JoinKind, source, on string, args ...any) *Builder {
	b.joins = append(b.joins, join{kind: kind, source: source, on: on, args: args})
	return b
}

// SetMainFilter installs the WHERE tree, replacing any previous one.
func (b *Builder) SetMainFilter(f Filter) *Builder {
	b.filter = f
	return b
}

// MainFilter returns the current WHERE tree, possibly nil.
func (b *Builder) MainFilter() Filter { return b.filter }

// AndFilter narrows the WHERE tree conjunctively.
func (b *Builder) AndFilter(f Filter) *Builder {
	if b.filter == nil {
		b.filter = f
	} else {
		b.filter = And(b.filter, f)
	}
	return b
}

// AddOrderTerm appends one ORDER BY expression.
func (b *Builder) AddOrderTerm(expr string, ascending bool, nulls NullsPlacement) *Builder {
	b.orders = append(b.orders, orderTerm{expr: expr, ascending: ascending, nulls: nulls})
	return b
}

// ClearOrderTerms drops the ORDER BY list.
func (b *Builder) ClearOrderTerms() *Builder {
	b.orders = nil
	return b
}

// AddGroupTerm appends one GROUP BY expression.
func (b *Builder) AddGroupTerm(expr string) *Builder {
	b.groupBy = append(b.groupBy, expr)
	return b
}

// Distinct emits plain SELECT DISTINCT.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// DistinctOn emits DISTINCT ON (expr); PostgreSQL only.
func (b *Builder) DistinctOn(expr string) *Builder {
	b.distinct = true
	b.distinctOn = expr
	return b
}

// AddLimit installs LIMIT/OFFSET. A negative limit means no limit.
func (b *Builder) AddLimit(limit, offset int) *Builder {
	b.limit = &limit
	b.offset = &offset
	return b
}

// ClearLimit drops LIMIT/OFFSET.
func (b *Builder) ClearLimit() *Builder {
	b.limit = nil
	b.offset = nil
	return b
}

// Build renders the statement and its bound arguments.
func (b *Builder) Build() (string, []any, error) {
	if b.from == "" {
		return "", nil, fmt.Errorf("query builder has no data source")
	}
	if b.distinctOn != "" && b.dialect != PostgreSQL {
		return "", nil, fmt.Errorf("DISTINCT ON is not supported on %s", b.dialect)
	}
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	if b.distinct {
		if b.distinctOn != "" {
			fmt.Fprintf(&sb, "DISTINCT ON (%s) ", b.distinctOn)
		} else {
			sb.WriteString("DISTINCT ")
		}
	}
	if len(b.selects) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(b.selects, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.from)

	for _, j := range b.joins {
		if j.kind == RightJoin && b.dialect != PostgreSQL {
			return "", nil, fmt.Errorf("RIGHT JOIN is not supported on %s", b.dialect)
		}
		sb.WriteString(" ")
		sb.WriteString(j.kind.keyword())
		sb.WriteString(" ")
		sb.WriteString(j.source)
		if j.kind != CrossJoin && j.on != "" {
			sb.WriteString(" ON ")
			sb.WriteString(j.on)
		}
		args = append(args, j.args...)
	}

	if b.filter != nil {
		clause, filterArgs := b.filter.Clause(b.dialect)
		sb.WriteString(" WHERE ")
		sb.WriteString(clause)
		args = append(args, filterArgs...)
	}

	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}

	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		var terms []string
		for _, o := range b.orders {
			term := o.expr
			if o.ascending {
				term += " ASC"
			} else {
				term += " DESC"
			}
			switch o.nulls {
			case NullsFirst:
				term += " NULLS FIRST"
			case NullsLast:
				term += " NULLS LAST"
			}
			terms = append(terms, term)
		}
		sb.WriteString(strings.Join(terms, ", "))
	}

	if b.limit != nil && *b.limit >= 0 {
		fmt.Fprintf(&sb, " LIMIT %d", *b.limit)
		if b.offset != nil && *b.offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", *b.offset)
		}
	}

	return b.dialect.rewritePlaceholders(sb.String()), args, nil
}
