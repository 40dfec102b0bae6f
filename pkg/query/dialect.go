package query

import "fmt"

// Dialect selects the SQL flavour the builder emits. The two supported
// backends share semantics except for a handful of constructs handled
// here.
type Dialect int

const (
	// SQLite is used for embedded and test deployments.
	SQLite Dialect = iota
	// PostgreSQL is the production backend.
	PostgreSQL
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case PostgreSQL:
		return "postgresql"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// StringAgg returns the dialect's comma-joining aggregate over col.
func (d Dialect) StringAgg(col string) string {
	if d == PostgreSQL {
		return fmt.Sprintf("STRING_AGG(%s, ',')", col)
	}
	return fmt.Sprintf("GROUP_CONCAT(%s)", col)
}

// Rebind converts ?-style placeholders into the $n form PostgreSQL
// expects. SQLite keeps them verbatim. Providers use it for statements
// written outside the builder.
func (d Dialect) Rebind(sql string) string {
	return d.rewritePlaceholders(sql)
}

// rewritePlaceholders converts ?-style placeholders into the $n form
// PostgreSQL expects. SQLite keeps them verbatim.
func (d Dialect) rewritePlaceholders(sql string) string {
	if d != PostgreSQL {
		return sql
	}
	out := make([]byte, 0, len(sql)+8)
	n := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, sql[i])
	}
	return string(out)
}
