// Package query builds dialect-aware SQL for the entity readers.
//
// The Builder supports joins, filter trees with AND/OR/NOT, order terms
// with explicit null placement, DISTINCT (plus DISTINCT ON on
// PostgreSQL) and LIMIT/OFFSET pagination. SQLite and PostgreSQL share
// semantics except for string aggregation (GROUP_CONCAT vs STRING_AGG),
// RIGHT joins and placeholder style, all of which are normalised here.
//
// A Reader pairs an items statement with a count statement derived from
// the same base so that iteration and len always agree, and guarantees
// at most one SQL statement per read operation.
package query
