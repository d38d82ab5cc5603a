package fhir

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
)

// SearchParamType is the FHIR search parameter type.
type SearchParamType int

const (
	SearchParamToken     SearchParamType = iota // system+code equality
	SearchParamDate                             // prefix + precision-range semantics
	SearchParamString                           // case-insensitive partial/exact match
	SearchParamReference                        // "ResourceType/uuid" or "uuid"
)

// SearchParamConfig maps a search parameter to its database representation.
type SearchParamConfig struct {
	Type      SearchParamType
	Column    string   // primary column (code column for tokens)
	Columns   []string // string params may fan out over several columns
	SysColumn string   // system column for token params
}

func (c SearchParamConfig) stringColumns() []string {
	if len(c.Columns) > 0 {
		return c.Columns
	}
	return []string{c.Column}
}

// Params is a parsed filter set. Each key holds one or more AND groups;
// within a group, comma-separated tokens disjoin. Repeating a parameter in
// the query string conjoins the groups.
type Params map[string][]string

// ExtractSearchParams pulls the filter set from the query string, keeping
// every value of repeated parameters. Control parameters (_count, _offset,
// _sort, ...) are excluded; _id and _lastUpdated are real filter axes and
// pass through.
func ExtractSearchParams(c echo.Context) Params {
	params := Params{}
	for k, values := range c.QueryParams() {
		if len(values) == 0 {
			continue
		}
		if strings.HasPrefix(k, "_") && k != "_id" && k != "_lastUpdated" {
			continue
		}
		params[k] = append(params[k], values...)
	}
	return params
}

// SearchQuery compiles a filter set into a single conjunctive SQL predicate.
// Absent parameters contribute no clause at all: they are omitted from the
// conjunction rather than stubbed with a trivially-true condition, so an
// all-absent filter set compiles to a match-all query. Clause order never
// affects the result set.
type SearchQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewSearchQuery creates a SearchQuery for the given table and column list.
func NewSearchQuery(table, cols string) *SearchQuery {
	return &SearchQuery{table: table, cols: cols, idx: 1}
}

// Add appends a raw WHERE clause fragment (without leading "AND").
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// ApplyParams translates every recognized parameter of the filter set into
// a sub-predicate and conjoins them. Unrecognized parameters are ignored.
// Returns a Validation error for values that cannot be interpreted.
func (q *SearchQuery) ApplyParams(params Params, configs map[string]SearchParamConfig) error {
	for rawName, andGroups := range params {
		name, modifier := ParseParamModifier(rawName)
		config, ok := configs[name]
		if !ok {
			continue
		}
		for _, group := range andGroups {
			if err := q.applyOrGroup(config, group, modifier); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyOrGroup compiles one AND group: its comma-separated tokens disjoin
// into a single parenthesized clause.
func (q *SearchQuery) applyOrGroup(config SearchParamConfig, group string, modifier SearchModifier) error {
	tokens := strings.Split(group, ",")
	clauses := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		clause, args, nextIdx, err := q.tokenClause(config, token, modifier)
		if err != nil {
			return err
		}
		clauses = append(clauses, clause)
		q.args = append(q.args, args...)
		q.idx = nextIdx
	}
	switch len(clauses) {
	case 0:
		return nil
	case 1:
		q.where += " AND " + clauses[0]
	default:
		q.where += " AND (" + strings.Join(clauses, " OR ") + ")"
	}
	return nil
}

func (q *SearchQuery) tokenClause(config SearchParamConfig, token string, modifier SearchModifier) (string, []interface{}, int, error) {
	switch config.Type {
	case SearchParamDate:
		return DateClause(config.Column, token, q.idx)
	case SearchParamToken:
		clause, args, next := TokenClause(config.SysColumn, config.Column, token, q.idx)
		return clause, args, next, nil
	case SearchParamString:
		clause, args, next := StringClause(config.stringColumns(), token, modifier, q.idx)
		return clause, args, next, nil
	case SearchParamReference:
		clause, args, next := ReferenceClause(config.Column, token, q.idx)
		return clause, args, next, nil
	default:
		return "", nil, q.idx, fmt.Errorf("unknown search parameter type %d", config.Type)
	}
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *SearchQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// CountSQL returns the total-count query.
func (q *SearchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

// CountArgs returns the arguments for the count query.
func (q *SearchQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the page query with ORDER BY and LIMIT/OFFSET.
func (q *SearchQuery) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the arguments for the page query.
func (q *SearchQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}
