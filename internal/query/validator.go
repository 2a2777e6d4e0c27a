package query

import (
	"fmt"
	"regexp"

	"reportengine-backend/internal/security"
)

const (
	warnLimitThreshold   = 10000
	warnGroupByThreshold = 5
)

var (
	fieldPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)
	onPattern    = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?\s*=\s*[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)
)

// validateQuery checks a report query against the set of known user tables.
// Every violation is accumulated; warnings never block execution.
func validateQuery(q ReportQuery, tables map[string]struct{}) (*ValidationError, []string) {
	var details []ErrorDetail
	var warnings []string

	if q.Table == "" {
		details = append(details, ErrorDetail{Field: "table", Problem: "missing", Hint: "Provide a table name"})
	} else if _, ok := tables[q.Table]; !ok || security.IsSystemTable(q.Table) {
		details = append(details, ErrorDetail{Field: "table", Problem: fmt.Sprintf("unknown table %q", q.Table), Hint: "Use a table reported by the schema"})
	}
	if q.Alias != "" && !security.IsSafeIdentifier(q.Alias) {
		details = append(details, ErrorDetail{Field: "alias", Problem: "invalid", Hint: "Use alphanumeric identifiers"})
	}

	if len(q.Fields) == 0 {
		details = append(details, ErrorDetail{Field: "fields", Problem: "missing", Hint: "Select at least one field"})
	}
	for i, f := range q.Fields {
		if f.Name != "*" && !fieldPattern.MatchString(f.Name) {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("fields[%d].name", i), Problem: fmt.Sprintf("invalid field %q", f.Name), Hint: "Use ident, ident.ident, or *"})
		}
		if f.Alias != "" && !security.IsSafeIdentifier(f.Alias) {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("fields[%d].alias", i), Problem: "invalid", Hint: "Use alphanumeric identifiers"})
		}
		if f.Aggregation != AggNone {
			if _, ok := validAggregations[f.Aggregation]; !ok {
				details = append(details, ErrorDetail{Field: fmt.Sprintf("fields[%d].aggregation", i), Problem: fmt.Sprintf("unsupported aggregation %q", f.Aggregation), Hint: "Use sum, avg, count, min, max, or concat"})
			}
		}
	}

	for i, j := range q.Joins {
		if _, ok := validJoinKinds[j.Kind]; !ok {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("joins[%d].kind", i), Problem: fmt.Sprintf("unsupported join kind %q", j.Kind), Hint: "Use inner, left, right, or full"})
		}
		if _, ok := tables[j.Table]; !ok || security.IsSystemTable(j.Table) {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("joins[%d].table", i), Problem: fmt.Sprintf("unknown table %q", j.Table), Hint: "Use a table reported by the schema"})
		}
		if j.Alias != "" && !security.IsSafeIdentifier(j.Alias) {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("joins[%d].alias", i), Problem: "invalid", Hint: "Use alphanumeric identifiers"})
		}
		if j.On == "" {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("joins[%d].on", i), Problem: "missing", Hint: "Provide an ON predicate"})
		} else if !onPattern.MatchString(j.On) {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("joins[%d].on", i), Problem: "invalid predicate", Hint: "Only column = column predicates are allowed"})
		}
	}

	for i, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("filters[%d].field", i), Problem: fmt.Sprintf("invalid field %q", f.Field), Hint: "Use ident or ident.ident"})
		}
		if _, ok := validOperators[f.Operator]; !ok {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("filters[%d].operator", i), Problem: fmt.Sprintf("unsupported operator %q", f.Operator), Hint: "Use one of the documented filter operators"})
			continue
		}
		switch f.Operator {
		case OpIn, OpNotIn:
			if len(f.Values) == 0 {
				details = append(details, ErrorDetail{Field: fmt.Sprintf("filters[%d].values", i), Problem: "missing", Hint: "Provide a non-empty value list"})
			}
		case OpBetween:
			if len(f.Values) != 2 {
				details = append(details, ErrorDetail{Field: fmt.Sprintf("filters[%d].values", i), Problem: "wrong arity", Hint: "between needs exactly two values"})
			}
		case OpIsNull, OpIsNotNull:
			// no value
		default:
			if f.Value == nil {
				details = append(details, ErrorDetail{Field: fmt.Sprintf("filters[%d].value", i), Problem: "missing", Hint: "Provide a value to compare against"})
			}
		}
	}

	for i, g := range q.GroupBy {
		if !fieldPattern.MatchString(g) {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("group_by[%d]", i), Problem: fmt.Sprintf("invalid field %q", g), Hint: "Use ident or ident.ident"})
		}
	}
	for i, o := range q.OrderBy {
		if !fieldPattern.MatchString(o.Field) {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("order_by[%d].field", i), Problem: fmt.Sprintf("invalid field %q", o.Field), Hint: "Use ident or ident.ident"})
		}
		if o.Direction != "" && o.Direction != Asc && o.Direction != Desc {
			details = append(details, ErrorDetail{Field: fmt.Sprintf("order_by[%d].direction", i), Problem: "invalid", Hint: "Use asc or desc"})
		}
	}

	if q.Limit != nil && *q.Limit > warnLimitThreshold {
		warnings = append(warnings, fmt.Sprintf("limit %d exceeds %d rows; consider pagination", *q.Limit, warnLimitThreshold))
	}
	if len(q.GroupBy) > warnGroupByThreshold {
		warnings = append(warnings, fmt.Sprintf("grouping by %d fields may be slow", len(q.GroupBy)))
	}

	if len(details) > 0 {
		return &ValidationError{Message: "report query failed validation", Details: details}, warnings
	}
	return nil, warnings
}
