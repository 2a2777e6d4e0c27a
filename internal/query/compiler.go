package query

import (
	"fmt"
	"strings"
)

// Compile turns a validated report query into parameterized SQL. Identifiers
// are interpolated as text only after they pass the grammar checks below;
// filter values travel exclusively through the params slice. Compilation is
// deterministic: the same query always yields the same text and parameters.
func Compile(q ReportQuery) (string, []any, error) {
	var b strings.Builder
	params := []any{}

	fields, err := compileFields(q.Fields)
	if err != nil {
		return "", nil, err
	}
	b.WriteString("SELECT ")
	b.WriteString(fields)
	b.WriteString(" FROM ")
	if err := writeTableRef(&b, q.Table, q.Alias); err != nil {
		return "", nil, err
	}

	if err := writeJoins(&b, q.Joins); err != nil {
		return "", nil, err
	}

	filterParams, err := writeFilters(&b, q.Filters)
	if err != nil {
		return "", nil, err
	}
	params = append(params, filterParams...)

	if len(q.GroupBy) > 0 {
		cols, err := compileColumnList(q.GroupBy)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(cols)
	}

	if len(q.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range q.OrderBy {
			if !fieldPattern.MatchString(o.Field) {
				return "", nil, fmt.Errorf("invalid order by field %q", o.Field)
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(o.Field)
			if o.Direction == Desc {
				b.WriteString(" DESC")
			} else {
				b.WriteString(" ASC")
			}
		}
	}

	if q.Limit != nil {
		b.WriteString(" LIMIT ?")
		params = append(params, *q.Limit)
	}
	if q.Offset != nil {
		b.WriteString(" OFFSET ?")
		params = append(params, *q.Offset)
	}

	return b.String(), params, nil
}

// CompileCount builds the COUNT(*) companion used for pagination totals:
// same table, joins, and filters, no grouping, ordering, or paging.
func CompileCount(q ReportQuery) (string, []any, error) {
	var b strings.Builder
	params := []any{}

	b.WriteString("SELECT COUNT(*) AS total FROM ")
	if err := writeTableRef(&b, q.Table, q.Alias); err != nil {
		return "", nil, err
	}
	if err := writeJoins(&b, q.Joins); err != nil {
		return "", nil, err
	}
	filterParams, err := writeFilters(&b, q.Filters)
	if err != nil {
		return "", nil, err
	}
	params = append(params, filterParams...)

	return b.String(), params, nil
}

func compileFields(fields []ReportField) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("no fields to select")
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		expr, err := fieldExpr(f)
		if err != nil {
			return "", err
		}
		parts = append(parts, expr)
	}
	return strings.Join(parts, ", "), nil
}

func fieldExpr(f ReportField) (string, error) {
	if f.Name == "*" {
		if f.Aggregation == AggCount {
			expr := "COUNT(*)"
			if f.Alias != "" {
				expr += " AS " + f.Alias
			}
			return expr, nil
		}
		// the wildcard is never aliased
		return "*", nil
	}
	if !fieldPattern.MatchString(f.Name) {
		return "", fmt.Errorf("invalid field %q", f.Name)
	}
	expr := f.Name
	switch f.Aggregation {
	case AggNone:
	case AggSum, AggAvg, AggCount, AggMin, AggMax:
		expr = strings.ToUpper(string(f.Aggregation)) + "(" + expr + ")"
	case AggConcat:
		expr = "GROUP_CONCAT(" + expr + ")"
	default:
		return "", fmt.Errorf("unsupported aggregation %q", f.Aggregation)
	}
	return expr + " AS " + defaultAlias(f), nil
}

// defaultAlias is the explicit alias, else the segment after the dot for
// qualified names, else the name itself.
func defaultAlias(f ReportField) string {
	if f.Alias != "" {
		return f.Alias
	}
	if i := strings.LastIndexByte(f.Name, '.'); i >= 0 {
		return f.Name[i+1:]
	}
	return f.Name
}

func writeTableRef(b *strings.Builder, table, alias string) error {
	if !fieldPattern.MatchString(table) {
		return fmt.Errorf("invalid table %q", table)
	}
	b.WriteString(table)
	if alias != "" {
		if !fieldPattern.MatchString(alias) {
			return fmt.Errorf("invalid alias %q", alias)
		}
		b.WriteString(" AS ")
		b.WriteString(alias)
	}
	return nil
}

var joinSQL = map[JoinKind]string{
	JoinInner: "INNER JOIN",
	JoinLeft:  "LEFT JOIN",
	JoinRight: "RIGHT JOIN",
	JoinFull:  "FULL JOIN",
}

func writeJoins(b *strings.Builder, joins []ReportJoin) error {
	for _, j := range joins {
		kw, ok := joinSQL[j.Kind]
		if !ok {
			return fmt.Errorf("unsupported join kind %q", j.Kind)
		}
		if !onPattern.MatchString(j.On) {
			return fmt.Errorf("invalid join predicate %q", j.On)
		}
		b.WriteString(" ")
		b.WriteString(kw)
		b.WriteString(" ")
		if err := writeTableRef(b, j.Table, j.Alias); err != nil {
			return err
		}
		b.WriteString(" ON ")
		b.WriteString(j.On)
	}
	return nil
}

func writeFilters(b *strings.Builder, filters []ReportFilter) ([]any, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	params := []any{}
	b.WriteString(" WHERE ")
	for i, f := range filters {
		if i > 0 {
			b.WriteString(" AND ")
		}
		if !fieldPattern.MatchString(f.Field) {
			return nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		b.WriteString(f.Field)
		switch f.Operator {
		case OpEquals:
			b.WriteString(" = ?")
			params = append(params, f.Value)
		case OpNotEquals:
			b.WriteString(" <> ?")
			params = append(params, f.Value)
		case OpGreaterThan:
			b.WriteString(" > ?")
			params = append(params, f.Value)
		case OpLessThan:
			b.WriteString(" < ?")
			params = append(params, f.Value)
		case OpGreaterOrEqual:
			b.WriteString(" >= ?")
			params = append(params, f.Value)
		case OpLessOrEqual:
			b.WriteString(" <= ?")
			params = append(params, f.Value)
		case OpLike:
			b.WriteString(" LIKE ?")
			params = append(params, f.Value)
		case OpIn, OpNotIn:
			if len(f.Values) == 0 {
				return nil, fmt.Errorf("filter on %q needs a value list", f.Field)
			}
			if f.Operator == OpNotIn {
				b.WriteString(" NOT")
			}
			b.WriteString(" IN (")
			b.WriteString(placeholders(len(f.Values)))
			b.WriteString(")")
			params = append(params, f.Values...)
		case OpBetween:
			if len(f.Values) != 2 {
				return nil, fmt.Errorf("filter on %q needs exactly two values", f.Field)
			}
			b.WriteString(" BETWEEN ? AND ?")
			params = append(params, f.Values[0], f.Values[1])
		case OpIsNull:
			b.WriteString(" IS NULL")
		case OpIsNotNull:
			b.WriteString(" IS NOT NULL")
		default:
			return nil, fmt.Errorf("unsupported operator %q", f.Operator)
		}
	}
	return params, nil
}

func compileColumnList(cols []string) (string, error) {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		if !fieldPattern.MatchString(c) {
			return "", fmt.Errorf("invalid column %q", c)
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, ", "), nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
