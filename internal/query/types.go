package query

// Declarative report query description, produced by the report designer and
// accepted over JSON. Identifiers are validated against the live schema
// before any of them reach SQL text; filter values are only ever bound as
// positional parameters.

type Aggregation string

const (
	AggNone   Aggregation = ""
	AggSum    Aggregation = "sum"
	AggAvg    Aggregation = "avg"
	AggCount  Aggregation = "count"
	AggMin    Aggregation = "min"
	AggMax    Aggregation = "max"
	AggConcat Aggregation = "concat"
)

type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinRight JoinKind = "right"
	JoinFull  JoinKind = "full"
)

type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
	OpLike           Operator = "like"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpBetween        Operator = "between"
	OpIsNull         Operator = "is_null"
	OpIsNotNull      Operator = "is_not_null"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type ReportField struct {
	Name        string      `json:"name"`
	Alias       string      `json:"alias,omitempty"`
	Type        string      `json:"type,omitempty"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
}

type ReportJoin struct {
	Kind  JoinKind `json:"kind"`
	Table string   `json:"table"`
	Alias string   `json:"alias,omitempty"`
	On    string   `json:"on"`
}

type ReportFilter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Values   []any    `json:"values,omitempty"`
	// ParamKey marks the filter as a runtime parameter slot; the generator
	// rewrites Value by this key before validation.
	ParamKey string `json:"param_key,omitempty"`
}

type ReportOrderBy struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

type ReportQuery struct {
	Table   string          `json:"table"`
	Alias   string          `json:"alias,omitempty"`
	Fields  []ReportField   `json:"fields"`
	Joins   []ReportJoin    `json:"joins,omitempty"`
	Filters []ReportFilter  `json:"filters,omitempty"`
	GroupBy []string        `json:"group_by,omitempty"`
	OrderBy []ReportOrderBy `json:"order_by,omitempty"`
	Limit   *int            `json:"limit,omitempty"`
	Offset  *int            `json:"offset,omitempty"`
}

// Result is the outcome of one Execute call. SQL and Params echo exactly
// what was sent to the connector so callers can audit the compiled text.
type Result struct {
	Rows        []map[string]any `json:"rows"`
	Columns     []string         `json:"columns"`
	TotalCount  int              `json:"total_count"`
	ExecutionMs int64            `json:"execution_ms"`
	SQL         string           `json:"sql"`
	Params      []any            `json:"params"`
	CacheHit    bool             `json:"cache_hit"`
	Warnings    []string         `json:"warnings,omitempty"`
}

var validOperators = map[Operator]struct{}{
	OpEquals: {}, OpNotEquals: {}, OpGreaterThan: {}, OpLessThan: {},
	OpGreaterOrEqual: {}, OpLessOrEqual: {}, OpLike: {}, OpIn: {},
	OpNotIn: {}, OpBetween: {}, OpIsNull: {}, OpIsNotNull: {},
}

var validAggregations = map[Aggregation]struct{}{
	AggSum: {}, AggAvg: {}, AggCount: {}, AggMin: {}, AggMax: {}, AggConcat: {},
}

var validJoinKinds = map[JoinKind]struct{}{
	JoinInner: {}, JoinLeft: {}, JoinRight: {}, JoinFull: {},
}
