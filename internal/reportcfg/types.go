package reportcfg

import (
	"time"

	"reportengine-backend/internal/query"
)

type TemplateCategory string

const (
	CategoryInventory     TemplateCategory = "inventory"
	CategoryManufacturing TemplateCategory = "manufacturing"
	CategorySales         TemplateCategory = "sales"
	CategoryQuality       TemplateCategory = "quality"
	CategoryPerformance   TemplateCategory = "performance"
	CategoryCustom        TemplateCategory = "custom"
)

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

type Visualization string

const (
	VisualizationTable     Visualization = "table"
	VisualizationChart     Visualization = "chart"
	VisualizationDashboard Visualization = "dashboard"
)

// FormatKind discriminates the FieldFormat variant.
type FormatKind string

const (
	FormatCurrency   FormatKind = "currency"
	FormatNumber     FormatKind = "number"
	FormatPercentage FormatKind = "percentage"
	FormatDate       FormatKind = "date"
	FormatText       FormatKind = "text"
)

// FieldFormat is a tagged variant: Kind selects which of the remaining
// fields apply.
type FieldFormat struct {
	Kind         FormatKind `json:"kind"`
	Symbol       string     `json:"symbol,omitempty"`        // currency
	Decimals     *int       `json:"decimals,omitempty"`      // currency, number, percentage; nil means the kind's default
	ThousandsSep string     `json:"thousands_sep,omitempty"` // number
	Layout       string     `json:"layout,omitempty"`        // date, Go reference layout
}

type FieldFormatRule struct {
	Field  string      `json:"field"`
	Format FieldFormat `json:"format"`
}

// ConditionalFormat attaches a display tag to cells matching the condition;
// raw values are never mutated.
type ConditionalFormat struct {
	Field    string         `json:"field"`
	Operator query.Operator `json:"operator"`
	Value    any            `json:"value"`
	Tag      string         `json:"tag"`
}

type FilterWidget struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Kind    string   `json:"kind"` // select | range | date_range | text
	Options []string `json:"options,omitempty"`
}

type ExportConfig struct {
	Formats  []string `json:"formats,omitempty"` // csv | xlsx | json
	Filename string   `json:"filename,omitempty"`
}

type ScheduleConfig struct {
	Cron       string   `json:"cron"`
	Recipients []string `json:"recipients,omitempty"`
	Enabled    bool     `json:"enabled"`
}

type ReportConfig struct {
	Query            query.ReportQuery   `json:"query"`
	Visualization    Visualization       `json:"visualization"`
	ChartType        string              `json:"chart_type,omitempty"`
	FilterWidgets    []FilterWidget      `json:"filter_widgets,omitempty"`
	Formatting       []FieldFormatRule   `json:"formatting,omitempty"`
	ConditionalRules []ConditionalFormat `json:"conditional_rules,omitempty"`
	Export           ExportConfig        `json:"export,omitempty"`
	Schedule         *ScheduleConfig     `json:"schedule,omitempty"`
	AllowedRoles     []string            `json:"allowed_roles,omitempty"`
}

type ReportTemplate struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Category      TemplateCategory `json:"category"`
	Version       int              `json:"version"`
	Author        string           `json:"author"`
	Tags          []string         `json:"tags,omitempty"`
	IsPublic      bool             `json:"is_public"`
	IsActive      bool             `json:"is_active"`
	Config        ReportConfig     `json:"config"`
	EstimatedRows int64            `json:"estimated_rows,omitempty"`
	Complexity    Complexity       `json:"complexity,omitempty"`
	UsageCount    int64            `json:"usage_count"`
	Rating        float64          `json:"rating"`
	ReviewCount   int              `json:"review_count"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type InstanceStatus string

const (
	StatusGenerating InstanceStatus = "generating"
	StatusCompleted  InstanceStatus = "completed"
	StatusFailed     InstanceStatus = "failed"
	StatusExpired    InstanceStatus = "expired"
)

type ReportInstance struct {
	ID           string         `json:"id"`
	TemplateID   string         `json:"template_id"`
	UserID       string         `json:"user_id"`
	Name         string         `json:"name"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Status       InstanceStatus `json:"status"`
	ResultCount  int            `json:"result_count"`
	GenerationMs int64          `json:"generation_ms"`
	Error        string         `json:"error,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// InstancePatch carries the fields UpdateInstance may change.
type InstancePatch struct {
	Status       *InstanceStatus
	ResultCount  *int
	GenerationMs *int64
	Error        *string
}

type TemplatePatch struct {
	Name        *string
	Description *string
	Category    *TemplateCategory
	Tags        []string
	IsPublic    *bool
	IsActive    *bool
	Config      *ReportConfig
}

type TemplateFilter struct {
	Category   TemplateCategory
	PublicOnly bool
	ActiveOnly bool
}
