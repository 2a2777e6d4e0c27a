package reportcfg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reportengine-backend/internal/query"
)

// ConfigError indicates a missing template or malformed report config. It
// is raised before any I/O against the data source.
type ConfigError struct {
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TemplateStore and InstanceStore are the durable source of truth; the
// manager keeps only a bounded TTL cache in front of them.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*ReportTemplate, error)
	ListTemplates(ctx context.Context, filter TemplateFilter) ([]ReportTemplate, error)
	InsertTemplate(ctx context.Context, t *ReportTemplate) error
	// InsertTemplateIfAbsent reports whether the row was inserted; an
	// existing id is left untouched.
	InsertTemplateIfAbsent(ctx context.Context, t *ReportTemplate) (bool, error)
	UpdateTemplate(ctx context.Context, t *ReportTemplate) error
}

type InstanceStore interface {
	// InsertInstance also increments the template usage counter in the
	// same transaction.
	InsertInstance(ctx context.Context, inst *ReportInstance) error
	GetInstance(ctx context.Context, id string) (*ReportInstance, error)
	UpdateInstance(ctx context.Context, id string, patch InstancePatch) error
	ListInstances(ctx context.Context, userID string) ([]ReportInstance, error)
	ExpireInstances(ctx context.Context, cutoff time.Time) (int, error)
}

const (
	templateCacheTTL = 5 * time.Minute
	// instances are ephemeral renders; past this age the hourly cleanup
	// flips them to expired
	instanceTTL = 24 * time.Hour
)

type cachedTemplate struct {
	template ReportTemplate
	storedAt time.Time
}

type Manager struct {
	templates TemplateStore
	instances InstanceStore
	logger    *zap.Logger
	now       func() time.Time

	cacheMu sync.RWMutex
	cache   map[string]cachedTemplate
}

func NewManager(templates TemplateStore, instances InstanceStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		templates: templates,
		instances: instances,
		logger:    logger.With(zap.String("component", "report-config")),
		now:       time.Now,
		cache:     make(map[string]cachedTemplate),
	}
}

func (m *Manager) SetNow(now func() time.Time) { m.now = now }

// GetTemplate reads through the cache; misses and expired entries go to the
// store.
func (m *Manager) GetTemplate(ctx context.Context, id string) (*ReportTemplate, error) {
	m.cacheMu.RLock()
	entry, ok := m.cache[id]
	m.cacheMu.RUnlock()
	if ok && m.now().Sub(entry.storedAt) <= templateCacheTTL {
		t := entry.template
		return &t, nil
	}
	t, err := m.templates.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	m.cacheMu.Lock()
	m.cache[id] = cachedTemplate{template: *t, storedAt: m.now()}
	m.cacheMu.Unlock()
	return t, nil
}

func (m *Manager) ListTemplates(ctx context.Context, filter TemplateFilter) ([]ReportTemplate, error) {
	return m.templates.ListTemplates(ctx, filter)
}

func (m *Manager) CreateTemplate(ctx context.Context, t ReportTemplate) (*ReportTemplate, error) {
	if ok, verr := m.ValidateConfig(t.Config); !ok {
		return nil, &ConfigError{Message: "invalid template config", Err: verr}
	}
	if t.Name == "" {
		return nil, &ConfigError{Message: "template name is required"}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Category == "" {
		t.Category = CategoryCustom
	}
	t.Version = 1
	t.UsageCount = 0
	t.Rating = 0
	t.ReviewCount = 0
	t.IsActive = true
	t.CreatedAt = m.now()
	t.UpdatedAt = t.CreatedAt
	if err := m.templates.InsertTemplate(ctx, &t); err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	return &t, nil
}

func (m *Manager) UpdateTemplate(ctx context.Context, id string, patch TemplatePatch) (*ReportTemplate, error) {
	t, err := m.templates.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Category != nil {
		t.Category = *patch.Category
	}
	if patch.Tags != nil {
		t.Tags = patch.Tags
	}
	if patch.IsPublic != nil {
		t.IsPublic = *patch.IsPublic
	}
	if patch.IsActive != nil {
		t.IsActive = *patch.IsActive
	}
	if patch.Config != nil {
		if ok, verr := m.ValidateConfig(*patch.Config); !ok {
			return nil, &ConfigError{Message: "invalid template config", Err: verr}
		}
		t.Config = *patch.Config
	}
	t.Version++
	t.UpdatedAt = m.now()
	if err := m.templates.UpdateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	m.invalidate(id)
	return t, nil
}

// DeactivateTemplate soft-deletes; templates referenced by instances are
// never removed from the store.
func (m *Manager) DeactivateTemplate(ctx context.Context, id string) error {
	inactive := false
	_, err := m.UpdateTemplate(ctx, id, TemplatePatch{IsActive: &inactive})
	return err
}

func (m *Manager) CloneTemplate(ctx context.Context, id, newName, author string) (*ReportTemplate, error) {
	src, err := m.GetTemplate(ctx, id)
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("template %q not found", id), Err: err}
	}
	clone := *src
	clone.ID = uuid.NewString()
	clone.Name = newName
	clone.Author = author
	clone.Version = 1
	clone.IsPublic = false
	clone.IsActive = true
	clone.UsageCount = 0
	clone.Rating = 0
	clone.ReviewCount = 0
	clone.Tags = append([]string(nil), src.Tags...)
	clone.CreatedAt = m.now()
	clone.UpdatedAt = clone.CreatedAt
	if err := m.templates.InsertTemplate(ctx, &clone); err != nil {
		return nil, fmt.Errorf("insert cloned template: %w", err)
	}
	return &clone, nil
}

func (m *Manager) CreateInstance(ctx context.Context, templateID, userID, name string, params map[string]any) (*ReportInstance, error) {
	if _, err := m.GetTemplate(ctx, templateID); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("template %q not found", templateID), Err: err}
	}
	expires := m.now().Add(instanceTTL)
	inst := &ReportInstance{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		UserID:     userID,
		Name:       name,
		Parameters: params,
		Status:     StatusGenerating,
		CreatedAt:  m.now(),
		UpdatedAt:  m.now(),
		ExpiresAt:  &expires,
	}
	if err := m.instances.InsertInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("insert instance: %w", err)
	}
	m.invalidate(templateID) // usage counter changed
	return inst, nil
}

func (m *Manager) GetInstance(ctx context.Context, id string) (*ReportInstance, error) {
	return m.instances.GetInstance(ctx, id)
}

func (m *Manager) UpdateInstance(ctx context.Context, id string, patch InstancePatch) error {
	return m.instances.UpdateInstance(ctx, id, patch)
}

func (m *Manager) ListInstances(ctx context.Context, userID string) ([]ReportInstance, error) {
	return m.instances.ListInstances(ctx, userID)
}

// CleanupExpiredInstances marks past-expiry instances expired and returns
// how many changed. Invoked by the hourly background task.
func (m *Manager) CleanupExpiredInstances(ctx context.Context) (int, error) {
	return m.instances.ExpireInstances(ctx, m.now())
}

// ValidateConfig checks the structural minimum every report config needs.
// Violations accumulate in one error.
func (m *Manager) ValidateConfig(cfg ReportConfig) (bool, *query.ValidationError) {
	var details []query.ErrorDetail
	if cfg.Query.Table == "" {
		details = append(details, query.ErrorDetail{Field: "query.table", Problem: "missing", Hint: "Provide a table name"})
	}
	if len(cfg.Query.Fields) == 0 {
		details = append(details, query.ErrorDetail{Field: "query.fields", Problem: "missing", Hint: "Select at least one field"})
	}
	switch cfg.Visualization {
	case VisualizationTable, VisualizationChart, VisualizationDashboard:
	default:
		details = append(details, query.ErrorDetail{Field: "visualization", Problem: fmt.Sprintf("unsupported visualization %q", cfg.Visualization), Hint: "Use table, chart, or dashboard"})
	}
	if len(details) > 0 {
		return false, &query.ValidationError{Message: "report config failed validation", Details: details}
	}
	return true, nil
}

func (m *Manager) invalidate(id string) {
	m.cacheMu.Lock()
	delete(m.cache, id)
	m.cacheMu.Unlock()
}
