package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	dbconnector "reportengine-backend"
	"reportengine-backend/internal/query"
	"reportengine-backend/internal/reportcfg"
	"reportengine-backend/internal/storage"
)

type mockConnector struct {
	tables       []string
	rows         []map[string]any
	queryCalls   int
	listCalled   bool
	sampleCalled bool
}

func (m *mockConnector) TestConnection(ctx context.Context) error { return nil }
func (m *mockConnector) ListTables(ctx context.Context) ([]string, error) {
	m.listCalled = true
	return m.tables, nil
}
func (m *mockConnector) DescribeTable(ctx context.Context, table string) (*dbconnector.TableSchema, error) {
	return &dbconnector.TableSchema{Table: table}, nil
}
func (m *mockConnector) ExecuteQuery(ctx context.Context, sql string, params []any) (*dbconnector.QueryResult, error) {
	m.queryCalls++
	return &dbconnector.QueryResult{Rows: m.rows, RowCount: len(m.rows)}, nil
}
func (m *mockConnector) ExecuteTransaction(ctx context.Context, stmts []dbconnector.Statement) ([]dbconnector.ExecResult, error) {
	return nil, nil
}
func (m *mockConnector) SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	m.sampleCalled = true
	return m.rows, nil
}
func (m *mockConnector) ProfileTable(ctx context.Context, table string, opts dbconnector.ProfileOptions) (*dbconnector.TableProfile, error) {
	return &dbconnector.TableProfile{}, nil
}
func (m *mockConnector) Close() error { return nil }

type memTemplateStore struct {
	templates map[string]reportcfg.ReportTemplate
	instances map[string]reportcfg.ReportInstance
}

func newMemTemplateStore() *memTemplateStore {
	return &memTemplateStore{
		templates: map[string]reportcfg.ReportTemplate{},
		instances: map[string]reportcfg.ReportInstance{},
	}
}

func (s *memTemplateStore) GetTemplate(ctx context.Context, id string) (*reportcfg.ReportTemplate, error) {
	t, ok := s.templates[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &t, nil
}

func (s *memTemplateStore) ListTemplates(ctx context.Context, filter reportcfg.TemplateFilter) ([]reportcfg.ReportTemplate, error) {
	out := []reportcfg.ReportTemplate{}
	for _, t := range s.templates {
		out = append(out, t)
	}
	return out, nil
}

func (s *memTemplateStore) InsertTemplate(ctx context.Context, t *reportcfg.ReportTemplate) error {
	s.templates[t.ID] = *t
	return nil
}

func (s *memTemplateStore) InsertTemplateIfAbsent(ctx context.Context, t *reportcfg.ReportTemplate) (bool, error) {
	if _, ok := s.templates[t.ID]; ok {
		return false, nil
	}
	s.templates[t.ID] = *t
	return true, nil
}

func (s *memTemplateStore) UpdateTemplate(ctx context.Context, t *reportcfg.ReportTemplate) error {
	if _, ok := s.templates[t.ID]; !ok {
		return storage.ErrNotFound
	}
	s.templates[t.ID] = *t
	return nil
}

func (s *memTemplateStore) InsertInstance(ctx context.Context, inst *reportcfg.ReportInstance) error {
	s.instances[inst.ID] = *inst
	return nil
}

func (s *memTemplateStore) GetInstance(ctx context.Context, id string) (*reportcfg.ReportInstance, error) {
	inst, ok := s.instances[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &inst, nil
}

func (s *memTemplateStore) UpdateInstance(ctx context.Context, id string, patch reportcfg.InstancePatch) error {
	inst, ok := s.instances[id]
	if !ok {
		return storage.ErrNotFound
	}
	if patch.Status != nil {
		inst.Status = *patch.Status
	}
	s.instances[id] = inst
	return nil
}

func (s *memTemplateStore) ListInstances(ctx context.Context, userID string) ([]reportcfg.ReportInstance, error) {
	out := []reportcfg.ReportInstance{}
	for _, inst := range s.instances {
		if inst.UserID == userID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s *memTemplateStore) ExpireInstances(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func newTestHandler(conn *mockConnector) (*Handler, *memTemplateStore) {
	store := newMemTemplateStore()
	engine := query.NewEngine(conn, nil, query.Config{})
	manager := reportcfg.NewManager(store, store, nil)
	return &Handler{
		Engine:  engine,
		Manager: manager,
		Config: &Config{
			DefaultDataSource: "warehouse",
			DataSources: []DataSourceConfig{
				{Name: "warehouse", Type: "postgres", Host: "db", Database: "inventory"},
			},
		},
		Factory: func(cfg dbconnector.ConnectionConfig) (dbconnector.DbConnector, error) {
			return conn, nil
		},
	}, store
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestValidateEndpointReportsAllProblems(t *testing.T) {
	conn := &mockConnector{tables: []string{"products"}}
	h, _ := newTestHandler(conn)
	r := newTestRouter(h)

	body, _ := json.Marshal(map[string]any{
		"table": "zzz_not_real",
		"fields": []map[string]any{
			{"name": "sku"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/reports/validate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var resp validateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Valid {
		t.Fatal("expected invalid query")
	}
	if len(resp.Errors) == 0 {
		t.Fatal("expected validation details")
	}
	if conn.queryCalls != 0 {
		t.Fatalf("no SQL should reach the connector, got %d calls", conn.queryCalls)
	}
}

func TestGetTemplateNotFoundMapsTo404(t *testing.T) {
	h, _ := newTestHandler(&mockConnector{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/templates/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateAndGetTemplate(t *testing.T) {
	h, _ := newTestHandler(&mockConnector{tables: []string{"products"}})
	r := newTestRouter(h)

	body, _ := json.Marshal(createTemplateRequest{
		Name:     "stock by category",
		Category: reportcfg.CategoryInventory,
		Author:   "tester",
		Config: reportcfg.ReportConfig{
			Query: query.ReportQuery{
				Table:  "products",
				Fields: []query.ReportField{{Name: "sku"}},
			},
			Visualization: reportcfg.VisualizationTable,
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/templates", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created reportcfg.ReportTemplate
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" || created.Version != 1 {
		t.Fatalf("unexpected template: %+v", created)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/templates/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", getRec.Code)
	}
}

func TestCreateTemplateInvalidConfigIs400(t *testing.T) {
	h, _ := newTestHandler(&mockConnector{})
	r := newTestRouter(h)

	body, _ := json.Marshal(createTemplateRequest{
		Name:   "broken",
		Config: reportcfg.ReportConfig{Visualization: "hologram"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/templates", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListDataSources(t *testing.T) {
	h, _ := newTestHandler(&mockConnector{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/datasources", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var resp struct {
		DataSources []map[string]any `json:"data_sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.DataSources) != 1 || resp.DataSources[0]["name"] != "warehouse" {
		t.Fatalf("unexpected data sources: %+v", resp.DataSources)
	}
}

func TestUnknownDataSourceIs404(t *testing.T) {
	h, _ := newTestHandler(&mockConnector{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/datasources/ghost/tables", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDataSourceTables(t *testing.T) {
	conn := &mockConnector{tables: []string{"products", "warehouses"}}
	h, _ := newTestHandler(conn)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/datasources/warehouse/tables", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !conn.listCalled {
		t.Fatal("expected ListTables call")
	}
}

func TestGenerateRequiresTemplateOrConfig(t *testing.T) {
	h, _ := newTestHandler(&mockConnector{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/reports/generate", bytes.NewReader([]byte(`{"user_id":"u1"}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
