package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	dbconnector "reportengine-backend"
	"reportengine-backend/internal/datasource"
	"reportengine-backend/internal/generator"
	"reportengine-backend/internal/monitor"
	"reportengine-backend/internal/query"
	"reportengine-backend/internal/quality"
	"reportengine-backend/internal/reportcfg"
)

type ConnectorFactory func(cfg dbconnector.ConnectionConfig) (dbconnector.DbConnector, error)

type Handler struct {
	Generator *generator.Generator
	Engine    *query.Engine
	Quality   *quality.Engine
	Manager   *reportcfg.Manager
	Monitor   *monitor.Monitor
	Cleaning  quality.ActionStore
	Config    *Config
	Factory   ConnectorFactory
	Resolver  datasource.Resolver
	Logger    *zap.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/reports/generate", h.handleGenerate)
		r.Post("/reports/validate", h.handleValidate)

		r.Get("/templates", h.handleListTemplates)
		r.Post("/templates", h.handleCreateTemplate)
		r.Get("/templates/{id}", h.handleGetTemplate)
		r.Put("/templates/{id}", h.handleUpdateTemplate)
		r.Delete("/templates/{id}", h.handleDeactivateTemplate)
		r.Post("/templates/{id}/clone", h.handleCloneTemplate)

		r.Get("/instances", h.handleListInstances)
		r.Get("/instances/{id}", h.handleGetInstance)

		r.Get("/quality/report", h.handleQualityReport)
		r.Post("/quality/clean", h.handleQualityClean)

		r.Get("/performance/report", h.handlePerformanceReport)
		r.Get("/performance/alerts", h.handlePerformanceAlerts)
		r.Post("/performance/alerts/{id}/resolve", h.handleResolveAlert)

		r.Get("/datasources", h.handleListDataSources)
		r.Post("/datasources/{name}/test", h.handleTestDataSource)
		r.Get("/datasources/{name}/tables", h.handleDataSourceTables)
		r.Get("/datasources/{name}/tables/{table}/schema", h.handleTableSchema)
		r.Get("/datasources/{name}/tables/{table}/sample", h.handleTableSample)
		r.Get("/datasources/{name}/tables/{table}/profile", h.handleTableProfile)
	})
}

// --- reports ---------------------------------------------------------------

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TemplateID == "" && req.Config == nil {
		writeError(w, http.StatusBadRequest, "template_id or config is required")
		return
	}

	genReq := generator.Request{
		TemplateID:   req.TemplateID,
		UserID:       req.UserID,
		Config:       req.Config,
		Parameters:   req.Parameters,
		ValidateData: req.ValidateData,
	}
	if req.SaveInstance && req.TemplateID != "" {
		inst, err := h.Manager.CreateInstance(r.Context(), req.TemplateID, req.UserID, req.Name, req.Parameters)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		genReq.InstanceID = inst.ID
	}

	result, err := h.Generator.Generate(r.Context(), genReq)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var q query.ReportQuery
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	valid, validationErr, warnings := h.Engine.Validate(r.Context(), q)
	resp := validateResponse{Valid: valid, Warnings: warnings}
	if validationErr != nil {
		resp.Errors = validationErr.Details
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- templates -------------------------------------------------------------

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	filter := reportcfg.TemplateFilter{
		Category:   reportcfg.TemplateCategory(r.URL.Query().Get("category")),
		PublicOnly: r.URL.Query().Get("public") == "true",
		ActiveOnly: r.URL.Query().Get("active") != "false",
	}
	templates, err := h.Manager.ListTemplates(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.Manager.CreateTemplate(r.Context(), reportcfg.ReportTemplate{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Author:      req.Author,
		Tags:        req.Tags,
		IsPublic:    req.IsPublic,
		Config:      req.Config,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.Manager.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req updateTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.Manager.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), reportcfg.TemplatePatch{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		IsPublic:    req.IsPublic,
		IsActive:    req.IsActive,
		Config:      req.Config,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeactivateTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.DeactivateTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deactivated": true})
}

func (h *Handler) handleCloneTemplate(w http.ResponseWriter, r *http.Request) {
	var req cloneTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	clone, err := h.Manager.CloneTemplate(r.Context(), chi.URLParam(r, "id"), req.Name, req.Author)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clone)
}

// --- instances -------------------------------------------------------------

func (h *Handler) handleListInstances(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	instances, err := h.Manager.ListInstances(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instances": instances})
}

func (h *Handler) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.Manager.GetInstance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// --- data quality ----------------------------------------------------------

func (h *Handler) handleQualityReport(w http.ResponseWriter, r *http.Request) {
	var tables []string
	if raw := r.URL.Query().Get("tables"); raw != "" {
		tables = strings.Split(raw, ",")
	}
	report, err := h.Quality.Validate(r.Context(), tables...)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleQualityClean(w http.ResponseWriter, r *http.Request) {
	actions, err := h.Quality.Clean(r.Context(), h.Cleaning)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// --- performance -----------------------------------------------------------

func (h *Handler) handlePerformanceReport(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = parsed
	}
	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	report, err := h.Monitor.GenerateReport(r.Context(), start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handlePerformanceAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Monitor.GetActiveAlerts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.Monitor.ResolveAlert(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolved": true})
}

// --- data sources ----------------------------------------------------------

func (h *Handler) handleListDataSources(w http.ResponseWriter, r *http.Request) {
	sources := make([]map[string]any, 0, len(h.Config.DataSources))
	for _, ds := range h.Config.DataSources {
		sources = append(sources, map[string]any{
			"name":     ds.Name,
			"type":     ds.Type,
			"database": ds.Database,
			"default":  ds.Name == h.Config.DefaultDataSource,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data_sources": sources})
}

// resolveDataSource prefers a config-declared source; unknown names fall
// through to the encrypted store when one is configured.
func (h *Handler) resolveDataSource(r *http.Request, name string) (dbconnector.ConnectionConfig, error) {
	if ds, ok := h.Config.dataSource(name); ok {
		return dbconnector.ConnectionConfig{
			Type:     ds.Type,
			Host:     ds.Host,
			Port:     ds.Port,
			User:     ds.User,
			Password: ds.Password,
			Database: ds.Database,
			SSLMode:  ds.SSLMode,
		}, nil
	}
	if h.Resolver == nil {
		return dbconnector.ConnectionConfig{}, datasource.ErrNotFound
	}
	return h.Resolver.ResolveByRef(r.Context(), name)
}

func (h *Handler) openDataSource(w http.ResponseWriter, r *http.Request) (dbconnector.DbConnector, bool) {
	name := chi.URLParam(r, "name")
	cfg, err := h.resolveDataSource(r, name)
	if err != nil {
		switch {
		case errors.Is(err, datasource.ErrNotFound), errors.Is(err, datasource.ErrNotConfigured):
			writeError(w, http.StatusNotFound, "unknown data source: "+name)
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	conn, err := h.Factory(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return conn, true
}

func (h *Handler) handleTestDataSource(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.openDataSource(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	if err := conn.TestConnection(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleDataSourceTables(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.openDataSource(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	tables, err := conn.ListTables(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *Handler) handleTableSchema(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.openDataSource(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	schema, err := conn.DescribeTable(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (h *Handler) handleTableSample(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.openDataSource(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	rows, err := conn.SampleRows(r.Context(), chi.URLParam(r, "table"), limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) handleTableProfile(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.openDataSource(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	profile, err := conn.ProfileTable(r.Context(), chi.URLParam(r, "table"), dbconnector.ProfileOptions{})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
