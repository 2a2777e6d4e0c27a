package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reportengine-backend/internal/generator"
	"reportengine-backend/internal/monitor"
	"reportengine-backend/internal/quality"
	"reportengine-backend/internal/reportcfg"
)

// Repository runs inline SQL over the pool. It satisfies the narrow store
// interfaces the engine components declare (reportcfg.TemplateStore,
// reportcfg.InstanceStore, monitor.MetricStore, monitor.AlertStore,
// generator.ReportAlertStore, quality.ActionStore).
type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

// --- templates -------------------------------------------------------------

const templateColumns = `id, name, description, category, version, author, tags, is_public, is_active,
	config, estimated_rows, complexity, usage_count, rating, review_count, created_at, updated_at`

func scanTemplate(row pgx.Row) (*reportcfg.ReportTemplate, error) {
	var t reportcfg.ReportTemplate
	var configJSON []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Category, &t.Version, &t.Author, &t.Tags,
		&t.IsPublic, &t.IsActive, &configJSON, &t.EstimatedRows, &t.Complexity,
		&t.UsageCount, &t.Rating, &t.ReviewCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(configJSON, &t.Config); err != nil {
		return nil, fmt.Errorf("decode template config: %w", err)
	}
	return &t, nil
}

func (r *Repository) GetTemplate(ctx context.Context, id string) (*reportcfg.ReportTemplate, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM report_templates WHERE id=$1`, id)
	return scanTemplate(row)
}

func (r *Repository) ListTemplates(ctx context.Context, filter reportcfg.TemplateFilter) ([]reportcfg.ReportTemplate, error) {
	sql := `SELECT ` + templateColumns + ` FROM report_templates WHERE 1=1`
	args := []any{}
	if filter.Category != "" {
		args = append(args, filter.Category)
		sql += fmt.Sprintf(" AND category=$%d", len(args))
	}
	if filter.PublicOnly {
		sql += " AND is_public"
	}
	if filter.ActiveOnly {
		sql += " AND is_active"
	}
	sql += " ORDER BY name"
	rows, err := r.Store.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []reportcfg.ReportTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *t)
	}
	return results, rows.Err()
}

func (r *Repository) InsertTemplate(ctx context.Context, t *reportcfg.ReportTemplate) error {
	configJSON, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("encode template config: %w", err)
	}
	_, err = r.Store.Pool.Exec(ctx, `
		INSERT INTO report_templates (`+templateColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		t.ID, t.Name, t.Description, t.Category, t.Version, t.Author, t.Tags, t.IsPublic, t.IsActive,
		configJSON, t.EstimatedRows, t.Complexity, t.UsageCount, t.Rating, t.ReviewCount, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (r *Repository) InsertTemplateIfAbsent(ctx context.Context, t *reportcfg.ReportTemplate) (bool, error) {
	configJSON, err := json.Marshal(t.Config)
	if err != nil {
		return false, fmt.Errorf("encode template config: %w", err)
	}
	tag, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO report_templates (`+templateColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.Name, t.Description, t.Category, t.Version, t.Author, t.Tags, t.IsPublic, t.IsActive,
		configJSON, t.EstimatedRows, t.Complexity, t.UsageCount, t.Rating, t.ReviewCount, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) UpdateTemplate(ctx context.Context, t *reportcfg.ReportTemplate) error {
	configJSON, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("encode template config: %w", err)
	}
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE report_templates
		SET name=$1, description=$2, category=$3, version=$4, tags=$5, is_public=$6, is_active=$7,
			config=$8, estimated_rows=$9, complexity=$10, rating=$11, review_count=$12, updated_at=$13
		WHERE id=$14`,
		t.Name, t.Description, t.Category, t.Version, t.Tags, t.IsPublic, t.IsActive,
		configJSON, t.EstimatedRows, t.Complexity, t.Rating, t.ReviewCount, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- instances -------------------------------------------------------------

// InsertInstance writes the instance and increments the template usage
// counter in one transaction.
func (r *Repository) InsertInstance(ctx context.Context, inst *reportcfg.ReportInstance) error {
	paramsJSON, err := json.Marshal(inst.Parameters)
	if err != nil {
		return fmt.Errorf("encode instance parameters: %w", err)
	}
	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO report_instances (id, template_id, user_id, name, parameters, status, result_count, generation_ms, error, expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		inst.ID, inst.TemplateID, inst.UserID, inst.Name, paramsJSON, inst.Status,
		inst.ResultCount, inst.GenerationMs, inst.Error, inst.ExpiresAt, inst.CreatedAt, inst.UpdatedAt,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE report_templates SET usage_count = usage_count + 1 WHERE id=$1`, inst.TemplateID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanInstance(row pgx.Row) (*reportcfg.ReportInstance, error) {
	var inst reportcfg.ReportInstance
	var paramsJSON []byte
	if err := row.Scan(&inst.ID, &inst.TemplateID, &inst.UserID, &inst.Name, &paramsJSON, &inst.Status,
		&inst.ResultCount, &inst.GenerationMs, &inst.Error, &inst.ExpiresAt, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &inst.Parameters); err != nil {
			return nil, fmt.Errorf("decode instance parameters: %w", err)
		}
	}
	return &inst, nil
}

const instanceColumns = `id, template_id, user_id, name, parameters, status, result_count, generation_ms, error, expires_at, created_at, updated_at`

func (r *Repository) GetInstance(ctx context.Context, id string) (*reportcfg.ReportInstance, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT `+instanceColumns+` FROM report_instances WHERE id=$1`, id)
	return scanInstance(row)
}

func (r *Repository) UpdateInstance(ctx context.Context, id string, patch reportcfg.InstancePatch) error {
	sql := `UPDATE report_instances SET updated_at=now()`
	args := []any{}
	if patch.Status != nil {
		args = append(args, *patch.Status)
		sql += fmt.Sprintf(", status=$%d", len(args))
	}
	if patch.ResultCount != nil {
		args = append(args, *patch.ResultCount)
		sql += fmt.Sprintf(", result_count=$%d", len(args))
	}
	if patch.GenerationMs != nil {
		args = append(args, *patch.GenerationMs)
		sql += fmt.Sprintf(", generation_ms=$%d", len(args))
	}
	if patch.Error != nil {
		args = append(args, *patch.Error)
		sql += fmt.Sprintf(", error=$%d", len(args))
	}
	args = append(args, id)
	sql += fmt.Sprintf(" WHERE id=$%d", len(args))
	tag, err := r.Store.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListInstances(ctx context.Context, userID string) ([]reportcfg.ReportInstance, error) {
	rows, err := r.Store.Pool.Query(ctx, `SELECT `+instanceColumns+` FROM report_instances WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []reportcfg.ReportInstance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *inst)
	}
	return results, rows.Err()
}

func (r *Repository) ExpireInstances(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE report_instances SET status=$1, updated_at=now()
		WHERE expires_at IS NOT NULL AND expires_at < $2 AND status <> $1`,
		reportcfg.StatusExpired, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// --- metrics ---------------------------------------------------------------

// InsertMetrics writes the batch in one transaction, all or nothing.
func (r *Repository) InsertMetrics(ctx context.Context, metrics []monitor.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for _, metric := range metrics {
		metadataJSON, err := json.Marshal(metric.Metadata)
		if err != nil {
			return fmt.Errorf("encode metric metadata: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO performance_metrics (id, kind, name, duration_ms, value, user_id, session_id, metadata, recorded_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			metric.ID, metric.Kind, metric.Name, metric.DurationMs, metric.Value,
			metric.UserID, metric.SessionID, metadataJSON, metric.RecordedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) ListMetrics(ctx context.Context, start, end time.Time) ([]monitor.Metric, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, kind, name, duration_ms, value, user_id, session_id, metadata, recorded_at
		FROM performance_metrics WHERE recorded_at >= $1 AND recorded_at <= $2 ORDER BY recorded_at`,
		start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []monitor.Metric{}
	for rows.Next() {
		var metric monitor.Metric
		var metadataJSON []byte
		if err := rows.Scan(&metric.ID, &metric.Kind, &metric.Name, &metric.DurationMs, &metric.Value,
			&metric.UserID, &metric.SessionID, &metadataJSON, &metric.RecordedAt); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &metric.Metadata); err != nil {
				return nil, fmt.Errorf("decode metric metadata: %w", err)
			}
		}
		results = append(results, metric)
	}
	return results, rows.Err()
}

// --- performance alerts ----------------------------------------------------

func (r *Repository) InsertAlert(ctx context.Context, alert monitor.Alert) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO performance_alerts (id, kind, severity, message, threshold, observed, created_at, resolved, resolved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		alert.ID, alert.Kind, alert.Severity, alert.Message, alert.Threshold, alert.Observed,
		alert.CreatedAt, alert.Resolved, alert.ResolvedAt,
	)
	return err
}

func (r *Repository) ResolveAlert(ctx context.Context, id string, resolvedAt time.Time) error {
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE performance_alerts SET resolved=true, resolved_at=$1 WHERE id=$2 AND NOT resolved`,
		resolvedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListActiveAlerts(ctx context.Context) ([]monitor.Alert, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, kind, severity, message, threshold, observed, created_at, resolved, resolved_at
		FROM performance_alerts WHERE NOT resolved ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []monitor.Alert{}
	for rows.Next() {
		var alert monitor.Alert
		if err := rows.Scan(&alert.ID, &alert.Kind, &alert.Severity, &alert.Message, &alert.Threshold,
			&alert.Observed, &alert.CreatedAt, &alert.Resolved, &alert.ResolvedAt); err != nil {
			return nil, err
		}
		results = append(results, alert)
	}
	return results, rows.Err()
}

// --- report alerts ---------------------------------------------------------

func (r *Repository) InsertReportAlert(ctx context.Context, alert generator.ReportAlert) error {
	configJSON, err := json.Marshal(alert.Config)
	if err != nil {
		return fmt.Errorf("encode alert config: %w", err)
	}
	conditionsJSON, err := json.Marshal(alert.Conditions)
	if err != nil {
		return fmt.Errorf("encode alert conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(alert.Actions)
	if err != nil {
		return fmt.Errorf("encode alert actions: %w", err)
	}
	_, err = r.Store.Pool.Exec(ctx, `
		INSERT INTO report_alerts (id, name, config, conditions, actions, frequency_seconds, enabled, last_checked, last_triggered, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		alert.ID, alert.Name, configJSON, conditionsJSON, actionsJSON,
		int64(alert.Frequency.Seconds()), alert.Enabled, alert.LastChecked, alert.LastTriggered, alert.CreatedAt,
	)
	return err
}

func (r *Repository) ListEnabledReportAlerts(ctx context.Context) ([]generator.ReportAlert, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, name, config, conditions, actions, frequency_seconds, enabled, last_checked, last_triggered, created_at
		FROM report_alerts WHERE enabled ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []generator.ReportAlert{}
	for rows.Next() {
		var alert generator.ReportAlert
		var configJSON, conditionsJSON, actionsJSON []byte
		var frequencySeconds int64
		if err := rows.Scan(&alert.ID, &alert.Name, &configJSON, &conditionsJSON, &actionsJSON,
			&frequencySeconds, &alert.Enabled, &alert.LastChecked, &alert.LastTriggered, &alert.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(configJSON, &alert.Config); err != nil {
			return nil, fmt.Errorf("decode alert config: %w", err)
		}
		if err := json.Unmarshal(conditionsJSON, &alert.Conditions); err != nil {
			return nil, fmt.Errorf("decode alert conditions: %w", err)
		}
		if err := json.Unmarshal(actionsJSON, &alert.Actions); err != nil {
			return nil, fmt.Errorf("decode alert actions: %w", err)
		}
		alert.Frequency = time.Duration(frequencySeconds) * time.Second
		results = append(results, alert)
	}
	return results, rows.Err()
}

func (r *Repository) UpdateReportAlertStatus(ctx context.Context, id string, lastChecked time.Time, lastTriggered *time.Time) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE report_alerts SET last_checked=$1, last_triggered=$2 WHERE id=$3`,
		lastChecked, lastTriggered, id)
	return err
}

// --- cleaning audit --------------------------------------------------------

func (r *Repository) InsertCleaningActions(ctx context.Context, actions []quality.CleaningAction) error {
	if len(actions) == 0 {
		return nil
	}
	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for _, action := range actions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cleaning_actions (id, table_name, action, details, affected_records, performed_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			action.ID, action.Table, action.Action, action.Details, action.AffectedRecords, action.PerformedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
