package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LogActionHandler is the fallback action: it writes the event to the log.
type LogActionHandler struct {
	Logger *zap.Logger
}

func (h *LogActionHandler) Handle(ctx context.Context, action AlertAction, event AlertEvent) error {
	h.Logger.Info("report alert triggered",
		zap.String("alert", event.AlertID),
		zap.String("name", event.Name),
		zap.Float64s("observed", event.Observed))
	return nil
}

// Publisher is the slice of the message bus the notify and email actions
// use.
type Publisher interface {
	Publish(subject string, payload any) error
}

const (
	subjectAlertNotify = "reports.alerts.notify"
	subjectAlertEmail  = "reports.alerts.email"
)

// BusActionHandler publishes the event on the bus; notify and email differ
// only in subject, the mail worker owns delivery.
type BusActionHandler struct {
	Bus     Publisher
	Subject string
}

func NewNotifyActionHandler(bus Publisher) *BusActionHandler {
	return &BusActionHandler{Bus: bus, Subject: subjectAlertNotify}
}

func NewEmailActionHandler(bus Publisher) *BusActionHandler {
	return &BusActionHandler{Bus: bus, Subject: subjectAlertEmail}
}

func (h *BusActionHandler) Handle(ctx context.Context, action AlertAction, event AlertEvent) error {
	payload := map[string]any{
		"event":  event,
		"target": action.Target,
	}
	if err := h.Bus.Publish(h.Subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", h.Subject, err)
	}
	return nil
}

// WebhookActionHandler posts the event as JSON to the action's target URL.
type WebhookActionHandler struct {
	Client *http.Client
}

func NewWebhookActionHandler() *WebhookActionHandler {
	return &WebhookActionHandler{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (h *WebhookActionHandler) Handle(ctx context.Context, action AlertAction, event AlertEvent) error {
	if action.Target == "" {
		return fmt.Errorf("webhook action has no target")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.Target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
