package main

import (
	"reportengine-backend/internal/query"
	"reportengine-backend/internal/reportcfg"
)

type generateRequest struct {
	TemplateID   string                  `json:"template_id,omitempty"`
	UserID       string                  `json:"user_id"`
	Name         string                  `json:"name,omitempty"`
	Config       *reportcfg.ReportConfig `json:"config,omitempty"`
	Parameters   map[string]any          `json:"parameters,omitempty"`
	ValidateData bool                    `json:"validate_data,omitempty"`
	SaveInstance bool                    `json:"save_instance,omitempty"`
}

type validateResponse struct {
	Valid    bool                `json:"valid"`
	Errors   []query.ErrorDetail `json:"errors,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

type createTemplateRequest struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Category    reportcfg.TemplateCategory `json:"category"`
	Author      string                     `json:"author"`
	Tags        []string                   `json:"tags,omitempty"`
	IsPublic    bool                       `json:"is_public"`
	Config      reportcfg.ReportConfig     `json:"config"`
}

type updateTemplateRequest struct {
	Name        *string                     `json:"name,omitempty"`
	Description *string                     `json:"description,omitempty"`
	Category    *reportcfg.TemplateCategory `json:"category,omitempty"`
	Tags        []string                    `json:"tags,omitempty"`
	IsPublic    *bool                       `json:"is_public,omitempty"`
	IsActive    *bool                       `json:"is_active,omitempty"`
	Config      *reportcfg.ReportConfig     `json:"config,omitempty"`
}

type cloneTemplateRequest struct {
	Name   string `json:"name"`
	Author string `json:"author"`
}
