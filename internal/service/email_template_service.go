// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"unicode/utf8"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/email"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
)

// EmailTemplateService manages the booking email templates.
type EmailTemplateService struct {
	Adapter domain.Adapter[*models.EmailTemplate]
}

// NewEmailTemplateService creates a new EmailTemplateService.
func NewEmailTemplateService(adapter domain.Adapter[*models.EmailTemplate]) *EmailTemplateService {
	return &EmailTemplateService{Adapter: adapter}
}

// ServiceReady checks if the service is ready for use.
func (s *EmailTemplateService) ServiceReady() bool {
	return s.Adapter != nil
}

// ValidateTemplate collects every problem with the shape of tmpl.
func ValidateTemplate(tmpl *models.EmailTemplate) []string {
	var problems []string
	if !tmpl.Type.Valid() {
		problems = append(problems, "Template type must be confirmation, reminder or cancellation.")
	}
	switch n := utf8.RuneCountInString(tmpl.Subject); {
	case n == 0:
		problems = append(problems, "Subject is required.")
	case n > models.MaxTemplateSubjectLength:
		problems = append(problems, fmt.Sprintf("Subject must be at most %d characters.", models.MaxTemplateSubjectLength))
	}
	switch n := utf8.RuneCountInString(tmpl.Body); {
	case n == 0:
		problems = append(problems, "Body is required.")
	case n > models.MaxTemplateBodyLength:
		problems = append(problems, fmt.Sprintf("Body must be at most %d characters.", models.MaxTemplateBodyLength))
	}
	return problems
}

// Create validates and stores tmpl. Its variables are derived from the
// placeholders it uses.
func (s *EmailTemplateService) Create(ctx context.Context, tmpl *models.EmailTemplate) (*models.EmailTemplate, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	if tmpl == nil {
		return nil, domain.NewValidationError("email template is required")
	}
	if problems := ValidateTemplate(tmpl); len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid email template", problems)
	}
	tmpl.Variables = email.Placeholders(tmpl.Subject, tmpl.Body)
	return s.Adapter.Create(ctx, tmpl)
}

// Get returns the template with id, or nil when it does not exist.
func (s *EmailTemplateService) Get(ctx context.Context, id string) (*models.EmailTemplate, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	return s.Adapter.GetByID(ctx, id)
}

// GetAll lists the stored templates.
func (s *EmailTemplateService) GetAll(ctx context.Context) ([]*models.EmailTemplate, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	return s.Adapter.GetAll(ctx, nil)
}

// GetByType returns the stored template of type t, or nil.
func (s *EmailTemplateService) GetByType(ctx context.Context, t models.TemplateType) (*models.EmailTemplate, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	found, err := s.Adapter.Find(ctx, domain.Query{Where: map[string]any{"type": string(t)}, Limit: 1})
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// GetOrDefault returns the stored template of type t, falling back to the
// built-in default.
func (s *EmailTemplateService) GetOrDefault(ctx context.Context, t models.TemplateType) (*models.EmailTemplate, error) {
	tmpl, err := s.GetByType(ctx, t)
	if err != nil {
		return nil, err
	}
	if tmpl != nil {
		return tmpl, nil
	}
	if def := defaultTemplate(t); def != nil {
		return def, nil
	}
	return nil, domain.NewNotFoundError(fmt.Sprintf("no template of type %q", t))
}

// DefaultTemplates returns the built-in templates.
func (s *EmailTemplateService) DefaultTemplates() []*models.EmailTemplate {
	return models.DefaultEmailTemplates()
}

// Update applies patch to the template with id. The patched template must
// remain valid.
func (s *EmailTemplateService) Update(ctx context.Context, id string, patch domain.Patch) (*models.EmailTemplate, error) {
	current, err := s.Get(ctx, id)
	if err != nil || current == nil {
		return nil, err
	}
	candidate := *current
	if v, ok := patch["type"].(string); ok {
		candidate.Type = models.TemplateType(v)
	}
	if v, ok := patch["subject"].(string); ok {
		candidate.Subject = v
	}
	if v, ok := patch["body"].(string); ok {
		candidate.Body = v
	}
	if problems := ValidateTemplate(&candidate); len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid email template", problems)
	}

	merged := domain.Patch{}
	for k, v := range patch {
		merged[k] = v
	}
	merged["variables"] = email.Placeholders(candidate.Subject, candidate.Body)
	return s.Adapter.Update(ctx, id, merged)
}

// UpdateTemplate replaces the subject and body of the template of type t,
// creating it when none is stored.
func (s *EmailTemplateService) UpdateTemplate(ctx context.Context, t models.TemplateType, subject, body string) (*models.EmailTemplate, error) {
	existing, err := s.GetByType(ctx, t)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return s.Create(ctx, &models.EmailTemplate{Type: t, Subject: subject, Body: body})
	}
	return s.Update(ctx, existing.ID, domain.Patch{"subject": subject, "body": body})
}

// Delete removes the template with id and reports whether it existed.
func (s *EmailTemplateService) Delete(ctx context.Context, id string) (bool, error) {
	if !s.ServiceReady() {
		return false, domain.ErrServiceUnavailable
	}
	return s.Adapter.Delete(ctx, id)
}

// EnsureDefaults stores the default template of every type not yet stored.
func (s *EmailTemplateService) EnsureDefaults(ctx context.Context) error {
	for _, def := range models.DefaultEmailTemplates() {
		existing, err := s.GetByType(ctx, def.Type)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := s.Adapter.Create(ctx, def); err != nil {
			slog.ErrorContext(ctx, "failed to store default template", "type", def.Type, logging.ErrKey, err)
			return err
		}
	}
	return nil
}

// ResetToDefaults replaces every stored template with the defaults.
func (s *EmailTemplateService) ResetToDefaults(ctx context.Context) ([]*models.EmailTemplate, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	if err := s.Adapter.Clear(ctx); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "email templates reset to defaults")
	return s.Adapter.CreateMany(ctx, models.DefaultEmailTemplates())
}

// AvailableVariables lists every placeholder a template may use.
func (s *EmailTemplateService) AvailableVariables() []models.TemplateVariable {
	return slices.Clone(models.TemplateVariables)
}

// ValidateVariables compares the placeholders used by subject and body with
// declared. The template is valid only when every placeholder is declared and
// every declared variable is used.
func (s *EmailTemplateService) ValidateVariables(subject, body string, declared []string) models.TemplateValidation {
	used := email.Placeholders(subject, body)
	result := models.TemplateValidation{UnusedVariables: []string{}, UndefinedVariables: []string{}}
	for _, name := range used {
		if !slices.Contains(declared, name) {
			result.UndefinedVariables = append(result.UndefinedVariables, name)
		}
	}
	for _, name := range declared {
		if !slices.Contains(used, name) {
			result.UnusedVariables = append(result.UnusedVariables, name)
		}
	}
	result.Valid = len(result.UndefinedVariables) == 0 && len(result.UnusedVariables) == 0
	return result
}

// Preview renders the template with id using sample values. Known
// placeholders missing from sample show their description in brackets.
func (s *EmailTemplateService) Preview(ctx context.Context, id string, sample map[string]string) (*models.TemplatePreview, error) {
	tmpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, domain.NewNotFoundError(fmt.Sprintf("email template %s not found", id))
	}
	values := make(map[string]string, len(models.TemplateVariables))
	for _, v := range models.TemplateVariables {
		if sv, ok := sample[v.Name]; ok {
			values[v.Name] = sv
		} else {
			values[v.Name] = "[" + v.Description + "]"
		}
	}
	return &models.TemplatePreview{
		Subject: email.Substitute(tmpl.Subject, values),
		Body:    email.Substitute(tmpl.Body, values),
	}, nil
}

// Render fills the template of type t with the details of booking.
func (s *EmailTemplateService) Render(ctx context.Context, booking *models.MeetingBooking, t models.TemplateType) (domain.RenderedEmail, error) {
	tmpl, err := s.GetOrDefault(ctx, t)
	if err != nil {
		return domain.RenderedEmail{}, err
	}
	return email.Render(tmpl, booking), nil
}

// UsageStats describes every template type.
func (s *EmailTemplateService) UsageStats(ctx context.Context) ([]models.TemplateUsage, error) {
	stats := make([]models.TemplateUsage, 0, len(models.TemplateTypes))
	for _, t := range models.TemplateTypes {
		tmpl, err := s.GetByType(ctx, t)
		if err != nil {
			return nil, err
		}
		usage := models.TemplateUsage{Type: t}
		if tmpl != nil {
			usage.Exists = true
			usage.VariableCount = len(email.Placeholders(tmpl.Subject, tmpl.Body))
			usage.SubjectLength = utf8.RuneCountInString(tmpl.Subject)
			usage.BodyLength = utf8.RuneCountInString(tmpl.Body)
		}
		stats = append(stats, usage)
	}
	return stats, nil
}

// Export returns the stored templates as indented JSON.
func (s *EmailTemplateService) Export(ctx context.Context) ([]byte, error) {
	templates, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(templates, "", "  ")
}

// Import validates every template in data and replaces the stored set.
// Nothing is written when any template is invalid.
func (s *EmailTemplateService) Import(ctx context.Context, data []byte) ([]*models.EmailTemplate, error) {
	var templates []*models.EmailTemplate
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, domain.NewValidationError("failed to import email templates", err)
	}
	var problems []string
	for i, tmpl := range templates {
		if tmpl == nil {
			problems = append(problems, fmt.Sprintf("template %d: missing", i))
			continue
		}
		for _, p := range ValidateTemplate(tmpl) {
			problems = append(problems, fmt.Sprintf("template %d: %s", i, p))
		}
		tmpl.Variables = email.Placeholders(tmpl.Subject, tmpl.Body)
	}
	if len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid email templates", problems)
	}
	if err := s.Adapter.Restore(ctx, templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func defaultTemplate(t models.TemplateType) *models.EmailTemplate {
	for _, def := range models.DefaultEmailTemplates() {
		if def.Type == t {
			return def
		}
	}
	return nil
}
