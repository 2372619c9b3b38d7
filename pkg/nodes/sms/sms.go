// Package sms implements the SEND_SMS node.
package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/numberpool"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/dukex/journey/pkg/template"
)

// NumberPool picks and counts sending numbers.
type NumberPool interface {
	Select(ctx context.Context, tenantID, contactID string, numbers []models.SendingNumber) (string, error)
	Record(ctx context.Context, tenantID, number string) error
}

// Executor renders and sends one SMS to the contact.
type Executor struct {
	compliance protocol.ComplianceGate
	messenger  protocol.Messenger
	templates  protocol.TemplateRenderer
	pool       NumberPool
	logger     *slog.Logger
}

// New creates the executor. compliance and templates may be nil: without a
// gate every message is allowed, without a renderer only inline content works.
func New(
	logger *slog.Logger,
	compliance protocol.ComplianceGate,
	messenger protocol.Messenger,
	templates protocol.TemplateRenderer,
	pool NumberPool,
) *Executor {
	return &Executor{
		compliance: compliance,
		messenger:  messenger,
		templates:  templates,
		pool:       pool,
		logger:     logger,
	}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeSendSMS
}

func (e *Executor) Name() string {
	return "Send SMS"
}

func (e *Executor) Description() string {
	return "Sends a text message rendered from a template or inline content"
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content_mode": map[string]any{
				"type": "string",
				"enum": []string{"template", "ai_template", "content"},
			},
			"template_id": map[string]any{
				"type":        "string",
				"description": "Stored template rendered by the content service",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Inline message. Supports {{firstName}}, {{contact.field}} and {{bookingLink}}",
				"examples":    []string{"Hi {{firstName}}, book your visit: {{bookingLink}}"},
			},
			"include_booking_link": map[string]any{
				"type":    "boolean",
				"default": false,
			},
			"from_number": map[string]any{
				"type":        "string",
				"description": "Sender override. The tenant number pool is used when empty",
			},
		},
		"anyOf": []map[string]any{
			{"required": []string{"template_id"}},
			{"required": []string{"content"}},
		},
	}
}

func (e *Executor) Execute(ctx context.Context, in *protocol.ExecutionInput) (protocol.Result, error) {
	cfg, err := protocol.ConfigAs[*models.SendSMSConfig](in.Node)
	if err != nil {
		return protocol.Result{}, err
	}

	contact := in.Contact

	if contact.OptedOut {
		return protocol.Result{Outcome: models.OutcomeOptedOut, Reason: "contact opted out"}, nil
	}

	if contact.Phone == "" {
		return protocol.Failure("missing_phone", errors.New("contact has no phone number")), nil
	}

	tenantID := in.TenantID()

	vars := template.Variables(contact, map[string]any{
		"journeyId":        in.Journey.ID,
		"journeyContactId": in.JourneyContact.ID,
	})

	var link string
	if cfg.IncludeBookingLink && in.Settings != nil && in.Settings.BookingURL != "" {
		link = BookingLink(in.Settings.BookingURL, contact.ID, in.Journey.ID)
		vars["bookingLink"] = link
	}

	body, err := e.render(ctx, in, cfg, vars)
	if err != nil {
		if protocol.IsConfigError(err) {
			return protocol.Result{}, err
		}

		return protocol.Failure("render_failed", err), nil
	}

	if link != "" && !strings.Contains(body, link) {
		body = strings.TrimRight(body, " \n") + " " + link
	}

	if strings.TrimSpace(body) == "" {
		return protocol.Failure("empty_message", errors.New("rendered message is empty")), nil
	}

	if e.compliance != nil {
		decision, err := e.compliance.CheckCompliance(ctx, tenantID, contact, protocol.ActionSMS, map[string]any{
			"journey_id": in.Journey.ID,
			"node_id":    in.Node.ID,
			"body":       body,
		})
		if err != nil {
			return protocol.Failure("compliance_check_failed", err), nil
		}

		if !decision.CanProceed {
			return protocol.Result{
				Outcome: models.OutcomeBlocked,
				Reason:  "compliance",
				Error:   decision.Message,
				Data:    map[string]any{"violations": decision.Violations},
			}, nil
		}
	}

	from := cfg.FromNumber
	if from == "" && in.Settings != nil {
		from, err = e.pool.Select(ctx, tenantID, contact.ID, in.Settings.SendingNumbers)
		if err != nil {
			if errors.Is(err, numberpool.ErrAllNumbersCapped) {
				return protocol.Failure("numbers_capped", err), nil
			}

			return protocol.Failure("number_selection_failed", err), nil
		}
	}

	sent, err := e.messenger.SendSMS(ctx, tenantID, contact.Phone, body, from)
	if err != nil {
		e.logger.WarnContext(ctx, "sms dispatch failed",
			"node_id", in.Node.ID,
			"contact_id", contact.ID,
			"error", err,
		)

		return protocol.Failure("send_failed", err), nil
	}

	if sent.From != "" {
		from = sent.From
	}

	err = e.pool.Record(ctx, tenantID, from)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to record sending number usage", "number", from, "error", err)
	}

	return protocol.Result{
		Outcome: models.OutcomeSent,
		Data: map[string]any{
			"message_id": sent.ID,
			"from":       from,
			"body":       body,
		},
	}, nil
}

func (e *Executor) render(ctx context.Context, in *protocol.ExecutionInput, cfg *models.SendSMSConfig, vars map[string]any) (string, error) {
	switch mode := cfg.Mode(); mode {
	case models.ContentModeContent:
		if cfg.Content == "" {
			return "", protocol.NewConfigError(in.Node.ID, "sms has no content", nil)
		}

		return template.Render(cfg.Content, vars), nil
	case models.ContentModeTemplate, models.ContentModeAITemplate:
		if cfg.TemplateID == "" {
			return "", protocol.NewConfigError(in.Node.ID, "sms template_id is required in "+string(mode)+" mode", nil)
		}

		if e.templates == nil {
			return "", protocol.NewConfigError(in.Node.ID, "no template renderer configured", nil)
		}

		kind := protocol.TemplateKindSMS
		if mode == models.ContentModeAITemplate {
			kind = protocol.TemplateKindAI
		}

		text, err := e.templates.Render(ctx, in.TenantID(), protocol.TemplateRef{ID: cfg.TemplateID, Kind: kind}, vars)
		if err != nil {
			return "", fmt.Errorf("render template %s: %w", cfg.TemplateID, err)
		}

		return template.Render(text, vars), nil
	default:
		return "", protocol.NewConfigError(in.Node.ID, fmt.Sprintf("unknown content mode %q", mode), nil)
	}
}

// BookingLink appends the contact and journey to the tenant's booking page URL.
func BookingLink(base, contactID, journeyID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}

	q := u.Query()
	q.Set("contact", contactID)
	q.Set("journey", journeyID)
	u.RawQuery = q.Encode()

	return u.String()
}
