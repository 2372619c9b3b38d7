// Package contactstatus implements the UPDATE_CONTACT_STATUS node.
package contactstatus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/protocol"
)

// ContactStore persists the updated contact.
type ContactStore interface {
	Save(ctx context.Context, contact *models.Contact) error
}

// Executor sets the contact's lead status.
type Executor struct {
	contacts ContactStore
	logger   *slog.Logger
}

func New(logger *slog.Logger, contacts ContactStore) *Executor {
	return &Executor{contacts: contacts, logger: logger}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeUpdateContactStatus
}

func (e *Executor) Name() string {
	return "Update Contact Status"
}

func (e *Executor) Description() string {
	return "Sets the contact's lead status from the tenant's status list, optionally ending the journey"
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{
				"type":        "string",
				"description": "Lead status; must be one of the tenant's configured statuses",
				"minLength":   1,
			},
			"end_journey": map[string]any{
				"type":    "boolean",
				"default": false,
			},
		},
		"required": []string{"status"},
	}
}

func (e *Executor) Execute(ctx context.Context, in *protocol.ExecutionInput) (protocol.Result, error) {
	cfg, err := protocol.ConfigAs[*models.UpdateContactStatusConfig](in.Node)
	if err != nil {
		return protocol.Result{}, err
	}

	var vocabulary []string
	if in.Settings != nil {
		vocabulary = in.Settings.LeadStatuses
	}

	status, ok := Canonical(vocabulary, cfg.Status)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(in.Node.ID,
			fmt.Sprintf("status %q is not one of the tenant's lead statuses", cfg.Status), nil)
	}

	previous := in.Contact.LeadStatus
	in.Contact.LeadStatus = status
	in.Contact.UpdatedAt = in.Now

	err = e.contacts.Save(ctx, in.Contact)
	if err != nil {
		in.Contact.LeadStatus = previous

		return protocol.Failure("contact_update_failed", err), nil
	}

	e.logger.InfoContext(ctx, "contact status updated",
		"contact_id", in.Contact.ID,
		"from", previous,
		"to", status,
		"end_journey", cfg.EndJourney,
	)

	return protocol.Result{
		Outcome:    models.OutcomeUpdated,
		EndJourney: cfg.EndJourney,
		Data: map[string]any{
			"previous_status": previous,
			"status":          status,
			"updated_at":      in.Now.Format(time.RFC3339),
		},
	}, nil
}

// Canonical matches status case-insensitively against vocabulary and returns
// the vocabulary's spelling. An empty vocabulary accepts any non-blank status.
func Canonical(vocabulary []string, status string) (string, bool) {
	status = strings.TrimSpace(status)
	if status == "" {
		return "", false
	}

	if len(vocabulary) == 0 {
		return status, true
	}

	for _, s := range vocabulary {
		if strings.EqualFold(s, status) {
			return s, true
		}
	}

	return "", false
}
