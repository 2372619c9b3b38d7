// Package call implements the MAKE_CALL node. A successful dispatch suspends
// the execution until the call-completion router resumes it.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/audio"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/protocol"
	"github.com/google/uuid"
)

// Failure reasons reported in the execution result.
const (
	ReasonCooldown         = "call_cooldown"
	ReasonInFlight         = "call_in_flight"
	ReasonAudioUnavailable = "audio_unavailable"
	ReasonDispatchFailed   = "dispatch_failed"
)

// CallLogs records placed calls and answers spacing questions.
type CallLogs interface {
	LatestForPhone(ctx context.Context, tenantID, phone string) (*models.CallLog, error)
	Save(ctx context.Context, log *models.CallLog) error
}

// AudioResolver picks the audio a call plays.
type AudioResolver interface {
	Resolve(ctx context.Context, tenantID string, cfg *models.MakeCallConfig, contact *models.Contact) (audio.Source, error)
}

// Options bounds call spacing.
type Options struct {
	// Cooldown is the minimum time between two calls to the same number.
	Cooldown time.Duration
	// InFlightTimeout is how long an unfinished call keeps blocking new ones.
	InFlightTimeout time.Duration
}

type Executor struct {
	logs       CallLogs
	audio      AudioResolver
	compliance protocol.ComplianceGate
	telephony  protocol.Telephony
	options    Options
	logger     *slog.Logger
}

func New(
	logger *slog.Logger,
	logs CallLogs,
	resolver AudioResolver,
	compliance protocol.ComplianceGate,
	telephony protocol.Telephony,
	options Options,
) *Executor {
	if options.Cooldown <= 0 {
		options.Cooldown = 5 * time.Minute
	}

	if options.InFlightTimeout <= 0 {
		options.InFlightTimeout = 5 * time.Minute
	}

	return &Executor{
		logs:       logs,
		audio:      resolver,
		compliance: compliance,
		telephony:  telephony,
		options:    options,
		logger:     logger,
	}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeMakeCall
}

func (e *Executor) Name() string {
	return "Make Call"
}

func (e *Executor) Description() string {
	return "Places an outbound voice call and waits for its completion status"
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"audio_url": map[string]any{
				"type":        "string",
				"description": "Pre-generated audio for this journey",
			},
			"voice_template_id": map[string]any{
				"type":        "string",
				"description": "Voice script rendered per contact and converted to speech",
			},
			"voice": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"voice_id": map[string]any{"type": "string"},
					"speed":    map[string]any{"type": "number", "minimum": 0},
				},
			},
			"audio_file": map[string]any{
				"type":        "string",
				"description": "Static audio file reference",
			},
			"transfer_number": map[string]any{
				"type":     "string",
				"examples": []string{"+15550001234"},
			},
			"from_number": map[string]any{
				"type":        "string",
				"description": "Caller id. Defaults to the tenant's caller id",
			},
		},
		"anyOf": []map[string]any{
			{"required": []string{"audio_url"}},
			{"required": []string{"voice_template_id"}},
			{"required": []string{"audio_file"}},
		},
	}
}

func (e *Executor) Execute(ctx context.Context, in *protocol.ExecutionInput) (protocol.Result, error) {
	cfg, err := protocol.ConfigAs[*models.MakeCallConfig](in.Node)
	if err != nil {
		return protocol.Result{}, err
	}

	contact := in.Contact
	tenantID := in.TenantID()

	if contact.Phone == "" {
		return protocol.Failure("missing_phone", errors.New("contact has no phone number")), nil
	}

	if contact.OptedOut {
		return protocol.Result{Outcome: models.OutcomeOptedOut, Reason: "contact opted out"}, nil
	}

	last, err := e.logs.LatestForPhone(ctx, tenantID, contact.Phone)
	if err != nil {
		return protocol.Failure("call_log_lookup_failed", err), nil
	}

	if last != nil {
		since := in.Now.Sub(last.StartedAt)

		if last.InFlight && since < e.options.InFlightTimeout {
			return protocol.Failure(ReasonInFlight, fmt.Errorf("call %s to %s is still in progress", last.CorrelationID, contact.Phone)), nil
		}

		if since < e.options.Cooldown {
			return protocol.Failure(ReasonCooldown, fmt.Errorf("last call to %s was %s ago", contact.Phone, since.Round(time.Second))), nil
		}
	}

	source, err := e.audio.Resolve(ctx, tenantID, cfg, contact)
	if err != nil {
		if errors.Is(err, audio.ErrNoAudioSource) {
			return protocol.Result{}, protocol.NewConfigError(in.Node.ID, "call has no audio source", err)
		}

		return protocol.Failure(ReasonAudioUnavailable, err), nil
	}

	if e.compliance != nil {
		decision, err := e.compliance.CheckCompliance(ctx, tenantID, contact, protocol.ActionCall, map[string]any{
			"journey_id": in.Journey.ID,
			"node_id":    in.Node.ID,
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
		from = in.Settings.DefaultCallerID
	}

	placed, err := e.telephony.PlaceCall(ctx, protocol.CallRequest{
		TenantID:       tenantID,
		To:             contact.Phone,
		From:           from,
		AudioRef:       source.Ref,
		TransferNumber: cfg.TransferNumber,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "call dispatch failed",
			"node_id", in.Node.ID,
			"contact_id", contact.ID,
			"error", err,
		)

		return protocol.Failure(ReasonDispatchFailed, err), nil
	}

	log := &models.CallLog{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		ContactID:     contact.ID,
		Phone:         contact.Phone,
		CorrelationID: placed.CorrelationID,
		Status:        "initiated",
		InFlight:      true,
		StartedAt:     in.Now,
	}

	if in.Execution != nil {
		log.ExecutionID = in.Execution.ID
	}

	err = e.logs.Save(ctx, log)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to save call log",
			"correlation_id", placed.CorrelationID,
			"error", err,
		)
	}

	e.logger.InfoContext(ctx, "call dispatched",
		"node_id", in.Node.ID,
		"contact_id", contact.ID,
		"correlation_id", placed.CorrelationID,
		"audio_source", source.Kind,
	)

	return protocol.Result{
		Outcome: models.OutcomeDispatched,
		Suspend: &protocol.Suspension{CorrelationID: placed.CorrelationID, Phone: contact.Phone},
		Data: map[string]any{
			"correlation_id":              placed.CorrelationID,
			"audio_ref":                   source.Ref,
			"audio_source":                source.Kind,
			"audio_cached":                source.Cached,
			"waiting_for_call_completion": true,
		},
	}, nil
}
