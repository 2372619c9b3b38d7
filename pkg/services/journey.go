package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/journey/pkg/graph"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrJourneyNotFound is returned when a journey is not found.
var ErrJourneyNotFound = persistence.ErrJourneyNotFound

// GraphCache drops cached graphs once a journey changes.
type GraphCache interface {
	InvalidateJourney(journeyID string)
}

// ConfigValidator checks a node config against the schema of its type.
type ConfigValidator interface {
	ValidateConfig(node *models.JourneyNode) error
}

// transitions lists the statuses each lifecycle operation may start from.
var transitions = map[models.JourneyStatus][]models.JourneyStatus{
	models.JourneyStatusActive:   {models.JourneyStatusDraft},
	models.JourneyStatusPaused:   {models.JourneyStatusActive},
	models.JourneyStatusArchived: {models.JourneyStatusDraft, models.JourneyStatusActive, models.JourneyStatusPaused},
}

type Journey struct {
	persistence persistence.Persistence
	validate    *validator.Validate
	configs     ConfigValidator
	cache       GraphCache
	clock       func() time.Time
}

// NewJourney creates a new journey service. configs and cache may be nil.
func NewJourney(persistence persistence.Persistence, validate *validator.Validate, configs ConfigValidator, cache GraphCache) *Journey {
	return &Journey{
		persistence: persistence,
		validate:    validate,
		configs:     configs,
		cache:       cache,
		clock:       time.Now,
	}
}

// HealthCheck checks the health of the persistence layer.
func (j *Journey) HealthCheck(ctx context.Context) (string, bool) {
	if j.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := j.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateJourneyRequest contains the fields of a new journey.
type CreateJourneyRequest struct {
	TenantID        string `validate:"required"`
	Name            string `validate:"required,min=3"`
	Description     string
	Schedule        *models.ScheduleConstraints
	EntryCriteria   map[string]any
	RemovalCriteria models.RemovalCriteria
	AutoEnroll      bool
}

// UpdateJourneyRequest changes the given fields. Nil fields are kept.
type UpdateJourneyRequest struct {
	Name            *string `validate:"omitempty,min=3"`
	Description     *string
	Schedule        *models.ScheduleConstraints
	RemovalCriteria *models.RemovalCriteria
	AutoEnroll      *bool
}

// Create stores a new DRAFT journey.
func (j *Journey) Create(ctx context.Context, req CreateJourneyRequest) (*models.Journey, error) {
	err := j.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("Create", "invalid_journey", err.Error(), ErrInvalidRequest)
	}

	now := j.clock().UTC()

	journey := &models.Journey{
		ID:              uuid.NewString(),
		TenantID:        req.TenantID,
		Name:            req.Name,
		Description:     req.Description,
		Status:          models.JourneyStatusDraft,
		Schedule:        req.Schedule,
		EntryCriteria:   req.EntryCriteria,
		RemovalCriteria: req.RemovalCriteria,
		AutoEnroll:      req.AutoEnroll,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if journey.RemovalCriteria.WebhookToken == "" {
		journey.RemovalCriteria.WebhookToken = uuid.NewString()
	}

	err = j.persistence.Journeys().Save(ctx, journey)
	if err != nil {
		return nil, fmt.Errorf("failed to save journey: %w", err)
	}

	return journey, nil
}

// Get returns a journey owned by tenantID.
func (j *Journey) Get(ctx context.Context, tenantID, id string) (*models.Journey, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	journey, err := j.persistence.Journeys().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if journey.TenantID != tenantID {
		return nil, persistence.NewJourneyError("Get", id, persistence.ErrJourneyNotFound)
	}

	return journey, nil
}

// List returns the tenant's journeys.
func (j *Journey) List(ctx context.Context, tenantID string) ([]*models.Journey, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	journeys, err := j.persistence.Journeys().List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}

	return journeys, nil
}

// Update edits the journey's settings. Archived journeys are read-only.
func (j *Journey) Update(ctx context.Context, tenantID, id string, req UpdateJourneyRequest) (*models.Journey, error) {
	err := j.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("Update", "invalid_journey", err.Error(), ErrInvalidRequest)
	}

	journey, err := j.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if journey.Status == models.JourneyStatusArchived {
		return nil, ErrCannotModifyArchived
	}

	if req.Name != nil {
		journey.Name = *req.Name
	}

	if req.Description != nil {
		journey.Description = *req.Description
	}

	if req.Schedule != nil {
		journey.Schedule = req.Schedule
	}

	if req.RemovalCriteria != nil {
		journey.RemovalCriteria = *req.RemovalCriteria
	}

	if req.AutoEnroll != nil {
		journey.AutoEnroll = *req.AutoEnroll
	}

	return j.save(ctx, journey)
}

// Launch validates the graph and opens a DRAFT journey for enrollment.
func (j *Journey) Launch(ctx context.Context, tenantID, id string) (*models.Journey, error) {
	journey, err := j.transition(ctx, tenantID, id, models.JourneyStatusActive)
	if err != nil {
		return nil, err
	}

	err = j.ValidateGraph(ctx, journey.ID)
	if err != nil {
		return nil, err
	}

	now := j.clock().UTC()
	journey.Status = models.JourneyStatusActive
	journey.StartedAt = &now

	return j.save(ctx, journey)
}

// Pause stops an ACTIVE journey; due executions are deferred until it resumes.
func (j *Journey) Pause(ctx context.Context, tenantID, id string) (*models.Journey, error) {
	journey, err := j.transition(ctx, tenantID, id, models.JourneyStatusPaused)
	if err != nil {
		return nil, err
	}

	now := j.clock().UTC()
	journey.Status = models.JourneyStatusPaused
	journey.PausedAt = &now

	return j.save(ctx, journey)
}

// Resume reopens a PAUSED journey after checking its graph again.
func (j *Journey) Resume(ctx context.Context, tenantID, id string) (*models.Journey, error) {
	journey, err := j.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if journey.Status != models.JourneyStatusPaused {
		return nil, fmt.Errorf("resume %s journey: %w", journey.Status, ErrInvalidTransition)
	}

	err = j.ValidateGraph(ctx, journey.ID)
	if err != nil {
		return nil, err
	}

	journey.Status = models.JourneyStatusActive
	journey.PausedAt = nil

	return j.save(ctx, journey)
}

// Archive closes a journey for good.
func (j *Journey) Archive(ctx context.Context, tenantID, id string) (*models.Journey, error) {
	journey, err := j.transition(ctx, tenantID, id, models.JourneyStatusArchived)
	if err != nil {
		return nil, err
	}

	now := j.clock().UTC()
	journey.Status = models.JourneyStatusArchived
	journey.ArchivedAt = &now

	return j.save(ctx, journey)
}

// Delete removes a DRAFT or ARCHIVED journey and its nodes.
func (j *Journey) Delete(ctx context.Context, tenantID, id string) error {
	journey, err := j.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	if journey.Status == models.JourneyStatusActive || journey.Status == models.JourneyStatusPaused {
		return fmt.Errorf("delete %s journey: %w", journey.Status, ErrInvalidTransition)
	}

	err = j.persistence.Journeys().Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete journey: %w", err)
	}

	j.invalidate(id)

	return nil
}

// ValidateGraph checks that the journey's nodes form a launchable graph.
func (j *Journey) ValidateGraph(ctx context.Context, journeyID string) error {
	nodes, err := j.persistence.Nodes().ListByJourney(ctx, journeyID)
	if err != nil {
		return fmt.Errorf("failed to load nodes: %w", err)
	}

	return ValidateNodes(nodes, j.configs)
}

// ValidateNodes checks node configs and the graph they form.
func ValidateNodes(nodes []*models.JourneyNode, configs ConfigValidator) error {
	var errs []error

	if configs != nil {
		for _, n := range nodes {
			err := configs.ValidateConfig(n)
			if err != nil {
				errs = append(errs, fmt.Errorf("node %s: %w", n.ID, err))
			}
		}
	}

	err := graph.New(nodes).Validate()
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
	}

	return nil
}

func (j *Journey) transition(ctx context.Context, tenantID, id string, to models.JourneyStatus) (*models.Journey, error) {
	journey, err := j.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(transitions[to], journey.Status) {
		return nil, fmt.Errorf("%s -> %s: %w", journey.Status, to, ErrInvalidTransition)
	}

	return journey, nil
}

func (j *Journey) save(ctx context.Context, journey *models.Journey) (*models.Journey, error) {
	journey.UpdatedAt = j.clock().UTC()

	err := j.persistence.Journeys().Save(ctx, journey)
	if err != nil {
		return nil, fmt.Errorf("failed to save journey: %w", err)
	}

	j.invalidate(journey.ID)

	return journey, nil
}

func (j *Journey) invalidate(journeyID string) {
	if j.cache != nil {
		j.cache.InvalidateJourney(journeyID)
	}
}
