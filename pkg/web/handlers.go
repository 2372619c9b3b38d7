// Package web provides HTTP handlers and REST API endpoints for journey management.
package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/journey/pkg/engine"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Engine is the part of the journey engine exposed over HTTP.
type Engine interface {
	EnrollContact(ctx context.Context, tenantID, journeyID, contactID, source string, data map[string]any) (*models.JourneyContact, error)
	RemoveContact(ctx context.Context, tenantID, journeyID, contactID string, pauseOnly bool) error
	ResumeContact(ctx context.Context, tenantID, journeyID, contactID string) error
	HandleCallCompletion(ctx context.Context, c engine.CallCompletion) error
	CheckRemovalCriteriaForWebhook(ctx context.Context, tenantID, journeyID, contactID string, payload map[string]any) (bool, error)
}

// HealthChecker reports the health of one dependency.
type HealthChecker interface {
	HealthCheck() (string, bool)
}

type APIHandlers struct {
	journeys  *services.Journey
	nodes     *services.Node
	engine    Engine
	validator *validator.Validate
	registry  HealthChecker
}

func NewAPIHandlers(
	journeys *services.Journey,
	nodes *services.Node,
	engine Engine,
	validator *validator.Validate,
	registry HealthChecker,
) *APIHandlers {
	return &APIHandlers{
		journeys:  journeys,
		nodes:     nodes,
		engine:    engine,
		validator: validator,
		registry:  registry,
	}
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Post("/calls/status", h.CallStatus)

	j := router.Group("/journeys")
	j.Get("/", h.GetJourneys)
	j.Post("/", h.CreateJourney)
	j.Get("/:id", h.GetJourney)
	j.Patch("/:id", h.UpdateJourney)
	j.Delete("/:id", h.DeleteJourney)
	j.Post("/:id/launch", h.LaunchJourney)
	j.Post("/:id/pause", h.PauseJourney)
	j.Post("/:id/resume", h.ResumeJourney)
	j.Post("/:id/archive", h.ArchiveJourney)

	j.Get("/:id/nodes", h.GetJourneyNodes)
	j.Post("/:id/nodes", h.CreateJourneyNode)
	j.Get("/:id/nodes/:nodeId", h.GetJourneyNode)
	j.Patch("/:id/nodes/:nodeId", h.UpdateJourneyNode)
	j.Delete("/:id/nodes/:nodeId", h.DeleteJourneyNode)

	j.Post("/:id/contacts", h.EnrollContact)
	j.Delete("/:id/contacts/:contactId", h.RemoveContact)
	j.Post("/:id/contacts/:contactId/resume", h.ResumeContact)
	j.Post("/:id/removal-webhook", h.RemovalWebhook)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.journeys.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Journey API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Journey API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func tenantID(c fiber.Ctx) string {
	return c.Get(TenantHeader)
}

func (h *APIHandlers) GetJourneys(c fiber.Ctx) error {
	journeys, err := h.journeys.List(c.Context(), tenantID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journeys)
}

func (h *APIHandlers) GetJourney(c fiber.Ctx) error {
	journey, err := h.journeys.Get(c.Context(), tenantID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journey)
}

func (h *APIHandlers) CreateJourney(c fiber.Ctx) error {
	var req CreateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.journeys.Create(c.Context(), services.CreateJourneyRequest{
		TenantID:        tenantID(c),
		Name:            req.Name,
		Description:     req.Description,
		Schedule:        req.Schedule,
		EntryCriteria:   req.EntryCriteria,
		RemovalCriteria: req.RemovalCriteria,
		AutoEnroll:      req.AutoEnroll,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateJourney(c fiber.Ctx) error {
	var req UpdateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.journeys.Update(c.Context(), tenantID(c), c.Params("id"), services.UpdateJourneyRequest{
		Name:            req.Name,
		Description:     req.Description,
		Schedule:        req.Schedule,
		RemovalCriteria: req.RemovalCriteria,
		AutoEnroll:      req.AutoEnroll,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteJourney(c fiber.Ctx) error {
	err := h.journeys.Delete(c.Context(), tenantID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type lifecycleFunc func(ctx context.Context, tenantID, id string) (*models.Journey, error)

func (h *APIHandlers) lifecycle(c fiber.Ctx, op lifecycleFunc) error {
	journey, err := op(c.Context(), tenantID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journey)
}

func (h *APIHandlers) LaunchJourney(c fiber.Ctx) error {
	return h.lifecycle(c, h.journeys.Launch)
}

func (h *APIHandlers) PauseJourney(c fiber.Ctx) error {
	return h.lifecycle(c, h.journeys.Pause)
}

func (h *APIHandlers) ResumeJourney(c fiber.Ctx) error {
	return h.lifecycle(c, h.journeys.Resume)
}

func (h *APIHandlers) ArchiveJourney(c fiber.Ctx) error {
	return h.lifecycle(c, h.journeys.Archive)
}

func (h *APIHandlers) GetJourneyNodes(c fiber.Ctx) error {
	nodes, err := h.nodes.ListNodes(c.Context(), tenantID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(nodes)
}

func (h *APIHandlers) GetJourneyNode(c fiber.Ctx) error {
	node, err := h.nodes.GetNode(c.Context(), tenantID(c), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) CreateJourneyNode(c fiber.Ctx) error {
	var req CreateNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	node, err := h.nodes.AddNode(c.Context(), tenantID(c), c.Params("id"), services.AddNodeRequest{
		Type:        req.Type,
		Name:        req.Name,
		Config:      req.Config,
		Connections: req.Connections,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) UpdateJourneyNode(c fiber.Ctx) error {
	var req UpdateNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	node, err := h.nodes.UpdateNode(c.Context(), tenantID(c), c.Params("id"), c.Params("nodeId"), services.UpdateNodeRequest{
		Name:        req.Name,
		Config:      req.Config,
		Connections: req.Connections,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) DeleteJourneyNode(c fiber.Ctx) error {
	err := h.nodes.DeleteNode(c.Context(), tenantID(c), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnrollContact(c fiber.Ctx) error {
	var req EnrollRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	source := req.Source
	if source == "" {
		source = "api"
	}

	jc, err := h.engine.EnrollContact(c.Context(), tenantID(c), c.Params("id"), req.ContactID, source, req.Data)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(jc)
}

// RemoveContact removes a contact from the journey. With ?pause=true the
// membership is paused instead and can be resumed later.
func (h *APIHandlers) RemoveContact(c fiber.Ctx) error {
	pauseOnly := false

	if pauseStr := c.Query("pause"); pauseStr != "" {
		parsed, err := strconv.ParseBool(pauseStr)
		if err != nil {
			return badRequest(c, "Invalid pause parameter")
		}

		pauseOnly = parsed
	}

	err := h.engine.RemoveContact(c.Context(), tenantID(c), c.Params("id"), c.Params("contactId"), pauseOnly)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ResumeContact(c fiber.Ctx) error {
	err := h.engine.ResumeContact(c.Context(), tenantID(c), c.Params("id"), c.Params("contactId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// CallStatus accepts the telephony provider's end-of-call report.
func (h *APIHandlers) CallStatus(c fiber.Ctx) error {
	var req CallStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.engine.HandleCallCompletion(c.Context(), engine.CallCompletion{
		CorrelationID:   req.CorrelationID,
		Status:          req.Status,
		Disposition:     req.Disposition,
		Phone:           req.Phone,
		DurationSeconds: req.DurationSeconds,
		Transferred:     req.Transferred,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// RemovalWebhook checks a contact against the journey's removal criteria
// using the posted payload. The journey's webhook token must be presented.
func (h *APIHandlers) RemovalWebhook(c fiber.Ctx) error {
	journey, err := h.journeys.Get(c.Context(), tenantID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	expected := journey.RemovalCriteria.WebhookToken
	if expected != "" && subtle.ConstantTimeCompare([]byte(c.Get(WebhookTokenHeader)), []byte(expected)) != 1 {
		return unauthorized(c, "invalid webhook token")
	}

	var req RemovalWebhookRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	removed, err := h.engine.CheckRemovalCriteriaForWebhook(c.Context(), journey.TenantID, journey.ID, req.ContactID, req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(RemovalWebhookResponse{Removed: removed})
}
