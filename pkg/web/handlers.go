package web

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukex/blockflow/pkg/layout"
	"github.com/dukex/blockflow/pkg/services"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	logger      *slog.Logger
	workflows   *services.Workflow
	sync        *services.Sync
	duplicator  *services.Duplicator
	autoLayout  *services.AutoLayout
	checkpoints *services.Checkpoints
	workspaces  *services.Workspaces
}

func NewAPIHandlers(
	logger *slog.Logger,
	workflows *services.Workflow,
	sync *services.Sync,
	duplicator *services.Duplicator,
	autoLayout *services.AutoLayout,
	checkpoints *services.Checkpoints,
	workspaces *services.Workspaces,
) *APIHandlers {
	return &APIHandlers{
		logger:      logger.With("component", "web"),
		workflows:   workflows,
		sync:        sync,
		duplicator:  duplicator,
		autoLayout:  autoLayout,
		checkpoints: checkpoints,
		workspaces:  workspaces,
	}
}

func (h *APIHandlers) SyncRead(c fiber.Ctx) error {
	workflows, err := h.sync.Read(c.Context(), userID(c), c.Query("workspaceId"))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(SyncReadResponse{Workflows: workflows})
}

func (h *APIHandlers) SyncWrite(c fiber.Ctx) error {
	var req services.SyncRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result, err := h.sync.Write(c.Context(), userID(c), req)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) Duplicate(c fiber.Ctx) error {
	var req services.DuplicateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req.SourceWorkflowID = c.Params("id")

	result, err := h.duplicator.Duplicate(c.Context(), userID(c), req)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) AutoLayout(c fiber.Ctx) error {
	var cfg layout.Config

	// An empty body lays out with the defaults.
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&cfg); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.autoLayout.Apply(c.Context(), userID(c), c.Params("id"), cfg)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"blockCount":     result.BlockCount,
		"layoutedBlocks": result.LayoutedBlocks,
		"direction":      result.Direction,
	})
}

func (h *APIHandlers) Status(c fiber.Ctx) error {
	status, err := h.workflows.Status(c.Context(), userID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) CreateCheckpoint(c fiber.Ctx) error {
	var req services.CreateCheckpointRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	checkpoint, err := h.checkpoints.Create(c.Context(), userID(c), req)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":         checkpoint.ID,
		"userId":     checkpoint.UserID,
		"workflowId": checkpoint.WorkflowID,
		"chatId":     checkpoint.ChatID,
		"messageId":  checkpoint.MessageID,
		"createdAt":  checkpoint.CreatedAt,
		"updatedAt":  checkpoint.UpdatedAt,
	})
}

func (h *APIHandlers) ListCheckpoints(c fiber.Ctx) error {
	req := services.ListCheckpointsRequest{ChatID: c.Query("chatId")}

	var fields []services.FieldError

	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			fields = append(fields, services.FieldError{Field: "limit", Message: "must be an integer"})
		}

		req.Limit = n
	}

	if offset := c.Query("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			fields = append(fields, services.FieldError{Field: "offset", Message: "must be an integer"})
		}

		req.Offset = n
	}

	if len(fields) > 0 {
		return badRequest(c, "Invalid query parameters", fields...)
	}

	checkpoints, err := h.checkpoints.List(c.Context(), userID(c), req)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(ListCheckpointsResponse{Checkpoints: checkpoints})
}

func (h *APIHandlers) RevertCheckpoint(c fiber.Ctx) error {
	var req RevertCheckpointRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result, err := h.checkpoints.Revert(c.Context(), userID(c), req.CheckpointID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CreateWorkspace(c fiber.Ctx) error {
	var req services.CreateWorkspaceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workspace, err := h.workspaces.Create(c.Context(), userID(c), req)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workspace)
}

func (h *APIHandlers) AddWorkspaceMember(c fiber.Ctx) error {
	var req services.AddMemberRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	member, err := h.workspaces.AddMember(c.Context(), userID(c), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(member)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	persistenceCheck, ok := h.workflows.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Blockflow API is unhealthy"
	httpStatus := http.StatusServiceUnavailable

	if ok {
		status = "healthy"
		message = "Blockflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(HealthResponse{
		Status:   status,
		Message:  message,
		Checkers: map[string]string{"persistence": persistenceCheck},
	})
}
