package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	dto "lab-scheduler.com/lab-scheduler/internal/data_models"
	errs "lab-scheduler.com/lab-scheduler/internal/errors"
	"lab-scheduler.com/lab-scheduler/internal/http/validators"
	"lab-scheduler.com/lab-scheduler/internal/jobs"
	"lab-scheduler.com/lab-scheduler/internal/services"
)

type Handler struct {
	rotation    *services.RotationService
	taskGen     *services.TaskGenService
	meetings    *services.MeetingService
	equipment   *services.EquipmentService
	runner      *jobs.Runner
	horizonDays int
}

func NewHandler(
	rotation *services.RotationService,
	taskGen *services.TaskGenService,
	meetings *services.MeetingService,
	equipment *services.EquipmentService,
	runner *jobs.Runner,
	horizonDays int,
) *Handler {
	return &Handler{
		rotation:    rotation,
		taskGen:     taskGen,
		meetings:    meetings,
		equipment:   equipment,
		runner:      runner,
		horizonDays: horizonDays,
	}
}

// httpError maps a service error onto the wire. Exceptions carry their own
// status code; anything else is a 500.
func httpError(err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	var ex *errs.Exception
	if errors.As(err, &ex) {
		return echo.NewHTTPError(errs.StatusCode(err), ex.Message)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (h *Handler) AddQueueMember(c echo.Context) error {
	templateID := c.Param("templateID")
	if templateID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template id is required")
	}

	var req dto.AddQueueMemberRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if err := validators.ValidateAddQueueMemberRequest(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	queue, err := h.rotation.EnsureQueue(ctx, templateID)
	if err != nil {
		return httpError(err)
	}
	member, err := h.rotation.AddMember(ctx, queue.ID, req.PersonID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, member)
}

func (h *Handler) ListQueueMembers(c echo.Context) error {
	templateID := c.Param("templateID")
	if templateID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template id is required")
	}

	ctx := c.Request().Context()
	queue, err := h.rotation.EnsureQueue(ctx, templateID)
	if err != nil {
		return httpError(err)
	}
	members, err := h.rotation.ListMembers(ctx, queue.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"count":   len(members),
		"members": members,
	})
}

func (h *Handler) RemoveQueueMember(c echo.Context) error {
	templateID := c.Param("templateID")
	personID := c.Param("personID")
	if templateID == "" || personID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template id and person id are required")
	}

	ctx := c.Request().Context()
	queue, err := h.rotation.EnsureQueue(ctx, templateID)
	if err != nil {
		return httpError(err)
	}
	if err := h.rotation.DeactivateMember(ctx, queue.ID, personID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// jobRange resolves the requested generation range, defaulting to the
// configured horizon from today.
func (h *Handler) jobRange(req *dto.GenerateJobRequest) (time.Time, time.Time, error) {
	from, to, err := validators.ValidateGenerateJobRequest(req)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from.IsZero() {
		from = time.Now().UTC()
		to = from.AddDate(0, 0, h.horizonDays)
	}
	return from, to, nil
}

func (h *Handler) GenerateTasks(c echo.Context) error {
	var req dto.GenerateJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	from, to, err := h.jobRange(&req)
	if err != nil {
		return err
	}

	summary, err := h.taskGen.GenerateRange(c.Request().Context(), from, to, req.DryRun)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) GenerateMeetings(c echo.Context) error {
	var req dto.GenerateJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	from, to, err := h.jobRange(&req)
	if err != nil {
		return err
	}

	summary, err := h.meetings.GenerateMeetings(c.Request().Context(), from, to,
		services.DefaultMeetingTypes(), true, req.DryRun)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) RunSweep(c echo.Context) error {
	if err := h.runner.Run(c.Request().Context(), jobs.JobSweepExpirations); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "completed"})
}

func (h *Handler) RunReminders(c echo.Context) error {
	if err := h.runner.Run(c.Request().Context(), jobs.JobSendReminders); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "completed"})
}

func (h *Handler) CheckIn(c echo.Context) error {
	var req dto.CheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if err := validators.ValidateCheckRequest(&req); err != nil {
		return err
	}

	usageLog, err := h.equipment.CheckIn(c.Request().Context(), c.Param("id"), req.PersonID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, usageLog)
}

func (h *Handler) CheckOut(c echo.Context) error {
	var req dto.CheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if err := validators.ValidateCheckRequest(&req); err != nil {
		return err
	}

	usageLog, err := h.equipment.CheckOut(c.Request().Context(), c.Param("id"), req.PersonID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, usageLog)
}

func (h *Handler) CreateBooking(c echo.Context) error {
	var req dto.CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	start, end, err := validators.ValidateCreateBookingRequest(&req)
	if err != nil {
		return err
	}

	booking, err := h.equipment.CreateBooking(c.Request().Context(), req.EquipmentID, req.PersonID, start, end)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, booking)
}

func (h *Handler) CancelBooking(c echo.Context) error {
	personID := c.QueryParam("person_id")
	if personID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "person_id is required")
	}
	if err := h.equipment.CancelBooking(c.Request().Context(), c.Param("id"), personID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Enqueue(c echo.Context) error {
	var req dto.EnqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	start, end, err := validators.ValidateEnqueueRequest(&req)
	if err != nil {
		return err
	}

	entry, err := h.equipment.Enqueue(c.Request().Context(), c.Param("id"), req.PersonID, start, end)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) CancelQueueEntry(c echo.Context) error {
	personID := c.QueryParam("person_id")
	if personID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "person_id is required")
	}
	if err := h.equipment.CancelEntry(c.Request().Context(), c.Param("id"), personID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ConvertQueueEntry(c echo.Context) error {
	booking, err := h.equipment.ConvertToBooking(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, booking)
}

func (h *Handler) ClaimTask(c echo.Context) error {
	return h.taskAction(c, h.taskGen.Claim)
}

func (h *Handler) CompleteTask(c echo.Context) error {
	return h.taskAction(c, h.taskGen.Complete)
}

func (h *Handler) CancelTask(c echo.Context) error {
	return h.taskAction(c, h.taskGen.Cancel)
}

func (h *Handler) taskAction(c echo.Context, action func(ctx context.Context, instanceID, personID string) error) error {
	var req dto.TaskActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if err := validators.ValidateTaskActionRequest(&req); err != nil {
		return err
	}
	if err := action(c.Request().Context(), c.Param("id"), req.PersonID); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (h *Handler) RequestSwap(c echo.Context) error {
	var req dto.RequestSwapRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if err := validators.ValidateRequestSwapRequest(&req); err != nil {
		return err
	}

	swap, err := h.taskGen.RequestSwap(c.Request().Context(), c.Param("id"),
		req.RequesterID, req.TargetPersonID, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, swap)
}

func (h *Handler) ApproveSwap(c echo.Context) error {
	return h.resolveSwap(c, h.taskGen.ApproveSwap)
}

func (h *Handler) RejectSwap(c echo.Context) error {
	return h.resolveSwap(c, h.taskGen.RejectSwap)
}

func (h *Handler) CancelSwap(c echo.Context) error {
	return h.resolveSwap(c, h.taskGen.CancelSwap)
}

func (h *Handler) resolveSwap(c echo.Context, resolve func(ctx context.Context, swapID, personID string) error) error {
	var req dto.ResolveSwapRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if err := validators.ValidateResolveSwapRequest(&req); err != nil {
		return err
	}
	if err := resolve(c.Request().Context(), c.Param("id"), req.PersonID); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
