package http

import (
	"time"

	"github.com/labstack/echo/v4"

	middleware "lab-scheduler.com/lab-scheduler/internal/http/middlewares"
)

func Register(e *echo.Echo, h *Handler, rateLimitPerMinute int) {
	e.Use(middleware.RateLimiter(rateLimitPerMinute, time.Minute))

	e.GET("/health", h.Health)

	e.POST("/rotation/queues/:templateID/members", h.AddQueueMember)
	e.GET("/rotation/queues/:templateID/members", h.ListQueueMembers)
	e.DELETE("/rotation/queues/:templateID/members/:personID", h.RemoveQueueMember)

	e.POST("/jobs/generate-tasks", h.GenerateTasks)
	e.POST("/jobs/generate-meetings", h.GenerateMeetings)
	e.POST("/jobs/sweep", h.RunSweep)
	e.POST("/jobs/reminders", h.RunReminders)

	e.POST("/tasks/:id/claim", h.ClaimTask)
	e.POST("/tasks/:id/complete", h.CompleteTask)
	e.POST("/tasks/:id/cancel", h.CancelTask)
	e.POST("/tasks/:id/swaps", h.RequestSwap)
	e.POST("/swaps/:id/approve", h.ApproveSwap)
	e.POST("/swaps/:id/reject", h.RejectSwap)
	e.POST("/swaps/:id/cancel", h.CancelSwap)

	e.POST("/equipment/:id/check-in", h.CheckIn)
	e.POST("/equipment/:id/check-out", h.CheckOut)
	e.POST("/bookings", h.CreateBooking)
	e.DELETE("/bookings/:id", h.CancelBooking)
	e.POST("/equipment/:id/queue", h.Enqueue)
	e.DELETE("/queue-entries/:id", h.CancelQueueEntry)
	e.POST("/queue-entries/:id/convert", h.ConvertQueueEntry)
}
