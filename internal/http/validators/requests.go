package validators

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	dto "lab-scheduler.com/lab-scheduler/internal/data_models"
)

func ValidateAddQueueMemberRequest(r *dto.AddQueueMemberRequest) error {
	if r.PersonID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "person_id is required")
	}
	return nil
}

// ValidateGenerateJobRequest parses the date range; an empty request is valid
// and means "use the configured horizon".
func ValidateGenerateJobRequest(r *dto.GenerateJobRequest) (from, to time.Time, err error) {
	if r.From == "" && r.To == "" {
		return time.Time{}, time.Time{}, nil
	}
	from, err = time.ParseInLocation("2006-01-02", r.From, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "from must be a date in 2006-01-02 form")
	}
	to, err = time.ParseInLocation("2006-01-02", r.To, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "to must be a date in 2006-01-02 form")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "to must not precede from")
	}
	return from, to, nil
}

func ValidateCheckRequest(r *dto.CheckRequest) error {
	if r.PersonID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "person_id is required")
	}
	return nil
}

func ValidateCreateBookingRequest(r *dto.CreateBookingRequest) (start, end time.Time, err error) {
	if r.EquipmentID == "" {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "equipment_id is required")
	}
	if r.PersonID == "" {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "person_id is required")
	}
	start, err = time.Parse(time.RFC3339, r.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "start_time must be RFC 3339")
	}
	end, err = time.Parse(time.RFC3339, r.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "end_time must be RFC 3339")
	}
	return start, end, nil
}

func ValidateEnqueueRequest(r *dto.EnqueueRequest) (start, end time.Time, err error) {
	if r.PersonID == "" {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "person_id is required")
	}
	start, err = time.Parse(time.RFC3339, r.WindowStart)
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "window_start must be RFC 3339")
	}
	end, err = time.Parse(time.RFC3339, r.WindowEnd)
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "window_end must be RFC 3339")
	}
	return start, end, nil
}

func ValidateTaskActionRequest(r *dto.TaskActionRequest) error {
	if r.PersonID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "person_id is required")
	}
	return nil
}

func ValidateRequestSwapRequest(r *dto.RequestSwapRequest) error {
	if r.RequesterID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requester_id is required")
	}
	return nil
}

func ValidateResolveSwapRequest(r *dto.ResolveSwapRequest) error {
	if r.PersonID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "person_id is required")
	}
	return nil
}
