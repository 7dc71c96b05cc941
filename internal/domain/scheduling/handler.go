package scheduling

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.CreateAppointment)
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/my", h.MyAppointments, auth.RequireRole(auth.RolePatient))
	api.GET("/appointments/doctor-schedule", h.DoctorSchedule, auth.RequireRole(auth.RoleDoctor))
	api.GET("/appointments/:id", h.GetAppointment)
	api.PUT("/appointments/:id", h.UpdateAppointment)
	api.PATCH("/appointments/:id", h.UpdateAppointment)
	api.DELETE("/appointments/:id", h.DeleteAppointment, auth.RequireRole(auth.RoleStaff))
	api.POST("/appointments/:id/reschedule", h.RescheduleAppointment)

	api.GET("/appointment-types", h.ListTypes)
	api.GET("/appointment-types/:id", h.GetType)
	adminOnly := auth.RequireRole(auth.RoleAdmin)
	api.POST("/appointment-types", h.CreateType, adminOnly)
	api.PUT("/appointment-types/:id", h.UpdateType, adminOnly)
	api.PATCH("/appointment-types/:id", h.UpdateType, adminOnly)
	api.DELETE("/appointment-types/:id", h.DeleteType, adminOnly)

	api.GET("/appointment-reminders", h.ListReminders)
	api.POST("/appointment-reminders", h.CreateReminder)
	api.GET("/appointment-reminders/:id", h.GetReminder)
	api.PUT("/appointment-reminders/:id", h.UpdateReminder)
	api.PATCH("/appointment-reminders/:id", h.UpdateReminder)
	api.DELETE("/appointment-reminders/:id", h.DeleteReminder)

	api.GET("/doctors/:id/available-slots", h.AvailableSlots)
	api.GET("/doctors/:id/availabilities", h.ListAvailability)
	api.POST("/doctors/:id/availabilities", h.CreateAvailability)
	api.GET("/availabilities/:id", h.GetAvailability)
	api.PUT("/availabilities/:id", h.UpdateAvailability)
	api.PATCH("/availabilities/:id", h.UpdateAvailability)
	api.DELETE("/availabilities/:id", h.DeleteAvailability)
	api.GET("/doctors/:id/time-offs", h.ListTimeOff)
	api.POST("/doctors/:id/time-offs", h.CreateTimeOff)
	api.GET("/time-offs/:id", h.GetTimeOff)
	api.PUT("/time-offs/:id", h.UpdateTimeOff)
	api.PATCH("/time-offs/:id", h.UpdateTimeOff)
	api.DELETE("/time-offs/:id", h.DeleteTimeOff)
}

func actorOf(c echo.Context) *auth.Actor {
	return auth.ActorFromContext(c.Request().Context())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func optionalUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func (h *Handler) optionalDate(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	d, err := h.svc.ParseDate(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+", use YYYY-MM-DD")
	}
	return &d, nil
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// -- Appointments --

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req BookingRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	appt, err := h.svc.Book(c.Request().Context(), actorOf(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	var q ListQuery
	var err error
	if q.DoctorID, err = optionalUUID(c, "doctor"); err != nil {
		return err
	}
	if q.PatientID, err = optionalUUID(c, "patient"); err != nil {
		return err
	}
	if v := c.QueryParam("status"); v != "" {
		st, ok := ParseStatus(v)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		q.Status = &st
	}
	if q.StartDate, err = h.optionalDate(c, "start_date"); err != nil {
		return err
	}
	if q.EndDate, err = h.optionalDate(c, "end_date"); err != nil {
		return err
	}
	q.Upcoming = c.QueryParam("upcoming") == "true"
	q.Past = c.QueryParam("past") == "true"

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), actorOf(c), q, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) MyAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.MyAppointments(c.Request().Context(), actorOf(c), c.QueryParam("filter"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DoctorSchedule(c echo.Context) error {
	start, err := h.optionalDate(c, "start_date")
	if err != nil {
		return err
	}
	end, err := h.optionalDate(c, "end_date")
	if err != nil {
		return err
	}
	var statuses []Status
	if v := c.QueryParam("status"); v != "" {
		st, ok := ParseStatus(v)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		statuses = []Status{st}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.DoctorSchedule(c.Request().Context(), actorOf(c), start, end, statuses, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch AppointmentPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	appt, err := h.svc.UpdateAppointment(c.Request().Context(), actorOf(c), id, patch)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), actorOf(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req RescheduleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	successor, err := h.svc.Reschedule(c.Request().Context(), actorOf(c), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, successor)
}

// -- Slots --

func (h *Handler) AvailableSlots(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	dateParam := c.QueryParam("date")
	if dateParam == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date parameter is required")
	}
	date, err := h.svc.ParseDate(dateParam)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
	}
	duration := DefaultDurationMinutes
	if v := c.QueryParam("duration"); v != "" {
		if duration, err = strconv.Atoi(v); err != nil || duration <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "duration must be a positive number of minutes")
		}
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), doctorID, date, duration)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id": doctorID,
		"date":      dateParam,
		"slots":     slots,
	})
}

// -- Appointment types --

func (h *Handler) ListTypes(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListTypes(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetType(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetType(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateType(c echo.Context) error {
	var t AppointmentType
	if err := bind(c, &t); err != nil {
		return err
	}
	if err := h.svc.CreateType(c.Request().Context(), &t); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) UpdateType(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetType(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	if err := bind(c, t); err != nil {
		return err
	}
	t.ID = id
	if err := h.svc.UpdateType(c.Request().Context(), t); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteType(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteType(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Reminders --

func (h *Handler) ListReminders(c echo.Context) error {
	apptID, err := optionalUUID(c, "appointment")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListReminders(c.Request().Context(), actorOf(c), apptID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetReminder(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetReminder(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) CreateReminder(c echo.Context) error {
	var r Reminder
	if err := bind(c, &r); err != nil {
		return err
	}
	if err := h.svc.CreateReminder(c.Request().Context(), actorOf(c), &r); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) UpdateReminder(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch ReminderPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	r, err := h.svc.UpdateReminder(c.Request().Context(), actorOf(c), id, patch)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteReminder(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteReminder(c.Request().Context(), actorOf(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Availability --

func (h *Handler) ListAvailability(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListAvailability(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateAvailability(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	var a Availability
	if err := bind(c, &a); err != nil {
		return err
	}
	a.DoctorID = doctorID
	if err := h.svc.CreateAvailability(c.Request().Context(), actorOf(c), &a); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch AvailabilityPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	a, err := h.svc.UpdateAvailability(c.Request().Context(), actorOf(c), id, patch)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAvailability(c.Request().Context(), actorOf(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Time off --

func (h *Handler) ListTimeOff(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListTimeOff(c.Request().Context(), actorOf(c), doctorID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateTimeOff(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	var t TimeOff
	if err := bind(c, &t); err != nil {
		return err
	}
	t.DoctorID = doctorID
	if err := h.svc.CreateTimeOff(c.Request().Context(), actorOf(c), &t); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTimeOff(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetTimeOff(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTimeOff(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch TimeOffPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	t, err := h.svc.UpdateTimeOff(c.Request().Context(), actorOf(c), id, patch)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTimeOff(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTimeOff(c.Request().Context(), actorOf(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
