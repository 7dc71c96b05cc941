package medicalrecord

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medisched/medisched/internal/platform/apperr"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/pkg/pagination"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctorOnly := auth.RequireRole(auth.RoleDoctor)

	api.GET("/medical-records", h.ListRecords)
	api.POST("/medical-records", h.CreateRecord, doctorOnly)
	api.GET("/medical-records/my", h.MyRecords, auth.RequireRole(auth.RolePatient))
	api.GET("/medical-records/:id", h.GetRecord)
	api.PUT("/medical-records/:id", h.UpdateRecord, doctorOnly)
	api.PATCH("/medical-records/:id", h.UpdateRecord, doctorOnly)
	api.GET("/medical-records/:id/access-logs", h.AccessLogs)
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

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func includeConfidential(c echo.Context) bool {
	return strings.EqualFold(c.QueryParam("include_confidential"), "true")
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
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

func queryDate(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be YYYY-MM-DD")
	}
	return &t, nil
}

func parseFilter(c echo.Context) (ListFilter, error) {
	f := ListFilter{IncludeConfidential: includeConfidential(c)}
	var err error
	if f.DoctorID, err = queryUUID(c, "doctor"); err != nil {
		return f, err
	}
	if f.PatientID, err = queryUUID(c, "patient"); err != nil {
		return f, err
	}
	if f.AppointmentID, err = queryUUID(c, "appointment"); err != nil {
		return f, err
	}
	if f.StartDate, err = queryDate(c, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = queryDate(c, "end_date"); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) ListRecords(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRecords(c.Request().Context(), actorOf(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) MyRecords(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.MyRecords(c.Request().Context(), actorOf(c), c.RealIP(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var req CreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	m, err := h.svc.CreateRecord(c.Request().Context(), actorOf(c), c.RealIP(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetRecord(c.Request().Context(), actorOf(c), id, c.RealIP(), includeConfidential(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	m, err := h.svc.UpdateRecord(c.Request().Context(), actorOf(c), c.RealIP(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) AccessLogs(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.AccessLogs(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}
