package doctor

import (
	"net/http"

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
	adminOnly := auth.RequireRole(auth.RoleAdmin)

	api.GET("/specializations", h.ListSpecializations)
	api.GET("/specializations/:id", h.GetSpecialization)
	api.POST("/specializations", h.CreateSpecialization, adminOnly)
	api.PUT("/specializations/:id", h.UpdateSpecialization, adminOnly)
	api.PATCH("/specializations/:id", h.UpdateSpecialization, adminOnly)
	api.DELETE("/specializations/:id", h.DeleteSpecialization, adminOnly)

	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/me", h.Me, auth.RequireRole(auth.RoleDoctor))
	api.GET("/doctors/:id", h.GetDoctor)
	api.POST("/doctors", h.CreateDoctor, adminOnly)
	api.PUT("/doctors/:id", h.UpdateDoctor, auth.RequireRole(auth.RoleDoctor))
	api.PATCH("/doctors/:id", h.UpdateDoctor, auth.RequireRole(auth.RoleDoctor))
	api.DELETE("/doctors/:id", h.DeleteDoctor, adminOnly)
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

// -- Specializations --

func (h *Handler) CreateSpecialization(c echo.Context) error {
	var spec Specialization
	if err := bind(c, &spec); err != nil {
		return err
	}
	if err := h.svc.CreateSpecialization(c.Request().Context(), actorOf(c), &spec); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, spec)
}

func (h *Handler) GetSpecialization(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	spec, err := h.svc.GetSpecialization(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, spec)
}

func (h *Handler) ListSpecializations(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSpecializations(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateSpecialization(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var spec Specialization
	if err := bind(c, &spec); err != nil {
		return err
	}
	spec.ID = id
	if err := h.svc.UpdateSpecialization(c.Request().Context(), actorOf(c), &spec); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, spec)
}

func (h *Handler) DeleteSpecialization(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSpecialization(c.Request().Context(), actorOf(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Doctors --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req CreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	d, err := h.svc.CreateDoctor(c.Request().Context(), actorOf(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Me(c echo.Context) error {
	d, err := h.svc.Me(c.Request().Context(), actorOf(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	var f ListFilter
	if v := c.QueryParam("specialization"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid specialization")
		}
		f.SpecializationID = &id
	}
	f.AcceptingOnly = c.QueryParam("accepting_new_patients") == "true"

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), actorOf(c), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), actorOf(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
