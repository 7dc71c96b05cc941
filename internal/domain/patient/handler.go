package patient

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

	api.GET("/insurance-providers", h.ListProviders)
	api.GET("/insurance-providers/:id", h.GetProvider)
	api.POST("/insurance-providers", h.CreateProvider, adminOnly)
	api.PUT("/insurance-providers/:id", h.UpdateProvider, adminOnly)
	api.PATCH("/insurance-providers/:id", h.UpdateProvider, adminOnly)
	api.DELETE("/insurance-providers/:id", h.DeleteProvider, adminOnly)

	api.POST("/patients", h.CreatePatient)
	api.GET("/patients", h.ListPatients, auth.RequireRole(auth.RoleStaff))
	api.GET("/patients/me", h.Me, auth.RequireRole(auth.RolePatient))
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.PATCH("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient, adminOnly)
	api.GET("/patients/:id/insurances", h.ListInsurances)
	api.POST("/patients/:id/insurances", h.AddInsurance)

	api.GET("/patient-insurances/:id", h.GetInsurance)
	api.PUT("/patient-insurances/:id", h.UpdateInsurance)
	api.DELETE("/patient-insurances/:id", h.DeleteInsurance)
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

// -- Profiles --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := bind(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreatePatient(c.Request().Context(), actorOf(c), &p); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Me(c echo.Context) error {
	p, err := h.svc.Me(c.Request().Context(), actorOf(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), actorOf(c), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), actorOf(c), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), actorOf(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Insurance providers --

func (h *Handler) CreateProvider(c echo.Context) error {
	var p InsuranceProvider
	if err := bind(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreateProvider(c.Request().Context(), actorOf(c), &p); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProvider(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProvider(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListProviders(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListProviders(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateProvider(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p InsuranceProvider
	if err := bind(c, &p); err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.UpdateProvider(c.Request().Context(), actorOf(c), &p); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProvider(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteProvider(c.Request().Context(), actorOf(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Patient insurances --

func (h *Handler) ListInsurances(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListInsurances(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddInsurance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req InsuranceRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ins, err := h.svc.AddInsurance(c.Request().Context(), actorOf(c), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, ins)
}

func (h *Handler) GetInsurance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ins, err := h.svc.GetInsurance(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) UpdateInsurance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req InsuranceRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ins, err := h.svc.UpdateInsurance(c.Request().Context(), actorOf(c), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) DeleteInsurance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteInsurance(c.Request().Context(), actorOf(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
