package practitioner

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medrec/fhir-bridge/internal/domain/provenance"
	"github.com/medrec/fhir-bridge/internal/platform/auth"
	"github.com/medrec/fhir-bridge/internal/platform/fhir"
	"github.com/medrec/fhir-bridge/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	role := auth.RequireRole("admin", "physician", "nurse")
	g := fhirGroup.Group("", role)

	g.GET("/Practitioner", h.Search)
	g.POST("/Practitioner/_search", h.Search)
	g.GET("/Practitioner/:id", h.Get)
	g.POST("/Practitioner", h.Create)
	g.PUT("/Practitioner/:id", h.Update)
	g.DELETE("/Practitioner/:id", h.Delete)
	g.GET("/Practitioner/:id/_history", h.History)
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := fhir.ExtractSearchParams(c)

	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return fhir.WriteError(c, err)
	}
	resources := make([]interface{}, len(items))
	for i, item := range items {
		resources[i] = item.ToFHIR()
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(resources, fhir.SearchBundleParams{
		BaseURL:  "/fhir/Practitioner",
		QueryStr: c.QueryString(),
		Count:    pg.Limit,
		Offset:   pg.Offset,
		Total:    total,
	}))
}

func (h *Handler) Get(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fhir.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, p.ToFHIR())
}

func (h *Handler) Create(c echo.Context) error {
	var resource map[string]interface{}
	if err := json.NewDecoder(c.Request().Body).Decode(&resource); err != nil {
		return fhir.WriteError(c, fhir.NewValidation("invalid request body: %v", err))
	}
	p, err := h.svc.Create(c.Request().Context(), resource, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return fhir.WriteError(c, err)
	}
	c.Response().Header().Set("Location", "/fhir/Practitioner/"+p.FHIRID)
	return c.JSON(http.StatusCreated, p.ToFHIR())
}

func (h *Handler) Update(c echo.Context) error {
	var resource map[string]interface{}
	if err := json.NewDecoder(c.Request().Body).Decode(&resource); err != nil {
		return fhir.WriteError(c, fhir.NewValidation("invalid request body: %v", err))
	}
	p, err := h.svc.Update(c.Request().Context(), c.Param("id"), resource, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return fhir.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, p.ToFHIR())
}

func (h *Handler) Delete(c echo.Context) error {
	p, err := h.svc.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fhir.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, p.ToFHIR())
}

func (h *Handler) History(c echo.Context) error {
	p, revisions, err := h.svc.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fhir.WriteError(c, err)
	}
	resources := provenance.HistoryResources(revisions, "Practitioner", p.FHIRID)
	return c.JSON(http.StatusOK, fhir.NewHistoryBundle(resources))
}
