package upstream

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Handler exposes the demo care API over HTTP. Paths mirror the contract the
// dashboard's resource client expects.
type Handler struct {
	store        *Store
	orchestrator *Orchestrator
}

func NewHandler(store *Store, orchestrator *Orchestrator) *Handler {
	return &Handler{store: store, orchestrator: orchestrator}
}

// RegisterRoutes mounts the care API under /api.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/patients/:id", h.getPatient)
	api.GET("/patients/:id/summary", h.getSummary)
	api.GET("/patients/:id/medications", h.listMedications)
	api.GET("/patients/:id/appointments", h.listAppointments)
	api.GET("/patients/:id/care-gaps", h.listCareGaps)
	api.POST("/care-gaps/:id/resolve", h.resolveCareGap)
	api.POST("/chat", h.chat)
}

func (h *Handler) getPatient(c echo.Context) error {
	p, ok := h.store.Patient(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) getSummary(c echo.Context) error {
	sum, ok := h.store.Summary(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) listMedications(c echo.Context) error {
	activeOnly := c.QueryParam("active_only") == "true"
	meds, ok := h.store.Medications(c.Param("id"), activeOnly)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, meds)
}

func (h *Handler) listAppointments(c echo.Context) error {
	upcomingOnly := c.QueryParam("upcoming_only") == "true"
	appts, ok := h.store.Appointments(c.Param("id"), upcomingOnly)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, appts)
}

func (h *Handler) listCareGaps(c echo.Context) error {
	gaps, ok := h.store.CareGaps(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, gaps)
}

func (h *Handler) resolveCareGap(c echo.Context) error {
	if !h.store.ResolveCareGap(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "care gap not found")
	}
	return c.JSON(http.StatusOK, map[string]bool{"resolved": true})
}

type chatRequest struct {
	PatientID string `json:"patient_id"`
	Message   string `json:"message"`
}

func (h *Handler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PatientID == "" || strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id and message are required")
	}

	result, err := h.orchestrator.Process(c.Request().Context(), req.PatientID, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
