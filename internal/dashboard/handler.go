package dashboard

import (
	"errors"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careorbit/dashboard/internal/careapi"
	"github.com/careorbit/dashboard/pkg/pagination"
)

// Manager owns the live dashboard sessions, keyed by session id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	api      Resource
	log      zerolog.Logger
}

func NewManager(api Resource, log zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		api:      api,
		log:      log,
	}
}

// Create registers a new session for a patient. The caller is responsible
// for the initial load.
func (m *Manager) Create(patientID string) *Session {
	s := NewSession(patientID, m.api, m.log)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with the given id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Delete removes a session. Reports whether it existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Handler exposes dashboard sessions over HTTP.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes mounts the session endpoints on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dashboard/sessions")
	g.POST("", h.createSession)
	g.GET("/:id", h.getSession)
	g.POST("/:id/refresh", h.refreshSession)
	g.GET("/:id/overview", h.getOverview)
	g.PUT("/:id/tab", h.setTab)
	g.GET("/:id/messages", h.listMessages)
	g.POST("/:id/chat", h.sendMessage)
	g.POST("/:id/care-gaps/:gapID/resolve", h.resolveCareGap)
	g.DELETE("/:id", h.deleteSession)
}

type createSessionRequest struct {
	PatientID string `json:"patient_id"`
}

// createSession opens a session and performs the initial load. A failed
// load still creates the session; the client retries via refresh. The
// load_error field tells the two outcomes apart.
func (h *Handler) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PatientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}

	s := h.manager.Create(req.PatientID)

	resp := struct {
		Snapshot
		LoadError string `json:"load_error,omitempty"`
	}{}
	if err := s.LoadAll(c.Request().Context()); err != nil {
		resp.LoadError = "initial load failed"
	}
	resp.Snapshot = s.Snapshot()
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) getSession(c echo.Context) error {
	s := h.manager.Get(c.Param("id"))
	if s == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) refreshSession(c echo.Context) error {
	s := h.manager.Get(c.Param("id"))
	if s == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err := s.LoadAll(c.Request().Context()); err != nil {
		if errors.Is(err, ErrLoadInFlight) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, "refresh failed")
	}
	return c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) getOverview(c echo.Context) error {
	s := h.manager.Get(c.Param("id"))
	if s == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, s.Overview(s.clock()))
}

type setTabRequest struct {
	Tab Tab `json:"tab"`
}

func (h *Handler) setTab(c echo.Context) error {
	s := h.manager.Get(c.Param("id"))
	if s == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	var req setTabRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.SetActiveTab(req.Tab); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"active_tab": string(req.Tab)})
}

func (h *Handler) listMessages(c echo.Context) error {
	s := h.manager.Get(c.Param("id"))
	if s == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	pg := pagination.FromContext(c)
	msgs, total := s.Messages(pg.Limit, pg.Offset)
	return c.JSON(http.StatusOK, pagination.NewResponse(msgs, total, pg.Limit, pg.Offset))
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	User      interface{} `json:"user"`
	Assistant interface{} `json:"assistant"`
}

func (h *Handler) sendMessage(c echo.Context) error {
	s := h.manager.Get(c.Param("id"))
	if s == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	user, assistant, err := s.SendMessage(c.Request().Context(), req.Message)
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTurnInFlight):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, chatResponse{User: user, Assistant: assistant})
}

func (h *Handler) resolveCareGap(c echo.Context) error {
	s := h.manager.Get(c.Param("id"))
	if s == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err := s.ResolveCareGap(c.Request().Context(), c.Param("gapID")); err != nil {
		var se *careapi.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "care gap not found")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "resolve failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"resolved":  true,
		"care_gaps": s.Snapshot().CareGaps,
	})
}

func (h *Handler) deleteSession(c echo.Context) error {
	if !h.manager.Delete(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}
