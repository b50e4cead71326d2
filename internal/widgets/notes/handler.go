package notes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/beacon/internal/apperror"
)

// Handler handles HTTP requests for note operations. Handlers are thin:
// bind request, call service, render response. No business logic lives here.
type Handler struct {
	service NoteService
}

// NewHandler creates a new note handler backed by the given service.
func NewHandler(service NoteService) *Handler {
	return &Handler{service: service}
}

// Get returns the campaign's note (GET /api/v1/campaigns/:id/notes).
func (h *Handler) Get(c echo.Context) error {
	campaignID := c.Param("id")
	text, err := h.service.Load(c.Request().Context(), campaignID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Note{CampaignID: campaignID, Text: text})
}

// Put replaces the campaign's note (PUT /api/v1/campaigns/:id/notes).
func (h *Handler) Put(c echo.Context) error {
	campaignID := c.Param("id")

	var req SaveNoteRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := h.service.Save(c.Request().Context(), campaignID, req.Text); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Note{CampaignID: campaignID, Text: req.Text})
}
