package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/beacon/internal/apperror"
	"github.com/keyxmakerx/beacon/internal/middleware"
)

// Handler handles HTTP requests for audit operations. Handlers are thin:
// bind request, call service or drawer, render response.
type Handler struct {
	service  AuditService
	catalog  *Catalog
	sessions *DrawerSessions

	// sessionID resolves the browser's drawer session.
	sessionID func(echo.Context) string
}

// NewHandler creates a new audit handler.
func NewHandler(service AuditService, catalog *Catalog, sessions *DrawerSessions) *Handler {
	return &Handler{
		service:   service,
		catalog:   catalog,
		sessions:  sessions,
		sessionID: middleware.DrawerSessionID,
	}
}

// --- Capabilities bound to a request ---

// requestConfirmer approves when the request carries confirm=true, which the
// drawer's hx-confirm prompt adds after the user accepts.
type requestConfirmer struct{ c echo.Context }

func (r requestConfirmer) Confirm(_ context.Context, prompt string) bool {
	ok := r.c.QueryParam("confirm") == "true" || r.c.FormValue("confirm") == "true"
	if !ok {
		slog.Debug("destructive action not confirmed",
			slog.String("path", r.c.Request().URL.Path),
			slog.String("prompt", prompt),
		)
	}
	return ok
}

// headerNotifier delivers notifications as an HX-Trigger "notify" event.
type headerNotifier struct{ c echo.Context }

func (h headerNotifier) Notify(_ context.Context, message string, kind NotifyKind) {
	payload, err := json.Marshal(map[string]any{
		"notify": map[string]string{"message": message, "kind": string(kind)},
	})
	if err != nil {
		return
	}
	h.c.Response().Header().Set("HX-Trigger", string(payload))
}

// --- Request bodies ---

type createRequest struct {
	EntityType EntityType  `json:"entityType"`
	EntityID   string      `json:"entityId"`
	Data       FieldValues `json:"data"`
	User       string      `json:"user"`
}

type editRequest struct {
	EntityType EntityType  `json:"entityType"`
	EntityID   string      `json:"entityId"`
	Before     FieldValues `json:"before"`
	After      FieldValues `json:"after"`
	User       string      `json:"user"`
}

type cancelledResponse struct {
	Status string `json:"status"`
}

var cancelled = cancelledResponse{Status: "cancelled"}

// --- JSON API ---

// RecordCreate records a create action (POST /api/v1/campaigns/:id/audit/create).
func (h *Handler) RecordCreate(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	events, err := h.service.RecordCreate(c.Request().Context(), CreateInput{
		CampaignID: c.Param("id"),
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Data:       req.Data,
		User:       req.User,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"events": nonNil(events), "count": len(events)})
}

// RecordEdit records an edit action (POST /api/v1/campaigns/:id/audit/edit).
func (h *Handler) RecordEdit(c echo.Context) error {
	var req editRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	events, err := h.service.RecordEdit(c.Request().Context(), EditInput{
		CampaignID: c.Param("id"),
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Before:     req.Before,
		After:      req.After,
		User:       req.User,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"events": nonNil(events), "count": len(events)})
}

// List returns the campaign family's events (GET /api/v1/campaigns/:id/audit).
func (h *Handler) List(c echo.Context) error {
	events, err := h.service.GetCampaignAudit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"campaignId": c.Param("id"), "events": nonNil(events)})
}

// View returns the drawer view model as JSON (GET /api/v1/campaigns/:id/audit/view).
func (h *Handler) View(c echo.Context) error {
	dc := DrawerContext{
		CampaignID:        c.Param("id"),
		AdvertiserName:    c.QueryParam("advertiserName"),
		AdvertiserAccount: c.QueryParam("advertiserAccount"),
	}
	events, err := h.service.GetCampaignAudit(c.Request().Context(), dc.CampaignID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BuildView(h.catalog, dc, events))
}

// ClearCampaign deletes the campaign's events and notes
// (DELETE /api/v1/campaigns/:id/audit?confirm=true).
func (h *Handler) ClearCampaign(c echo.Context) error {
	ctx := c.Request().Context()
	if !(requestConfirmer{c}).Confirm(ctx, "Clear the whole audit trail for this campaign?") {
		return c.JSON(http.StatusOK, cancelled)
	}
	removed, err := h.service.ClearCampaignAudit(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "cleared", "removed": removed})
}

// ClearAdGroup deletes one ad group's events
// (DELETE /api/v1/campaigns/:id/adgroups/:agid/audit?confirm=true).
func (h *Handler) ClearAdGroup(c echo.Context) error {
	ctx := c.Request().Context()
	if !(requestConfirmer{c}).Confirm(ctx, "Clear the audit trail for this ad group?") {
		return c.JSON(http.StatusOK, cancelled)
	}
	removed, err := h.service.ClearAdGroupAudit(ctx, c.Param("id"), c.Param("agid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "cleared", "removed": removed})
}

// Reconcile collapses the edit history
// (POST /api/v1/campaigns/:id/audit/reconcile?confirm=true).
func (h *Handler) Reconcile(c echo.Context) error {
	ctx := c.Request().Context()
	if !(requestConfirmer{c}).Confirm(ctx, ClearEditsPrompt) {
		return c.JSON(http.StatusOK, cancelled)
	}
	res, err := h.service.ClearCampaignEdits(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// ReplaceCampaignGroups publishes the campaign tree
// (PUT /api/v1/entities/campaign-groups).
func (h *Handler) ReplaceCampaignGroups(c echo.Context) error {
	var groups []CampaignGroup
	if err := json.NewDecoder(c.Request().Body).Decode(&groups); err != nil {
		return apperror.NewBadRequest("body must be a JSON list of campaign groups")
	}
	if err := h.service.ReplaceCampaignGroups(c.Request().Context(), groups); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ReplaceAdGroups publishes the ad group collection
// (PUT /api/v1/entities/adgroups).
func (h *Handler) ReplaceAdGroups(c echo.Context) error {
	var adGroups []AdGroup
	if err := json.NewDecoder(c.Request().Body).Decode(&adGroups); err != nil {
		return apperror.NewBadRequest("body must be a JSON list of ad groups")
	}
	if err := h.service.ReplaceAdGroups(c.Request().Context(), adGroups); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Drawer (HTML fragments) ---

// OpenDrawer opens the session's drawer on a campaign
// (GET /campaigns/:id/audit/drawer).
func (h *Handler) OpenDrawer(c echo.Context) error {
	d := h.drawer(c)
	dc := DrawerContext{
		CampaignID:        c.Param("id"),
		AdvertiserName:    c.QueryParam("advertiserName"),
		AdvertiserAccount: c.QueryParam("advertiserAccount"),
	}
	if err := d.Open(c.Request().Context(), dc); err != nil {
		return err
	}
	return h.render(c, d)
}

// CloseDrawer closes the drawer (DELETE /campaigns/:id/audit/drawer).
func (h *Handler) CloseDrawer(c echo.Context) error {
	h.drawer(c).Close()
	return c.NoContent(http.StatusOK)
}

// ToggleSection flips a section's checkboxes
// (POST /campaigns/:id/audit/drawer/sections/:sid/toggle).
func (h *Handler) ToggleSection(c echo.Context) error {
	d, err := h.openDrawer(c)
	if err != nil {
		return err
	}
	if err := d.ToggleSection(pathParam(c, "sid")); err != nil {
		return err
	}
	return h.render(c, d)
}

// CollapseSection collapses or expands a section
// (POST /campaigns/:id/audit/drawer/sections/:sid/collapse).
func (h *Handler) CollapseSection(c echo.Context) error {
	d, err := h.openDrawer(c)
	if err != nil {
		return err
	}
	if err := d.ToggleCollapsed(pathParam(c, "sid")); err != nil {
		return err
	}
	return h.render(c, d)
}

// Row updates one row (POST /campaigns/:id/audit/drawer/rows/:sid/:field).
// expand=true toggles the previous value; otherwise checked sets the box.
func (h *Handler) Row(c echo.Context) error {
	d, err := h.openDrawer(c)
	if err != nil {
		return err
	}
	sid, field := pathParam(c, "sid"), pathParam(c, "field")
	if c.FormValue("expand") == "true" {
		err = d.TogglePrevious(sid, field)
	} else {
		err = d.SetRow(sid, field, c.FormValue("checked") == "true")
	}
	if err != nil {
		return err
	}
	return h.render(c, d)
}

// ClearEdits reconciles the open campaign
// (POST /campaigns/:id/audit/drawer/clear).
func (h *Handler) ClearEdits(c echo.Context) error {
	d, err := h.openDrawer(c)
	if err != nil {
		return err
	}
	if _, err := d.ClearEdits(c.Request().Context(), requestConfirmer{c}, headerNotifier{c}); err != nil {
		return err
	}
	return h.render(c, d)
}

// SaveNotes saves the notes textarea (PUT /campaigns/:id/audit/drawer/notes).
func (h *Handler) SaveNotes(c echo.Context) error {
	d, err := h.openDrawer(c)
	if err != nil {
		return err
	}
	if err := d.SaveNotes(c.Request().Context(), c.FormValue("notes")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ExportCSV downloads the checked rows
// (GET /campaigns/:id/audit/drawer/export.csv).
func (h *Handler) ExportCSV(c echo.Context) error {
	d, err := h.openDrawer(c)
	if err != nil {
		return err
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="audit_%s.csv"`, safeName(c.Param("id"))))
	res.WriteHeader(http.StatusOK)
	return d.ExportCSV(res.Writer)
}

func (h *Handler) drawer(c echo.Context) *Drawer {
	return h.sessions.Get(h.sessionID(c))
}

// openDrawer returns the session's drawer if it is open on the path's
// campaign.
func (h *Handler) openDrawer(c echo.Context) (*Drawer, error) {
	d := h.drawer(c)
	campaignID, open := d.Campaign()
	if !open || campaignID != c.Param("id") {
		return nil, toAppError(errDrawerClosed)
	}
	return d, nil
}

func (h *Handler) render(c echo.Context, d *Drawer) error {
	return middleware.Render(c, http.StatusOK, DrawerComponent(d.Snapshot()))
}

// pathParam returns a path parameter with any percent-encoding removed.
func pathParam(c echo.Context, name string) string {
	raw := c.Param(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func nonNil(events []AuditEvent) []AuditEvent {
	if events == nil {
		return []AuditEvent{}
	}
	return events
}
