package audit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/beacon/internal/apperror"
	"github.com/keyxmakerx/beacon/internal/middleware"
)

// newTestServer mounts the audit routes over env with the drawer session
// middleware only. AppErrors map to their status code.
func newTestServer(t *testing.T, env *testEnv) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		var appErr *apperror.AppError
		var echoErr *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
			code = appErr.Code
		case errors.As(err, &echoErr):
			code = echoErr.Code
		}
		_ = c.String(code, err.Error())
	}
	sessions := NewDrawerSessions(8, func() *Drawer { return NewDrawer(env.svc, env.catalog) })
	RegisterRoutes(e, e.Group("/api/v1"), NewHandler(env.svc, env.catalog, sessions), middleware.DrawerSession())
	return e
}

func do(e *echo.Echo, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	req.Header.Set("HX-Request", "true")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RecordAndList(t *testing.T) {
	env := newTestEnv(t)
	e := newTestServer(t, env)

	rec := do(e, http.MethodPost, "/api/v1/campaigns/c1/audit/create",
		`{"entityType":"campaign","data":{"budget":1000,"campaignName":"Acme"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Events []AuditEvent `json:"events"`
		Count  int          `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Count != 2 {
		t.Errorf("expected 2 events, got %d", created.Count)
	}

	rec = do(e, http.MethodPost, "/api/v1/campaigns/c1/audit/edit",
		`{"entityType":"campaign","before":{"budget":"1000"},"after":{"budget":"1000"}}`)
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"count":0`) {
		t.Errorf("expected empty edit, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/api/v1/campaigns/c1/audit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listed struct {
		Events []AuditEvent `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Events) != 2 {
		t.Errorf("expected 2 listed events, got %d", len(listed.Events))
	}

	rec = do(e, http.MethodGet, "/api/v1/campaigns/c1/audit/view?advertiserName=Acme", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Change Form: Acme (Account N/A)") {
		t.Errorf("unexpected view response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_RecordValidation(t *testing.T) {
	e := newTestServer(t, newTestEnv(t))

	rec := do(e, http.MethodPost, "/api/v1/campaigns/c1/audit/create", `{"entityType":"creative"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
	rec = do(e, http.MethodPost, "/api/v1/campaigns/c1/audit/create", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_DestructiveActionsNeedConfirm(t *testing.T) {
	env := newTestEnv(t)
	e := newTestServer(t, env)
	do(e, http.MethodPost, "/api/v1/campaigns/c1/audit/create", `{"entityType":"campaign","data":{"budget":"1"}}`)

	for _, target := range []string{
		"/api/v1/campaigns/c1/audit",
		"/api/v1/campaigns/c1/adgroups/ag1/audit",
	} {
		rec := do(e, http.MethodDelete, target, "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"cancelled"`) {
			t.Errorf("%s: expected cancelled, got %d: %s", target, rec.Code, rec.Body.String())
		}
	}
	rec := do(e, http.MethodPost, "/api/v1/campaigns/c1/audit/reconcile", "")
	if !strings.Contains(rec.Body.String(), `"cancelled"`) {
		t.Errorf("expected reconcile cancelled, got %s", rec.Body.String())
	}

	events, _ := env.svc.GetCampaignAudit(t.Context(), "c1")
	if len(events) != 1 {
		t.Fatalf("unconfirmed actions must not change the log, got %d events", len(events))
	}

	rec = do(e, http.MethodDelete, "/api/v1/campaigns/c1/audit?confirm=true", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"removed":1`) {
		t.Errorf("expected confirmed clear, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_ReconcileAndEntities(t *testing.T) {
	env := newTestEnv(t)
	e := newTestServer(t, env)
	do(e, http.MethodPost, "/api/v1/campaigns/c1/audit/create", `{"entityType":"campaign","data":{"budget":"1000"}}`)
	do(e, http.MethodPost, "/api/v1/campaigns/c1/audit/edit",
		`{"entityType":"campaign","before":{"budget":"1000"},"after":{"budget":"1500"}}`)

	rec := do(e, http.MethodPut, "/api/v1/entities/campaign-groups", `[{"id":"g1","campaigns":[{"id":"c1","budget":1500}]}]`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodPut, "/api/v1/entities/adgroups", `[]`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = do(e, http.MethodPut, "/api/v1/entities/adgroups", `{"id":"ag1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-list body, got %d", rec.Code)
	}

	rec = do(e, http.MethodPost, "/api/v1/campaigns/c1/audit/reconcile?confirm=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res ReconcileResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Mode != ModeFull || !res.CampaignFound {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHandler_DrawerFlow(t *testing.T) {
	env := newTestEnv(t)
	e := newTestServer(t, env)
	do(e, http.MethodPost, "/api/v1/campaigns/c1/audit/create",
		`{"entityType":"campaign","data":{"budget":"1000","seed":"s-1"}}`)
	do(e, http.MethodPost, "/api/v1/campaigns/c1/audit/edit",
		`{"entityType":"campaign","before":{"budget":"1000"},"after":{"budget":"1500"}}`)

	// Actions before opening conflict.
	rec := do(e, http.MethodPost, "/campaigns/c1/audit/drawer/sections/dsp_c1/toggle", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for closed drawer, got %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/campaigns/c1/audit/drawer?advertiserName=Acme&advertiserAccount=ACC-7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected drawer session cookie")
	}
	body := rec.Body.String()
	for _, want := range []string{`id="auditDrawerBody"`, "Change Form: Acme (ACC-7)", `id="section_dsp_c1"`, "Campaign Budget", "Deselect All"} {
		if !strings.Contains(body, want) {
			t.Errorf("drawer body missing %q", want)
		}
	}

	// Another session does not see this drawer open.
	rec = do(e, http.MethodPost, "/campaigns/c1/audit/drawer/sections/dsp_c1/toggle", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 without the session cookie, got %d", rec.Code)
	}

	rec = do(e, http.MethodPost, "/campaigns/c1/audit/drawer/sections/dsp_c1/toggle", "", cookies...)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Select All") {
		t.Errorf("expected toggled section, got %d", rec.Code)
	}

	rec = do(e, http.MethodPost, "/campaigns/c1/audit/drawer/rows/dsp_c1/budget", "checked=true", cookies...)
	if rec.Code != http.StatusOK {
		t.Errorf("expected row update, got %d", rec.Code)
	}
	rec = do(e, http.MethodPost, "/campaigns/c1/audit/drawer/rows/dsp_c1/budget", "expand=true", cookies...)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `id="expand_dsp_c1_budget" class="mt-1`) {
		t.Errorf("expected expanded previous value, got %d", rec.Code)
	}
	rec = do(e, http.MethodPost, "/campaigns/c1/audit/drawer/rows/dsp_c1/unknown", "checked=true", cookies...)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown row, got %d", rec.Code)
	}

	rec = do(e, http.MethodPut, "/campaigns/c1/audit/drawer/notes", "notes="+url.QueryEscape("call Dana"), cookies...)
	if rec.Code != http.StatusNoContent || env.notes.text["c1"] != "call Dana" {
		t.Errorf("expected notes saved, got %d %q", rec.Code, env.notes.text["c1"])
	}

	rec = do(e, http.MethodGet, "/campaigns/c1/audit/drawer/export.csv", "", cookies...)
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected export response %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "audit_c1.csv") {
		t.Errorf("unexpected disposition %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	if !strings.Contains(rec.Body.String(), "budget,Campaign Budget,1500,1000") {
		t.Errorf("expected checked budget row in export, got %s", rec.Body.String())
	}

	// Declined clear leaves history alone.
	rec = do(e, http.MethodPost, "/campaigns/c1/audit/drawer/clear", "", cookies...)
	if rec.Code != http.StatusOK || rec.Header().Get("HX-Trigger") != "" {
		t.Errorf("declined clear should render without notifying, got %d %q", rec.Code, rec.Header().Get("HX-Trigger"))
	}

	rec = do(e, http.MethodPost, "/campaigns/c1/audit/drawer/clear", "confirm=true", cookies...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected clear, got %d: %s", rec.Code, rec.Body.String())
	}
	var trigger struct {
		Notify struct {
			Message string `json:"message"`
			Kind    string `json:"kind"`
		} `json:"notify"`
	}
	if err := json.Unmarshal([]byte(rec.Header().Get("HX-Trigger")), &trigger); err != nil {
		t.Fatalf("invalid HX-Trigger: %v", err)
	}
	if trigger.Notify.Kind != string(NotifySuccess) {
		t.Errorf("unexpected notification %+v", trigger.Notify)
	}

	rec = do(e, http.MethodDelete, "/campaigns/c1/audit/drawer", "", cookies...)
	if rec.Code != http.StatusOK {
		t.Errorf("expected close, got %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/campaigns/c1/audit/drawer/export.csv", "", cookies...)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 after close, got %d", rec.Code)
	}
}

func TestHandler_DrawerWrongCampaign(t *testing.T) {
	e := newTestServer(t, newTestEnv(t))

	rec := do(e, http.MethodGet, "/campaigns/c1/audit/drawer", "")
	cookies := rec.Result().Cookies()

	rec = do(e, http.MethodPut, "/campaigns/c2/audit/drawer/notes", "notes=x", cookies...)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a campaign the drawer is not showing, got %d", rec.Code)
	}
}

func TestHandler_DrawerEmptyState(t *testing.T) {
	e := newTestServer(t, newTestEnv(t))

	rec := do(e, http.MethodGet, "/campaigns/c1/audit/drawer", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), EmptyStateText) {
		t.Errorf("expected empty state, got %d: %s", rec.Code, rec.Body.String())
	}
}
