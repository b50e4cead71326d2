package notes

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/beacon/internal/apperror"
	"github.com/keyxmakerx/beacon/internal/kvstore"
)

func newNotesServer(store kvstore.Store) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			_ = c.JSON(appErr.Code, appErr)
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
	RegisterRoutes(e.Group("/api/v1"), NewHandler(NewNoteService(NewNoteRepository(store))))
	return e
}

func TestHandler_PutThenGet(t *testing.T) {
	e := newNotesServer(kvstore.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/campaigns/c1/notes", strings.NewReader(`{"text":"call the client"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/c1/notes", nil))
	var note Note
	if err := json.Unmarshal(rec.Body.Bytes(), &note); err != nil {
		t.Fatal(err)
	}
	if note.CampaignID != "c1" || note.Text != "call the client" {
		t.Errorf("unexpected note %+v", note)
	}
}

func TestHandler_PutForm(t *testing.T) {
	store := kvstore.NewMemoryStore()
	e := newNotesServer(store)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/campaigns/c1/notes", strings.NewReader("notes=from+the+drawer"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if v, _, _ := store.Get(req.Context(), Key("c1")); v != "from the drawer" {
		t.Errorf("expected form value stored, got %q", v)
	}
}

func TestHandler_PutTooLong(t *testing.T) {
	e := newNotesServer(kvstore.NewMemoryStore())

	body, _ := json.Marshal(SaveNoteRequest{Text: strings.Repeat("x", MaxNoteLength+1)})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/campaigns/c1/notes", strings.NewReader(string(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
