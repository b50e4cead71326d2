package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/keyxmakerx/beacon/internal/apperror"
	"github.com/keyxmakerx/beacon/internal/kvstore"
)

// --- Test Helpers ---

var (
	t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

// fixedClock returns a clock pinned at *now; tests move it by assigning.
func fixedClock(now *time.Time) func() time.Time {
	return func() time.Time { return *now }
}

// seqIDs returns a deterministic id generator: ev-1, ev-2, ...
func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("ev-%d", n)
	}
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// memNotes is an in-memory NotesStore.
type memNotes struct {
	text    map[string]string
	deleted []string
}

func newMemNotes() *memNotes { return &memNotes{text: make(map[string]string)} }

func (m *memNotes) Load(_ context.Context, campaignID string) (string, error) {
	return m.text[campaignID], nil
}

func (m *memNotes) Save(_ context.Context, campaignID, text string) error {
	m.text[campaignID] = text
	return nil
}

func (m *memNotes) Delete(_ context.Context, campaignID string) error {
	delete(m.text, campaignID)
	m.deleted = append(m.deleted, campaignID)
	return nil
}

// testEnv is a service over an in-memory store with a pinned clock.
type testEnv struct {
	store    *kvstore.MemoryStore
	events   EventRepository
	entities EntityRepository
	notes    *memNotes
	catalog  *Catalog
	now      time.Time
	svc      AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   kvstore.NewMemoryStore(),
		notes:   newMemNotes(),
		catalog: DefaultCatalog(),
		now:     t0,
	}
	env.events = NewEventRepository(env.store)
	env.entities = NewEntityRepository(env.store)
	env.svc = NewAuditService(env.events, env.entities, env.notes, env.catalog,
		WithClock(fixedClock(&env.now)),
		WithIDGenerator(seqIDs()),
	)
	return env
}

// eventsFor filters events by entity and field.
func eventsFor(events []AuditEvent, et EntityType, entityID, field string) []AuditEvent {
	var out []AuditEvent
	for _, e := range events {
		if e.EntityType == et && e.EntityID == entityID && e.Field == field {
			out = append(out, e)
		}
	}
	return out
}

func strPtr(s string) *string { return &s }
