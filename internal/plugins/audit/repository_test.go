package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/keyxmakerx/beacon/internal/kvstore"
)

// failingStore is a kvstore.Store whose every call fails.
type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingStore) Set(context.Context, string, string) error         { return f.err }
func (f failingStore) Delete(context.Context, string) error              { return f.err }

func ev(id, campaignID string, et EntityType, entityID string, action Action, field, value string) AuditEvent {
	return AuditEvent{
		ID:         id,
		Timestamp:  t0,
		CampaignID: campaignID,
		EntityType: et,
		EntityID:   entityID,
		Action:     action,
		Field:      field,
		NewValue:   value,
		User:       DefaultUser,
	}
}

func at(e AuditEvent, ts time.Time) AuditEvent {
	e.Timestamp = ts
	return e
}

func TestEventRepository_CorruptReadsAsEmpty(t *testing.T) {
	store := kvstore.NewMemoryStore()
	ctx := context.Background()
	if err := store.Set(ctx, AuditKey, "{not json"); err != nil {
		t.Fatal(err)
	}
	repo := NewEventRepository(store)

	events, err := repo.ListByCampaign(ctx, "c1")
	if err != nil {
		t.Fatalf("corrupt log must not error, got %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected empty list, got %d", len(events))
	}

	// The next write replaces the corrupt value with a valid collection.
	if err := repo.Append(ctx, []AuditEvent{ev("e1", "c1", EntityCampaign, "c1", ActionCreate, "budget", "1")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, _, _ := store.Get(ctx, AuditKey)
	var decoded []AuditEvent
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil || len(decoded) != 1 {
		t.Errorf("expected one valid event stored, got %q (%v)", raw, err)
	}
}

func TestEventRepository_PersistedShape(t *testing.T) {
	store := kvstore.NewMemoryStore()
	ctx := context.Background()
	repo := NewEventRepository(store)

	e := ev("e1", "c1", EntityCampaign, "c1", ActionEdit, "budget", "1500")
	e.OldValue = strPtr("1000")
	if err := repo.Append(ctx, []AuditEvent{e}); err != nil {
		t.Fatal(err)
	}

	raw, found, _ := store.Get(ctx, AuditKey)
	if !found {
		t.Fatal("expected audit_log_v1 to be written")
	}
	var generic []map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "ts", "campaignId", "entityType", "entityId", "action", "field", "oldValue", "newValue", "user"} {
		if _, ok := generic[0][key]; !ok {
			t.Errorf("persisted event is missing %q: %s", key, raw)
		}
	}
}

func TestEventRepository_ListIsIsolatedAndSorted(t *testing.T) {
	repo := NewEventRepository(kvstore.NewMemoryStore())
	ctx := context.Background()

	err := repo.Append(ctx, []AuditEvent{
		at(ev("late", "c1", EntityCampaign, "c1", ActionEdit, "budget", "2"), t2),
		ev("other", "c2", EntityCampaign, "c2", ActionCreate, "budget", "9"),
		ev("first", "c1", EntityCampaign, "c1", ActionCreate, "budget", "1"),
		ev("second", "c1", EntityAdGroup, "ag1", ActionCreate, "bidStrategy", "x"),
		at(ev("mid", "c1", EntityAdGroup, "ag1", ActionEdit, "bidStrategy", "y"), t1),
		ev("bogus", "c1", "creative", "cr1", ActionCreate, "size", "300x250"),
	})
	if err != nil {
		t.Fatal(err)
	}

	events, err := repo.ListByCampaign(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"first", "second", "mid", "late"}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), events)
	}
	for i, id := range want {
		if events[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, events[i].ID)
		}
	}
}

func TestEventRepository_Deletes(t *testing.T) {
	ctx := context.Background()
	seed := func(t *testing.T) EventRepository {
		t.Helper()
		repo := NewEventRepository(kvstore.NewMemoryStore())
		err := repo.Append(ctx, []AuditEvent{
			ev("c-create", "c1", EntityCampaign, "c1", ActionCreate, "budget", "1"),
			ev("c-edit", "c1", EntityCampaign, "c1", ActionEdit, "budget", "2"),
			// Same id as the ad group below, but campaign-typed.
			ev("c-collide", "c1", EntityCampaign, "ag1", ActionCreate, "seed", "s"),
			ev("ag-create", "c1", EntityAdGroup, "ag1", ActionCreate, "bidStrategy", "x"),
			ev("ag-edit", "c1", EntityAdGroup, "ag1", ActionEdit, "bidStrategy", "y"),
			ev("ag2-create", "c1", EntityAdGroup, "ag2", ActionCreate, "bidStrategy", "z"),
			ev("other", "c2", EntityAdGroup, "ag1", ActionCreate, "bidStrategy", "w"),
		})
		if err != nil {
			t.Fatal(err)
		}
		return repo
	}
	ids := func(events []AuditEvent) map[string]bool {
		out := map[string]bool{}
		for _, e := range events {
			out[e.ID] = true
		}
		return out
	}

	t.Run("by entity", func(t *testing.T) {
		repo := seed(t)
		removed, err := repo.DeleteByEntity(ctx, "c1", "ag1")
		if err != nil {
			t.Fatal(err)
		}
		if removed != 2 {
			t.Errorf("expected 2 removed, got %d", removed)
		}
		left, _ := repo.ListByCampaign(ctx, "c1")
		got := ids(left)
		if !got["c-collide"] || !got["ag2-create"] || got["ag-create"] {
			t.Errorf("unexpected survivors %v", got)
		}
		other, _ := repo.ListByCampaign(ctx, "c2")
		if len(other) != 1 {
			t.Errorf("other campaign was touched: %+v", other)
		}
	})

	t.Run("by campaign", func(t *testing.T) {
		repo := seed(t)
		removed, err := repo.DeleteByCampaign(ctx, "c1")
		if err != nil {
			t.Fatal(err)
		}
		if removed != 6 {
			t.Errorf("expected 6 removed, got %d", removed)
		}
		other, _ := repo.ListByCampaign(ctx, "c2")
		if len(other) != 1 {
			t.Errorf("other campaign was touched: %+v", other)
		}
	})

	t.Run("edits only", func(t *testing.T) {
		repo := seed(t)
		removed, err := repo.DeleteEdits(ctx, "c1")
		if err != nil {
			t.Fatal(err)
		}
		if removed != 2 {
			t.Errorf("expected 2 removed, got %d", removed)
		}
		left, _ := repo.ListByCampaign(ctx, "c1")
		for _, e := range left {
			if e.Action == ActionEdit {
				t.Errorf("edit %s survived", e.ID)
			}
		}
	})
}

func TestEventRepository_ReplaceCampaignFamily(t *testing.T) {
	repo := NewEventRepository(kvstore.NewMemoryStore())
	ctx := context.Background()

	if err := repo.Append(ctx, []AuditEvent{
		ev("old", "c1", EntityCampaign, "c1", ActionEdit, "budget", "2"),
		ev("keep", "c2", EntityCampaign, "c2", ActionEdit, "budget", "3"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.ReplaceCampaignFamily(ctx, "c1", []AuditEvent{
		ev("new", "c1", EntityCampaign, "c1", ActionCreate, "budget", "2"),
	}); err != nil {
		t.Fatal(err)
	}

	c1, _ := repo.ListByCampaign(ctx, "c1")
	if len(c1) != 1 || c1[0].ID != "new" {
		t.Errorf("expected only the replacement, got %+v", c1)
	}
	c2, _ := repo.ListByCampaign(ctx, "c2")
	if len(c2) != 1 || c2[0].ID != "keep" {
		t.Errorf("expected c2 untouched, got %+v", c2)
	}
}

func TestEventRepository_RewriteSeesSortedFamily(t *testing.T) {
	repo := NewEventRepository(kvstore.NewMemoryStore())
	ctx := context.Background()

	if err := repo.Append(ctx, []AuditEvent{
		at(ev("b", "c1", EntityCampaign, "c1", ActionEdit, "budget", "2"), t1),
		ev("a", "c1", EntityCampaign, "c1", ActionCreate, "budget", "1"),
	}); err != nil {
		t.Fatal(err)
	}

	var seen []string
	err := repo.RewriteCampaignFamily(ctx, "c1", func(family []AuditEvent) []AuditEvent {
		for _, e := range family {
			seen = append(seen, e.ID)
		}
		return family[:1]
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("expected sorted family [a b], got %v", seen)
	}
	left, _ := repo.ListByCampaign(ctx, "c1")
	if len(left) != 1 || left[0].ID != "a" {
		t.Errorf("expected rewrite result persisted, got %+v", left)
	}
}

func TestEventRepository_BackendErrors(t *testing.T) {
	boom := errors.New("connection refused")
	repo := NewEventRepository(failingStore{err: boom})
	ctx := context.Background()

	if _, err := repo.ListByCampaign(ctx, "c1"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped backend error, got %v", err)
	}
	if err := repo.Append(ctx, []AuditEvent{ev("e", "c1", EntityCampaign, "c1", ActionCreate, "budget", "1")}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped backend error, got %v", err)
	}
	// Appending nothing never touches the store.
	if err := repo.Append(ctx, nil); err != nil {
		t.Errorf("expected empty append to succeed, got %v", err)
	}
}

func TestEntityRepository_RoundTrip(t *testing.T) {
	store := kvstore.NewMemoryStore()
	ctx := context.Background()
	repo := NewEntityRepository(store)

	found, err := repo.FindCampaign(ctx, "c1")
	if err != nil || found != nil {
		t.Fatalf("expected no campaign on empty store, got %+v, %v", found, err)
	}

	// Values arrive as strings, numbers and nulls from the editor.
	raw := `[{"id":"g1","campaigns":[{"id":"c1","name":" Acme ","budget":1000,"kpi":null}]}]`
	if err := store.Set(ctx, CampaignGroupsKey, raw); err != nil {
		t.Fatal(err)
	}
	found, err = repo.FindCampaign(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.Name != "Acme" || found.Budget != "1000" || found.KPI != "" {
		t.Errorf("unexpected campaign %+v", found)
	}

	if err := repo.SaveAdGroups(ctx, []AdGroup{
		{ID: "ag1", Campaign: "c1"},
		{ID: "ag2", CampaignID: "c1"},
		{ID: "ag3", CampaignID: "c2"},
	}); err != nil {
		t.Fatal(err)
	}
	ags, err := repo.ListAdGroups(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ags) != 2 {
		t.Errorf("expected both reference styles to match, got %+v", ags)
	}

	if err := store.Set(ctx, AdGroupsKey, "garbage"); err != nil {
		t.Fatal(err)
	}
	if ags, err := repo.ListAdGroups(ctx, "c1"); err != nil || len(ags) != 0 {
		t.Errorf("expected corrupt collection to read as empty, got %+v, %v", ags, err)
	}
}
