package notes

import (
	"context"
	"fmt"

	"github.com/keyxmakerx/beacon/internal/kvstore"
)

// NoteRepository defines the data access contract for notes.
type NoteRepository interface {
	// Get returns the note text and whether one is stored.
	Get(ctx context.Context, campaignID string) (string, bool, error)
	Put(ctx context.Context, campaignID, text string) error
	Delete(ctx context.Context, campaignID string) error
}

// noteRepository implements NoteRepository over a kvstore.Store.
type noteRepository struct {
	store kvstore.Store
}

// NewNoteRepository creates a note repository backed by store.
func NewNoteRepository(store kvstore.Store) NoteRepository {
	return &noteRepository{store: store}
}

// Get implements NoteRepository.
func (r *noteRepository) Get(ctx context.Context, campaignID string) (string, bool, error) {
	text, found, err := r.store.Get(ctx, Key(campaignID))
	if err != nil {
		return "", false, fmt.Errorf("reading note %s: %w", campaignID, err)
	}
	return text, found, nil
}

// Put implements NoteRepository.
func (r *noteRepository) Put(ctx context.Context, campaignID, text string) error {
	if err := r.store.Set(ctx, Key(campaignID), text); err != nil {
		return fmt.Errorf("writing note %s: %w", campaignID, err)
	}
	return nil
}

// Delete implements NoteRepository.
func (r *noteRepository) Delete(ctx context.Context, campaignID string) error {
	if err := r.store.Delete(ctx, Key(campaignID)); err != nil {
		return fmt.Errorf("deleting note %s: %w", campaignID, err)
	}
	return nil
}
