package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keyxmakerx/beacon/internal/apperror"
)

// NoteService defines the business logic contract for notes. It satisfies
// the audit package's NotesStore.
type NoteService interface {
	// Load returns the campaign's note, or "" if none was saved.
	Load(ctx context.Context, campaignID string) (string, error)

	// Save replaces the note. It is called on every change.
	Save(ctx context.Context, campaignID, text string) error

	// Delete removes the note. Deleting a missing note is not an error.
	Delete(ctx context.Context, campaignID string) error
}

// noteService implements NoteService.
type noteService struct {
	repo NoteRepository
}

// NewNoteService creates a new note service.
func NewNoteService(repo NoteRepository) NoteService {
	return &noteService{repo: repo}
}

// Load implements NoteService.
func (s *noteService) Load(ctx context.Context, campaignID string) (string, error) {
	campaignID, err := validCampaign(campaignID)
	if err != nil {
		return "", err
	}
	text, _, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		return "", apperror.NewInternal(err)
	}
	return text, nil
}

// Save implements NoteService. Text is stored as given; surrounding
// whitespace is meaningful to the user.
func (s *noteService) Save(ctx context.Context, campaignID, text string) error {
	campaignID, err := validCampaign(campaignID)
	if err != nil {
		return err
	}
	if len(text) > MaxNoteLength {
		return apperror.NewBadRequest(fmt.Sprintf("notes must be %d bytes or less", MaxNoteLength))
	}
	if err := s.repo.Put(ctx, campaignID, text); err != nil {
		slog.Error("failed to save notes",
			slog.String("campaign_id", campaignID),
			slog.Any("error", err),
		)
		return apperror.NewInternal(err)
	}
	return nil
}

// Delete implements NoteService.
func (s *noteService) Delete(ctx context.Context, campaignID string) error {
	campaignID, err := validCampaign(campaignID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, campaignID); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

func validCampaign(campaignID string) (string, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return "", apperror.NewBadRequest("campaign ID is required")
	}
	return campaignID, nil
}
