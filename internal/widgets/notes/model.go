// Package notes implements the free-text notes widget shown beside the
// audit drawer. Each campaign has at most one note, stored as plain text
// under manual_export_notes_<campaignId> in the key-value store so logs
// written by the browser build load unchanged.
package notes

// KeyPrefix prefixes the campaign id to form a note's store key.
const KeyPrefix = "manual_export_notes_"

// MaxNoteLength caps a note in bytes.
const MaxNoteLength = 64 * 1024

// Key returns the store key of a campaign's note.
func Key(campaignID string) string {
	return KeyPrefix + campaignID
}

// Note is the API representation of a campaign's note.
type Note struct {
	CampaignID string `json:"campaignId"`
	Text       string `json:"text"`
}

// --- Request DTOs ---

// SaveNoteRequest replaces a campaign's note text.
type SaveNoteRequest struct {
	Text string `json:"text" form:"notes"`
}
