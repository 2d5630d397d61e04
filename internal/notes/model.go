package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxPinnedNotes bounds how many active notes an owner may pin at once.
const MaxPinnedNotes = 3

var (
	// ErrInvalidNoteID indicates that a note identifier is not a UUID.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidUserID indicates that an owner identifier is empty.
	ErrInvalidUserID = errors.New("notes: invalid user id")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidNoteID, err)
	}
	return NoteID(parsed.String()), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID identifies the owner of a note.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Note is the persisted note record. IsDeleted and DeletedAt always move together.
type Note struct {
	ID          string     `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	OwnerID     string     `gorm:"column:owner_id;size:36;not null;index:idx_notes_owner_state,priority:1" json:"ownerId"`
	Title       string     `gorm:"column:title;size:512;not null;default:''" json:"title"`
	Content     string     `gorm:"column:content;type:text;not null" json:"content"`
	Tags        []string   `gorm:"column:tags;type:text;serializer:json" json:"tags"`
	SearchText  string     `gorm:"column:search_text;type:text;not null;default:''" json:"-"`
	IsPinned    bool       `gorm:"column:is_pinned;not null;default:false;index:idx_notes_owner_state,priority:3" json:"isPinned"`
	IsArchived  bool       `gorm:"column:is_archived;not null;default:false" json:"isArchived"`
	IsDeleted   bool       `gorm:"column:is_deleted;not null;default:false;index:idx_notes_owner_state,priority:2" json:"isDeleted"`
	IsFavourite bool       `gorm:"column:is_favourite;not null;default:false" json:"isFavourite"`
	DeletedAt   *time.Time `gorm:"column:deleted_at;index" json:"deletedAt,omitempty"`
	Reminder    *time.Time `gorm:"column:reminder" json:"reminder,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null;autoCreateTime:false" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// RefreshSearchText rebuilds the lower-cased search document from title, content and tags.
func (n *Note) RefreshSearchText() {
	n.SearchText = SearchDocument(n.Title, n.Content, n.Tags)
}

// SearchDocument joins the searchable fields with newlines and folds them with
// strings.ToLower, the same folding applied to search terms.
func SearchDocument(title, content string, tags []string) string {
	parts := make([]string, 0, len(tags)+2)
	parts = append(parts, title, content)
	parts = append(parts, tags...)
	return strings.ToLower(strings.Join(parts, "\n"))
}

// NewNote captures the input for CreateNote.
type NewNote struct {
	Title    string
	Content  string
	Tags     []string
	Reminder *time.Time
}

// NoteUpdate is a partial update; nil fields are left untouched and Tags replaces the whole set.
type NoteUpdate struct {
	Title    *string
	Content  *string
	Tags     *[]string
	Reminder *time.Time
}

// IsEmpty reports whether the update carries no fields.
func (u NoteUpdate) IsEmpty() bool {
	return u.Title == nil && u.Content == nil && u.Tags == nil && u.Reminder == nil
}

// NormalizeTags trims and lower-cases tags, dropping empties and duplicates while keeping first-seen order.
func NormalizeTags(raw []string) []string {
	normalized := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, tag := range raw {
		value := strings.ToLower(strings.TrimSpace(tag))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		normalized = append(normalized, value)
	}
	return normalized
}

// PinResult reports the state after TogglePin.
type PinResult struct {
	NoteID   string `json:"id"`
	IsPinned bool   `json:"isPinned"`
}

// ArchiveResult reports the state after ToggleArchive.
type ArchiveResult struct {
	NoteID     string `json:"id"`
	IsArchived bool   `json:"isArchived"`
}

// FavouriteResult reports the state after ToggleFavourite.
type FavouriteResult struct {
	NoteID      string `json:"id"`
	IsFavourite bool   `json:"isFavourite"`
}

// RestoredNote summarises a note brought back from the trash.
type RestoredNote struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// RestoreAllResult reports what RestoreAllNotes brought back.
type RestoreAllResult struct {
	RestoredCount int            `json:"restoredNotes"`
	Notes         []RestoredNote `json:"notes"`
}

// NotePage is one page of a listing.
type NotePage struct {
	Notes      []Note `json:"notes"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int64  `json:"total"`
	TotalPages int    `json:"totalPages"`
}
