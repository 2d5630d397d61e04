package notes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/krishangopalgupta/NotesApp/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	// ErrNoteNotFound covers missing notes, notes owned by someone else, and notes in the wrong trash state.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrEmptyContent indicates a note without content.
	ErrEmptyContent = errors.New("notes: content must not be empty")
	// ErrEmptyTitle indicates a title update that trims to nothing.
	ErrEmptyTitle = errors.New("notes: title must not be empty")
	// ErrEmptyUpdate indicates an update without any fields.
	ErrEmptyUpdate = errors.New("notes: update carries no fields")
)

const (
	opServiceNew     = "notes.service.new"
	opCreateNote     = "notes.create_note"
	opGetNote        = "notes.get_note"
	opListNotes      = "notes.list_notes"
	opUpdateNote     = "notes.update_note"
	opSoftDelete     = "notes.soft_delete"
	opRestoreNote    = "notes.restore_note"
	opRestoreAll     = "notes.restore_all"
	opHardDelete     = "notes.hard_delete"
	opListTrash      = "notes.list_trash"
	opTogglePin      = "notes.toggle_pin"
	opListPinned     = "notes.list_pinned"
	opToggleArchive  = "notes.toggle_archive"
	opToggleFavorite = "notes.toggle_favourite"
	opPurgeTrash     = "notes.purge_trash"

	reasonMissingDatabase = "missing_database"
	reasonInvalidOwner    = "invalid_owner"
	reasonNoteNotFound    = "note_not_found"
	reasonQueryFailed     = "query_failed"
	reasonUpdateFailed    = "update_failed"

	queryActiveNote  = "id = ? AND owner_id = ? AND is_deleted = ?"
	queryOwnerActive = "owner_id = ? AND is_deleted = ?"
)

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns every note read and mutation. All operations are scoped to the requesting owner.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(apperr.KindInternal, opServiceNew, reasonMissingDatabase, "", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// CreateNote stores a new active note for owner.
func (s *Service) CreateNote(ctx context.Context, owner UserID, input NewNote) (Note, error) {
	if err := s.ready(opCreateNote, owner); err != nil {
		return Note{}, err
	}
	if strings.TrimSpace(input.Content) == "" {
		return Note{}, s.reject(opCreateNote, apperr.KindInvalidInput, "empty_content", "content is required", ErrEmptyContent)
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		return Note{}, s.internal(opCreateNote, "id_generation_failed", err, zap.String("user_id", owner.String()))
	}

	now := s.now()
	note := Note{
		ID:        noteID,
		OwnerID:   owner.String(),
		Title:     strings.TrimSpace(input.Title),
		Content:   input.Content,
		Tags:      NormalizeTags(input.Tags),
		Reminder:  utcPointer(input.Reminder),
		CreatedAt: now,
		UpdatedAt: now,
	}
	note.RefreshSearchText()
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		return Note{}, s.internal(opCreateNote, "note_insert_failed", err, zap.String("user_id", owner.String()))
	}
	return note, nil
}

// GetNote returns an active note owned by owner.
func (s *Service) GetNote(ctx context.Context, owner UserID, noteID NoteID) (Note, error) {
	if err := s.ready(opGetNote, owner); err != nil {
		return Note{}, err
	}
	note, err := s.loadActive(s.db.WithContext(ctx), opGetNote, owner, noteID)
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// ListNotes returns one page of owner's active notes matching filters.
func (s *Service) ListNotes(ctx context.Context, owner UserID, filters ListFilters) (NotePage, error) {
	if err := s.ready(opListNotes, owner); err != nil {
		return NotePage{}, err
	}
	normalized, err := filters.normalized()
	if err != nil {
		return NotePage{}, s.reject(opListNotes, apperr.KindInvalidInput, "invalid_filters", err.Error(), err)
	}

	scoped := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&Note{}).Where(queryOwnerActive, owner.String(), false)
		query = applyFlagFilters(query, normalized)
		return applySearch(query, searchTerms(normalized.Search))
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return NotePage{}, s.internal(opListNotes, reasonQueryFailed, err, zap.String("user_id", owner.String()))
	}

	notes := make([]Note, 0, normalized.Limit)
	if err := scoped().
		Order(normalized.orderClause()).
		Offset(normalized.offset()).
		Limit(normalized.Limit).
		Find(&notes).Error; err != nil {
		return NotePage{}, s.internal(opListNotes, reasonQueryFailed, err, zap.String("user_id", owner.String()))
	}

	return NotePage{
		Notes:      notes,
		Page:       normalized.Page,
		Limit:      normalized.Limit,
		Total:      total,
		TotalPages: totalPages(total, normalized.Limit),
	}, nil
}

// UpdateNote applies a partial update to an active note. Tags, when present, replace the stored set.
func (s *Service) UpdateNote(ctx context.Context, owner UserID, noteID NoteID, update NoteUpdate) (Note, error) {
	if err := s.ready(opUpdateNote, owner); err != nil {
		return Note{}, err
	}
	if update.IsEmpty() {
		return Note{}, s.reject(opUpdateNote, apperr.KindInvalidInput, "empty_update", "no fields to update", ErrEmptyUpdate)
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return Note{}, s.reject(opUpdateNote, apperr.KindInvalidInput, "empty_title", "title must not be empty", ErrEmptyTitle)
	}
	if update.Content != nil && strings.TrimSpace(*update.Content) == "" {
		return Note{}, s.reject(opUpdateNote, apperr.KindInvalidInput, "empty_content", "content must not be empty", ErrEmptyContent)
	}

	var updated Note
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := s.loadActive(tx, opUpdateNote, owner, noteID)
		if err != nil {
			return err
		}

		columns := []string{"updated_at"}
		if update.Title != nil {
			note.Title = strings.TrimSpace(*update.Title)
			columns = append(columns, "title")
		}
		if update.Content != nil {
			note.Content = *update.Content
			columns = append(columns, "content")
		}
		if update.Tags != nil {
			note.Tags = NormalizeTags(*update.Tags)
			columns = append(columns, "tags")
		}
		if update.Reminder != nil {
			note.Reminder = utcPointer(update.Reminder)
			columns = append(columns, "reminder")
		}
		if update.Title != nil || update.Content != nil || update.Tags != nil {
			note.RefreshSearchText()
			columns = append(columns, "search_text")
		}
		note.UpdatedAt = s.now()

		if err := tx.Model(&note).Select(columns).Updates(&note).Error; err != nil {
			return s.internal(opUpdateNote, reasonUpdateFailed, err,
				zap.String("user_id", owner.String()),
				zap.String("note_id", noteID.String()))
		}
		updated = note
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	return updated, nil
}

func (s *Service) loadActive(db *gorm.DB, operation string, owner UserID, noteID NoteID) (Note, error) {
	var note Note
	err := db.Where(queryActiveNote, noteID.String(), owner.String(), false).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, s.reject(operation, apperr.KindNotFound, reasonNoteNotFound, "note not found", ErrNoteNotFound)
	}
	if err != nil {
		return Note{}, s.internal(operation, reasonQueryFailed, err,
			zap.String("user_id", owner.String()),
			zap.String("note_id", noteID.String()))
	}
	return note, nil
}

func (s *Service) ready(operation string, owner UserID) error {
	if s == nil || s.db == nil {
		return s.internal(operation, reasonMissingDatabase, errMissingDatabase)
	}
	if strings.TrimSpace(owner.String()) == "" {
		return s.reject(operation, apperr.KindUnauthenticated, reasonInvalidOwner, "authentication required", ErrInvalidUserID)
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func (s *Service) reject(operation string, kind apperr.Kind, reason, message string, cause error) error {
	s.loggerOrDefault().Debug("notes request rejected",
		zap.String("operation", operation),
		zap.String("reason", reason))
	return apperr.New(kind, operation, reason, message, cause)
}

func (s *Service) internal(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return apperr.New(apperr.KindInternal, operation, reason, "internal error", err)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
