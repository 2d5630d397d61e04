package notes

import (
	"context"
	"errors"
	"time"

	"github.com/krishangopalgupta/NotesApp/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNoteAlreadyDeleted indicates a soft delete of a note already in the trash.
	ErrNoteAlreadyDeleted = errors.New("notes: note already deleted")
	// ErrNoteArchived indicates a pin attempt on an archived note.
	ErrNoteArchived = errors.New("notes: archived notes cannot be pinned")
	// ErrPinLimitExceeded indicates the owner already has MaxPinnedNotes pinned.
	ErrPinLimitExceeded = errors.New("notes: pinned note limit reached")
	// ErrTrashEmpty indicates RestoreAllNotes found nothing to restore.
	ErrTrashEmpty = errors.New("notes: trash is empty")
)

const (
	queryOwnedNote   = "id = ? AND owner_id = ?"
	queryTrashedNote = "id = ? AND owner_id = ? AND is_deleted = ?"
	queryPinnedCount = "owner_id = ? AND is_pinned = ? AND is_deleted = ?"
)

// SoftDeleteNote moves an active note to the trash.
func (s *Service) SoftDeleteNote(ctx context.Context, owner UserID, noteID NoteID) error {
	if err := s.ready(opSoftDelete, owner); err != nil {
		return err
	}

	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&Note{}).
		Where(queryActiveNote, noteID.String(), owner.String(), false).
		Updates(map[string]any{
			"is_deleted": true,
			"deleted_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return s.internal(opSoftDelete, reasonUpdateFailed, result.Error,
			zap.String("user_id", owner.String()),
			zap.String("note_id", noteID.String()))
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var existing Note
	err := s.db.WithContext(ctx).Where(queryOwnedNote, noteID.String(), owner.String()).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.reject(opSoftDelete, apperr.KindNotFound, reasonNoteNotFound, "note not found", ErrNoteNotFound)
	case err != nil:
		return s.internal(opSoftDelete, reasonQueryFailed, err, zap.String("note_id", noteID.String()))
	default:
		return s.reject(opSoftDelete, apperr.KindNotFound, "already_deleted", "note is already deleted", ErrNoteAlreadyDeleted)
	}
}

// RestoreNote brings a trashed note back. A pinned note comes back unpinned when the owner has no free pin slot.
func (s *Service) RestoreNote(ctx context.Context, owner UserID, noteID NoteID) (Note, error) {
	if err := s.ready(opRestoreNote, owner); err != nil {
		return Note{}, err
	}

	var restored Note
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var note Note
		err := tx.Where(queryTrashedNote, noteID.String(), owner.String(), true).Take(&note).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.reject(opRestoreNote, apperr.KindNotFound, "note_not_in_trash", "note not found in trash", ErrNoteNotFound)
		}
		if err != nil {
			return s.internal(opRestoreNote, reasonQueryFailed, err, zap.String("note_id", noteID.String()))
		}

		freeSlots, err := s.freePinSlots(tx, owner)
		if err != nil {
			return s.internal(opRestoreNote, reasonQueryFailed, err, zap.String("user_id", owner.String()))
		}
		if err := s.restoreOne(tx, &note, &freeSlots); err != nil {
			return s.internal(opRestoreNote, reasonUpdateFailed, err, zap.String("note_id", noteID.String()))
		}
		restored = note
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	return restored, nil
}

// RestoreAllNotes restores every trashed note of owner, most recently deleted first.
func (s *Service) RestoreAllNotes(ctx context.Context, owner UserID) (RestoreAllResult, error) {
	if err := s.ready(opRestoreAll, owner); err != nil {
		return RestoreAllResult{}, err
	}

	var report RestoreAllResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trashed []Note
		if err := tx.Where(queryOwnerActive, owner.String(), true).
			Order("deleted_at DESC, id ASC").
			Find(&trashed).Error; err != nil {
			return s.internal(opRestoreAll, reasonQueryFailed, err, zap.String("user_id", owner.String()))
		}
		if len(trashed) == 0 {
			return s.reject(opRestoreAll, apperr.KindNotFound, "trash_empty", "no deleted notes to restore", ErrTrashEmpty)
		}

		freeSlots, err := s.freePinSlots(tx, owner)
		if err != nil {
			return s.internal(opRestoreAll, reasonQueryFailed, err, zap.String("user_id", owner.String()))
		}

		report.Notes = make([]RestoredNote, 0, len(trashed))
		for index := range trashed {
			note := &trashed[index]
			if err := s.restoreOne(tx, note, &freeSlots); err != nil {
				return s.internal(opRestoreAll, reasonUpdateFailed, err, zap.String("note_id", note.ID))
			}
			report.Notes = append(report.Notes, RestoredNote{ID: note.ID, Content: note.Content})
		}
		report.RestoredCount = len(report.Notes)
		return nil
	})
	if err != nil {
		return RestoreAllResult{}, err
	}
	return report, nil
}

func (s *Service) restoreOne(tx *gorm.DB, note *Note, freeSlots *int64) error {
	if note.IsPinned {
		if *freeSlots > 0 {
			*freeSlots--
		} else {
			note.IsPinned = false
		}
	}
	note.IsDeleted = false
	note.DeletedAt = nil
	note.UpdatedAt = s.now()

	return tx.Model(&Note{}).
		Where(queryTrashedNote, note.ID, note.OwnerID, true).
		Updates(map[string]any{
			"is_deleted": false,
			"deleted_at": nil,
			"is_pinned":  note.IsPinned,
			"updated_at": note.UpdatedAt,
		}).Error
}

func (s *Service) freePinSlots(tx *gorm.DB, owner UserID) (int64, error) {
	var pinned int64
	if err := tx.Model(&Note{}).Where(queryPinnedCount, owner.String(), true, false).Count(&pinned).Error; err != nil {
		return 0, err
	}
	free := int64(MaxPinnedNotes) - pinned
	if free < 0 {
		free = 0
	}
	return free, nil
}

// HardDeleteNote permanently removes a note that is already in the trash.
func (s *Service) HardDeleteNote(ctx context.Context, owner UserID, noteID NoteID) error {
	if err := s.ready(opHardDelete, owner); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Where(queryTrashedNote, noteID.String(), owner.String(), true).
		Delete(&Note{})
	if result.Error != nil {
		return s.internal(opHardDelete, "delete_failed", result.Error, zap.String("note_id", noteID.String()))
	}
	if result.RowsAffected == 0 {
		return s.reject(opHardDelete, apperr.KindNotFound, "note_not_in_trash", "note not found in trash", ErrNoteNotFound)
	}
	return nil
}

// ListTrash returns owner's trashed notes, most recently deleted first.
func (s *Service) ListTrash(ctx context.Context, owner UserID) ([]Note, error) {
	if err := s.ready(opListTrash, owner); err != nil {
		return nil, err
	}
	notes := make([]Note, 0)
	if err := s.db.WithContext(ctx).
		Where(queryOwnerActive, owner.String(), true).
		Order("deleted_at DESC, id DESC").
		Find(&notes).Error; err != nil {
		return nil, s.internal(opListTrash, reasonQueryFailed, err, zap.String("user_id", owner.String()))
	}
	return notes, nil
}

// TogglePin flips the pin state of an active note.
// Pinning is a single conditional UPDATE guarded by the owner's pinned count, so concurrent pins cannot pass the limit.
func (s *Service) TogglePin(ctx context.Context, owner UserID, noteID NoteID) (PinResult, error) {
	if err := s.ready(opTogglePin, owner); err != nil {
		return PinResult{}, err
	}

	var outcome PinResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := s.loadActive(tx, opTogglePin, owner, noteID)
		if err != nil {
			return err
		}
		now := s.now()

		if note.IsPinned {
			if err := tx.Model(&Note{}).
				Where(queryActiveNote, note.ID, note.OwnerID, false).
				Updates(map[string]any{"is_pinned": false, "updated_at": now}).Error; err != nil {
				return s.internal(opTogglePin, reasonUpdateFailed, err, zap.String("note_id", note.ID))
			}
			outcome = PinResult{NoteID: note.ID, IsPinned: false}
			return nil
		}

		if note.IsArchived {
			return s.reject(opTogglePin, apperr.KindConflict, "note_archived", "archived notes cannot be pinned", ErrNoteArchived)
		}

		pinnedCount := tx.Model(&Note{}).
			Select("COUNT(*)").
			Where(queryPinnedCount, note.OwnerID, true, false)
		result := tx.Model(&Note{}).
			Where("id = ? AND owner_id = ? AND is_deleted = ? AND is_pinned = ? AND is_archived = ?",
				note.ID, note.OwnerID, false, false, false).
			Where("(?) < ?", pinnedCount, MaxPinnedNotes).
			Updates(map[string]any{"is_pinned": true, "updated_at": now})
		if result.Error != nil {
			return s.internal(opTogglePin, reasonUpdateFailed, result.Error, zap.String("note_id", note.ID))
		}
		if result.RowsAffected == 0 {
			return s.reject(opTogglePin, apperr.KindConflict, "pin_limit_exceeded", "you can pin at most 3 notes", ErrPinLimitExceeded)
		}
		outcome = PinResult{NoteID: note.ID, IsPinned: true}
		return nil
	})
	if err != nil {
		return PinResult{}, err
	}
	return outcome, nil
}

// ListPinned returns owner's pinned active notes, newest first.
func (s *Service) ListPinned(ctx context.Context, owner UserID) ([]Note, error) {
	if err := s.ready(opListPinned, owner); err != nil {
		return nil, err
	}
	notes := make([]Note, 0, MaxPinnedNotes)
	if err := s.db.WithContext(ctx).
		Where(queryPinnedCount, owner.String(), true, false).
		Order("created_at DESC, id DESC").
		Find(&notes).Error; err != nil {
		return nil, s.internal(opListPinned, reasonQueryFailed, err, zap.String("user_id", owner.String()))
	}
	return notes, nil
}

// ToggleArchive flips the archive state of an active note. Pin state is left alone.
func (s *Service) ToggleArchive(ctx context.Context, owner UserID, noteID NoteID) (ArchiveResult, error) {
	if err := s.ready(opToggleArchive, owner); err != nil {
		return ArchiveResult{}, err
	}
	note, err := s.flipFlag(ctx, opToggleArchive, owner, noteID, "is_archived", func(n *Note) bool {
		n.IsArchived = !n.IsArchived
		return n.IsArchived
	})
	if err != nil {
		return ArchiveResult{}, err
	}
	return ArchiveResult{NoteID: note.ID, IsArchived: note.IsArchived}, nil
}

// ToggleFavourite flips the favourite state of an active note.
func (s *Service) ToggleFavourite(ctx context.Context, owner UserID, noteID NoteID) (FavouriteResult, error) {
	if err := s.ready(opToggleFavorite, owner); err != nil {
		return FavouriteResult{}, err
	}
	note, err := s.flipFlag(ctx, opToggleFavorite, owner, noteID, "is_favourite", func(n *Note) bool {
		n.IsFavourite = !n.IsFavourite
		return n.IsFavourite
	})
	if err != nil {
		return FavouriteResult{}, err
	}
	return FavouriteResult{NoteID: note.ID, IsFavourite: note.IsFavourite}, nil
}

func (s *Service) flipFlag(ctx context.Context, operation string, owner UserID, noteID NoteID, column string, flip func(*Note) bool) (Note, error) {
	var flipped Note
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := s.loadActive(tx, operation, owner, noteID)
		if err != nil {
			return err
		}
		value := flip(&note)
		note.UpdatedAt = s.now()
		if err := tx.Model(&Note{}).
			Where(queryActiveNote, note.ID, note.OwnerID, false).
			Updates(map[string]any{column: value, "updated_at": note.UpdatedAt}).Error; err != nil {
			return s.internal(operation, reasonUpdateFailed, err, zap.String("note_id", note.ID))
		}
		flipped = note
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	return flipped, nil
}

// PurgeExpiredTrash permanently deletes every trashed note whose deletion time is before cutoff.
func (s *Service) PurgeExpiredTrash(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, s.internal(opPurgeTrash, reasonMissingDatabase, errMissingDatabase)
	}
	result := s.db.WithContext(ctx).
		Where("is_deleted = ? AND deleted_at IS NOT NULL AND deleted_at < ?", true, cutoff.UTC()).
		Delete(&Note{})
	if result.Error != nil {
		return 0, s.internal(opPurgeTrash, "delete_failed", result.Error, zap.Time("cutoff", cutoff))
	}
	return result.RowsAffected, nil
}
