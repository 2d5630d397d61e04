package database

import (
	"errors"
	"time"

	"github.com/krishangopalgupta/NotesApp/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillTrashTimestamps = "2026-10-01_backfill_trash_timestamps"
	migrationBackfillNoteSearchText  = "2026-10-15_backfill_note_search_text"

	searchTextBackfillBatchSize = 200
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillTrashTimestamps, apply: backfillTrashTimestamps},
		{name: migrationBackfillNoteSearchText, apply: backfillNoteSearchText},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// backfillTrashTimestamps makes deleted_at present exactly when is_deleted is set.
// Trashed rows without a timestamp take their last update time so the retention window still applies.
func backfillTrashTimestamps(db *gorm.DB) error {
	if err := db.Model(&notes.Note{}).
		Where("is_deleted = ? AND deleted_at IS NULL", true).
		Update("deleted_at", gorm.Expr("updated_at")).Error; err != nil {
		return err
	}
	return db.Model(&notes.Note{}).
		Where("is_deleted = ? AND deleted_at IS NOT NULL", false).
		Update("deleted_at", nil).Error
}

// backfillNoteSearchText fills search_text for rows written before the column existed.
// Folding happens in Go so stored documents match what the notes service writes.
func backfillNoteSearchText(db *gorm.DB) error {
	var batch []notes.Note
	return db.Model(&notes.Note{}).
		Select("id", "title", "content", "tags").
		FindInBatches(&batch, searchTextBackfillBatchSize, func(tx *gorm.DB, _ int) error {
			for _, note := range batch {
				document := notes.SearchDocument(note.Title, note.Content, note.Tags)
				if err := db.Model(&notes.Note{}).
					Where("id = ?", note.ID).
					UpdateColumn("search_text", document).Error; err != nil {
					return err
				}
			}
			return nil
		}).Error
}
