package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/krishangopalgupta/NotesApp/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsTrashTimestamps(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&notes.Note{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	updatedAt := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	stray := updatedAt.Add(-time.Hour)
	rows := []notes.Note{
		{ID: "11111111-1111-7111-8111-111111111111", OwnerID: "user-1", Content: "trashed", IsDeleted: true, CreatedAt: updatedAt, UpdatedAt: updatedAt},
		{ID: "22222222-2222-7222-8222-222222222222", OwnerID: "user-1", Content: "active", DeletedAt: &stray, CreatedAt: updatedAt, UpdatedAt: updatedAt},
	}
	if err := database.Create(&rows).Error; err != nil {
		testContext.Fatalf("failed to insert notes: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var trashed notes.Note
	if err := database.Where("id = ?", rows[0].ID).Take(&trashed).Error; err != nil {
		testContext.Fatalf("failed to reload trashed note: %v", err)
	}
	if trashed.DeletedAt == nil || !trashed.DeletedAt.Equal(updatedAt) {
		testContext.Fatalf("expected deleted_at backfilled from updated_at, got %v", trashed.DeletedAt)
	}

	var active notes.Note
	if err := database.Where("id = ?", rows[1].ID).Take(&active).Error; err != nil {
		testContext.Fatalf("failed to reload active note: %v", err)
	}
	if active.DeletedAt != nil {
		testContext.Fatalf("expected stray deleted_at cleared, got %v", active.DeletedAt)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillTrashTimestamps).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected re-run to be a no-op: %v", err)
	}
}

func TestApplyMigrationsBackfillsNoteSearchText(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "search.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&notes.Note{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	createdAt := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	legacy := notes.Note{
		ID:        "33333333-3333-7333-8333-333333333333",
		OwnerID:   "user-1",
		Title:     "Budget",
		Content:   "Visit ÉCOLE",
		Tags:      []string{"r&d"},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := database.Create(&legacy).Error; err != nil {
		testContext.Fatalf("failed to insert note: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var reloaded notes.Note
	if err := database.Where("id = ?", legacy.ID).Take(&reloaded).Error; err != nil {
		testContext.Fatalf("failed to reload note: %v", err)
	}
	if reloaded.SearchText != "budget\nvisit école\nr&d" {
		testContext.Fatalf("unexpected search text %q", reloaded.SearchText)
	}
	if !reloaded.UpdatedAt.Equal(createdAt) {
		testContext.Fatalf("expected updated_at untouched, got %v", reloaded.UpdatedAt)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillNoteSearchText).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
}

func TestOpenSQLiteCreatesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "notes.db")

	database, err := OpenSQLite(databasePath, nil)
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	for _, table := range []string{"users", "notes", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s", table)
		}
	}

	if _, err := OpenSQLite(" ", nil); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}
