package notes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/krishangopalgupta/NotesApp/internal/apperr"
)

func TestSoftDeleteThenRestoreKeepsFields(t *testing.T) {
	service, _, _ := newTestService(t)
	owner := mustUserID(t, "user-1")
	note := mustCreateNote(t, service, owner, NewNote{Title: "plan", Content: "trip", Tags: []string{"travel"}})
	noteID := mustNoteID(t, note.ID)
	if _, err := service.TogglePin(context.Background(), owner, noteID); err != nil {
		t.Fatalf("unexpected pin error: %v", err)
	}
	if _, err := service.ToggleFavourite(context.Background(), owner, noteID); err != nil {
		t.Fatalf("unexpected favourite error: %v", err)
	}
	before, err := service.GetNote(context.Background(), owner, noteID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}

	if err := service.SoftDeleteNote(context.Background(), owner, noteID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	trash, err := service.ListTrash(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected trash error: %v", err)
	}
	if len(trash) != 1 || !trash[0].IsDeleted || trash[0].DeletedAt == nil {
		t.Fatalf("expected note in trash with timestamp, got %+v", trash)
	}

	restored, err := service.RestoreNote(context.Background(), owner, noteID)
	if err != nil {
		t.Fatalf("unexpected restore error: %v", err)
	}
	if restored.IsDeleted || restored.DeletedAt != nil {
		t.Fatalf("expected restored note to be active, got %+v", restored)
	}

	after, err := service.GetNote(context.Background(), owner, noteID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if after.Title != before.Title || after.Content != before.Content ||
		after.IsPinned != before.IsPinned || after.IsFavourite != before.IsFavourite ||
		after.IsArchived != before.IsArchived || len(after.Tags) != len(before.Tags) ||
		!after.CreatedAt.Equal(before.CreatedAt) {
		t.Fatalf("expected pre-delete state, before=%+v after=%+v", before, after)
	}
}

func TestSoftDeleteRejectsMissingAndTrashedNotes(t *testing.T) {
	service, _, _ := newTestService(t)
	note := mustCreateNote(t, service, "user-1", NewNote{Content: "x"})
	noteID := mustNoteID(t, note.ID)

	err := service.SoftDeleteNote(context.Background(), "user-2", noteID)
	expectKind(t, err, apperr.KindNotFound)

	if err := service.SoftDeleteNote(context.Background(), "user-1", noteID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	err = service.SoftDeleteNote(context.Background(), "user-1", noteID)
	expectKind(t, err, apperr.KindNotFound)
	if !errors.Is(err, ErrNoteAlreadyDeleted) {
		t.Fatalf("expected already deleted error, got %v", err)
	}
}

func TestRestoreRequiresTrashedOwnedNote(t *testing.T) {
	service, _, _ := newTestService(t)
	note := mustCreateNote(t, service, "user-1", NewNote{Content: "x"})
	noteID := mustNoteID(t, note.ID)

	_, err := service.RestoreNote(context.Background(), "user-1", noteID)
	expectKind(t, err, apperr.KindNotFound)

	if err := service.SoftDeleteNote(context.Background(), "user-1", noteID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	_, err = service.RestoreNote(context.Background(), "user-2", noteID)
	expectKind(t, err, apperr.KindNotFound)
}

func TestRestoreUnpinsWhenPinSlotsAreFull(t *testing.T) {
	service, _, _ := newTestService(t)
	owner := mustUserID(t, "user-1")
	first := mustCreateNote(t, service, owner, NewNote{Content: "first"})
	firstID := mustNoteID(t, first.ID)
	if _, err := service.TogglePin(context.Background(), owner, firstID); err != nil {
		t.Fatalf("unexpected pin error: %v", err)
	}
	if err := service.SoftDeleteNote(context.Background(), owner, firstID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	for _, content := range []string{"a", "b", "c"} {
		note := mustCreateNote(t, service, owner, NewNote{Content: content})
		if _, err := service.TogglePin(context.Background(), owner, mustNoteID(t, note.ID)); err != nil {
			t.Fatalf("unexpected pin error: %v", err)
		}
	}

	restored, err := service.RestoreNote(context.Background(), owner, firstID)
	if err != nil {
		t.Fatalf("unexpected restore error: %v", err)
	}
	if restored.IsPinned {
		t.Fatalf("expected restored note to lose its pin")
	}
	pinned, err := service.ListPinned(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected pinned error: %v", err)
	}
	if len(pinned) != MaxPinnedNotes {
		t.Fatalf("expected %d pinned notes, got %d", MaxPinnedNotes, len(pinned))
	}
}

func TestRestoreAllReportsRestoredNotes(t *testing.T) {
	service, _, _ := newTestService(t)
	owner := mustUserID(t, "user-1")

	_, err := service.RestoreAllNotes(context.Background(), owner)
	expectKind(t, err, apperr.KindNotFound)

	var ids []NoteID
	for _, content := range []string{"one", "two", "three", "four", "five"} {
		note := mustCreateNote(t, service, owner, NewNote{Content: content})
		noteID := mustNoteID(t, note.ID)
		if _, err := service.TogglePin(context.Background(), owner, noteID); err != nil && len(ids) < MaxPinnedNotes {
			t.Fatalf("unexpected pin error: %v", err)
		}
		ids = append(ids, noteID)
	}
	for _, noteID := range ids {
		if err := service.SoftDeleteNote(context.Background(), owner, noteID); err != nil {
			t.Fatalf("unexpected delete error: %v", err)
		}
	}
	keeper := mustCreateNote(t, service, owner, NewNote{Content: "keeper"})
	if _, err := service.TogglePin(context.Background(), owner, mustNoteID(t, keeper.ID)); err != nil {
		t.Fatalf("unexpected pin error: %v", err)
	}
	mustCreateNote(t, service, "user-2", NewNote{Content: "untouched"})

	report, err := service.RestoreAllNotes(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected restore all error: %v", err)
	}
	if report.RestoredCount != 5 || len(report.Notes) != 5 {
		t.Fatalf("expected 5 restored notes, got %+v", report)
	}
	if report.Notes[0].Content != "five" {
		t.Fatalf("expected most recently deleted first, got %q", report.Notes[0].Content)
	}

	trash, err := service.ListTrash(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected trash error: %v", err)
	}
	if len(trash) != 0 {
		t.Fatalf("expected empty trash, got %d", len(trash))
	}
	pinned, err := service.ListPinned(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected pinned error: %v", err)
	}
	if len(pinned) > MaxPinnedNotes {
		t.Fatalf("pin limit violated after restore all: %d", len(pinned))
	}
}

func TestHardDeleteOnlyRemovesTrashedNotes(t *testing.T) {
	service, db, _ := newTestService(t)
	note := mustCreateNote(t, service, "user-1", NewNote{Content: "x"})
	noteID := mustNoteID(t, note.ID)

	err := service.HardDeleteNote(context.Background(), "user-1", noteID)
	expectKind(t, err, apperr.KindNotFound)

	if err := service.SoftDeleteNote(context.Background(), "user-1", noteID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	err = service.HardDeleteNote(context.Background(), "user-2", noteID)
	expectKind(t, err, apperr.KindNotFound)

	if err := service.HardDeleteNote(context.Background(), "user-1", noteID); err != nil {
		t.Fatalf("unexpected hard delete error: %v", err)
	}

	var count int64
	if err := db.Model(&Note{}).Where("id = ?", note.ID).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected note removed, found %d", count)
	}
	_, err = service.RestoreNote(context.Background(), "user-1", noteID)
	expectKind(t, err, apperr.KindNotFound)
	page, err := service.ListNotes(context.Background(), "user-1", ListFilters{})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected no notes listed, got %d", page.Total)
	}
}

func TestTogglePinEnforcesLimitAndArchive(t *testing.T) {
	service, _, _ := newTestService(t)
	owner := mustUserID(t, "user-1")

	var ids []NoteID
	for _, content := range []string{"a", "b", "c", "d"} {
		ids = append(ids, mustNoteID(t, mustCreateNote(t, service, owner, NewNote{Content: content}).ID))
	}
	for _, noteID := range ids[:3] {
		result, err := service.TogglePin(context.Background(), owner, noteID)
		if err != nil {
			t.Fatalf("unexpected pin error: %v", err)
		}
		if !result.IsPinned || result.NoteID != noteID.String() {
			t.Fatalf("unexpected pin result %+v", result)
		}
	}

	_, err := service.TogglePin(context.Background(), owner, ids[3])
	expectKind(t, err, apperr.KindConflict)
	if !errors.Is(err, ErrPinLimitExceeded) {
		t.Fatalf("expected pin limit error, got %v", err)
	}

	result, err := service.TogglePin(context.Background(), owner, ids[0])
	if err != nil {
		t.Fatalf("unexpected unpin error: %v", err)
	}
	if result.IsPinned {
		t.Fatalf("expected note to be unpinned")
	}
	if _, err := service.TogglePin(context.Background(), owner, ids[3]); err != nil {
		t.Fatalf("expected free slot after unpin: %v", err)
	}

	if _, err := service.ToggleArchive(context.Background(), owner, ids[0]); err != nil {
		t.Fatalf("unexpected archive error: %v", err)
	}
	_, err = service.TogglePin(context.Background(), owner, ids[0])
	expectKind(t, err, apperr.KindConflict)
	if !errors.Is(err, ErrNoteArchived) {
		t.Fatalf("expected archived error, got %v", err)
	}

	_, err = service.TogglePin(context.Background(), "user-2", ids[1])
	expectKind(t, err, apperr.KindNotFound)
}

func TestTogglePinArchivedFailsEvenWithFreeSlots(t *testing.T) {
	service, _, _ := newTestService(t)
	owner := mustUserID(t, "user-1")
	noteID := mustNoteID(t, mustCreateNote(t, service, owner, NewNote{Content: "a"}).ID)

	archived, err := service.ToggleArchive(context.Background(), owner, noteID)
	if err != nil {
		t.Fatalf("unexpected archive error: %v", err)
	}
	if !archived.IsArchived {
		t.Fatalf("expected archived state")
	}
	_, err = service.TogglePin(context.Background(), owner, noteID)
	expectKind(t, err, apperr.KindConflict)
}

func TestTogglePinConcurrentRequestsRespectLimit(t *testing.T) {
	service, _, _ := newTestService(t)
	owner := mustUserID(t, "user-1")

	var ids []NoteID
	for index := 0; index < 8; index++ {
		ids = append(ids, mustNoteID(t, mustCreateNote(t, service, owner, NewNote{Content: "note"}).ID))
	}

	var wg sync.WaitGroup
	for _, noteID := range ids {
		wg.Add(1)
		go func(id NoteID) {
			defer wg.Done()
			_, _ = service.TogglePin(context.Background(), owner, id)
		}(noteID)
	}
	wg.Wait()

	pinned, err := service.ListPinned(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected pinned error: %v", err)
	}
	if len(pinned) != MaxPinnedNotes {
		t.Fatalf("expected exactly %d pinned notes, got %d", MaxPinnedNotes, len(pinned))
	}
}

func TestListPinnedExcludesTrashedNotes(t *testing.T) {
	service, _, _ := newTestService(t)
	owner := mustUserID(t, "user-1")
	kept := mustNoteID(t, mustCreateNote(t, service, owner, NewNote{Content: "kept"}).ID)
	dropped := mustNoteID(t, mustCreateNote(t, service, owner, NewNote{Content: "dropped"}).ID)
	for _, noteID := range []NoteID{kept, dropped} {
		if _, err := service.TogglePin(context.Background(), owner, noteID); err != nil {
			t.Fatalf("unexpected pin error: %v", err)
		}
	}
	if err := service.SoftDeleteNote(context.Background(), owner, dropped); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	pinned, err := service.ListPinned(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected pinned error: %v", err)
	}
	if len(pinned) != 1 || pinned[0].ID != kept.String() {
		t.Fatalf("expected only kept note, got %+v", pinned)
	}
}

func TestToggleArchiveKeepsPinState(t *testing.T) {
	service, _, _ := newTestService(t)
	owner := mustUserID(t, "user-1")
	noteID := mustNoteID(t, mustCreateNote(t, service, owner, NewNote{Content: "a"}).ID)
	if _, err := service.TogglePin(context.Background(), owner, noteID); err != nil {
		t.Fatalf("unexpected pin error: %v", err)
	}

	result, err := service.ToggleArchive(context.Background(), owner, noteID)
	if err != nil {
		t.Fatalf("unexpected archive error: %v", err)
	}
	if !result.IsArchived {
		t.Fatalf("expected archived")
	}
	note, err := service.GetNote(context.Background(), owner, noteID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !note.IsPinned {
		t.Fatalf("expected pin state untouched by archive")
	}

	result, err = service.ToggleArchive(context.Background(), owner, noteID)
	if err != nil {
		t.Fatalf("unexpected unarchive error: %v", err)
	}
	if result.IsArchived {
		t.Fatalf("expected unarchived")
	}

	if err := service.SoftDeleteNote(context.Background(), owner, noteID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	_, err = service.ToggleArchive(context.Background(), owner, noteID)
	expectKind(t, err, apperr.KindNotFound)
}

func TestPurgeExpiredTrashHonoursCutoff(t *testing.T) {
	service, _, clock := newTestService(t)
	owner := mustUserID(t, "user-1")
	old := mustNoteID(t, mustCreateNote(t, service, owner, NewNote{Content: "old"}).ID)
	if err := service.SoftDeleteNote(context.Background(), owner, old); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	clock.Advance(31 * 24 * time.Hour)
	recent := mustNoteID(t, mustCreateNote(t, service, owner, NewNote{Content: "recent"}).ID)
	if err := service.SoftDeleteNote(context.Background(), owner, recent); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	mustCreateNote(t, service, owner, NewNote{Content: "active"})

	cutoff := clock.Now().Add(-DefaultRetentionWindow)
	purged, err := service.PurgeExpiredTrash(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("unexpected purge error: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged note, got %d", purged)
	}

	trash, err := service.ListTrash(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected trash error: %v", err)
	}
	if len(trash) != 1 || trash[0].ID != recent.String() {
		t.Fatalf("expected only recent note in trash, got %+v", trash)
	}
	page, err := service.ListNotes(context.Background(), owner, ListFilters{})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected active note untouched, got %d", page.Total)
	}
}
