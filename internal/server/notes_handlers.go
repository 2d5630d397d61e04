package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krishangopalgupta/NotesApp/internal/notes"
)

type createNoteRequestPayload struct {
	Title    string     `json:"title"`
	Content  string     `json:"content"`
	Tags     []string   `json:"tags"`
	Reminder *time.Time `json:"reminder"`
}

type updateNoteRequestPayload struct {
	Title    *string    `json:"title"`
	Content  *string    `json:"content"`
	Tags     *[]string  `json:"tags"`
	Reminder *time.Time `json:"reminder"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var request createNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	owner := notes.UserID(currentUserID(c))
	note, err := h.notesService.CreateNote(c.Request.Context(), owner, notes.NewNote{
		Title:    request.Title,
		Content:  request.Content,
		Tags:     request.Tags,
		Reminder: request.Reminder,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishNoteChange(owner.String(), NoteActionCreated, note.ID)
	respond(c, http.StatusCreated, note, "note created")
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	note, err := h.notesService.GetNote(c.Request.Context(), notes.UserID(currentUserID(c)), noteID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, note, "note fetched")
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	filters, err := parseListFilters(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}
	page, err := h.notesService.ListNotes(c.Request.Context(), notes.UserID(currentUserID(c)), filters)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, page, "notes fetched")
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	var request updateNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	owner := notes.UserID(currentUserID(c))
	note, err := h.notesService.UpdateNote(c.Request.Context(), owner, noteID, notes.NoteUpdate{
		Title:    request.Title,
		Content:  request.Content,
		Tags:     request.Tags,
		Reminder: request.Reminder,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishNoteChange(owner.String(), NoteActionUpdated, note.ID)
	respond(c, http.StatusOK, note, "note updated")
}

func (h *httpHandler) handleSoftDelete(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	owner := notes.UserID(currentUserID(c))
	if err := h.notesService.SoftDeleteNote(c.Request.Context(), owner, noteID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishNoteChange(owner.String(), NoteActionTrashed, noteID.String())
	respond(c, http.StatusOK, gin.H{"id": noteID.String()}, "note moved to trash")
}

func (h *httpHandler) handleHardDelete(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	owner := notes.UserID(currentUserID(c))
	if err := h.notesService.HardDeleteNote(c.Request.Context(), owner, noteID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishNoteChange(owner.String(), NoteActionPurged, noteID.String())
	respond(c, http.StatusOK, gin.H{"id": noteID.String()}, "note permanently deleted")
}

func (h *httpHandler) handleRestore(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	owner := notes.UserID(currentUserID(c))
	note, err := h.notesService.RestoreNote(c.Request.Context(), owner, noteID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishNoteChange(owner.String(), NoteActionRestored, note.ID)
	respond(c, http.StatusOK, note, "note restored")
}

func (h *httpHandler) handleRestoreAll(c *gin.Context) {
	owner := notes.UserID(currentUserID(c))
	result, err := h.notesService.RestoreAllNotes(c.Request.Context(), owner)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	ids := make([]string, 0, len(result.Notes))
	for _, restored := range result.Notes {
		ids = append(ids, restored.ID)
	}
	h.publishNoteChange(owner.String(), NoteActionRestored, ids...)
	respond(c, http.StatusOK, result, "notes restored")
}

func (h *httpHandler) handleListTrash(c *gin.Context) {
	trashed, err := h.notesService.ListTrash(c.Request.Context(), notes.UserID(currentUserID(c)))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, trashed, "trash fetched")
}

func (h *httpHandler) handleTogglePin(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	owner := notes.UserID(currentUserID(c))
	result, err := h.notesService.TogglePin(c.Request.Context(), owner, noteID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishNoteChange(owner.String(), NoteActionPinned, result.NoteID)
	message := "note unpinned"
	if result.IsPinned {
		message = "note pinned"
	}
	respond(c, http.StatusOK, result, message)
}

func (h *httpHandler) handleListPinned(c *gin.Context) {
	pinned, err := h.notesService.ListPinned(c.Request.Context(), notes.UserID(currentUserID(c)))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, pinned, "pinned notes fetched")
}

func (h *httpHandler) handleToggleArchive(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	owner := notes.UserID(currentUserID(c))
	result, err := h.notesService.ToggleArchive(c.Request.Context(), owner, noteID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishNoteChange(owner.String(), NoteActionArchived, result.NoteID)
	message := "note unarchived"
	if result.IsArchived {
		message = "note archived"
	}
	respond(c, http.StatusOK, result, message)
}

func (h *httpHandler) handleToggleFavourite(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	owner := notes.UserID(currentUserID(c))
	result, err := h.notesService.ToggleFavourite(c.Request.Context(), owner, noteID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishNoteChange(owner.String(), NoteActionFavourite, result.NoteID)
	message := "note removed from favourites"
	if result.IsFavourite {
		message = "note added to favourites"
	}
	respond(c, http.StatusOK, result, message)
}

func noteIDParam(c *gin.Context) (notes.NoteID, bool) {
	noteID, err := notes.NewNoteID(c.Param("noteId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_note_id", "note id must be a UUID")
		return "", false
	}
	return noteID, true
}

// parseListFilters reads q (or search), sort, page, limit, archived and favourite.
func parseListFilters(c *gin.Context) (notes.ListFilters, error) {
	sortOrder, err := notes.ParseSortOrder(c.Query("sort"))
	if err != nil {
		return notes.ListFilters{}, err
	}
	filters := notes.ListFilters{
		Search: firstNonEmpty(c.Query("q"), c.Query("search")),
		Sort:   sortOrder,
	}
	if filters.Page, err = queryInt(c, "page"); err != nil {
		return notes.ListFilters{}, err
	}
	if filters.Limit, err = queryInt(c, "limit"); err != nil {
		return notes.ListFilters{}, err
	}
	if filters.Archived, err = queryBool(c, "archived"); err != nil {
		return notes.ListFilters{}, err
	}
	if filters.Favourite, err = queryBool(c, "favourite"); err != nil {
		return notes.ListFilters{}, err
	}
	return filters, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, &queryError{key: key, want: "a positive integer"}
	}
	return value, nil
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &queryError{key: key, want: "true or false"}
	}
	return &value, nil
}

type queryError struct {
	key  string
	want string
}

func (e *queryError) Error() string {
	return "query parameter " + e.key + " must be " + e.want
}
