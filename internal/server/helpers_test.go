package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krishangopalgupta/NotesApp/internal/auth"
	"github.com/krishangopalgupta/NotesApp/internal/database"
	"github.com/krishangopalgupta/NotesApp/internal/media"
	"github.com/krishangopalgupta/NotesApp/internal/notes"
	"github.com/krishangopalgupta/NotesApp/internal/users"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var testAvatar = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type fakeMediaStore struct {
	mu      sync.Mutex
	uploads []string
	deleted []string
}

func (f *fakeMediaStore) Upload(_ context.Context, upload media.Upload) (media.Object, error) {
	if _, _, err := media.ReadImage(upload, media.DefaultMaxAvatarBytes); err != nil {
		return media.Object{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("avatars/test/%d.png", len(f.uploads)+1)
	f.uploads = append(f.uploads, id)
	return media.Object{ID: id, URL: "https://cdn.test/" + id}, nil
}

func (f *fakeMediaStore) Delete(_ context.Context, objectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, objectID)
	return nil
}

type testServer struct {
	handler  http.Handler
	db       *gorm.DB
	tokens   *auth.TokenIssuer
	realtime *RealtimeDispatcher
	media    *fakeMediaStore
	logs     *observer.ObservedLogs
}

func newTestServer(t *testing.T, mutate ...func(*Dependencies)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		AccessSecret:  []byte("server-access-secret"),
		RefreshSecret: []byte("server-refresh-secret"),
		Issuer:        "notesapp-test",
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{Tokens: tokens})
	if err != nil {
		t.Fatalf("failed to build session validator: %v", err)
	}

	store := &fakeMediaStore{}
	usersService, err := users.NewService(users.ServiceConfig{
		Database:  db,
		Passwords: auth.NewPasswordHasher(bcrypt.MinCost),
		Tokens:    tokens,
		Media:     store,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	notesService, err := notes.NewService(notes.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build notes service: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	deps := Dependencies{
		Sessions:          sessions,
		UsersService:      usersService,
		NotesService:      notesService,
		Realtime:          realtime,
		AllowedOrigins:    []string{"https://app.example.com"},
		AuthRateLimit:     RateLimit{PerMinute: 1000, Burst: 1000},
		HeartbeatInterval: time.Hour,
		Logger:            logger,
	}
	for _, apply := range mutate {
		apply(&deps)
	}

	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testServer{
		handler:  handler,
		db:       db,
		tokens:   tokens,
		realtime: realtime,
		media:    store,
		logs:     logs,
	}
}

func signupRequest(t *testing.T, fields map[string]string, avatar []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if avatar != nil {
		part, err := writer.CreateFormFile("avatar", "me.png")
		if err != nil {
			t.Fatalf("failed to create avatar part: %v", err)
		}
		if _, err := part.Write(avatar); err != nil {
			t.Fatalf("failed to write avatar: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, apiPrefix+"/users/signup", body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return request
}

func signupFields(username string) map[string]string {
	return map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"fullName": "Test " + username,
		"password": "password-" + username,
	}
}

func (s *testServer) mustSignup(t *testing.T, username string) sessionPayload {
	t.Helper()
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, signupRequest(t, signupFields(username), testAvatar))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("signup %s: expected 201, got %d: %s", username, recorder.Code, recorder.Body.String())
	}
	var session sessionPayload
	decodeData(t, recorder, &session)
	return session
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, apiPrefix+path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testServer) mustCreateNote(t *testing.T, token, title, content string, tags ...string) notes.Note {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/notes", token, map[string]any{"title": title, "content": content, "tags": tags})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create note: expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var note notes.Note
	decodeData(t, recorder, &note)
	return note
}

func decodeData(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	var envelope struct {
		Status  int             `json:"status"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode envelope: %v (%s)", err, recorder.Body.String())
	}
	if envelope.Status != recorder.Code {
		t.Fatalf("envelope status %d does not match response code %d", envelope.Status, recorder.Code)
	}
	if target == nil {
		return
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		t.Fatalf("failed to decode data: %v (%s)", err, string(envelope.Data))
	}
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var envelope errorEnvelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v (%s)", err, recorder.Body.String())
	}
	if envelope.Status != recorder.Code {
		t.Fatalf("envelope status %d does not match response code %d", envelope.Status, recorder.Code)
	}
	return envelope
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, recorder.Code, recorder.Body.String())
	}
}
