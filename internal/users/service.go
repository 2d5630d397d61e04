package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/krishangopalgupta/NotesApp/internal/apperr"
	"github.com/krishangopalgupta/NotesApp/internal/auth"
	"github.com/krishangopalgupta/NotesApp/internal/media"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase  = errors.New("database handle is required")
	errMissingPasswords = errors.New("password hasher is required")
	errMissingTokens    = errors.New("token issuer is required")
	errMissingMedia     = errors.New("media store is required")
	noOpLogger          = zap.NewNop()

	// ErrUserNotFound indicates that no user matches the lookup.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrUserExists indicates a username or email collision.
	ErrUserExists = errors.New("users: username or email already taken")
	// ErrInvalidCredentials indicates a failed password check.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrRefreshTokenMismatch indicates a refresh token that is not the user's current one.
	ErrRefreshTokenMismatch = errors.New("users: refresh token is not current")
	// ErrNotAccountOwner indicates a request against another user's account.
	ErrNotAccountOwner = errors.New("users: requester does not own the account")
	// ErrAvatarRequired indicates a signup without an avatar.
	ErrAvatarRequired = errors.New("users: avatar is required")
)

const (
	opServiceNew     = "users.service.new"
	opSignup         = "users.signup"
	opLogin          = "users.login"
	opRefresh        = "users.refresh_session"
	opLogout         = "users.logout"
	opChangePassword = "users.change_password"
	opUpdateProfile  = "users.update_profile"
	opUpdateAvatar   = "users.update_avatar"
	opListUsers      = "users.list_users"
	opGetProfile     = "users.get_profile"

	reasonMissingDatabase = "missing_database"
	reasonInvalidInput    = "invalid_input"
	reasonUserNotFound    = "user_not_found"
	reasonUserExists      = "user_exists"
	reasonQueryFailed     = "query_failed"
	reasonUpdateFailed    = "update_failed"
	reasonForbidden       = "not_account_owner"
	reasonBadCredentials  = "invalid_credentials"
	reasonTokenFailed     = "token_issue_failed"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(digest, plain string) error
}

// TokenIssuer issues and validates session tokens.
type TokenIssuer interface {
	Issue(kind auth.TokenKind, userID string) (auth.IssuedToken, error)
	Validate(kind auth.TokenKind, token string) (auth.TokenClaims, error)
}

type ServiceConfig struct {
	Database  *gorm.DB
	Passwords PasswordHasher
	Tokens    TokenIssuer
	Media     media.Store
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service is the user directory: accounts, credentials and single-session refresh tokens.
type Service struct {
	db        *gorm.DB
	passwords PasswordHasher
	tokens    TokenIssuer
	media     media.Store
	validate  *validator.Validate
	clock     func() time.Time
	logger    *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Database == nil:
		return nil, apperr.New(apperr.KindInternal, opServiceNew, reasonMissingDatabase, "", errMissingDatabase)
	case cfg.Passwords == nil:
		return nil, apperr.New(apperr.KindInternal, opServiceNew, "missing_password_hasher", "", errMissingPasswords)
	case cfg.Tokens == nil:
		return nil, apperr.New(apperr.KindInternal, opServiceNew, "missing_token_issuer", "", errMissingTokens)
	case cfg.Media == nil:
		return nil, apperr.New(apperr.KindInternal, opServiceNew, "missing_media_store", "", errMissingMedia)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:        cfg.Database,
		passwords: cfg.Passwords,
		tokens:    cfg.Tokens,
		media:     cfg.Media,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		clock:     clock,
		logger:    logger,
	}, nil
}

// Signup registers a user, stores the avatar and opens a session.
// The uploaded avatar is removed again when the account cannot be created.
func (s *Service) Signup(ctx context.Context, input SignupInput, avatar media.Upload) (Session, error) {
	if s == nil || s.db == nil {
		return Session{}, s.internal(opSignup, reasonMissingDatabase, errMissingDatabase)
	}
	input = input.normalized()
	if err := s.validate.Struct(input); err != nil {
		return Session{}, s.reject(opSignup, apperr.KindInvalidInput, reasonInvalidInput, describeValidation(err), err)
	}
	if avatar.Body == nil {
		return Session{}, s.reject(opSignup, apperr.KindInvalidInput, "avatar_required", "avatar image is required", ErrAvatarRequired)
	}

	taken, err := s.handleTaken(ctx, "", input.Username, input.Email)
	if err != nil {
		return Session{}, s.internal(opSignup, reasonQueryFailed, err)
	}
	if taken {
		return Session{}, s.reject(opSignup, apperr.KindAlreadyExists, reasonUserExists, "username or email already taken", ErrUserExists)
	}

	digest, err := s.passwords.Hash(input.Password)
	if err != nil {
		return Session{}, s.internal(opSignup, "password_hash_failed", err)
	}

	object, err := s.media.Upload(ctx, avatar)
	if err != nil {
		return Session{}, s.reject(opSignup, apperr.KindInvalidInput, "avatar_upload_failed", "avatar upload failed", err)
	}

	userID, err := uuid.NewV7()
	if err != nil {
		s.discardAvatar(ctx, opSignup, object.ID)
		return Session{}, s.internal(opSignup, "id_generation_failed", err)
	}
	now := s.now()
	user := User{
		ID:              userID.String(),
		Username:        input.Username,
		Email:           input.Email,
		FullName:        input.FullName,
		PasswordHash:    digest,
		AvatarURL:       object.URL,
		AvatarStorageID: object.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		s.discardAvatar(ctx, opSignup, object.ID)
		if isDuplicateKey(err) {
			return Session{}, s.reject(opSignup, apperr.KindAlreadyExists, reasonUserExists, "username or email already taken", ErrUserExists)
		}
		return Session{}, s.internal(opSignup, "user_insert_failed", err)
	}

	s.loggerOrDefault().Info("user signed up", zap.String("user_id", user.ID))
	return s.openSession(ctx, opSignup, user, "")
}

// Login authenticates by username or email and replaces any previous session.
func (s *Service) Login(ctx context.Context, identifier, password string) (Session, error) {
	if s == nil || s.db == nil {
		return Session{}, s.internal(opLogin, reasonMissingDatabase, errMissingDatabase)
	}
	handle := normalizeHandle(identifier)
	if handle == "" || password == "" {
		return Session{}, s.reject(opLogin, apperr.KindInvalidInput, reasonInvalidInput, "identifier and password are required", ErrInvalidCredentials)
	}

	var user User
	err := s.db.WithContext(ctx).Where("username = ? OR email = ?", handle, handle).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, s.reject(opLogin, apperr.KindNotFound, reasonUserNotFound, "user not found", ErrUserNotFound)
	}
	if err != nil {
		return Session{}, s.internal(opLogin, reasonQueryFailed, err)
	}

	if err := s.passwords.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return Session{}, s.reject(opLogin, apperr.KindUnauthenticated, reasonBadCredentials, "invalid credentials", ErrInvalidCredentials)
		}
		return Session{}, s.internal(opLogin, "password_compare_failed", err, zap.String("user_id", user.ID))
	}
	return s.openSession(ctx, opLogin, user, "")
}

// RefreshSession exchanges the current refresh token for a new token pair.
// Only the most recently issued refresh token is accepted; it is rotated atomically.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (Session, error) {
	if s == nil || s.db == nil {
		return Session{}, s.internal(opRefresh, reasonMissingDatabase, errMissingDatabase)
	}
	claims, err := s.tokens.Validate(auth.TokenKindRefresh, strings.TrimSpace(refreshToken))
	if err != nil {
		return Session{}, s.reject(opRefresh, apperr.KindUnauthenticated, "invalid_refresh_token", "invalid refresh token", err)
	}

	user, err := s.load(ctx, opRefresh, claims.UserID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return Session{}, s.reject(opRefresh, apperr.KindUnauthenticated, "invalid_refresh_token", "invalid refresh token", err)
		}
		return Session{}, err
	}
	fingerprint := auth.FingerprintToken(strings.TrimSpace(refreshToken))
	if user.RefreshTokenHash == "" || user.RefreshTokenHash != fingerprint {
		return Session{}, s.reject(opRefresh, apperr.KindUnauthenticated, "refresh_token_mismatch", "refresh token is expired or used", ErrRefreshTokenMismatch)
	}
	return s.openSession(ctx, opRefresh, user, fingerprint)
}

// Logout drops the stored refresh token.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if s == nil || s.db == nil {
		return s.internal(opLogout, reasonMissingDatabase, errMissingDatabase)
	}
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"refresh_token_hash": "", "updated_at": s.now()})
	if result.Error != nil {
		return s.internal(opLogout, reasonUpdateFailed, result.Error, zap.String("user_id", userID))
	}
	if result.RowsAffected == 0 {
		return s.reject(opLogout, apperr.KindNotFound, reasonUserNotFound, "user not found", ErrUserNotFound)
	}
	return nil
}

// ChangePassword replaces the password after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, requesterID, userID, oldPassword, newPassword string) error {
	if s == nil || s.db == nil {
		return s.internal(opChangePassword, reasonMissingDatabase, errMissingDatabase)
	}
	if err := s.ensureOwner(opChangePassword, requesterID, userID); err != nil {
		return err
	}
	change := passwordChange{OldPassword: oldPassword, NewPassword: newPassword}
	if err := s.validate.Struct(change); err != nil {
		return s.reject(opChangePassword, apperr.KindInvalidInput, reasonInvalidInput, describeValidation(err), err)
	}

	user, err := s.load(ctx, opChangePassword, userID)
	if err != nil {
		return err
	}
	if err := s.passwords.Compare(user.PasswordHash, oldPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return s.reject(opChangePassword, apperr.KindUnauthenticated, reasonBadCredentials, "old password is incorrect", ErrInvalidCredentials)
		}
		return s.internal(opChangePassword, "password_compare_failed", err, zap.String("user_id", userID))
	}

	digest, err := s.passwords.Hash(newPassword)
	if err != nil {
		return s.internal(opChangePassword, "password_hash_failed", err, zap.String("user_id", userID))
	}
	if err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"password_hash": digest, "updated_at": s.now()}).Error; err != nil {
		return s.internal(opChangePassword, reasonUpdateFailed, err, zap.String("user_id", userID))
	}
	return nil
}

// UpdateProfile changes username, email or full name.
func (s *Service) UpdateProfile(ctx context.Context, requesterID, userID string, update ProfileUpdate) (Profile, error) {
	if s == nil || s.db == nil {
		return Profile{}, s.internal(opUpdateProfile, reasonMissingDatabase, errMissingDatabase)
	}
	if err := s.ensureOwner(opUpdateProfile, requesterID, userID); err != nil {
		return Profile{}, err
	}
	update = update.normalized()
	if update.IsEmpty() {
		return Profile{}, s.reject(opUpdateProfile, apperr.KindInvalidInput, "empty_update", "no fields to update", nil)
	}
	for field, value := range map[string]*string{"username": update.Username, "email": update.Email, "fullname": update.FullName} {
		if value != nil && *value == "" {
			return Profile{}, s.reject(opUpdateProfile, apperr.KindInvalidInput, reasonInvalidInput, field+" must not be empty", nil)
		}
	}
	if err := s.validate.Struct(update); err != nil {
		return Profile{}, s.reject(opUpdateProfile, apperr.KindInvalidInput, reasonInvalidInput, describeValidation(err), err)
	}

	user, err := s.load(ctx, opUpdateProfile, userID)
	if err != nil {
		return Profile{}, err
	}

	changes := map[string]any{}
	var username, email string
	if update.Username != nil && *update.Username != user.Username {
		username = *update.Username
		changes["username"] = username
	}
	if update.Email != nil && *update.Email != user.Email {
		email = *update.Email
		changes["email"] = email
	}
	if update.FullName != nil {
		changes["full_name"] = *update.FullName
	}
	if username != "" || email != "" {
		taken, err := s.handleTaken(ctx, userID, username, email)
		if err != nil {
			return Profile{}, s.internal(opUpdateProfile, reasonQueryFailed, err, zap.String("user_id", userID))
		}
		if taken {
			return Profile{}, s.reject(opUpdateProfile, apperr.KindAlreadyExists, reasonUserExists, "username or email already taken", ErrUserExists)
		}
	}
	changes["updated_at"] = s.now()

	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(changes).Error; err != nil {
		if isDuplicateKey(err) {
			return Profile{}, s.reject(opUpdateProfile, apperr.KindAlreadyExists, reasonUserExists, "username or email already taken", ErrUserExists)
		}
		return Profile{}, s.internal(opUpdateProfile, reasonUpdateFailed, err, zap.String("user_id", userID))
	}

	reloaded, err := s.load(ctx, opUpdateProfile, userID)
	if err != nil {
		return Profile{}, err
	}
	return reloaded.Profile(), nil
}

// UpdateAvatar stores a replacement avatar and then removes the previous object.
func (s *Service) UpdateAvatar(ctx context.Context, requesterID, userID string, avatar media.Upload) (Profile, error) {
	if s == nil || s.db == nil {
		return Profile{}, s.internal(opUpdateAvatar, reasonMissingDatabase, errMissingDatabase)
	}
	if err := s.ensureOwner(opUpdateAvatar, requesterID, userID); err != nil {
		return Profile{}, err
	}
	if avatar.Body == nil {
		return Profile{}, s.reject(opUpdateAvatar, apperr.KindInvalidInput, "avatar_required", "avatar image is required", ErrAvatarRequired)
	}

	user, err := s.load(ctx, opUpdateAvatar, userID)
	if err != nil {
		return Profile{}, err
	}
	object, err := s.media.Upload(ctx, avatar)
	if err != nil {
		return Profile{}, s.reject(opUpdateAvatar, apperr.KindInvalidInput, "avatar_upload_failed", "avatar upload failed", err)
	}

	now := s.now()
	if err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"avatar_url":        object.URL,
			"avatar_storage_id": object.ID,
			"updated_at":        now,
		}).Error; err != nil {
		s.discardAvatar(ctx, opUpdateAvatar, object.ID)
		return Profile{}, s.internal(opUpdateAvatar, reasonUpdateFailed, err, zap.String("user_id", userID))
	}
	if user.AvatarStorageID != "" {
		s.discardAvatar(ctx, opUpdateAvatar, user.AvatarStorageID)
	}

	user.AvatarURL = object.URL
	user.AvatarStorageID = object.ID
	user.UpdatedAt = now
	return user.Profile(), nil
}

// ListUsers returns every account, oldest first.
func (s *Service) ListUsers(ctx context.Context) ([]Profile, error) {
	if s == nil || s.db == nil {
		return nil, s.internal(opListUsers, reasonMissingDatabase, errMissingDatabase)
	}
	var records []User
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&records).Error; err != nil {
		return nil, s.internal(opListUsers, reasonQueryFailed, err)
	}
	profiles := make([]Profile, 0, len(records))
	for _, record := range records {
		profiles = append(profiles, record.Profile())
	}
	return profiles, nil
}

// GetProfile returns the redacted profile of userID.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	if s == nil || s.db == nil {
		return Profile{}, s.internal(opGetProfile, reasonMissingDatabase, errMissingDatabase)
	}
	user, err := s.load(ctx, opGetProfile, userID)
	if err != nil {
		return Profile{}, err
	}
	return user.Profile(), nil
}

// openSession issues a token pair and stores the refresh fingerprint.
// A non-empty previous fingerprint makes the write conditional so a refresh token can be used once.
func (s *Service) openSession(ctx context.Context, operation string, user User, previous string) (Session, error) {
	access, err := s.tokens.Issue(auth.TokenKindAccess, user.ID)
	if err != nil {
		return Session{}, s.internal(operation, reasonTokenFailed, err, zap.String("user_id", user.ID))
	}
	refresh, err := s.tokens.Issue(auth.TokenKindRefresh, user.ID)
	if err != nil {
		return Session{}, s.internal(operation, reasonTokenFailed, err, zap.String("user_id", user.ID))
	}

	query := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", user.ID)
	if previous != "" {
		query = query.Where("refresh_token_hash = ?", previous)
	}
	now := s.now()
	result := query.Updates(map[string]any{
		"refresh_token_hash": auth.FingerprintToken(refresh.Value),
		"updated_at":         now,
	})
	if result.Error != nil {
		return Session{}, s.internal(operation, reasonUpdateFailed, result.Error, zap.String("user_id", user.ID))
	}
	if result.RowsAffected == 0 {
		return Session{}, s.reject(operation, apperr.KindUnauthenticated, "refresh_token_mismatch", "refresh token is expired or used", ErrRefreshTokenMismatch)
	}

	user.UpdatedAt = now
	return Session{Profile: user.Profile(), AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) load(ctx context.Context, operation, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, s.reject(operation, apperr.KindNotFound, reasonUserNotFound, "user not found", ErrUserNotFound)
	}
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, s.reject(operation, apperr.KindNotFound, reasonUserNotFound, "user not found", ErrUserNotFound)
	}
	if err != nil {
		return User{}, s.internal(operation, reasonQueryFailed, err, zap.String("user_id", userID))
	}
	return user, nil
}

func (s *Service) ensureOwner(operation, requesterID, userID string) error {
	if strings.TrimSpace(requesterID) == "" || requesterID != userID {
		return s.reject(operation, apperr.KindForbidden, reasonForbidden, "you can only modify your own account", ErrNotAccountOwner)
	}
	return nil
}

// handleTaken reports whether username or email belongs to an account other than excludeID.
func (s *Service) handleTaken(ctx context.Context, excludeID, username, email string) (bool, error) {
	query := s.db.WithContext(ctx).Model(&User{})
	switch {
	case username != "" && email != "":
		query = query.Where("username = ? OR email = ?", username, email)
	case username != "":
		query = query.Where("username = ?", username)
	case email != "":
		query = query.Where("email = ?", email)
	default:
		return false, nil
	}
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) discardAvatar(ctx context.Context, operation, objectID string) {
	if objectID == "" {
		return
	}
	if err := s.media.Delete(ctx, objectID); err != nil {
		s.loggerOrDefault().Warn("avatar cleanup failed",
			zap.String("operation", operation),
			zap.String("object_id", objectID),
			zap.Error(err))
	}
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func describeValidation(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return "invalid input"
	}
	first := validationErrors[0]
	field := strings.ToLower(first.Field())
	switch first.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, first.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, first.Param())
	case "alphanum":
		return fmt.Sprintf("%s may contain only letters and digits", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func (s *Service) reject(operation string, kind apperr.Kind, reason, message string, cause error) error {
	s.loggerOrDefault().Debug("users request rejected",
		zap.String("operation", operation),
		zap.String("reason", reason))
	return apperr.New(kind, operation, reason, message, cause)
}

func (s *Service) internal(operation, reason string, err error, fields ...zap.Field) error {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("users service error", attrs...)
	return apperr.New(apperr.KindInternal, operation, reason, "internal error", err)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}
