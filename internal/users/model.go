package users

import (
	"strings"
	"time"

	"github.com/krishangopalgupta/NotesApp/internal/auth"
)

// User is the persisted account record. Secrets never leave the package; callers see Profile.
type User struct {
	ID               string    `gorm:"column:id;primaryKey;size:36;not null"`
	Username         string    `gorm:"column:username;size:64;not null;uniqueIndex:idx_users_username"`
	Email            string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_users_email"`
	FullName         string    `gorm:"column:full_name;size:256;not null"`
	PasswordHash     string    `gorm:"column:password_hash;size:128;not null"`
	RefreshTokenHash string    `gorm:"column:refresh_token_hash;size:64;not null;default:''"`
	AvatarURL        string    `gorm:"column:avatar_url;size:1024;not null;default:''"`
	AvatarStorageID  string    `gorm:"column:avatar_storage_id;size:512;not null;default:''"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Profile is the redacted view of a User.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	AvatarURL string    `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile projects the user without password or token material.
func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// SignupInput carries the account fields of a registration.
type SignupInput struct {
	Username string `validate:"required,min=3,max=30,alphanum"`
	Email    string `validate:"required,email,max=320"`
	FullName string `validate:"required,max=120"`
	Password string `validate:"required,min=8,max=72"`
}

func (in SignupInput) normalized() SignupInput {
	return SignupInput{
		Username: normalizeHandle(in.Username),
		Email:    normalizeHandle(in.Email),
		FullName: strings.TrimSpace(in.FullName),
		Password: in.Password,
	}
}

// ProfileUpdate is a partial update; nil fields are left untouched.
type ProfileUpdate struct {
	Username *string `validate:"omitempty,min=3,max=30,alphanum"`
	Email    *string `validate:"omitempty,email,max=320"`
	FullName *string `validate:"omitempty,min=1,max=120"`
}

// IsEmpty reports whether the update carries no fields.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Username == nil && u.Email == nil && u.FullName == nil
}

func (u ProfileUpdate) normalized() ProfileUpdate {
	var out ProfileUpdate
	if u.Username != nil {
		value := normalizeHandle(*u.Username)
		out.Username = &value
	}
	if u.Email != nil {
		value := normalizeHandle(*u.Email)
		out.Email = &value
	}
	if u.FullName != nil {
		value := strings.TrimSpace(*u.FullName)
		out.FullName = &value
	}
	return out
}

type passwordChange struct {
	OldPassword string `validate:"required"`
	NewPassword string `validate:"required,min=8,max=72"`
}

// Session is the outcome of signup, login and refresh.
type Session struct {
	Profile      Profile
	AccessToken  auth.IssuedToken
	RefreshToken auth.IssuedToken
}

func normalizeHandle(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
