package dto

import (
	"time"

	"github.com/thereayou/groupchat/internal/models"
)

// CreateUserRequest is used by SuperAdmins to provision accounts directly.
type CreateUserRequest struct {
	RegisterRequest
	Roles []models.Role `json:"roles"`
}

type UpdateMeRequest struct {
	Username  string `json:"username" binding:"omitempty,min=3,max=50"`
	AvatarURL string `json:"avatar_url"`
}

type RoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type UserResponse struct {
	ID         models.ID     `json:"id"`
	Username   string        `json:"username"`
	Email      string        `json:"email,omitempty"`
	AvatarURL  string        `json:"avatar_url"`
	Roles      []models.Role `json:"roles,omitempty"`
	Groups     models.IDs    `json:"groups,omitempty"`
	Valid      bool          `json:"valid"`
	LastSeenAt time.Time     `json:"last_seen_at"`
	CreatedAt  time.Time     `json:"created_at,omitempty"`
}

// PrivateUser includes the account details only the owner or a SuperAdmin
// may see.
func PrivateUser(u *models.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		AvatarURL:  u.AvatarURL,
		Roles:      u.Roles,
		Groups:     u.Groups,
		Valid:      u.Valid,
		LastSeenAt: u.LastSeenAt,
		CreatedAt:  u.CreatedAt,
	}
}

func PublicUser(u *models.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		AvatarURL:  u.AvatarURL,
		Valid:      u.Valid,
		LastSeenAt: u.LastSeenAt,
	}
}
