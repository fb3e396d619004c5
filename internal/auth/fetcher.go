package auth

import (
	"github.com/glitchcodes/restroom-backend/internal/db"
	"github.com/glitchcodes/restroom-backend/internal/utils"
)

// SessionInfo reads sessions and roles from app_auth. It satisfies both
// middleware.SessionFetcher and middleware.RoleLookup.
type SessionInfo struct{}

func (si SessionInfo) FindSessionByID(id string) (utils.SessionData, error) {
	var session Session

	err := db.DB.First(&session, "session_id = ?", id).Error
	if err != nil {
		return utils.SessionData{}, err
	}

	return utils.SessionData{
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (si SessionInfo) RoleForUser(userID string) (string, error) {
	var user User
	if err := db.DB.Select("user_id", "role").First(&user, "user_id = ?", userID).Error; err != nil {
		return "", err
	}
	if user.Role == "" {
		return RoleUser, nil
	}
	return user.Role, nil
}
