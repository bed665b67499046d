// Package model defines the records replicated across the mesh and the
// session value that identifies who is sending them.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Session identifies the signed-in user on this device.
// It is passed explicitly to outbound engine calls; the zero value is an
// anonymous session and the engine falls back to the device name.
type Session struct {
	UserID      string
	DisplayName string
}

// NewChatMessage builds a chat message authored by the session user.
func (s Session) NewChatMessage(content string) ChatMessage {
	return ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   s.UserID,
		SenderName: s.DisplayName,
		Content:    content,
		Timestamp:  time.Now(),
	}
}

// NewUser creates a user account stamped as version 1.
func (s Session) NewUser(username, name string, role Role) User {
	now := time.Now()
	return User{
		ID:        uuid.NewString(),
		Username:  username,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		CreatedBy: s.UserID,
		Version:   1,
		UpdatedAt: now,
	}
}

// Touch returns a copy of the plan with a bumped version, attributed to the
// session user.
func (s Session) Touch(plan MealPlan) MealPlan {
	plan.Version++
	plan.LastModified = time.Now()
	plan.LastModifiedBy = s.UserID
	return plan
}
