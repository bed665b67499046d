package model

import "time"

// Kind identifies a replicated record type on the wire.
type Kind string

const (
	KindUser        Kind = "user"
	KindMealPlan    Kind = "meal_plan"
	KindChatMessage Kind = "chat_message"
)

// Record is implemented by every type the engine can replicate.
type Record interface {
	RecordID() string
	RecordKind() Kind
	Stamp() Stamp
}

// Stamp is the comparable version of a record used for last-write-wins.
type Stamp struct {
	Version   int64
	UpdatedAt time.Time
}

// NewerThan returns true if s should replace other.
// Comparison order: Version, then UpdatedAt. Equal stamps are not newer.
func (s Stamp) NewerThan(other Stamp) bool {
	if s.Version > other.Version {
		return true
	}
	if s.Version < other.Version {
		return false
	}
	return s.UpdatedAt.After(other.UpdatedAt)
}

// Role is the application role of a user account.
type Role string

const (
	RoleProgrammer Role = "programmer"
	RoleManager    Role = "manager"
	RoleNormal     Role = "normal"
)

// User is a replicated user account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	CreatedBy    string    `json:"created_by,omitempty"`
	Version      int64     `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u User) RecordID() string { return u.ID }
func (u User) RecordKind() Kind { return KindUser }

// Stamp falls back to CreatedAt for accounts that were never edited.
func (u User) Stamp() Stamp {
	updated := u.UpdatedAt
	if updated.IsZero() {
		updated = u.CreatedAt
	}
	return Stamp{Version: u.Version, UpdatedAt: updated}
}

// MealPlan is a replicated weekly meal plan for one user.
// Meals maps a day name to the chosen meal.
type MealPlan struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	WeekNumber     int               `json:"week_number"`
	Year           int               `json:"year"`
	Meals          map[string]string `json:"meals,omitempty"`
	Version        int64             `json:"version"`
	LastModified   time.Time         `json:"last_modified"`
	LastModifiedBy string            `json:"last_modified_by,omitempty"`
}

func (p MealPlan) RecordID() string { return p.ID }
func (p MealPlan) RecordKind() Kind { return KindMealPlan }
func (p MealPlan) Stamp() Stamp {
	return Stamp{Version: p.Version, UpdatedAt: p.LastModified}
}

// ChatMessage is a fire-and-forget chat event. It is never persisted.
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	ReceiverID string    `json:"receiver_id,omitempty"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

func (m ChatMessage) RecordID() string { return m.ID }
func (m ChatMessage) RecordKind() Kind { return KindChatMessage }
func (m ChatMessage) Stamp() Stamp {
	return Stamp{Version: 1, UpdatedAt: m.Timestamp}
}
