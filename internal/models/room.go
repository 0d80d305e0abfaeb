package models

import (
	"regexp"
	"strings"
	"time"
)

// Room name validation: alphanumeric, hyphens, underscores, 1-50 chars.
var roomNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// assistantRoomPrefix namespaces per-user assistant rooms away from
// community room names.
const assistantRoomPrefix = "assistant:"

// Room describes a broadcast scope: either a pre-existing community room or
// a per-user assistant room created lazily on first join.
type Room struct {
	ID             string    `json:"id"` // Human-meaningful name, unique
	AllowAnonymous bool      `json:"allow_anonymous"`
	CreatedOnDemand bool     `json:"created_on_demand"`
	CreatedAt      time.Time `json:"created_at"`
}

// ValidRoomName reports whether name is acceptable as a community room ID.
func ValidRoomName(name string) bool {
	return roomNameRegex.MatchString(name)
}

// AssistantRoomID derives the per-user assistant room name for a user.
func AssistantRoomID(userID string) string {
	return assistantRoomPrefix + userID
}

// IsAssistantRoom reports whether roomID names a per-user assistant room.
func IsAssistantRoom(roomID string) bool {
	return strings.HasPrefix(roomID, assistantRoomPrefix)
}

// AssistantRoomOwner returns the userID an assistant room belongs to, or ""
// if roomID is not an assistant room.
func AssistantRoomOwner(roomID string) string {
	if !IsAssistantRoom(roomID) {
		return ""
	}
	return strings.TrimPrefix(roomID, assistantRoomPrefix)
}
