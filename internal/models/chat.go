package models

import "time"

// DefaultAvatarColor is used when a participant does not pick a color.
const DefaultAvatarColor = "#0082FB"

// Participant is a connection that has identified itself with a display name.
type Participant struct {
	ConnectionID string    `json:"connectionId"`
	DisplayName  string    `json:"displayName"`
	AvatarColor  string    `json:"avatarColor"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Message is the immutable record of one send. RecipientConnectionID is nil
// for broadcasts.
type Message struct {
	ID                    int64     `json:"id"`
	Sender                string    `json:"sender"`
	SenderConnectionID    string    `json:"senderConnectionId"`
	RecipientConnectionID *string   `json:"recipientConnectionId,omitempty"`
	Content               string    `json:"content"`
	Timestamp             time.Time `json:"timestamp"`
	AvatarColor           string    `json:"avatarColor,omitempty"`
	IsPrivate             bool      `json:"isPrivate"`
}
