package models

import "github.com/goccy/go-json"

// Inbound event types sent by clients.
const (
	EventIdentify       = "identify"
	EventSendBroadcast  = "send-broadcast"
	EventSendDirect     = "send-direct"
	EventTyping         = "typing"
	EventUpdateIdentity = "update-identity"
)

// Outbound event types pushed to clients.
const (
	EventPresenceSnapshot   = "presence-snapshot"
	EventParticipantJoined  = "participant-joined"
	EventParticipantLeft    = "participant-left"
	EventParticipantUpdated = "participant-updated"
	EventMessageBroadcast   = "message-broadcast"
	EventMessageDirect      = "message-direct"
	EventSendRejected       = "send-rejected"
	EventIdentifyRejected   = "identify-rejected"
	EventTypingChanged      = "typing-changed"
)

// Rejection kinds carried by send-rejected and identify-rejected.
const (
	RejectRecipientOffline = "recipient-offline"
	RejectInvalidUsername  = "invalid-username"
	RejectRateLimited      = "rate-limited"
)

// Event is the outbound envelope written to a connection.
type Event struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// InboundEvent is the envelope read from a connection. Data is decoded
// according to Type.
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound payloads

type IdentifyData struct {
	DisplayName string `json:"displayName"`
	AvatarColor string `json:"avatarColor"`
}

type SendBroadcastData struct {
	Content string `json:"content"`
}

type SendDirectData struct {
	RecipientConnectionID string `json:"recipientConnectionId"`
	Content               string `json:"content"`
}

type TypingData struct {
	IsTyping bool `json:"isTyping"`
}

// Outbound payloads

type PresenceData struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	AvatarColor  string `json:"avatarColor,omitempty"`
}

type RejectionData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type TypingChangedData struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	IsTyping     bool   `json:"isTyping"`
}
