package chat

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
)

// Command is one inbound request from a connection.
type Command interface {
	command()
}

// Identify asks to register the connection as a participant.
type Identify struct {
	DisplayName string
	AvatarColor string
}

// UpdateIdentity changes the display name or color of an identified connection.
type UpdateIdentity struct {
	DisplayName string
	AvatarColor string
}

// SendBroadcast sends content to every participant.
type SendBroadcast struct {
	Content string
}

// SendDirect sends content to one participant.
type SendDirect struct {
	RecipientConnectionID string
	Content               string
}

// SetTyping relays the typing indicator.
type SetTyping struct {
	IsTyping bool
}

// Disconnect is issued by the transport when the connection goes away.
type Disconnect struct{}

func (Identify) command()       {}
func (UpdateIdentity) command() {}
func (SendBroadcast) command()  {}
func (SendDirect) command()     {}
func (SetTyping) command()      {}
func (Disconnect) command()     {}

// DecodeCommand parses one wire frame into a Command.
func DecodeCommand(frame []byte) (Command, error) {
	var ev models.InboundEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	switch ev.Type {
	case models.EventIdentify, models.EventUpdateIdentity:
		var data models.IdentifyData
		if err := decodeData(ev.Data, &data); err != nil {
			return nil, err
		}
		if ev.Type == models.EventUpdateIdentity {
			return UpdateIdentity{DisplayName: data.DisplayName, AvatarColor: data.AvatarColor}, nil
		}
		return Identify{DisplayName: data.DisplayName, AvatarColor: data.AvatarColor}, nil

	case models.EventSendBroadcast:
		var data models.SendBroadcastData
		if err := decodeData(ev.Data, &data); err != nil {
			return nil, err
		}
		return SendBroadcast{Content: data.Content}, nil

	case models.EventSendDirect:
		var data models.SendDirectData
		if err := decodeData(ev.Data, &data); err != nil {
			return nil, err
		}
		return SendDirect{RecipientConnectionID: data.RecipientConnectionID, Content: data.Content}, nil

	case models.EventTyping:
		// Older clients send a bare boolean.
		var flag bool
		if err := json.Unmarshal(ev.Data, &flag); err == nil {
			return SetTyping{IsTyping: flag}, nil
		}
		var data models.TypingData
		if err := decodeData(ev.Data, &data); err != nil {
			return nil, err
		}
		return SetTyping{IsTyping: data.IsTyping}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, ev.Type)
	}
}

func decodeData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}
