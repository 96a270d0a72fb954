package chat

import "errors"

var (
	// ErrInvalidUsername is returned when a display name is shorter than
	// MinDisplayNameLength after trimming.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrUnknownSender is returned when the acting connection is not a
	// registered participant. Callers drop the request.
	ErrUnknownSender = errors.New("unknown sender")

	// ErrRecipientOffline is returned when a direct message targets a
	// connection that is not registered. The sender has been notified.
	ErrRecipientOffline = errors.New("recipient offline")

	// ErrEmptyContent is returned for messages that are blank after trimming.
	ErrEmptyContent = errors.New("empty content")

	// ErrUnknownCommand is returned for frames with an unrecognized type.
	ErrUnknownCommand = errors.New("unknown command")
)
