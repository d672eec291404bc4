package dispatch

import (
	"errors"
	"fmt"

	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/protocol"
)

// replyError is a handler-local failure with a message meant for the client
type replyError struct {
	message string
}

// Error implements error interface
func (e *replyError) Error() string {
	return e.message
}

// invalidRequest reports a well-formed frame whose payload cannot be served
func invalidRequest(message string) error {
	return &replyError{message: message}
}

// permissionDenied reports an identity that may not perform the operation
func permissionDenied(message string) error {
	return &replyError{message: "Permission denied: " + message}
}

// fatalError marks a protocol failure that ends the connection
type fatalError struct {
	err error
}

func (e *fatalError) Error() string {
	return e.err.Error()
}

func (e *fatalError) Unwrap() error {
	return e.err
}

// fatal wraps err so Handle returns it instead of replying
func fatal(err error) error {
	return &fatalError{err: err}
}

func isFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe) ||
		errors.Is(err, protocol.ErrMalformed) ||
		errors.Is(err, protocol.ErrTruncated) ||
		errors.Is(err, protocol.ErrFrameTooLarge)
}

// isInternal reports errors the client cannot fix by changing its request
func isInternal(err error) bool {
	var re *replyError
	if errors.As(err, &re) {
		return false
	}
	return toReply(err).Message == internalMessage
}

const internalMessage = "Internal server error"

// toReply converts an error to an ERROR reply
func toReply(err error) *protocol.Reply {
	var re *replyError
	if errors.As(err, &re) {
		return protocol.ErrorReply(re.message)
	}

	switch {
	// Account errors
	case errors.Is(err, model.ErrUsernameExists):
		return protocol.ErrorReply("Username already exists")
	case errors.Is(err, model.ErrInvalidCredentials):
		return protocol.ErrorReply("Invalid credentials")
	case errors.Is(err, model.ErrNotLoggedIn):
		return protocol.ErrorReply("Not logged in")
	case errors.Is(err, model.ErrInvalidAccount):
		return protocol.ErrorReply("Username and password are required")

	// Catalog errors
	case errors.Is(err, model.ErrGameNotFound):
		return protocol.ErrorReply("Game not found")
	case errors.Is(err, model.ErrNotOwner):
		return protocol.ErrorReply("Permission denied: you do not own this game")
	case errors.Is(err, model.ErrInvalidGameID):
		return protocol.ErrorReply(capitalize(err.Error()))
	case errors.Is(err, model.ErrMissingVersion):
		return protocol.ErrorReply("Game version is required")
	case errors.Is(err, model.ErrInvalidRating):
		return protocol.ErrorReply("Rating must be between 1 and 5")

	// Package errors
	case errors.Is(err, model.ErrPackageNotInstalled):
		return protocol.ErrorReply("Game files missing")
	case errors.Is(err, model.ErrInvalidArchive), errors.Is(err, model.ErrInvalidManifest):
		return protocol.ErrorReply(capitalize(err.Error()))

	// Room errors
	case errors.Is(err, model.ErrRoomNotFound):
		return protocol.ErrorReply("Room not found")
	case errors.Is(err, model.ErrRoomFull):
		return protocol.ErrorReply("Room is full")
	case errors.Is(err, model.ErrNotHost):
		return protocol.ErrorReply("Only host can perform this action")
	case errors.Is(err, model.ErrAlreadyStarted):
		return protocol.ErrorReply("Game already started")
	case errors.Is(err, model.ErrStartInProgress):
		return protocol.ErrorReply("Game is already starting")
	case errors.Is(err, model.ErrNoPortAvailable):
		return protocol.ErrorReply("No server ports available")
	case errors.Is(err, model.ErrSpawnFailed):
		return protocol.ErrorReply(fmt.Sprintf("Failed to start game server: %v", err))

	default:
		return protocol.ErrorReply(internalMessage)
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
